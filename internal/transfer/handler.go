package transfer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-scm/meridian-scm/internal/platform/httpx"
	"github.com/meridian-scm/meridian-scm/internal/shared"
)

// Handler wires the transfer JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.initiate)
	r.Get("/{id}", h.show)
	r.Post("/{id}/dispatch", h.dispatch)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/return-dispatch", h.returnDispatch)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/items/{itemID}/dispose", h.dispose)
	r.Post("/items/{itemID}/return", h.returnItem)
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := InitiateInput{
		SourceWarehouseID: req.SourceWarehouseID,
		TargetWarehouseID: req.TargetWarehouseID,
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, ItemInput{
			ProductID:    it.ProductID,
			QuantitySent: it.QuantitySent,
			BatchNumber:  it.BatchNumber,
			ExpiryDate:   it.ExpiryDate,
			UnitPrice:    it.UnitPrice,
			Currency:     it.Currency,
		})
	}
	created, err := h.service.InitiateTransfer(r.Context(), input, callerFrom(r))
	if err != nil {
		h.respondError(w, r, "initiate transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 50}
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status := Status(s)
		if !status.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+s)
			return
		}
		filter.Status = &status
	}
	if s := q.Get("warehouse_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse_id")
			return
		}
		filter.WarehouseID = &id
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}
	if s := q.Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Offset = n
		}
	}
	transfers, total, err := h.service.ListTransfers(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list transfers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Transfers: transfers, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	history, err := h.service.GetTransferWithHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req DispatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.DispatchTransfer(r.Context(), id, CourierInfo{
		CourierName:      req.CourierName,
		TrackingNumber:   req.TrackingNumber,
		ExpectedDelivery: req.ExpectedDelivery,
	}, callerFrom(r))
	if err != nil {
		h.respondError(w, r, "dispatch transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req ReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	actions := make([]ReceiptRequest, 0, len(req.Actions))
	for _, a := range req.Actions {
		actions = append(actions, ReceiptRequest{
			ItemID: a.ItemID,
			Action: ReceiptAction{
				ReceivedDelta:   a.ReceivedDelta,
				RejectedDelta:   a.RejectedDelta,
				RejectionReason: a.RejectionReason,
				ConditionNotes:  a.ConditionNotes,
			},
		})
	}
	t, err := h.service.ReceiveItems(r.Context(), id, actions, callerFrom(r), req.Notes)
	if err != nil {
		h.respondError(w, r, "receive items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req DisposeRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.DisposeRejectedItem(r.Context(), itemID, req.Quantity, req.Reason, callerFrom(r))
	if err != nil {
		h.respondError(w, r, "dispose item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) returnItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req ReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.ReturnRejectedItem(r.Context(), itemID, req.Quantity, callerFrom(r))
	if err != nil {
		h.respondError(w, r, "return item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) returnDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req ReturnDispatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.MarkReturnDispatched(r.Context(), id, ReturnCourierInfo{
		CourierName:    req.CourierName,
		TrackingNumber: req.TrackingNumber,
	}, callerFrom(r))
	if err != nil {
		h.respondError(w, r, "return dispatch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.CancelTransfer(r.Context(), id, req.Reason, callerFrom(r))
	if err != nil {
		h.respondError(w, r, "cancel transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+param)
		return 0, false
	}
	return id, true
}

// respondError maps the transfer error taxonomy onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrEmptyTransfer):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrConservation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Quantity Conservation Violated", err.Error())
	case errors.Is(err, ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// callerFrom builds the audit caller from the authenticated request context.
func callerFrom(r *http.Request) Caller {
	return Caller{
		Actor:  shared.ActorFromContext(r.Context()),
		Origin: r.RemoteAddr,
	}
}
