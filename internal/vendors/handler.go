package vendors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-scm/meridian-scm/internal/platform/httpx"
	"github.com/meridian-scm/meridian-scm/internal/shared"
)

// Handler serves the vendor onboarding endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers vendor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.register)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

type vendorRequest struct {
	Name         string `json:"name" validate:"required"`
	TaxID        string `json:"tax_id" validate:"required"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
	ContactPhone string `json:"contact_phone"`
	Address      string `json:"address"`
}

type reviewRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req vendorRequest
	if !h.decode(w, r, &req) {
		return
	}
	vendor, err := h.service.Register(r.Context(), inputFrom(req), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "register vendor", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vendor)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req vendorRequest
	if !h.decode(w, r, &req) {
		return
	}
	vendor, err := h.service.UpdateDraft(r.Context(), id, inputFrom(req), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "update vendor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	vendor, err := h.service.Submit(r.Context(), id, key, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "submit vendor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.service.Approve, "approve vendor")
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.service.Reject, "reject vendor")
}

func (h *Handler) reviewAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, comment, actor string) (Vendor, error), op string) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	vendor, err := fn(r.Context(), id, req.Comment, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	vendor, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get vendor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var status *Status
	if s := q.Get("status"); s != "" {
		st := Status(s)
		status = &st
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	vendors, total, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		h.respondError(w, "list vendors", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": vendors, "total": total})
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func inputFrom(req vendorRequest) RegisterInput {
	return RegisterInput{
		Name:         req.Name,
		TaxID:        req.TaxID,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
	}
}
