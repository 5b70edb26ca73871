package transfer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts persistence for the orchestrator.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	GetItem(ctx context.Context, itemID int64) (Item, error)
	GetHistory(ctx context.Context, id int64) (WithHistory, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, int, error)
}

// TxRepository exposes the transactional operations used inside a unit of
// work. Updates guard on the revision read in the same transaction and fail
// with ErrConcurrentModification when the snapshot went stale.
type TxRepository interface {
	NextTransferNumber(ctx context.Context) (string, error)
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateTransfer(ctx context.Context, id, revision int64, status Status, updates map[string]any) error
	UpdateItem(ctx context.Context, item Item) error
	InsertLog(ctx context.Context, entry Log) error
}

// ListFilter filters transfer listings.
type ListFilter struct {
	Status      *Status
	WarehouseID *int64
	Limit       int
	Offset      int
}

// Caller identifies the pre-authenticated actor behind a mutating call. The
// external auth collaborator resolves identity; this core only refuses calls
// without one.
type Caller struct {
	Actor  string
	Origin string
}

// Service is the transfer orchestrator: the only component that persists
// transfer, item, and log records. Every mutating operation runs as a single
// atomic unit of work, and every accepted state change writes exactly one
// audit log row inside that unit.
type Service struct {
	repo     RepositoryPort
	notifier Notifier
}

// NewService constructs the orchestrator.
func NewService(repo RepositoryPort, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// InitiateInput describes a new transfer request from a source-warehouse actor.
type InitiateInput struct {
	SourceWarehouseID int64
	TargetWarehouseID int64
	Items             []ItemInput
}

// ItemInput describes one requested line.
type ItemInput struct {
	ProductID    int64
	QuantitySent int64
	BatchNumber  *string
	ExpiryDate   *time.Time
	UnitPrice    *float64
	Currency     *string
}

// ReceiptRequest pairs a receipt action with its target line.
type ReceiptRequest struct {
	ItemID int64
	Action ReceiptAction
}

// InitiateTransfer creates a transfer in INITIATED state with PENDING lines,
// assigns the transfer number, and writes the opening log entry.
func (s *Service) InitiateTransfer(ctx context.Context, input InitiateInput, caller Caller) (Transfer, error) {
	if err := requireActor(caller); err != nil {
		return Transfer{}, err
	}
	if input.SourceWarehouseID <= 0 || input.TargetWarehouseID <= 0 {
		return Transfer{}, invalidInput("source and target warehouses are required")
	}
	if input.SourceWarehouseID == input.TargetWarehouseID {
		return Transfer{}, invalidInput("source and target warehouse must differ")
	}
	if len(input.Items) == 0 {
		return Transfer{}, invalidInput("at least one item is required")
	}
	for idx, it := range input.Items {
		if it.ProductID <= 0 {
			return Transfer{}, invalidInput("item %d: product is required", idx)
		}
		if it.QuantitySent <= 0 {
			return Transfer{}, invalidInput("item %d: quantity sent must be positive", idx)
		}
	}

	now := time.Now().UTC()
	var created Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextTransferNumber(ctx)
		if err != nil {
			return err
		}
		t := Transfer{
			Number:            number,
			SourceWarehouseID: input.SourceWarehouseID,
			TargetWarehouseID: input.TargetWarehouseID,
			Status:            StatusInitiated,
			InitiatedBy:       caller.Actor,
			InitiatedAt:       now,
		}
		id, err := tx.InsertTransfer(ctx, t)
		if err != nil {
			return err
		}
		t.ID = id
		var totalSent int64
		for _, in := range input.Items {
			item := Item{
				TransferID:   id,
				ProductID:    in.ProductID,
				BatchNumber:  in.BatchNumber,
				ExpiryDate:   in.ExpiryDate,
				UnitPrice:    in.UnitPrice,
				Currency:     in.Currency,
				QuantitySent: in.QuantitySent,
				Status:       ItemStatusPending,
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			t.Items = append(t.Items, item)
			totalSent += in.QuantitySent
		}
		if err := tx.InsertLog(ctx, s.logEntry(t.ID, nil, ActionInitiate, caller, "", string(StatusInitiated), map[string]any{
			"item_count":          len(input.Items),
			"total_quantity_sent": totalSent,
			"source_warehouse_id": input.SourceWarehouseID,
			"target_warehouse_id": input.TargetWarehouseID,
		}, nil)); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.emit(ctx, Event{
		TransferID:     created.ID,
		TransferNumber: created.Number,
		Action:         ActionInitiate,
		NewStatus:      string(StatusInitiated),
		Actor:          caller.Actor,
	})
	return created, nil
}

// DispatchTransfer hands an initiated transfer to a courier, recording the
// outbound leg metadata and moving the transfer to IN_TRANSIT.
func (s *Service) DispatchTransfer(ctx context.Context, transferID int64, info CourierInfo, caller Caller) (Transfer, error) {
	if err := requireActor(caller); err != nil {
		return Transfer{}, err
	}
	now := time.Now().UTC()
	var events []Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if !t.Status.CanDispatch() {
			return invalidTransition("transfer %s is %s, dispatch requires %s", t.Number, t.Status, StatusInitiated)
		}
		if len(t.Items) == 0 {
			return ErrEmptyTransfer
		}
		updates := map[string]any{
			"dispatched_by": caller.Actor,
			"dispatched_at": now,
		}
		if info.CourierName != "" {
			updates["courier_name"] = info.CourierName
		}
		if info.TrackingNumber != "" {
			updates["tracking_number"] = info.TrackingNumber
		}
		if info.ExpectedDelivery != nil {
			updates["expected_delivery"] = *info.ExpectedDelivery
		}
		if err := tx.UpdateTransfer(ctx, t.ID, t.Revision, StatusInTransit, updates); err != nil {
			return err
		}
		if err := tx.InsertLog(ctx, s.logEntry(t.ID, nil, ActionDispatch, caller, string(t.Status), string(StatusInTransit), map[string]any{
			"courier_name":    info.CourierName,
			"tracking_number": info.TrackingNumber,
		}, nil)); err != nil {
			return err
		}
		events = append(events, Event{
			TransferID:     t.ID,
			TransferNumber: t.Number,
			Action:         ActionDispatch,
			PrevStatus:     string(t.Status),
			NewStatus:      string(StatusInTransit),
			Actor:          caller.Actor,
		})
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.emitAll(ctx, events)
	return s.repo.GetTransfer(ctx, transferID)
}

// ReceiveItems applies a batch of receipt actions against one transfer. The
// batch is all-or-nothing: if any single action fails validation, nothing is
// persisted and the caller must resubmit a corrected batch. On success the
// transfer status is re-derived from the updated lines.
func (s *Service) ReceiveItems(ctx context.Context, transferID int64, actions []ReceiptRequest, caller Caller, notes string) (Transfer, error) {
	if err := requireActor(caller); err != nil {
		return Transfer{}, err
	}
	if len(actions) == 0 {
		return Transfer{}, invalidInput("at least one receipt action is required")
	}
	now := time.Now().UTC()
	var events []Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if !t.Status.CanReceive() {
			return invalidTransition("transfer %s is %s, receipt requires %s or %s", t.Number, t.Status, StatusInTransit, StatusPartialReceived)
		}
		byID := make(map[int64]Item, len(t.Items))
		for _, it := range t.Items {
			byID[it.ID] = it
		}
		for _, req := range actions {
			current, ok := byID[req.ItemID]
			if !ok {
				return invalidInput("item %d does not belong to transfer %s", req.ItemID, t.Number)
			}
			updated, err := ApplyReceipt(current, req.Action)
			if err != nil {
				return err
			}
			if err := tx.UpdateItem(ctx, updated); err != nil {
				return err
			}
			updated.Revision = current.Revision + 1
			byID[req.ItemID] = updated
			itemID := req.ItemID
			if err := tx.InsertLog(ctx, s.logEntry(t.ID, &itemID, ActionReceive, caller, string(current.Status), string(updated.Status), map[string]any{
				"received_delta":    req.Action.ReceivedDelta,
				"rejected_delta":    req.Action.RejectedDelta,
				"rejection_reason":  req.Action.RejectionReason,
				"quantity_received": updated.QuantityReceived,
				"quantity_rejected": updated.QuantityRejected,
				"outstanding":       updated.Quantities().Outstanding(),
			}, nil)); err != nil {
				return err
			}
			events = append(events, Event{
				TransferID:     t.ID,
				TransferNumber: t.Number,
				ItemID:         &itemID,
				Action:         ActionReceive,
				PrevStatus:     string(current.Status),
				NewStatus:      string(updated.Status),
				Actor:          caller.Actor,
			})
		}

		items := make([]Item, 0, len(byID))
		for _, it := range t.Items {
			items = append(items, byID[it.ID])
		}
		derived := DeriveStatus(items, flagsOf(t))
		// Receipt metadata is recorded for every accepted batch, even when
		// the derived status is unchanged; a follow-up batch may still carry
		// notes worth keeping.
		updates := map[string]any{
			"received_by": caller.Actor,
			"received_at": now,
		}
		if notes != "" {
			updates["receipt_notes"] = notes
		}
		if err := tx.UpdateTransfer(ctx, t.ID, t.Revision, derived, updates); err != nil {
			return err
		}
		if derived != t.Status {
			if err := tx.InsertLog(ctx, s.logEntry(t.ID, nil, ActionStatusChange, caller, string(t.Status), string(derived), map[string]any{
				"trigger": string(ActionReceive),
			}, optional(notes))); err != nil {
				return err
			}
			events = append(events, Event{
				TransferID:     t.ID,
				TransferNumber: t.Number,
				Action:         ActionStatusChange,
				PrevStatus:     string(t.Status),
				NewStatus:      string(derived),
				Actor:          caller.Actor,
			})
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.emitAll(ctx, events)
	return s.repo.GetTransfer(ctx, transferID)
}

// DisposeRejectedItem records disposal of rejected units on one line. A zero
// quantity disposes the whole unallocated rejected remainder.
func (s *Service) DisposeRejectedItem(ctx context.Context, itemID int64, quantity int64, reason string, caller Caller) (Item, error) {
	return s.settleRejectedUnits(ctx, itemID, caller, ActionDispose, func(item Item) (Item, error) {
		return ApplyDisposal(item, quantity, reason)
	})
}

// ReturnRejectedItem marks rejected units for return to the source warehouse.
// A zero quantity returns the whole unallocated rejected remainder.
func (s *Service) ReturnRejectedItem(ctx context.Context, itemID int64, quantity int64, caller Caller) (Item, error) {
	return s.settleRejectedUnits(ctx, itemID, caller, ActionReturn, func(item Item) (Item, error) {
		return ApplyReturn(item, quantity)
	})
}

func (s *Service) settleRejectedUnits(ctx context.Context, itemID int64, caller Caller, action Action, apply func(Item) (Item, error)) (Item, error) {
	if err := requireActor(caller); err != nil {
		return Item{}, err
	}
	// Plain read to resolve the parent transfer; no row lock is taken until
	// the transaction below acquires them in the canonical order.
	seed, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	var (
		result Item
		events []Event
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Lock ordering: transfer row first, then the line, matching the
		// receipt path so concurrent batches and settlement calls serialize
		// instead of deadlocking.
		t, err := tx.GetTransferForUpdate(ctx, seed.TransferID)
		if err != nil {
			return err
		}
		current, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		updated, err := apply(current)
		if err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, updated); err != nil {
			return err
		}
		updated.Revision = current.Revision + 1
		detail := map[string]any{
			"quantity_rejected":  updated.QuantityRejected,
			"quantity_disposed":  updated.QuantityDisposed,
			"quantity_returned":  updated.QuantityReturned,
			"rejected_remainder": updated.Quantities().RejectedRemainder(),
		}
		if action == ActionDispose {
			detail["disposal_reason"] = deref(updated.DisposalReason)
		}
		id := itemID
		if err := tx.InsertLog(ctx, s.logEntry(t.ID, &id, action, caller, string(current.Status), string(updated.Status), detail, nil)); err != nil {
			return err
		}
		events = append(events, Event{
			TransferID:     t.ID,
			TransferNumber: t.Number,
			ItemID:         &id,
			Action:         action,
			PrevStatus:     string(current.Status),
			NewStatus:      string(updated.Status),
			Actor:          caller.Actor,
		})
		result = updated
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.emitAll(ctx, events)
	return result, nil
}

// MarkReturnDispatched records the return leg for rejected goods and moves
// the transfer to RETURNED. It requires that every rejected unit has been
// allocated and that at least one unit is travelling back.
func (s *Service) MarkReturnDispatched(ctx context.Context, transferID int64, info ReturnCourierInfo, caller Caller) (Transfer, error) {
	if err := requireActor(caller); err != nil {
		return Transfer{}, err
	}
	now := time.Now().UTC()
	var events []Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if t.Status != StatusPartialReceived && t.Status != StatusRejected {
			return invalidTransition("transfer %s is %s, return dispatch requires %s or %s", t.Number, t.Status, StatusPartialReceived, StatusRejected)
		}
		var totalReturned int64
		for _, it := range t.Items {
			if it.Quantities().RejectedRemainder() > 0 {
				return invalidTransition("item %d still has %d unallocated rejected units", it.ID, it.Quantities().RejectedRemainder())
			}
			totalReturned += it.QuantityReturned
		}
		if totalReturned == 0 {
			return invalidTransition("transfer %s has no units marked for return", t.Number)
		}
		updates := map[string]any{
			"return_dispatched_by": caller.Actor,
			"return_dispatched_at": now,
		}
		if info.CourierName != "" {
			updates["return_courier_name"] = info.CourierName
		}
		if info.TrackingNumber != "" {
			updates["return_tracking_number"] = info.TrackingNumber
		}
		if err := tx.UpdateTransfer(ctx, t.ID, t.Revision, StatusReturned, updates); err != nil {
			return err
		}
		if err := tx.InsertLog(ctx, s.logEntry(t.ID, nil, ActionReturnDispatch, caller, string(t.Status), string(StatusReturned), map[string]any{
			"return_courier_name":     info.CourierName,
			"return_tracking_number":  info.TrackingNumber,
			"total_quantity_returned": totalReturned,
		}, nil)); err != nil {
			return err
		}
		events = append(events, Event{
			TransferID:     t.ID,
			TransferNumber: t.Number,
			Action:         ActionReturnDispatch,
			PrevStatus:     string(t.Status),
			NewStatus:      string(StatusReturned),
			Actor:          caller.Actor,
		})
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.emitAll(ctx, events)
	return s.repo.GetTransfer(ctx, transferID)
}

// CancelTransfer cancels a transfer that has no receipt activity on any line.
// Cancellation is irreversible and refused once any item has been actioned.
func (s *Service) CancelTransfer(ctx context.Context, transferID int64, reason string, caller Caller) (Transfer, error) {
	if err := requireActor(caller); err != nil {
		return Transfer{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return Transfer{}, invalidInput("cancellation requires a reason")
	}
	now := time.Now().UTC()
	var events []Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if !t.Status.CanCancel() {
			return invalidTransition("transfer %s is %s, cancellation requires %s or %s", t.Number, t.Status, StatusInitiated, StatusInTransit)
		}
		for _, it := range t.Items {
			if it.Status != ItemStatusPending {
				return invalidTransition("item %d already actioned (%s), transfer can no longer be cancelled", it.ID, it.Status)
			}
		}
		updates := map[string]any{
			"cancelled_by":  caller.Actor,
			"cancelled_at":  now,
			"cancel_reason": reason,
		}
		if err := tx.UpdateTransfer(ctx, t.ID, t.Revision, StatusCancelled, updates); err != nil {
			return err
		}
		if err := tx.InsertLog(ctx, s.logEntry(t.ID, nil, ActionCancel, caller, string(t.Status), string(StatusCancelled), map[string]any{
			"reason": reason,
		}, nil)); err != nil {
			return err
		}
		events = append(events, Event{
			TransferID:     t.ID,
			TransferNumber: t.Number,
			Action:         ActionCancel,
			PrevStatus:     string(t.Status),
			NewStatus:      string(StatusCancelled),
			Actor:          caller.Actor,
		})
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.emitAll(ctx, events)
	return s.repo.GetTransfer(ctx, transferID)
}

// GetTransferWithHistory returns the transfer, its lines, and the full audit
// trail. Read-only.
func (s *Service) GetTransferWithHistory(ctx context.Context, transferID int64) (WithHistory, error) {
	return s.repo.GetHistory(ctx, transferID)
}

// ListTransfers returns transfers matching the filter plus the total count.
func (s *Service) ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) logEntry(transferID int64, itemID *int64, action Action, caller Caller, prev, next string, detail map[string]any, notes *string) Log {
	entry := Log{
		TransferID: transferID,
		ItemID:     itemID,
		Action:     action,
		Actor:      caller.Actor,
		PrevStatus: prev,
		NewStatus:  next,
		Detail:     detail,
		Notes:      notes,
		CreatedAt:  time.Now().UTC(),
	}
	if caller.Origin != "" {
		entry.OriginAddr = &caller.Origin
	}
	return entry
}

func (s *Service) emit(ctx context.Context, evt Event) {
	if s.notifier == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.OccurredAt = time.Now().UTC()
	s.notifier.TransferEvent(ctx, evt)
}

func (s *Service) emitAll(ctx context.Context, events []Event) {
	for _, evt := range events {
		s.emit(ctx, evt)
	}
}

func requireActor(caller Caller) error {
	if strings.TrimSpace(caller.Actor) == "" {
		return ErrUnauthenticated
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
