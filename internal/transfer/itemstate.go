package transfer

// ReceiptAction describes one receipt decision for a line: how many of the
// outstanding units arrived in good condition and how many were refused.
type ReceiptAction struct {
	ReceivedDelta   int64
	RejectedDelta   int64
	RejectionReason string
	ConditionNotes  string
}

// ApplyReceipt returns the line after a receipt action, or a typed failure.
// It is pure: the input item is not modified and no I/O happens here.
func ApplyReceipt(item Item, action ReceiptAction) (Item, error) {
	if !item.Status.CanReceiveMore() {
		return Item{}, invalidTransition("item %d is %s, receipt not allowed", item.ID, item.Status)
	}
	if action.ReceivedDelta < 0 || action.RejectedDelta < 0 {
		return Item{}, invalidInput("receipt deltas must be non-negative")
	}
	if action.ReceivedDelta == 0 && action.RejectedDelta == 0 {
		return Item{}, invalidInput("receipt action must move at least one unit")
	}
	if action.RejectedDelta > 0 && action.RejectionReason == "" {
		return Item{}, invalidInput("rejection requires a reason")
	}

	next := item
	next.QuantityReceived += action.ReceivedDelta
	next.QuantityRejected += action.RejectedDelta
	if v := next.Quantities().Check(); v != nil {
		return Item{}, &ConservationError{Violation: *v}
	}
	if action.RejectionReason != "" {
		next.RejectionReason = &action.RejectionReason
	}
	if action.ConditionNotes != "" {
		next.ConditionNotes = &action.ConditionNotes
	}
	next.Status = deriveItemStatus(next.Quantities())
	return next, nil
}

// ApplyDisposal marks rejected units as disposed. A zero quantity consumes
// the whole unallocated rejected remainder.
func ApplyDisposal(item Item, quantity int64, reason string) (Item, error) {
	if item.Status != ItemStatusRejected && item.Status != ItemStatusPartialAccepted {
		return Item{}, invalidTransition("item %d is %s, disposal not allowed", item.ID, item.Status)
	}
	if reason == "" {
		return Item{}, invalidInput("disposal requires a reason")
	}
	if quantity < 0 {
		return Item{}, invalidInput("disposal quantity must be non-negative")
	}
	// Only the implicit whole-remainder form needs units left to consume.
	// An explicit quantity falls through to the conservation check so an
	// over-allocation is reported as the disposal inequality it violates.
	if quantity == 0 {
		remainder := item.Quantities().RejectedRemainder()
		if remainder <= 0 {
			return Item{}, invalidTransition("item %d has no rejected remainder to dispose", item.ID)
		}
		quantity = remainder
	}

	next := item
	next.QuantityDisposed += quantity
	if v := next.Quantities().Check(); v != nil {
		return Item{}, &ConservationError{Violation: *v}
	}
	next.DisposalReason = &reason
	next.Status = settleRejected(next)
	return next, nil
}

// ApplyReturn marks rejected units for return to the source warehouse.
// A zero quantity consumes the whole unallocated rejected remainder.
func ApplyReturn(item Item, quantity int64) (Item, error) {
	if item.Status != ItemStatusRejected && item.Status != ItemStatusPartialAccepted {
		return Item{}, invalidTransition("item %d is %s, return not allowed", item.ID, item.Status)
	}
	if quantity < 0 {
		return Item{}, invalidInput("return quantity must be non-negative")
	}
	if quantity == 0 {
		remainder := item.Quantities().RejectedRemainder()
		if remainder <= 0 {
			return Item{}, invalidTransition("item %d has no rejected remainder to return", item.ID)
		}
		quantity = remainder
	}

	next := item
	next.QuantityReturned += quantity
	if v := next.Quantities().Check(); v != nil {
		return Item{}, &ConservationError{Violation: *v}
	}
	next.Status = settleRejected(next)
	return next, nil
}

// CanReceiveMore reports whether further receipt actions are allowed: lines
// stay open while units are outstanding.
func (s ItemStatus) CanReceiveMore() bool {
	return s == ItemStatusPending || s == ItemStatusPartialAccepted
}

// deriveItemStatus maps a consistent quantity snapshot to the line status
// after a receipt action.
func deriveItemStatus(q Quantities) ItemStatus {
	switch {
	case q.Received == q.Sent:
		return ItemStatusAccepted
	case q.Received == 0 && q.Rejected == q.Sent:
		return ItemStatusRejected
	case q.Received+q.Rejected > 0:
		return ItemStatusPartialAccepted
	default:
		return ItemStatusPending
	}
}

// settleRejected resolves the line status after a disposal or return. A fully
// rejected line stays REJECTED until every rejected unit is allocated, then
// becomes RETURNED when any unit travelled back, otherwise DISPOSED.
// Partially accepted lines keep their status; the quantity fields carry the
// disposal/return detail.
func settleRejected(item Item) ItemStatus {
	if item.Status == ItemStatusPartialAccepted {
		return ItemStatusPartialAccepted
	}
	q := item.Quantities()
	if q.RejectedRemainder() > 0 {
		return ItemStatusRejected
	}
	if q.Returned > 0 {
		return ItemStatusReturned
	}
	return ItemStatusDisposed
}
