package transfer

// Flags are the explicit top-level actions that participate in status
// derivation alongside the item states.
type Flags struct {
	Dispatched       bool
	ReturnDispatched bool
	Cancelled        bool
}

// DeriveStatus recomputes the transfer status from its items plus the
// dispatch/cancel flags. It is pure and idempotent: re-deriving from the same
// inputs always yields the same status, so the stored status field is never
// trusted over this function.
func DeriveStatus(items []Item, flags Flags) Status {
	if flags.Cancelled {
		return StatusCancelled
	}
	if !flags.Dispatched {
		return StatusInitiated
	}
	allSettled := true
	allAccepted := true
	allRejected := len(items) > 0
	for _, it := range items {
		// A partially accepted line with units still outstanding keeps the
		// transfer open; receipt is only done once every sent unit is
		// accounted for.
		if !it.Status.Settled() || it.Quantities().Outstanding() > 0 {
			allSettled = false
		}
		if it.Status != ItemStatusAccepted {
			allAccepted = false
		}
		// A line counts as fully rejected when nothing was accepted,
		// regardless of the later disposal/return decision.
		if it.QuantityReceived != 0 || it.QuantityRejected != it.QuantitySent {
			allRejected = false
		}
	}
	if !allSettled {
		return StatusInTransit
	}
	if flags.ReturnDispatched {
		return StatusReturned
	}
	switch {
	case allAccepted:
		return StatusReceived
	case allRejected:
		return StatusRejected
	default:
		return StatusPartialReceived
	}
}

// flagsOf reads the derivation flags off a stored transfer record.
func flagsOf(t Transfer) Flags {
	return Flags{
		Dispatched:       t.DispatchedAt != nil,
		ReturnDispatched: t.ReturnDispatchedAt != nil,
		Cancelled:        t.CancelledAt != nil,
	}
}
