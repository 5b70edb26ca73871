package transfer

import "fmt"

// Inequality names for conservation violations.
const (
	InequalityReceipt  = "quantity_received + quantity_rejected <= quantity_sent"
	InequalityDisposal = "quantity_disposed <= quantity_rejected"
	InequalityReturn   = "quantity_returned <= quantity_rejected - quantity_disposed"
	inequalityNegative = "quantity fields must be non-negative"
)

// Quantities is a per-line quantity snapshot. Every unit sent must be
// accounted for as received, rejected, disposed, returned, or outstanding.
type Quantities struct {
	Sent     int64
	Received int64
	Rejected int64
	Disposed int64
	Returned int64
}

// Violation identifies the specific conservation inequality a candidate
// snapshot would break.
type Violation struct {
	Inequality string
	Limit      int64
	Attempted  int64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s (attempted %d, limit %d)", v.Inequality, v.Attempted, v.Limit)
}

// Check validates the conservation inequalities against a candidate
// post-mutation snapshot. A nil result means the snapshot is consistent.
func (q Quantities) Check() *Violation {
	if q.Sent < 0 || q.Received < 0 || q.Rejected < 0 || q.Disposed < 0 || q.Returned < 0 {
		return &Violation{Inequality: inequalityNegative}
	}
	if q.Received+q.Rejected > q.Sent {
		return &Violation{Inequality: InequalityReceipt, Limit: q.Sent, Attempted: q.Received + q.Rejected}
	}
	if q.Disposed > q.Rejected {
		return &Violation{Inequality: InequalityDisposal, Limit: q.Rejected, Attempted: q.Disposed}
	}
	if q.Returned > q.Rejected-q.Disposed {
		return &Violation{Inequality: InequalityReturn, Limit: q.Rejected - q.Disposed, Attempted: q.Returned}
	}
	return nil
}

// Outstanding is the unaccounted remainder still in transit or unresolved.
func (q Quantities) Outstanding() int64 {
	return q.Sent - q.Received - q.Rejected
}

// RejectedRemainder is the rejected quantity not yet disposed or returned.
func (q Quantities) RejectedRemainder() int64 {
	return q.Rejected - q.Disposed - q.Returned
}
