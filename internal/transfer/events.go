package transfer

import (
	"context"
	"time"
)

// Event is a committed lifecycle change published for downstream consumers
// (email notifier, dashboards). ItemID is nil for transfer-level events.
type Event struct {
	ID             string    `json:"id"`
	TransferID     int64     `json:"transfer_id"`
	TransferNumber string    `json:"transfer_number"`
	ItemID         *int64    `json:"item_id,omitempty"`
	Action         Action    `json:"action"`
	PrevStatus     string    `json:"prev_status"`
	NewStatus      string    `json:"new_status"`
	Actor          string    `json:"actor"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Notifier receives events after the owning transaction commits. It is
// fire-and-forget: implementations must not fail the caller, and a notifier
// outage never rolls back a committed state change.
type Notifier interface {
	TransferEvent(ctx context.Context, evt Event)
}
