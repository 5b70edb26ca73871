// Package transfer implements the warehouse-to-warehouse transfer workflow:
// the transfer lifecycle, per-line receipt reconciliation, and the audit trail
// explaining every quantity change.
package transfer

import "time"

// Status represents the lifecycle of a warehouse transfer.
type Status string

const (
	StatusInitiated       Status = "INITIATED"        // Created, not yet handed to courier
	StatusInTransit       Status = "IN_TRANSIT"       // Dispatched, items pending receipt
	StatusReceived        Status = "RECEIVED"         // Every line fully accepted
	StatusPartialReceived Status = "PARTIAL_RECEIVED" // All lines settled, not all fully accepted
	StatusRejected        Status = "REJECTED"         // Every line fully rejected
	StatusReturned        Status = "RETURNED"         // Rejected goods dispatched back to source
	StatusCancelled       Status = "CANCELLED"        // Cancelled before any receipt activity
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusInitiated, StatusInTransit, StatusReceived, StatusPartialReceived,
		StatusRejected, StatusReturned, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanDispatch checks if the transfer can be handed to a courier.
func (s Status) CanDispatch() bool {
	return s == StatusInitiated
}

// CanReceive checks if receipt actions are accepted in this status.
func (s Status) CanReceive() bool {
	return s == StatusInTransit || s == StatusPartialReceived
}

// CanCancel checks if the status permits cancellation. The orchestrator
// additionally refuses cancellation once any item has receipt activity.
func (s Status) CanCancel() bool {
	return s == StatusInitiated || s == StatusInTransit
}

// ItemStatus represents the receipt state of a single transfer line.
type ItemStatus string

const (
	ItemStatusPending         ItemStatus = "PENDING"
	ItemStatusAccepted        ItemStatus = "ACCEPTED"
	ItemStatusPartialAccepted ItemStatus = "PARTIAL_ACCEPTED"
	ItemStatusRejected        ItemStatus = "REJECTED"
	ItemStatusDisposed        ItemStatus = "DISPOSED"
	ItemStatusReturned        ItemStatus = "RETURNED"
)

// IsValid checks if the item status is a known value.
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusAccepted, ItemStatusPartialAccepted,
		ItemStatusRejected, ItemStatusDisposed, ItemStatusReturned:
		return true
	default:
		return false
	}
}

// Settled reports whether the line has left the PENDING state.
func (s ItemStatus) Settled() bool {
	return s != ItemStatusPending && s.IsValid()
}

// Transfer represents one shipment of product lines between two warehouses.
type Transfer struct {
	ID                int64      `json:"id"`
	Number            string     `json:"number"`
	SourceWarehouseID int64      `json:"source_warehouse_id"`
	TargetWarehouseID int64      `json:"target_warehouse_id"`
	Status            Status     `json:"status"`
	InitiatedBy       string     `json:"initiated_by"`
	InitiatedAt       time.Time  `json:"initiated_at"`
	CourierName       *string    `json:"courier_name,omitempty"`
	TrackingNumber    *string    `json:"tracking_number,omitempty"`
	ExpectedDelivery  *time.Time `json:"expected_delivery,omitempty"`
	DispatchedBy      *string    `json:"dispatched_by,omitempty"`
	DispatchedAt      *time.Time `json:"dispatched_at,omitempty"`
	ReceivedBy        *string    `json:"received_by,omitempty"`
	ReceivedAt        *time.Time `json:"received_at,omitempty"`
	ReceiptNotes      *string    `json:"receipt_notes,omitempty"`

	// Return leg, populated only when rejected goods travel back to source.
	ReturnCourierName    *string    `json:"return_courier_name,omitempty"`
	ReturnTrackingNumber *string    `json:"return_tracking_number,omitempty"`
	ReturnDispatchedBy   *string    `json:"return_dispatched_by,omitempty"`
	ReturnDispatchedAt   *time.Time `json:"return_dispatched_at,omitempty"`

	CancelledBy  *string    `json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`

	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []Item `json:"items,omitempty"`
}

// Dispatched reports whether the transfer has been handed to a courier.
func (t Transfer) Dispatched() bool {
	return t.DispatchedAt != nil
}

// Item represents one product line within a transfer. QuantitySent is fixed
// at creation; the remaining quantity fields only grow through receipt-time
// actions.
type Item struct {
	ID          int64      `json:"id"`
	TransferID  int64      `json:"transfer_id"`
	ProductID   int64      `json:"product_id"`
	BatchNumber *string    `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	UnitPrice   *float64   `json:"unit_price,omitempty"`
	Currency    *string    `json:"currency,omitempty"`

	QuantitySent     int64 `json:"quantity_sent"`
	QuantityReceived int64 `json:"quantity_received"`
	QuantityRejected int64 `json:"quantity_rejected"`
	QuantityDisposed int64 `json:"quantity_disposed"`
	QuantityReturned int64 `json:"quantity_returned"`

	Status          ItemStatus `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	DisposalReason  *string    `json:"disposal_reason,omitempty"`
	ConditionNotes  *string    `json:"condition_notes,omitempty"`

	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quantities returns the line's quantity snapshot for ledger checks.
func (i Item) Quantities() Quantities {
	return Quantities{
		Sent:     i.QuantitySent,
		Received: i.QuantityReceived,
		Rejected: i.QuantityRejected,
		Disposed: i.QuantityDisposed,
		Returned: i.QuantityReturned,
	}
}

// Action tags recorded in the audit log.
type Action string

const (
	ActionInitiate       Action = "INITIATE"
	ActionDispatch       Action = "DISPATCH"
	ActionReceive        Action = "RECEIVE"
	ActionDispose        Action = "DISPOSE"
	ActionReturn         Action = "RETURN"
	ActionReturnDispatch Action = "RETURN_DISPATCH"
	ActionCancel         Action = "CANCEL"
	ActionStatusChange   Action = "STATUS_CHANGE"
)

// Log is one immutable audit event. Written in the same transaction as the
// state change it describes; never updated or deleted.
type Log struct {
	ID         int64          `json:"id"`
	TransferID int64          `json:"transfer_id"`
	ItemID     *int64         `json:"item_id,omitempty"`
	Action     Action         `json:"action"`
	Actor      string         `json:"actor"`
	PrevStatus string         `json:"prev_status"`
	NewStatus  string         `json:"new_status"`
	Detail     map[string]any `json:"detail,omitempty"`
	Notes      *string        `json:"notes,omitempty"`
	OriginAddr *string        `json:"origin_addr,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// WithHistory joins a transfer with its items and full audit trail.
type WithHistory struct {
	Transfer Transfer `json:"transfer"`
	Items    []Item   `json:"items"`
	Logs     []Log    `json:"logs"`
}

// CourierInfo carries dispatch metadata for the outbound leg.
type CourierInfo struct {
	CourierName      string
	TrackingNumber   string
	ExpectedDelivery *time.Time
}

// ReturnCourierInfo carries dispatch metadata for the return leg.
type ReturnCourierInfo struct {
	CourierName    string
	TrackingNumber string
}
