package transfer

import "time"

// InitiateRequest creates a transfer with its lines.
type InitiateRequest struct {
	SourceWarehouseID int64         `json:"source_warehouse_id" validate:"required,gt=0"`
	TargetWarehouseID int64         `json:"target_warehouse_id" validate:"required,gt=0"`
	Items             []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ItemRequest is one requested line.
type ItemRequest struct {
	ProductID    int64      `json:"product_id" validate:"required,gt=0"`
	QuantitySent int64      `json:"quantity_sent" validate:"required,gt=0"`
	BatchNumber  *string    `json:"batch_number,omitempty" validate:"omitempty,max=100"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	UnitPrice    *float64   `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	Currency     *string    `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// DispatchRequest records the outbound courier leg.
type DispatchRequest struct {
	CourierName      string     `json:"courier_name" validate:"required,max=200"`
	TrackingNumber   string     `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	ExpectedDelivery *time.Time `json:"expected_delivery,omitempty"`
}

// ReceiveRequest applies a batch of receipt actions.
type ReceiveRequest struct {
	Actions []ReceiptActionRequest `json:"actions" validate:"required,min=1,dive"`
	Notes   string                 `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// ReceiptActionRequest is one receipt decision for one line.
type ReceiptActionRequest struct {
	ItemID          int64  `json:"item_id" validate:"required,gt=0"`
	ReceivedDelta   int64  `json:"received_delta" validate:"gte=0"`
	RejectedDelta   int64  `json:"rejected_delta" validate:"gte=0"`
	RejectionReason string `json:"rejection_reason,omitempty" validate:"omitempty,max=500"`
	ConditionNotes  string `json:"condition_notes,omitempty" validate:"omitempty,max=1000"`
}

// DisposeRequest records disposal of rejected units. Quantity zero consumes
// the whole unallocated rejected remainder.
type DisposeRequest struct {
	Quantity int64  `json:"quantity,omitempty" validate:"gte=0"`
	Reason   string `json:"reason" validate:"required,min=3,max=500"`
}

// ReturnRequest marks rejected units for return to source.
type ReturnRequest struct {
	Quantity int64 `json:"quantity,omitempty" validate:"gte=0"`
}

// ReturnDispatchRequest records the return courier leg.
type ReturnDispatchRequest struct {
	CourierName    string `json:"courier_name" validate:"required,max=200"`
	TrackingNumber string `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
}

// CancelRequest cancels a transfer before any receipt activity.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ListResponse is the paginated listing payload.
type ListResponse struct {
	Transfers []Transfer `json:"transfers"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
