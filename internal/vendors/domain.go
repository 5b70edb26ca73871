// Package vendors manages supplier onboarding for the procurement portal.
package vendors

import (
	"errors"
	"time"
)

// Status tracks a vendor through the onboarding review lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
)

// CanSubmit reports whether the vendor can be sent for review.
func (s Status) CanSubmit() bool {
	return s == StatusDraft || s == StatusRejected
}

// CanReview reports whether an approval decision can be recorded.
func (s Status) CanReview() bool {
	return s == StatusSubmitted
}

// Vendor represents a supplier registered through the portal.
type Vendor struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	TaxID         string     `json:"tax_id"`
	ContactEmail  string     `json:"contact_email"`
	ContactPhone  string     `json:"contact_phone,omitempty"`
	Address       string     `json:"address,omitempty"`
	Status        Status     `json:"status"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	ReviewComment *string    `json:"review_comment,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Errors returned by the vendor module.
var (
	ErrNotFound          = errors.New("vendors: vendor not found")
	ErrInvalidTransition = errors.New("vendors: invalid status transition")
	ErrValidation        = errors.New("vendors: validation failed")
	ErrUnauthenticated   = errors.New("vendors: caller identity required")
)
