package vendors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-scm/meridian-scm/internal/shared"
)

type memoryRepo struct {
	vendors map[int64]Vendor
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{vendors: make(map[int64]Vendor)}
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Vendor, error) {
	v, ok := r.vendors[id]
	if !ok {
		return Vendor{}, ErrNotFound
	}
	return v, nil
}

func (r *memoryRepo) List(ctx context.Context, status *Status, limit, offset int) ([]Vendor, int, error) {
	var out []Vendor
	for _, v := range r.vendors {
		if status != nil && v.Status != *status {
			continue
		}
		out = append(out, v)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Insert(ctx context.Context, v Vendor) (Vendor, error) {
	r.nextID++
	v.ID = r.nextID
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	r.vendors[v.ID] = v
	return v, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) (Vendor, error) {
	v, ok := r.vendors[id]
	if !ok {
		return Vendor{}, ErrNotFound
	}
	if v.Status != from {
		return Vendor{}, ErrInvalidTransition
	}
	v.Status = to
	for col, val := range updates {
		switch col {
		case "submitted_at":
			ts := val.(time.Time)
			v.SubmittedAt = &ts
		case "reviewed_by":
			if s, ok := val.(string); ok {
				v.ReviewedBy = &s
			} else {
				v.ReviewedBy = nil
			}
		case "reviewed_at":
			if ts, ok := val.(time.Time); ok {
				v.ReviewedAt = &ts
			} else {
				v.ReviewedAt = nil
			}
		case "review_comment":
			if s, ok := val.(string); ok {
				v.ReviewComment = &s
			} else {
				v.ReviewComment = nil
			}
		}
	}
	v.UpdatedAt = time.Now()
	r.vendors[id] = v
	return v, nil
}

func (r *memoryRepo) UpdateDetails(ctx context.Context, in Vendor) (Vendor, error) {
	v, ok := r.vendors[in.ID]
	if !ok {
		return Vendor{}, ErrNotFound
	}
	if v.Status != StatusDraft && v.Status != StatusRejected {
		return Vendor{}, ErrInvalidTransition
	}
	v.Name = in.Name
	v.TaxID = in.TaxID
	v.ContactEmail = in.ContactEmail
	v.ContactPhone = in.ContactPhone
	v.Address = in.Address
	v.UpdatedAt = time.Now()
	r.vendors[in.ID] = v
	return v, nil
}

type memoryAuditor struct {
	records []shared.AuditLog
}

func (a *memoryAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	a.records = append(a.records, log)
	return nil
}

type memoryIdempotency struct {
	seen map[string]bool
}

func (g *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	g.seen[key] = true
	return nil
}

func validInput() RegisterInput {
	return RegisterInput{
		Name:         "Acme Pharma Supplies",
		TaxID:        "TX-4491",
		ContactEmail: "sales@acme.example",
	}
}

func TestRegisterVendor(t *testing.T) {
	auditor := &memoryAuditor{}
	svc := NewService(newMemoryRepo(), auditor, nil)
	ctx := context.Background()

	v, err := svc.Register(ctx, validInput(), "user-17")
	require.NoError(t, err)
	require.Equal(t, StatusDraft, v.Status)
	require.Equal(t, "user-17", v.CreatedBy)
	require.Len(t, auditor.records, 1)
	require.Equal(t, "vendor.register", auditor.records[0].Action)

	_, err = svc.Register(ctx, validInput(), "")
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Register(ctx, RegisterInput{Name: "No Tax"}, "user-17")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSubmitAndReviewLifecycle(t *testing.T) {
	svc := NewService(newMemoryRepo(), &memoryAuditor{}, &memoryIdempotency{})
	ctx := context.Background()

	v, err := svc.Register(ctx, validInput(), "user-17")
	require.NoError(t, err)

	// Approval requires a prior submission.
	_, err = svc.Approve(ctx, v.ID, "", "reviewer-1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	v, err = svc.Submit(ctx, v.ID, "key-1", "user-17")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, v.Status)
	require.NotNil(t, v.SubmittedAt)

	v, err = svc.Approve(ctx, v.ID, "checks passed", "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, v.Status)
	require.Equal(t, "reviewer-1", *v.ReviewedBy)

	// Terminal for submission purposes.
	_, err = svc.Submit(ctx, v.ID, "key-2", "user-17")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitIsIdempotent(t *testing.T) {
	svc := NewService(newMemoryRepo(), &memoryAuditor{}, &memoryIdempotency{})
	ctx := context.Background()

	v, err := svc.Register(ctx, validInput(), "user-17")
	require.NoError(t, err)

	first, err := svc.Submit(ctx, v.ID, "retry-key", "user-17")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, first.Status)

	// A retried submit with the same key is absorbed, not an error.
	again, err := svc.Submit(ctx, v.ID, "retry-key", "user-17")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, again.Status)
}

func TestRejectThenResubmit(t *testing.T) {
	svc := NewService(newMemoryRepo(), &memoryAuditor{}, nil)
	ctx := context.Background()

	v, err := svc.Register(ctx, validInput(), "user-17")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, v.ID, "", "user-17")
	require.NoError(t, err)

	// Rejection without an explanation is refused.
	_, err = svc.Reject(ctx, v.ID, "", "reviewer-1")
	require.ErrorIs(t, err, ErrValidation)

	v, err = svc.Reject(ctx, v.ID, "missing tax certificate", "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, v.Status)

	// Rejected vendors can fix details and resubmit.
	input := validInput()
	input.TaxID = "TX-4491-B"
	v, err = svc.UpdateDraft(ctx, v.ID, input, "user-17")
	require.NoError(t, err)
	require.Equal(t, "TX-4491-B", v.TaxID)

	v, err = svc.Submit(ctx, v.ID, "", "user-17")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, v.Status)
	require.Nil(t, v.ReviewedBy)
}
