package vendors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-scm/meridian-scm/internal/shared"
)

// RepositoryPort is what the service needs from persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Vendor, error)
	List(ctx context.Context, status *Status, limit, offset int) ([]Vendor, int, error)
	Insert(ctx context.Context, v Vendor) (Vendor, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) (Vendor, error)
	UpdateDetails(ctx context.Context, v Vendor) (Vendor, error)
}

// Auditor records portal-level audit entries.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyGuard deduplicates retried submissions.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Service implements the onboarding lifecycle.
type Service struct {
	repo        RepositoryPort
	auditor     Auditor
	idempotency IdempotencyGuard
}

func NewService(repo RepositoryPort, auditor Auditor, idempotency IdempotencyGuard) *Service {
	return &Service{repo: repo, auditor: auditor, idempotency: idempotency}
}

// RegisterInput carries the fields of a new vendor draft.
type RegisterInput struct {
	Name         string
	TaxID        string
	ContactEmail string
	ContactPhone string
	Address      string
}

func (s *Service) Register(ctx context.Context, input RegisterInput, actor string) (Vendor, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Vendor{}, ErrUnauthenticated
	}
	if err := validateInput(input); err != nil {
		return Vendor{}, err
	}
	created, err := s.repo.Insert(ctx, Vendor{
		Name:         strings.TrimSpace(input.Name),
		TaxID:        strings.TrimSpace(input.TaxID),
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		ContactPhone: strings.TrimSpace(input.ContactPhone),
		Address:      strings.TrimSpace(input.Address),
		Status:       StatusDraft,
		CreatedBy:    actor,
	})
	if err != nil {
		return Vendor{}, err
	}
	s.audit(ctx, actor, "vendor.register", created.ID, nil)
	return created, nil
}

func (s *Service) UpdateDraft(ctx context.Context, id int64, input RegisterInput, actor string) (Vendor, error) {
	if strings.TrimSpace(actor) == "" {
		return Vendor{}, ErrUnauthenticated
	}
	if err := validateInput(input); err != nil {
		return Vendor{}, err
	}
	updated, err := s.repo.UpdateDetails(ctx, Vendor{
		ID:           id,
		Name:         strings.TrimSpace(input.Name),
		TaxID:        strings.TrimSpace(input.TaxID),
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		ContactPhone: strings.TrimSpace(input.ContactPhone),
		Address:      strings.TrimSpace(input.Address),
	})
	if err != nil {
		return Vendor{}, err
	}
	s.audit(ctx, actor, "vendor.update", id, nil)
	return updated, nil
}

// Submit sends a draft (or previously rejected) vendor for review. The
// idempotency key lets clients safely retry the submission.
func (s *Service) Submit(ctx context.Context, id int64, idempotencyKey, actor string) (Vendor, error) {
	if strings.TrimSpace(actor) == "" {
		return Vendor{}, ErrUnauthenticated
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	// The key is consulted before the status guard so a retried submission
	// is absorbed even after the first attempt already moved the vendor on.
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "vendors"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return current, nil
			}
			return Vendor{}, err
		}
	}
	if !current.Status.CanSubmit() {
		return Vendor{}, fmt.Errorf("%w: cannot submit vendor in status %s", ErrInvalidTransition, current.Status)
	}
	now := time.Now()
	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, StatusSubmitted, map[string]any{
		"submitted_at":   now,
		"reviewed_by":    nil,
		"reviewed_at":    nil,
		"review_comment": nil,
	})
	if err != nil {
		return Vendor{}, err
	}
	s.audit(ctx, actor, "vendor.submit", id, nil)
	return updated, nil
}

func (s *Service) Approve(ctx context.Context, id int64, comment, actor string) (Vendor, error) {
	return s.review(ctx, id, StatusApproved, "vendor.approve", comment, actor)
}

func (s *Service) Reject(ctx context.Context, id int64, comment, actor string) (Vendor, error) {
	if strings.TrimSpace(comment) == "" {
		return Vendor{}, fmt.Errorf("%w: rejection comment is required", ErrValidation)
	}
	return s.review(ctx, id, StatusRejected, "vendor.reject", comment, actor)
}

func (s *Service) review(ctx context.Context, id int64, to Status, action, comment, actor string) (Vendor, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Vendor{}, ErrUnauthenticated
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	if !current.Status.CanReview() {
		return Vendor{}, fmt.Errorf("%w: cannot review vendor in status %s", ErrInvalidTransition, current.Status)
	}
	updates := map[string]any{
		"reviewed_by": actor,
		"reviewed_at": time.Now(),
	}
	if strings.TrimSpace(comment) != "" {
		updates["review_comment"] = strings.TrimSpace(comment)
	}
	updated, err := s.repo.UpdateStatus(ctx, id, StatusSubmitted, to, updates)
	if err != nil {
		return Vendor{}, err
	}
	s.audit(ctx, actor, action, id, map[string]any{"comment": comment})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status *Status, limit, offset int) ([]Vendor, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) audit(ctx context.Context, actor, action string, id int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "vendor",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func validateInput(input RegisterInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: vendor name is required", ErrValidation)
	}
	if strings.TrimSpace(input.TaxID) == "" {
		return fmt.Errorf("%w: tax id is required", ErrValidation)
	}
	if strings.TrimSpace(input.ContactEmail) == "" {
		return fmt.Errorf("%w: contact email is required", ErrValidation)
	}
	return nil
}
