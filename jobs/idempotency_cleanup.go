package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
const TaskTypeIdempotencyCleanup = "maintenance:idempotency-cleanup"

const idempotencyRetention = 7 * 24 * time.Hour

// IdempotencyStore is the subset of shared.IdempotencyStore the job needs.
type IdempotencyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

type idempotencyCleanupPayload struct {
	Retention string `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the scheduled cleanup task.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	data, err := json.Marshal(idempotencyCleanupPayload{Retention: idempotencyRetention.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, data), nil
}

// IdempotencyCleanupJob removes stale idempotency keys.
type IdempotencyCleanupJob struct {
	store  IdempotencyStore
	logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger}
}

// Handle processes TaskTypeIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload idempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := idempotencyRetention
	if d, err := time.ParseDuration(payload.Retention); err == nil && d > 0 {
		retention = d
	}
	if err := j.store.Cleanup(ctx, retention); err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}
