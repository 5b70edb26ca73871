// Package notify fans transfer events out to the Redis stream consumed by
// warehouse dashboards and enqueues follow-up background work.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-scm/meridian-scm/internal/transfer"
	"github.com/meridian-scm/meridian-scm/jobs"
)

// StreamKey is the Redis stream carrying transfer events.
const StreamKey = "transfers:events"

const maxStreamLen = 10000

// Notifier publishes transfer events. Failures are logged and swallowed so
// a Redis outage never rolls back a committed transfer.
type Notifier struct {
	logger *slog.Logger
	redis  *redis.Client
	queue  *asynq.Client
}

// New constructs a Notifier. The asynq client may be nil when background
// processing is disabled.
func New(logger *slog.Logger, rdb *redis.Client, queue *asynq.Client) *Notifier {
	return &Notifier{logger: logger, redis: rdb, queue: queue}
}

// TransferEvent publishes the event to the stream and, for terminal status
// changes, schedules a digest refresh.
func (n *Notifier) TransferEvent(ctx context.Context, evt transfer.Event) {
	if n == nil {
		return
	}
	if n.redis != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			n.logger.Error("marshal transfer event", slog.Any("error", err))
			return
		}
		err = n.redis.XAdd(ctx, &redis.XAddArgs{
			Stream: StreamKey,
			MaxLen: maxStreamLen,
			Approx: true,
			Values: map[string]any{
				"event":  string(payload),
				"action": string(evt.Action),
				"number": evt.TransferNumber,
				"actor":  evt.Actor,
			},
		}).Err()
		if err != nil {
			n.logger.Error("publish transfer event",
				slog.String("number", evt.TransferNumber),
				slog.Any("error", err))
		}
	}
	if n.queue != nil && terminalAction(evt) {
		task, err := jobs.NewTransferDigestTask(jobs.TransferDigestPayload{
			TransferID:     evt.TransferID,
			TransferNumber: evt.TransferNumber,
			FinalStatus:    string(evt.NewStatus),
		})
		if err != nil {
			n.logger.Error("build digest task", slog.Any("error", err))
			return
		}
		if _, err := n.queue.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
			n.logger.Error("enqueue digest task",
				slog.String("number", evt.TransferNumber),
				slog.Any("error", err))
		}
	}
}

// terminalAction reports whether the event closed out the transfer.
func terminalAction(evt transfer.Event) bool {
	switch evt.Action {
	case transfer.ActionCancel, transfer.ActionReturnDispatch:
		return true
	case transfer.ActionStatusChange:
		switch evt.NewStatus {
		case string(transfer.StatusReceived), string(transfer.StatusRejected):
			return true
		}
	}
	return false
}
