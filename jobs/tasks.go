// Package jobs defines background tasks processed by the Asynq worker.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeTransferDigest rebuilds the per-warehouse digest after a
	// transfer reaches a terminal status.
	TaskTypeTransferDigest = "transfers:digest"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: SMTP delivery lands with the notifications rollout.
	slog.Default().Info("send email",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}

// TransferDigestPayload identifies the transfer whose digest is stale.
type TransferDigestPayload struct {
	TransferID     int64  `json:"transfer_id"`
	TransferNumber string `json:"transfer_number"`
	FinalStatus    string `json:"final_status"`
}

// NewTransferDigestTask constructs an Asynq task.
func NewTransferDigestTask(payload TransferDigestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTransferDigest, data), nil
}

// HandleTransferDigestTask processes TaskTypeTransferDigest tasks.
func HandleTransferDigestTask(ctx context.Context, t *asynq.Task) error {
	var payload TransferDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("refresh transfer digest",
		slog.String("number", payload.TransferNumber),
		slog.String("final_status", payload.FinalStatus))
	return nil
}
