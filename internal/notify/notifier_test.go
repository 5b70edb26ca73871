package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-scm/meridian-scm/internal/transfer"
)

func testEvent(action transfer.Action, newStatus string) transfer.Event {
	return transfer.Event{
		ID:             "evt-1",
		TransferID:     42,
		TransferNumber: "TRF-2026-000042",
		Action:         action,
		PrevStatus:     string(transfer.StatusInTransit),
		NewStatus:      newStatus,
		Actor:          "user-17",
		OccurredAt:     time.Now().UTC(),
	}
}

func TestTransferEventPublishesToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := New(slog.Default(), client, nil)
	evt := testEvent(transfer.ActionDispatch, string(transfer.StatusInTransit))
	n.TransferEvent(context.Background(), evt)

	entries, err := client.XRange(context.Background(), StreamKey, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "TRF-2026-000042", entries[0].Values["number"])
	require.Equal(t, string(transfer.ActionDispatch), entries[0].Values["action"])

	var decoded transfer.Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["event"].(string)), &decoded))
	require.Equal(t, evt.TransferID, decoded.TransferID)
	require.Equal(t, evt.Actor, decoded.Actor)
}

func TestTransferEventSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	n := New(slog.Default(), client, nil)
	// Must not panic or propagate the failure.
	n.TransferEvent(context.Background(), testEvent(transfer.ActionCancel, string(transfer.StatusCancelled)))
}

func TestTerminalAction(t *testing.T) {
	require.True(t, terminalAction(testEvent(transfer.ActionCancel, string(transfer.StatusCancelled))))
	require.True(t, terminalAction(testEvent(transfer.ActionReturnDispatch, string(transfer.StatusReturned))))
	require.True(t, terminalAction(testEvent(transfer.ActionStatusChange, string(transfer.StatusReceived))))
	require.True(t, terminalAction(testEvent(transfer.ActionStatusChange, string(transfer.StatusRejected))))
	require.False(t, terminalAction(testEvent(transfer.ActionStatusChange, string(transfer.StatusPartialReceived))))
	require.False(t, terminalAction(testEvent(transfer.ActionReceive, string(transfer.ItemStatusAccepted))))
	require.False(t, terminalAction(testEvent(transfer.ActionDispatch, string(transfer.StatusInTransit))))
}
