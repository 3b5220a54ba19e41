package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/types"
)

func encodeTaskEvent(event types.TaskEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeTaskEvent parses a message published by TaskService.
func DecodeTaskEvent(data []byte) (types.TaskEvent, error) {
	var event types.TaskEvent
	err := json.Unmarshal(data, &event)
	return event, err
}

// TaskEventLogger returns an mq.Handler that records task activity.
// Undecodable messages are logged and acknowledged so they are not redelivered.
func TaskEventLogger(logger *slog.Logger) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		event, err := DecodeTaskEvent(msg.Data)
		if err != nil {
			logger.ErrorContext(ctx, "drop malformed task event", slog.String("message_id", msg.ID), slog.Any("error", err))
			return nil
		}
		logger.InfoContext(ctx, "task activity",
			slog.String("message_id", msg.ID),
			slog.String("type", string(event.Type)),
			slog.String("task_id", event.TaskID.String()),
			slog.String("user_id", event.UserID.String()),
			slog.String("status", string(event.Status)),
			slog.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}
}
