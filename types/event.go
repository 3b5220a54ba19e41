package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskEventType names a change to a task.
type TaskEventType string

const (
	TaskEventCreated   TaskEventType = "task.created"
	TaskEventUpdated   TaskEventType = "task.updated"
	TaskEventCompleted TaskEventType = "task.completed"
	TaskEventReopened  TaskEventType = "task.reopened"
	TaskEventDeleted   TaskEventType = "task.deleted"
)

// TaskEvent is the message published to the task events channel.
type TaskEvent struct {
	Type       TaskEventType `json:"type"`
	TaskID     uuid.UUID     `json:"task_id"`
	UserID     uuid.UUID     `json:"user_id"`
	Status     TaskStatus    `json:"status,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
