package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// TaskPriority ranks tasks for the owner.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

const (
	MaxTaskTitleLength       = 200
	MaxTaskDescriptionLength = 1000
)

// Task is a unit of work owned by exactly one user.
type Task struct {
	// ID is the unique identifier of the task.
	ID uuid.UUID `json:"id" db:"id"`

	// UserID is the owning user. Every lookup is scoped by it.
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	// Title is a short, required summary (1 to 200 characters).
	Title string `json:"title" db:"title"`

	// Description is optional free text (up to 1000 characters).
	Description *string `json:"description" db:"description"`

	Status   TaskStatus   `json:"status" db:"status"`
	Priority TaskPriority `json:"priority" db:"priority"`

	// DueDate is an optional deadline.
	DueDate *time.Time `json:"due_date" db:"due_date"`

	// CompletedAt is set when Status transitions to completed and cleared when reopened.
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`

	// Attachment references a single file kept in object storage, if any.
	Attachment *Attachment `json:"attachment,omitempty" db:"attachment"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment describes a file stored in object storage for a task.
type Attachment struct {
	// ObjectKey is the path of the object in the configured bucket.
	ObjectKey string `json:"object_key"`

	// Filename is the client-supplied name, used for downloads.
	Filename string `json:"filename"`

	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`

	// SHA256 is the hex-encoded digest of the object contents.
	SHA256 string `json:"sha256"`
}

// TaskFilter narrows a task listing. Zero values mean "any".
type TaskFilter struct {
	Status   TaskStatus
	Priority TaskPriority
}

// TaskPatch carries a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Status      *TaskStatus   `json:"status"`
	Priority    *TaskPriority `json:"priority"`
	DueDate     *time.Time    `json:"due_date"`
}
