package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/apperr"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

const (
	defaultTaskLimit = 20
	maxTaskLimit     = 100
)

// ErrAttachmentsDisabled is returned when no object storage backend is configured.
var ErrAttachmentsDisabled = &apperr.Error{
	Kind:    apperr.KindUnavailable,
	Code:    "ATTACHMENTS_DISABLED",
	Message: "Attachments are not enabled",
}

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// ObjectStore is the subset of object storage used for attachments.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher sends task events to a message channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// TaskService encapsulates task use-cases. Every operation is scoped to the
// owner passed in, so a task owned by someone else is reported as not found.
type TaskService struct {
	repo    TaskRepository
	objects ObjectStore
	events  EventPublisher
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

// TaskOption configures optional TaskService collaborators.
type TaskOption func(*TaskService)

// WithObjectStore enables attachments.
func WithObjectStore(objects ObjectStore) TaskOption {
	return func(s *TaskService) { s.objects = objects }
}

// WithEventPublisher enables task events on channel.
func WithEventPublisher(events EventPublisher, channel string) TaskOption {
	return func(s *TaskService) {
		s.events = events
		s.channel = channel
	}
}

func WithTaskLogger(logger *slog.Logger) TaskOption {
	return func(s *TaskService) { s.logger = logger }
}

func NewTaskService(repo TaskRepository, opts ...TaskOption) *TaskService {
	s := &TaskService{
		repo:   repo,
		logger: slog.New(slog.DiscardHandler),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) List(ctx context.Context, owner types.User, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.Validation("invalid status filter")
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, 0, apperr.Validation("invalid priority filter")
	}
	if limit <= 0 {
		limit = defaultTaskLimit
	}
	if limit > maxTaskLimit {
		limit = maxTaskLimit
	}

	tasks, total, err := s.repo.ListByUser(ctx, owner.ID, filter, offset, limit)
	if err != nil {
		return nil, 0, apperr.Unavailable(err)
	}
	return tasks, total, nil
}

func (s *TaskService) Get(ctx context.Context, owner types.User, id uuid.UUID) (types.Task, error) {
	task, err := s.repo.GetForUser(ctx, id, owner.ID)
	if err != nil {
		return types.Task{}, taskRepoError(err)
	}
	return task, nil
}

// Create stores a new task for owner. Deactivated accounts may not create tasks.
func (s *TaskService) Create(ctx context.Context, owner types.User, task types.Task) (types.Task, error) {
	if !owner.IsActive {
		return types.Task{}, apperr.AccessDenied("User account is deactivated")
	}

	task.ID = uuid.Nil
	task.UserID = owner.ID
	task.Attachment = nil
	if task.Status == "" {
		task.Status = types.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = types.TaskPriorityMedium
	}
	task.CompletedAt = nil
	if task.Status == types.TaskStatusCompleted {
		now := s.now()
		task.CompletedAt = &now
	}
	if err := normalizeTask(&task); err != nil {
		return types.Task{}, err
	}

	created, err := s.repo.Create(ctx, task)
	if err != nil {
		return types.Task{}, apperr.Unavailable(err)
	}

	s.publish(ctx, types.TaskEventCreated, created)
	return created, nil
}

// Update applies patch to the owner's task.
func (s *TaskService) Update(ctx context.Context, owner types.User, id uuid.UUID, patch types.TaskPatch) (types.Task, error) {
	task, err := s.repo.GetForUser(ctx, id, owner.ID)
	if err != nil {
		return types.Task{}, taskRepoError(err)
	}
	previous := task.Status

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = patch.Description
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if err := normalizeTask(&task); err != nil {
		return types.Task{}, err
	}
	s.applyCompletion(&task, previous)

	updated, err := s.repo.Update(ctx, task)
	if err != nil {
		return types.Task{}, taskRepoError(err)
	}

	s.publish(ctx, transitionEvent(previous, updated.Status), updated)
	return updated, nil
}

// Complete marks the owner's task completed, or pending when completed is false.
func (s *TaskService) Complete(ctx context.Context, owner types.User, id uuid.UUID, completed bool) (types.Task, error) {
	status := types.TaskStatusPending
	if completed {
		status = types.TaskStatusCompleted
	}
	return s.Update(ctx, owner, id, types.TaskPatch{Status: &status})
}

func (s *TaskService) Delete(ctx context.Context, owner types.User, id uuid.UUID) error {
	task, err := s.repo.GetForUser(ctx, id, owner.ID)
	if err != nil {
		return taskRepoError(err)
	}

	if err := s.repo.Delete(ctx, id, owner.ID); err != nil {
		return taskRepoError(err)
	}

	if task.Attachment != nil {
		s.removeObject(ctx, task.Attachment.ObjectKey)
	}
	s.publish(ctx, types.TaskEventDeleted, task)
	return nil
}

func (s *TaskService) applyCompletion(task *types.Task, previous types.TaskStatus) {
	switch {
	case task.Status == types.TaskStatusCompleted && previous != types.TaskStatusCompleted:
		now := s.now()
		task.CompletedAt = &now
	case task.Status != types.TaskStatusCompleted:
		task.CompletedAt = nil
	}
}

func (s *TaskService) publish(ctx context.Context, eventType types.TaskEventType, task types.Task) {
	if s.events == nil {
		return
	}

	event := types.TaskEvent{
		Type:       eventType,
		TaskID:     task.ID,
		UserID:     task.UserID,
		Status:     task.Status,
		OccurredAt: s.now(),
	}
	data, err := encodeTaskEvent(event)
	if err != nil {
		s.logger.Error("encode task event", slog.String("type", string(eventType)), slog.Any("error", err))
		return
	}

	attrs := map[string]string{
		"type":    string(eventType),
		"user_id": task.UserID.String(),
	}
	if _, err := s.events.Publish(ctx, s.channel, data, attrs); err != nil {
		s.logger.Warn("publish task event failed",
			slog.String("type", string(eventType)),
			slog.String("task_id", task.ID.String()),
			slog.Any("error", err),
		)
	}
}

func transitionEvent(previous, current types.TaskStatus) types.TaskEventType {
	switch {
	case current == types.TaskStatusCompleted && previous != types.TaskStatusCompleted:
		return types.TaskEventCompleted
	case previous == types.TaskStatusCompleted && current != types.TaskStatusCompleted:
		return types.TaskEventReopened
	default:
		return types.TaskEventUpdated
	}
}

func normalizeTask(task *types.Task) error {
	task.Title = strings.TrimSpace(task.Title)
	titleLen := utf8.RuneCountInString(task.Title)
	if titleLen == 0 {
		return apperr.Validation("title is required")
	}
	if titleLen > types.MaxTaskTitleLength {
		return apperr.Validation("title must be at most 200 characters")
	}
	if task.Description != nil && utf8.RuneCountInString(*task.Description) > types.MaxTaskDescriptionLength {
		return apperr.Validation("description must be at most 1000 characters")
	}
	if !task.Status.Valid() {
		return apperr.Validation("invalid status")
	}
	if !task.Priority.Valid() {
		return apperr.Validation("invalid priority")
	}
	return nil
}

func taskRepoError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Task")
	}
	return apperr.Unavailable(err)
}
