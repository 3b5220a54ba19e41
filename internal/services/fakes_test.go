package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]types.Task
	err   error

	// updateErr fails Update only.
	updateErr error
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[uuid.UUID]types.Task)}
}

func (m *memTaskRepo) ListByUser(_ context.Context, userID uuid.UUID, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var matched []types.Task
	for _, task := range m.tasks {
		if task.UserID != userID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && task.Priority != filter.Priority {
			continue
		}
		matched = append(matched, task)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memTaskRepo) GetForUser(_ context.Context, id, userID uuid.UUID) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.Task{}, m.err
	}
	task, ok := m.tasks[id]
	if !ok || task.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (m *memTaskRepo) Create(_ context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.Task{}, m.err
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.CreatedAt = time.Now().UTC()
	task.UpdatedAt = task.CreatedAt
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memTaskRepo) Update(_ context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.Task{}, m.err
	}
	if m.updateErr != nil {
		return types.Task{}, m.updateErr
	}
	existing, ok := m.tasks[task.ID]
	if !ok || existing.UserID != task.UserID {
		return types.Task{}, store.ErrNotFound
	}
	task.UpdatedAt = time.Now().UTC()
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memTaskRepo) Delete(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	task, ok := m.tasks[id]
	if !ok || task.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

type publishedEvent struct {
	channel string
	event   types.TaskEvent
	attrs   map[string]string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	event, err := DecodeTaskEvent(data)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{channel: channel, event: event, attrs: attrs})
	return uuid.NewString(), nil
}

func (p *recordingPublisher) eventTypes() []types.TaskEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.TaskEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

var errStoreDown = errors.New("store down")
