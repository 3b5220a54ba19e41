package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

// memStore is an IdentityStore backed by maps. Setting err makes every call fail.
type memStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]types.User
	writes  int
	err     error
	creates int
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[uuid.UUID]types.User)}
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	user, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	for _, user := range m.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memStore) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.err != nil {
		return types.User{}, m.err
	}
	for _, existing := range m.byID {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	m.writes++
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	m.byID[user.ID] = user
	return user, nil
}

func (m *memStore) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	if _, ok := m.byID[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.writes++
	user.UpdatedAt = time.Now().UTC()
	m.byID[user.ID] = user
	return user, nil
}

func (m *memStore) delete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}
