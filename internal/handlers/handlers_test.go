package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

type memTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]types.Task
}

func (m *memTasks) ListByUser(_ context.Context, userID uuid.UUID, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Task
	for _, t := range m.tasks {
		if t.UserID == userID && (filter.Status == "" || t.Status == filter.Status) {
			out = append(out, t)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	if offset+limit < total {
		out = out[offset : offset+limit]
	} else {
		out = out[offset:]
	}
	return out, total, nil
}

func (m *memTasks) GetForUser(_ context.Context, id, userID uuid.UUID) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memTasks) Create(_ context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = uuid.New()
	task.CreatedAt = time.Now().UTC()
	task.UpdatedAt = task.CreatedAt
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memTasks) Update(_ context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[task.ID]; !ok || t.UserID != task.UserID {
		return types.Task{}, store.ErrNotFound
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memTasks) Delete(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; !ok || t.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

type testAPI struct {
	handler http.Handler
	users   *memUsers
	codec   *auth.TokenCodec
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	users := &memUsers{users: make(map[uuid.UUID]types.User)}
	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: "handler-secret", AccessTTL: time.Hour})
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator(users, auth.NewPasswordHasher(bcrypt.MinCost), codec)
	require.NoError(t, err)
	taskService := services.NewTaskService(&memTasks{tasks: make(map[uuid.UUID]types.Task)},
		services.WithObjectStore(storage.NewMemoryStorage("test")))
	authMiddleware := RequireAuth(auth.NewAuthorizer(users, codec))

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) { AuthRouter(r, authenticator) })
		r.Route("/users", func(r chi.Router) { UserRouter(r, authenticator, authMiddleware) })
		r.Route("/tasks", func(r chi.Router) { TaskRouter(r, taskService, authMiddleware) })
	})
	return &testAPI{handler: r, users: users, codec: codec}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(t *testing.T, path, token, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) signUp(t *testing.T, email string) SessionResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/signup", "", SignUpRequest{Email: email, Password: "pw1", ConfirmPassword: "pw1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
