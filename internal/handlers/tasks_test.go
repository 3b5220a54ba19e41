package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/apiserver/types"
)

func TestTaskCRUD(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp(t, "a@x.com").AccessToken

	rec := api.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "Buy milk", "priority": "high"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[types.Task](t, rec)
	assert.Equal(t, types.TaskStatusPending, created.Status)
	assert.Equal(t, types.TaskPriorityHigh, created.Priority)

	path := "/api/tasks/" + created.ID.String()

	rec = api.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Buy milk", decodeBody[types.Task](t, rec).Title)

	rec = api.do(t, http.MethodPut, path, token, map[string]any{"title": "Buy oat milk", "status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[types.Task](t, rec)
	assert.Equal(t, "Buy oat milk", updated.Title)
	assert.Equal(t, types.TaskStatusInProgress, updated.Status)

	rec = api.do(t, http.MethodPatch, path+"/complete?completed=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decodeBody[types.Task](t, rec)
	assert.Equal(t, types.TaskStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	rec = api.do(t, http.MethodPatch, path+"/complete?completed=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task deleted successfully", decodeBody[MessageResponse](t, rec).Message)

	rec = api.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskValidationAndOwnership(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp(t, "alice@x.com").AccessToken
	bob := api.signUp(t, "bob@x.com").AccessToken

	rec := api.do(t, http.MethodPost, "/api/tasks", alice, map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/tasks/not-a-uuid", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/tasks", alice, map[string]any{"title": "mine"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[types.Task](t, rec).ID.String()

	rec = api.do(t, http.MethodGet, "/api/tasks/"+id, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodDelete, "/api/tasks/"+id, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListTasksPagination(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp(t, "a@x.com").AccessToken
	for i := 0; i < 3; i++ {
		rec := api.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "task " + strconv.Itoa(i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := api.do(t, http.MethodGet, "/api/tasks?page=2&limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[TaskListResponse](t, rec)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Page)
	assert.Equal(t, 2, list.Limit)
	assert.Len(t, list.Items, 1)

	rec = api.do(t, http.MethodGet, "/api/tasks?status=completed", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"page":1,"limit":20,"total":0}`, rec.Body.String())

	for _, query := range []string{"?page=0", "?page=9223372036854775807", "?page=1048577", "?limit=-1", "?status=archived"} {
		rec = api.do(t, http.MethodGet, "/api/tasks"+query, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestParsePaginationBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks?page=1048576&limit=100", nil)
	page, limit, offset, err := parsePagination(req)
	require.NoError(t, err)
	assert.Equal(t, maxPage, page)
	assert.Equal(t, 100, limit)
	assert.Equal(t, (maxPage-1)*100, offset)

	_, _, _, err = parsePagination(httptest.NewRequest(http.MethodGet, "/api/tasks?page=1048577", nil))
	assert.Error(t, err)
}

func TestAttachmentEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp(t, "a@x.com").AccessToken
	rec := api.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "with file"})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/api/tasks/" + decodeBody[types.Task](t, rec).ID.String() + "/attachment"

	rec = api.upload(t, path, token, "wrong", "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.upload(t, path, token, "file", "notes.txt", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	task := decodeBody[types.Task](t, rec)
	require.NotNil(t, task.Attachment)
	assert.Equal(t, "notes.txt", task.Attachment.Filename)

	rec = api.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename=notes.txt`, rec.Header().Get("Content-Disposition"))

	rec = api.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[types.Task](t, rec).Attachment)

	rec = api.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/tasks/"+uuid.NewString()+"/attachment", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
