package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/apperr"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/types"
)

const (
	defaultPage        = 1
	defaultLimit       = 20
	maxLimit           = 100
	maxPage            = 1 << 20
	maxMultipartMemory = 8 << 20
	formFieldFile      = "file"
)

// TaskHandler provides HTTP handlers for the caller's tasks.
type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// TaskRouter registers task routes. Every route requires authentication.
func TaskRouter(r chi.Router, taskService *services.TaskService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTaskHandler(taskService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
		r.Patch("/complete", handler.CompleteTask)
		r.Put("/attachment", handler.PutAttachment)
		r.Get("/attachment", handler.GetAttachment)
		r.Delete("/attachment", handler.DeleteAttachment)
	})
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	owner, ok := UserFromContext(r.Context())
	if !ok {
		writeAppError(w, r, apperr.ErrInvalidToken)
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeAppError(w, r, apperr.Validation(err.Error()))
		return
	}
	filter := types.TaskFilter{
		Status:   types.TaskStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Priority: types.TaskPriority(strings.TrimSpace(r.URL.Query().Get("priority"))),
	}

	items, total, err := h.taskService.List(r.Context(), owner, filter, offset, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if items == nil {
		items = []types.Task{}
	}

	writeJSON(w, http.StatusOK, TaskListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.Get(r.Context(), owner, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := UserFromContext(r.Context())
	if !ok {
		writeAppError(w, r, apperr.ErrInvalidToken)
		return
	}
	var req TaskCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	created, err := h.taskService.Create(r.Context(), owner, types.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}
	var patch types.TaskPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeAppError(w, r, err)
		return
	}

	updated, err := h.taskService.Update(r.Context(), owner, id, patch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}
	completed, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("completed")))
	if err != nil {
		writeAppError(w, r, apperr.Validation("completed must be true or false"))
		return
	}

	updated, err := h.taskService.Complete(r.Context(), owner, id, completed)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	if err := h.taskService.Delete(r.Context(), owner, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Task deleted successfully"})
}

func (h *TaskHandler) PutAttachment(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}
	upload, err := parseAttachmentForm(w, r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	updated, err := h.taskService.PutAttachment(r.Context(), owner, id, upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	attachment, body, err := h.taskService.OpenAttachment(r.Context(), owner, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename}))
	w.Header().Set("ETag", strconv.Quote(attachment.SHA256))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (h *TaskHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	updated, err := h.taskService.DeleteAttachment(r.Context(), owner, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// taskRequest resolves the caller and the {taskID} path parameter, writing
// the error response itself when either is missing.
func (h *TaskHandler) taskRequest(w http.ResponseWriter, r *http.Request) (types.User, uuid.UUID, bool) {
	owner, ok := UserFromContext(r.Context())
	if !ok {
		writeAppError(w, r, apperr.ErrInvalidToken)
		return types.User{}, uuid.Nil, false
	}
	id, err := parseTaskID(r)
	if err != nil {
		writeAppError(w, r, err)
		return types.User{}, uuid.Nil, false
	}
	return owner, id, true
}

// TaskCreateRequest is the body of POST /tasks.
type TaskCreateRequest struct {
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Status      types.TaskStatus   `json:"status"`
	Priority    types.TaskPriority `json:"priority"`
	DueDate     *time.Time         `json:"due_date"`
}

// TaskListResponse is the paginated list response payload.
type TaskListResponse struct {
	Items []types.Task `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

// AttachmentUpload is a parsed multipart attachment.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 || page > maxPage {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseTaskID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid task ID format")
	}
	return id, nil
}

func parseAttachmentForm(w http.ResponseWriter, r *http.Request) (AttachmentUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAttachmentBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return AttachmentUpload{}, apperr.Validation("attachment too large")
		}
		return AttachmentUpload{}, apperr.Validation("invalid multipart form")
	}
	return parseAttachmentFile(r.MultipartForm)
}

func parseAttachmentFile(form *multipart.Form) (AttachmentUpload, error) {
	if form == nil {
		return AttachmentUpload{}, apperr.Validation("missing form data")
	}

	files := form.File[formFieldFile]
	if len(files) == 0 {
		return AttachmentUpload{}, apperr.Validation("file is required")
	}
	if len(files) > 1 {
		return AttachmentUpload{}, apperr.Validation("only one file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return AttachmentUpload{}, apperr.Internal(fmt.Errorf("open upload: %w", err))
	}

	data, err := readFileLimited(file, services.MaxAttachmentBytes)
	_ = file.Close()
	if err != nil {
		return AttachmentUpload{}, err
	}

	return AttachmentUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, apperr.Validation("failed to read upload").WithCause(err)
	}
	if int64(len(data)) > limit {
		return nil, apperr.Validation("attachment too large")
	}
	return data, nil
}
