//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"
)

type sessionResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		IsActive bool   `json:"is_active"`
	} `json:"user"`
}

type taskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	CompletedAt *string `json:"completed_at"`
	Attachment  *struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	} `json:"attachment"`
}

type taskListResponse struct {
	Items []taskResponse `json:"items"`
	Total int            `json:"total"`
}

func TestAuthLifecycle(t *testing.T) {
	email := fmt.Sprintf("user_%d@example.com", time.Now().UnixNano())

	var session sessionResponse
	status := doJSON(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "pw1", "confirm_password": "pw1",
	}, &session)
	if status != http.StatusCreated {
		t.Fatalf("signup status %d", status)
	}
	if session.AccessToken == "" || session.RefreshToken == "" || session.TokenType != "bearer" {
		t.Fatalf("unexpected session: %+v", session)
	}

	if status := doJSON(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "pw1", "confirm_password": "pw1",
	}, nil); status != http.StatusConflict {
		t.Fatalf("duplicate signup status %d, want 409", status)
	}

	if status := doJSON(t, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": email, "password": "wrong",
	}, nil); status != http.StatusUnauthorized {
		t.Fatalf("bad password status %d, want 401", status)
	}

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	if status := doJSON(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": session.RefreshToken,
	}, &refreshed); status != http.StatusOK || refreshed.AccessToken == "" {
		t.Fatalf("refresh status %d", status)
	}

	if status := doJSON(t, http.MethodGet, "/api/users/me", refreshed.AccessToken, nil, nil); status != http.StatusOK {
		t.Fatalf("me status %d", status)
	}
	if status := doJSON(t, http.MethodGet, "/api/users/me", "", nil, nil); status != http.StatusForbidden {
		t.Fatalf("me without header status %d, want 403", status)
	}

	if status := doJSON(t, http.MethodPost, "/api/users/me/deactivate", session.AccessToken, nil, nil); status != http.StatusOK {
		t.Fatalf("deactivate status %d", status)
	}
	if status := doJSON(t, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": email, "password": "pw1",
	}, nil); status != http.StatusUnauthorized {
		t.Fatalf("deactivated signin status %d, want 401", status)
	}
}

func TestTaskLifecycle(t *testing.T) {
	token := signUp(t)

	var created taskResponse
	if status := doJSON(t, http.MethodPost, "/api/tasks", token, map[string]string{
		"title": "Write e2e tests", "priority": "high",
	}, &created); status != http.StatusCreated {
		t.Fatalf("create status %d", status)
	}
	if created.Status != "pending" {
		t.Fatalf("unexpected status %q", created.Status)
	}

	var completed taskResponse
	if status := doJSON(t, http.MethodPatch, "/api/tasks/"+created.ID+"/complete?completed=true", token, nil, &completed); status != http.StatusOK {
		t.Fatalf("complete status %d", status)
	}
	if completed.Status != "completed" || completed.CompletedAt == nil {
		t.Fatalf("task not completed: %+v", completed)
	}

	var list taskListResponse
	if status := doJSON(t, http.MethodGet, "/api/tasks?status=completed", token, nil, &list); status != http.StatusOK {
		t.Fatalf("list status %d", status)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	other := signUp(t)
	if status := doJSON(t, http.MethodGet, "/api/tasks/"+created.ID, other, nil, nil); status != http.StatusNotFound {
		t.Fatalf("foreign get status %d, want 404", status)
	}

	withFile := uploadAttachment(t, token, created.ID, "notes.txt", []byte("hello"))
	if withFile.Attachment == nil || withFile.Attachment.Size != 5 {
		t.Fatalf("attachment missing: %+v", withFile)
	}
	if body := download(t, token, created.ID); string(body) != "hello" {
		t.Fatalf("unexpected attachment body %q", body)
	}

	if status := doJSON(t, http.MethodDelete, "/api/tasks/"+created.ID, token, nil, nil); status != http.StatusOK {
		t.Fatalf("delete status %d", status)
	}
	if status := doJSON(t, http.MethodGet, "/api/tasks/"+created.ID, token, nil, nil); status != http.StatusNotFound {
		t.Fatalf("get after delete status %d, want 404", status)
	}
}

func signUp(t *testing.T) string {
	t.Helper()
	var session sessionResponse
	status := doJSON(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":            fmt.Sprintf("tasks_%d@example.com", time.Now().UnixNano()),
		"password":         "testpass123!",
		"confirm_password": "testpass123!",
	}, &session)
	if status != http.StatusCreated {
		t.Fatalf("signup status %d", status)
	}
	return session.AccessToken
}

func doJSON(t *testing.T, method, path, token string, payload, out any) int {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func uploadAttachment(t *testing.T, token, taskID, filename string, data []byte) taskResponse {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write(data)
	if err := writer.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req, err := http.NewRequest(http.MethodPut, baseURL+"/api/tasks/"+taskID+"/attachment", &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var parsed taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	return parsed
}

func download(t *testing.T, token, taskID string) []byte {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/tasks/"+taskID+"/attachment", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	return data
}
