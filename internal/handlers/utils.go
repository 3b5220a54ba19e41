package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/taskhub/apiserver/internal/apperr"
	"github.com/taskhub/apiserver/internal/logger"
	"github.com/taskhub/apiserver/types"
)

const maxJSONBodyBytes = 1 << 20

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// MessageResponse acknowledges an operation that has no resource to return.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// UserFromContext returns the user resolved by RequireAuth.
func UserFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeAppError maps a service error to its HTTP status. Causes are logged,
// never returned.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.As(err)
	if ae == nil {
		ae = apperr.Internal(err)
	}

	status := statusForError(ae)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			slog.String("code", ae.Code),
			slog.String("kind", ae.Kind.String()),
			slog.Any("error", ae.Cause),
		)
	} else if ae.Cause != nil {
		logger.FromContext(r.Context()).DebugContext(r.Context(), "request rejected",
			slog.String("code", ae.Code),
			slog.Any("error", ae.Cause),
		)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeError(w, status, ae.Code, ae.Message)
}

func statusForError(ae *apperr.Error) int {
	if errors.Is(ae, apperr.ErrInvalidScheme) {
		return http.StatusForbidden
	}
	switch ae.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication, apperr.KindAuthorization:
		return http.StatusUnauthorized
	case apperr.KindAccessDenied:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body").WithCause(err)
	}
	return nil
}
