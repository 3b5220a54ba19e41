package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/apperr"
	"github.com/taskhub/apiserver/internal/auth"
)

// AuthHandler serves sign-up, sign-in and token refresh, plus the account
// endpoints under /users.
type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// AuthRouter registers the public auth routes.
func AuthRouter(r chi.Router, authenticator *auth.Authenticator) {
	handler := NewAuthHandler(authenticator)

	r.Post("/signup", handler.SignUp)
	r.Post("/signin", handler.SignIn)
	r.Post("/refresh", handler.Refresh)
	r.Post("/signout", handler.SignOut)
}

// UserRouter registers account routes. Every route requires authentication.
func UserRouter(r chi.Router, authenticator *auth.Authenticator, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAuthHandler(authenticator)

	r.Use(authMiddleware)
	r.Get("/me", handler.Me)
	r.Post("/me/deactivate", handler.DeactivateMe)
	r.Post("/{userID}/activate", handler.Activate)
}

// RequireAuth resolves the bearer token to a user and stores it in the
// request context.
func RequireAuth(authorizer *auth.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authorizer.Authorize(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	session, err := h.authenticator.Register(r.Context(), strings.TrimSpace(req.Email), req.Password, req.ConfirmPassword)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Success: true, Session: session})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeAppError(w, r, apperr.Validation("email and password are required"))
		return
	}

	session, err := h.authenticator.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, Session: session})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeAppError(w, r, apperr.Validation("Refresh token is required"))
		return
	}

	access, err := h.authenticator.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Success: true, AccessToken: access, TokenType: "bearer"})
}

// SignOut is a no-op: tokens are stateless and discarded by the client.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Successfully signed out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeAppError(w, r, apperr.ErrInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (h *AuthHandler) DeactivateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeAppError(w, r, apperr.ErrInvalidToken)
		return
	}

	updated, err := h.authenticator.Deactivate(r.Context(), user, user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Public())
}

func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	actor, ok := UserFromContext(r.Context())
	if !ok {
		writeAppError(w, r, apperr.ErrInvalidToken)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeAppError(w, r, apperr.Validation("Invalid user ID format"))
		return
	}

	updated, err := h.authenticator.Activate(r.Context(), actor, targetID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Public())
}

type SignUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse flattens auth.Session next to the success flag.
type SessionResponse struct {
	Success bool `json:"success"`
	auth.Session
}

type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
