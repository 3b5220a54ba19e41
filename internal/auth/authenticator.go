// Package auth implements password hashing, token issuance and verification,
// credential authentication and request authorization.
//
// Tokens are stateless: a token is valid until it expires or fails signature
// verification. Deleting a user row is the only way to invalidate its
// outstanding tokens, because the authorizer resolves the subject on every
// request.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/apperr"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

const tokenTypeBearer = "bearer"

// IdentityStore is the user persistence consumed by the auth core.
// Implementations return store.ErrNotFound for missing rows and
// store.ErrConflict for unique violations.
type IdentityStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// Session is the result of a successful sign-up or sign-in.
type Session struct {
	User         types.PublicUser `json:"user"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
}

// Authenticator verifies credentials and mints token pairs.
type Authenticator struct {
	users  IdentityStore
	hasher PasswordHasher
	tokens *TokenCodec

	// dummyHash is compared against when the email is unknown so both
	// rejection paths cost one bcrypt comparison.
	dummyHash string
}

func NewAuthenticator(users IdentityStore, hasher PasswordHasher, tokens *TokenCodec) (*Authenticator, error) {
	dummy, err := hasher.HashPassword(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		dummyHash: dummy,
	}, nil
}

// Authenticate checks email and password. Unknown email and wrong password
// both yield apperr.ErrInvalidCredentials; a deactivated account with a
// correct password yields apperr.ErrAccountDeactivated.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (Session, error) {
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.hasher.VerifyPassword(password, a.dummyHash)
			return Session{}, apperr.ErrInvalidCredentials
		}
		return Session{}, apperr.Unavailable(err)
	}

	if !a.hasher.VerifyPassword(password, user.PasswordHash) {
		return Session{}, apperr.ErrInvalidCredentials
	}

	if !user.IsActive {
		return Session{}, apperr.ErrAccountDeactivated
	}

	return a.issueSession(user)
}

// Register creates an account and signs it in.
func (a *Authenticator) Register(ctx context.Context, email, password, confirmPassword string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, apperr.Validation("email and password are required")
	}

	if _, err := a.users.GetByEmail(ctx, email); err == nil {
		return Session{}, apperr.ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return Session{}, apperr.Unavailable(err)
	}

	if password != confirmPassword {
		return Session{}, apperr.ErrPasswordMismatch
	}

	hashed, err := a.hasher.HashPassword(password)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}

	_, err = a.users.Create(ctx, types.User{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  hashed,
		IsActive:      true,
		EmailVerified: false,
		Role:          types.RoleUser,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Session{}, apperr.ErrEmailTaken
		}
		return Session{}, apperr.Unavailable(err)
	}

	session, err := a.Authenticate(ctx, email, password)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnavailable {
			return Session{}, err
		}
		return Session{}, apperr.Internal(fmt.Errorf("sign in after registration: %w", err))
	}
	return session, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh token
// itself is not rotated. A deactivated account is refused with
// apperr.ErrAccountDeactivated, the same as at sign-in.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := a.tokens.Verify(refreshToken)
	if err != nil {
		return "", err
	}
	if !claims.IsRefresh() {
		return "", apperr.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", apperr.ErrInvalidToken.WithCause(err)
	}

	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.ErrInvalidToken.WithCause(err)
		}
		return "", apperr.Unavailable(err)
	}
	if !user.IsActive {
		return "", apperr.ErrAccountDeactivated
	}

	return a.tokens.IssueAccess(identityClaims(user))
}

// Deactivate marks the actor's own account inactive. Outstanding access
// tokens keep working until they expire; sign-in and refresh stop.
func (a *Authenticator) Deactivate(ctx context.Context, actor types.User, targetID uuid.UUID) (types.User, error) {
	if actor.ID != targetID {
		return types.User{}, apperr.AccessDenied("Cannot deactivate another user's account")
	}
	return a.setActive(ctx, targetID, false)
}

// Activate re-enables an account. Only admins may do this.
func (a *Authenticator) Activate(ctx context.Context, actor types.User, targetID uuid.UUID) (types.User, error) {
	if !actor.IsAdmin() {
		return types.User{}, apperr.AccessDenied("Admin access required")
	}
	return a.setActive(ctx, targetID, true)
}

func (a *Authenticator) setActive(ctx context.Context, id uuid.UUID, active bool) (types.User, error) {
	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound("User")
		}
		return types.User{}, apperr.Unavailable(err)
	}
	if user.IsActive == active {
		return user, nil
	}

	user.IsActive = active
	updated, err := a.users.Update(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound("User")
		}
		return types.User{}, apperr.Unavailable(err)
	}
	return updated, nil
}

func (a *Authenticator) issueSession(user types.User) (Session, error) {
	claims := identityClaims(user)

	access, err := a.tokens.IssueAccess(claims)
	if err != nil {
		return Session{}, err
	}
	refresh, err := a.tokens.IssueRefresh(claims)
	if err != nil {
		return Session{}, err
	}

	return Session{
		User:         user.Public(),
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
	}, nil
}

func identityClaims(user types.User) Claims {
	return Claims{
		Email:            user.Email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String()},
	}
}
