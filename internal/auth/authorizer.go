package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/apperr"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

const bearerScheme = "Bearer"

// UserLookup resolves a token subject to a live user.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
}

// Authorizer is the gate in front of every protected route.
type Authorizer struct {
	users  UserLookup
	tokens *TokenCodec
}

func NewAuthorizer(users UserLookup, tokens *TokenCodec) *Authorizer {
	return &Authorizer{users: users, tokens: tokens}
}

// Authorize resolves an Authorization header value to the acting user.
//
// A missing header or a scheme other than exactly "Bearer" yields
// apperr.ErrInvalidScheme. Any token problem, including a subject that no
// longer exists, yields apperr.ErrInvalidToken.
func (a *Authorizer) Authorize(ctx context.Context, header string) (types.User, error) {
	tokenString, err := BearerToken(header)
	if err != nil {
		return types.User{}, err
	}

	claims, err := a.tokens.Verify(tokenString)
	if err != nil {
		return types.User{}, err
	}
	if claims.IsRefresh() {
		return types.User{}, apperr.ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return types.User{}, apperr.ErrInvalidToken
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return types.User{}, apperr.ErrInvalidToken.WithCause(err)
	}

	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.ErrInvalidToken.WithCause(err)
		}
		return types.User{}, apperr.Unavailable(err)
	}
	return user, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.ErrInvalidScheme
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != bearerScheme {
		return "", apperr.ErrInvalidScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.ErrInvalidScheme
	}
	return token, nil
}
