package types

import (
	"time"

	"github.com/google/uuid"
)

// Role is the single authorization attribute carried by a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user. It never changes once assigned.
	ID uuid.UUID `json:"id" db:"id"`

	// Email is the unique login address, compared exactly as stored.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive is false once the account has been deactivated.
	IsActive bool `json:"is_active" db:"is_active"`

	// EmailVerified records whether the email address has been confirmed.
	EmailVerified bool `json:"email_verified" db:"email_verified"`

	// Role indicates the user's authorization level (user or admin).
	Role Role `json:"role" db:"role"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the sanitized view of a User returned to clients.
type PublicUser struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	EmailVerified bool      `json:"email_verified"`
	Role          Role      `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public returns the client-safe projection of u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
	}
}

// IsAdmin reports whether u holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
