package accounts

import (
	"errors"
	"time"

	"promptdeck.org/internal/access"
)

// Account statuses. Accounts that own content are never hard-deleted;
// they transition to disabled instead.
const (
	StatusActive              = "active"
	StatusPendingVerification = "pending-verification"
	StatusDisabled            = "disabled"
)

var (
	ErrNotFound     = errors.New("accounts: not found")
	ErrConflict     = errors.New("accounts: already exists")
	ErrInvalidInput = errors.New("accounts: invalid input")
	// ErrOwnsContent is returned when a hard delete is refused because the
	// account still owns content items.
	ErrOwnsContent = errors.New("accounts: account still owns content")
)

// Account represents a registered user of the platform.
type Account struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"password_hash,omitempty"`
	Role         access.Role      `json:"role"`
	Status       string           `json:"status"`
	Overrides    access.Overrides `json:"overrides,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Can resolves the account's effective permission for (category, action):
// override if present, else role default.
func (a Account) Can(category access.Category, action access.Action) bool {
	return access.Allowed(a.Role, category, action, a.Overrides)
}

// Update carries optional field changes; nil pointers leave fields as-is.
type Update struct {
	Name      *string
	Email     *string
	Password  *string
	Role      *access.Role
	Status    *string
	Overrides access.Overrides
}
