package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/auth"
	"promptdeck.org/internal/ids"
)

// OwnedCounter reports how many content items an account currently owns.
// Implemented by the prompts service; wired at startup.
type OwnedCounter interface {
	CountByAuthor(ctx context.Context, authorID string) (int, error)
}

// Service provides account registration, lookup, and administration over
// the bound Store.
type Service struct {
	store Store
	owned OwnedCounter
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithOwnedCounter wires the content-ownership check used by Delete.
func WithOwnedCounter(c OwnedCounter) ServiceOption {
	return func(s *Service) { s.owned = c }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the account service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("accounts: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account with the given role. Emails are unique; a
// duplicate registration fails with ErrConflict.
func (s *Service) Register(ctx context.Context, name, email, password string, role access.Role) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Account{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return Account{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if role == "" {
		role = access.RoleUser
	}
	if access.ParseRole(string(role)) == "" {
		return Account{}, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, role)
	}
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return Account{}, fmt.Errorf("%w: email %s", ErrConflict, email)
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Account{}, err
	}
	now := s.now().UTC()
	acct := Account{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Save(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Authenticate verifies email/password and returns the account. Disabled
// and unverified accounts cannot log in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Account{}, auth.ErrUnauthorized
	}
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return Account{}, auth.ErrUnauthorized
	}
	if acct.Status != StatusActive {
		return Account{}, auth.ErrUnauthorized
	}
	if err := auth.VerifyPassword(acct.PasswordHash, password); err != nil {
		return Account{}, auth.ErrUnauthorized
	}
	return acct, nil
}

// Get returns the account with the given id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return s.store.Find(ctx, id)
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.store.All(ctx)
}

// RoleOf implements auth.AccountRoles.
func (s *Service) RoleOf(ctx context.Context, accountID string) (string, error) {
	acct, err := s.store.Find(ctx, accountID)
	if err != nil {
		return "", err
	}
	return string(acct.Role), nil
}

// Update applies a partial account update. Role, status, and override
// changes are admin operations; the caller is expected to have authorized
// them against the permission matrix already.
func (s *Service) Update(ctx context.Context, id string, upd Update) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return Account{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		if existing, err := s.store.FindByEmail(ctx, email); err == nil && existing.ID != id {
			return Account{}, fmt.Errorf("%w: email %s", ErrConflict, email)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return Account{}, err
		}
		upd.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Account{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Role != nil {
		role := access.ParseRole(string(*upd.Role))
		if role == "" {
			return Account{}, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, *upd.Role)
		}
		upd.Role = &role
	}
	if upd.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*upd.Status))
		switch status {
		case StatusActive, StatusPendingVerification, StatusDisabled:
		default:
			return Account{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
		}
		upd.Status = &status
	}
	var hash string
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return Account{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		h, err := auth.HashPassword(pw)
		if err != nil {
			return Account{}, err
		}
		hash = h
	}

	return s.store.Update(ctx, id, func(a *Account) error {
		if upd.Name != nil {
			a.Name = *upd.Name
		}
		if upd.Email != nil {
			a.Email = *upd.Email
		}
		if hash != "" {
			a.PasswordHash = hash
		}
		if upd.Role != nil {
			a.Role = *upd.Role
		}
		if upd.Status != nil {
			a.Status = *upd.Status
		}
		if upd.Overrides != nil {
			a.Overrides = upd.Overrides
		}
		a.UpdatedAt = s.now().UTC()
		return nil
	})
}

// Disable soft-disables an account; the preferred path for accounts that
// still own content.
func (s *Service) Disable(ctx context.Context, id string) (Account, error) {
	status := StatusDisabled
	return s.Update(ctx, id, Update{Status: &status})
}

// Delete removes an account permanently. Refused with ErrOwnsContent while
// the account still owns content items; callers should Disable instead.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if s.owned != nil {
		n, err := s.owned.CountByAuthor(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrOwnsContent
		}
	}
	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// Baseline builds the seed collection used when no account snapshot exists:
// a single administrator.
func Baseline(name, email, passwordHash string, now time.Time) []Account {
	return []Account{{
		ID:           ids.New(),
		Name:         name,
		Email:        strings.TrimSpace(strings.ToLower(email)),
		PasswordHash: passwordHash,
		Role:         access.RoleAdmin,
		Status:       StatusActive,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}}
}
