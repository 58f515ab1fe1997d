package accounts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"promptdeck.org/internal/store/snapshot"
)

// Store is the capability interface over the durable account collection.
// One implementation is bound at startup per deployment target: the
// snapshot-mirrored store below, or the Postgres store in store/pg.
// Save and Update enforce email uniqueness: an email held by another
// account fails with ErrConflict.
type Store interface {
	All(ctx context.Context) ([]Account, error)
	Find(ctx context.Context, id string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	Save(ctx context.Context, acct Account) error
	Update(ctx context.Context, id string, fn func(*Account) error) (Account, error)
	Remove(ctx context.Context, id string) (bool, error)
}

// SnapshotStore keeps accounts in a mirrored in-memory collection.
type SnapshotStore struct {
	// mu serializes mutators so the email-uniqueness check and the commit
	// form one atomic step; the Postgres store gets the same guarantee
	// from its unique index.
	mu  sync.Mutex
	col *snapshot.Collection[Account]
}

var _ Store = (*SnapshotStore)(nil)

// NewSnapshotStore loads the account snapshot at path, seeding from
// baseline when the snapshot is absent or unreadable.
func NewSnapshotStore(path string, baseline []Account) *SnapshotStore {
	return &SnapshotStore{
		col: snapshot.New("accounts", path, func(a Account) string { return a.ID }, baseline),
	}
}

func (s *SnapshotStore) All(ctx context.Context) ([]Account, error) {
	return s.col.Items(), nil
}

func (s *SnapshotStore) Find(ctx context.Context, id string) (Account, error) {
	acct, ok := s.col.Find(id)
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *SnapshotStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	matches := s.col.Where(func(a Account) bool { return a.Email == email })
	if len(matches) == 0 {
		return Account{}, ErrNotFound
	}
	return matches[0], nil
}

func (s *SnapshotStore) Save(ctx context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(acct.Email, acct.ID) {
		return fmt.Errorf("%w: email %s", ErrConflict, acct.Email)
	}
	s.col.Upsert(acct)
	return nil
}

func (s *SnapshotStore) Update(ctx context.Context, id string, fn func(*Account) error) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.col.Find(id)
	if !ok {
		return Account{}, ErrNotFound
	}
	updated := acct
	if err := fn(&updated); err != nil {
		return Account{}, err
	}
	updated.ID = acct.ID
	if s.emailTaken(updated.Email, updated.ID) {
		return Account{}, fmt.Errorf("%w: email %s", ErrConflict, updated.Email)
	}
	s.col.Upsert(updated)
	return updated, nil
}

// emailTaken reports whether another account holds the email. Must hold
// s.mu.
func (s *SnapshotStore) emailTaken(email, selfID string) bool {
	for _, a := range s.col.Items() {
		if a.Email == email && a.ID != selfID {
			return true
		}
	}
	return false
}

func (s *SnapshotStore) Remove(ctx context.Context, id string) (bool, error) {
	return s.col.Remove(id), nil
}
