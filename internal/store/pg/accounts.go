package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/accounts"
)

// AccountStore implements accounts.Store over the shared pool.
type AccountStore struct {
	s *Store
}

var _ accounts.Store = (*AccountStore)(nil)

func (s *Store) Accounts() *AccountStore { return &AccountStore{s: s} }

const accountColumns = `id, name, email, password_hash, role, status, overrides, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (accounts.Account, error) {
	var (
		a            accounts.Account
		role         string
		rawOverrides []byte
	)
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &role, &a.Status, &rawOverrides, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.Account{}, accounts.ErrNotFound
	}
	if err != nil {
		return accounts.Account{}, err
	}
	a.Role = access.Role(role)
	if len(rawOverrides) > 0 {
		if err := json.Unmarshal(rawOverrides, &a.Overrides); err != nil {
			return accounts.Account{}, fmt.Errorf("decode overrides: %w", err)
		}
	}
	return a, nil
}

func encodeOverrides(o access.Overrides) ([]byte, error) {
	if len(o) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(o)
}

func (st *AccountStore) All(ctx context.Context) ([]accounts.Account, error) {
	rows, err := st.s.db.QueryContext(ctx, `select `+accountColumns+` from accounts order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []accounts.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (st *AccountStore) Find(ctx context.Context, id string) (accounts.Account, error) {
	row := st.s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (st *AccountStore) FindByEmail(ctx context.Context, email string) (accounts.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := st.s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where email=$1`, email)
	return scanAccount(row)
}

func (st *AccountStore) Save(ctx context.Context, acct accounts.Account) error {
	rawOverrides, err := encodeOverrides(acct.Overrides)
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}
	_, err = st.s.db.ExecContext(ctx, `
		insert into accounts (id, name, email, password_hash, role, status, overrides, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (id) do update set
			name = excluded.name,
			email = excluded.email,
			password_hash = excluded.password_hash,
			role = excluded.role,
			status = excluded.status,
			overrides = excluded.overrides,
			updated_at = excluded.updated_at
	`, acct.ID, acct.Name, acct.Email, acct.PasswordHash, string(acct.Role), acct.Status, rawOverrides, acct.CreatedAt, acct.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return accounts.ErrConflict
	}
	return err
}

func (st *AccountStore) Update(ctx context.Context, id string, fn func(*accounts.Account) error) (accounts.Account, error) {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return accounts.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id=$1 for update`, id)
	acct, err := scanAccount(row)
	if err != nil {
		return accounts.Account{}, err
	}
	if err := fn(&acct); err != nil {
		return accounts.Account{}, err
	}
	rawOverrides, err := encodeOverrides(acct.Overrides)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("marshal overrides: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		update accounts set
			name=$2, email=$3, password_hash=$4, role=$5, status=$6, overrides=$7, updated_at=$8
		where id=$1
	`, acct.ID, acct.Name, acct.Email, acct.PasswordHash, string(acct.Role), acct.Status, rawOverrides, acct.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return accounts.Account{}, accounts.ErrConflict
		}
		return accounts.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return accounts.Account{}, err
	}
	return acct, nil
}

func (st *AccountStore) Remove(ctx context.Context, id string) (bool, error) {
	res, err := st.s.db.ExecContext(ctx, `delete from accounts where id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
