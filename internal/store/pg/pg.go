// Package pg backs the account and prompt collections with Postgres for
// deployments that outgrow the snapshot mirror. Both stores share one
// connection pool.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation = "23505"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

var schemaStatements = []string{
	`create table if not exists accounts (
		id            text primary key,
		name          text not null,
		email         text not null unique,
		password_hash text not null,
		role          text not null,
		status        text not null,
		overrides     jsonb not null default '{}',
		created_at    timestamptz not null default now(),
		updated_at    timestamptz not null default now()
	)`,
	`create table if not exists prompts (
		id               bigint primary key,
		title            text not null,
		body             text not null,
		description      text not null default '',
		category         text not null,
		target_model     text not null,
		author           text not null,
		author_id        text not null,
		status           text not null,
		created_at       timestamptz not null default now(),
		reviewed_at      timestamptz,
		reviewed_by      text,
		rejection_reason text,
		likes            integer not null default 0,
		is_featured      boolean not null default false
	)`,
	`create index if not exists prompts_author_id_idx on prompts (author_id)`,
	`create index if not exists prompts_status_idx on prompts (status)`,
	`create table if not exists id_watermark (
		collection text primary key,
		last_id    bigint not null
	)`,
	`insert into id_watermark (collection, last_id)
		values ('prompts', 0) on conflict (collection) do nothing`,
}

// EnsureSchema applies the idempotent DDL at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
