package pg

import (
	"context"
	"database/sql"
	"errors"

	"promptdeck.org/internal/prompts"
)

// PromptStore implements prompts.Store over the shared pool.
type PromptStore struct {
	s *Store
}

var _ prompts.Store = (*PromptStore)(nil)

func (s *Store) Prompts() *PromptStore { return &PromptStore{s: s} }

const promptColumns = `id, title, body, description, category, target_model, author, author_id,
	status, created_at, reviewed_at, reviewed_by, rejection_reason, likes, is_featured`

func scanPrompt(row interface{ Scan(...any) error }) (prompts.Prompt, error) {
	var (
		p          prompts.Prompt
		status     string
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
		reason     sql.NullString
	)
	err := row.Scan(&p.ID, &p.Title, &p.Body, &p.Description, &p.Category, &p.TargetModel,
		&p.Author, &p.AuthorID, &status, &p.CreatedAt, &reviewedAt, &reviewedBy, &reason,
		&p.Likes, &p.Featured)
	if errors.Is(err, sql.ErrNoRows) {
		return prompts.Prompt{}, prompts.ErrNotFound
	}
	if err != nil {
		return prompts.Prompt{}, err
	}
	p.Status = prompts.Status(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		p.ReviewedAt = &t
	}
	p.ReviewedBy = reviewedBy.String
	p.RejectionReason = reason.String
	return p, nil
}

func (st *PromptStore) All(ctx context.Context) ([]prompts.Prompt, error) {
	rows, err := st.s.db.QueryContext(ctx, `select `+promptColumns+` from prompts order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []prompts.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (st *PromptStore) Find(ctx context.Context, id int64) (prompts.Prompt, error) {
	row := st.s.db.QueryRowContext(ctx, `select `+promptColumns+` from prompts where id=$1`, id)
	return scanPrompt(row)
}

func (st *PromptStore) MaxID(ctx context.Context) (int64, error) {
	var max int64
	err := st.s.db.QueryRowContext(ctx, `select coalesce(max(id), 0) from prompts`).Scan(&max)
	return max, err
}

// Create assigns ids inside a serializable transaction so concurrent
// batches cannot hand out the same id. The id_watermark row keeps the
// high-water mark across deletions of the newest prompts.
func (st *PromptStore) Create(ctx context.Context, items []prompts.Prompt) ([]prompts.Prompt, error) {
	if len(items) == 0 {
		return nil, nil
	}
	tx, err := st.s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx, `
		update id_watermark set last_id = greatest(last_id, (select coalesce(max(id),0) from prompts)) + $1
		where collection = 'prompts'
		returning last_id - $1
	`, int64(len(items))).Scan(&next); err != nil {
		return nil, err
	}

	out := append([]prompts.Prompt(nil), items...)
	for i := range out {
		next++
		out[i].ID = next
		var reviewedAt any
		if out[i].ReviewedAt != nil {
			reviewedAt = out[i].ReviewedAt.UTC()
		}
		if _, err := tx.ExecContext(ctx, `
			insert into prompts (id, title, body, description, category, target_model, author, author_id,
				status, created_at, reviewed_at, reviewed_by, rejection_reason, likes, is_featured)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`, out[i].ID, out[i].Title, out[i].Body, out[i].Description, out[i].Category, out[i].TargetModel,
			out[i].Author, out[i].AuthorID, string(out[i].Status), out[i].CreatedAt, reviewedAt,
			nullIfEmpty(out[i].ReviewedBy), nullIfEmpty(out[i].RejectionReason), out[i].Likes, out[i].Featured); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (st *PromptStore) Update(ctx context.Context, id int64, fn func(*prompts.Prompt) error) (prompts.Prompt, error) {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return prompts.Prompt{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `select `+promptColumns+` from prompts where id=$1 for update`, id)
	p, err := scanPrompt(row)
	if err != nil {
		return prompts.Prompt{}, err
	}
	if err := fn(&p); err != nil {
		return prompts.Prompt{}, err
	}
	var reviewedAt any
	if p.ReviewedAt != nil {
		reviewedAt = p.ReviewedAt.UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		update prompts set
			title=$2, body=$3, description=$4, category=$5, target_model=$6, author=$7, author_id=$8,
			status=$9, reviewed_at=$10, reviewed_by=$11, rejection_reason=$12, likes=$13, is_featured=$14
		where id=$1
	`, p.ID, p.Title, p.Body, p.Description, p.Category, p.TargetModel, p.Author, p.AuthorID,
		string(p.Status), reviewedAt, nullIfEmpty(p.ReviewedBy), nullIfEmpty(p.RejectionReason),
		p.Likes, p.Featured); err != nil {
		return prompts.Prompt{}, err
	}
	if err := tx.Commit(); err != nil {
		return prompts.Prompt{}, err
	}
	return p, nil
}

func (st *PromptStore) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := st.s.db.ExecContext(ctx, `delete from prompts where id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (st *PromptStore) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	var n int
	err := st.s.db.QueryRowContext(ctx, `select count(*) from prompts where author_id=$1`, authorID).Scan(&n)
	return n, err
}
