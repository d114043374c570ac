package declaration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodbank/bloodbank/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const submissionCols = `id, session_id, summary, location, location_display, answers,
	status, review_note, reviewed_by, created_at, updated_at`

func (r *repoPG) scanRow(row pgx.Row) (*Submission, error) {
	var s Submission
	var answers []byte
	err := row.Scan(&s.ID, &s.SessionID, &s.Summary, &s.Location, &s.LocationDisplay, &answers,
		&s.Status, &s.ReviewNote, &s.ReviewedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", s.ID, err)
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Submission) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO declaration_submission (id, session_id, summary, location, location_display, answers, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		s.ID, s.SessionID, s.Summary, s.Location, s.LocationDisplay, answers, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	s, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+submissionCols+` FROM declaration_submission WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *repoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Submission, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM declaration_submission WHERE ($1 = '' OR status = $1)`, string(status),
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+submissionCols+` FROM declaration_submission
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Submission
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateReview(ctx context.Context, s *Submission) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE declaration_submission
		SET status = $2, review_note = $3, reviewed_by = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at`,
		s.ID, s.Status, s.ReviewNote, s.ReviewedBy,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyReviewed
	}
	return err
}
