package declaration

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	// List returns submissions newest first; an empty status matches all.
	List(ctx context.Context, status Status, limit, offset int) ([]*Submission, int, error)
	// UpdateReview records a review on a pending submission.
	UpdateReview(ctx context.Context, s *Submission) error
}
