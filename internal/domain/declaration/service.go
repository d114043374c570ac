package declaration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/internal/platform/events"
	"github.com/bloodbank/bloodbank/internal/platform/metrics"
)

type Service struct {
	repo   Repository
	pub    events.Publisher
	logger zerolog.Logger
}

func NewService(repo Repository, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{repo: repo, pub: pub, logger: logger.With().Str("component", "declarations").Logger()}
}

// eventData is what downstream consumers see of a submission. Answers stay
// out of the event stream.
type eventData struct {
	Status          Status `json:"status"`
	LocationDisplay string `json:"location_display,omitempty"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
}

// Create stores a new pending submission and announces it.
func (s *Service) Create(ctx context.Context, sub *Submission) error {
	if strings.TrimSpace(sub.Summary) == "" {
		return errors.New("declaration summary is empty")
	}
	sub.ID = uuid.New()
	sub.Status = StatusPending
	sub.ReviewNote, sub.ReviewedBy = nil, nil
	now := time.Now().UTC()
	sub.CreatedAt, sub.UpdatedAt = now, now

	if err := s.repo.Create(ctx, sub); err != nil {
		metrics.Submissions.WithLabelValues("persist_failed").Inc()
		return fmt.Errorf("store declaration: %w", err)
	}
	metrics.Submissions.WithLabelValues("persisted").Inc()
	s.logger.Info().
		Str("declaration_id", sub.ID.String()).
		Str("session_id", sub.SessionID.String()).
		Msg("declaration submitted")

	s.publish(ctx, events.TypeDeclarationSubmitted, sub, eventData{
		Status:          sub.Status,
		LocationDisplay: sub.LocationDisplay,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Submission, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

// Review records reviewer's decision on a pending submission.
func (s *Service) Review(ctx context.Context, id uuid.UUID, review Review, reviewer string) (*Submission, error) {
	if !review.Status.Reviewable() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, review.Status)
	}
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusPending {
		return nil, ErrAlreadyReviewed
	}

	sub.Status = review.Status
	if note := strings.TrimSpace(review.Note); note != "" {
		sub.ReviewNote = &note
	}
	if reviewer != "" {
		sub.ReviewedBy = &reviewer
	}
	if err := s.repo.UpdateReview(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("declaration_id", sub.ID.String()).
		Str("status", string(sub.Status)).
		Str("reviewer", reviewer).
		Msg("declaration reviewed")

	s.publish(ctx, events.TypeDeclarationReviewed, sub, eventData{Status: sub.Status, ReviewedBy: reviewer})
	return sub, nil
}

// publish failures are logged; the submission is already stored.
func (s *Service) publish(ctx context.Context, typ string, sub *Submission, data eventData) {
	evt, err := events.New(events.TopicDeclarations, typ, "QuestionnaireResponse", sub.ID.String(), data)
	if err == nil {
		err = s.pub.Publish(ctx, evt)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", typ).Str("declaration_id", sub.ID.String()).Msg("publish event failed")
	}
}
