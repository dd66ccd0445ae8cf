// Package services – CommitmentService
//
// This file implements the CommitmentService, which owns the commitment
// lifecycle: opening, closing (with title-based disambiguation), partial
// updates, and the open/filtered listings. It validates input, stamps the
// lifecycle timestamps, and coordinates repository operations.
//
// Service-level errors (e.g., ErrCommitmentNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
// An ambiguous close is not an error: it is surfaced as a CloseResult whose
// Candidates field carries every match, so the caller can re-invoke with an
// explicit ID instead of the service guessing.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
	"github.com/tbourn/go-commitlog-backend/internal/repo"
)

// CommitmentRepo defines the repository contract required by
// CommitmentService. Implementations are responsible for persistence of the
// commitment aggregate.
type CommitmentRepo interface {
	// CreateCommitment inserts a new commitment row.
	CreateCommitment(ctx context.Context, db *gorm.DB, c *domain.Commitment) (*domain.Commitment, error)

	// GetCommitment fetches a commitment by ID regardless of status.
	GetCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error)

	// GetOpenCommitment fetches a non-CLOSED commitment by ID.
	GetOpenCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error)

	// FindOpenByTitle returns non-CLOSED commitments matching title exactly,
	// optionally narrowed by exact person.
	FindOpenByTitle(ctx context.Context, db *gorm.DB, title, person string) ([]domain.Commitment, error)

	// SaveCommitment writes back a mutated commitment row.
	SaveCommitment(ctx context.Context, db *gorm.DB, c *domain.Commitment) error

	// ListOpenCommitments returns non-CLOSED rows, opened_at ascending.
	ListOpenCommitments(ctx context.Context, db *gorm.DB) ([]domain.Commitment, error)

	// QueryCommitments returns rows matching the filter, opened_at ascending.
	QueryCommitments(ctx context.Context, db *gorm.DB, f repo.CommitmentFilter) ([]domain.Commitment, error)

	// DeleteCommitment removes a commitment and cascades to its reminders.
	DeleteCommitment(ctx context.Context, db *gorm.DB, id string) error
}

// titleMaxRunes caps commitment titles, matching the column width.
const titleMaxRunes = 512

// OpenParams carries the caller-supplied fields for Open. Optional fields
// are pointers so "not provided" stays distinguishable from zero values.
type OpenParams struct {
	Title         string
	Description   *string
	Person        *string
	Organization  *string
	ChannelType   *domain.ChannelType
	ChannelTitle  *string
	ChannelLink   *string
	Urgency       *domain.Urgency
	DueAt         *time.Time
	SourceSnippet *string

	// Status defaults to OPEN when empty; callers may open directly into
	// WAITING or SNOOZED.
	Status domain.Status
}

// UpdatePatch carries the partial fields for Update. Nil means "leave
// unchanged"; an absent field is not the same as an empty one.
type UpdatePatch struct {
	Title         *string
	Description   *string
	Status        *domain.Status
	Urgency       *domain.Urgency
	Person        *string
	Organization  *string
	ChannelType   *domain.ChannelType
	ChannelTitle  *string
	ChannelLink   *string
	DueAt         *time.Time
	SourceSnippet *string
}

// CloseResult is the structured outcome of Close. Exactly one of the
// following holds when the returned error is nil:
//   - Closed != nil: a unique match was found and transitioned to CLOSED.
//   - len(Candidates) >= 2: the title matched several open commitments; the
//     caller must re-invoke with one candidate's explicit ID.
type CloseResult struct {
	Closed     *domain.Commitment
	Candidates []domain.Commitment
}

// Ambiguous reports whether the close request needs caller disambiguation.
func (r *CloseResult) Ambiguous() bool { return len(r.Candidates) >= 2 }

// CommitmentService provides commitment lifecycle operations.
type CommitmentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the commitment repository used by this service.
	Repo CommitmentRepo
}

// NewCommitmentService constructs a CommitmentService.
func NewCommitmentService(db *gorm.DB, r CommitmentRepo) *CommitmentService {
	return &CommitmentService{DB: db, Repo: r}
}

// Open creates a new commitment. The title is trimmed and must be non-empty
// and at most 512 runes. opened_at and last_touched_at are stamped with the
// same instant; closed_at starts null even when the caller opens directly
// into a non-OPEN status.
func (s *CommitmentService) Open(ctx context.Context, p OpenParams) (*domain.Commitment, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > titleMaxRunes {
		return nil, ErrTitleTooLong
	}

	status := p.Status
	if status == "" {
		status = domain.StatusOpen
	}

	now := time.Now().UTC()
	c := &domain.Commitment{
		Title:         title,
		Description:   p.Description,
		Status:        status,
		Urgency:       p.Urgency,
		Person:        p.Person,
		Organization:  p.Organization,
		ChannelType:   p.ChannelType,
		ChannelTitle:  p.ChannelTitle,
		ChannelLink:   p.ChannelLink,
		SourceSnippet: p.SourceSnippet,
		DueAt:         p.DueAt,
		OpenedAt:      now,
		LastTouchedAt: now,
	}

	out, err := s.Repo.CreateCommitment(ctx, s.DB, c)
	if err != nil {
		return nil, err
	}
	log.Info().Str("commitment_id", out.ID).Str("title", out.Title).Msg("commitment opened")
	return out, nil
}

// Close resolves and closes a commitment.
//
// Resolution precedence:
//   - id given: look up a non-CLOSED commitment with that ID and close it.
//     An absent or already-CLOSED row yields ErrCommitmentNotFound.
//   - title given: select all non-CLOSED commitments with that exact title,
//     narrowed by exact person when supplied. One candidate closes; several
//     return an ambiguous CloseResult; zero yields ErrCommitmentNotFound.
//   - neither given: ErrMissingCloseSelector.
func (s *CommitmentService) Close(ctx context.Context, id, title, person string) (*CloseResult, error) {
	tr := otel.Tracer("services/CommitmentService")
	ctx, span := tr.Start(ctx, "Close",
		trace.WithAttributes(attribute.String("commitment.id", id)),
	)
	defer span.End()

	if id != "" {
		c, err := s.Repo.GetOpenCommitment(ctx, s.DB, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCommitmentNotFound
			}
			return nil, err
		}
		if err := s.closeRow(ctx, c); err != nil {
			return nil, err
		}
		log.Info().Str("commitment_id", c.ID).Msg("commitment closed by id")
		return &CloseResult{Closed: c}, nil
	}

	if title == "" {
		return nil, ErrMissingCloseSelector
	}

	candidates, err := s.Repo.FindOpenByTitle(ctx, s.DB, title, person)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		return nil, ErrCommitmentNotFound
	case 1:
		c := &candidates[0]
		if err := s.closeRow(ctx, c); err != nil {
			return nil, err
		}
		log.Info().Str("commitment_id", c.ID).Msg("commitment closed by title match")
		return &CloseResult{Closed: c}, nil
	default:
		return &CloseResult{Candidates: candidates}, nil
	}
}

// closeRow stamps the CLOSED transition and persists it.
func (s *CommitmentService) closeRow(ctx context.Context, c *domain.Commitment) error {
	now := time.Now().UTC()
	c.Status = domain.StatusClosed
	c.ClosedAt = &now
	c.LastTouchedAt = now
	return s.Repo.SaveCommitment(ctx, s.DB, c)
}

// Update applies the non-nil fields of patch to the commitment with the
// given ID. Setting the status to CLOSED stamps closed_at exactly as Close
// does; moving the status away from CLOSED leaves closed_at in place (the
// field records the most recent close). last_touched_at is refreshed on
// every successful update.
func (s *CommitmentService) Update(ctx context.Context, id string, patch UpdatePatch) (*domain.Commitment, error) {
	c, err := s.Repo.GetCommitment(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommitmentNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, ErrEmptyTitle
		}
		if utf8.RuneCountInString(title) > titleMaxRunes {
			return nil, ErrTitleTooLong
		}
		c.Title = title
	}
	if patch.Description != nil {
		c.Description = patch.Description
	}
	if patch.Status != nil {
		c.Status = *patch.Status
		if c.Status == domain.StatusClosed {
			c.ClosedAt = &now
		}
	}
	if patch.Urgency != nil {
		c.Urgency = patch.Urgency
	}
	if patch.Person != nil {
		c.Person = patch.Person
	}
	if patch.Organization != nil {
		c.Organization = patch.Organization
	}
	if patch.ChannelType != nil {
		c.ChannelType = patch.ChannelType
	}
	if patch.ChannelTitle != nil {
		c.ChannelTitle = patch.ChannelTitle
	}
	if patch.ChannelLink != nil {
		c.ChannelLink = patch.ChannelLink
	}
	if patch.DueAt != nil {
		c.DueAt = patch.DueAt
	}
	if patch.SourceSnippet != nil {
		c.SourceSnippet = patch.SourceSnippet
	}
	c.LastTouchedAt = now

	if err := s.Repo.SaveCommitment(ctx, s.DB, c); err != nil {
		return nil, err
	}
	log.Info().Str("commitment_id", c.ID).Msg("commitment updated")
	return c, nil
}

// Get fetches a commitment by ID regardless of status.
func (s *CommitmentService) Get(ctx context.Context, id string) (*domain.Commitment, error) {
	c, err := s.Repo.GetCommitment(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommitmentNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListOpen returns all non-CLOSED commitments, oldest opened first.
func (s *CommitmentService) ListOpen(ctx context.Context) ([]domain.Commitment, error) {
	return s.Repo.ListOpenCommitments(ctx, s.DB)
}

// Query returns commitments matching the filter, opened_at ascending.
// No filters returns all commitments.
func (s *CommitmentService) Query(ctx context.Context, f repo.CommitmentFilter) ([]domain.Commitment, error) {
	tr := otel.Tracer("services/CommitmentService")
	ctx, span := tr.Start(ctx, "Query")
	defer span.End()

	return s.Repo.QueryCommitments(ctx, s.DB, f)
}

// Delete removes a commitment and cascades to its reminders.
func (s *CommitmentService) Delete(ctx context.Context, id string) error {
	if err := s.Repo.DeleteCommitment(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommitmentNotFound
		}
		return err
	}
	log.Info().Str("commitment_id", id).Msg("commitment deleted")
	return nil
}
