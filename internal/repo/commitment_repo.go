// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Commitment
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a commitment is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.CommitmentService) which enforces the lifecycle rules,
// validation, and disambiguation semantics.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CommitmentFilter carries the optional predicates for QueryCommitments.
// Zero-valued fields are ignored; all supplied predicates are ANDed.
type CommitmentFilter struct {
	Person       string // case-insensitive substring
	Status       domain.Status
	Urgency      domain.Urgency
	ChannelType  domain.ChannelType
	DueBefore    *time.Time // inclusive
	DueAfter     *time.Time // inclusive
	OpenedBefore *time.Time // inclusive
	OpenedAfter  *time.Time // inclusive
	Text         string     // case-insensitive substring over title OR description

	// Limit/Offset bound the result set; Limit <= 0 means unbounded.
	Limit  int
	Offset int
}

// CreateCommitment persists c, generating a UUID primary key when absent.
// The caller (service layer) is responsible for stamping OpenedAt and
// LastTouchedAt before calling.
func CreateCommitment(ctx context.Context, db *gorm.DB, c *domain.Commitment) (*domain.Commitment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetCommitment fetches a commitment by ID regardless of status.
// Returns ErrNotFound if the record does not exist.
func GetCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error) {
	var c domain.Commitment
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOpenCommitment fetches a commitment by ID excluding CLOSED rows.
// An already-closed commitment therefore surfaces as ErrNotFound, which is
// what the close-by-ID contract requires.
func GetOpenCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error) {
	var c domain.Commitment
	err := db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, domain.StatusClosed).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOpenByTitle returns all non-CLOSED commitments whose title matches
// exactly, optionally narrowed by an exact person match. Matching is
// intentionally exact (no fuzzy or partial match) so that close-by-title
// can never silently pick the wrong item. Results are ordered by opened_at
// ascending so candidate lists are stable.
func FindOpenByTitle(ctx context.Context, db *gorm.DB, title, person string) ([]domain.Commitment, error) {
	q := db.WithContext(ctx).
		Where("title = ? AND status <> ?", title, domain.StatusClosed)
	if person != "" {
		q = q.Where("person = ?", person)
	}
	var out []domain.Commitment
	err := q.Order("opened_at asc").Find(&out).Error
	return out, err
}

// SaveCommitment writes back all columns of c in a single UPDATE statement.
// Returns ErrNotFound when the row no longer exists.
func SaveCommitment(ctx context.Context, db *gorm.DB, c *domain.Commitment) error {
	res := db.WithContext(ctx).Save(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListOpenCommitments returns all non-CLOSED commitments ordered by
// opened_at ascending (longest-outstanding first).
func ListOpenCommitments(ctx context.Context, db *gorm.DB) ([]domain.Commitment, error) {
	var out []domain.Commitment
	err := db.WithContext(ctx).
		Where("status <> ?", domain.StatusClosed).
		Order("opened_at asc").
		Find(&out).Error
	return out, err
}

// QueryCommitments composes the filter predicates and returns matching rows
// ordered by opened_at ascending. An empty filter returns all commitments.
func QueryCommitments(ctx context.Context, db *gorm.DB, f CommitmentFilter) ([]domain.Commitment, error) {
	q := db.WithContext(ctx).Model(&domain.Commitment{})

	if f.Person != "" {
		q = q.Where("lower(person) LIKE ?", "%"+strings.ToLower(f.Person)+"%")
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Urgency != "" {
		q = q.Where("urgency = ?", f.Urgency)
	}
	if f.ChannelType != "" {
		q = q.Where("channel_type = ?", f.ChannelType)
	}
	if f.DueBefore != nil {
		q = q.Where("due_at <= ?", *f.DueBefore)
	}
	if f.DueAfter != nil {
		q = q.Where("due_at >= ?", *f.DueAfter)
	}
	if f.OpenedBefore != nil {
		q = q.Where("opened_at <= ?", *f.OpenedBefore)
	}
	if f.OpenedAfter != nil {
		q = q.Where("opened_at >= ?", *f.OpenedAfter)
	}
	if f.Text != "" {
		pattern := "%" + strings.ToLower(f.Text) + "%"
		q = q.Where("lower(title) LIKE ? OR lower(description) LIKE ?", pattern, pattern)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var out []domain.Commitment
	err := q.Order("opened_at asc").Find(&out).Error
	return out, err
}

// DeleteCommitment removes a commitment and its reminders in one
// transaction. The cascade is explicit here rather than delegated to
// foreign-key machinery, so the invariant holds on engines where the
// pragma is off. Returns ErrNotFound when the commitment does not exist.
func DeleteCommitment(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("commitment_id = ?", id).Delete(&domain.Reminder{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Commitment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
