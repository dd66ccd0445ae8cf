// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Reminder
// model.
//
// The dispatch-critical operation is MarkReminderSent: it is a conditional
// single-row UPDATE guarded by "sent_at IS NULL", which is what makes the
// dispatch loop safe to re-run and tolerant of an occasional overlapping
// worker (a row can be claimed at most once).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
)

// CreateReminder persists r, generating a UUID primary key when absent.
// Referential integrity against the parent commitment is checked by the
// service layer before calling.
func CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) (*domain.Reminder, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.DeliveryChannel == "" {
		r.DeliveryChannel = "whatsapp"
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetReminder fetches a reminder by ID, or ErrNotFound.
func GetReminder(ctx context.Context, db *gorm.DB, id string) (*domain.Reminder, error) {
	var r domain.Reminder
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListDueReminders returns all reminders with remind_at <= now and a null
// sent_at, ordered by remind_at ascending (earliest-due first). The parent
// commitment is preloaded so dispatch can synthesize message bodies without
// an extra round-trip per row.
func ListDueReminders(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).
		Preload("Commitment").
		Where("remind_at <= ? AND sent_at IS NULL", now).
		Order("remind_at asc").
		Find(&out).Error
	return out, err
}

// ListRemindersForCommitment returns all reminders referencing commitmentID,
// ordered by remind_at ascending.
func ListRemindersForCommitment(ctx context.Context, db *gorm.DB, commitmentID string) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).
		Where("commitment_id = ?", commitmentID).
		Order("remind_at asc").
		Find(&out).Error
	return out, err
}

// MarkReminderSent stamps sent_at on a still-pending reminder. The WHERE
// clause includes "sent_at IS NULL" so a reminder can be claimed exactly
// once; a second attempt (replay, overlapping worker) affects zero rows and
// returns ErrNotFound.
func MarkReminderSent(ctx context.Context, db *gorm.DB, id string, sentAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ? AND sent_at IS NULL", id).
		Update("sent_at", sentAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
