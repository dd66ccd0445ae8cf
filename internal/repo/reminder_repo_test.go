package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
)

func TestCreateReminder_DefaultsAndPersists(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{}, &domain.Reminder{})
	ctx := context.Background()
	c := seedCommitment(t, db, nil)

	r, err := CreateReminder(ctx, db, &domain.Reminder{
		CommitmentID: c.ID,
		RemindAt:     time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected generated UUID")
	}
	if r.DeliveryChannel != "whatsapp" {
		t.Fatalf("default delivery channel = %q; want whatsapp", r.DeliveryChannel)
	}

	got, err := GetReminder(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.CommitmentID != c.ID || got.SentAt != nil {
		t.Fatalf("unexpected reminder row: %+v", got)
	}
}

func TestListDueReminders_SelectionAndOrder(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{}, &domain.Reminder{})
	ctx := context.Background()
	c := seedCommitment(t, db, nil)
	now := time.Now().UTC()

	older, _ := CreateReminder(ctx, db, &domain.Reminder{
		CommitmentID: c.ID, RemindAt: now.Add(-time.Hour),
	})
	newer, _ := CreateReminder(ctx, db, &domain.Reminder{
		CommitmentID: c.ID, RemindAt: now.Add(-5 * time.Minute),
	})
	// Future reminder must never surface before its time.
	CreateReminder(ctx, db, &domain.Reminder{
		CommitmentID: c.ID, RemindAt: now.Add(24 * time.Hour),
	})
	// Already-sent reminder is no longer due.
	sent, _ := CreateReminder(ctx, db, &domain.Reminder{
		CommitmentID: c.ID, RemindAt: now.Add(-2 * time.Hour),
	})
	if err := MarkReminderSent(ctx, db, sent.ID, now); err != nil {
		t.Fatalf("MarkReminderSent: %v", err)
	}

	due, err := ListDueReminders(ctx, db, now)
	if err != nil {
		t.Fatalf("ListDueReminders: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due reminders, got %d", len(due))
	}
	if due[0].ID != older.ID || due[1].ID != newer.ID {
		t.Fatalf("expected remind_at ascending, got [%s, %s]", due[0].ID, due[1].ID)
	}
	// Parent commitment is preloaded for message synthesis.
	if due[0].Commitment.Title != c.Title {
		t.Fatalf("expected preloaded commitment, got %+v", due[0].Commitment)
	}
}

func TestMarkReminderSent_ClaimsRowExactlyOnce(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{}, &domain.Reminder{})
	ctx := context.Background()
	c := seedCommitment(t, db, nil)
	now := time.Now().UTC()

	r, _ := CreateReminder(ctx, db, &domain.Reminder{
		CommitmentID: c.ID, RemindAt: now.Add(-time.Minute),
	})

	if err := MarkReminderSent(ctx, db, r.ID, now); err != nil {
		t.Fatalf("first MarkReminderSent: %v", err)
	}
	got, err := GetReminder(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.SentAt == nil {
		t.Fatal("sent_at should be stamped")
	}

	// A second claim must affect zero rows.
	if err := MarkReminderSent(ctx, db, r.ID, now.Add(time.Second)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second MarkReminderSent should be ErrNotFound, got %v", err)
	}
}

func TestMarkReminderSent_MissingRow(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{}, &domain.Reminder{})
	err := MarkReminderSent(context.Background(), db, "missing", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
