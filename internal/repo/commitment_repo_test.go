package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
)

func strptr(s string) *string { return &s }

func seedCommitment(t *testing.T, db *gorm.DB, mutate func(*domain.Commitment)) *domain.Commitment {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Commitment{
		Title:         "Send the report",
		Status:        domain.StatusOpen,
		OpenedAt:      now,
		LastTouchedAt: now,
	}
	if mutate != nil {
		mutate(c)
	}
	out, err := CreateCommitment(context.Background(), db, c)
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}
	return out
}

func TestCreateCommitment_GeneratesIDAndPersists(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})

	c := seedCommitment(t, db, func(c *domain.Commitment) {
		c.Person = strptr("Alice")
		c.Description = strptr("Quarterly security report")
	})
	if c.ID == "" {
		t.Fatal("expected generated UUID")
	}

	got, err := GetCommitment(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetCommitment: %v", err)
	}
	if got.Title != "Send the report" || got.Status != domain.StatusOpen {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Person == nil || *got.Person != "Alice" {
		t.Fatalf("person not persisted: %+v", got.Person)
	}
}

func TestGetCommitment_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})
	_, err := GetCommitment(context.Background(), db, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOpenCommitment_ExcludesClosed(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})
	now := time.Now().UTC()
	c := seedCommitment(t, db, func(c *domain.Commitment) {
		c.Status = domain.StatusClosed
		c.ClosedAt = &now
	})

	if _, err := GetOpenCommitment(context.Background(), db, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("closed row should be invisible to GetOpenCommitment, got %v", err)
	}
	if _, err := GetCommitment(context.Background(), db, c.ID); err != nil {
		t.Fatalf("closed row should still resolve by plain get: %v", err)
	}
}

func TestFindOpenByTitle_ExactMatchAndPersonNarrowing(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})

	seedCommitment(t, db, func(c *domain.Commitment) { c.Person = strptr("Alice") })
	seedCommitment(t, db, func(c *domain.Commitment) { c.Person = strptr("Bob") })
	seedCommitment(t, db, func(c *domain.Commitment) {
		c.Title = "Send the reports" // near miss, must not match
	})
	now := time.Now().UTC()
	seedCommitment(t, db, func(c *domain.Commitment) {
		c.Status = domain.StatusClosed
		c.ClosedAt = &now
	})

	got, err := FindOpenByTitle(context.Background(), db, "Send the report", "")
	if err != nil {
		t.Fatalf("FindOpenByTitle: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 open exact-title matches, got %d", len(got))
	}

	got, err = FindOpenByTitle(context.Background(), db, "Send the report", "Bob")
	if err != nil {
		t.Fatalf("FindOpenByTitle(person): %v", err)
	}
	if len(got) != 1 || *got[0].Person != "Bob" {
		t.Fatalf("person narrowing failed: %+v", got)
	}
}

func TestSaveCommitment_RoundTrip(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})
	c := seedCommitment(t, db, nil)

	now := time.Now().UTC()
	c.Status = domain.StatusClosed
	c.ClosedAt = &now
	c.LastTouchedAt = now
	if err := SaveCommitment(context.Background(), db, c); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}

	got, err := GetCommitment(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetCommitment: %v", err)
	}
	if got.Status != domain.StatusClosed || got.ClosedAt == nil {
		t.Fatalf("close not persisted: %+v", got)
	}
}

func TestListOpenCommitments_OrderAndExclusion(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})
	base := time.Now().UTC().Add(-3 * time.Hour)

	newest := seedCommitment(t, db, func(c *domain.Commitment) {
		c.Title = "newest"
		c.OpenedAt = base.Add(2 * time.Hour)
	})
	oldest := seedCommitment(t, db, func(c *domain.Commitment) {
		c.Title = "oldest"
		c.OpenedAt = base
	})
	now := time.Now().UTC()
	seedCommitment(t, db, func(c *domain.Commitment) {
		c.Title = "closed"
		c.Status = domain.StatusClosed
		c.ClosedAt = &now
		c.OpenedAt = base.Add(time.Hour)
	})

	got, err := ListOpenCommitments(context.Background(), db)
	if err != nil {
		t.Fatalf("ListOpenCommitments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 open rows, got %d", len(got))
	}
	if got[0].ID != oldest.ID || got[1].ID != newest.ID {
		t.Fatalf("expected opened_at ascending, got [%s, %s]", got[0].Title, got[1].Title)
	}
}

func TestQueryCommitments_Filters(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	sec := seedCommitment(t, db, func(c *domain.Commitment) {
		c.Title = "Review access policy"
		c.Description = strptr("Annual SECURITY review with the infra team")
		c.Person = strptr("Alice Smith")
		c.OpenedAt = base
	})
	urgent := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	seedCommitment(t, db, func(c *domain.Commitment) {
		c.Title = "Book flights"
		c.Person = strptr("bob")
		u := domain.UrgencyNow
		c.Urgency = &u
		ct := domain.ChannelSlack
		c.ChannelType = &ct
		c.OpenedAt = base.Add(24 * time.Hour)
		c.DueAt = &urgent
	})

	ctx := context.Background()

	// Free text is case-insensitive over title OR description.
	got, err := QueryCommitments(ctx, db, CommitmentFilter{Text: "security"})
	if err != nil {
		t.Fatalf("QueryCommitments(text): %v", err)
	}
	if len(got) != 1 || got[0].ID != sec.ID {
		t.Fatalf("text filter: expected the security row, got %+v", got)
	}

	// Person is a case-insensitive substring.
	got, err = QueryCommitments(ctx, db, CommitmentFilter{Person: "SMITH"})
	if err != nil {
		t.Fatalf("QueryCommitments(person): %v", err)
	}
	if len(got) != 1 || got[0].ID != sec.ID {
		t.Fatalf("person filter: got %+v", got)
	}

	// Enum filters are exact.
	got, err = QueryCommitments(ctx, db, CommitmentFilter{
		Urgency:     domain.UrgencyNow,
		ChannelType: domain.ChannelSlack,
	})
	if err != nil {
		t.Fatalf("QueryCommitments(enums): %v", err)
	}
	if len(got) != 1 || got[0].Title != "Book flights" {
		t.Fatalf("enum filter: got %+v", got)
	}

	// Due range is inclusive.
	got, err = QueryCommitments(ctx, db, CommitmentFilter{DueBefore: &urgent, DueAfter: &urgent})
	if err != nil {
		t.Fatalf("QueryCommitments(due): %v", err)
	}
	if len(got) != 1 || got[0].Title != "Book flights" {
		t.Fatalf("due range filter: got %+v", got)
	}

	// Opened range.
	cutoff := base.Add(12 * time.Hour)
	got, err = QueryCommitments(ctx, db, CommitmentFilter{OpenedBefore: &cutoff})
	if err != nil {
		t.Fatalf("QueryCommitments(opened): %v", err)
	}
	if len(got) != 1 || got[0].ID != sec.ID {
		t.Fatalf("opened range filter: got %+v", got)
	}

	// No filters returns everything, opened_at ascending.
	got, err = QueryCommitments(ctx, db, CommitmentFilter{})
	if err != nil {
		t.Fatalf("QueryCommitments(all): %v", err)
	}
	if len(got) != 2 || got[0].ID != sec.ID {
		t.Fatalf("unfiltered query: got %+v", got)
	}
}

func TestQueryCommitments_LimitOffset(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{})
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		d := time.Duration(i) * time.Minute
		seedCommitment(t, db, func(c *domain.Commitment) { c.OpenedAt = base.Add(d) })
	}

	got, err := QueryCommitments(context.Background(), db, CommitmentFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("QueryCommitments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows with limit=2 offset=1, got %d", len(got))
	}
}

func TestDeleteCommitment_CascadesToReminders(t *testing.T) {
	db := newTestDB(t, &domain.Commitment{}, &domain.Reminder{})
	ctx := context.Background()

	c := seedCommitment(t, db, nil)
	if _, err := CreateReminder(ctx, db, &domain.Reminder{
		CommitmentID: c.ID,
		RemindAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	if err := DeleteCommitment(ctx, db, c.ID); err != nil {
		t.Fatalf("DeleteCommitment: %v", err)
	}

	if _, err := GetCommitment(ctx, db, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("commitment should be gone, got %v", err)
	}
	left, err := ListRemindersForCommitment(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("ListRemindersForCommitment: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("reminders should cascade-delete, %d left", len(left))
	}

	if err := DeleteCommitment(ctx, db, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}
