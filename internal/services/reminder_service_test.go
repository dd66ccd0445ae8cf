package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
	"github.com/tbourn/go-commitlog-backend/internal/notify"
)

// ----- Fakes -----

// fakeReminderRepo is an in-memory ReminderRepo backed by slices so the due
// ordering handed to DispatchDue is under test control.
type fakeReminderRepo struct {
	commitments map[string]*domain.Commitment
	reminders   []domain.Reminder

	listErr error
	markErr error

	marked []string
}

func newFakeReminderRepo() *fakeReminderRepo {
	return &fakeReminderRepo{commitments: map[string]*domain.Commitment{}}
}

func (r *fakeReminderRepo) addCommitment(id, title string) {
	r.commitments[id] = &domain.Commitment{ID: id, Title: title, Status: domain.StatusOpen}
}

func (r *fakeReminderRepo) CreateReminder(ctx context.Context, db *gorm.DB, rem *domain.Reminder) (*domain.Reminder, error) {
	rem.ID = "r" + string(rune('0'+len(r.reminders)+1))
	r.reminders = append(r.reminders, *rem)
	return rem, nil
}

func (r *fakeReminderRepo) GetCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error) {
	if c, ok := r.commitments[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeReminderRepo) ListDueReminders(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Reminder, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Reminder
	for _, rem := range r.reminders {
		if rem.SentAt == nil && !rem.RemindAt.After(now) {
			if c, ok := r.commitments[rem.CommitmentID]; ok {
				rem.Commitment = *c
			}
			out = append(out, rem)
		}
	}
	return out, nil
}

func (r *fakeReminderRepo) MarkReminderSent(ctx context.Context, db *gorm.DB, id string, sentAt time.Time) error {
	if r.markErr != nil {
		return r.markErr
	}
	for i := range r.reminders {
		if r.reminders[i].ID == id && r.reminders[i].SentAt == nil {
			t := sentAt
			r.reminders[i].SentAt = &t
			r.marked = append(r.marked, id)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// fakeSender records deliveries and fails for targets in failFor.
type fakeSender struct {
	sent    []string // "target|message"
	failFor map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, target, message string) (notify.Receipt, error) {
	if f.failFor[target] {
		return notify.Receipt{}, errors.New("channel unavailable")
	}
	f.sent = append(f.sent, target+"|"+message)
	return notify.Receipt{Status: "sent_mock", Target: target, Message: message}, nil
}

func newReminderService(r ReminderRepo, sender notify.Sender) *ReminderService {
	return NewReminderService(nil, r, sender, "default")
}

// ----- Tests -----

func TestReminderCreate_RequiresCommitment(t *testing.T) {
	r := newFakeReminderRepo()
	s := newReminderService(r, &fakeSender{})

	_, err := s.Create(context.Background(), CreateReminderParams{
		CommitmentID: "missing",
		RemindAt:     time.Now(),
	})
	if !errors.Is(err, ErrCommitmentNotFound) {
		t.Fatalf("expected NotFound for missing parent, got %v", err)
	}
	if len(r.reminders) != 0 {
		t.Fatal("nothing should be persisted on referential failure")
	}
}

func TestReminderCreate_DefaultsChannel(t *testing.T) {
	r := newFakeReminderRepo()
	r.addCommitment("c1", "reply to Alice")
	s := newReminderService(r, &fakeSender{})

	rem, err := s.Create(context.Background(), CreateReminderParams{
		CommitmentID: "c1",
		RemindAt:     time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rem.DeliveryChannel != "whatsapp" {
		t.Fatalf("channel = %q; want whatsapp", rem.DeliveryChannel)
	}
	if rem.SentAt != nil {
		t.Fatal("sent_at must start null")
	}
}

func TestDispatchDue_SynthesizesBodyAndDefaultTarget(t *testing.T) {
	r := newFakeReminderRepo()
	r.addCommitment("c1", "reply to Alice")
	sender := &fakeSender{}
	s := newReminderService(r, sender)
	ctx := context.Background()

	s.Create(ctx, CreateReminderParams{CommitmentID: "c1", RemindAt: time.Now().Add(-5 * time.Minute)})

	dispatched, err := s.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(dispatched) != 1 {
		t.Fatalf("expected 1 dispatched, got %d", len(dispatched))
	}
	if dispatched[0].SentAt == nil {
		t.Fatal("dispatched reminder must carry sent_at")
	}
	if len(sender.sent) != 1 || sender.sent[0] != "default|Reminder: reply to Alice" {
		t.Fatalf("unexpected delivery: %v", sender.sent)
	}
}

func TestDispatchDue_ExplicitMessageAndTarget(t *testing.T) {
	r := newFakeReminderRepo()
	r.addCommitment("c1", "reply to Alice")
	sender := &fakeSender{}
	s := newReminderService(r, sender)
	ctx := context.Background()

	msg := "Don't forget!"
	target := "+15551234567"
	s.Create(ctx, CreateReminderParams{
		CommitmentID:   "c1",
		RemindAt:       time.Now().Add(-time.Minute),
		Message:        &msg,
		DeliveryTarget: &target,
	})

	if _, err := s.DispatchDue(ctx); err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "+15551234567|Don't forget!" {
		t.Fatalf("unexpected delivery: %v", sender.sent)
	}
}

func TestDispatchDue_UnresolvableParentUsesSentinel(t *testing.T) {
	r := newFakeReminderRepo()
	r.addCommitment("c1", "reply to Alice")
	sender := &fakeSender{}
	s := newReminderService(r, sender)
	ctx := context.Background()

	s.Create(ctx, CreateReminderParams{CommitmentID: "c1", RemindAt: time.Now().Add(-time.Minute)})
	// Simulate a dangling reference: the parent vanishes before dispatch.
	delete(r.commitments, "c1")

	dispatched, err := s.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue must not crash on a dangling parent: %v", err)
	}
	if len(dispatched) != 1 {
		t.Fatalf("expected 1 dispatched, got %d", len(dispatched))
	}
	if sender.sent[0] != "default|Reminder: unknown" {
		t.Fatalf("expected sentinel body, got %v", sender.sent)
	}
}

func TestDispatchDue_FailureIsolation(t *testing.T) {
	r := newFakeReminderRepo()
	r.addCommitment("c1", "first")
	r.addCommitment("c2", "second")
	bad := "+1-broken"
	sender := &fakeSender{failFor: map[string]bool{bad: true}}
	s := newReminderService(r, sender)
	ctx := context.Background()

	s.Create(ctx, CreateReminderParams{
		CommitmentID:   "c1",
		RemindAt:       time.Now().Add(-2 * time.Minute),
		DeliveryTarget: &bad,
	})
	s.Create(ctx, CreateReminderParams{CommitmentID: "c2", RemindAt: time.Now().Add(-time.Minute)})

	dispatched, err := s.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(dispatched) != 1 || dispatched[0].CommitmentID != "c2" {
		t.Fatalf("only the healthy reminder should dispatch: %+v", dispatched)
	}

	// The failed one stays due and is retried on the next pass.
	due, err := s.ListDue(ctx)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].CommitmentID != "c1" {
		t.Fatalf("failed reminder should remain due: %+v", due)
	}

	sender.failFor = nil
	dispatched, err = s.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("retry DispatchDue: %v", err)
	}
	if len(dispatched) != 1 || dispatched[0].CommitmentID != "c1" {
		t.Fatalf("retry should deliver the failed reminder: %+v", dispatched)
	}
}

func TestDispatchDue_LostClaimExcludedFromResult(t *testing.T) {
	r := newFakeReminderRepo()
	r.addCommitment("c1", "first")
	sender := &fakeSender{}
	s := newReminderService(r, sender)
	ctx := context.Background()

	s.Create(ctx, CreateReminderParams{CommitmentID: "c1", RemindAt: time.Now().Add(-time.Minute)})
	r.markErr = gorm.ErrRecordNotFound

	dispatched, err := s.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(dispatched) != 0 {
		t.Fatalf("an unclaimed row must not be reported dispatched: %+v", dispatched)
	}
}

func TestDispatchDue_EmptySet(t *testing.T) {
	r := newFakeReminderRepo()
	r.addCommitment("c1", "future")
	sender := &fakeSender{}
	s := newReminderService(r, sender)
	ctx := context.Background()

	s.Create(ctx, CreateReminderParams{CommitmentID: "c1", RemindAt: time.Now().Add(24 * time.Hour)})

	dispatched, err := s.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(dispatched) != 0 || len(sender.sent) != 0 {
		t.Fatalf("future reminder must not dispatch: %+v %v", dispatched, sender.sent)
	}
}
