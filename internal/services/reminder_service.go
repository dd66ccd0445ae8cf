// Package services – ReminderService
//
// This file implements the ReminderService, which owns reminder creation and
// the at-least-once dispatch loop. Creation enforces referential integrity
// against the parent commitment. Dispatch selects the due set (remind_at in
// the past, sent_at null), attempts delivery per reminder through the
// injected notify.Sender, and records sent_at only for deliveries that
// succeeded; a failed delivery is logged and left pending so the next pass
// retries it. One bad delivery never aborts the batch.
//
// Observability: dispatch is OpenTelemetry-instrumented and feeds Prometheus
// counters for sent/failed deliveries.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
	"github.com/tbourn/go-commitlog-backend/internal/notify"
	"github.com/tbourn/go-commitlog-backend/internal/sysutil"
)

var (
	// remindersSent counts successfully dispatched reminders.
	remindersSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminders_dispatched_total",
		Help: "Total number of reminders successfully dispatched.",
	})

	// remindersFailed counts delivery attempts that failed and were left pending.
	remindersFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminders_dispatch_failures_total",
		Help: "Total number of reminder delivery attempts that failed.",
	})
)

func init() {
	prometheus.MustRegister(remindersSent, remindersFailed)
}

// ReminderRepo defines the repository contract required by ReminderService.
type ReminderRepo interface {
	// CreateReminder inserts a new reminder row.
	CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) (*domain.Reminder, error)

	// GetCommitment resolves the parent commitment (referential check).
	GetCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error)

	// ListDueReminders returns pending reminders with remind_at <= now,
	// remind_at ascending, parent commitment preloaded.
	ListDueReminders(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Reminder, error)

	// MarkReminderSent stamps sent_at on a still-pending reminder.
	MarkReminderSent(ctx context.Context, db *gorm.DB, id string, sentAt time.Time) error
}

// CreateReminderParams carries the caller-supplied fields for Create.
type CreateReminderParams struct {
	CommitmentID   string
	RemindAt       time.Time
	Message        *string
	DeliveryTarget *string

	// DeliveryChannel defaults to "whatsapp" when empty.
	DeliveryChannel string
}

// ReminderService coordinates reminder scheduling and dispatch.
type ReminderService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the reminder repository used by this service.
	Repo ReminderRepo
	// Sender is the notification channel deliveries go through.
	Sender notify.Sender

	// DefaultTarget is used when a reminder has no delivery target of its
	// own. It comes from configuration, never a hard-coded literal.
	DefaultTarget string
}

// NewReminderService constructs a ReminderService.
func NewReminderService(db *gorm.DB, r ReminderRepo, sender notify.Sender, defaultTarget string) *ReminderService {
	return &ReminderService{DB: db, Repo: r, Sender: sender, DefaultTarget: defaultTarget}
}

// Create schedules a reminder against an existing commitment. The referenced
// commitment must exist; otherwise ErrCommitmentNotFound is returned and
// nothing is persisted. sent_at starts null.
func (s *ReminderService) Create(ctx context.Context, p CreateReminderParams) (*domain.Reminder, error) {
	if _, err := s.Repo.GetCommitment(ctx, s.DB, p.CommitmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommitmentNotFound
		}
		return nil, err
	}

	channel := p.DeliveryChannel
	if channel == "" {
		channel = "whatsapp"
	}
	r := &domain.Reminder{
		CommitmentID:    p.CommitmentID,
		RemindAt:        p.RemindAt.UTC(),
		Message:         p.Message,
		DeliveryTarget:  p.DeliveryTarget,
		DeliveryChannel: channel,
	}

	out, err := s.Repo.CreateReminder(ctx, s.DB, r)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("reminder_id", out.ID).
		Str("commitment_id", out.CommitmentID).
		Time("remind_at", out.RemindAt).
		Msg("reminder created")
	return out, nil
}

// ListDue returns every pending reminder whose remind_at has passed,
// earliest-due first.
func (s *ReminderService) ListDue(ctx context.Context) ([]domain.Reminder, error) {
	return s.Repo.ListDueReminders(ctx, s.DB, time.Now().UTC())
}

// DispatchDue fetches the due set and attempts delivery for each reminder
// independently, returning the reminders that were sent and durably marked.
//
// Per reminder:
//   - body: the explicit message, else "Reminder: {commitment title}", with
//     an "unknown" sentinel when the parent cannot be resolved (should not
//     occur given referential integrity, but must not crash the batch);
//   - target: the explicit delivery target, else the configured default;
//   - on delivery failure: log, leave sent_at null, continue. The reminder
//     stays due and retries on the next pass.
//
// sent_at is recorded via a conditional per-row update, so a reminder in
// the returned list is durably marked by the time this method returns, and
// an overlapping dispatch pass can claim any given row at most once.
func (s *ReminderService) DispatchDue(ctx context.Context) ([]domain.Reminder, error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "DispatchDue")
	defer span.End()

	now := time.Now().UTC()
	due, err := s.Repo.ListDueReminders(ctx, s.DB, now)
	if err != nil {
		return nil, err
	}

	dispatched := make([]domain.Reminder, 0, len(due))
	for i := range due {
		r := &due[i]

		body := "Reminder: unknown"
		if r.Commitment.Title != "" {
			body = "Reminder: " + r.Commitment.Title
		}
		if r.Message != nil && *r.Message != "" {
			body = *r.Message
		}

		var explicit string
		if r.DeliveryTarget != nil {
			explicit = *r.DeliveryTarget
		}
		target := sysutil.FirstNonEmpty(explicit, s.DefaultTarget)

		if _, err := s.Sender.Send(ctx, target, body); err != nil {
			remindersFailed.Inc()
			log.Error().
				Err(err).
				Str("reminder_id", r.ID).
				Str("target", target).
				Msg("reminder delivery failed")
			continue
		}

		sentAt := time.Now().UTC()
		if err := s.Repo.MarkReminderSent(ctx, s.DB, r.ID, sentAt); err != nil {
			// Zero rows means another pass claimed it between our read and
			// this update; the send was duplicated but the row is not ours.
			log.Warn().
				Err(err).
				Str("reminder_id", r.ID).
				Msg("reminder sent but not claimed")
			continue
		}

		remindersSent.Inc()
		r.SentAt = &sentAt
		dispatched = append(dispatched, *r)
		log.Info().
			Str("reminder_id", r.ID).
			Str("target", target).
			Str("channel", r.DeliveryChannel).
			Msg("reminder dispatched")
	}

	span.SetAttributes(
		attribute.Int("reminders.due", len(due)),
		attribute.Int("reminders.dispatched", len(dispatched)),
	)
	return dispatched, nil
}
