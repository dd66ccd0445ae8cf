// Package worker provides the periodic driver for the reminder dispatch
// engine. It holds no dispatch logic of its own: on every tick it asks the
// dispatcher to process the due set and logs the outcome. Errors are logged
// and the loop carries on; the retry for a failed pass is simply the next
// tick.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
)

// Dispatcher is the part of the reminder service the worker drives.
type Dispatcher interface {
	DispatchDue(ctx context.Context) ([]domain.Reminder, error)
}

// Worker invokes the dispatcher on a fixed interval.
type Worker struct {
	// Interval between dispatch passes.
	Interval time.Duration
	// Dispatcher processes the due reminder set.
	Dispatcher Dispatcher
}

// New constructs a Worker. A non-positive interval falls back to one minute.
func New(d Dispatcher, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{Interval: interval, Dispatcher: d}
}

// RunOnce performs a single dispatch pass and returns the number of
// reminders delivered.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	dispatched, err := w.Dispatcher.DispatchDue(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Int("dispatched", len(dispatched)).Msg("dispatch pass complete")
	return len(dispatched), nil
}

// Run performs an immediate pass and then one per interval until ctx is
// cancelled. A failing pass is logged and does not stop the loop.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Dur("interval", w.Interval).Msg("worker starting")

	if _, err := w.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("dispatch pass failed")
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopping")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("dispatch pass failed")
			}
		}
	}
}
