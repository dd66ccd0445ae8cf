// Reminder HTTP handlers.
//
// This file exposes REST endpoints for reminders:
//   - POST /reminders/create        (schedule a reminder on a commitment)
//   - GET  /reminders/due           (peek at the currently due set)
//   - POST /reminders/dispatch_due  (dispatch the due set immediately)
//
// dispatch_due shares its implementation with the background worker; the
// endpoint exists so the driving agent can force a pass without waiting for
// the next tick.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
	"github.com/tbourn/go-commitlog-backend/internal/services"
)

// CreateReminderRequest is the JSON payload for scheduling a reminder.
// remind_at is RFC 3339. delivery_channel defaults to "whatsapp"; message
// defaults to a synthesized "Reminder: {title}" at dispatch time.
type CreateReminderRequest struct {
	CommitmentID    string    `json:"commitment_id" binding:"required"`
	RemindAt        time.Time `json:"remind_at" binding:"required"`
	Message         *string   `json:"message"`
	DeliveryTarget  *string   `json:"delivery_target"`
	DeliveryChannel string    `json:"delivery_channel"`
}

// CreateReminder schedules a reminder for an existing commitment.
func (h *Handlers) CreateReminder(c *gin.Context) {
	var req CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rem, err := h.remSvc.Create(c.Request.Context(), services.CreateReminderParams{
		CommitmentID:    req.CommitmentID,
		RemindAt:        req.RemindAt,
		Message:         req.Message,
		DeliveryTarget:  req.DeliveryTarget,
		DeliveryChannel: req.DeliveryChannel,
	})
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, rem)
}

// ListDueReminders returns the unsent reminders whose remind_at has passed,
// earliest first.
func (h *Handlers) ListDueReminders(c *gin.Context) {
	rows, err := h.remSvc.ListDue(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if rows == nil {
		rows = []domain.Reminder{}
	}
	ok(c, http.StatusOK, rows)
}

// DispatchDueReminders runs a dispatch pass over the due set and returns the
// reminders that were delivered and marked sent.
func (h *Handlers) DispatchDueReminders(c *gin.Context) {
	dispatched, err := h.remSvc.DispatchDue(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, dispatched)
}
