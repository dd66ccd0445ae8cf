// Commitment HTTP handlers.
//
// This file exposes REST endpoints for the commitment lifecycle:
//   - POST   /commitments/open     (create)
//   - POST   /commitments/close    (close by ID or by title, 409 on ambiguity)
//   - POST   /commitments/update   (partial patch by ID)
//   - GET    /commitments/open     (list non-CLOSED)
//   - GET    /commitments/query    (filtered query)
//   - GET    /commitments/:id      (fetch by ID)
//   - DELETE /commitments/:id      (delete with reminder cascade)
//
// Handlers are transport-thin: they validate and decode input, call the
// application services, and translate results into HTTP responses. Every
// commitment body carries the derived days_open field, computed at read time.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-commitlog-backend/internal/domain"
	"github.com/tbourn/go-commitlog-backend/internal/repo"
	"github.com/tbourn/go-commitlog-backend/internal/services"
	"github.com/tbourn/go-commitlog-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CommitmentService defines the commitment lifecycle operations consumed by
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context.
type CommitmentService interface {
	Open(ctx context.Context, p services.OpenParams) (*domain.Commitment, error)
	Close(ctx context.Context, id, title, person string) (*services.CloseResult, error)
	Update(ctx context.Context, id string, patch services.UpdatePatch) (*domain.Commitment, error)
	Get(ctx context.Context, id string) (*domain.Commitment, error)
	ListOpen(ctx context.Context) ([]domain.Commitment, error)
	Query(ctx context.Context, f repo.CommitmentFilter) ([]domain.Commitment, error)
	Delete(ctx context.Context, id string) error
}

// ReminderService defines the reminder operations consumed by HTTP handlers.
type ReminderService interface {
	Create(ctx context.Context, p services.CreateReminderParams) (*domain.Reminder, error)
	ListDue(ctx context.Context) ([]domain.Reminder, error)
	DispatchDue(ctx context.Context) ([]domain.Reminder, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for commitments and reminders.
type Handlers struct {
	commitSvc CommitmentService
	remSvc    ReminderService
}

// New constructs a Handlers instance bound to the given services.
func New(commitSvc CommitmentService, remSvc ReminderService) *Handlers {
	return &Handlers{commitSvc: commitSvc, remSvc: remSvc}
}

//
// DTOs
//

// OpenCommitmentRequest is the JSON payload for opening a commitment.
// Enum-valued fields arrive as strings and are validated against the domain
// enums; timestamps are RFC 3339.
type OpenCommitmentRequest struct {
	Title         string     `json:"title" binding:"required"`
	Description   *string    `json:"description"`
	Person        *string    `json:"person"`
	Organization  *string    `json:"organization"`
	ChannelType   *string    `json:"channel_type"`
	ChannelTitle  *string    `json:"channel_title"`
	ChannelLink   *string    `json:"channel_link"`
	Urgency       *string    `json:"urgency"`
	DueAt         *time.Time `json:"due_at"`
	SourceSnippet *string    `json:"source_snippet"`
	Status        *string    `json:"status"`
}

// CloseCommitmentRequest selects the commitment to close: either by explicit
// ID (authoritative) or by exact title, optionally narrowed by person.
type CloseCommitmentRequest struct {
	CommitmentID string `json:"commitment_id"`
	Title        string `json:"title"`
	Person       string `json:"person"`
}

// UpdateCommitmentRequest is the JSON payload for a partial update. Absent
// fields are left unchanged.
type UpdateCommitmentRequest struct {
	CommitmentID  string     `json:"commitment_id" binding:"required"`
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	Status        *string    `json:"status"`
	Urgency       *string    `json:"urgency"`
	Person        *string    `json:"person"`
	Organization  *string    `json:"organization"`
	ChannelType   *string    `json:"channel_type"`
	ChannelTitle  *string    `json:"channel_title"`
	ChannelLink   *string    `json:"channel_link"`
	DueAt         *time.Time `json:"due_at"`
	SourceSnippet *string    `json:"source_snippet"`
}

// CommitmentResponse is the wire form of a commitment plus the derived
// days_open value, recomputed on every read so open commitments keep aging.
type CommitmentResponse struct {
	domain.Commitment
	DaysOpen float64 `json:"days_open"`
}

// AmbiguousCloseResponse is returned with HTTP 409 when a title-based close
// matches more than one open commitment. The caller re-invokes close with
// one of the candidate IDs.
type AmbiguousCloseResponse struct {
	RequestID  string               `json:"request_id,omitempty"`
	Code       string               `json:"code"`
	Message    string               `json:"message"`
	Candidates []CommitmentResponse `json:"candidates"`
}

// newCommitmentResponse projects c into its wire form at the current time.
func newCommitmentResponse(c *domain.Commitment) CommitmentResponse {
	return CommitmentResponse{Commitment: *c, DaysOpen: c.DaysOpen(time.Now().UTC())}
}

func commitmentResponses(rows []domain.Commitment) []CommitmentResponse {
	now := time.Now().UTC()
	out := make([]CommitmentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, CommitmentResponse{Commitment: rows[i], DaysOpen: rows[i].DaysOpen(now)})
	}
	return out
}

//
// Enum decoding helpers
//

func parseStatusPtr(v *string) (*domain.Status, error) {
	if v == nil {
		return nil, nil
	}
	s, err := domain.ParseStatus(*v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func parseUrgencyPtr(v *string) (*domain.Urgency, error) {
	if v == nil {
		return nil, nil
	}
	u, err := domain.ParseUrgency(*v)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func parseChannelTypePtr(v *string) (*domain.ChannelType, error) {
	if v == nil {
		return nil, nil
	}
	t, err := domain.ParseChannelType(*v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// failFromService maps service-layer sentinels onto HTTP responses.
func failFromService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCommitmentNotFound),
		errors.Is(err, services.ErrReminderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrEmptyTitle),
		errors.Is(err, services.ErrTitleTooLong),
		errors.Is(err, services.ErrMissingCloseSelector):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// OpenCommitment creates a commitment and returns it with HTTP 201.
func (h *Handlers) OpenCommitment(c *gin.Context) {
	var req OpenCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	status, err := parseStatusPtr(req.Status)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	urgency, err := parseUrgencyPtr(req.Urgency)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	channelType, err := parseChannelTypePtr(req.ChannelType)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	p := services.OpenParams{
		Title:         req.Title,
		Description:   req.Description,
		Person:        req.Person,
		Organization:  req.Organization,
		ChannelType:   channelType,
		ChannelTitle:  req.ChannelTitle,
		ChannelLink:   req.ChannelLink,
		Urgency:       urgency,
		DueAt:         req.DueAt,
		SourceSnippet: req.SourceSnippet,
	}
	if status != nil {
		p.Status = *status
	}

	commitment, err := h.commitSvc.Open(c.Request.Context(), p)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, newCommitmentResponse(commitment))
}

// CloseCommitment resolves the close request to a unique target and closes
// it. Ambiguous title matches yield 409 with the candidate set; no match
// yields 404.
func (h *Handlers) CloseCommitment(c *gin.Context) {
	var req CloseCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.commitSvc.Close(c.Request.Context(), req.CommitmentID, req.Title, req.Person)
	if err != nil {
		failFromService(c, err)
		return
	}
	if res.Ambiguous() {
		ok(c, http.StatusConflict, AmbiguousCloseResponse{
			RequestID:  c.Writer.Header().Get("X-Request-ID"),
			Code:       ErrCodeAmbiguousMatch,
			Message:    "multiple open commitments match; specify commitment_id",
			Candidates: commitmentResponses(res.Candidates),
		})
		return
	}
	ok(c, http.StatusOK, newCommitmentResponse(res.Closed))
}

// UpdateCommitment applies a partial patch to a commitment by ID.
func (h *Handlers) UpdateCommitment(c *gin.Context) {
	var req UpdateCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	status, err := parseStatusPtr(req.Status)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	urgency, err := parseUrgencyPtr(req.Urgency)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	channelType, err := parseChannelTypePtr(req.ChannelType)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	patch := services.UpdatePatch{
		Title:         req.Title,
		Description:   req.Description,
		Status:        status,
		Urgency:       urgency,
		Person:        req.Person,
		Organization:  req.Organization,
		ChannelType:   channelType,
		ChannelTitle:  req.ChannelTitle,
		ChannelLink:   req.ChannelLink,
		DueAt:         req.DueAt,
		SourceSnippet: req.SourceSnippet,
	}

	commitment, err := h.commitSvc.Update(c.Request.Context(), req.CommitmentID, patch)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, newCommitmentResponse(commitment))
}

// GetCommitment fetches a single commitment by ID, CLOSED ones included.
func (h *Handlers) GetCommitment(c *gin.Context) {
	commitment, err := h.commitSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, newCommitmentResponse(commitment))
}

// ListOpenCommitments returns every non-CLOSED commitment, oldest first.
func (h *Handlers) ListOpenCommitments(c *gin.Context) {
	rows, err := h.commitSvc.ListOpen(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, commitmentResponses(rows))
}

// maxQueryLimit caps an explicitly requested page size. An absent or
// non-positive limit leaves the result set unbounded.
const maxQueryLimit = 500

// QueryCommitments returns commitments matching the ANDed query-string
// filters: person, status, urgency, channel_type, due_before/after,
// opened_before/after, text, plus optional limit/offset.
func (h *Handlers) QueryCommitments(c *gin.Context) {
	var f repo.CommitmentFilter
	f.Person = c.Query("person")
	f.Text = c.Query("text")

	if v := c.Query("status"); v != "" {
		s, err := domain.ParseStatus(v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		f.Status = s
	}
	if v := c.Query("urgency"); v != "" {
		u, err := domain.ParseUrgency(v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		f.Urgency = u
	}
	if v := c.Query("channel_type"); v != "" {
		ct, err := domain.ParseChannelType(v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		f.ChannelType = ct
	}

	for _, tf := range []struct {
		param string
		dst   **time.Time
	}{
		{"due_before", &f.DueBefore},
		{"due_after", &f.DueAfter},
		{"opened_before", &f.OpenedBefore},
		{"opened_after", &f.OpenedAfter},
	} {
		if v := c.Query(tf.param); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid "+tf.param+": expected RFC 3339 timestamp")
				return
			}
			*tf.dst = &ts
		}
	}

	f.Limit = utils.ClampLimit(utils.AtoiDefault(c.Query("limit"), 0), 0, maxQueryLimit)
	f.Offset = utils.ClampOffset(utils.AtoiDefault(c.Query("offset"), 0))

	rows, err := h.commitSvc.Query(c.Request.Context(), f)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, commitmentResponses(rows))
}

// DeleteCommitment removes a commitment and its reminders.
func (h *Handlers) DeleteCommitment(c *gin.Context) {
	if err := h.commitSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}
