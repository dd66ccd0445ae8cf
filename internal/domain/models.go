// Package domain defines the persistence models for commitments and
// reminders, together with the canonical enum types shared by validation,
// persistence, and the API layer. These types are mapped with GORM and form
// the core data layer of the commitment log.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of a commitment.
type Status string

// Commitment lifecycle states. CLOSED is terminal for listing purposes:
// closed rows are excluded from open listings but remain queryable.
const (
	StatusOpen    Status = "OPEN"
	StatusWaiting Status = "WAITING"
	StatusSnoozed Status = "SNOOZED"
	StatusClosed  Status = "CLOSED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusWaiting, StatusSnoozed, StatusClosed:
		return true
	}
	return false
}

// ParseStatus converts a string tag into a Status, rejecting unknown values.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q", v)
	}
	return s, nil
}

// Urgency is a priority-like classification, distinct from Status.
type Urgency string

const (
	UrgencyNow       Urgency = "NOW"
	UrgencySoon      Urgency = "SOON"
	UrgencyScheduled Urgency = "SCHEDULED"
	UrgencySomeday   Urgency = "SOMEDAY"
)

// Valid reports whether u is one of the known urgency tags.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyNow, UrgencySoon, UrgencyScheduled, UrgencySomeday:
		return true
	}
	return false
}

// ParseUrgency converts a string tag into an Urgency, rejecting unknown values.
func ParseUrgency(v string) (Urgency, error) {
	u := Urgency(v)
	if !u.Valid() {
		return "", fmt.Errorf("invalid urgency %q", v)
	}
	return u, nil
}

// ChannelType identifies the medium a commitment originated from.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSlack   ChannelType = "slack"
	ChannelMeeting ChannelType = "meeting"
	ChannelCall    ChannelType = "call"
	ChannelText    ChannelType = "text"
	ChannelWeb     ChannelType = "web"
	ChannelOther   ChannelType = "other"
)

// Valid reports whether t is one of the known channel types.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelEmail, ChannelSlack, ChannelMeeting, ChannelCall, ChannelText, ChannelWeb, ChannelOther:
		return true
	}
	return false
}

// ParseChannelType converts a string tag into a ChannelType, rejecting
// unknown values.
func ParseChannelType(v string) (ChannelType, error) {
	t := ChannelType(v)
	if !t.Valid() {
		return "", fmt.Errorf("invalid channel type %q", v)
	}
	return t, nil
}

// Commitment represents a tracked obligation with a lifecycle status.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), immutable after creation.
//   - Title: required, 1–512 chars; used for exact-match close resolution.
//   - Status: lifecycle state; defaults to OPEN.
//   - Person / Organization: who the commitment is owed to; Person is also
//     used to narrow title-based disambiguation.
//   - ChannelType / ChannelTitle / ChannelLink: where it originated.
//   - OpenedAt: set at creation, immutable.
//   - ClosedAt: stamped on transition to CLOSED. Sticky: moving the status
//     away from CLOSED later does not clear it; the field records the most
//     recent close.
//   - DueAt: optional deadline, used for filtering and ordering.
//   - LastTouchedAt: refreshed on every mutation; never earlier than OpenedAt.
//
// days_open is a read-time projection (see DaysOpen) and is never persisted.
type Commitment struct {
	ID            string       `json:"id"              gorm:"type:char(36);primaryKey"`
	Title         string       `json:"title"           gorm:"type:varchar(512);not null;index"`
	Description   *string      `json:"description"     gorm:"type:text"`
	Status        Status       `json:"status"          gorm:"type:varchar(16);not null;default:'OPEN';index;check:status IN ('OPEN','WAITING','SNOOZED','CLOSED')"`
	Urgency       *Urgency     `json:"urgency"         gorm:"type:varchar(16)"`
	Person        *string      `json:"person"          gorm:"type:varchar(256);index"`
	Organization  *string      `json:"organization"    gorm:"type:varchar(256)"`
	ChannelType   *ChannelType `json:"channel_type"    gorm:"type:varchar(16)"`
	ChannelTitle  *string      `json:"channel_title"   gorm:"type:varchar(256)"`
	ChannelLink   *string      `json:"channel_link"    gorm:"type:varchar(1024)"`
	SourceSnippet *string      `json:"source_snippet"  gorm:"type:text"`
	OpenedAt      time.Time    `json:"opened_at"       gorm:"not null;index"`
	ClosedAt      *time.Time   `json:"closed_at"`
	DueAt         *time.Time   `json:"due_at"          gorm:"index"`
	LastTouchedAt time.Time    `json:"last_touched_at" gorm:"not null"`
}

// TableName returns the database table name for Commitment.
func (Commitment) TableName() string { return "commitments" }

// Closed reports whether the commitment is in the CLOSED state.
func (c *Commitment) Closed() bool { return c.Status == StatusClosed }

// DaysOpen computes how long the commitment has been (or was) open, in days,
// rounded to two decimals. For an open commitment the window ends at now;
// for a closed one it ends at ClosedAt. Both endpoints are normalized to UTC
// before subtracting, so naive timestamps read back from SQLite compare
// correctly against aware ones.
func (c *Commitment) DaysOpen(now time.Time) float64 {
	end := now.UTC()
	if c.ClosedAt != nil {
		end = c.ClosedAt.UTC()
	}
	days := end.Sub(c.OpenedAt.UTC()).Seconds() / 86400.0
	return math.Round(days*100) / 100
}

// Reminder is a one-shot scheduled notification tied to a commitment.
//
// A reminder is "due" once RemindAt has passed while SentAt is still null.
// SentAt is stamped exactly once by the dispatch engine and never cleared.
// Reminders cannot outlive their commitment: deleting a commitment cascades
// to its reminders (enforced as an explicit store operation, see repo).
type Reminder struct {
	ID              string     `json:"id"               gorm:"type:char(36);primaryKey"`
	CommitmentID    string     `json:"commitment_id"    gorm:"type:char(36);not null;index"`
	RemindAt        time.Time  `json:"remind_at"        gorm:"not null;index"`
	SentAt          *time.Time `json:"sent_at"`
	DeliveryChannel string     `json:"delivery_channel" gorm:"type:varchar(64);not null;default:'whatsapp'"`
	DeliveryTarget  *string    `json:"delivery_target"  gorm:"type:varchar(256)"`
	Message         *string    `json:"message"          gorm:"type:text"`

	// Commitment is the parent obligation; the dispatch engine reads its
	// title when synthesizing a message body.
	Commitment Commitment `json:"-" gorm:"foreignKey:CommitmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Reminder.
func (Reminder) TableName() string { return "reminders" }

// Pending reports whether the reminder has not been dispatched yet.
func (r *Reminder) Pending() bool { return r.SentAt == nil }
