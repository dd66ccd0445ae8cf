// Package services defines the business logic for the commitment lifecycle
// and reminder dispatch. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer. Note that an ambiguous title match is NOT
// an error: it is a structured CloseResult carrying the candidate set.
package services

import "errors"

// Commitment-related errors.
var (
	// ErrCommitmentNotFound indicates that the referenced commitment does not
	// exist, or (for close-by-ID) that it exists but is already CLOSED.
	ErrCommitmentNotFound = errors.New("commitment not found")

	// ErrEmptyTitle is returned when opening a commitment with a blank title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrTitleTooLong is returned when a title exceeds the maximum length.
	ErrTitleTooLong = errors.New("title too long")

	// ErrMissingCloseSelector is returned when close is invoked with neither
	// a commitment ID nor a title.
	ErrMissingCloseSelector = errors.New("provide commitment_id or title")
)

// Reminder-related errors.
var (
	// ErrReminderNotFound indicates that the requested reminder does not exist.
	ErrReminderNotFound = errors.New("reminder not found")
)
