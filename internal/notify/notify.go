// Package notify defines the notification-channel capability consumed by the
// reminder dispatch engine, plus the mock WhatsApp implementation used until
// a real provider (e.g. Twilio WhatsApp Business) is wired in. The engine
// depends only on the Sender interface, so providers can be swapped without
// touching callers.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Receipt describes the outcome of a single delivery attempt.
type Receipt struct {
	Status  string `json:"status"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

// Sender is the black-box send capability. Implementations may block and may
// fail; callers are expected to treat a returned error as non-fatal for the
// rest of their batch.
type Sender interface {
	Send(ctx context.Context, target, message string) (Receipt, error)
}

// WhatsAppMock is a Sender that logs the message instead of delivering it.
type WhatsAppMock struct{}

// NewWhatsAppMock returns the mock WhatsApp sender.
func NewWhatsAppMock() *WhatsAppMock { return &WhatsAppMock{} }

// Send logs the would-be delivery and reports success. The message preview is
// capped to keep log lines bounded.
func (w *WhatsAppMock) Send(ctx context.Context, target, message string) (Receipt, error) {
	preview := message
	if len(preview) > 200 {
		preview = preview[:200]
	}
	log.Info().
		Str("channel", "whatsapp-mock").
		Str("target", target).
		Str("message", preview).
		Msg("notification sent")

	return Receipt{Status: "sent_mock", Target: target, Message: message}, nil
}
