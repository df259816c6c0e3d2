// Package tools wraps the external services the tool stages call: a
// scheduling API for booking links and an SMTP server for outgoing mail.
package tools

import (
	"context"
	"errors"
)

// Scheduler returns a link where a visitor can book time.
type Scheduler interface {
	SchedulingLink(ctx context.Context) (string, error)
}

// Mailer sends an email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// Email is a plain-text message to a single recipient.
type Email struct {
	To      string
	Subject string
	Body    string
}

// DefaultSubject is used when an email has no subject.
const DefaultSubject = "Message from portfolio assistant"

var (
	// ErrNoEventTypes is returned when the scheduling account has no
	// bookable event types.
	ErrNoEventTypes = errors.New("tools: no event types with a scheduling url")

	// ErrNoRecipient is returned when an email has no recipient.
	ErrNoRecipient = errors.New("tools: email has no recipient")
)
