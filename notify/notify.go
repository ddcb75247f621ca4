// CLAUDE:SUMMARY Digest model handed from the scan pipeline to delivery, plus the Mailer that composes and sends it.
// Package notify turns a finalized competitor list into an email digest and
// delivers it through a Sender (SMTP or SendGrid).
//
// The scan pipeline decides content and ordering; this package only renders
// and transports. Delivery failures surface as *NotificationError and never
// affect persisted competitor records.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoRecipient is returned when a Digest has no To address.
var ErrNoRecipient = errors.New("notify: digest has no recipient")

// Item is one competitor line of a digest, already in final order.
type Item struct {
	CompetitorID string
	Name         string
	URL          string
	Source       string
	Price        *float64
	Score        int
	Reasoning    string
	Advantage    string
}

// Digest is the content of one notification.
type Digest struct {
	To        string
	IdeaID    string
	IdeaTitle string
	Items     []Item
	Verdict   string
	Gap       string
	// NoMatches marks the "monitoring ran, nothing new" message.
	NoMatches bool
}

// Notifier delivers a digest.
type Notifier interface {
	Notify(ctx context.Context, d Digest) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, d Digest) error

func (f NotifierFunc) Notify(ctx context.Context, d Digest) error { return f(ctx, d) }

// NotificationError wraps any composition or delivery failure.
type NotificationError struct {
	To  string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify: deliver to %s: %v", e.To, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Message is a rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender transports a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Mailer composes digests and sends them.
type Mailer struct {
	composer *Composer
	sender   Sender
	from     string
	logger   *slog.Logger
}

// NewMailer creates a Mailer. from is the envelope sender address.
func NewMailer(c *Composer, s Sender, from string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{composer: c, sender: s, from: from, logger: logger}
}

// Notify renders d and hands it to the sender.
func (m *Mailer) Notify(ctx context.Context, d Digest) error {
	if strings.TrimSpace(d.To) == "" {
		return &NotificationError{Err: ErrNoRecipient}
	}
	msg, err := m.composer.Compose(d)
	if err != nil {
		return &NotificationError{To: d.To, Err: err}
	}
	msg.From = m.from
	if err := m.sender.Send(ctx, msg); err != nil {
		return &NotificationError{To: d.To, Err: err}
	}
	m.logger.Info("notify: digest sent", "idea_id", d.IdeaID, "to", d.To, "items", len(d.Items), "no_matches", d.NoMatches)
	return nil
}

// Discard is a Notifier that logs and drops every digest. Used when no
// sender is configured.
func Discard(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return NotifierFunc(func(_ context.Context, d Digest) error {
		logger.Info("notify: no sender configured, digest dropped", "idea_id", d.IdeaID, "items", len(d.Items))
		return nil
	})
}
