// Package notify publishes site events (new contact requests, newsletter
// signups, imported posts) to NATS so other tools can react to them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "junksite."

// Event kinds, appended to the subject prefix.
const (
	ContactSubmitted     = "contact.submitted"
	NewsletterSubscribed = "newsletter.subscribed"
	PostImported         = "post.imported"
)

// Event is the payload of every published message.
type Event struct {
	Kind       string            `json:"kind"`
	ID         int64             `json:"id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close()                               {}

// NatsPublisher publishes events as JSON on junksite.<kind>.
type NatsPublisher struct {
	nc *nats.Conn
}

// Connect returns a NATS-backed publisher, or Noop when url is empty.
func Connect(url string, logger *slog.Logger) (Publisher, error) {
	if url == "" {
		return Noop{}, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("junksite"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsPublisher{nc: nc}, nil
}

// Subject returns the NATS subject for an event kind.
func Subject(kind string) string {
	return subjectPrefix + kind
}

func (p *NatsPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.nc.PublishMsg(&nats.Msg{
		Subject: Subject(ev.Kind),
		Data:    data,
	})
}

func (p *NatsPublisher) Close() {
	_ = p.nc.Drain()
}
