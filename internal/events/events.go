// Package events publishes generation lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gosimple/slug"
	"github.com/nats-io/nats.go"
)

type Kind string

const (
	KindStarted   Kind = "started"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

type GenerationEvent struct {
	Kind         Kind      `json:"kind"`
	GenerationID string    `json:"generation_id"`
	OwnerID      string    `json:"owner_id"`
	StyleID      string    `json:"style_id"`
	BackgroundID string    `json:"background_id"`
	Images       []string  `json:"images,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

type Publisher interface {
	PublishGeneration(ctx context.Context, ev GenerationEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishGeneration(context.Context, GenerationEvent) error { return nil }

// Subject returns the subject a generation event for owner is published on.
func Subject(ownerID string) string {
	owner := slug.Make(ownerID)
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("headshot.%s.generation", owner)
}

type NATSOptions struct {
	Conn   *nats.Conn
	Logger *slog.Logger
}

type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNATS(opts NATSOptions) *NATSPublisher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NATSPublisher{nc: opts.Conn, logger: logger}
}

func (p *NATSPublisher) PublishGeneration(ctx context.Context, ev GenerationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := Subject(ev.OwnerID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", "subject", subject, "kind", ev.Kind, "generation_id", ev.GenerationID)
	return nil
}

// AllSubjects matches the generation events of every owner.
const AllSubjects = "headshot.*.generation"

// Subscribe delivers every generation event on nc to fn. Messages that do
// not decode are skipped.
func Subscribe(nc *nats.Conn, fn func(GenerationEvent)) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(AllSubjects, func(msg *nats.Msg) {
		var ev GenerationEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", AllSubjects, err)
	}
	return sub, nil
}
