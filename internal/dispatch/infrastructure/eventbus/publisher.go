// Package eventbus publishes planner domain events to a message
// broker. Publishing is best-effort: the replan cycle never fails
// because an event could not be delivered.
package eventbus

import (
	"context"
	"log/slog"
)

// Publisher sends one serialized event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// NoopPublisher drops events. Used in development when no broker is
// configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that only logs.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the event at debug level and discards it.
func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("event dropped (no broker configured)",
		"routing_key", routingKey,
		"bytes", len(payload),
	)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error { return nil }
