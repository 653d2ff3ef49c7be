// Package events announces operation state changes to other processes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "discovery.operations"

// Publisher receives every operation snapshot after it is persisted.
type Publisher interface {
	Publish(ctx context.Context, op domain.Operation) error
	Close() error
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.Operation) error { return nil }
func (Noop) Close() error                                    { return nil }

// Event is the message body published for an operation change.
type Event struct {
	Operation   domain.Operation `json:"operation"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSPublisher publishes events on <prefix>.<type>.<status>.
type NATSPublisher struct {
	nc     conn
	prefix string
	logger *slog.Logger
}

// ConnectNATS dials url and returns a publisher on it.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("strategic-discovery"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, prefix, logger), nil
}

func newNATSPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an operation snapshot is published on.
func Subject(prefix string, op domain.Operation) string {
	return fmt.Sprintf("%s.%s.%s", prefix, op.Type, op.Status)
}

// Publish sends op. NATS publishes are buffered by the client, so ctx is
// only checked before the write.
func (p *NATSPublisher) Publish(ctx context.Context, op domain.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Event{Operation: op, PublishedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := Subject(p.prefix, op)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("Operation event published", "subject", subject, "operation_id", op.ID)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
