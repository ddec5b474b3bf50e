package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsConn is the subset of *nats.Conn used for publishing.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes envelopes on NATS subjects.
type NATSPublisher struct {
	conn    natsConn
	encoder Encoder
	prefix  string
}

// DialNATS connects to url and returns a publisher. Subjects are published
// as prefix + subject when prefix is set.
func DialNATS(url, prefix string, encoder Encoder) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("studio-scheduler"))
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats: %w", err)
	}
	return NewNATSPublisher(nc, prefix, encoder), nil
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn natsConn, prefix string, encoder Encoder) *NATSPublisher {
	return &NATSPublisher{conn: conn, encoder: encoder, prefix: prefix}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, body, err := p.encoder.Encode(subject, data)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.prefix+subject, body); err != nil {
		return fmt.Errorf("notify: publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
