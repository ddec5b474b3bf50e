// Package notify publishes domain notifications as JSON envelopes over NATS
// or an AMQP topic exchange.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// SubjectPropagationCompleted is emitted after a propagation run inserts events.
	SubjectPropagationCompleted = "propagation.completed"
	// SubjectCreditsAdjusted is emitted after class credits change.
	SubjectCreditsAdjusted = "credits.adjusted"
)

// Meta identifies a published notification.
type Meta struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Time time.Time `json:"time"`
}

// Envelope is the wire format of every notification.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Publisher delivers notifications to a broker.
type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

// Encoder builds envelopes with injected id and clock sources.
type Encoder struct {
	newID func() string
	now   func() time.Time
}

// NewEncoder returns an Encoder. Nil arguments default to random UUIDs and
// the wall clock.
func NewEncoder(newID func() string, now func() time.Time) Encoder {
	if newID == nil {
		newID = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return Encoder{newID: newID, now: now}
}

// Envelope wraps data for subject.
func (e Encoder) Envelope(subject string, data any) Envelope {
	enc := e
	if enc.newID == nil || enc.now == nil {
		enc = NewEncoder(enc.newID, enc.now)
	}
	return Envelope{
		Meta: Meta{ID: enc.newID(), Type: subject, Time: enc.now().UTC()},
		Data: data,
	}
}

// Encode wraps data for subject and returns the envelope with its JSON body.
func (e Encoder) Encode(subject string, data any) (Envelope, []byte, error) {
	env := e.Envelope(subject, data)
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("notify: encode %s: %w", subject, err)
	}
	return env, body, nil
}

// Noop discards every notification.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, any) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
