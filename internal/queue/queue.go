// Package queue provides the notification channel between the ingestion
// path and the recognition worker: an at-least-once, lock-based delivery
// queue. A received message stays locked for a visibility window; the
// consumer renews the lock while working, completes the message to remove
// it, or lets the lock lapse for redelivery. Messages that exhaust their
// delivery budget are dead-lettered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/visio-labs/visio/internal/models"
)

// ErrLockLost indicates the message's processing lock has expired or the
// message is no longer held by this consumer.
var ErrLockLost = errors.New("message lock lost")

// Envelope is the wire shape of a queued notification. Content is the
// image record snapshot at enqueue time; it recovers the record id and
// object path but is never authoritative for current status.
type Envelope struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Content   models.ImageRecord `json:"content"`
}

// NewEnvelope wraps a record snapshot in a notification envelope with a
// fresh message id.
func NewEnvelope(rec models.ImageRecord) Envelope {
	return Envelope{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Content:   rec,
	}
}

// Encode serializes the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses the JSON wire form.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Delivery is one received message and the operations the consumer holds
// while its lock is live.
type Delivery interface {
	// Body returns the raw envelope bytes.
	Body() []byte
	// DeliveryCount returns how many times this message has been delivered,
	// including this delivery.
	DeliveryCount() int
	// RenewLock extends the processing lock by the queue's lock duration.
	RenewLock(ctx context.Context) error
	// Complete removes the message from the queue. After a successful
	// Complete the message is never redelivered.
	Complete(ctx context.Context) error
	// Abandon releases the lock immediately, making the message available
	// for redelivery without waiting for lock expiry.
	Abandon(ctx context.Context) error
}

// Queue is the notification channel contract.
type Queue interface {
	// Publish enqueues an envelope for delivery.
	Publish(ctx context.Context, env Envelope) error
	// Receive claims the oldest available message and locks it for the
	// queue's lock duration. Returns (nil, nil) when no message is ready.
	Receive(ctx context.Context) (Delivery, error)
}
