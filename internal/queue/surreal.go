package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/visio-labs/visio/internal/db"
)

// notificationRow is the SurrealDB shape of a queued message.
type notificationRow struct {
	ID            surrealmodels.RecordID `json:"id"`
	Envelope      string                 `json:"envelope"`
	Status        string                 `json:"status"`
	LockUntil     *time.Time             `json:"lock_until,omitempty"`
	DeliveryCount int                    `json:"delivery_count"`
	EnqueuedAt    time.Time              `json:"enqueued_at"`
}

// SurrealQueue implements Queue on the notification table. Claiming sets
// status to locked with a lock_until deadline; messages whose lock lapsed
// become claimable again, and messages that exhausted the delivery budget
// are parked as dead before each claim.
type SurrealQueue struct {
	client       *db.Client
	lockDuration time.Duration
	maxDelivery  int
}

// NewSurrealQueue creates a queue over the given client. lockDuration is
// the visibility window granted per receive and per renewal; maxDelivery
// caps redeliveries before dead-lettering.
func NewSurrealQueue(client *db.Client, lockDuration time.Duration, maxDelivery int) *SurrealQueue {
	if lockDuration <= 0 {
		lockDuration = 30 * time.Second
	}
	if maxDelivery <= 0 {
		maxDelivery = 5
	}
	return &SurrealQueue{client: client, lockDuration: lockDuration, maxDelivery: maxDelivery}
}

// Compile-time check that SurrealQueue implements Queue.
var _ Queue = (*SurrealQueue)(nil)

// Publish enqueues an envelope. The envelope id doubles as the message id.
func (q *SurrealQueue) Publish(ctx context.Context, env Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	_, err = surrealdb.Query[any](ctx, q.client.DB(), `
		CREATE type::record("notification", $id) CONTENT {
			envelope: $envelope,
			status: "ready",
			delivery_count: 0,
			enqueued_at: time::now()
		}
	`, map[string]any{"id": env.ID, "envelope": string(body)})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Receive parks exhausted messages, then atomically claims the oldest
// claimable one. Returns (nil, nil) when the queue has nothing ready.
func (q *SurrealQueue) Receive(ctx context.Context) (Delivery, error) {
	until := time.Now().UTC().Add(q.lockDuration)
	results, err := surrealdb.Query[[]notificationRow](ctx, q.client.DB(), `
		UPDATE notification SET status = "dead", lock_until = NONE
			WHERE status = "locked" AND lock_until < time::now() AND delivery_count >= $max;
		UPDATE (
			SELECT VALUE id FROM notification
			WHERE status = "ready" OR (status = "locked" AND lock_until < time::now())
			ORDER BY enqueued_at ASC LIMIT 1
		) SET status = "locked", lock_until = <datetime>$until, delivery_count += 1
		RETURN AFTER
	`, map[string]any{"max": q.maxDelivery, "until": until})
	if err != nil {
		return nil, fmt.Errorf("receive notification: %w", err)
	}
	if results == nil || len(*results) < 2 {
		return nil, fmt.Errorf("receive notification: unexpected result shape")
	}
	claimed := (*results)[1].Result
	if len(claimed) == 0 {
		return nil, nil
	}
	row := claimed[0]
	id, ok := row.ID.ID.(string)
	if !ok {
		return nil, fmt.Errorf("receive notification: unexpected id type %T", row.ID.ID)
	}
	return &surrealDelivery{
		queue: q,
		id:    id,
		body:  []byte(row.Envelope),
		count: row.DeliveryCount,
	}, nil
}

// Stats returns the number of ready, locked, and dead messages.
func (q *SurrealQueue) Stats(ctx context.Context) (ready, locked, dead int, err error) {
	type statusCount struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	results, err := surrealdb.Query[[]statusCount](ctx, q.client.DB(), `
		SELECT status, count() AS count FROM notification GROUP BY status
	`, nil)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("queue stats: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, 0, 0, nil
	}
	for _, sc := range (*results)[0].Result {
		switch sc.Status {
		case "ready":
			ready = sc.Count
		case "locked":
			locked = sc.Count
		case "dead":
			dead = sc.Count
		}
	}
	return ready, locked, dead, nil
}

// surrealDelivery is one claimed message on the notification table.
type surrealDelivery struct {
	queue *SurrealQueue
	id    string
	body  []byte
	count int
}

func (d *surrealDelivery) Body() []byte       { return d.body }
func (d *surrealDelivery) DeliveryCount() int { return d.count }

// RenewLock extends the lock while it is still held. A renewal after the
// lock lapsed (and another consumer may have claimed it) fails with
// ErrLockLost.
func (d *surrealDelivery) RenewLock(ctx context.Context) error {
	until := time.Now().UTC().Add(d.queue.lockDuration)
	results, err := surrealdb.Query[[]notificationRow](ctx, d.queue.client.DB(), `
		UPDATE type::record("notification", $id)
			SET lock_until = <datetime>$until
			WHERE status = "locked" AND lock_until >= time::now()
		RETURN AFTER
	`, map[string]any{"id": d.id, "until": until})
	if err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return ErrLockLost
	}
	return nil
}

// Complete removes the message permanently.
func (d *surrealDelivery) Complete(ctx context.Context) error {
	_, err := surrealdb.Query[any](ctx, d.queue.client.DB(), `
		DELETE type::record("notification", $id)
	`, map[string]any{"id": d.id})
	if err != nil {
		return fmt.Errorf("complete notification: %w", err)
	}
	return nil
}

// Abandon releases the lock so the message is redelivered immediately.
func (d *surrealDelivery) Abandon(ctx context.Context) error {
	_, err := surrealdb.Query[any](ctx, d.queue.client.DB(), `
		UPDATE type::record("notification", $id)
			SET status = "ready", lock_until = NONE
			WHERE status = "locked"
	`, map[string]any{"id": d.id})
	if err != nil {
		return fmt.Errorf("abandon notification: %w", err)
	}
	return nil
}
