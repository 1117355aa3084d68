package queue

import (
	"context"
	"sync"
	"time"
)

// message is one entry in the in-memory queue.
type message struct {
	id            string
	body          []byte
	status        string // "ready", "locked", "dead"
	lockUntil     time.Time
	deliveryCount int
	enqueuedAt    time.Time
}

// Memory implements Queue in process memory with the same lock-based
// semantics as the SurrealDB queue. Used in tests and local smoke runs.
type Memory struct {
	mu           sync.Mutex
	messages     []*message
	lockDuration time.Duration
	maxDelivery  int
	now          func() time.Time
}

// NewMemory creates an in-memory queue.
func NewMemory(lockDuration time.Duration, maxDelivery int) *Memory {
	if lockDuration <= 0 {
		lockDuration = 30 * time.Second
	}
	if maxDelivery <= 0 {
		maxDelivery = 5
	}
	return &Memory{
		lockDuration: lockDuration,
		maxDelivery:  maxDelivery,
		now:          time.Now,
	}
}

// Compile-time check that Memory implements Queue.
var _ Queue = (*Memory)(nil)

// SetClock overrides the queue's clock. Testing only.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Publish enqueues an envelope.
func (m *Memory) Publish(_ context.Context, env Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, &message{
		id:         env.ID,
		body:       body,
		status:     "ready",
		enqueuedAt: m.now(),
	})
	return nil
}

// Receive claims the oldest claimable message, parking exhausted ones.
func (m *Memory) Receive(_ context.Context) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, msg := range m.messages {
		if msg.status == "locked" && msg.lockUntil.Before(now) && msg.deliveryCount >= m.maxDelivery {
			msg.status = "dead"
			msg.lockUntil = time.Time{}
		}
	}
	for _, msg := range m.messages {
		if msg.status == "ready" || (msg.status == "locked" && msg.lockUntil.Before(now)) {
			msg.status = "locked"
			msg.lockUntil = now.Add(m.lockDuration)
			msg.deliveryCount++
			return &memoryDelivery{queue: m, msg: msg}, nil
		}
	}
	return nil, nil
}

// Stats returns the number of ready, locked, and dead messages.
func (m *Memory) Stats() (ready, locked, dead int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		switch msg.status {
		case "ready":
			ready++
		case "locked":
			locked++
		case "dead":
			dead++
		}
	}
	return ready, locked, dead
}

// memoryDelivery is one claimed message on the in-memory queue.
type memoryDelivery struct {
	queue *Memory
	msg   *message
}

func (d *memoryDelivery) Body() []byte       { return d.msg.body }
func (d *memoryDelivery) DeliveryCount() int { return d.msg.deliveryCount }

func (d *memoryDelivery) RenewLock(_ context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	now := d.queue.now()
	if d.msg.status != "locked" || d.msg.lockUntil.Before(now) {
		return ErrLockLost
	}
	d.msg.lockUntil = now.Add(d.queue.lockDuration)
	return nil
}

func (d *memoryDelivery) Complete(_ context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	for i, msg := range d.queue.messages {
		if msg == d.msg {
			d.queue.messages = append(d.queue.messages[:i], d.queue.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (d *memoryDelivery) Abandon(_ context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.msg.status == "locked" {
		d.msg.status = "ready"
		d.msg.lockUntil = time.Time{}
	}
	return nil
}
