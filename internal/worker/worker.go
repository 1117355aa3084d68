// Package worker implements the asynchronous recognition worker: it
// consumes notification messages, keeps the message lock alive while the
// slow recognition call runs, applies the record state transition, and
// acknowledges the message exactly when the durable update has landed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visio-labs/visio/internal/db"
	"github.com/visio-labs/visio/internal/metrics"
	"github.com/visio-labs/visio/internal/models"
	"github.com/visio-labs/visio/internal/queue"
	"github.com/visio-labs/visio/internal/vision"
)

// Error taxonomy for a single message attempt. All are terminal to the
// attempt; redelivery is the only retry mechanism.
var (
	// ErrInvalidMessage marks a malformed payload or a missing object
	// reference. Never acknowledged, never retried locally.
	ErrInvalidMessage = errors.New("invalid notification message")

	// ErrRecognition marks a failed recognition call. The record is moved
	// to failed and the message is left for redelivery.
	ErrRecognition = errors.New("recognition failed")

	// ErrPersistence marks a failed metadata update. The message is left
	// for redelivery.
	ErrPersistence = errors.New("persist record failed")
)

// RecordStore is the slice of the metadata store the worker needs:
// re-read the authoritative record and replace it.
type RecordStore interface {
	GetImage(ctx context.Context, id string) (*models.ImageRecord, error)
	UpdateImage(ctx context.Context, rec models.ImageRecord) error
}

// URLSigner builds a fetchable URL for an object path, access token
// included.
type URLSigner interface {
	SignedURL(ctx context.Context, key string) (string, error)
}

// Config tunes the worker loops.
type Config struct {
	// LockRenewInterval is how often the child task extends the message
	// lock while recognition runs. Default 10s.
	LockRenewInterval time.Duration
	// PollInterval is the idle sleep between empty receives. Default 1s.
	PollInterval time.Duration
	// Concurrency is the number of receive loops. Default 1.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.LockRenewInterval <= 0 {
		c.LockRenewInterval = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// Worker consumes notifications and runs recognition.
type Worker struct {
	id        string
	queue     queue.Queue
	records   RecordStore
	signer    URLSigner
	analyzer  vision.Analyzer
	logger    *slog.Logger
	collector *metrics.Collector
	cfg       Config
}

// New creates a recognition worker. collector may be nil.
func New(q queue.Queue, records RecordStore, signer URLSigner, analyzer vision.Analyzer,
	logger *slog.Logger, collector *metrics.Collector, cfg Config) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	id := uuid.New().String()[:8]
	return &Worker{
		id:        id,
		queue:     q,
		records:   records,
		signer:    signer,
		analyzer:  analyzer,
		logger:    logger.With("worker_id", id),
		collector: collector,
		cfg:       cfg.withDefaults(),
	}
}

// Run blocks, receiving and processing messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("recognition worker started",
		"concurrency", w.cfg.Concurrency,
		"lock_renew_interval", w.cfg.LockRenewInterval)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.receiveLoop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("recognition worker stopped")
	return nil
}

// receiveLoop polls the queue and processes one message at a time.
func (w *Worker) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		d, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("receive failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if d == nil {
			w.sleep(ctx)
			continue
		}

		if err := w.process(ctx, d); err != nil {
			w.logger.Error("message processing failed", "error", err)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.PollInterval):
	}
}

// process handles one delivered message end to end. The returned error is
// wrapped with the taxonomy sentinel for the failure class; a nil return
// means the message was acknowledged (or judged already handled).
//
// The message is acknowledged only after the record update has been
// persisted. Every non-acknowledged outcome relies on the transport's
// lock expiry and delivery budget for the retry decision; there is no
// local retry loop.
func (w *Worker) process(ctx context.Context, d queue.Delivery) error {
	env, err := queue.DecodeEnvelope(d.Body())
	if err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrInvalidMessage, err)
	}
	if env.Content.ID == "" || env.Content.ObjectPath == "" {
		return fmt.Errorf("%w: missing record id or object path", ErrInvalidMessage)
	}

	log := w.logger.With("message_id", env.ID, "image_id", env.Content.ID)
	log.Info("processing image", "object_path", env.Content.ObjectPath, "delivery_count", d.DeliveryCount())

	// Lock renewal runs only for the lifetime of this message and is
	// cancelled on every exit path, success or failure.
	renewCtx, cancelRenew := context.WithCancel(ctx)
	var renewDone sync.WaitGroup
	renewDone.Add(1)
	go func() {
		defer renewDone.Done()
		w.renewLoop(renewCtx, d, log)
	}()
	defer func() {
		cancelRenew()
		renewDone.Wait()
	}()

	w.markProcessing(ctx, env.Content.ID, log)

	imageURL, err := w.signer.SignedURL(ctx, env.Content.ObjectPath)
	if err != nil {
		w.markFailed(ctx, env.Content.ID, log)
		return fmt.Errorf("%w: sign url: %v", ErrRecognition, err)
	}

	var tags []string
	err = w.collector.Time(metrics.OpRecognition, func() error {
		var aerr error
		tags, aerr = w.analyzer.Analyze(ctx, imageURL)
		return aerr
	})
	if err != nil {
		w.markFailed(ctx, env.Content.ID, log)
		return fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	log.Info("image recognized", "tags", tags)

	// Re-read the authoritative record; the envelope snapshot may be
	// stale by now.
	rec, err := w.records.GetImage(ctx, env.Content.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Info("record gone before update, acknowledging")
			w.complete(ctx, d, log)
			return nil
		}
		return fmt.Errorf("%w: read record: %v", ErrPersistence, err)
	}

	rec.Labels = tags
	rec.Status = models.StatusCompleted
	rec.TimeUpdated = time.Now().UTC()
	if err := w.records.UpdateImage(ctx, *rec); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Info("record deleted during update, acknowledging")
			w.complete(ctx, d, log)
			return nil
		}
		w.markFailed(ctx, env.Content.ID, log)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	w.complete(ctx, d, log)
	return nil
}

// complete acknowledges the message. A failed acknowledgment only means a
// redelivery, which the terminal-status guards make harmless.
func (w *Worker) complete(ctx context.Context, d queue.Delivery, log *slog.Logger) {
	if err := d.Complete(ctx); err != nil {
		log.Warn("failed to complete message, redelivery expected", "error", err)
	}
}

// renewLoop extends the message lock on a fixed interval until cancelled.
// Renewal failures are logged but never abort recognition; if the lock
// truly lapses, redelivery plus idempotent processing covers correctness.
func (w *Worker) renewLoop(ctx context.Context, d queue.Delivery, log *slog.Logger) {
	ticker := time.NewTicker(w.cfg.LockRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RenewLock(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.collector.RecordFailure(metrics.OpLockRenew)
				log.Warn("lock renewal failed", "error", err)
				continue
			}
			w.collector.Record(metrics.OpLockRenew, 0)
			log.Debug("message lock renewed")
		}
	}
}

// markProcessing moves a pending record to processing. Best effort: any
// failure is logged and recognition proceeds regardless. The pending
// guard keeps a redelivered terminal record from regressing.
func (w *Worker) markProcessing(ctx context.Context, id string, log *slog.Logger) {
	rec, err := w.records.GetImage(ctx, id)
	if err != nil {
		log.Debug("skipping processing mark", "error", err)
		return
	}
	if rec.Status != models.StatusPending {
		return
	}
	rec.Status = models.StatusProcessing
	rec.TimeUpdated = time.Now().UTC()
	if err := w.records.UpdateImage(ctx, *rec); err != nil {
		log.Warn("failed to mark record processing", "error", err)
	}
}

// markFailed moves the record to failed if it can be located. A record
// already completed (a later duplicate won the race) is left alone; a
// failed attempt must never downgrade a successful outcome.
func (w *Worker) markFailed(ctx context.Context, id string, log *slog.Logger) {
	rec, err := w.records.GetImage(ctx, id)
	if err != nil {
		log.Warn("cannot mark record failed", "error", err)
		return
	}
	if rec.Status == models.StatusCompleted || rec.Status == models.StatusArchived {
		log.Info("record already terminal, leaving status", "status", rec.Status)
		return
	}
	rec.Status = models.StatusFailed
	rec.TimeUpdated = time.Now().UTC()
	if err := w.records.UpdateImage(ctx, *rec); err != nil {
		log.Warn("failed to mark record failed", "error", err)
	}
}
