// Package service implements the image ingestion coordinator: upload the
// object, persist the metadata record, then notify the recognition worker.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/visio-labs/visio/internal/metrics"
	"github.com/visio-labs/visio/internal/models"
	"github.com/visio-labs/visio/internal/queue"
	"github.com/visio-labs/visio/internal/storage"
)

// ErrInvalidTransition indicates a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// MetadataStore is the record persistence the service depends on.
type MetadataStore interface {
	CreateImage(ctx context.Context, rec models.ImageRecord) error
	GetImage(ctx context.Context, id string) (*models.ImageRecord, error)
	UpdateImage(ctx context.Context, rec models.ImageRecord) error
	DeleteImage(ctx context.Context, id string) error
	DeleteAllImages(ctx context.Context) error
	ListImages(ctx context.Context, limit int) ([]models.ImageRecord, error)
	SearchImagesByLabel(ctx context.Context, label string) ([]models.ImageRecord, error)
}

// ImageService coordinates object storage, the metadata store, and the
// notification queue for the ingestion path.
type ImageService struct {
	records   MetadataStore
	objects   storage.Store
	queue     queue.Queue
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewImageService creates the ingestion coordinator. collector may be nil.
func NewImageService(records MetadataStore, objects storage.Store, q queue.Queue,
	logger *slog.Logger, collector *metrics.Collector) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &ImageService{
		records:   records,
		objects:   objects,
		queue:     q,
		logger:    logger,
		collector: collector,
	}
}

// Create ingests one image: upload the bytes, persist a pending record,
// then publish the notification. The record is durable before the message
// exists, so the worker always finds something to read.
//
// A publish failure leaves an orphaned pending record and is returned to
// the caller; the record id travels in the error path via logs.
func (s *ImageService) Create(ctx context.Context, r io.Reader, meta models.FileMetadata) (*models.ImageRecord, error) {
	rec := models.NewImageRecord("", strconv.FormatInt(meta.Size, 10))
	rec.ObjectPath = objectPath(rec.ID, meta.FileName)

	err := s.collector.Time(metrics.OpUpload, func() error {
		return s.objects.Upload(ctx, rec.ObjectPath, r, meta.Size, meta.ContentType)
	})
	if err != nil {
		return nil, fmt.Errorf("upload object: %w", err)
	}

	if err := s.records.CreateImage(ctx, rec); err != nil {
		// Best effort: don't leave an unreferenced blob behind.
		if derr := s.objects.Delete(ctx, rec.ObjectPath); derr != nil {
			s.logger.Warn("failed to clean up object after create failure",
				"object_path", rec.ObjectPath, "error", derr)
		}
		return nil, fmt.Errorf("create record: %w", err)
	}

	err = s.collector.Time(metrics.OpPublish, func() error {
		return s.queue.Publish(ctx, queue.NewEnvelope(rec))
	})
	if err != nil {
		s.logger.Error("record persisted but notification failed, image stays pending",
			"image_id", rec.ID, "error", err)
		return nil, fmt.Errorf("publish notification: %w", err)
	}

	s.logger.Info("image ingested", "image_id", rec.ID, "object_path", rec.ObjectPath, "size", meta.Size)
	return &rec, nil
}

// Get returns the record for id.
func (s *ImageService) Get(ctx context.Context, id string) (*models.ImageRecord, error) {
	return s.records.GetImage(ctx, id)
}

// ContentURL returns a time-limited URL for the image bytes.
func (s *ImageService) ContentURL(ctx context.Context, id string) (string, error) {
	rec, err := s.records.GetImage(ctx, id)
	if err != nil {
		return "", err
	}
	url, err := s.objects.SignedURL(ctx, rec.ObjectPath)
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}
	return url, nil
}

// Download streams the image bytes.
func (s *ImageService) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	rec, err := s.records.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, err := s.objects.Download(ctx, rec.ObjectPath)
	if err != nil {
		return nil, fmt.Errorf("download object: %w", err)
	}
	return rc, nil
}

// List returns up to limit records, newest first.
func (s *ImageService) List(ctx context.Context, limit int) ([]models.ImageRecord, error) {
	return s.records.ListImages(ctx, limit)
}

// Search returns records carrying the given label.
func (s *ImageService) Search(ctx context.Context, label string) ([]models.ImageRecord, error) {
	return s.records.SearchImagesByLabel(ctx, strings.ToLower(strings.TrimSpace(label)))
}

// Delete removes the record and its object. The object goes first; a
// record without a blob is worse than a blob without a record.
func (s *ImageService) Delete(ctx context.Context, id string) error {
	rec, err := s.records.GetImage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, rec.ObjectPath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := s.records.DeleteImage(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.logger.Info("image deleted", "image_id", id)
	return nil
}

// DeleteAll removes every object and every record.
func (s *ImageService) DeleteAll(ctx context.Context) error {
	if err := s.objects.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete all objects: %w", err)
	}
	if err := s.records.DeleteAllImages(ctx); err != nil {
		return fmt.Errorf("delete all records: %w", err)
	}
	s.logger.Info("all images deleted")
	return nil
}

// Archive moves a record to archived. Only legal from a live status;
// archived is final.
func (s *ImageService) Archive(ctx context.Context, id string) (*models.ImageRecord, error) {
	rec, err := s.records.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanTransition(models.StatusArchived) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, models.StatusArchived)
	}
	rec.Status = models.StatusArchived
	rec.TimeUpdated = time.Now().UTC()
	if err := s.records.UpdateImage(ctx, *rec); err != nil {
		return nil, fmt.Errorf("archive record: %w", err)
	}
	s.logger.Info("image archived", "image_id", id)
	return rec, nil
}

// Metrics returns a point-in-time snapshot of the service counters.
func (s *ImageService) Metrics() metrics.Snapshot {
	return s.collector.GetSnapshot()
}

// objectPath builds the storage key for an upload. The record id prefix
// keeps keys unique even when filenames collide.
func objectPath(id, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	return "images/" + id + "/" + name
}
