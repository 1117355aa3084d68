package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visio-labs/visio/internal/db"
	"github.com/visio-labs/visio/internal/models"
	"github.com/visio-labs/visio/internal/queue"
	"github.com/visio-labs/visio/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu        sync.Mutex
	records   map[string]models.ImageRecord
	createErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.ImageRecord)}
}

func (s *memStore) CreateImage(_ context.Context, rec models.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.records[rec.ID]; ok {
		return db.ErrAlreadyExists
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *memStore) GetImage(_ context.Context, id string) (*models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (s *memStore) UpdateImage(_ context.Context, rec models.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return db.ErrNotFound
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *memStore) DeleteImage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memStore) DeleteAllImages(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.ImageRecord)
	return nil
}

func (s *memStore) ListImages(_ context.Context, limit int) ([]models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ImageRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SearchImagesByLabel(_ context.Context, label string) ([]models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImageRecord
	for _, rec := range s.records {
		for _, l := range rec.Labels {
			if l == label {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// probeQueue records whether the metadata record already existed at
// publish time, and can be told to fail.
type probeQueue struct {
	inner        *queue.Memory
	store        *memStore
	publishErr   error
	recordExists bool
}

func (q *probeQueue) Publish(ctx context.Context, env queue.Envelope) error {
	if _, err := q.store.GetImage(ctx, env.Content.ID); err == nil {
		q.recordExists = true
	}
	if q.publishErr != nil {
		return q.publishErr
	}
	return q.inner.Publish(ctx, env)
}

func (q *probeQueue) Receive(ctx context.Context) (queue.Delivery, error) {
	return q.inner.Receive(ctx)
}

func newTestService(t *testing.T) (*ImageService, *memStore, *storage.MemoryStore, *probeQueue) {
	t.Helper()
	store := newMemStore()
	objects := storage.NewMemoryStore("https://store.test", "secret")
	q := &probeQueue{inner: queue.NewMemory(time.Second, 5), store: store}
	svc := NewImageService(store, objects, q, testLogger(), nil)
	return svc, store, objects, q
}

func upload(t *testing.T, svc *ImageService, name, content string) *models.ImageRecord {
	t.Helper()
	rec, err := svc.Create(context.Background(), bytes.NewReader([]byte(content)), models.FileMetadata{
		FileName:    name,
		ContentType: "image/jpeg",
		Size:        int64(len(content)),
	})
	require.NoError(t, err)
	return rec
}

func TestCreatePersistsBeforeNotify(t *testing.T) {
	svc, store, objects, q := newTestService(t)

	rec := upload(t, svc, "cat.jpg", "jpegbytes")

	assert.True(t, q.recordExists, "record must be durable before the notification exists")
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Empty(t, rec.Labels)
	assert.Equal(t, 1, store.count())
	assert.Equal(t, 1, objects.Len())

	ready, locked, dead := q.inner.Stats()
	assert.Equal(t, 1, ready)
	assert.Zero(t, locked+dead)
}

func TestCreatePublishFailureLeavesPendingRecord(t *testing.T) {
	svc, store, objects, q := newTestService(t)
	q.publishErr = errors.New("broker down")

	_, err := svc.Create(context.Background(), bytes.NewReader([]byte("x")), models.FileMetadata{
		FileName: "a.jpg", ContentType: "image/jpeg", Size: 1,
	})
	require.Error(t, err)

	// The orphaned pending record is the documented outcome: the upload
	// and the record survive, only the notification is missing.
	assert.Equal(t, 1, store.count())
	assert.Equal(t, 1, objects.Len())
}

func TestCreateRecordFailureCleansUpObject(t *testing.T) {
	svc, store, objects, _ := newTestService(t)
	store.createErr = errors.New("db down")

	_, err := svc.Create(context.Background(), bytes.NewReader([]byte("x")), models.FileMetadata{
		FileName: "a.jpg", ContentType: "image/jpeg", Size: 1,
	})
	require.Error(t, err)
	assert.Zero(t, objects.Len(), "uploaded blob must be removed when the record fails")
}

func TestDeleteRemovesRecordAndObject(t *testing.T) {
	svc, store, objects, _ := newTestService(t)
	rec := upload(t, svc, "cat.jpg", "bytes")

	require.NoError(t, svc.Delete(context.Background(), rec.ID))
	assert.Zero(t, store.count())
	assert.Zero(t, objects.Len())

	err := svc.Delete(context.Background(), rec.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeleteAll(t *testing.T) {
	svc, store, objects, _ := newTestService(t)
	upload(t, svc, "a.jpg", "a")
	upload(t, svc, "b.jpg", "b")

	require.NoError(t, svc.DeleteAll(context.Background()))
	assert.Zero(t, store.count())
	assert.Zero(t, objects.Len())
}

func TestArchiveTransitions(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	rec := upload(t, svc, "cat.jpg", "bytes")

	archived, err := svc.Archive(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)

	_, err = svc.Archive(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "archived is final")

	got, err := store.GetImage(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, got.Status)
}

func TestSearchNormalizesLabel(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	rec := upload(t, svc, "cat.jpg", "bytes")

	stored, err := store.GetImage(context.Background(), rec.ID)
	require.NoError(t, err)
	stored.Labels = []string{"cat"}
	require.NoError(t, store.UpdateImage(context.Background(), *stored))

	found, err := svc.Search(context.Background(), "  CAT ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, rec.ID, found[0].ID)
}

func TestObjectPathUniquePerRecord(t *testing.T) {
	svc, _, objects, _ := newTestService(t)
	a := upload(t, svc, "same.jpg", "a")
	b := upload(t, svc, "same.jpg", "b")

	assert.NotEqual(t, a.ObjectPath, b.ObjectPath)
	assert.Equal(t, 2, objects.Len())
}

func TestContentURL(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	rec := upload(t, svc, "cat.jpg", "bytes")

	url, err := svc.ContentURL(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Contains(t, url, rec.ObjectPath)
	assert.Contains(t, url, "token=")
}
