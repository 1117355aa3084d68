package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/visio-labs/visio/internal/models"
)

// imageRow is the SurrealDB shape of an image record. The record id is a
// SurrealDB RecordID on the wire; the domain model carries a plain string.
type imageRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	ObjectPath  string                 `json:"object_path"`
	ObjectSize  string                 `json:"object_size"`
	Labels      []string               `json:"labels"`
	Status      string                 `json:"status"`
	TimeAdded   time.Time              `json:"time_added"`
	TimeUpdated time.Time              `json:"time_updated"`
}

func (r imageRow) toRecord() (models.ImageRecord, error) {
	id, ok := r.ID.ID.(string)
	if !ok {
		return models.ImageRecord{}, fmt.Errorf("unexpected record id type: %T", r.ID.ID)
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return models.ImageRecord{}, err
	}
	labels := r.Labels
	if labels == nil {
		labels = []string{}
	}
	return models.ImageRecord{
		ID:          id,
		ObjectPath:  r.ObjectPath,
		ObjectSize:  r.ObjectSize,
		Labels:      labels,
		Status:      status,
		TimeAdded:   r.TimeAdded,
		TimeUpdated: r.TimeUpdated,
	}, nil
}

func contentVars(rec models.ImageRecord) map[string]any {
	return map[string]any{
		"id":           rec.ID,
		"object_path":  rec.ObjectPath,
		"object_size":  rec.ObjectSize,
		"labels":       rec.Labels,
		"status":       string(rec.Status),
		"time_added":   rec.TimeAdded,
		"time_updated": rec.TimeUpdated,
	}
}

// CreateImage persists a new image record. Fails with ErrAlreadyExists if
// a record with the same id is present.
func (c *Client) CreateImage(ctx context.Context, rec models.ImageRecord) error {
	_, err := surrealdb.Query[[]imageRow](ctx, c.db, `
		CREATE type::record("image", $id) CONTENT {
			object_path: $object_path,
			object_size: $object_size,
			labels: $labels,
			status: $status,
			time_added: <datetime>$time_added,
			time_updated: <datetime>$time_updated
		}
	`, contentVars(rec))
	if err != nil {
		return fmt.Errorf("create image: %w", wrapQueryError(err))
	}
	return nil
}

// GetImage retrieves an image record by id. Returns ErrNotFound if absent.
func (c *Client) GetImage(ctx context.Context, id string) (*models.ImageRecord, error) {
	results, err := surrealdb.Query[[]imageRow](ctx, c.db, `
		SELECT * FROM type::record("image", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get image: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get image %s: %w", id, ErrNotFound)
	}
	rec, err := (*results)[0].Result[0].toRecord()
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &rec, nil
}

// UpdateImage replaces the full record content, keyed by id. Returns
// ErrNotFound if the record no longer exists; UPDATE never creates.
func (c *Client) UpdateImage(ctx context.Context, rec models.ImageRecord) error {
	results, err := surrealdb.Query[[]imageRow](ctx, c.db, `
		UPDATE type::record("image", $id) CONTENT {
			object_path: $object_path,
			object_size: $object_size,
			labels: $labels,
			status: $status,
			time_added: <datetime>$time_added,
			time_updated: <datetime>$time_updated
		}
	`, contentVars(rec))
	if err != nil {
		return fmt.Errorf("update image: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("update image %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// DeleteImage removes an image record by id. Deleting a missing record is
// not an error.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("image", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete image: %w", wrapQueryError(err))
	}
	return nil
}

// DeleteAllImages removes every image record.
func (c *Client) DeleteAllImages(ctx context.Context) error {
	_, err := surrealdb.Query[any](ctx, c.db, `DELETE image`, nil)
	if err != nil {
		return fmt.Errorf("delete all images: %w", wrapQueryError(err))
	}
	return nil
}

// ListImages returns up to limit records, most recently added first.
func (c *Client) ListImages(ctx context.Context, limit int) ([]models.ImageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	results, err := surrealdb.Query[[]imageRow](ctx, c.db, `
		SELECT * FROM image ORDER BY time_added DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", wrapQueryError(err))
	}
	return rowsToRecords(results)
}

// SearchImagesByLabel returns records whose labels contain label.
func (c *Client) SearchImagesByLabel(ctx context.Context, label string) ([]models.ImageRecord, error) {
	results, err := surrealdb.Query[[]imageRow](ctx, c.db, `
		SELECT * FROM image WHERE labels CONTAINS $label ORDER BY time_added DESC
	`, map[string]any{"label": label})
	if err != nil {
		return nil, fmt.Errorf("search images by label: %w", wrapQueryError(err))
	}
	return rowsToRecords(results)
}

func rowsToRecords(results *[]surrealdb.QueryResult[[]imageRow]) ([]models.ImageRecord, error) {
	if results == nil || len(*results) == 0 {
		return []models.ImageRecord{}, nil
	}
	rows := (*results)[0].Result
	records := make([]models.ImageRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
