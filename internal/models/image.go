// Package models defines data structures for the Visio image pipeline.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an image record.
type Status string

const (
	// StatusPending means the image is uploaded but not yet processed.
	StatusPending Status = "pending"
	// StatusProcessing means recognition is in flight for the image.
	StatusProcessing Status = "processing"
	// StatusCompleted means recognition finished and labels are attached.
	StatusCompleted Status = "completed"
	// StatusFailed means recognition failed for the image.
	StatusFailed Status = "failed"
	// StatusArchived means the image is no longer actively used.
	// Reachable only through the admin archive action, never by the worker.
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusArchived:
		return true
	}
	return false
}

// Terminal reports whether s is terminal from the worker's point of view.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusArchived
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Status never moves backward: a completed or failed record
// can only be archived, and archived is final.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed || next == StatusArchived
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusArchived
	case StatusCompleted, StatusFailed:
		return next == StatusArchived
	case StatusArchived:
		return false
	}
	return false
}

// ParseStatus converts a string to a Status, validating it.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// ImageRecord is the metadata document for one uploaded image.
// Field names match the wire shape used by the notification envelope.
type ImageRecord struct {
	ID          string    `json:"id"`
	ObjectPath  string    `json:"object_path"`
	ObjectSize  string    `json:"object_size"`
	Labels      []string  `json:"labels"`
	Status      Status    `json:"status"`
	TimeAdded   time.Time `json:"time_added"`
	TimeUpdated time.Time `json:"time_updated"`
}

// NewImageRecord creates a pending record for an uploaded object.
// The id is assigned here and never changes.
func NewImageRecord(objectPath, objectSize string) ImageRecord {
	now := time.Now().UTC()
	return ImageRecord{
		ID:          uuid.New().String(),
		ObjectPath:  objectPath,
		ObjectSize:  objectSize,
		Labels:      []string{},
		Status:      StatusPending,
		TimeAdded:   now,
		TimeUpdated: now,
	}
}

// FileMetadata describes an uploaded file as provided by the caller.
type FileMetadata struct {
	FileName    string
	ContentType string
	Size        int64
}
