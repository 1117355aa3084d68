package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusArchived} {
		assert.True(t, s.Valid(), "%s should be valid", s)
	}
	assert.False(t, Status("uploading").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusArchived.Terminal())
}

func TestStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusCompleted, StatusArchived, true},
		{StatusFailed, StatusArchived, true},

		// Status never moves backward
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},

		// Archived is final
		{StatusArchived, StatusPending, false},
		{StatusArchived, StatusCompleted, false},
		{StatusArchived, StatusArchived, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s)

	_, err = ParseStatus("banana")
	assert.Error(t, err)
}

func TestNewImageRecord(t *testing.T) {
	rec := NewImageRecord("images/x/cat.jpg", "1024")

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "images/x/cat.jpg", rec.ObjectPath)
	assert.Equal(t, "1024", rec.ObjectSize)
	assert.Equal(t, StatusPending, rec.Status)
	assert.NotNil(t, rec.Labels)
	assert.Empty(t, rec.Labels)
	assert.Equal(t, rec.TimeAdded, rec.TimeUpdated)

	other := NewImageRecord("images/y/dog.jpg", "1")
	assert.NotEqual(t, rec.ID, other.ID)
}

func TestImageRecordWireFormat(t *testing.T) {
	rec := NewImageRecord("images/x/cat.jpg", "1024")
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "object_path", "object_size", "labels", "status", "time_added", "time_updated"} {
		assert.Contains(t, raw, key)
	}
}
