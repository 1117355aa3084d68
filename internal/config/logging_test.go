package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("image ingested", "image_id", "abc-123")

	// Text on stderr
	assert.Contains(t, stderr.String(), "image ingested")
	assert.Contains(t, stderr.String(), "image_id=abc-123")

	// JSON in the file
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(file.String())), &entry))
	assert.Equal(t, "image ingested", entry["msg"])
	assert.Equal(t, "abc-123", entry["image_id"])
}

func TestSetupLoggerLevelFilter(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Info("too quiet")
	logger.Warn("loud enough")

	assert.NotContains(t, stderr.String(), "too quiet")
	assert.Contains(t, stderr.String(), "loud enough")
	assert.NotContains(t, file.String(), "too quiet")
}
