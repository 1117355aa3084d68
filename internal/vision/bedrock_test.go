package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagArray(t *testing.T) {
	tags, err := parseTagArray(`["cat", "animal", "pet"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "animal", "pet"}, tags)
}

func TestParseTagArrayWithSurroundingProse(t *testing.T) {
	text := "Here are the tags for the image:\n[\"beach\", \"sunset\"]\nLet me know if you need more."
	tags, err := parseTagArray(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "sunset"}, tags)
}

func TestParseTagArrayEmpty(t *testing.T) {
	tags, err := parseTagArray("[]")
	require.NoError(t, err)
	assert.Empty(t, tags)
	// The sentinel is applied after parsing.
	assert.Equal(t, []string{NoTagsSentinel}, normalizeTags(tags))
}

func TestParseTagArrayInvalid(t *testing.T) {
	_, err := parseTagArray("I cannot identify this image.")
	assert.Error(t, err)

	_, err = parseTagArray("broken [1, 2")
	assert.Error(t, err)
}
