package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetaPairs(t *testing.T) {
	meta, err := parseMetaPairs([]string{"project=docs", "lang=en"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"project": "docs", "lang": "en"}, meta)
}

func TestParseMetaPairs_Empty(t *testing.T) {
	meta, err := parseMetaPairs(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestParseMetaPairs_Malformed(t *testing.T) {
	_, err := parseMetaPairs([]string{"no-equals-sign"})
	assert.Error(t, err)

	_, err = parseMetaPairs([]string{"=value"})
	assert.Error(t, err)
}

func TestGetSnippet(t *testing.T) {
	assert.Equal(t, "short text", getSnippet("short text", 200))
	assert.Equal(t, "a b c", getSnippet("a\n  b\t\tc", 200))

	long := getSnippet("word one two three four five", 10)
	assert.Equal(t, "word one t...", long)
}
