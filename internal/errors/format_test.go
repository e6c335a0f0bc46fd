package errors

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeEmbedderUnavailable, "ollama is not running", nil).
		WithSuggestion("start it with: ollama serve")

	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: ollama is not running")
	assert.Contains(t, out, "Hint: start it with: ollama serve")
	assert.Contains(t, out, "Code: ERR_301_EMBEDDER_UNAVAILABLE")
}

func TestFormatForCLI_PlainError(t *testing.T) {
	out := FormatForCLI(stderrors.New("something broke"))
	assert.Contains(t, out, "Error: something broke")
	assert.Contains(t, out, ErrCodeInternal)
}

func TestFormatForCLI_Nil(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	err := New(ErrCodeSaveFailed, "write failed", stderrors.New("no space")).
		WithDetail("path", "/data/vectors.gob")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeSaveFailed, decoded["code"])
	assert.Equal(t, "write failed", decoded["message"])
	assert.Equal(t, "IO", decoded["category"])
	assert.Equal(t, "no space", decoded["cause"])
}

func TestFormatForLog(t *testing.T) {
	err := New(ErrCodeEmbeddingTimeout, "deadline exceeded", nil).
		WithDetail("batch_size", "32")

	attrs := FormatForLog(err)
	assert.Equal(t, ErrCodeEmbeddingTimeout, attrs["error_code"])
	assert.Equal(t, true, attrs["retryable"])
	assert.Equal(t, "32", attrs["detail_batch_size"])

	plain := FormatForLog(stderrors.New("plain"))
	assert.Equal(t, "plain", plain["error"])

	assert.Nil(t, FormatForLog(nil))
}
