package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK(t *testing.T) {
	scores := []float64{0.2, 0.9, 0.1, 0.7, 0.5}

	got := topK(scores, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].index)
	assert.Equal(t, 3, got[1].index)
	assert.Equal(t, 4, got[2].index)
	assert.Equal(t, 0.9, got[0].score)
}

func TestTopK_KLargerThanInput(t *testing.T) {
	got := topK([]float64{0.3, 0.1}, 10)
	require.Len(t, got, 2)
	assert.Equal(t, 0.3, got[0].score)
	assert.Equal(t, 0.1, got[1].score)
}

func TestTopK_ZeroK(t *testing.T) {
	assert.Empty(t, topK([]float64{0.3, 0.1}, 0))
}

func TestTopK_Empty(t *testing.T) {
	assert.Empty(t, topK(nil, 5))
}
