package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder is a deterministic in-process embedder that records batch
// calls for instrumentation.
type fakeEmbedder struct {
	mu         sync.Mutex
	dims       int
	batchCalls int
	batchTexts [][]string
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batchCalls++
	recorded := make([]string, len(texts))
	copy(recorded, texts)
	f.batchTexts = append(f.batchTexts, recorded)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dims)
		for j, b := range []byte(text) {
			vec[j%f.dims] += float32(b)
		}
		vec[0] += 1 // never a zero vector
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int {
	return f.dims
}

func newTestStore(t *testing.T) (*Store, *fakeEmbedder) {
	t.Helper()
	emb := newFakeEmbedder(4)
	return New(emb, t.TempDir()), emb
}

func chunkWithVector(id, text string, vec []float32) *Chunk {
	return &Chunk{ID: id, Text: text, DocumentID: "doc-" + id, Embedding: vec}
}

func TestStore_ParallelArrayInvariant(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	checkInvariant := func() {
		t.Helper()
		s.mu.Lock()
		defer s.mu.Unlock()
		assert.Equal(t, len(s.vectors), len(s.documents))
		assert.Equal(t, len(s.vectors), len(s.chunkIDs))
		assert.Equal(t, len(s.vectors), len(s.metadata))
		assert.Equal(t, len(s.vectors), len(s.bm25Docs))
	}

	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		{ID: "a", Text: "alpha text"},
		{ID: "b", Text: "beta text"},
		{ID: "c", Text: "gamma text"},
	}))
	checkInvariant()

	require.NoError(t, s.DeleteChunks(ctx, []string{"b"}))
	checkInvariant()

	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		{ID: "d", Text: "delta text"},
		{ID: "e", Text: "epsilon text"},
	}))
	checkInvariant()

	require.NoError(t, s.DeleteChunks(ctx, []string{"a", "d", "missing"}))
	checkInvariant()

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	// Given: a store with chunks carrying metadata
	dir := t.TempDir()
	emb := newFakeEmbedder(4)
	s1 := New(emb, dir)
	ctx := context.Background()

	chunks := []*Chunk{
		{ID: "c1", Text: "first chunk", DocumentID: "doc-1", Metadata: map[string]any{"page": "1"}},
		{ID: "c2", Text: "second chunk", DocumentID: "doc-1", Metadata: map[string]any{"page": "2"}},
		{ID: "c3", Text: "third chunk", DocumentID: "doc-2"},
	}
	require.NoError(t, s1.AddChunks(ctx, chunks))

	// When: a fresh instance points at the same directory
	s2 := New(newFakeEmbedder(4), dir)

	// Then: state is observably equivalent, in the same order
	size, err := s2.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	s1.mu.Lock()
	s2.mu.Lock()
	assert.Equal(t, s1.chunkIDs, s2.chunkIDs)
	assert.Equal(t, s1.documents, s2.documents)
	assert.Equal(t, s1.vectors, s2.vectors)
	assert.Equal(t, s1.metadata, s2.metadata)
	s2.mu.Unlock()
	s1.mu.Unlock()

	got, err := s2.GetChunkByID(ctx, "c2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second chunk", got.Text)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, "2", got.Metadata["page"])
}

func TestStore_IdempotentLoad(t *testing.T) {
	// Given: a populated storage directory
	dir := t.TempDir()
	seed := New(newFakeEmbedder(4), dir)
	require.NoError(t, seed.AddChunks(context.Background(), []*Chunk{{ID: "a", Text: "hello world"}}))

	// And: a fresh instance with an instrumented read primitive
	s := New(newFakeEmbedder(4), dir)
	reads := 0
	s.readFile = func(name string) ([]byte, error) {
		reads++
		return os.ReadFile(name)
	}

	// When: the load trigger fires repeatedly
	for i := 0; i < 3; i++ {
		size, err := s.Size(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, size)
	}

	// Then: disk I/O happened exactly once (one read per artifact)
	assert.Equal(t, 2, reads)
}

func TestStore_DimensionGuard(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddChunks(ctx, []*Chunk{{ID: "a", Text: "hello"}}))

	// Wrong-dimension queries return empty results, never an error
	results, err := s.SearchSimilarChunks(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.SearchSimilarChunksWithThreshold(ctx, []float32{1, 0, 0, 0, 0, 0}, 5, 0.1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_EmptyStoreSearch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	results, err := s.SearchSimilarChunks(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.KeywordSearch(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_TopKCorrectness(t *testing.T) {
	// Given: three vectors with known cosine similarities to [1,0,0,0]
	s, _ := newTestStore(t)
	ctx := context.Background()

	makeVec := func(cos float64) []float32 {
		return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos)), 0, 0}
	}
	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		chunkWithVector("high", "high similarity", makeVec(0.9)),
		chunkWithVector("mid", "mid similarity", makeVec(0.5)),
		chunkWithVector("low", "low similarity", makeVec(0.1)),
	}))

	// When: searching with limit=2
	results, err := s.SearchSimilarChunks(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: the two highest-similarity chunks come back in descending order
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Chunk.ID)
	assert.Equal(t, "mid", results[1].Chunk.ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-4)
	assert.InDelta(t, 0.5, results[1].Score, 1e-4)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestStore_ThresholdFiltering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	makeVec := func(cos float64) []float32 {
		return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos)), 0, 0}
	}
	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		chunkWithVector("high", "high", makeVec(0.9)),
		chunkWithVector("mid", "mid", makeVec(0.5)),
		chunkWithVector("low", "low", makeVec(0.1)),
	}))

	results, err := s.SearchSimilarChunksWithThreshold(ctx, []float32{1, 0, 0, 0}, 10, 0.4)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Chunk.ID)
	assert.Equal(t, "mid", results[1].Chunk.ID)
}

func TestStore_KeywordSearch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		{ID: "a", Text: "the quick brown fox jumps over the lazy dog"},
		{ID: "b", Text: "fox fox fox everywhere"},
		{ID: "c", Text: "nothing relevant here at all"},
	}))

	results, err := s.KeywordSearch(ctx, "fox", 10)
	require.NoError(t, err)

	// Only documents containing the term come back; the term-dense one first
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Chunk.ID)
	assert.Equal(t, "a", results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestStore_BM25ZeroScoreExclusion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		{ID: "a", Text: "alpha beta gamma"},
		{ID: "b", Text: "delta epsilon zeta"},
	}))

	// Every query token is absent from the corpus
	results, err := s.KeywordSearch(ctx, "zzz qqq xxx", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_DeletionCorrectness(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		{ID: "a", Text: "chunk a"},
		{ID: "b", Text: "chunk b"},
		{ID: "c", Text: "chunk c"},
	}))

	require.NoError(t, s.DeleteChunks(ctx, []string{"b"}))

	gone, err := s.GetChunkByID(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, gone)

	for _, id := range []string{"a", "c"} {
		got, err := s.GetChunkByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID)
	}

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestStore_BatchEmbeddingReuse(t *testing.T) {
	// Given: three chunks where 1 and 3 carry precomputed embeddings
	s, emb := newTestStore(t)
	ctx := context.Background()

	pre1 := []float32{1, 0, 0, 0}
	pre3 := []float32{0, 0, 0, 1}
	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		chunkWithVector("c1", "first", pre1),
		{ID: "c2", Text: "second needs embedding"},
		chunkWithVector("c3", "third", pre3),
	}))

	// Then: exactly one batch call, containing only chunk 2's text
	require.Equal(t, 1, emb.batchCalls)
	require.Len(t, emb.batchTexts[0], 1)
	assert.Equal(t, "second needs embedding", emb.batchTexts[0][0])

	// And: all three chunks are stored with their vectors, in order
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Equal(t, []string{"c1", "c2", "c3"}, s.chunkIDs)
	assert.Equal(t, pre1, s.vectors[0])
	assert.Equal(t, pre3, s.vectors[2])
}

func TestStore_AddChunks_DropsUnusable(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Empty text with no embedding is dropped, not an error
	require.NoError(t, s.AddChunks(ctx, []*Chunk{
		{ID: "empty", Text: "   "},
		{ID: "ok", Text: "real content"},
		{ID: "baddim", Text: "", Embedding: []float32{1, 2}}, // wrong dimension, no text
	}))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	got, err := s.GetChunkByID(ctx, "ok")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestStore_CorruptBlobResetsEmpty(t *testing.T) {
	// Given: a populated directory whose blob is then garbled
	dir := t.TempDir()
	seed := New(newFakeEmbedder(4), dir)
	require.NoError(t, seed.AddChunks(context.Background(), []*Chunk{{ID: "a", Text: "hello"}}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFileName), []byte("not a gob stream"), 0o644))

	// When: a fresh instance loads
	s := New(newFakeEmbedder(4), dir)
	size, err := s.Size(context.Background())

	// Then: it recovers to an empty store, and the corrupt file survives
	require.NoError(t, err)
	assert.Equal(t, 0, size)
	data, err := os.ReadFile(filepath.Join(dir, VectorsFileName))
	require.NoError(t, err)
	assert.Equal(t, "not a gob stream", string(data))
}

func TestStore_DeleteStore(t *testing.T) {
	dir := t.TempDir()
	s := New(newFakeEmbedder(4), dir)
	ctx := context.Background()
	require.NoError(t, s.AddChunks(ctx, []*Chunk{{ID: "a", Text: "hello"}}))

	require.NoError(t, s.DeleteStore(ctx))

	for _, name := range []string{VectorsFileName, MetadataFileName, LockFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "expected %s to be removed", name)
	}

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	// Absent files are not an error on a second delete
	require.NoError(t, s.DeleteStore(ctx))
}

func TestStore_Clear(t *testing.T) {
	dir := t.TempDir()
	s := New(newFakeEmbedder(4), dir)
	ctx := context.Background()
	require.NoError(t, s.AddChunks(ctx, []*Chunk{{ID: "a", Text: "hello"}}))

	require.NoError(t, s.Clear(ctx))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	// The empty state is what a fresh instance sees
	fresh := New(newFakeEmbedder(4), dir)
	size, err = fresh.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestStore_Invalidate(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	reader := New(newFakeEmbedder(4), dir)
	size, err := reader.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, size)

	// Another instance saves behind the reader's back
	writer := New(newFakeEmbedder(4), dir)
	require.NoError(t, writer.AddChunks(ctx, []*Chunk{{ID: "a", Text: "hello"}}))

	// The reader still reports its cached view until invalidated
	size, err = reader.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	reader.Invalidate()
	size, err = reader.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestStore_CrossProcessAppend(t *testing.T) {
	// Two instances simulate two processes sharing one directory, each
	// appending 50 distinct chunks concurrently.
	dir := t.TempDir()
	ctx := context.Background()

	writerA := New(newFakeEmbedder(4), dir)
	writerB := New(newFakeEmbedder(4), dir)

	var wg sync.WaitGroup
	addAll := func(s *Store, prefix string) {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			batch := make([]*Chunk, 5)
			for j := 0; j < 5; j++ {
				n := i*5 + j
				batch[j] = &Chunk{
					ID:   fmt.Sprintf("%s-%02d", prefix, n),
					Text: fmt.Sprintf("%s chunk number %d", prefix, n),
				}
			}
			if err := s.AddChunks(ctx, batch); err != nil {
				t.Errorf("AddChunks(%s): %v", prefix, err)
				return
			}
		}
	}

	wg.Add(2)
	go addAll(writerA, "a")
	go addAll(writerB, "b")
	wg.Wait()

	// A third instance reads the final on-disk state
	reader := New(newFakeEmbedder(4), dir)
	size, err := reader.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, size)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	seen := make(map[string]struct{}, len(reader.chunkIDs))
	for _, id := range reader.chunkIDs {
		_, dup := seen[id]
		assert.False(t, dup, "duplicate chunk id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 100)
}
