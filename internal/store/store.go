package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// On-disk artifacts inside the storage directory. The layout is owned by
// this package and must stay bit-compatible across versions.
const (
	VectorsFileName  = "vectors.gob"
	MetadataFileName = "metadata.json"
)

// Embedder is the capability the store consumes from the embedding
// provider: a batch encode operation and a fixed output dimension.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Store is the persistent vector store. Four parallel slices hold the
// corpus (position i in one corresponds to position i in the others);
// the BM25 fields are a lazily rebuilt cache over documents.
//
// One sync.Mutex guards all in-memory state within a process; a flock'd
// lock file serializes load/save across processes sharing the directory.
type Store struct {
	mu       sync.Mutex
	embedder Embedder
	dir      string
	dims     int
	lock     *FileLock

	vectors   [][]float32
	documents []string
	chunkIDs  []string
	metadata  []map[string]any

	bm25Docs    [][]string
	bm25DocFreq map[string]int
	bm25AvgDL   float64
	bm25Dirty   bool

	loaded bool

	// readFile is the file-read primitive for load; swappable in tests.
	readFile func(name string) ([]byte, error)
}

// blobState is the gob-serialized content of the vectors file.
type blobState struct {
	Vectors     [][]float32
	Documents   []string
	ChunkIDs    []string
	BM25Docs    [][]string
	BM25DocFreq map[string]int
	BM25AvgDL   float64
}

// New creates a store over the given storage directory. The embedding
// dimension is derived from the embedder once and fixed thereafter.
// State is loaded lazily on first use.
func New(embedder Embedder, dir string) *Store {
	return &Store{
		embedder:    embedder,
		dir:         dir,
		dims:        embedder.Dimensions(),
		lock:        NewFileLock(dir),
		bm25DocFreq: make(map[string]int),
		readFile:    os.ReadFile,
	}
}

// Verify interface implementation at compile time.
var _ VectorStore = (*Store)(nil)

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Dimensions returns the embedding dimension.
func (s *Store) Dimensions() int {
	return s.dims
}

func (s *Store) vectorsPath() string {
	return filepath.Join(s.dir, VectorsFileName)
}

func (s *Store) metadataPath() string {
	return filepath.Join(s.dir, MetadataFileName)
}

// resetLocked drops all in-memory state back to empty. Must be called
// with s.mu held.
func (s *Store) resetLocked() {
	s.vectors = nil
	s.documents = nil
	s.chunkIDs = nil
	s.metadata = nil
	s.bm25Docs = nil
	s.bm25DocFreq = make(map[string]int)
	s.bm25AvgDL = 0
	s.bm25Dirty = false
}

// ensureLoadedLocked runs the disk load at most once per instance.
// Must be called with s.mu held.
func (s *Store) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.loadLocked()
}

// loadLocked replaces in-memory state with the persisted state. Load is
// all-or-nothing: any failure resets to empty rather than leaving a mix
// of old and new state. The corrupt files are left on disk untouched so
// an operator can inspect them. Must be called with s.mu held.
func (s *Store) loadLocked() {
	if !fileExists(s.vectorsPath()) || !fileExists(s.metadataPath()) {
		return
	}

	if err := s.lock.Lock(); err != nil {
		slog.Warn("vector_store_lock_failed", slog.String("error", err.Error()))
		s.resetLocked()
		return
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("vector_store_unlock_failed", slog.String("error", err.Error()))
		}
	}()

	if err := s.readStateLocked(); err != nil {
		slog.Warn("vector_store_load_failed",
			slog.String("dir", s.dir),
			slog.String("error", err.Error()))
		s.resetLocked()
		return
	}

	slog.Debug("vector_store_loaded",
		slog.String("dir", s.dir),
		slog.Int("chunks", len(s.chunkIDs)))
}

// readStateLocked deserializes both artifacts into the parallel slices.
func (s *Store) readStateLocked() error {
	blobBytes, err := s.readFile(s.vectorsPath())
	if err != nil {
		return fmt.Errorf("read vectors blob: %w", err)
	}

	var blob blobState
	if err := gob.NewDecoder(bytes.NewReader(blobBytes)).Decode(&blob); err != nil {
		return fmt.Errorf("decode vectors blob: %w", err)
	}

	metaBytes, err := s.readFile(s.metadataPath())
	if err != nil {
		return fmt.Errorf("read metadata sidecar: %w", err)
	}

	var metadata []map[string]any
	if err := json.Unmarshal(metaBytes, &metadata); err != nil {
		return fmt.Errorf("decode metadata sidecar: %w", err)
	}

	if len(metadata) != len(blob.Vectors) ||
		len(blob.Documents) != len(blob.Vectors) ||
		len(blob.ChunkIDs) != len(blob.Vectors) {
		return fmt.Errorf("artifact length mismatch: %d vectors, %d documents, %d ids, %d metadata",
			len(blob.Vectors), len(blob.Documents), len(blob.ChunkIDs), len(metadata))
	}

	s.vectors = blob.Vectors
	s.documents = blob.Documents
	s.chunkIDs = blob.ChunkIDs
	s.metadata = metadata
	s.bm25Docs = blob.BM25Docs
	s.bm25DocFreq = blob.BM25DocFreq
	if s.bm25DocFreq == nil {
		s.bm25DocFreq = make(map[string]int)
	}
	s.bm25AvgDL = blob.BM25AvgDL
	s.bm25Dirty = len(s.bm25Docs) != len(s.documents)
	return nil
}

// saveLocked persists both artifacts under the cross-process lock. Save
// failures propagate: a silently lost write is worse than a loud one.
// Must be called with s.mu held.
func (s *Store) saveLocked() error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("vector_store_unlock_failed", slog.String("error", err.Error()))
		}
	}()

	return s.writeStateLocked()
}

// refreshStateLocked re-reads the on-disk state, replacing in-memory
// state, so a mutation applies on top of the latest save from any
// process. Absent files leave the current state alone; corrupt files
// reset to empty (same all-or-nothing rule as load). Must be called with
// s.mu and the file lock held.
func (s *Store) refreshStateLocked() {
	if !fileExists(s.vectorsPath()) || !fileExists(s.metadataPath()) {
		return
	}
	if err := s.readStateLocked(); err != nil {
		slog.Warn("vector_store_refresh_failed",
			slog.String("dir", s.dir),
			slog.String("error", err.Error()))
		s.resetLocked()
	}
}

// writeStateLocked serializes and writes both artifacts. Must be called
// with s.mu and the file lock held.
func (s *Store) writeStateLocked() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	blob := blobState{
		Vectors:     s.vectors,
		Documents:   s.documents,
		ChunkIDs:    s.chunkIDs,
		BM25Docs:    s.bm25Docs,
		BM25DocFreq: s.bm25DocFreq,
		BM25AvgDL:   s.bm25AvgDL,
	}

	var blobBuf bytes.Buffer
	if err := gob.NewEncoder(&blobBuf).Encode(blob); err != nil {
		return fmt.Errorf("encode vectors blob: %w", err)
	}

	metadata := s.metadata
	if metadata == nil {
		metadata = []map[string]any{}
	}
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata sidecar: %w", err)
	}

	// Both files go through temp + rename so a concurrent reader holding
	// the lock next never sees a partial write.
	var g errgroup.Group
	g.Go(func() error { return writeFileAtomic(s.vectorsPath(), blobBuf.Bytes()) })
	g.Go(func() error { return writeFileAtomic(s.metadataPath(), metaBytes) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("persist vector store: %w", err)
	}

	slog.Debug("vector_store_saved",
		slog.String("dir", s.dir),
		slog.Int("chunks", len(s.chunkIDs)))
	return nil
}

// AddChunks ingests chunks and persists the result. Chunks carrying a
// correctly-dimensioned embedding are reused verbatim; the rest are
// embedded in a single batch call to minimize round-trips to the
// provider. Chunks whose embedding cannot be obtained are dropped from
// the batch (logged), not an error.
func (s *Store) AddChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	// First pass: decide which chunks need embedding generation.
	pendingTexts := make([]string, 0, len(chunks))
	pendingIdx := make([]int, 0, len(chunks))
	embeddings := make([][]float32, len(chunks))
	for i, ch := range chunks {
		if len(ch.Embedding) == s.dims {
			embeddings[i] = ch.Embedding
			continue
		}
		if strings.TrimSpace(ch.Text) == "" {
			continue // no embedding and nothing to embed
		}
		pendingTexts = append(pendingTexts, ch.Text)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pendingTexts) > 0 {
		generated, err := s.embedder.EmbedBatch(ctx, pendingTexts)
		if err != nil {
			return fmt.Errorf("embed batch of %d chunks: %w", len(pendingTexts), err)
		}
		for j, idx := range pendingIdx {
			if j < len(generated) {
				embeddings[idx] = generated[j]
			}
		}
	}

	// The whole read-modify-write happens under one lock hold, so an
	// append from another process is never overwritten.
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("vector_store_unlock_failed", slog.String("error", err.Error()))
		}
	}()
	s.refreshStateLocked()

	added := 0
	for i, ch := range chunks {
		vec := embeddings[i]
		if len(vec) == 0 {
			slog.Debug("chunk_skipped_no_embedding", slog.String("chunk_id", ch.ID))
			continue
		}
		if len(vec) != s.dims {
			slog.Warn("chunk_skipped_dimension_mismatch",
				slog.String("chunk_id", ch.ID),
				slog.Int("expected", s.dims),
				slog.Int("got", len(vec)))
			continue
		}

		md := make(map[string]any, len(ch.Metadata)+1)
		for k, v := range ch.Metadata {
			md[k] = v
		}
		md[MetadataKeyDocumentID] = ch.DocumentID

		s.vectors = append(s.vectors, vec)
		s.documents = append(s.documents, ch.Text)
		s.chunkIDs = append(s.chunkIDs, ch.ID)
		s.metadata = append(s.metadata, md)
		s.bm25Docs = append(s.bm25Docs, Tokenize(ch.Text))
		added++
	}

	s.bm25Dirty = true

	slog.Info("chunks_added",
		slog.Int("requested", len(chunks)),
		slog.Int("added", added),
		slog.Int("embedded", len(pendingTexts)))

	return s.writeStateLocked()
}

// SearchSimilarChunks returns the top limit chunks by cosine similarity,
// descending. A query of the wrong dimension yields an empty result, not
// an error.
func (s *Store) SearchSimilarChunks(ctx context.Context, query []float32, limit int) ([]*SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	scores, ok := s.similarityScoresLocked(query)
	if !ok || len(scores) == 0 {
		return []*SearchResult{}, nil
	}

	results := make([]*SearchResult, 0, limit)
	for _, sc := range topK(scores, limit) {
		results = append(results, &SearchResult{
			Chunk: s.chunkAtLocked(sc.index, sc.score),
			Score: sc.score,
		})
	}
	return results, nil
}

// SearchSimilarChunksWithThreshold filters to scores >= threshold before
// taking the top limit.
func (s *Store) SearchSimilarChunksWithThreshold(ctx context.Context, query []float32, limit int, threshold float64) ([]*SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	scores, ok := s.similarityScoresLocked(query)
	if !ok || len(scores) == 0 {
		return []*SearchResult{}, nil
	}

	matched := make([]scored, 0, len(scores))
	for i, score := range scores {
		if score >= threshold {
			matched = append(matched, scored{index: i, score: score})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	results := make([]*SearchResult, 0, len(matched))
	for _, sc := range matched {
		results = append(results, &SearchResult{
			Chunk: s.chunkAtLocked(sc.index, sc.score),
			Score: sc.score,
		})
	}
	return results, nil
}

// similarityScoresLocked computes the cosine similarity of query against
// every stored vector. Brute force, O(N*D): appropriate while corpora
// stay in the thousands-to-tens-of-thousands range. Returns ok=false on
// dimension mismatch.
func (s *Store) similarityScoresLocked(query []float32) ([]float64, bool) {
	if len(query) != s.dims {
		slog.Warn("query_dimension_mismatch",
			slog.Int("expected", s.dims),
			slog.Int("got", len(query)))
		return nil, false
	}

	queryNorm := vectorNorm(query)
	if queryNorm == 0 {
		return make([]float64, len(s.vectors)), true
	}

	scores := make([]float64, len(s.vectors))
	for i, vec := range s.vectors {
		norm := vectorNorm(vec)
		if norm == 0 {
			continue
		}
		scores[i] = dotProduct(query, vec) / (queryNorm * norm)
	}
	return scores, true
}

// KeywordSearch runs BM25 ranked keyword search over the corpus. The
// BM25 cache is rebuilt first if any mutation left it stale. Documents
// scoring zero are excluded entirely.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int) ([]*SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	if len(s.documents) == 0 {
		return []*SearchResult{}, nil
	}

	if s.bm25Dirty || len(s.bm25Docs) != len(s.documents) || len(s.bm25DocFreq) == 0 {
		s.rebuildBM25Locked()
	}

	tokens := Tokenize(query)
	scores := s.bm25ScoresLocked(tokens)

	matched := make([]scored, 0, len(scores))
	for i, score := range scores {
		if score > 0 {
			matched = append(matched, scored{index: i, score: score})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}

	results := make([]*SearchResult, 0, len(matched))
	for _, sc := range matched {
		results = append(results, &SearchResult{
			Chunk: s.chunkAtLocked(sc.index, sc.score),
			Score: sc.score,
		})
	}
	return results, nil
}

// DeleteChunks removes chunks by id and persists. Ids not present are
// skipped silently. Removal iterates positions in descending order so
// earlier removals do not shift later ones.
func (s *Store) DeleteChunks(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("vector_store_unlock_failed", slog.String("error", err.Error()))
		}
	}()
	s.refreshStateLocked()

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var positions []int
	for i, id := range s.chunkIDs {
		if _, ok := want[id]; ok {
			positions = append(positions, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(positions)))

	for _, i := range positions {
		s.vectors = append(s.vectors[:i], s.vectors[i+1:]...)
		s.documents = append(s.documents[:i], s.documents[i+1:]...)
		s.chunkIDs = append(s.chunkIDs[:i], s.chunkIDs[i+1:]...)
		s.metadata = append(s.metadata[:i], s.metadata[i+1:]...)
		if i < len(s.bm25Docs) {
			s.bm25Docs = append(s.bm25Docs[:i], s.bm25Docs[i+1:]...)
		}
	}

	if len(positions) > 0 {
		s.bm25Dirty = true
		slog.Info("chunks_deleted",
			slog.Int("requested", len(ids)),
			slog.Int("deleted", len(positions)))
	}

	return s.writeStateLocked()
}

// GetChunkByID returns the chunk with the given id, or (nil, nil) when
// no such chunk exists.
func (s *Store) GetChunkByID(ctx context.Context, id string) (*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	for i, cid := range s.chunkIDs {
		if cid == id {
			return s.chunkAtLocked(i, 0), nil
		}
	}
	return nil, nil
}

// Size returns the number of stored chunks, loading persisted state
// first so a fresh process reports the true count.
func (s *Store) Size(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()
	return len(s.vectors), nil
}

// Clear empties the store and persists the empty state.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	s.resetLocked()
	return s.saveLocked()
}

// DeleteStore empties the store and removes all three on-disk files.
// Already-absent files are not errors.
func (s *Store) DeleteStore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.loaded = true // nothing left to load

	for _, path := range []string{s.vectorsPath(), s.metadataPath(), s.lock.Path()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	slog.Info("vector_store_deleted", slog.String("dir", s.dir))
	return nil
}

// Invalidate drops the loaded state so the next operation reloads from
// disk. Called by the reload watcher when another process saves.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.loaded = false
}

// chunkAtLocked reconstructs the chunk record at position i. The vector
// and metadata are copied so callers cannot alias internal state.
func (s *Store) chunkAtLocked(i int, score float64) *Chunk {
	md := s.metadata[i]
	docID, _ := md[MetadataKeyDocumentID].(string)

	mdCopy := make(map[string]any, len(md))
	for k, v := range md {
		mdCopy[k] = v
	}

	vec := make([]float32, len(s.vectors[i]))
	copy(vec, s.vectors[i])

	return &Chunk{
		ID:         s.chunkIDs[i],
		Text:       s.documents[i],
		DocumentID: docID,
		Metadata:   mdCopy,
		Embedding:  vec,
		Score:      score,
	}
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
