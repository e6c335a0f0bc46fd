package store

import "math"

// Okapi BM25 tuning constants.
const (
	// bm25K1 controls term frequency saturation.
	bm25K1 = 1.5
	// bm25B controls document length normalization.
	bm25B = 0.75
)

// rebuildBM25Locked retokenizes every document and recomputes document
// frequencies and the average document length. Must be called with s.mu
// held. Clears the dirty flag.
func (s *Store) rebuildBM25Locked() {
	s.bm25Docs = make([][]string, len(s.documents))
	s.bm25DocFreq = make(map[string]int)

	totalTokens := 0
	for i, doc := range s.documents {
		tokens := Tokenize(doc)
		s.bm25Docs[i] = tokens
		totalTokens += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			s.bm25DocFreq[t]++
		}
	}

	if len(s.documents) > 0 {
		s.bm25AvgDL = float64(totalTokens) / float64(len(s.documents))
	} else {
		s.bm25AvgDL = 0
	}

	s.bm25Dirty = false
}

// bm25ScoresLocked scores every document against the query tokens using
// Okapi BM25. Query tokens absent from the corpus contribute zero.
// Must be called with s.mu held and the BM25 cache current.
func (s *Store) bm25ScoresLocked(queryTokens []string) []float64 {
	n := len(s.bm25Docs)
	scores := make([]float64, n)
	if n == 0 || len(queryTokens) == 0 {
		return scores
	}

	for _, term := range queryTokens {
		df := s.bm25DocFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

		for i, tokens := range s.bm25Docs {
			tf := 0
			for _, t := range tokens {
				if t == term {
					tf++
				}
			}
			if tf == 0 {
				continue
			}

			dl := float64(len(tokens))
			norm := 1 - bm25B + bm25B*dl/s.bm25AvgDL
			scores[i] += idf * (float64(tf) * (bm25K1 + 1)) / (float64(tf) + bm25K1*norm)
		}
	}

	return scores
}
