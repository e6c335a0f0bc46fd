package store

import "container/heap"

// scored pairs a parallel-array position with its similarity score.
type scored struct {
	index int
	score float64
}

// scoredHeap is a min-heap keyed on score, used to keep the k highest
// scores without sorting the whole corpus.
type scoredHeap []scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK selects the k highest-scoring entries from scores and returns them
// in descending score order. O(N log k) instead of a full sort.
func topK(scores []float64, k int) []scored {
	if k <= 0 {
		return nil
	}

	h := make(scoredHeap, 0, k)
	heap.Init(&h)
	for i, score := range scores {
		if len(h) < k {
			heap.Push(&h, scored{index: i, score: score})
			continue
		}
		if score > h[0].score {
			h[0] = scored{index: i, score: score}
			heap.Fix(&h, 0)
		}
	}

	// Drain the min-heap into descending order.
	out := make([]scored, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(scored)
	}
	return out
}
