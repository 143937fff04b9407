package salience

import (
	"sync"

	"github.com/gladys-ai/gladys/pkg/embedding"
)

// recentRing remembers the embeddings of recently evaluated events (FIFO,
// fixed size). An incoming event that closely resembles one of them is a
// repeat: its novelty drops and habituation rises instead.
type recentRing struct {
	mu      sync.Mutex
	entries [][]float32
	next    int
	filled  bool
}

func newRecentRing(size int) *recentRing {
	if size < 1 {
		size = 1
	}
	return &recentRing{entries: make([][]float32, size)}
}

// observe compares the embedding against the window and then records it.
// Returns the highest similarity seen (0 when the window is empty).
func (r *recentRing) observe(vec []float32) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best float64
	for _, e := range r.entries {
		if e == nil {
			continue
		}
		if sim := embedding.CosineSimilarity(vec, e); sim > best {
			best = sim
		}
	}

	r.entries[r.next] = vec
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.filled = true
	}
	return best
}

// size reports how many embeddings the window currently holds.
func (r *recentRing) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		return len(r.entries)
	}
	return r.next
}
