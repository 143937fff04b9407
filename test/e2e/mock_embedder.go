package e2e

import (
	"context"
	"math"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/gladys-ai/gladys/pkg/embedding"
)

// ScriptedEmbedder implements embedding.Provider with a table of fixed
// vectors over a hashing fallback. Scenarios that depend on an exact cosine
// similarity between two texts pin it with SetPair (or SetSame for identical
// vectors); any text outside the table embeds through the default hashing
// provider, so incidental storage writes still get realistic vectors.
//
// Fixed vectors live on disjoint axis pairs, so two pinned pairs never
// interfere: texts from different pairs are orthogonal.
type ScriptedEmbedder struct {
	mu       sync.Mutex
	fallback *embedding.HashProvider
	dims     int
	fixed    map[string][]float32
	nextAxis int
}

// NewScriptedEmbedder creates an embedder with an empty table. Dimensions
// must match the migration schema's vector columns.
func NewScriptedEmbedder(dims int) *ScriptedEmbedder {
	return &ScriptedEmbedder{
		fallback: embedding.NewHashProvider(dims),
		dims:     dims,
		fixed:    make(map[string][]float32),
	}
}

// SetPair pins the cosine similarity between two texts to sim. The first
// text lands on a fresh axis e; the second on sim*e + sqrt(1-sim²) along the
// next axis, which makes their cosine exactly sim.
func (s *ScriptedEmbedder) SetPair(a, b string, sim float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	axis := s.claimAxes(2)
	va := make([]float32, s.dims)
	va[axis] = 1

	vb := make([]float32, s.dims)
	vb[axis] = float32(sim)
	vb[axis+1] = float32(math.Sqrt(1 - sim*sim))

	s.fixed[a] = va
	s.fixed[b] = vb
}

// SetSame maps both texts to one identical unit vector (cosine 1.0).
func (s *ScriptedEmbedder) SetSame(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	axis := s.claimAxes(1)
	v := make([]float32, s.dims)
	v[axis] = 1

	s.fixed[a] = v
	s.fixed[b] = v
}

// claimAxes reserves n consecutive axes. Must be called with s.mu held.
func (s *ScriptedEmbedder) claimAxes(n int) int {
	axis := s.nextAxis
	if axis+n > s.dims {
		panic("ScriptedEmbedder: out of axes")
	}
	s.nextAxis += n
	return axis
}

// Embed implements embedding.Provider.
func (s *ScriptedEmbedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	s.mu.Lock()
	v, ok := s.fixed[text]
	s.mu.Unlock()

	if ok {
		out := make([]float32, len(v))
		copy(out, v)
		return pgvector.NewVector(out), nil
	}
	return s.fallback.Embed(ctx, text)
}

// EmbedBatch implements embedding.Provider.
func (s *ScriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vecs := make([]pgvector.Vector, len(texts))
	for i, text := range texts {
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions implements embedding.Provider.
func (s *ScriptedEmbedder) Dimensions() int { return s.dims }
