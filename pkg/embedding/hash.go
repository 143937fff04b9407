package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"
)

// HashProvider generates deterministic embeddings by feature hashing: word
// tokens and their character trigrams are hashed into a fixed number of
// buckets and the result is L2-normalized. Identical text always produces an
// identical vector, and texts sharing vocabulary land near each other, which
// is enough for cache lookups and similarity search without an external
// model. This is the default provider.
type HashProvider struct {
	dims int
}

// trigramWeight scales subword features relative to whole tokens, so that
// morphological variants ("drop" / "dropped") overlap without dominating.
const trigramWeight = 0.5

// NewHashProvider creates a hashing embedder with the given dimensionality.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = 384
	}
	return &HashProvider{dims: dims}
}

// Dimensions returns the embedding vector size.
func (p *HashProvider) Dimensions() int {
	return p.dims
}

// Embed generates a deterministic embedding for the text.
func (p *HashProvider) Embed(_ context.Context, text string) (pgvector.Vector, error) {
	vec := make([]float32, p.dims)

	for _, tok := range tokenize(text) {
		p.accumulate(vec, tok, 1.0)
		for _, tri := range trigrams(tok) {
			p.accumulate(vec, tri, trigramWeight)
		}
	}

	normalize(vec)
	return pgvector.NewVector(vec), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs := make([]pgvector.Vector, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// accumulate hashes a feature into a bucket. FNV-1a is stable across runs and
// platforms; the low bits pick the bucket and a high bit picks the sign.
func (p *HashProvider) accumulate(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(p.dims))
	if (sum>>32)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams returns the character trigrams of a token.
func trigrams(tok string) []string {
	runes := []rune(tok)
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

// normalize scales the vector to unit length in place. Zero vectors (empty
// text) are left as-is.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
