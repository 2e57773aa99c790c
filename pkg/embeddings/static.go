package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// StaticProvider produces deterministic pseudo-vectors derived from the input
// text. It stands in for a real provider in tests: identical text always
// yields an identical vector, so similarity assertions are stable.
type StaticProvider struct {
	name string
	dim  int
}

// NewStaticProvider creates a deterministic test provider.
func NewStaticProvider(name string, dim int) *StaticProvider {
	return &StaticProvider{name: name, dim: dim}
}

func (p *StaticProvider) Name() string   { return p.name }
func (p *StaticProvider) Dimension() int { return p.dim }

// Embed hashes each text into a unit-length vector.
func (p *StaticProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *StaticProvider) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, p.dim)
	var norm float32
	for i := range v {
		// Stretch the digest over the requested dimension.
		word := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		v[i] = float32(word%2000)/1000.0 - 1.0
		norm += v[i] * v[i]
	}
	if norm > 0 {
		inv := 1.0 / sqrt32(norm)
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

func sqrt32(f float32) float32 {
	// Newton iterations are plenty for test vectors.
	x := f / 2
	for range 12 {
		x = (x + f/x) / 2
	}
	return x
}
