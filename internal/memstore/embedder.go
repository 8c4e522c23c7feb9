package memstore

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. Texts with the same
// words embed identically; it needs no network.
type HashEmbedder struct {
	Dim int
}

// Embed hashes each lowercased word of text into one of Dim buckets.
func (e HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = 256
	}

	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	return vec, nil
}
