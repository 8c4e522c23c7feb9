package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// Fingerprint returns the cache key for a query. Case and whitespace
// differences map to the same fingerprint.
func Fingerprint(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Cosine returns the cosine similarity of a and b, or 0 when they differ in
// length or either is a zero vector.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
