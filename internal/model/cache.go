package model

import (
	"time"
)

// CacheEntry is a tenant-scoped semantic cache record.
type CacheEntry struct {
	TenantID         string        `json:"tenant_id"`
	QueryFingerprint string        `json:"query_fingerprint"`
	QueryText        string        `json:"query_text"`
	SimilarityVector []float32     `json:"similarity_vector"`
	Answer           string        `json:"answer"`
	WrittenAt        time.Time     `json:"written_at"`
	TTL              time.Duration `json:"ttl"`

	// Similarity is set on lookup results only.
	Similarity float64 `json:"similarity,omitempty"`
}

// Expired reports whether the entry is past its TTL at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.WrittenAt.Add(e.TTL))
}
