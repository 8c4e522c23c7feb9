// Package cache provides the tenant-scoped semantic answer cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/logger"
)

const keyPrefix = "semcache"

// Config holds semantic cache settings.
type Config struct {
	// Threshold is the minimum cosine similarity for a hit.
	Threshold float64
}

// Semantic is a Redis-backed semantic cache. Every key lives under the
// tenant's namespace and lookups only scan that namespace.
type Semantic struct {
	rdb      redis.UniversalClient
	embedder llm.Embedder
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time
}

// NewSemantic creates a semantic cache.
func NewSemantic(rdb redis.UniversalClient, embedder llm.Embedder, cfg Config, log *logger.Logger) *Semantic {
	return &Semantic{
		rdb:      rdb,
		embedder: embedder,
		cfg:      cfg,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func entryKey(tenantID, fingerprint string) string {
	return fmt.Sprintf("%s:%s:entry:%s", keyPrefix, tenantID, fingerprint)
}

func indexKey(tenantID string) string {
	return fmt.Sprintf("%s:%s:index", keyPrefix, tenantID)
}

// Lookup returns the tenant's entry most similar to query when its
// similarity reaches the threshold, or nil on a miss.
func (s *Semantic) Lookup(ctx context.Context, tenantID, query string) (*model.CacheEntry, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", model.ErrCacheUnavailable, err)
	}

	fingerprints, err := s.rdb.SMembers(ctx, indexKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
	}
	if len(fingerprints) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(fingerprints))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, fp := range fingerprints {
			cmds[i] = pipe.Get(ctx, entryKey(tenantID, fp))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
	}

	now := s.now()
	var best *model.CacheEntry
	var stale []any

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, fingerprints[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
		}

		var entry model.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logger.Warn("dropping undecodable cache entry",
				zap.String("tenant_id", tenantID),
				zap.String("fingerprint", fingerprints[i]),
				zap.Error(err),
			)
			stale = append(stale, fingerprints[i])
			continue
		}
		if entry.TenantID != tenantID || entry.Expired(now) {
			continue
		}

		entry.Similarity = Cosine(vector, entry.SimilarityVector)
		if entry.Similarity >= s.cfg.Threshold && (best == nil || entry.Similarity > best.Similarity) {
			e := entry
			best = &e
		}
	}

	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, indexKey(tenantID), stale...).Err(); err != nil {
			s.logger.Debug("failed to prune cache index", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	return best, nil
}

// Write stores answer for query under the tenant's namespace, replacing any
// entry with the same fingerprint.
func (s *Semantic) Write(ctx context.Context, tenantID, query, answer string, ttl time.Duration) error {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: embed query: %v", model.ErrCacheUnavailable, err)
	}

	entry := model.CacheEntry{
		TenantID:         tenantID,
		QueryFingerprint: Fingerprint(query),
		QueryText:        query,
		SimilarityVector: vector,
		Answer:           answer,
		WrittenAt:        s.now(),
		TTL:              ttl,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey(tenantID, entry.QueryFingerprint), data, ttl)
		pipe.SAdd(ctx, indexKey(tenantID), entry.QueryFingerprint)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
	}

	return nil
}
