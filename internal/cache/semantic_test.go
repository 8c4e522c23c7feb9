package cache

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/logger"
)

const (
	tenantA = "6f1c1d2e-8a4b-4c3d-9e5f-0a1b2c3d4e5f"
	tenantB = "7a2d2e3f-9b5c-4d4e-8f60-1b2c3d4e5f60"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func setupSemantic(t *testing.T, emb *fakeEmbedder) (*Semantic, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewSemantic(rdb, emb, Config{Threshold: 0.9}, logger.Nop()), mr
}

func TestSemantic_HitAboveThreshold(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"How do I reset my password?":       {1, 0, 0},
		"how can i reset the password":      {0.95, float32(math.Sqrt(1 - 0.95*0.95)), 0},
		"What are your opening hours today?": {0, 1, 0},
	}}
	s, _ := setupSemantic(t, emb)

	require.NoError(t, s.Write(ctx, tenantA, "How do I reset my password?", "Use the reset link.", time.Hour))

	hit, err := s.Lookup(ctx, tenantA, "how can i reset the password")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Use the reset link.", hit.Answer)
	assert.InDelta(t, 0.95, hit.Similarity, 1e-3)

	miss, err := s.Lookup(ctx, tenantA, "What are your opening hours today?")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSemantic_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	s, _ := setupSemantic(t, &fakeEmbedder{})

	require.NoError(t, s.Write(ctx, tenantA, "same question", "tenant A answer", time.Hour))

	got, err := s.Lookup(ctx, tenantB, "same question")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Lookup(ctx, tenantA, "same question")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tenantA, got.TenantID)
}

func TestSemantic_WriteOverwritesFingerprint(t *testing.T) {
	ctx := context.Background()
	s, mr := setupSemantic(t, &fakeEmbedder{})

	require.NoError(t, s.Write(ctx, tenantA, "Where is my invoice?", "draft answer", time.Hour))
	require.NoError(t, s.Write(ctx, tenantA, "where is my  invoice?", "human answer", time.Hour))

	got, err := s.Lookup(ctx, tenantA, "Where is my invoice?")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "human answer", got.Answer)

	members, err := mr.SMembers(indexKey(tenantA))
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestSemantic_ExpiredEntriesArePruned(t *testing.T) {
	ctx := context.Background()
	s, mr := setupSemantic(t, &fakeEmbedder{})

	require.NoError(t, s.Write(ctx, tenantA, "short lived", "answer", time.Minute))
	mr.FastForward(2 * time.Minute)

	got, err := s.Lookup(ctx, tenantA, "short lived")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.False(t, mr.Exists(indexKey(tenantA)))
}

func TestSemantic_Unavailable(t *testing.T) {
	ctx := context.Background()

	s, _ := setupSemantic(t, &fakeEmbedder{err: errors.New("embedding backend down")})
	_, err := s.Lookup(ctx, tenantA, "anything")
	assert.ErrorIs(t, err, model.ErrCacheUnavailable)

	s, mr := setupSemantic(t, &fakeEmbedder{})
	mr.Close()
	_, err = s.Lookup(ctx, tenantA, "anything")
	assert.ErrorIs(t, err, model.ErrCacheUnavailable)
	assert.ErrorIs(t, s.Write(ctx, tenantA, "q", "a", time.Hour), model.ErrCacheUnavailable)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestFingerprint_Normalizes(t *testing.T) {
	assert.Equal(t, Fingerprint("Reset  Password"), Fingerprint(" reset password "))
	assert.NotEqual(t, Fingerprint("reset password"), Fingerprint("reset username"))
}
