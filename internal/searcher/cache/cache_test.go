package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sampleResult() *executor.SearchResult {
	return &executor.SearchResult{
		Terms:     []string{"alpha"},
		TotalHits: 1,
		Results:   []executor.Hit{{SessionID: 1, DocID: 1, Path: "/a", Frequency: 3}},
	}
}

func TestBuildKey(t *testing.T) {
	base := buildKey([]string{"alpha", "beta"}, 3, 10)

	assert.True(t, strings.HasPrefix(base, keyPrefix))
	assert.Equal(t, base, buildKey([]string{"alpha", "beta"}, 3, 10))
	assert.NotEqual(t, base, buildKey([]string{"alpha", "beta"}, 4, 10), "new index version")
	assert.NotEqual(t, base, buildKey([]string{"alpha", "beta"}, 3, 5), "different limit")
	assert.NotEqual(t, base, buildKey([]string{"beta", "alpha"}, 3, 10), "term order")
	assert.NotEqual(t, buildKey([]string{"ab", "c"}, 1, 1), buildKey([]string{"a", "bc"}, 1, 1))
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return sampleResult(), nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), []string{"alpha"}, 1, 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrCompute(context.Background(), []string{"alpha"}, 1, 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, calls)

	_, hit, err = c.GetOrCompute(context.Background(), []string{"alpha"}, 2, 10, compute)
	require.NoError(t, err)
	assert.False(t, hit, "index changed")
	assert.Equal(t, 2, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), []string{"x"}, 1, 10, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestBackendFailureFallsThroughAndTripsBreaker(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	breaker := resilience.NewCircuitBreaker("test-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	c := New(store, time.Minute, breaker)

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), []string{"alpha"}, 1, 10, func() (*executor.SearchResult, error) {
			calls.Add(1)
			return sampleResult(), nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 1, res.TotalHits)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, resilience.StateOpen, breaker.GetState())
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), []string{"alpha"}, 1, 10, sampleResult())
	store.data["unrelated"] = "keep"

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Len(t, store.data, 1)
	_, ok := c.Get(context.Background(), []string{"alpha"}, 1, 10)
	assert.False(t, ok)
}
