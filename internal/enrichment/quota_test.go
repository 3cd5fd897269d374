package enrichment

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memKV implements the part of jetstream.KeyValue the quota counter uses.
type memKV struct {
	jetstream.KeyValue

	mu      sync.Mutex
	values  map[string][]byte
	revs    map[string]uint64
	updates int
}

func newMemKV() *memKV {
	return &memKV{values: map[string][]byte{}, revs: map[string]uint64{}}
}

type memEntry struct {
	jetstream.KeyValueEntry
	value []byte
	rev   uint64
}

func (e memEntry) Value() []byte    { return e.value }
func (e memEntry) Revision() uint64 { return e.rev }

func (m *memKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return memEntry{value: v, rev: m.revs[key]}, nil
}

func (m *memKV) Create(_ context.Context, key string, value []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return 0, jetstream.ErrKeyExists
	}
	m.values[key] = value
	m.revs[key] = 1
	return 1, nil
}

func (m *memKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revs[key] != revision {
		return 0, fmt.Errorf("wrong last sequence: %d", m.revs[key])
	}
	m.updates++
	m.values[key] = value
	m.revs[key]++
	return m.revs[key], nil
}

func (m *memKV) value(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.values[key])
}

func TestKVQuota_CountsPerRun(t *testing.T) {
	kv := newMemKV()
	quotas := &KVQuotas{kv: kv}
	ctx := context.Background()

	first, err := quotas.ForRun(ctx, "nightly-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		ok, err := first.Acquire(ctx, 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := first.Acquire(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "3", kv.value("run.nightly-1"))

	// Another instance joining the same run sees the shared count.
	again, _ := quotas.ForRun(ctx, "nightly-1")
	ok, _ = again.Acquire(ctx, 3)
	assert.False(t, ok)

	next, _ := quotas.ForRun(ctx, "nightly-2")
	ok, err = next.Acquire(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKVQuota_ConcurrentAcquire(t *testing.T) {
	kv := newMemKV()
	q := &KVQuota{kv: kv, key: "run.r"}

	var mu sync.Mutex
	var wg sync.WaitGroup
	granted := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := q.Acquire(context.Background(), 5)
			if err == nil && ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	used, err := strconv.Atoi(kv.value("run.r"))
	require.NoError(t, err)
	assert.Equal(t, granted, used)
	assert.LessOrEqual(t, used, 5)
}

func TestKVQuota_CorruptCounter(t *testing.T) {
	kv := newMemKV()
	kv.values["run.bad"] = []byte("many")
	kv.revs["run.bad"] = 1

	ok, err := (&KVQuota{kv: kv, key: "run.bad"}).Acquire(context.Background(), 10)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLocalQuotas_SameRunSharesCounter(t *testing.T) {
	quotas := NewLocalQuotas()
	ctx := context.Background()

	a, _ := quotas.ForRun(ctx, "a")
	again, _ := quotas.ForRun(ctx, "a")
	b, _ := quotas.ForRun(ctx, "b")
	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
}

func TestLocalQuotas_ForgetsOldestRun(t *testing.T) {
	quotas := NewLocalQuotas()
	ctx := context.Background()

	first, _ := quotas.ForRun(ctx, "run-0")
	for i := 1; i <= maxLocalRuns; i++ {
		_, _ = quotas.ForRun(ctx, fmt.Sprintf("run-%d", i))
	}

	assert.Len(t, quotas.runs, maxLocalRuns)
	again, _ := quotas.ForRun(ctx, "run-0")
	assert.NotSame(t, first, again)
}

func TestNewRun_EachRunGetsFullQuota(t *testing.T) {
	s := newTestService(zap.NewNop())
	provider := answers(validAnswer)
	cfg := DefaultConfig()
	cfg.QuotaPerRun = 2
	ctx := context.Background()

	first, err := s.NewRun(ctx, "batch-1")
	require.NoError(t, err)
	assert.NotNil(t, first.Enrich(ctx, provider, cfg, testItem()))
	assert.NotNil(t, first.Enrich(ctx, provider, cfg, testItem()))
	assert.Nil(t, first.Enrich(ctx, provider, cfg, testItem()))

	second, err := s.NewRun(ctx, "batch-2")
	require.NoError(t, err)
	assert.NotNil(t, second.Enrich(ctx, provider, cfg, testItem()))
	assert.NotNil(t, second.Enrich(ctx, provider, cfg, testItem()))

	rejoined, err := s.NewRun(ctx, "batch-1")
	require.NoError(t, err)
	assert.Nil(t, rejoined.Enrich(ctx, provider, cfg, testItem()))

	// Runs leave the service's own counter alone.
	assert.NotNil(t, s.Enrich(ctx, provider, cfg, testItem()))
	assert.Equal(t, 5, provider.callCount())
}

type failingSource struct{}

func (failingSource) ForRun(context.Context, string) (QuotaCounter, error) {
	return nil, fmt.Errorf("nats: timeout")
}

func TestNewRun_SourceFailure(t *testing.T) {
	s := newTestService(zap.NewNop(), WithQuotaSource(failingSource{}))
	run, err := s.NewRun(context.Background(), "x")
	assert.Error(t, err)
	assert.Nil(t, run)
}
