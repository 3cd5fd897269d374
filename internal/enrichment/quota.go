package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// QuotaCounter hands out provider calls for one enrichment run.
type QuotaCounter interface {
	// Acquire takes one unit. It returns false once limit units have been taken.
	Acquire(ctx context.Context, limit int) (bool, error)
}

// QuotaSource opens the counter for a run. Calls with the same run ID share one counter.
type QuotaSource interface {
	ForRun(ctx context.Context, runID string) (QuotaCounter, error)
}

// LocalQuota counts within this process only. Several instances each get the full quota.
type LocalQuota struct {
	mu   sync.Mutex
	used int
}

var _ QuotaCounter = (*LocalQuota)(nil)

// Acquire implements QuotaCounter.
func (q *LocalQuota) Acquire(_ context.Context, limit int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used >= limit {
		return false, nil
	}
	q.used++
	return true, nil
}

// Used returns how many units were taken.
func (q *LocalQuota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// maxLocalRuns bounds how many run counters LocalQuotas remembers.
const maxLocalRuns = 1024

// LocalQuotas keeps one LocalQuota per run ID, forgetting the oldest run once
// maxLocalRuns are held.
type LocalQuotas struct {
	mu    sync.Mutex
	runs  map[string]*LocalQuota
	order []string
}

var _ QuotaSource = (*LocalQuotas)(nil)

// NewLocalQuotas creates an empty in-process QuotaSource.
func NewLocalQuotas() *LocalQuotas {
	return &LocalQuotas{runs: map[string]*LocalQuota{}}
}

// ForRun implements QuotaSource.
func (l *LocalQuotas) ForRun(_ context.Context, runID string) (QuotaCounter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if q, ok := l.runs[runID]; ok {
		return q, nil
	}
	if len(l.order) >= maxLocalRuns {
		delete(l.runs, l.order[0])
		l.order = l.order[1:]
	}
	q := &LocalQuota{}
	l.runs[runID] = q
	l.order = append(l.order, runID)
	return q, nil
}

const (
	casAttempts = 8

	// quotaTTL expires run counters in the shared bucket.
	quotaTTL = 24 * time.Hour
)

// KVQuotas shares run counters between instances through a JetStream key-value bucket.
type KVQuotas struct {
	kv jetstream.KeyValue
}

var _ QuotaSource = (*KVQuotas)(nil)

// NewKVQuotas opens (or creates) bucket.
func NewKVQuotas(ctx context.Context, js jetstream.JetStream, bucket string) (*KVQuotas, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    quotaTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening quota bucket %s: %w", bucket, err)
	}
	return &KVQuotas{kv: kv}, nil
}

// ForRun implements QuotaSource.
func (k *KVQuotas) ForRun(_ context.Context, runID string) (QuotaCounter, error) {
	return &KVQuota{kv: k.kv, key: "run." + runID}, nil
}

// KVQuota is one run's counter in a JetStream key-value bucket, updated with
// compare-and-set on the key revision.
type KVQuota struct {
	kv  jetstream.KeyValue
	key string
}

var _ QuotaCounter = (*KVQuota)(nil)

// Acquire implements QuotaCounter.
func (q *KVQuota) Acquire(ctx context.Context, limit int) (bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := q.kv.Get(ctx, q.key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			if limit <= 0 {
				return false, nil
			}
			if _, err := q.kv.Create(ctx, q.key, []byte("1")); err != nil {
				if errors.Is(err, jetstream.ErrKeyExists) {
					continue
				}
				return false, err
			}
			return true, nil
		}
		if err != nil {
			return false, err
		}

		used, err := strconv.Atoi(string(entry.Value()))
		if err != nil {
			return false, fmt.Errorf("corrupt quota counter %s: %w", q.key, err)
		}
		if used >= limit {
			return false, nil
		}

		// A concurrent writer moved the revision; read again.
		if _, err := q.kv.Update(ctx, q.key, []byte(strconv.Itoa(used+1)), entry.Revision()); err != nil {
			continue
		}
		return true, nil
	}
	return false, fmt.Errorf("quota counter %s: too much contention", q.key)
}
