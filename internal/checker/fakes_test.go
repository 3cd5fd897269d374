package checker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ortelius/versionwatch/internal/connectors"
	"github.com/ortelius/versionwatch/internal/tasks"
	"github.com/ortelius/versionwatch/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory Store applying patches the way the database does:
// top-level attributes are replaced and nil clears them.
type memStore struct {
	mu        sync.Mutex
	items     map[string]*model.MonitoredItem
	sources   map[string]*model.CheckSource
	logs      []*model.VersionLog
	updates   int
	updateErr error
	logErr    error
}

func newMemStore() *memStore {
	return &memStore{
		items:   make(map[string]*model.MonitoredItem),
		sources: make(map[string]*model.CheckSource),
	}
}

func (s *memStore) put(item *model.MonitoredItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.Key] = &cp
}

func (s *memStore) get(t *testing.T, key string) *model.MonitoredItem {
	t.Helper()
	item, err := s.GetItem(context.Background(), key)
	require.NoError(t, err)
	return item
}

func (s *memStore) GetItem(_ context.Context, key string) (*model.MonitoredItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *memStore) GetCheckSource(_ context.Context, key string) (*model.CheckSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return src, nil
}

func (s *memStore) UpdateItem(_ context.Context, key string, patch model.ItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}

	item, ok := s.items[key]
	if !ok {
		return model.ErrNotFound
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	updated := &model.MonitoredItem{}
	if err := json.Unmarshal(merged, updated); err != nil {
		return err
	}
	s.items[key] = updated
	return nil
}

func (s *memStore) InsertVersionLog(_ context.Context, entry *model.VersionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *memStore) versionLogs() []*model.VersionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.VersionLog(nil), s.logs...)
}

type recordedEvent struct {
	eventType string
	payload   model.EventPayload
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakeEvents) Dispatch(_ context.Context, eventType string, payload model.EventPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType: eventType, payload: payload})
	return f.err
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.eventType)
	}
	return out
}

func (f *fakeEvents) find(eventType string) (model.EventPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.eventType == eventType {
			return e.payload, true
		}
	}
	return model.EventPayload{}, false
}

type fakeEnricher struct {
	mu    sync.Mutex
	calls []model.EnrichContext
	err   error
}

func (f *fakeEnricher) Enrich(_ context.Context, ec model.EnrichContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ec)
	return f.err
}

func (f *fakeEnricher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// catalogParams is what fake catalogs accept from items.
type catalogParams struct {
	Name string `json:"name" validate:"required"`
}

type catalogConfig struct{}

// fakeCatalog returns a configurable result for every lookup.
type fakeCatalog struct {
	tag    string
	mu     sync.Mutex
	result model.VersionCheckResult
	err    error
	calls  int
}

func (f *fakeCatalog) Type() string { return f.tag }

func (f *fakeCatalog) Fetch(context.Context, catalogConfig, catalogParams) (model.VersionCheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeCatalog) set(result model.VersionCheckResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = result
}

type harness struct {
	store    *memStore
	catalog  *fakeCatalog
	events   *fakeEvents
	enricher *fakeEnricher
	queue    *tasks.Queue
	checker  *Checker
}

// newHarness wires a checker whose "catalog" source is a structured source and whose
// "github" tag is available to legacy blobs.
func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	store.sources["src-catalog"] = &model.CheckSource{Key: "src-catalog", Type: "catalog"}

	catalog := &fakeCatalog{tag: "catalog"}
	registry := connectors.NewRegistry(zap.NewNop())
	connectors.Register[catalogConfig, catalogParams](registry, catalog, catalogConfig{})
	connectors.Register[catalogConfig, catalogParams](registry, &legacyCatalog{catalog}, catalogConfig{}, connectors.Legacy())

	events := &fakeEvents{}
	enricher := &fakeEnricher{}
	queue := tasks.NewQueue(zap.NewNop(), 1, 64)
	t.Cleanup(queue.Close)

	c := New(store, registry, queue, zap.NewNop(),
		WithEvents(events),
		WithEnricher(enricher),
		WithClock(func() time.Time { return testNow }))

	return &harness{store: store, catalog: catalog, events: events, enricher: enricher, queue: queue, checker: c}
}

// drain waits for every background task submitted so far.
func (h *harness) drain() {
	h.queue.Close()
}

// legacyCatalog exposes the same fake under the "github" tag.
type legacyCatalog struct{ *fakeCatalog }

func (l *legacyCatalog) Type() string { return "github" }

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func structuredItem(key, current, latest string) *model.MonitoredItem {
	item := model.NewMonitoredItem()
	item.Key = key
	item.Name = key
	item.Type = "package"
	item.SourceID = "src-catalog"
	item.SourceParams = json.RawMessage(`{"name":"` + key + `"}`)
	if current != "" {
		item.CurrentVersion = strPtr(current)
	}
	if latest != "" {
		item.LatestVersion = strPtr(latest)
	}
	return item
}

var errBoom = errors.New("boom")
