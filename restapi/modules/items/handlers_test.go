package items

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/versionwatch/internal/checker"
	"github.com/ortelius/versionwatch/internal/enrichment"
	"github.com/ortelius/versionwatch/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChecker struct {
	result *model.CheckResult
	err    error
}

func (s *stubChecker) Check(context.Context, string) (*model.CheckResult, error) {
	return s.result, s.err
}

type stubStore struct {
	items map[string]*model.MonitoredItem
	logs  []*model.VersionLog
	err   error
	limit int
}

func (s *stubStore) GetItem(_ context.Context, key string) (*model.MonitoredItem, error) {
	if item, ok := s.items[key]; ok {
		return item, nil
	}
	return nil, fmt.Errorf("item %s: %w", key, model.ErrNotFound)
}

func (s *stubStore) ListVersionLogs(_ context.Context, _ string, limit int) ([]*model.VersionLog, error) {
	s.limit = limit
	return s.logs, s.err
}

type stubEnricher struct {
	result *model.AIEnrichmentResult
	err    error
	calls  int
	runs   []string
}

func (s *stubEnricher) NewRun(_ context.Context, runID string) (enrichment.Run, error) {
	s.runs = append(s.runs, runID)
	if s.err != nil {
		return nil, s.err
	}
	return s, nil
}

func (s *stubEnricher) Enrich(context.Context, enrichment.Provider, enrichment.Config, *model.MonitoredItem) *model.AIEnrichmentResult {
	s.calls++
	return s.result
}

type stubProvider struct {
	answer string
	calls  int
}

func (*stubProvider) Name() string  { return "openai" }
func (*stubProvider) Model() string { return "gpt-4o-mini" }
func (p *stubProvider) Analyze(context.Context, string, enrichment.AnalyzeOptions) (string, error) {
	p.calls++
	return p.answer, nil
}

type stubRequester struct {
	keys []string
	err  error
}

func (s *stubRequester) RequestCheck(_ context.Context, itemKey, _ string) error {
	s.keys = append(s.keys, itemKey)
	return s.err
}

func newApp(h *Handlers) *fiber.App {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	app := fiber.New()
	app.Post("/items/:key/check", h.CheckItem)
	app.Get("/items/:key/history", h.History)
	app.Post("/items/:key/ai-enrichment", h.AIEnrichment)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func storeWithGrafana() *stubStore {
	item := model.NewMonitoredItem()
	item.Key = "grafana"
	item.Name = "grafana"
	return &stubStore{items: map[string]*model.MonitoredItem{"grafana": item}}
}

func TestCheckItem(t *testing.T) {
	h := &Handlers{Checker: &stubChecker{result: &model.CheckResult{
		ItemKey:       "grafana",
		LatestVersion: "11.3.0",
		Status:        model.StatusOutdated,
		Changed:       true,
	}}}

	resp, body := do(t, newApp(h), http.MethodPost, "/items/grafana/check")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.CheckResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "11.3.0", result.LatestVersion)
	assert.True(t, result.Changed)
}

func TestCheckItem_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", &checker.ConfigurationError{Item: "grafana", Reason: "check source missing", Err: model.ErrNotFound}, http.StatusUnprocessableEntity},
		{"no signal", &checker.NoSignalError{Item: "grafana", SourceType: "github"}, http.StatusBadGateway},
		{"missing item", fmt.Errorf("loading item grafana: %w", model.ErrNotFound), http.StatusNotFound},
		{"other", fmt.Errorf("arangodb: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handlers{Checker: &stubChecker{err: tt.err}}
			resp, _ := do(t, newApp(h), http.MethodPost, "/items/grafana/check")
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHistory(t *testing.T) {
	store := storeWithGrafana()
	store.logs = []*model.VersionLog{
		model.NewVersionLog("grafana", "11.2.0", "11.3.0", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	app := newApp(&Handlers{Store: store})

	resp, body := do(t, app, http.MethodGet, "/items/grafana/history?limit=5")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, store.limit)

	var logs []model.VersionLog
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "11.3.0", logs[0].NewVersion)

	resp, _ = do(t, app, http.MethodGet, "/items/grafana/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/items/unknown/history")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAIEnrichment(t *testing.T) {
	enricher := &stubEnricher{result: &model.AIEnrichmentResult{
		ConfidenceLevel: 70,
		Provider:        "openai",
		Notes:           []string{enrichment.HumanValidationNote},
	}}
	app := newApp(&Handlers{Store: storeWithGrafana(), Enricher: enricher, Provider: &stubProvider{}})

	resp, body := do(t, app, http.MethodPost, "/items/grafana/ai-enrichment")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result model.AIEnrichmentResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 70, result.ConfidenceLevel)

	enricher.result = nil
	resp, _ = do(t, app, http.MethodPost, "/items/grafana/ai-enrichment")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/items/unknown/ai-enrichment")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 2, enricher.calls)
	require.Len(t, enricher.runs, 2)
	assert.NotEqual(t, enricher.runs[0], enricher.runs[1])
}

func TestAIEnrichment_QuotaIsPerRun(t *testing.T) {
	provider := &stubProvider{answer: `{"ai_generated_data": {"risk_summary": "behind by one minor"}}`}
	cfg := enrichment.DefaultConfig()
	cfg.QuotaPerRun = 1
	app := newApp(&Handlers{
		Store:    storeWithGrafana(),
		Enricher: enrichment.NewService(zap.NewNop()),
		Provider: provider,
		AIConfig: cfg,
	})

	// Requests without a run ID are separate runs.
	for i := 0; i < 3; i++ {
		resp, _ := do(t, app, http.MethodPost, "/items/grafana/ai-enrichment")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Enrichment-Run"))
	}

	resp, _ := do(t, app, http.MethodPost, "/items/grafana/ai-enrichment?run_id=nightly")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nightly", resp.Header.Get("X-Enrichment-Run"))
	resp, _ = do(t, app, http.MethodPost, "/items/grafana/ai-enrichment?run_id=nightly")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, 4, provider.calls)
}

func TestAIEnrichment_RunUnavailable(t *testing.T) {
	enricher := &stubEnricher{err: fmt.Errorf("opening quota for run x: nats: timeout")}
	app := newApp(&Handlers{Store: storeWithGrafana(), Enricher: enricher, Provider: &stubProvider{}})

	resp, _ := do(t, app, http.MethodPost, "/items/grafana/ai-enrichment?run_id=x")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Zero(t, enricher.calls)
}

func TestCheckItem_Enqueue(t *testing.T) {
	requests := &stubRequester{}
	checks := &stubChecker{}
	app := newApp(&Handlers{Checker: checks, Requests: requests, Store: storeWithGrafana()})

	resp, body := do(t, app, http.MethodPost, "/items/grafana/check?enqueue=true")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), `"item_key":"grafana"`)
	assert.Equal(t, []string{"grafana"}, requests.keys)

	resp, _ = do(t, app, http.MethodPost, "/items/unknown/check?enqueue=true")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Len(t, requests.keys, 1)

	requests.err = fmt.Errorf("kafka: leader not available")
	resp, _ = do(t, app, http.MethodPost, "/items/grafana/check?enqueue=true")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCheckItem_EnqueueNotConfigured(t *testing.T) {
	app := newApp(&Handlers{Checker: &stubChecker{}, Store: storeWithGrafana()})
	resp, _ := do(t, app, http.MethodPost, "/items/grafana/check?enqueue=true")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAIEnrichment_NotConfigured(t *testing.T) {
	app := newApp(&Handlers{Store: storeWithGrafana(), Enricher: &stubEnricher{}})
	resp, _ := do(t, app, http.MethodPost, "/items/grafana/ai-enrichment")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
