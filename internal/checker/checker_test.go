package checker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ortelius/versionwatch/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_OutdatedMinorBump(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("nginx", "1.24.0", "1.24.0"))
	h.catalog.set(model.VersionCheckResult{Version: "1.25.3", ReleaseNotes: "bugfixes", ReleaseURL: "https://nginx.org/1.25.3"})

	res, err := h.checker.Check(context.Background(), "nginx")
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, model.StatusOutdated, res.Status)
	assert.True(t, res.Changed)
	assert.Equal(t, "1.25.3", res.LatestVersion)

	logs := h.store.versionLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "1.24.0", logs[0].OldVersion)
	assert.Equal(t, "1.25.3", logs[0].NewVersion)
	assert.Equal(t, "bugfixes", logs[0].ReleaseNotes)
	assert.Equal(t, "https://nginx.org/1.25.3", logs[0].ReleaseURL)

	payload, ok := h.events.find(model.EventVersionNew)
	require.True(t, ok)
	assert.Equal(t, "1.24.0", payload.OldVersion)
	assert.Equal(t, "1.25.3", payload.NewVersion)
	assert.NotContains(t, h.events.types(), model.EventVersionCritical)

	stored := h.store.get(t, "nginx")
	assert.Equal(t, "1.25.3", stored.Latest())
	assert.Equal(t, model.StatusOutdated, stored.Status)
	require.NotNil(t, stored.LastChecked)
	assert.True(t, stored.LastChecked.Equal(testNow))
	assert.Equal(t, "bugfixes", stored.ReleaseNotes)

	require.Equal(t, 1, h.enricher.count())
	assert.Equal(t, "1.24.0", h.enricher.calls[0].CurrentVersion)
	assert.Equal(t, "1.25.3", h.enricher.calls[0].LatestVersion)
	assert.Equal(t, "catalog", h.enricher.calls[0].SourceType)
}

func TestCheck_MajorBumpIsCritical(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("postgres", "16.4", "16.4"))
	h.catalog.set(model.VersionCheckResult{Version: "17.0"})

	_, err := h.checker.Check(context.Background(), "postgres")
	require.NoError(t, err)
	h.drain()

	assert.ElementsMatch(t, []string{model.EventVersionNew, model.EventVersionCritical}, h.events.types())
}

func TestCheck_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("redis", "7.2.4", "7.2.4"))
	h.catalog.set(model.VersionCheckResult{Version: "7.4.1"})

	first, err := h.checker.Check(context.Background(), "redis")
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := h.checker.Check(context.Background(), "redis")
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Status, second.Status)

	assert.Len(t, h.store.versionLogs(), 1)
	assert.Equal(t, 2, h.catalog.calls)
}

func TestCheck_HistoryOnlyForTransitionsBetweenKnownVersions(t *testing.T) {
	tests := []struct {
		name     string
		latest   string
		resolved string
		wantLog  bool
	}{
		{name: "first check", latest: "", resolved: "3.0.0", wantLog: false},
		{name: "unchanged", latest: "3.0.0", resolved: "3.0.0", wantLog: false},
		{name: "transition", latest: "3.0.0", resolved: "3.1.0", wantLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.put(structuredItem("etcd", "", tt.latest))
			h.catalog.set(model.VersionCheckResult{Version: tt.resolved})

			res, err := h.checker.Check(context.Background(), "etcd")
			require.NoError(t, err)
			h.drain()

			assert.Equal(t, tt.latest != tt.resolved, res.Changed)
			if tt.wantLog {
				assert.Len(t, h.store.versionLogs(), 1)
			} else {
				assert.Empty(t, h.store.versionLogs())
			}
		})
	}
}

func TestCheck_FirstCheckEmitsVersionNewWithoutOldVersion(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("vault", "", ""))
	h.catalog.set(model.VersionCheckResult{Version: "1.18.0"})

	res, err := h.checker.Check(context.Background(), "vault")
	require.NoError(t, err)
	h.drain()

	assert.True(t, res.Changed)
	assert.Equal(t, model.StatusUpToDate, res.Status)
	payload, ok := h.events.find(model.EventVersionNew)
	require.True(t, ok)
	assert.Empty(t, payload.OldVersion)
	assert.NotContains(t, h.events.types(), model.EventVersionCritical)
	assert.Zero(t, h.enricher.count())
}

func TestCheck_PastEOLForcesEndOfLife(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("python", "3.8.20", "3.8.20"))
	h.catalog.set(model.VersionCheckResult{Version: "3.8.20", EOLDate: "2024-10-07"})

	res, err := h.checker.Check(context.Background(), "python")
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, model.StatusEndOfLife, res.Status)
	assert.False(t, res.Changed)
	assert.Equal(t, []string{model.EventItemEOL}, h.events.types())
	assert.Equal(t, model.StatusEndOfLife, h.store.get(t, "python").Status)
}

func TestCheck_StoredEOLUsedWhenCatalogHasNone(t *testing.T) {
	h := newHarness(t)
	item := structuredItem("centos", "7", "7")
	item.EOLDate = "2024-06-30"
	h.store.put(item)
	h.catalog.set(model.VersionCheckResult{Version: "7"})

	res, err := h.checker.Check(context.Background(), "centos")
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, model.StatusEndOfLife, res.Status)
	assert.Contains(t, h.events.types(), model.EventItemEOL)
}

func TestCheck_EOLCorrectedToFutureClearsEndOfLife(t *testing.T) {
	h := newHarness(t)
	item := structuredItem("nodejs", "18.20.4", "18.20.4")
	item.EOLDate = "2025-01-01"
	item.Status = model.StatusEndOfLife
	h.store.put(item)

	// The catalog moved the end-of-life date out after a support extension.
	h.catalog.set(model.VersionCheckResult{Version: "18.20.4", EOLDate: "2026-04-30"})

	res, err := h.checker.Check(context.Background(), "nodejs")
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, model.StatusUpToDate, res.Status)
	stored := h.store.get(t, "nodejs")
	assert.Equal(t, model.StatusUpToDate, stored.Status)
	assert.Equal(t, "2026-04-30", stored.EOLDate)
	assert.NotContains(t, h.events.types(), model.EventItemEOL)
}

func TestCheck_UpToDateWithoutCVEsClearsSecurityData(t *testing.T) {
	h := newHarness(t)
	item := structuredItem("openssl", "3.3.2", "3.3.1")
	item.CVEs = []string{"CVE-2024-5535"}
	item.ExternalScore = floatPtr(9.1)
	item.ExternalSeverity = strPtr("CRITICAL")
	item.InternalScore = floatPtr(8.2)
	item.ScoreConfidence = floatPtr(0.8)
	item.EPSSPercent = floatPtr(12.5)
	item.SecurityState = model.SecurityStateVulnerable
	item.RawMetadata = json.RawMessage(`{"cve_metadata":{"CVE-2024-5535":{}},"vendor":"openssl.org"}`)
	h.store.put(item)
	h.catalog.set(model.VersionCheckResult{Version: "3.3.2"})

	res, err := h.checker.Check(context.Background(), "openssl")
	require.NoError(t, err)
	h.drain()
	assert.Equal(t, model.StatusUpToDate, res.Status)

	stored := h.store.get(t, "openssl")
	assert.Empty(t, stored.CVEs)
	assert.Nil(t, stored.ExternalScore)
	assert.Nil(t, stored.ExternalSeverity)
	assert.Nil(t, stored.InternalScore)
	assert.Nil(t, stored.ScoreConfidence)
	assert.Nil(t, stored.EPSSPercent)
	assert.Equal(t, model.SecurityStateNone, stored.SecurityState)
	require.NotNil(t, stored.ScoreUpdatedAt)
	assert.JSONEq(t, `{"vendor":"openssl.org"}`, string(stored.RawMetadata))
	assert.Zero(t, h.enricher.count())
}

func TestCheck_CVEsInResultKeepSecurityData(t *testing.T) {
	h := newHarness(t)
	item := structuredItem("log4j", "2.17.1", "2.17.1")
	item.ExternalScore = floatPtr(10)
	h.store.put(item)
	h.catalog.set(model.VersionCheckResult{Version: "2.17.1", CVEs: []string{"CVE-2021-44832"}})

	res, err := h.checker.Check(context.Background(), "log4j")
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, []string{"CVE-2021-44832"}, res.CVEs)
	stored := h.store.get(t, "log4j")
	require.NotNil(t, stored.ExternalScore)
	assert.Equal(t, []string{"CVE-2021-44832"}, stored.CVEs)

	payload, ok := h.events.find(model.EventCVEDetected)
	require.True(t, ok)
	assert.Equal(t, []string{"CVE-2021-44832"}, payload.CVEs)
}

func TestCheck_SourceMetadataMergedIntoRawMetadata(t *testing.T) {
	h := newHarness(t)
	item := structuredItem("grafana", "", "")
	item.RawMetadata = json.RawMessage(`{"cve_metadata":{"count":1},"vendor":"grafana-labs"}`)
	h.store.put(item)
	h.catalog.set(model.VersionCheckResult{Version: "11.3.0", RawMetadata: map[string]any{"tag_name": "v11.3.0"}})

	_, err := h.checker.Check(context.Background(), "grafana")
	require.NoError(t, err)

	// Up to date without CVEs, so cve_metadata is cleared while the source key stays.
	stored := h.store.get(t, "grafana")
	assert.JSONEq(t, `{"vendor":"grafana-labs","source":{"tag_name":"v11.3.0"}}`, string(stored.RawMetadata))
}

func TestCheck_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.MonitoredItem)
	}{
		{
			name:   "missing check source",
			mutate: func(i *model.MonitoredItem) { i.SourceID = "src-deleted" },
		},
		{
			name:   "invalid structured params",
			mutate: func(i *model.MonitoredItem) { i.SourceParams = json.RawMessage(`{}`) },
		},
		{
			name: "unsupported legacy tag",
			mutate: func(i *model.MonitoredItem) {
				i.SourceID = ""
				i.CheckConfig = json.RawMessage(`{"source":"catalog","name":"x"}`)
			},
		},
		{
			name: "unknown legacy tag",
			mutate: func(i *model.MonitoredItem) {
				i.SourceID = ""
				i.CheckConfig = json.RawMessage(`{"source":"sourceforge","name":"x"}`)
			},
		},
		{
			name: "unreadable legacy blob",
			mutate: func(i *model.MonitoredItem) {
				i.SourceID = ""
				i.CheckConfig = json.RawMessage(`"github"`)
			},
		},
		{
			name: "no configuration at all",
			mutate: func(i *model.MonitoredItem) {
				i.SourceID = ""
				i.SourceParams = nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			item := structuredItem("traefik", "3.1.0", "3.1.0")
			tt.mutate(item)
			h.store.put(item)
			h.catalog.set(model.VersionCheckResult{Version: "3.2.0"})

			res, err := h.checker.Check(context.Background(), "traefik")
			h.drain()

			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrConfiguration))
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "traefik", cfgErr.Item)

			assert.Zero(t, h.store.updates, "failed check must not write")
			assert.Empty(t, h.events.types())
		})
	}
}

func TestCheck_LegacyBlob(t *testing.T) {
	h := newHarness(t)
	item := structuredItem("argo-cd", "2.12.0", "2.12.0")
	item.SourceID = ""
	item.SourceParams = nil
	item.CheckConfig = json.RawMessage(`{"source":"GitHub","name":"argo-cd"}`)
	h.store.put(item)
	h.catalog.set(model.VersionCheckResult{Version: "2.13.0"})

	res, err := h.checker.Check(context.Background(), "argo-cd")
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, model.StatusOutdated, res.Status)
	require.Equal(t, 1, h.enricher.count())
	assert.Equal(t, "github", h.enricher.calls[0].SourceType)
}

func TestCheck_NoSignalLeavesItemUntouched(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("consul", "1.19.0", "1.19.0"))
	h.catalog.set(model.VersionCheckResult{Version: "  "})

	res, err := h.checker.Check(context.Background(), "consul")
	h.drain()

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrNoSignal))
	assert.Contains(t, err.Error(), "consul")
	assert.Contains(t, err.Error(), "catalog")
	assert.Zero(t, h.store.updates)
	assert.Empty(t, h.events.types())
}

func TestCheck_UnknownStructuredSourceTypeIsNoSignal(t *testing.T) {
	h := newHarness(t)
	h.store.sources["src-legacy-type"] = &model.CheckSource{Key: "src-legacy-type", Type: "sourceforge"}
	item := structuredItem("jenkins", "2.462", "2.462")
	item.SourceID = "src-legacy-type"
	h.store.put(item)

	_, err := h.checker.Check(context.Background(), "jenkins")
	require.Error(t, err)
	var noSignal *NoSignalError
	require.True(t, errors.As(err, &noSignal))
	assert.Equal(t, "sourceforge", noSignal.SourceType)
}

func TestCheck_ConnectorFailureIsNoSignal(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("kafka", "3.7.0", "3.7.0"))
	h.catalog.err = errBoom

	_, err := h.checker.Check(context.Background(), "kafka")
	assert.True(t, errors.Is(err, ErrNoSignal))
	assert.Zero(t, h.store.updates)
}

func TestCheck_MissingItem(t *testing.T) {
	h := newHarness(t)

	_, err := h.checker.Check(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestCheck_DownstreamFailuresDoNotFailTheCheck(t *testing.T) {
	h := newHarness(t)
	h.store.put(structuredItem("istio", "1.22.0", "1.22.0"))
	h.catalog.set(model.VersionCheckResult{Version: "2.0.0", CVEs: []string{"CVE-2025-0001"}, EOLDate: "true"})
	h.events.err = errBoom
	h.enricher.err = errBoom

	// Writes fail after the item is loaded.
	item := h.store.get(t, "istio")
	h.store.updateErr = errBoom
	h.store.logErr = errBoom

	res, err := h.checker.CheckItem(context.Background(), item)
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, model.StatusEndOfLife, res.Status)
	assert.True(t, res.Changed)
	assert.ElementsMatch(t,
		[]string{model.EventVersionNew, model.EventVersionCritical, model.EventCVEDetected, model.EventItemEOL},
		h.events.types())
	assert.Equal(t, 1, h.enricher.count())
}
