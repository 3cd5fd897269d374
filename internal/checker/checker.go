// Package checker resolves the latest version of a monitored item, classifies it, records the
// transition and fans out the follow-up work (vulnerability enrichment, security data
// invalidation and domain events).
package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ortelius/versionwatch/internal/connectors"
	"github.com/ortelius/versionwatch/internal/metrics"
	"github.com/ortelius/versionwatch/internal/tasks"
	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
	"go.uber.org/zap"
)

// Store is the persistence the checker needs.
type Store interface {
	GetItem(ctx context.Context, key string) (*model.MonitoredItem, error)
	GetCheckSource(ctx context.Context, key string) (*model.CheckSource, error)
	UpdateItem(ctx context.Context, key string, patch model.ItemPatch) error
	InsertVersionLog(ctx context.Context, entry *model.VersionLog) error
}

// Dispatcher binds a source-type tag and its configuration to a connector.
type Dispatcher interface {
	Bind(tag string, sourceConfig, itemParams json.RawMessage) (connectors.Binding, error)
	IsLegacy(tag string) bool
}

// EventDispatcher delivers a domain event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload model.EventPayload) error
}

// EnrichmentTrigger starts vulnerability enrichment for a drifted item.
type EnrichmentTrigger interface {
	Enrich(ctx context.Context, ec model.EnrichContext) error
}

// Submitter runs background work without blocking.
type Submitter interface {
	Submit(name string, fn tasks.Func) bool
}

// Checker runs version checks.
type Checker struct {
	store       Store
	sources     Dispatcher
	queue       Submitter
	events      EventDispatcher
	enricher    EnrichmentTrigger
	invalidator *Invalidator
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithEvents sets the domain event sink.
func WithEvents(d EventDispatcher) Option {
	return func(c *Checker) { c.events = d }
}

// WithEnricher sets the vulnerability enrichment trigger.
func WithEnricher(e EnrichmentTrigger) Option {
	return func(c *Checker) { c.enricher = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// New creates a Checker. Events and enrichment are optional.
func New(store Store, sources Dispatcher, queue Submitter, logger *zap.Logger, opts ...Option) *Checker {
	c := &Checker{
		store:   store,
		sources: sources,
		queue:   queue,
		logger:  logger.Named("checker"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.invalidator = &Invalidator{store: store, now: c.now}
	return c
}

// Check loads the item by key and checks it.
func (c *Checker) Check(ctx context.Context, itemKey string) (*model.CheckResult, error) {
	item, err := c.store.GetItem(ctx, itemKey)
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", itemKey, err)
	}
	return c.CheckItem(ctx, item)
}

// CheckItem resolves and records the latest version for one item snapshot.
//
// Only configuration and no-signal failures are returned; the item is untouched when they
// occur. Once the version is known the check succeeds: persistence, history, enrichment
// and event failures are logged against the item's name.
func (c *Checker) CheckItem(ctx context.Context, item *model.MonitoredItem) (*model.CheckResult, error) {
	start := time.Now()

	binding, sourceType, err := c.bind(ctx, item)
	if err != nil {
		metrics.ChecksTotal.WithLabelValues(outcomeOf(err)).Inc()
		return nil, err
	}

	result := binding.Resolve(ctx)
	metrics.CheckDuration.WithLabelValues(sourceType).Observe(time.Since(start).Seconds())
	if !result.HasVersion() {
		metrics.ChecksTotal.WithLabelValues("no_signal").Inc()
		return nil, &NoSignalError{Item: item.Name, SourceType: sourceType}
	}

	now := c.now()
	resolved := strings.TrimSpace(result.Version)
	previous := item.Latest()
	hadPrevious := strings.TrimSpace(previous) != ""

	eol := result.EOLDate
	if eol == "" {
		eol = item.EOLDate
	}

	status := Classify(item.CurrentVersion, &resolved, eol, now)
	changed := resolved != previous

	patch := checkPatch(item, resolved, status, result, now)
	if err := c.store.UpdateItem(ctx, item.Key, patch); err != nil {
		c.logger.Error("Failed to persist check result",
			zap.String("item", item.Name),
			zap.String("version", resolved),
			zap.Error(err))
	}
	metrics.StatusTransitions.WithLabelValues(string(status)).Inc()

	if changed && hadPrevious {
		entry := model.NewVersionLog(item.Key, previous, resolved, now)
		entry.ReleaseNotes = result.ReleaseNotes
		entry.ReleaseURL = result.ReleaseURL
		if len(result.CVEs) > 0 {
			entry.CVEs = append(entry.CVEs, result.CVEs...)
		}
		if err := c.store.InsertVersionLog(ctx, entry); err != nil {
			c.logger.Error("Failed to record version history",
				zap.String("item", item.Name),
				zap.String("old_version", previous),
				zap.String("new_version", resolved),
				zap.Error(err))
		}
	}

	current := strings.TrimSpace(item.Current())
	switch {
	case current != "" && !util.SameVersion(current, resolved):
		c.triggerEnrichment(item, model.EnrichContext{
			ItemKey:        item.Key,
			ItemName:       item.Name,
			ItemType:       item.Type,
			Purl:           item.Purl,
			CurrentVersion: current,
			LatestVersion:  resolved,
			SourceType:     sourceType,
			SourceID:       item.SourceID,
		})
	case status == model.StatusUpToDate && len(result.CVEs) == 0:
		// Invalidate against the metadata just written so the source key survives.
		snapshot := *item
		if merged, ok := patch["raw_metadata"].(json.RawMessage); ok {
			snapshot.RawMetadata = merged
		}
		if err := c.invalidator.Invalidate(ctx, &snapshot); err != nil {
			c.logger.Error("Failed to clear security data", zap.String("item", item.Name), zap.Error(err))
		}
	}

	payload := model.EventPayload{
		ItemKey:        item.Key,
		ItemName:       item.Name,
		ItemType:       item.Type,
		Purl:           item.Purl,
		CurrentVersion: current,
		OldVersion:     previous,
		NewVersion:     resolved,
		Status:         status,
		CVEs:           result.CVEs,
		EOLDate:        eol,
		ReleaseURL:     result.ReleaseURL,
		OccurredAt:     now.UTC(),
	}
	if changed {
		c.emit(item, model.EventVersionNew, payload)
		if hadPrevious && util.MajorIncreased(previous, resolved) {
			c.emit(item, model.EventVersionCritical, payload)
		}
	}
	if len(result.CVEs) > 0 {
		c.emit(item, model.EventCVEDetected, payload)
	}
	if util.EOLPassed(eol, now) {
		c.emit(item, model.EventItemEOL, payload)
	}

	metrics.ChecksTotal.WithLabelValues("ok").Inc()
	c.logger.Debug("Check complete",
		zap.String("item", item.Name),
		zap.String("latest", resolved),
		zap.String("status", string(status)),
		zap.Bool("changed", changed),
		zap.Duration("elapsed", time.Since(start)))

	return &model.CheckResult{
		ItemKey:       item.Key,
		LatestVersion: resolved,
		Status:        status,
		Changed:       changed,
		ReleaseNotes:  result.ReleaseNotes,
		ReleaseDate:   result.ReleaseDate,
		ReleaseURL:    result.ReleaseURL,
		CVEs:          result.CVEs,
		Description:   result.Description,
		DownloadURL:   result.DownloadURL,
		EOLDate:       result.EOLDate,
		IsLTS:         result.IsLTS,
	}, nil
}

// bind picks the structured source (source_id + source_params) when present and falls
// back to the legacy check_config blob.
func (c *Checker) bind(ctx context.Context, item *model.MonitoredItem) (connectors.Binding, string, error) {
	if item.SourceID != "" {
		src, err := c.store.GetCheckSource(ctx, item.SourceID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, "", &ConfigurationError{
					Item:   item.Name,
					Reason: fmt.Sprintf("check source %q does not exist", item.SourceID),
				}
			}
			return nil, "", fmt.Errorf("loading check source %s for %s: %w", item.SourceID, item.Name, err)
		}

		b, err := c.sources.Bind(src.Type, src.Config, item.SourceParams)
		if err != nil {
			return nil, src.Type, &ConfigurationError{
				Item:   item.Name,
				Reason: fmt.Sprintf("invalid parameters for source type %s", src.Type),
				Err:    err,
			}
		}
		return b, src.Type, nil
	}

	if len(item.CheckConfig) == 0 {
		return nil, "", &ConfigurationError{Item: item.Name, Reason: "no check configuration"}
	}

	var legacy struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(item.CheckConfig, &legacy); err != nil {
		return nil, "", &ConfigurationError{Item: item.Name, Reason: "unreadable check_config", Err: err}
	}

	tag := strings.ToLower(strings.TrimSpace(legacy.Source))
	if !c.sources.IsLegacy(tag) {
		return nil, tag, &ConfigurationError{
			Item:   item.Name,
			Reason: fmt.Sprintf("unsupported legacy source type %q", legacy.Source),
		}
	}

	b, err := c.sources.Bind(tag, nil, item.CheckConfig)
	if err != nil {
		return nil, tag, &ConfigurationError{
			Item:   item.Name,
			Reason: fmt.Sprintf("invalid check_config for source type %s", tag),
			Err:    err,
		}
	}
	return b, tag, nil
}

func (c *Checker) triggerEnrichment(item *model.MonitoredItem, ec model.EnrichContext) {
	if c.enricher == nil {
		return
	}
	c.queue.Submit(item.Name, func(ctx context.Context) error {
		if err := c.enricher.Enrich(ctx, ec); err != nil {
			return fmt.Errorf("enrichment for %s: %w", item.Name, err)
		}
		return nil
	})
}

func (c *Checker) emit(item *model.MonitoredItem, eventType string, payload model.EventPayload) {
	if c.events == nil {
		return
	}
	c.queue.Submit(item.Name, func(ctx context.Context) error {
		if err := c.events.Dispatch(ctx, eventType, payload); err != nil {
			metrics.EventsTotal.WithLabelValues(eventType, "failed").Inc()
			return fmt.Errorf("dispatching %s for %s: %w", eventType, item.Name, err)
		}
		metrics.EventsTotal.WithLabelValues(eventType, "ok").Inc()
		return nil
	})
}

// checkPatch persists the resolved version, status and every metadata field the
// connector returned.
func checkPatch(item *model.MonitoredItem, resolved string, status model.Status, result model.VersionCheckResult, now time.Time) model.ItemPatch {
	patch := model.ItemPatch{
		"latest_version": resolved,
		"status":         status,
		"last_checked":   now.UTC(),
	}

	optional := map[string]string{
		"release_notes": result.ReleaseNotes,
		"release_date":  result.ReleaseDate,
		"release_url":   result.ReleaseURL,
		"description":   result.Description,
		"download_url":  result.DownloadURL,
		"eol_date":      result.EOLDate,
	}
	for field, value := range optional {
		if value != "" {
			patch[field] = value
		}
	}
	if result.IsLTS != nil {
		patch["is_lts"] = *result.IsLTS
	}
	if len(result.CVEs) > 0 {
		patch["cves"] = result.CVEs
	}
	if len(result.RawMetadata) > 0 {
		if merged, ok := mergeSourceMetadata(item.RawMetadata, result.RawMetadata); ok {
			patch["raw_metadata"] = merged
		}
	}
	return patch
}

// mergeSourceMetadata stores the connector's metadata under raw_metadata.source and keeps
// every other key. Unparseable existing metadata is left alone.
func mergeSourceMetadata(existing json.RawMessage, source map[string]any) (json.RawMessage, bool) {
	doc := map[string]json.RawMessage{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &doc); err != nil {
			return nil, false
		}
		if doc == nil {
			doc = map[string]json.RawMessage{}
		}
	}

	encoded, err := json.Marshal(source)
	if err != nil {
		return nil, false
	}
	doc["source"] = encoded

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, false
	}
	return out, true
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "config_error"
	case errors.Is(err, ErrNoSignal):
		return "no_signal"
	default:
		return "error"
	}
}
