package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ortelius/versionwatch/internal/logging"
	"github.com/ortelius/versionwatch/internal/metrics"
	"github.com/ortelius/versionwatch/model"
	"go.uber.org/zap"
)

// Retry policy for provider calls.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMultiplier      = 2
	retryMaxInterval     = 4 * time.Second
)

// Run enriches items against one quota.
type Run interface {
	Enrich(ctx context.Context, provider Provider, cfg Config, item *model.MonitoredItem) *model.AIEnrichmentResult
}

// Service validates AI provider output into AIEnrichmentResult values. A Service is one
// run: its quota covers every Enrich call made on it. NewRun starts further runs.
type Service struct {
	quota  QuotaCounter
	runs   QuotaSource
	logger *zap.Logger
	now    func() time.Time

	// newBackOff builds the wait schedule between attempts.
	newBackOff func() backoff.BackOff
}

// Option configures a Service.
type Option func(*Service)

// WithQuota replaces the instance-local quota counter.
func WithQuota(q QuotaCounter) Option {
	return func(s *Service) { s.quota = q }
}

// WithQuotaSource sets where NewRun finds run counters.
func WithQuotaSource(src QuotaSource) Option {
	return func(s *Service) { s.runs = src }
}

// NewService creates a Service with an instance-local quota counter.
func NewService(logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		quota:      &LocalQuota{},
		runs:       NewLocalQuotas(),
		logger:     logger.Named("enrichment"),
		now:        time.Now,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRun returns a Service sharing s's settings whose quota is the counter of runID.
func (s *Service) NewRun(ctx context.Context, runID string) (Run, error) {
	quota, err := s.runs.ForRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("opening quota for run %s: %w", runID, err)
	}
	run := *s
	run.quota = quota
	return &run, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.Multiplier = retryMultiplier
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

var _ Run = (*Service)(nil)

// Enrich asks provider for an analysis of item. It returns nil when the quota is used up,
// the provider keeps failing, or the answer does not validate. It never returns an error.
func (s *Service) Enrich(ctx context.Context, provider Provider, cfg Config, item *model.MonitoredItem) (result *model.AIEnrichmentResult) {
	if provider == nil || item == nil {
		return nil
	}

	name := strings.ToLower(provider.Name())
	outcome := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("AI enrichment panicked",
				zap.String("item", item.Name),
				zap.String("panic", logging.Redact(fmt.Sprint(rec))))
			result = nil
			outcome = "panic"
		}
		metrics.AIEnrichmentTotal.WithLabelValues(name, outcome).Inc()
	}()

	ok, err := s.quota.Acquire(ctx, cfg.QuotaPerRun)
	if err != nil {
		s.logger.Warn("AI quota check failed", zap.String("item", item.Name), logging.SafeError(err))
		outcome = "quota_error"
		return nil
	}
	if !ok {
		s.logger.Warn("AI quota exhausted for this run",
			zap.String("item", item.Name),
			zap.Int("quota", cfg.QuotaPerRun))
		outcome = "quota_exhausted"
		return nil
	}

	verified := verifiedData(item)
	prompt, err := buildPrompt(verified)
	if err != nil {
		s.logger.Warn("Failed to build AI prompt", zap.String("item", item.Name), logging.SafeError(err))
		outcome = "invalid_input"
		return nil
	}

	raw, attempts, err := s.analyze(ctx, provider, cfg, prompt)
	metrics.AIProviderAttempts.Observe(float64(attempts))
	if err != nil {
		s.logger.Warn("AI provider failed",
			zap.String("item", item.Name),
			zap.String("provider", name),
			zap.Int("attempts", attempts),
			logging.SafeError(err))
		outcome = "provider_error"
		return nil
	}

	result, err = s.validate(raw, verified, name, provider.Model())
	if err != nil {
		s.logger.Warn("Discarding AI output",
			zap.String("item", item.Name),
			zap.String("provider", name),
			logging.SafeError(err))
		outcome = "invalid_output"
		return nil
	}
	return result
}

// analyze calls the provider, retrying transient failures with exponential backoff up to
// cfg.MaxRetries attempts in total.
func (s *Service) analyze(ctx context.Context, provider Provider, cfg Config, prompt string) (string, int, error) {
	maxAttempts := cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	opts := AnalyzeOptions{Timeout: cfg.Timeout, MaxTokens: cfg.MaxTokens}

	var raw string
	attempts := 0
	operation := func() error {
		attempts++
		callCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		text, err := provider.Analyze(callCtx, prompt, opts)
		if err != nil {
			classified := ClassifyProviderError(provider.Name(), err)
			if IsTransient(classified) {
				return classified
			}
			return backoff.Permanent(classified)
		}
		raw = text
		return nil
	}

	var schedule backoff.BackOff = &backoff.StopBackOff{}
	if maxAttempts > 1 {
		schedule = backoff.WithMaxRetries(s.newBackOff(), uint64(maxAttempts-1))
	}
	policy := backoff.WithContext(schedule, ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		s.logger.Info("Retrying AI provider",
			zap.String("provider", provider.Name()),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			logging.SafeError(err))
	})
	return raw, attempts, err
}

func (s *Service) validate(raw string, verified model.AIVerifiedData, provider, modelName string) (*model.AIEnrichmentResult, error) {
	obj, ok := extractJSON(raw)
	if !ok {
		return nil, &ValidationError{Reason: "no JSON object in provider output"}
	}

	p, err := parsePayload(obj)
	if err != nil {
		return nil, err
	}

	generated, err := parseGenerated(p.AIGeneratedData)
	if err != nil {
		return nil, err
	}

	return &model.AIEnrichmentResult{
		VerifiedData:    verified,
		AIGeneratedData: generated,
		ConfidenceLevel: normalizeConfidence(p.ConfidenceLevel),
		Sources:         normalizeList(stringList(p.Sources), maxSources, "provider:"+provider),
		Notes:           normalizeList(stringList(p.Notes), maxNotes, HumanValidationNote),
		Provider:        provider,
		Model:           modelName,
		GeneratedAt:     s.now().UTC(),
	}, nil
}

func verifiedData(item *model.MonitoredItem) model.AIVerifiedData {
	cves := append([]string{}, item.CVEs...)
	return model.AIVerifiedData{
		ItemKey:          item.Key,
		Name:             item.Name,
		Type:             item.Type,
		Purl:             item.Purl,
		CurrentVersion:   item.Current(),
		LatestVersion:    item.Latest(),
		Status:           item.Status,
		EOLDate:          item.EOLDate,
		CVECount:         len(cves),
		CVEs:             cves,
		ExternalScore:    item.ExternalScore,
		ExternalSeverity: item.ExternalSeverity,
		EPSSPercent:      item.EPSSPercent,
		InternalScore:    item.InternalScore,
		InternalSeverity: item.InternalSeverity,
	}
}

const promptTemplate = `You are assisting a software supply-chain security team.
The facts below are verified. Do not restate or alter them.

VERIFIED FACTS:
%s

Respond with a single JSON object and nothing else, using this shape:
{
  "ai_generated_data": {
    "risk_summary": "string",
    "exploitability_assessment": "string",
    "business_impact": "string",
    "remediation_priority": "low | medium | high | critical",
    "recommended_actions": ["string", "... at most 12"]
  },
  "confidence_level": 0-100,
  "sources": ["string"],
  "notes": ["string"]
}`

func buildPrompt(verified model.AIVerifiedData) (string, error) {
	facts, err := json.MarshalIndent(verified, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(promptTemplate, facts), nil
}
