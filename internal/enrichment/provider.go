// Package enrichment asks an AI provider for a risk narrative about an item and validates the
// answer before anything reaches storage or callers.
package enrichment

import (
	"context"
	"time"
)

// AnalyzeOptions bounds a single provider call.
type AnalyzeOptions struct {
	Timeout   time.Duration
	MaxTokens int
}

// Provider turns a prompt into raw model text.
type Provider interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, prompt string, opts AnalyzeOptions) (string, error)
}

// Config is the per-run enrichment policy.
type Config struct {
	QuotaPerRun int
	MaxRetries  int
	Timeout     time.Duration
	MaxTokens   int
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		QuotaPerRun: 25,
		MaxRetries:  3,
		Timeout:     30 * time.Second,
		MaxTokens:   1200,
	}
}
