// Package ai builds the enrichment.Provider implementations backed by hosted model APIs.
package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ortelius/versionwatch/config"
	"github.com/ortelius/versionwatch/internal/enrichment"
	"go.uber.org/zap"
)

// ErrProviderDisabled is returned when no API key is configured.
var ErrProviderDisabled = errors.New("AI provider disabled: no API key configured")

const systemMessage = "You are a careful security analyst. Answer with JSON only."

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg config.AIConfig, logger *zap.Logger) (enrichment.Provider, error) {
	if !cfg.Enabled() {
		return nil, ErrProviderDisabled
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg, logger)
	case "anthropic":
		return NewAnthropicProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

// EnrichmentConfig converts the configured policy into enrichment.Config.
func EnrichmentConfig(cfg config.AIConfig) enrichment.Config {
	out := enrichment.DefaultConfig()
	out.QuotaPerRun = cfg.QuotaPerRun
	if cfg.MaxRetries > 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	if cfg.TimeoutMs > 0 {
		out.Timeout = msToDuration(cfg.TimeoutMs)
	}
	if cfg.MaxTokens > 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	return out
}
