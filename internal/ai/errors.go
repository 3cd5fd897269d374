package ai

import (
	"net/http"
	"time"

	"github.com/ortelius/versionwatch/internal/enrichment"
)

// classifyStatus maps a known HTTP status to a provider error class and falls back to
// message inspection when the status is unknown.
func classifyStatus(provider string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return &enrichment.TransientProviderError{Provider: provider, Err: err}
	case status >= http.StatusBadRequest:
		return &enrichment.TerminalProviderError{Provider: provider, Err: err}
	}
	return enrichment.ClassifyProviderError(provider, err)
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
