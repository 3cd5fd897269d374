package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/ortelius/versionwatch/config"
	"github.com/ortelius/versionwatch/internal/enrichment"
	"go.uber.org/zap"
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ enrichment.Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates an Anthropic provider. BaseURL overrides the public endpoint.
func NewAnthropicProvider(cfg config.AIConfig, logger *zap.Logger) (*AnthropicProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
		logger: logger.Named("anthropic"),
	}, nil
}

// Name implements enrichment.Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Model implements enrichment.Provider.
func (p *AnthropicProvider) Model() string { return p.model }

// Analyze implements enrichment.Provider.
func (p *AnthropicProvider) Analyze(ctx context.Context, prompt string, opts enrichment.AnalyzeOptions) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	system := systemMessage
	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(p.model),
		System:    system,
		MaxTokens: opts.MaxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", classifyStatus(p.Name(), 0, err)
	}

	text := extractTextFromResponse(resp)
	if text == "" {
		return "", &enrichment.TerminalProviderError{Provider: p.Name(), Err: errors.New("no text block in response")}
	}
	return text, nil
}

func extractTextFromResponse(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
