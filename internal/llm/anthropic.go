package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	client       anthropic.Client
	apiKey       string
	defaultModel string
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		apiKey:       cfg.APIKey,
		defaultModel: model,
	}
}

func (p *AnthropicProvider) ID() ProviderID     { return ProviderAnthropic }
func (p *AnthropicProvider) IsConfigured() bool { return strings.TrimSpace(p.apiKey) != "" }

func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.IsConfigured() {
		return nil, notConfiguredError(ProviderAnthropic)
	}

	model := req.Model.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.Model.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if t := req.Model.Temperature; t != nil {
		params.Temperature = anthropic.Float(*t)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	return p.convertResponse(resp, model)
}

func (p *AnthropicProvider) convertResponse(resp *anthropic.Message, model string) (*Response, error) {
	if resp == nil {
		return nil, emptyResponseError(ProviderAnthropic)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(b.Text)
		}
	}
	if isBlank(content.String()) {
		return nil, emptyResponseError(ProviderAnthropic)
	}

	result := &Response{
		Content:      content.String(),
		Provider:     ProviderAnthropic,
		Model:        model,
		FinishReason: string(resp.StopReason),
		Usage:        newUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0),
	}
	if resp.Model != "" {
		result.Model = string(resp.Model)
	}
	return result, nil
}

func classifyAnthropicError(err error) *LLMError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(ProviderAnthropic, apiErr.StatusCode, extractErrorMessage([]byte(apiErr.RawJSON())), err)
	}
	if isEmptyBody(err) {
		return emptyResponseError(ProviderAnthropic)
	}
	return classifyTransport(ProviderAnthropic, err)
}
