package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultOpenRouterModel = "openai/gpt-4o-mini"
)

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
// Also serves OpenRouter and other compatible APIs via BaseURL.
type OpenAIProvider struct {
	id           ProviderID
	client       openai.Client
	apiKey       string
	defaultModel string
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return newOpenAICompatible(ProviderOpenAI, cfg, defaultOpenAIModel)
}

// NewOpenRouterProvider creates an OpenAI-compatible provider pointed at OpenRouter.
func NewOpenRouterProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	return newOpenAICompatible(ProviderOpenRouter, cfg, defaultOpenRouterModel)
}

func newOpenAICompatible(id ProviderID, cfg OpenAIConfig, fallbackModel string) *OpenAIProvider {
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
		model = fallbackModel
	}

	return &OpenAIProvider{
		id:           id,
		client:       openai.NewClient(opts...),
		apiKey:       cfg.APIKey,
		defaultModel: model,
	}
}

func (p *OpenAIProvider) ID() ProviderID     { return p.id }
func (p *OpenAIProvider) IsConfigured() bool { return strings.TrimSpace(p.apiKey) != "" }

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.IsConfigured() {
		return nil, notConfiguredError(p.id)
	}

	model := req.Model.Model
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: p.convertMessages(req),
	}
	if req.Model.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Model.MaxTokens))
	}
	if t := req.Model.Temperature; t != nil {
		params.Temperature = openai.Float(*t)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(p.id, err)
	}

	return p.convertResponse(resp, model)
}

func (p *OpenAIProvider) convertMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	return append(msgs, openai.UserMessage(req.Prompt))
}

func (p *OpenAIProvider) convertResponse(resp *openai.ChatCompletion, model string) (*Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, emptyResponseError(p.id)
	}

	choice := resp.Choices[0]
	if isBlank(choice.Message.Content) {
		return nil, emptyResponseError(p.id)
	}

	result := &Response{
		Content:      choice.Message.Content,
		Provider:     p.id,
		Model:        model,
		FinishReason: string(choice.FinishReason),
		Usage:        newUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
	}
	if resp.Model != "" {
		result.Model = resp.Model
	}
	return result, nil
}

func classifyOpenAIError(id ProviderID, err error) *LLMError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(id, apiErr.StatusCode, extractErrorMessage([]byte(apiErr.RawJSON())), err)
	}
	if isEmptyBody(err) {
		return emptyResponseError(id)
	}
	return classifyTransport(id, err)
}
