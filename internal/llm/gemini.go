package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com"
	defaultGeminiModel = "gemini-2.0-flash"
	maxGeminiBody      = 8 << 20
)

// GeminiProvider implements Provider for the Gemini generateContent API.
type GeminiProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiProvider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: model,
		httpClient:   client,
	}
}

func (p *GeminiProvider) ID() ProviderID     { return ProviderGemini }
func (p *GeminiProvider) IsConfigured() bool { return strings.TrimSpace(p.apiKey) != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.IsConfigured() {
		return nil, notConfiguredError(ProviderGemini)
	}

	model := req.Model.Model
	if model == "" {
		model = p.defaultModel
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.Model.MaxTokens,
			Temperature:     req.Model.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	status, body, err := p.post(ctx, model, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classifyStatus(ProviderGemini, status, extractErrorMessage(body), nil)
	}
	return p.convertResponse(body, model)
}

func (p *GeminiProvider) post(ctx context.Context, model string, payload geminiRequest) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, unexpectedError(ProviderGemini, fmt.Errorf("marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(model))
	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return 0, nil, unexpectedError(ProviderGemini, fmt.Errorf("build request: %w", err))
	}
	hReq.Header.Set("Content-Type", "application/json")
	hReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(hReq)
	if err != nil {
		return 0, nil, classifyTransport(ProviderGemini, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGeminiBody))
	if err != nil {
		return 0, nil, classifyTransport(ProviderGemini, fmt.Errorf("read response: %w", err))
	}
	return resp.StatusCode, body, nil
}

func (p *GeminiProvider) convertResponse(body []byte, model string) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, emptyResponseError(ProviderGemini)
	}
	if !gjson.ValidBytes(body) {
		return nil, unexpectedError(ProviderGemini, fmt.Errorf("parse response: invalid JSON"))
	}

	candidate := gjson.GetBytes(body, "candidates.0")
	var content strings.Builder
	for _, part := range candidate.Get("content.parts").Array() {
		content.WriteString(part.Get("text").String())
	}
	if isBlank(content.String()) {
		return nil, emptyResponseError(ProviderGemini)
	}

	usage := gjson.GetBytes(body, "usageMetadata")
	result := &Response{
		Content:      content.String(),
		Provider:     ProviderGemini,
		Model:        model,
		FinishReason: candidate.Get("finishReason").String(),
		Usage: newUsage(
			usage.Get("promptTokenCount").Int(),
			usage.Get("candidatesTokenCount").Int(),
			usage.Get("totalTokenCount").Int(),
		),
	}
	if v := gjson.GetBytes(body, "modelVersion").String(); v != "" {
		result.Model = v
	}
	return result, nil
}
