package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"planforge/internal/config"
	"planforge/internal/eventbus"
)

// NewProvider creates the adapter for id from its config.
func NewProvider(id ProviderID, cfg config.ProviderConfig, httpClient *http.Client) (Provider, error) {
	switch id {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		}), nil
	case ProviderOpenRouter:
		return NewOpenRouterProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		}), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		}), nil
	case ProviderGemini:
		return NewGeminiProvider(GeminiConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", id)
	}
}

// NewRegistryFromConfig registers one adapter per known provider, in
// KnownProviders order, whether configured or not.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	defaultID, err := ParseProviderID(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, err
	}

	var httpClient *http.Client
	if cfg.LLM.TimeoutSecs > 0 {
		httpClient = &http.Client{Timeout: time.Duration(cfg.LLM.TimeoutSecs) * time.Second}
	}

	providers := make([]Provider, 0, len(KnownProviders))
	models := make(map[ProviderID]ModelConfig, len(KnownProviders))
	for _, id := range KnownProviders {
		pc := cfg.Provider(string(id))
		p, err := NewProvider(id, pc, httpClient)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
		models[id] = ModelConfig{
			Provider:    id,
			Model:       pc.Model,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		}
	}

	return NewRegistry(RegistryConfig{Default: defaultID, Models: models}, logger, providers...), nil
}

// NewOrchestratorFromConfig wires registry, executor and fallback settings.
func NewOrchestratorFromConfig(cfg *config.Config, bus *eventbus.Bus, logger *slog.Logger) (*Orchestrator, error) {
	registry, err := NewRegistryFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	executor := NewExecutor(ExecutorConfig{
		Policy: RetryPolicy{
			MaxRetries: cfg.LLM.MaxRetries,
			BaseDelay:  cfg.LLM.RetryDelay,
		},
		Bus:    bus,
		Logger: logger,
	})
	return NewOrchestrator(registry, executor, FallbackConfig{
		Enabled:      cfg.LLM.FallbackEnabled,
		MaxProviders: cfg.LLM.MaxFallbackProviders,
		Bus:          bus,
		Logger:       logger,
	}), nil
}
