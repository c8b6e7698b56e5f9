package config

import "time"

// KnownProviders lists the provider ids the loader accepts, in the order
// adapters are registered.
var KnownProviders = []string{"openai", "anthropic", "gemini", "openrouter"}

const defaultTemperature = 0.7

func temperature(v float64) *float64 { return &v }

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider:      "openai",
			MaxRetries:           3,
			RetryDelay:           time.Second,
			FallbackEnabled:      true,
			MaxFallbackProviders: 0,
			TimeoutSecs:          120,
		},
		Providers: map[string]ProviderConfig{
			"openai":     {Model: "gpt-4o-mini", MaxTokens: 4096, Temperature: temperature(defaultTemperature)},
			"anthropic":  {Model: "claude-sonnet-4-5-20250929", MaxTokens: 4096, Temperature: temperature(defaultTemperature)},
			"gemini":     {Model: "gemini-2.0-flash", MaxTokens: 4096, Temperature: temperature(defaultTemperature)},
			"openrouter": {Model: "openai/gpt-4o-mini", MaxTokens: 4096, Temperature: temperature(defaultTemperature)},
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			PIIFiltering: PIIFilterConfig{
				Enabled:      true,
				FilterEmails: true,
				FilterPhones: true,
				FilterCards:  true,
				FilterIPs:    false,
				FilterSSN:    true,
			},
		},
	}
}
