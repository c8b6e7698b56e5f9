package config

import "time"

// Config is the top-level application configuration.
type Config struct {
	LLM       LLMConfig                 `yaml:"llm"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Server    ServerConfig              `yaml:"server"`
	Log       LogConfig                 `yaml:"log"`
	Journal   JournalConfig             `yaml:"journal"`
	Channels  ChannelsConfig            `yaml:"channels"`
	Security  SecurityConfig            `yaml:"security"`
}

// LLMConfig holds the orchestration tunables.
type LLMConfig struct {
	DefaultProvider      string        `yaml:"default_provider"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	FallbackEnabled      bool          `yaml:"fallback_enabled"`
	MaxFallbackProviders int           `yaml:"max_fallback_providers"`
	TimeoutSecs          int           `yaml:"timeout_secs"`
}

// ProviderConfig holds the settings of one backend, keyed by provider id.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key,omitempty"`
	APIKeyFile string `yaml:"api_key_file,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Model      string `yaml:"model,omitempty"`
	MaxTokens  int    `yaml:"max_tokens,omitempty"`
	// Temperature is nil when unset; an explicit 0 is kept.
	Temperature *float64 `yaml:"temperature,omitempty"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

type ChannelsConfig struct {
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Console  bool            `yaml:"console"`
}

type TelegramConfig struct {
	Token      string  `yaml:"token"`
	TokenFile  string  `yaml:"token_file,omitempty"`
	AllowedIDs []int64 `yaml:"allowed_ids,omitempty"`
}

type SecurityConfig struct {
	PIIFiltering PIIFilterConfig `yaml:"pii_filtering"`
	// VaultDir holds the encrypted secret vault used when no OS keychain
	// is available.
	VaultDir string `yaml:"vault_dir,omitempty"`
}

type PIIFilterConfig struct {
	Enabled      bool `yaml:"enabled"`
	FilterEmails bool `yaml:"filter_emails"`
	FilterPhones bool `yaml:"filter_phones"`
	FilterCards  bool `yaml:"filter_cards"`
	FilterIPs    bool `yaml:"filter_ips"`
	FilterSSN    bool `yaml:"filter_ssn"`
}

// Provider returns the settings for id, zero if absent.
func (c *Config) Provider(id string) ProviderConfig {
	return c.Providers[id]
}

// SetProvider stores the settings for id.
func (c *Config) SetProvider(id string, p ProviderConfig) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	c.Providers[id] = p
}
