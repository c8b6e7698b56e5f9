package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	dataDirName     = ".planforge"
	localConfigFile = "planforge.yaml"
	homeConfigFile  = "config.yaml"
	envConfigPath   = "PLANFORGE_CONFIG"
)

// Loader manages reading and writing the config file.
type Loader struct {
	mu       sync.RWMutex
	config   *Config
	filePath string
	envFile  string
}

// NewLoader creates a loader. An empty path is resolved in this order:
// PLANFORGE_CONFIG, ./planforge.yaml, ~/.planforge/config.yaml.
func NewLoader(path string) *Loader {
	return &Loader{
		filePath: discoverConfigFile(path),
		envFile:  ".env",
	}
}

// Load builds the configuration from a layered set of sources:
//  1. Built-in defaults
//  2. .env file (never overrides variables already set)
//  3. YAML config file
//  4. Environment variables
//  5. _file secret references
//  6. Validation
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load reads the config. A missing config file yields defaults plus
// environment overrides.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := Defaults()

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", l.envFile, err)
		}
	}

	if l.filePath != "" {
		if err := loadYAMLFile(l.filePath, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", l.filePath, err)
		}
	}
	fillProviderDefaults(cfg)

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := resolveFileReferences(cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	l.config = cfg
	return cfg, nil
}

// Save writes cfg to the config file as YAML.
func (l *Loader) Save(cfg *Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.filePath
	if path == "" {
		path = localConfigFile
		l.filePath = path
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	l.config = cfg
	return os.WriteFile(path, data, 0o600)
}

// Get returns the currently loaded config (or defaults if not loaded yet).
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.config == nil {
		return Defaults()
	}
	return l.config
}

// FilePath returns the config file path, empty when none was found.
func (l *Loader) FilePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filePath
}

// DataDir returns ~/.planforge, creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, dataDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func discoverConfigFile(path string) string {
	if path != "" {
		return path
	}
	if envPath := os.Getenv(envConfigPath); envPath != "" {
		return envPath
	}

	candidates := []string{localConfigFile}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, dataDirName, homeConfigFile))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadYAMLFile parses path into cfg. Fields absent from the file keep their
// current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// fillProviderDefaults restores default model settings for provider entries
// the YAML file replaced only partially.
func fillProviderDefaults(cfg *Config) {
	defaults := Defaults().Providers
	for id, p := range cfg.Providers {
		d, ok := defaults[id]
		if !ok {
			continue
		}
		if p.Model == "" {
			p.Model = d.Model
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = d.MaxTokens
		}
		if p.Temperature == nil {
			p.Temperature = d.Temperature
		}
		cfg.Providers[id] = p
	}
}

// applyEnvOverrides maps environment variables onto config fields.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	if v := os.Getenv("PLANFORGE_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = strings.ToLower(v)
	}
	if v := os.Getenv("PLANFORGE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLANFORGE_MAX_RETRIES: %w", err))
		} else {
			cfg.LLM.MaxRetries = n
		}
	}
	if v := os.Getenv("PLANFORGE_RETRY_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLANFORGE_RETRY_DELAY_MS: %w", err))
		} else {
			cfg.LLM.RetryDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("PLANFORGE_FALLBACK_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLANFORGE_FALLBACK_ENABLED: %w", err))
		} else {
			cfg.LLM.FallbackEnabled = b
		}
	}
	if v := os.Getenv("PLANFORGE_MAX_FALLBACK_PROVIDERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLANFORGE_MAX_FALLBACK_PROVIDERS: %w", err))
		} else {
			cfg.LLM.MaxFallbackProviders = n
		}
	}
	if v := os.Getenv("PLANFORGE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PLANFORGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PLANFORGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	for _, id := range KnownProviders {
		prefix := strings.ToUpper(id)
		p := cfg.Provider(id)
		changed := false
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			p.APIKey = v
			changed = true
		}
		if v := os.Getenv(prefix + "_MODEL"); v != "" {
			p.Model = v
			changed = true
		}
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			p.BaseURL = v
			changed = true
		}
		if changed {
			cfg.SetProvider(id, p)
		}
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		if cfg.Channels.Telegram == nil {
			cfg.Channels.Telegram = &TelegramConfig{}
		}
		cfg.Channels.Telegram.Token = v
	}

	return errors.Join(errs...)
}

// resolveFileReferences reads _file fields into their value fields when the
// value is empty.
func resolveFileReferences(cfg *Config) error {
	for id, p := range cfg.Providers {
		if p.APIKeyFile == "" || p.APIKey != "" {
			continue
		}
		val, err := readSecretFile(p.APIKeyFile)
		if err != nil {
			return fmt.Errorf("providers.%s.api_key_file: %w", id, err)
		}
		p.APIKey = val
		cfg.Providers[id] = p
	}

	if tg := cfg.Channels.Telegram; tg != nil && tg.TokenFile != "" && tg.Token == "" {
		val, err := readSecretFile(tg.TokenFile)
		if err != nil {
			return fmt.Errorf("channels.telegram.token_file: %w", err)
		}
		tg.Token = val
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
