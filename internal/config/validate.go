package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.LLM.DefaultProvider != "" && !slices.Contains(KnownProviders, c.LLM.DefaultProvider) {
		errs = append(errs, fmt.Errorf("llm.default_provider: unknown LLM provider: %s", c.LLM.DefaultProvider))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("llm.retry_delay must be >= 0, got %s", c.LLM.RetryDelay))
	}
	if c.LLM.MaxFallbackProviders < 0 {
		errs = append(errs, fmt.Errorf("llm.max_fallback_providers must be >= 0, got %d", c.LLM.MaxFallbackProviders))
	}
	if c.LLM.TimeoutSecs < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_secs must be >= 0, got %d", c.LLM.TimeoutSecs))
	}

	for id, p := range c.Providers {
		if !slices.Contains(KnownProviders, id) {
			errs = append(errs, fmt.Errorf("providers.%s: unknown LLM provider: %s", id, id))
			continue
		}
		if p.BaseURL != "" {
			if err := ValidateBaseURL(p.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("providers.%s.base_url: %w", id, err))
			}
		}
		if p.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.max_tokens must be >= 0, got %d", id, p.MaxTokens))
		}
		if t := p.Temperature; t != nil && (*t < 0 || *t > 2) {
			errs = append(errs, fmt.Errorf("providers.%s.temperature must be within [0, 2], got %g", id, *t))
		}
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ValidateBaseURL checks that a base URL is valid and uses http/https scheme.
func ValidateBaseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("base URL must use http or https scheme, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL must have a host")
	}
	return nil
}
