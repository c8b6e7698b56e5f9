package llm

import (
	"log/slog"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RegistryConfig holds the process-wide provider selection settings.
type RegistryConfig struct {
	// Default is the preferred provider when a request names none.
	Default ProviderID
	// Models holds per-provider model settings.
	Models map[ProviderID]ModelConfig
}

// Selection is the outcome of resolving a provider for one request.
type Selection struct {
	Provider Provider
	ID       ProviderID
	Model    ModelConfig
}

// Registry holds the adapters in registration order. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	providers *orderedmap.OrderedMap[ProviderID, Provider]
	models    map[ProviderID]ModelConfig
	defaultID ProviderID
	logger    *slog.Logger
}

// NewRegistry builds a registry over providers. A second adapter with an
// already registered ID is ignored.
func NewRegistry(cfg RegistryConfig, logger *slog.Logger, providers ...Provider) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		providers: orderedmap.New[ProviderID, Provider](),
		models:    make(map[ProviderID]ModelConfig, len(cfg.Models)),
		logger:    logger.With("component", "registry"),
	}
	for id, m := range cfg.Models {
		r.models[id] = m
	}

	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, exists := r.providers.Get(p.ID()); exists {
			r.logger.Warn("duplicate provider ignored", "provider", p.ID())
			continue
		}
		r.providers.Set(p.ID(), p)
	}

	r.defaultID = r.resolveDefault(cfg.Default)
	return r
}

func (r *Registry) resolveDefault(preferred ProviderID) ProviderID {
	available := r.Available()
	for _, id := range available {
		if id == preferred {
			return id
		}
	}
	if len(available) > 0 {
		if preferred != "" {
			r.logger.Warn("default provider not configured, using first available",
				"configured_default", preferred, "provider", available[0])
		}
		return available[0]
	}
	return ""
}

// Available returns the IDs of configured providers in registration order.
func (r *Registry) Available() []ProviderID {
	ids := make([]ProviderID, 0, r.providers.Len())
	for pair := r.providers.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.IsConfigured() {
			ids = append(ids, pair.Key)
		}
	}
	return ids
}

// Registered returns the IDs of every registered provider, configured or not.
func (r *Registry) Registered() []ProviderID {
	ids := make([]ProviderID, 0, r.providers.Len())
	for pair := r.providers.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// Default returns the provider used when a request names none.
func (r *Registry) Default() (ProviderID, bool) {
	return r.defaultID, r.defaultID != ""
}

// Get returns the adapter registered for id.
func (r *Registry) Get(id ProviderID) (Provider, bool) {
	return r.providers.Get(id)
}

// Model returns the configured model settings for id.
func (r *Registry) Model(id ProviderID) ModelConfig {
	m := r.models[id]
	m.Provider = id
	return m
}

// Select resolves the adapter for a request. A configured preferred provider
// wins; otherwise the default is used. This is the only place that reports a
// missing or unconfigured provider.
func (r *Registry) Select(preferred ProviderID) (Selection, error) {
	id := r.defaultID
	if preferred != "" {
		if p, ok := r.providers.Get(preferred); ok && p.IsConfigured() {
			id = preferred
		} else {
			r.logger.Warn("preferred provider unavailable, using default",
				"preferred", preferred, "provider", id)
		}
	}

	if id == "" {
		if len(r.Available()) == 0 {
			return Selection{}, noProvidersError()
		}
		return Selection{}, notConfiguredError(preferred)
	}

	p, ok := r.providers.Get(id)
	if !ok || !p.IsConfigured() {
		return Selection{}, notConfiguredError(id)
	}
	return Selection{Provider: p, ID: id, Model: r.Model(id)}, nil
}
