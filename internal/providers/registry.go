package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry holds analyzer backend clients and provides thread-safe access.
// It supports config-driven instantiation and hot-reload.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	logger  *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers a client by name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	if r.logger != nil {
		r.logger.Info("registered analyzer backend", "name", name)
	}
}

// Get returns a client by name.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("analyzer backend not found: %s", name)
	}
	return client, nil
}

// List returns all registered backend names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// BackendConfig defines one analyzer backend to instantiate from config.
type BackendConfig struct {
	Type            string  // "openrouter", "openai"
	Model           string  // Model name
	APIKey          string  // Resolved API key
	RateLimit       float64 // Requests per second
	TimeoutSeconds  int     // Per-attempt timeout
	InputCostPer1M  float64 // USD per 1M prompt tokens
	OutputCostPer1M float64 // USD per 1M completion tokens
	Enabled         bool
}

// RegistryConfig defines the ranked backends to instantiate from config.
// Order matters: it is the fallback order.
type RegistryConfig struct {
	Backends []NamedBackendConfig
}

// NamedBackendConfig pairs a backend name with its config.
type NamedBackendConfig struct {
	Name   string
	Config BackendConfig
}

// NewRegistryFromConfig creates a registry with backends based on configuration.
// Only enabled backends with valid API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	for _, nb := range cfg.Backends {
		if !nb.Config.Enabled || nb.Config.APIKey == "" {
			continue
		}
		client := createClient(nb.Config)
		if client != nil {
			r.clients[nb.Name] = client
		}
	}
	return r
}

// Chain builds the ranked fallback backends from config, resolving each
// named backend against the registry. Unknown or disabled backends are
// skipped with a log line rather than failing the whole chain.
func (r *Registry) Chain(cfg RegistryConfig) []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := make([]Backend, 0, len(cfg.Backends))
	for _, nb := range cfg.Backends {
		client, ok := r.clients[nb.Name]
		if !ok {
			if r.logger != nil {
				r.logger.Warn("skipping unregistered backend in chain", "name", nb.Name)
			}
			continue
		}
		backends = append(backends, Backend{
			Client:          client,
			Model:           nb.Config.Model,
			Timeout:         time.Duration(nb.Config.TimeoutSeconds) * time.Second,
			InputCostPer1M:  nb.Config.InputCostPer1M,
			OutputCostPer1M: nb.Config.OutputCostPer1M,
		})
	}
	return backends
}

// Reload updates the registry based on new configuration.
// Backends that are no longer configured will be unregistered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for _, nb := range cfg.Backends {
		if !nb.Config.Enabled || nb.Config.APIKey == "" {
			continue
		}
		want[nb.Name] = true

		client := createClient(nb.Config)
		if client != nil {
			_, existed := r.clients[nb.Name]
			r.clients[nb.Name] = client
			if r.logger != nil {
				if existed {
					r.logger.Info("updated analyzer backend", "name", nb.Name, "type", nb.Config.Type)
				} else {
					r.logger.Info("registered analyzer backend", "name", nb.Name, "type", nb.Config.Type)
				}
			}
		}
	}

	for name := range r.clients {
		if !want[name] {
			delete(r.clients, name)
			if r.logger != nil {
				r.logger.Info("unregistered analyzer backend", "name", name)
			}
		}
	}
}

// createClient creates a client based on backend type.
func createClient(cfg BackendConfig) Client {
	switch cfg.Type {
	case "openrouter":
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
			RPS:          cfg.RateLimit,
			Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			RPS:     cfg.RateLimit,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	default:
		return nil
	}
}
