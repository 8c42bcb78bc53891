package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/cidadao-ai/citizen-intake/internal/config"
)

// Factory builds a backend from its settings. A missing credential must
// yield an unavailable provider, not an error.
type Factory func(settings config.ProviderConfig, client *http.Client) (Provider, error)

// Registry maps backend names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the groq, openai and anthropic backends.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("groq", func(s config.ProviderConfig, c *http.Client) (Provider, error) {
		return NewOpenAICompatible("groq", s, c), nil
	})
	r.Register("openai", func(s config.ProviderConfig, c *http.Client) (Provider, error) {
		return NewOpenAICompatible("openai", s, c), nil
	})
	r.Register("anthropic", func(s config.ProviderConfig, c *http.Client) (Provider, error) {
		return NewAnthropic(s, c), nil
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// Build constructs the named backend.
func (r *Registry) Build(name string, settings config.ProviderConfig, client *http.Client) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not supported", name)
	}
	return factory(settings, client)
}

// Names lists registered backends in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
