package adapters

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/smallbiznis/eventcover/internal/payment/domain"
)

var ErrDuplicateProvider = errors.New("payment_provider_already_registered")

// Registry resolves webhook adapters by provider name. Each provider is
// registered once with its settings; adapters are built lazily and reused.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]entry
	adapters map[string]domain.PaymentAdapter
}

type entry struct {
	factory  domain.AdapterFactory
	settings map[string]any
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  map[string]entry{},
		adapters: map[string]domain.PaymentAdapter{},
	}
}

// Register adds factory under its provider name with the settings its adapters need.
func (r *Registry) Register(factory domain.AdapterFactory, settings map[string]any) error {
	if factory == nil {
		return domain.ErrInvalidProvider
	}
	provider := normalize(factory.Provider())
	if provider == "" {
		return domain.ErrInvalidProvider
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[provider]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, provider)
	}
	r.entries[provider] = entry{factory: factory, settings: settings}
	return nil
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[normalize(provider)]
	return ok
}

// Providers lists registered provider names in order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Adapter returns the adapter for provider, building it on first use.
// A factory error is returned every time and never cached.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)

	r.mu.Lock()
	defer r.mu.Unlock()
	if adapter, ok := r.adapters[provider]; ok {
		return adapter, nil
	}
	e, ok := r.entries[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	adapter, err := e.factory.NewAdapter(domain.AdapterConfig{Provider: provider, Config: e.settings})
	if err != nil {
		return nil, err
	}
	r.adapters[provider] = adapter
	return adapter, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
