package providers

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrProviderExists   = errors.New("provider registry: provider already registered")
	ErrProviderNotFound = errors.New("provider registry: provider not found")
)

// Registry holds the external login providers enabled for this deployment,
// keyed by lower-cased name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Provider{}}
}

func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider registry: provider is required")
	}
	name := normaliseName(p.Metadata().Name)
	if name == "" {
		return errors.New("provider registry: metadata name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.byName[name] = p
	return nil
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.byName[normaliseName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Metadata lists every provider for the login page, by Order then DisplayName.
func (r *Registry) Metadata() []Metadata {
	r.mu.RLock()
	out := make([]Metadata, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, p.Metadata())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Metadata) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.DisplayName, b.DisplayName))
	})
	return out
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
