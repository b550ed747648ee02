package llm

import "fmt"

// TierRoute binds a logical model tier to a provider and physical model name.
type TierRoute struct {
	Name        string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Registry resolves model tiers to providers.
type Registry struct {
	providers   map[string]Provider
	tiers       map[string]TierRoute
	defaultTier string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		tiers:     make(map[string]TierRoute),
	}
}

// RegisterProvider adds a provider implementation.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterTier adds a tier route.
func (r *Registry) RegisterTier(name string, route TierRoute, isDefault bool) {
	route.Name = name
	r.tiers[name] = route
	if isDefault || r.defaultTier == "" {
		r.defaultTier = name
	}
}

// Resolve returns the provider and route for a given tier name (default if empty).
func (r *Registry) Resolve(tierName string) (Provider, TierRoute, error) {
	if tierName == "" {
		tierName = r.defaultTier
	}

	route, ok := r.tiers[tierName]
	if !ok {
		return nil, TierRoute{}, fmt.Errorf("tier %q not registered", tierName)
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, TierRoute{}, fmt.Errorf("provider %q not registered for tier %q", route.Provider, tierName)
	}

	return p, route, nil
}
