package providers

import (
	"context"
	"net/http"
	"os"
	"time"
)

// Provider runs one remote background-removal model. Implementations are
// pure request/response mappings over the vendor HTTP APIs.
type Provider interface {
	Name() string
	Remove(ctx context.Context, image []byte, apiKey, prompt string) ([]byte, error)
}

// Config describes how a model is dispatched. KeyOptional models can be
// invoked without a client-supplied key: the proxy falls back to EnvVar.
type Config struct {
	Name        string
	KeyOptional bool
	EnvVar      string
	CostPerCall float64
}

// Registry maps model names to providers. Dispatch is by name string and
// deliberately permissive: an unregistered name carries no key requirement
// so the proxy decides whether it can serve it.
type Registry struct {
	configs   map[string]Config
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		configs:   make(map[string]Config),
		providers: make(map[string]Provider),
	}
}

// DefaultRegistry wires the four stock models.
func DefaultRegistry(httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	r := NewRegistry()
	r.Register(Config{Name: "removebg", EnvVar: "REMOVEBG_API_KEY", CostPerCall: 0.20}, NewRemoveBG(httpClient))
	r.Register(Config{Name: "clipdrop", EnvVar: "CLIPDROP_API_KEY", CostPerCall: 0.10}, NewClipdrop(httpClient))
	r.Register(Config{Name: "replicate", KeyOptional: true, EnvVar: "REPLICATE_API_KEY", CostPerCall: 0.01}, NewReplicate(httpClient))
	r.Register(Config{Name: "fal", KeyOptional: true, EnvVar: "FAL_KEY", CostPerCall: 0.02}, NewFal(httpClient))

	return r
}

func (r *Registry) Register(cfg Config, p Provider) {
	r.configs[cfg.Name] = cfg
	if p != nil {
		r.providers[cfg.Name] = p
	}
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// KeyRequired reports whether a client must supply its own key for the
// model. Unknown names are forwarded by name with no requirement.
func (r *Registry) KeyRequired(name string) bool {
	cfg, ok := r.configs[name]
	if !ok {
		return false
	}

	return !cfg.KeyOptional
}

// ResolveKey prefers the request-supplied key and falls back to the
// provider's environment variable.
func (r *Registry) ResolveKey(name, fromRequest string) string {
	if fromRequest != "" {
		return fromRequest
	}

	cfg, ok := r.configs[name]
	if !ok || cfg.EnvVar == "" {
		return ""
	}

	return os.Getenv(cfg.EnvVar)
}

func (r *Registry) CostPerCall(name string) float64 {
	return r.configs[name].CostPerCall
}
