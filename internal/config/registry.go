package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/framelens/vigil/pkg/provider/vision"
	"github.com/framelens/vigil/pkg/provider/vision/moondream"
	"github.com/framelens/vigil/pkg/provider/vision/openai"
)

// ErrProviderNotRegistered is returned by [Registry.CreateQuerier] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to vision querier constructors. It is safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	queriers map[string]func(InferenceConfig) (vision.Querier, error)
}

// NewRegistry returns an empty [Registry]. Most callers want
// [DefaultRegistry] instead.
func NewRegistry() *Registry {
	return &Registry{
		queriers: make(map[string]func(InferenceConfig) (vision.Querier, error)),
	}
}

// DefaultRegistry returns a [Registry] with the built-in vision providers
// registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterQuerier("moondream", func(cfg InferenceConfig) (vision.Querier, error) {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = moondream.DefaultEndpoint
		}
		var opts []moondream.Option
		if cfg.MaxRetries > 0 {
			opts = append(opts, moondream.WithMaxRetries(cfg.MaxRetries))
		}
		return moondream.New(endpoint, cfg.APIKey, opts...)
	})
	r.RegisterQuerier("openai", func(cfg InferenceConfig) (vision.Querier, error) {
		var opts []openai.Option
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)
	})
	return r
}

// RegisterQuerier registers a vision provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterQuerier(name string, factory func(InferenceConfig) (vision.Querier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queriers[name] = factory
}

// CreateQuerier instantiates a vision querier using the factory registered
// under cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateQuerier(cfg InferenceConfig) (vision.Querier, error) {
	r.mu.RLock()
	factory, ok := r.queriers[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vision/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}
