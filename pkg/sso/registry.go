package sso

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/observability"
)

// DefaultExchangeTimeout bounds a code exchange when the registry has no timeout
const DefaultExchangeTimeout = 10 * time.Second

// ErrExchangeTimeout is returned when a provider does not finish a code exchange in time
var ErrExchangeTimeout = errors.New("sso: identity provider exchange timed out")

// providersFile is the layout of AUTHSVC_SSO_PROVIDERS_FILE
type providersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// Registry holds the configured providers by name and bounds every exchange
type Registry struct {
	mu        sync.RWMutex
	providers map[string]IdentityProvider
	timeout   time.Duration
}

// NewRegistry creates a registry. A non-positive timeout uses DefaultExchangeTimeout.
func NewRegistry(timeout time.Duration, providers ...IdentityProvider) *Registry {
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	r := &Registry{
		providers: make(map[string]IdentityProvider, len(providers)),
		timeout:   timeout,
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// LoadRegistry reads the providers file and builds every provider in it.
// Environment references like ${YANDEX_CLIENT_SECRET} are expanded first.
// An empty path yields an empty registry.
func LoadRegistry(ctx context.Context, path string, timeout time.Duration, logger *observability.Logger) (*Registry, error) {
	r := NewRegistry(timeout)
	if path == "" {
		return r, nil
	}
	if err := r.Reload(ctx, path, logger); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds every provider from path and swaps the whole set in at
// once. On any error the current providers stay in place.
func (r *Registry) Reload(ctx context.Context, path string, logger *observability.Logger) error {
	providers, err := r.build(ctx, path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.providers = providers
	r.mu.Unlock()

	if logger != nil {
		for name := range providers {
			logger.WithField("provider", name).Info("Identity provider configured")
		}
	}
	return nil
}

func (r *Registry) build(ctx context.Context, path string) (map[string]IdentityProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	providers := make(map[string]IdentityProvider, len(file.Providers))
	for _, cfg := range file.Providers {
		discoverCtx, cancel := context.WithTimeout(ctx, r.timeout)
		p, err := NewProvider(discoverCtx, cfg)
		cancel()
		if err != nil {
			return nil, err
		}
		if _, exists := providers[p.Name()]; exists {
			return nil, fmt.Errorf("duplicate provider name: %s", p.Name())
		}
		providers[p.Name()] = p
	}
	return providers, nil
}

// Register adds or replaces a provider
func (r *Registry) Register(p IdentityProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Names lists the configured providers in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider looks a provider up by name
func (r *Registry) Provider(name string) (IdentityProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, auth.NewError(auth.KindNotFound, "provider not found")
	}
	return p, nil
}

// AuthorizationURL returns the sign-in URL of the named provider
func (r *Registry) AuthorizationURL(name, state string) (string, error) {
	p, err := r.Provider(name)
	if err != nil {
		return "", err
	}
	return p.AuthorizationURL(state)
}

// Exchange redeems code with the named provider within the registry timeout.
// Running out of time yields an Internal error wrapping ErrExchangeTimeout.
func (r *Registry) Exchange(ctx context.Context, name, code string) (auth.ExternalIdentity, error) {
	p, err := r.Provider(name)
	if err != nil {
		return auth.ExternalIdentity{}, err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	identity, err := p.Exchange(exchangeCtx, code)
	if err != nil {
		if errors.Is(exchangeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return auth.ExternalIdentity{}, auth.Wrap(auth.KindInternal, "identity provider did not answer in time", ErrExchangeTimeout)
		}
		if ctx.Err() != nil {
			return auth.ExternalIdentity{}, auth.Wrap(auth.KindInternal, "identity provider exchange cancelled", err)
		}
		return auth.ExternalIdentity{}, err
	}
	identity.Provider = p.Name()
	return identity, nil
}
