package container

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups the registrations of one concern, the way Laravel's
// service providers do.
//
// Register is called as soon as the provider is added and must only register
// components. Boot is called after every provider of the registry has been
// registered, so it may resolve anything.
//
//	type MailProvider struct{ container.BaseProvider }
//
//	func (p *MailProvider) Register(c *container.Container) error {
//	    return container.Provide1(c, nil, mail.NewSMTP)
//	}
//
//	func (p *MailProvider) Boot(ctx context.Context, c *container.Container) error {
//	    m, err := container.Resolve[*mail.SMTP](c, nil)
//	    if err != nil {
//	        return err
//	    }
//	    return m.Ping(ctx)
//	}
type ServiceProvider interface {
	// Register binds components into the container.
	// Do NOT resolve other components here, use Boot for that.
	Register(c *Container) error

	// Boot is called after all providers are registered.
	Boot(ctx context.Context, c *Container) error

	// Provides returns the keys a deferred provider registers.
	Provides() []Key

	// IsDeferred returns true if the provider should only be registered when
	// one of its Provides keys is first resolved.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct with no-op implementations of Boot,
// Provides and IsDeferred.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(c *container.Container) error { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(context.Context, *Container) error { return nil }
func (p *BaseProvider) Provides() []Key                        { return nil }
func (p *BaseProvider) IsDeferred() bool                       { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry registers and boots the providers of one container.
type ProviderRegistry struct {
	c   *Container
	log *zap.Logger

	mu         sync.Mutex
	eager      []ServiceProvider
	deferred   map[Key]ServiceProvider
	registered map[ServiceProvider]bool
	loaded     map[ServiceProvider]*sync.Once
	stubs      map[Key]ComponentAdapter
	booted     bool
}

// NewProviderRegistry creates a registry bound to c.
func NewProviderRegistry(c *Container) *ProviderRegistry {
	return &ProviderRegistry{
		c:          c,
		log:        c.log,
		deferred:   make(map[Key]ServiceProvider),
		registered: make(map[ServiceProvider]bool),
		loaded:     make(map[ServiceProvider]*sync.Once),
		stubs:      make(map[Key]ComponentAdapter),
	}
}

// Register adds a provider and calls its Register method, unless it is
// deferred. Adding the same provider twice is a no-op. A provider added after
// Boot is booted immediately.
func (r *ProviderRegistry) Register(ctx context.Context, provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		for _, key := range provider.Provides() {
			r.deferred[key] = provider
		}
		r.loaded[provider] = &sync.Once{}
		r.mu.Unlock()
		return r.registerDeferred(provider)
	}

	r.eager = append(r.eager, provider)
	booted := r.booted
	r.mu.Unlock()

	if err := provider.Register(r.c); err != nil {
		return fmt.Errorf("register provider %T: %w", provider, err)
	}
	r.log.Debug("provider registered", zap.String("provider", fmt.Sprintf("%T", provider)))

	if booted {
		if err := provider.Boot(ctx, r.c); err != nil {
			return fmt.Errorf("boot provider %T: %w", provider, err)
		}
	}
	return nil
}

// registerDeferred registers a placeholder for each provided key. The first
// resolution registers the provider for real, replacing the placeholders,
// and resolves the key again.
func (r *ProviderRegistry) registerDeferred(provider ServiceProvider) error {
	for _, key := range provider.Provides() {
		err := r.c.Register(key, func([]any) (any, error) {
			if err := r.load(provider); err != nil {
				return nil, err
			}
			if r.stillStub(key) {
				return nil, fmt.Errorf("deferred provider %T did not register %s", provider, KeyString(key))
			}
			return r.c.Get(key)
		}, WithScope(PerLookup))
		if err != nil {
			return fmt.Errorf("register deferred provider %T: %w", provider, err)
		}
		stub, _ := r.c.GetAdapter(key)
		r.mu.Lock()
		r.stubs[key] = stub
		r.mu.Unlock()
	}
	return nil
}

func (r *ProviderRegistry) stillStub(key Key) bool {
	current, ok := r.c.GetAdapter(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	return !ok || current == r.stubs[key]
}

func (r *ProviderRegistry) load(provider ServiceProvider) error {
	r.mu.Lock()
	once := r.loaded[provider]
	r.mu.Unlock()

	var err error
	once.Do(func() {
		if err = provider.Register(r.c); err != nil {
			err = fmt.Errorf("register provider %T: %w", provider, err)
			return
		}
		r.mu.Lock()
		for _, key := range provider.Provides() {
			delete(r.deferred, key)
		}
		booted := r.booted
		r.mu.Unlock()

		r.log.Debug("deferred provider loaded", zap.String("provider", fmt.Sprintf("%T", provider)))
		if booted {
			if err = provider.Boot(context.Background(), r.c); err != nil {
				err = fmt.Errorf("boot provider %T: %w", provider, err)
			}
		}
	})
	return err
}

// Boot calls Boot on every eager provider, in registration order. Calling it
// again is a no-op.
func (r *ProviderRegistry) Boot(ctx context.Context) error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	providers := append([]ServiceProvider(nil), r.eager...)
	r.mu.Unlock()

	for _, provider := range providers {
		if err := provider.Boot(ctx, r.c); err != nil {
			return fmt.Errorf("boot provider %T: %w", provider, err)
		}
	}
	return nil
}

// Booted returns true if Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the eager providers in registration order.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.eager...)
}

// Deferred reports whether key is still waiting for its deferred provider.
func (r *ProviderRegistry) Deferred(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.deferred[key]
	return ok
}
