// Package tenant resolves the tenant of the current call and fans tenant
// state changes out to listeners.
//
// The Service owns no tenant state itself. Strategies for finding the current
// tenant (CurrentTenantLookup) and sources of tenant lifecycle events
// (StateObserver) are plugins handed to it by the container:
//
//	container.Provide(root, nil, func() (*tenant.Service, error) {
//	    return tenant.NewService(log), nil
//	}, container.WithPlugins(tenant.LookupType, tenant.ObserverType))
package tenant

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrCurrentTenantNotSet is returned when no lookup knows the current tenant.
var ErrCurrentTenantNotSet = errors.New("tenant: current tenant not set")

// Tenant identifies one tenant.
type Tenant struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (t Tenant) String() string { return t.Name }

// ── Plugins ───────────────────────────────────────────────────────────────────

// CurrentTenantLookup finds the tenant of the call carried by ctx.
type CurrentTenantLookup interface {
	CurrentTenant(ctx context.Context) (Tenant, bool)
}

// StateListener is told when tenants start and stop.
type StateListener interface {
	TenantStarted(t Tenant)
	TenantStopped(t Tenant)
}

// StateObserver is a source of tenant state changes.
type StateObserver interface {
	AddListener(l StateListener)
	RemoveListener(l StateListener)
}

// Plugin types accepted by Service.AddPlugin, for container.WithPlugins.
var (
	LookupType   = reflect.TypeFor[CurrentTenantLookup]()
	ObserverType = reflect.TypeFor[StateObserver]()
)

// ── Service ───────────────────────────────────────────────────────────────────

// Service answers "which tenant is this call for" by asking its lookups in
// the order they were added.
//
// Plugin lists are copy-on-write: AddPlugin publishes a new slice and readers
// iterate the snapshot they loaded, never blocking on writers.
type Service struct {
	log       *zap.Logger
	lookups   atomic.Pointer[[]CurrentTenantLookup]
	observers atomic.Pointer[[]StateObserver]
}

// NewService returns a Service without plugins. A nil log discards output.
func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{log: log}
	s.lookups.Store(&[]CurrentTenantLookup{})
	s.observers.Store(&[]StateObserver{})
	return s
}

// AddPlugin registers a CurrentTenantLookup, a StateObserver, or a value
// implementing both. Anything else is rejected.
func (s *Service) AddPlugin(plugin any) error {
	accepted := false
	if l, ok := plugin.(CurrentTenantLookup); ok {
		appendCOW(&s.lookups, l)
		s.log.Info("current tenant lookup registered", zap.String("plugin", fmt.Sprintf("%T", plugin)))
		accepted = true
	}
	if o, ok := plugin.(StateObserver); ok {
		appendCOW(&s.observers, o)
		s.log.Info("tenant state observer registered", zap.String("plugin", fmt.Sprintf("%T", plugin)))
		accepted = true
	}
	if !accepted {
		return fmt.Errorf("tenant: unsupported plugin %T", plugin)
	}
	return nil
}

// Lookups returns the current snapshot of lookups.
func (s *Service) Lookups() []CurrentTenantLookup { return *s.lookups.Load() }

// Observers returns the current snapshot of observers.
func (s *Service) Observers() []StateObserver { return *s.observers.Load() }

// CurrentTenant returns the tenant reported by the first lookup that has one.
func (s *Service) CurrentTenant(ctx context.Context) (Tenant, error) {
	for _, l := range s.Lookups() {
		if t, ok := l.CurrentTenant(ctx); ok {
			return t, nil
		}
	}
	return Tenant{}, ErrCurrentTenantNotSet
}

// HasCurrentTenant reports whether any lookup knows the current tenant.
func (s *Service) HasCurrentTenant(ctx context.Context) bool {
	_, err := s.CurrentTenant(ctx)
	return err == nil
}

// AddListener subscribes l to every observer known at the time of the call.
func (s *Service) AddListener(l StateListener) {
	for _, o := range s.Observers() {
		o.AddListener(l)
	}
}

// RemoveListener unsubscribes l from every observer.
func (s *Service) RemoveListener(l StateListener) {
	for _, o := range s.Observers() {
		o.RemoveListener(l)
	}
}

func appendCOW[T any](p *atomic.Pointer[[]T], v T) {
	for {
		old := p.Load()
		next := make([]T, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, v)
		if p.CompareAndSwap(old, &next) {
			return
		}
	}
}
