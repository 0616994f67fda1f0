package tenant

import (
	"context"
	"slices"
	"sync/atomic"
)

// ── ContextLookup ─────────────────────────────────────────────────────────────

type tenantKey struct{}

// WithTenant returns a copy of ctx carrying t.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// FromContext returns the tenant stored by WithTenant.
func FromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(Tenant)
	return t, ok && t.Name != ""
}

// ContextLookup reads the current tenant from the context, as set by
// WithTenant. The HTTP layer stores the tenant there per request.
type ContextLookup struct{}

func (ContextLookup) CurrentTenant(ctx context.Context) (Tenant, bool) {
	return FromContext(ctx)
}

// StaticLookup always reports the same tenant. It serves single-tenant
// deployments as the last lookup in the list.
type StaticLookup struct {
	Tenant Tenant
}

func (l StaticLookup) CurrentTenant(context.Context) (Tenant, bool) {
	return l.Tenant, l.Tenant.Name != ""
}

// ── Observer ──────────────────────────────────────────────────────────────────

// Observer is an in-process StateObserver. Whoever manages tenants calls
// Started and Stopped; listeners are notified synchronously in subscription
// order.
type Observer struct {
	listeners atomic.Pointer[[]StateListener]
}

// NewObserver returns an Observer without listeners.
func NewObserver() *Observer {
	o := &Observer{}
	o.listeners.Store(&[]StateListener{})
	return o
}

func (o *Observer) AddListener(l StateListener) {
	appendCOW(&o.listeners, l)
}

func (o *Observer) RemoveListener(l StateListener) {
	for {
		old := o.listeners.Load()
		next := slices.DeleteFunc(slices.Clone(*old), func(x StateListener) bool { return x == l })
		if o.listeners.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Started notifies every listener that t started.
func (o *Observer) Started(t Tenant) {
	for _, l := range *o.listeners.Load() {
		l.TenantStarted(t)
	}
}

// Stopped notifies every listener that t stopped.
func (o *Observer) Stopped(t Tenant) {
	for _, l := range *o.listeners.Load() {
		l.TenantStopped(t)
	}
}
