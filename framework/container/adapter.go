package container

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/km-arc/go-kernel/framework/aop"
	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

// ── ComponentAdapter ──────────────────────────────────────────────────────────

// ComponentAdapter describes one registered component: its key, how it is
// scoped and what it needs to be built.
type ComponentAdapter interface {
	Key() Key
	// ImplementationType is the type matched by type lookups and class
	// matchers. Nil when the component was registered under a name without
	// an implementation type.
	ImplementationType() reflect.Type
	Scope() Scope
	Dependencies() []Dependency
	// Owner is the container the adapter is registered in.
	Owner() *Container
	// Instance resolves the component on behalf of requesting, which must be
	// the owner or one of its descendants.
	Instance(requesting *Container) (any, error)
}

// PluginHost is implemented by components accepting plugins declared with
// WithPlugins. Each plugin visible from the requesting container is handed
// over once, during construction, before the component is published. A
// component is never handed to itself.
type PluginHost interface {
	AddPlugin(plugin any) error
}

// Constructor builds a component from its resolved dependencies, in the
// order they were declared.
type Constructor func(args []any) (any, error)

// materialized is one constructed instance. raw is what the constructor
// returned; instance is what callers get, which differs from raw when the
// component is intercepted.
type materialized struct {
	adapter  *adapter
	instance any
	raw      any
	fixed    bool
}

type adapter struct {
	key     Key
	owner   *Container
	impl    reflect.Type
	scope   Scope
	deps    []Dependency
	ctor    Constructor
	wrap    func(instance any, h *aop.Handler) any
	plugins []reflect.Type
	eager   bool
	arity   int

	mu    sync.Mutex
	value atomic.Pointer[materialized]
}

func (a *adapter) Key() Key                         { return a.key }
func (a *adapter) ImplementationType() reflect.Type { return a.impl }
func (a *adapter) Scope() Scope                     { return a.scope }
func (a *adapter) Dependencies() []Dependency       { return slices.Clone(a.deps) }
func (a *adapter) Owner() *Container                { return a.owner }

func (a *adapter) String() string {
	return KeyString(a.key)
}

func (a *adapter) Instance(requesting *Container) (any, error) {
	if requesting == nil {
		requesting = a.owner
	}
	if requesting.disposed.Load() {
		return nil, kerrors.ErrContainerDisposed
	}
	return a.resolve(&resolution{}, requesting)
}

// assignableTo reports whether the component can serve a request for t.
func (a *adapter) assignableTo(t reflect.Type) bool {
	return a.impl != nil && t != nil && a.impl.AssignableTo(t)
}

func (a *adapter) implements(t reflect.Type) bool {
	if m := a.value.Load(); m != nil && m.raw != nil {
		return reflect.TypeOf(m.raw).Implements(t)
	}
	return a.impl != nil && a.impl.Implements(t)
}

// mayImplement is implements, widened to unbuilt components declared with an
// interface type: their concrete type is known only once built.
func (a *adapter) mayImplement(t reflect.Type) bool {
	if a.value.Load() == nil && a.impl != nil && a.impl.Kind() == reflect.Interface {
		return true
	}
	return a.implements(t)
}

// ── Resolution ────────────────────────────────────────────────────────────────

// resolution carries the components under construction in one top-level
// lookup, so that a component requested again down its own dependency chain
// is reported instead of recursing.
type resolution struct {
	path []*adapter
}

func (r *resolution) enter(a *adapter) error {
	if i := slices.Index(r.path, a); i >= 0 {
		cycle := make([]string, 0, len(r.path)-i+1)
		for _, p := range r.path[i:] {
			cycle = append(cycle, p.String())
		}
		return &kerrors.CyclicDependencyError{Path: append(cycle, a.String())}
	}
	r.path = append(r.path, a)
	return nil
}

func (r *resolution) leave() {
	r.path = r.path[:len(r.path)-1]
}

// resolve returns the instance for requesting according to the adapter's
// scope. Singletons resolve their dependencies from the owner; the other
// scopes resolve them from the requesting container.
func (a *adapter) resolve(res *resolution, requesting *Container) (any, error) {
	switch a.scope {
	case Singleton:
		if m := a.value.Load(); m != nil {
			return m.instance, nil
		}
		if err := res.enter(a); err != nil {
			return nil, err
		}
		defer res.leave()

		a.mu.Lock()
		defer a.mu.Unlock()
		if m := a.value.Load(); m != nil {
			return m.instance, nil
		}
		m, err := a.build(res, a.owner)
		if err != nil {
			return nil, err
		}
		a.value.Store(m)
		a.owner.track(m)
		return m.instance, nil

	case PerContainer:
		if v, ok := requesting.scoped.Load(a); ok {
			return v.(*materialized).instance, nil
		}
		if err := res.enter(a); err != nil {
			return nil, err
		}
		defer res.leave()

		a.mu.Lock()
		defer a.mu.Unlock()
		if v, ok := requesting.scoped.Load(a); ok {
			return v.(*materialized).instance, nil
		}
		m, err := a.build(res, requesting)
		if err != nil {
			return nil, err
		}
		requesting.scoped.Store(a, m)
		requesting.track(m)
		return m.instance, nil

	default:
		if err := res.enter(a); err != nil {
			return nil, err
		}
		defer res.leave()

		m, err := a.build(res, requesting)
		if err != nil {
			return nil, err
		}
		return m.instance, nil
	}
}

// build resolves dependencies and plugins from c and constructs one instance
// through the owner's proxy factory.
func (a *adapter) build(res *resolution, c *Container) (*materialized, error) {
	args := make([]any, len(a.deps))
	for i, d := range a.deps {
		v, err := c.resolveDependency(res, a, d)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	var plugins []any
	handed := map[*adapter]bool{a: true}
	for _, t := range a.plugins {
		for _, p := range c.lookupAllOfType(t) {
			if handed[p] {
				continue
			}
			handed[p] = true
			v, err := p.resolve(res, c)
			if err != nil {
				return nil, err
			}
			plugins = append(plugins, v)
		}
	}

	var raw any
	target := aop.Target{
		Type:   a.impl,
		Params: a.paramTypes(),
		New: func(args []any) (any, error) {
			instance, err := a.ctor(args)
			if err != nil || instance == nil {
				return instance, err
			}
			if len(a.plugins) > 0 {
				host, ok := instance.(PluginHost)
				if !ok {
					return nil, fmt.Errorf("%T declares plugins but does not implement PluginHost", instance)
				}
				for _, p := range plugins {
					if err := host.AddPlugin(p); err != nil {
						return nil, fmt.Errorf("add plugin %T: %w", p, err)
					}
				}
			}
			raw = instance
			return instance, nil
		},
		Wrap: a.wrap,
	}

	instance, err := a.owner.proxies.Get(target).NewInstance(args...)
	if err != nil {
		return nil, err
	}
	a.owner.log.Debug("component materialized",
		logKey(a.key), logContainer(c), logScope(a.scope))
	return &materialized{adapter: a, instance: instance, raw: raw}, nil
}

func (a *adapter) paramTypes() []reflect.Type {
	params := make([]reflect.Type, len(a.deps))
	for i, d := range a.deps {
		params[i] = d.ParamType()
	}
	return params
}

// resolveDependency resolves d on behalf of component, looking it up from c.
func (c *Container) resolveDependency(res *resolution, component *adapter, d Dependency) (any, error) {
	missing := func() (any, error) {
		if d.Optional {
			return zeroOf(d.ParamType()), nil
		}
		return nil, &kerrors.UnsatisfiedDependencyError{Key: d.String(), Component: component.String()}
	}

	switch {
	case d.Name != "":
		a := c.lookupKey(d.Name)
		if a == nil {
			return missing()
		}
		return a.resolve(res, c)

	case d.All:
		found, err := c.resolveAll(res, d.Type)
		if err != nil {
			return nil, err
		}
		slice := reflect.MakeSlice(reflect.SliceOf(d.Type), 0, len(found))
		for _, v := range found {
			rv := reflect.ValueOf(v)
			if !rv.Type().AssignableTo(d.Type) {
				return nil, fmt.Errorf("component %s: %s is not assignable to %s", component, rv.Type(), d.Type)
			}
			slice = reflect.Append(slice, rv)
		}
		return slice.Interface(), nil

	default:
		a := c.lookupType(d.Type)
		if a == nil {
			return missing()
		}
		return a.resolve(res, c)
	}
}

// resolveAll resolves every component assignable to t visible from c.
func (c *Container) resolveAll(res *resolution, t reflect.Type) ([]any, error) {
	adapters := c.lookupAllOfType(t)
	out := make([]any, 0, len(adapters))
	for _, a := range adapters {
		v, err := a.resolve(res, c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func zeroOf(t reflect.Type) any {
	if t == nil || nilable(t) {
		return nil
	}
	return reflect.Zero(t).Interface()
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	}
	return false
}
