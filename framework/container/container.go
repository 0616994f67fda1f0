package container

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/km-arc/go-kernel/framework/aop"
	"github.com/km-arc/go-kernel/framework/aop/matcher"
	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

// ── Options ───────────────────────────────────────────────────────────────────

// Option configures a component registration.
type Option func(*adapter)

// WithScope sets the component scope. The default is Singleton.
func WithScope(s Scope) Option {
	return func(a *adapter) { a.scope = s }
}

// WithImplementation sets the type used by type lookups and class matchers.
// It defaults to the key when the key is a type.
func WithImplementation(t reflect.Type) Option {
	return func(a *adapter) { a.impl = t }
}

// WithDependencies declares the constructor arguments, in order.
func WithDependencies(deps ...Dependency) Option {
	return func(a *adapter) { a.deps = deps }
}

// WithWrapper supplies the decorator used when methods of the component are
// intercepted. Components without a wrapper are never intercepted.
//
//	container.WithWrapper(func(g Greeter, h *aop.Handler) Greeter {
//	    return &greeterProxy{target: g, h: h}
//	})
func WithWrapper[T any](wrap func(instance T, h *aop.Handler) T) Option {
	return func(a *adapter) {
		a.wrap = func(instance any, h *aop.Handler) any {
			return wrap(instance.(T), h)
		}
	}
}

// WithPlugins hands every component assignable to one of types to the
// constructed instance, which must implement PluginHost.
func WithPlugins(types ...reflect.Type) Option {
	return func(a *adapter) { a.plugins = append(a.plugins, types...) }
}

// Eager materializes a singleton when its container starts.
func Eager() Option {
	return func(a *adapter) { a.eager = true }
}

// ContainerOption configures a container.
type ContainerOption func(*Container)

// WithLogger sets the logger used for registration and lifecycle events.
// Children inherit it unless they set their own.
func WithLogger(log *zap.Logger) ContainerOption {
	return func(c *Container) {
		if log != nil {
			c.log = log
		}
	}
}

// ── Container ─────────────────────────────────────────────────────────────────

// Container is one level of a component hierarchy.
//
// Lookups by key check the local registrations, then the parent chain. A
// child that registers a key already present in an ancestor shadows it for
// every lookup starting at or below the child.
//
//	root := container.New(container.WithLogger(log))
//	container.Provide(root, nil, NewDatabase)
//
//	portal := root.NewChild("portal")
//	container.Provide1(portal, nil, NewOrders)   // resolves *Database from root
//
//	orders, err := container.Resolve[*Orders](portal, nil)
//
// Registration is expected to happen during bootstrap. Lookups, resolution
// and lifecycle calls are safe for concurrent use.
type Container struct {
	name    string
	parent  *Container
	level   int
	log     *zap.Logger
	proxies *aop.ProxyFactory

	mu       sync.RWMutex
	adapters map[Key]*adapter
	order    []*adapter
	children []weak.Pointer[Container]
	live     []*materialized

	// PerContainer instances requested from this container, by adapter.
	scoped sync.Map

	lc       sync.Mutex
	started  []*materialized
	running  atomic.Bool
	disposed atomic.Bool
}

// New creates a root container.
func New(opts ...ContainerOption) *Container {
	c := &Container{
		name:     "root",
		log:      zap.NewNop(),
		proxies:  aop.NewProxyFactory(nil),
		adapters: make(map[Key]*adapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewChild creates a child container. The child keeps a reference to c; c
// only tracks the child weakly, so an abandoned child is garbage collected
// without being disposed.
func (c *Container) NewChild(name string, opts ...ContainerOption) *Container {
	child := &Container{
		name:     name,
		parent:   c,
		level:    c.level + 1,
		log:      c.log,
		proxies:  aop.NewProxyFactory(c.proxies),
		adapters: make(map[Key]*adapter),
	}
	for _, opt := range opts {
		opt(child)
	}

	c.mu.Lock()
	c.children = slices.DeleteFunc(c.children, func(p weak.Pointer[Container]) bool { return p.Value() == nil })
	c.children = append(c.children, weak.Make(child))
	c.mu.Unlock()

	child.log.Debug("container created", zap.String("container", name), zap.Int("level", child.level))
	return child
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Parent returns the parent container, or nil for a root.
func (c *Container) Parent() *Container { return c.parent }

// Level is 0 for a root and increases by one per generation.
func (c *Container) Level() int { return c.level }

// Proxies returns the proxy factory holding this container's interceptor
// bindings. Its parent is the parent container's factory.
func (c *Container) Proxies() *aop.ProxyFactory { return c.proxies }

// Running reports whether the container has been started and not stopped.
func (c *Container) Running() bool { return c.running.Load() }

// Disposed reports whether Dispose has been called.
func (c *Container) Disposed() bool { return c.disposed.Load() }

// ── Registration ──────────────────────────────────────────────────────────────

// Register adds a component constructed by ctor. The key is a type or a
// name. Registering a key twice replaces the earlier adapter in place,
// keeping its position in registration order.
//
//	c.Register(container.TypeKey[*Orders](), func(args []any) (any, error) {
//	    return NewOrders(args[0].(*Database)), nil
//	}, container.WithDependencies(container.Needs[*Database]()))
func (c *Container) Register(key Key, ctor Constructor, opts ...Option) error {
	if err := validKey(key); err != nil {
		return err
	}
	if ctor == nil {
		return fmt.Errorf("container: nil constructor for %s", KeyString(key))
	}
	a := &adapter{key: key, owner: c, ctor: ctor, arity: -1}
	if t, ok := key.(reflect.Type); ok {
		a.impl = t
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.arity >= 0 && len(a.deps) != a.arity {
		return fmt.Errorf("container: %s: constructor takes %d dependencies, %d declared",
			KeyString(key), a.arity, len(a.deps))
	}
	for _, d := range a.deps {
		if d.Type == nil && d.Name == "" {
			return fmt.Errorf("container: %s: dependency without type or name", KeyString(key))
		}
	}
	return c.add(a)
}

// RegisterInstance adds an already built component. Its implementation type
// is the dynamic type of instance.
func (c *Container) RegisterInstance(key Key, instance any) error {
	return c.registerInstance(key, instance, reflect.TypeOf(instance))
}

func (c *Container) registerInstance(key Key, instance any, impl reflect.Type) error {
	if err := validKey(key); err != nil {
		return err
	}
	if instance == nil {
		return fmt.Errorf("container: nil instance for %s", KeyString(key))
	}
	a := &adapter{
		key:   key,
		owner: c,
		impl:  impl,
		scope: Singleton,
		ctor:  func([]any) (any, error) { return instance, nil },
	}
	m := &materialized{adapter: a, instance: instance, raw: instance, fixed: true}
	a.value.Store(m)
	if err := c.add(a); err != nil {
		return err
	}
	c.track(m)
	return nil
}

// RegisterBinding intercepts the methods selected by classes and methods on
// every component constructed by this container or its descendants. Nil
// matchers match everything.
//
//	c.RegisterBinding(matcher.SubtypeOfType[Repository](), matcher.Named[aop.Method]("Save"),
//	    interceptors.Logging(log))
func (c *Container) RegisterBinding(classes matcher.Matcher[reflect.Type], methods matcher.Matcher[aop.Method], interceptors ...aop.Interceptor) {
	c.proxies.Bind(aop.Binding{Classes: classes, Methods: methods, Interceptors: interceptors})
	c.log.Debug("interceptor binding registered",
		zap.String("container", c.name), zap.Int("interceptors", len(interceptors)))
}

// Unregister removes the local adapter for key. Ancestors are unaffected.
func (c *Container) Unregister(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.adapters[key]
	if !ok {
		return false
	}
	delete(c.adapters, key)
	c.order = slices.DeleteFunc(c.order, func(o *adapter) bool { return o == a })
	return true
}

func (c *Container) add(a *adapter) error {
	if c.disposed.Load() {
		return kerrors.IllegalState("register", "container disposed")
	}
	c.mu.Lock()
	if old, ok := c.adapters[a.key]; ok {
		i := slices.Index(c.order, old)
		c.order[i] = a
	} else {
		c.order = append(c.order, a)
	}
	c.adapters[a.key] = a
	c.mu.Unlock()

	c.log.Debug("component registered",
		logKey(a.key), logContainer(c), logScope(a.scope))
	return nil
}

// track records an instance constructed for this container so lifecycle
// hooks can reach it.
func (c *Container) track(m *materialized) {
	c.mu.Lock()
	c.live = append(c.live, m)
	c.mu.Unlock()
}

// ── Lookup ────────────────────────────────────────────────────────────────────

// Get resolves the component registered under key in c or its ancestors.
func (c *Container) Get(key Key) (any, error) {
	if c.disposed.Load() {
		return nil, kerrors.ErrContainerDisposed
	}
	a := c.lookupKey(key)
	if a == nil {
		return nil, &kerrors.UnsatisfiedDependencyError{Key: KeyString(key)}
	}
	return a.resolve(&resolution{}, c)
}

// GetOfType resolves the nearest component assignable to t. Within one
// container a component keyed by t itself wins, then the first assignable
// one in registration order. A key shadowed by a nearer container hides the
// ancestor's component even when the nearer one is not assignable to t.
func (c *Container) GetOfType(t reflect.Type) (any, error) {
	if c.disposed.Load() {
		return nil, kerrors.ErrContainerDisposed
	}
	a := c.lookupType(t)
	if a == nil {
		return nil, &kerrors.UnsatisfiedDependencyError{Key: KeyString(t)}
	}
	return a.resolve(&resolution{}, c)
}

// GetAllOfType resolves every component assignable to t visible from c:
// local ones first in registration order, then each ancestor's. A key
// shadowed by a nearer container is reported once.
func (c *Container) GetAllOfType(t reflect.Type) ([]any, error) {
	if c.disposed.Load() {
		return nil, kerrors.ErrContainerDisposed
	}
	return c.resolveAll(&resolution{}, t)
}

// GetAdapter returns the adapter registered under key in c or its ancestors.
func (c *Container) GetAdapter(key Key) (ComponentAdapter, bool) {
	a := c.lookupKey(key)
	if a == nil {
		return nil, false
	}
	return a, true
}

// GetAdaptersOfType returns the adapters GetAllOfType would resolve.
func (c *Container) GetAdaptersOfType(t reflect.Type) []ComponentAdapter {
	adapters := c.lookupAllOfType(t)
	out := make([]ComponentAdapter, len(adapters))
	for i, a := range adapters {
		out[i] = a
	}
	return out
}

// Adapters returns the local adapters in registration order.
func (c *Container) Adapters() []ComponentAdapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ComponentAdapter, len(c.order))
	for i, a := range c.order {
		out[i] = a
	}
	return out
}

func (c *Container) lookupKey(key Key) *adapter {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		a, ok := cur.adapters[key]
		cur.mu.RUnlock()
		if ok {
			return a
		}
	}
	return nil
}

func (c *Container) lookupType(t reflect.Type) *adapter {
	if t == nil {
		return nil
	}
	seen := make(map[Key]bool)
	for cur := c; cur != nil; cur = cur.parent {
		if a := cur.localOfType(t, seen); a != nil {
			return a
		}
	}
	return nil
}

// localOfType returns the adapter of c for t, skipping keys shadowed by a
// nearer container, and adds the keys of c to seen.
func (c *Container) localOfType(t reflect.Type, seen map[Key]bool) *adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a, ok := c.adapters[t]; ok && !seen[a.key] && a.assignableTo(t) {
		return a
	}
	for _, a := range c.order {
		if !seen[a.key] && a.assignableTo(t) {
			return a
		}
	}
	for _, a := range c.order {
		seen[a.key] = true
	}
	return nil
}

func (c *Container) lookupAllOfType(t reflect.Type) []*adapter {
	if t == nil {
		return nil
	}
	var out []*adapter
	seen := make(map[Key]bool)
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		for _, a := range cur.order {
			if !seen[a.key] && a.assignableTo(t) {
				out = append(out, a)
			}
		}
		for _, a := range cur.order {
			seen[a.key] = true
		}
		cur.mu.RUnlock()
	}
	return out
}

// liveChildren returns the children still referenced elsewhere, oldest first.
func (c *Container) liveChildren() []*Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Container, 0, len(c.children))
	for _, p := range c.children {
		if child := p.Value(); child != nil {
			out = append(out, child)
		}
	}
	return out
}

func (c *Container) detach(child *Container) {
	c.mu.Lock()
	c.children = slices.DeleteFunc(c.children, func(p weak.Pointer[Container]) bool {
		v := p.Value()
		return v == nil || v == child
	})
	c.mu.Unlock()
}

// ── Log fields ────────────────────────────────────────────────────────────────

func logKey(k Key) zap.Field { return zap.String("key", KeyString(k)) }

func logContainer(c *Container) zap.Field { return zap.String("container", c.name) }

func logScope(s Scope) zap.Field { return zap.Stringer("scope", s) }
