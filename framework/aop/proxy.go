package aop

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/km-arc/go-kernel/framework/aop/matcher"
	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

// ── Bindings ──────────────────────────────────────────────────────────────────

// Binding attaches interceptors to the methods selected by a class matcher
// and a method matcher.
type Binding struct {
	Classes      matcher.Matcher[reflect.Type]
	Methods      matcher.Matcher[Method]
	Interceptors []Interceptor
}

// Builder collects bindings in declaration order.
//
//	factory := aop.NewBuilder().
//	    Intercept(matcher.OnlyOf[*Orders](), matcher.Any[aop.Method](), logging, tx).
//	    Create()
type Builder struct {
	parent   *ProxyFactory
	bindings []Binding
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// WithParent makes the created factory honour parent's bindings before its own.
func (b *Builder) WithParent(parent *ProxyFactory) *Builder {
	b.parent = parent
	return b
}

// Intercept registers interceptors for the methods matched by classes and
// methods. Interceptors run in the order given.
func (b *Builder) Intercept(classes matcher.Matcher[reflect.Type], methods matcher.Matcher[Method], interceptors ...Interceptor) *Builder {
	b.bindings = append(b.bindings, Binding{Classes: classes, Methods: methods, Interceptors: interceptors})
	return b
}

// Create returns a factory holding the collected bindings.
func (b *Builder) Create() *ProxyFactory {
	f := NewProxyFactory(b.parent)
	for _, binding := range b.bindings {
		f.Bind(binding)
	}
	return f
}

// ── ProxyFactory ──────────────────────────────────────────────────────────────

// ProxyFactory produces construction proxies whose instances route matched
// method calls through interceptor chains.
//
// Interception plans are computed once per type and published atomically;
// concurrent first use may compute the same plan twice but never exposes a
// partial one.
type ProxyFactory struct {
	parent   *ProxyFactory
	bindings atomic.Pointer[[]Binding]
	version  atomic.Uint64
	plans    sync.Map // reflect.Type -> *plan
}

// plan is the per-type interception decision.
type plan struct {
	version uint64
	chains  map[string]*Chain
}

// NewProxyFactory returns a factory without bindings. parent may be nil.
func NewProxyFactory(parent *ProxyFactory) *ProxyFactory {
	f := &ProxyFactory{parent: parent}
	empty := []Binding{}
	f.bindings.Store(&empty)
	return f
}

// Bind appends a binding. Plans computed before the call are recomputed on
// their next use. Bindings are expected to be added during bootstrap.
func (f *ProxyFactory) Bind(b Binding) {
	if b.Classes == nil {
		b.Classes = matcher.Any[reflect.Type]()
	}
	if b.Methods == nil {
		b.Methods = matcher.Any[Method]()
	}
	for {
		old := f.bindings.Load()
		next := make([]Binding, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, b)
		if f.bindings.CompareAndSwap(old, &next) {
			break
		}
	}
	f.version.Add(1)
}

// Bindings returns the effective bindings: the parent's first, then this
// factory's, each in registration order.
func (f *ProxyFactory) Bindings() []Binding {
	own := *f.bindings.Load()
	if f.parent == nil {
		return own
	}
	inherited := f.parent.Bindings()
	out := make([]Binding, 0, len(inherited)+len(own))
	out = append(out, inherited...)
	return append(out, own...)
}

func (f *ProxyFactory) effectiveVersion() uint64 {
	v := f.version.Load()
	if f.parent != nil {
		v += f.parent.effectiveVersion()
	}
	return v
}

// Get returns the construction proxy for target. When no binding's class
// matcher accepts target.Type the proxy instantiates without interception.
func (f *ProxyFactory) Get(target Target) ConstructionProxy {
	if f == nil {
		return &constructionProxy{target: target}
	}
	p := f.planFor(target.Type)
	return &constructionProxy{target: target, chains: p.chains}
}

// Intercepted returns the names of the methods of t that have an interceptor
// chain, sorted.
func (f *ProxyFactory) Intercepted(t reflect.Type) []string {
	p := f.planFor(t)
	names := make([]string, 0, len(p.chains))
	for name := range p.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *ProxyFactory) planFor(t reflect.Type) *plan {
	version := f.effectiveVersion()
	if cached, ok := f.plans.Load(t); ok {
		if p := cached.(*plan); p.version == version {
			return p
		}
	}
	p := f.compute(t, version)
	if actual, loaded := f.plans.LoadOrStore(t, p); loaded {
		if existing := actual.(*plan); existing.version == version {
			return existing
		}
		f.plans.Store(t, p)
	}
	return p
}

func (f *ProxyFactory) compute(t reflect.Type, version uint64) *plan {
	p := &plan{version: version}
	if t == nil {
		return p
	}

	var applicable []Binding
	for _, b := range f.Bindings() {
		if b.Classes.Matches(t) {
			applicable = append(applicable, b)
		}
	}
	if len(applicable) == 0 {
		return p
	}

	for _, m := range MethodsOf(t) {
		var interceptors []Interceptor
		for _, b := range applicable {
			if b.Methods.Matches(m) {
				interceptors = append(interceptors, b.Interceptors...)
			}
		}
		if len(interceptors) == 0 {
			continue
		}
		if p.chains == nil {
			p.chains = make(map[string]*Chain)
		}
		p.chains[m.Name()] = NewChain(m, interceptors...)
	}
	return p
}

// ── Construction ──────────────────────────────────────────────────────────────

// Target describes how to build one implementation type.
type Target struct {
	// Type is the implementation type matched by class matchers.
	Type reflect.Type
	// Params are the constructor parameter types, checked by NewInstance.
	Params []reflect.Type
	// New builds an instance from already resolved arguments.
	New func(args []any) (any, error)
	// Wrap returns a decorator implementing the same capability interface as
	// instance, delegating each method through h. Without Wrap instances are
	// never intercepted.
	Wrap func(instance any, h *Handler) any
}

// ConstructionProxy creates instances of one type from constructor
// arguments.
type ConstructionProxy interface {
	TargetType() reflect.Type
	ParameterTypes() []reflect.Type
	// NewInstance constructs a new instance. Constructor failures, panics and
	// argument mismatches are reported as *errors.InstantiationError.
	NewInstance(args ...any) (any, error)
}

type constructionProxy struct {
	target Target
	chains map[string]*Chain
}

func (p *constructionProxy) TargetType() reflect.Type { return p.target.Type }

func (p *constructionProxy) ParameterTypes() []reflect.Type { return p.target.Params }

func (p *constructionProxy) NewInstance(args ...any) (instance any, err error) {
	name := typeName(p.target.Type)
	if p.target.New == nil {
		return nil, kerrors.NewInstantiationError(name, fmt.Errorf("no constructor"))
	}
	if err := checkArgs(p.target.Params, args); err != nil {
		return nil, kerrors.NewInstantiationError(name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			instance = nil
			err = kerrors.NewInstantiationError(name, fmt.Errorf("constructor panicked: %v", rec))
		}
	}()

	instance, err = p.target.New(args)
	if err != nil {
		return nil, kerrors.NewInstantiationError(name, err)
	}
	if instance == nil {
		return nil, kerrors.NewInstantiationError(name, fmt.Errorf("constructor returned nil"))
	}

	if len(p.chains) == 0 || p.target.Wrap == nil {
		return instance, nil
	}
	return p.target.Wrap(instance, &Handler{target: instance, chains: p.chains}), nil
}

func checkArgs(params []reflect.Type, args []any) error {
	if len(params) != len(args) {
		return fmt.Errorf("expected %d arguments, got %d", len(params), len(args))
	}
	for i, arg := range args {
		want := params[i]
		if arg == nil {
			if !nilable(want) {
				return fmt.Errorf("argument %d: nil is not assignable to %s", i, want)
			}
			continue
		}
		if got := reflect.TypeOf(arg); !got.AssignableTo(want) {
			return fmt.Errorf("argument %d: %s is not assignable to %s", i, got, want)
		}
	}
	return nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	}
	return false
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<unknown>"
	}
	return t.String()
}

// ── Handler ───────────────────────────────────────────────────────────────────

// Handler routes calls made on a wrapper to the interceptor chain of the
// called method. Wrappers are written once per capability interface:
//
//	type greeterProxy struct {
//	    target Greeter
//	    h      *aop.Handler
//	}
//
//	func (p *greeterProxy) Greet(ctx context.Context, name string) (string, error) {
//	    return aop.Call(ctx, p.h, "Greet", func(ctx context.Context, args []any) (string, error) {
//	        return p.target.Greet(ctx, args[0].(string))
//	    }, name)
//	}
type Handler struct {
	target any
	chains map[string]*Chain
}

// Target returns the real instance.
func (h *Handler) Target() any { return h.target }

// Intercepts reports whether method has an interceptor chain.
func (h *Handler) Intercepts(method string) bool {
	_, ok := h.chains[method]
	return ok
}

// Invoke calls real through the chain composed for method, or directly when
// the method is not intercepted.
func (h *Handler) Invoke(ctx context.Context, method string, args []any, real RealMethod) (any, error) {
	chain, ok := h.chains[method]
	if !ok {
		return real(ctx, args)
	}
	return chain.Invoke(ctx, h.target, args, real)
}

// Call is the typed form of Handler.Invoke for methods returning (R, error).
// A replaced return value that is not an R yields an error.
func Call[R any](ctx context.Context, h *Handler, method string, real func(ctx context.Context, args []any) (R, error), args ...any) (R, error) {
	out, err := h.Invoke(ctx, method, args, func(ctx context.Context, args []any) (any, error) {
		return real(ctx, args)
	})
	var zero R
	if out == nil {
		return zero, err
	}
	typed, ok := out.(R)
	if !ok {
		return zero, fmt.Errorf("aop: %s returned %T, want %T", method, out, zero)
	}
	return typed, err
}

// Exec is Call for methods returning only an error.
func Exec(ctx context.Context, h *Handler, method string, real func(ctx context.Context, args []any) error, args ...any) error {
	_, err := h.Invoke(ctx, method, args, func(ctx context.Context, args []any) (any, error) {
		return nil, real(ctx, args)
	})
	return err
}
