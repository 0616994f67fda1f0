package container_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/km-arc/go-kernel/framework/aop"
	"github.com/km-arc/go-kernel/framework/aop/matcher"
	"github.com/km-arc/go-kernel/framework/container"
	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

// ── fixtures ──────────────────────────────────────────────────────────────────

type componentA struct{ id int64 }

type Doer interface {
	Do(ctx context.Context) (string, error)
}

type componentB struct{ a *componentA }

func (b *componentB) Do(context.Context) (string, error) { return "done", nil }

type doerProxy struct {
	target Doer
	h      *aop.Handler
}

func (p *doerProxy) Do(ctx context.Context) (string, error) {
	return aop.Call(ctx, p.h, "Do", func(ctx context.Context, _ []any) (string, error) {
		return p.target.Do(ctx)
	})
}

func wrapDoer(d Doer, h *aop.Handler) Doer { return &doerProxy{target: d, h: h} }

type Marker interface{ Mark() string }

type markerImpl struct{ name string }

func (m *markerImpl) Mark() string { return m.name }

type counter struct{ n atomic.Int64 }

func (c *counter) next() int64 { return c.n.Add(1) }

// lifecycleLog records hook calls in order.
type lifecycleLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *lifecycleLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *lifecycleLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type service struct {
	name     string
	log      *lifecycleLog
	startErr error
	stopErr  error
}

func (s *service) Start(context.Context) error {
	s.log.add("start " + s.name)
	return s.startErr
}

func (s *service) Stop(context.Context) error {
	s.log.add("stop " + s.name)
	return s.stopErr
}

func (s *service) Dispose(context.Context) error {
	s.log.add("dispose " + s.name)
	return nil
}

func registerService(t *testing.T, c *container.Container, s *service) {
	t.Helper()
	require.NoError(t, container.Provide(c, s.name, func() (*service, error) { return s, nil }))
}

// ── Singleton & PerLookup ─────────────────────────────────────────────────────

func TestSingleton_SameInstanceAndOneConstruction(t *testing.T) {
	t.Parallel()

	c := container.New()
	var built counter
	require.NoError(t, container.Provide(c, nil, func() (*componentA, error) {
		return &componentA{id: built.next()}, nil
	}))

	const workers = 64
	results := make([]*componentA, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			a, err := container.Resolve[*componentA](c, nil)
			assert.NoError(t, err)
			results[i] = a
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), built.n.Load(), "constructor must run exactly once")
	for _, a := range results {
		assert.Same(t, results[0], a)
	}
}

func TestPerLookup_DistinctInstancesFreshlyWired(t *testing.T) {
	t.Parallel()

	c := container.New()
	var built counter
	require.NoError(t, container.Provide(c, nil, func() (*componentA, error) {
		return &componentA{id: built.next()}, nil
	}))
	require.NoError(t, container.Provide1(c, nil, func(a *componentA) (*componentB, error) {
		return &componentB{a: a}, nil
	}, container.WithScope(container.PerLookup)))

	seen := make(map[*componentB]bool)
	for range 5 {
		b, err := container.Resolve[*componentB](c, nil)
		require.NoError(t, err)
		require.NotNil(t, b.a)
		seen[b] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, int64(1), built.n.Load())
}

func TestPerContainer_OneInstancePerRequestingContainer(t *testing.T) {
	t.Parallel()

	root := container.New()
	var built counter
	require.NoError(t, container.Provide(root, nil, func() (*componentA, error) {
		return &componentA{id: built.next()}, nil
	}, container.WithScope(container.PerContainer)))

	s1, s2 := root.NewChild("session-1"), root.NewChild("session-2")

	a1, err := container.Resolve[*componentA](s1, nil)
	require.NoError(t, err)
	again, err := container.Resolve[*componentA](s1, nil)
	require.NoError(t, err)
	a2, err := container.Resolve[*componentA](s2, nil)
	require.NoError(t, err)

	assert.Same(t, a1, again)
	assert.NotSame(t, a1, a2)
	assert.Equal(t, int64(2), built.n.Load())
}

// ── Hierarchy ─────────────────────────────────────────────────────────────────

func TestShadowing_ChildVersusSibling(t *testing.T) {
	t.Parallel()

	root := container.New()
	require.NoError(t, root.RegisterInstance("greeting", "hello from root"))

	portal := root.NewChild("portal")
	require.NoError(t, portal.RegisterInstance("greeting", "hello from portal"))
	sibling := root.NewChild("sibling")
	session := portal.NewChild("session")

	for _, tc := range []struct {
		from *container.Container
		want string
	}{
		{portal, "hello from portal"},
		{session, "hello from portal"},
		{sibling, "hello from root"},
		{root, "hello from root"},
	} {
		got, err := tc.from.Get("greeting")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "from %s", tc.from.Name())
	}
}

func TestGetAllOfType_AcrossHierarchyWithoutDuplicates(t *testing.T) {
	t.Parallel()

	root := container.New()
	parentMarker := &markerImpl{name: "parent"}
	childMarker := &markerImpl{name: "child"}
	require.NoError(t, root.RegisterInstance("parent-marker", parentMarker))
	child := root.NewChild("child")
	require.NoError(t, child.RegisterInstance("child-marker", childMarker))

	// resolve one of them first to show ordering does not matter
	_, err := child.Get("parent-marker")
	require.NoError(t, err)

	all, err := container.ResolveAll[Marker](child)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Marker{parentMarker, childMarker}, all)
	assert.Equal(t, "child", all[0].Mark(), "local matches come first")

	adapters := child.GetAdaptersOfType(reflect.TypeFor[Marker]())
	require.Len(t, adapters, 2)
	assert.Equal(t, "child-marker", adapters[0].Key())

	fromRoot, err := container.ResolveAll[Marker](root)
	require.NoError(t, err)
	assert.Equal(t, []Marker{parentMarker}, fromRoot)
}

func TestGetAllOfType_ShadowedKeyReportedOnce(t *testing.T) {
	t.Parallel()

	root := container.New()
	require.NoError(t, root.RegisterInstance("m", &markerImpl{name: "root"}))
	child := root.NewChild("child")
	require.NoError(t, child.RegisterInstance("m", &markerImpl{name: "child"}))

	all, err := container.ResolveAll[Marker](child)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "child", all[0].Mark())
}

func TestGetOfType_ShadowedKeyHidesParentComponent(t *testing.T) {
	t.Parallel()

	root := container.New()
	require.NoError(t, root.RegisterInstance("mailer", &markerImpl{name: "root"}))
	child := root.NewChild("child")
	require.NoError(t, child.RegisterInstance("mailer", "disabled"))
	session := child.NewChild("session")

	for _, c := range []*container.Container{child, session} {
		_, err := container.ResolveOfType[Marker](c)
		assert.ErrorIs(t, err, kerrors.ErrUnsatisfiedDependency, "from %s", c.Name())
		assert.Empty(t, c.GetAdaptersOfType(reflect.TypeFor[Marker]()), "from %s", c.Name())
	}

	got, err := container.ResolveOfType[Marker](root)
	require.NoError(t, err)
	assert.Equal(t, "root", got.Mark())
}

func TestGetOfType_NearestWinsThenExactKeyThenRegistrationOrder(t *testing.T) {
	t.Parallel()

	root := container.New()
	first := &markerImpl{name: "first"}
	require.NoError(t, root.RegisterInstance("first", first))
	require.NoError(t, root.RegisterInstance("second", &markerImpl{name: "second"}))

	got, err := container.ResolveOfType[Marker](root)
	require.NoError(t, err)
	assert.Same(t, first, got)

	exact := &markerImpl{name: "exact"}
	require.NoError(t, container.ProvideInstance[Marker](root, nil, exact))
	got, err = container.ResolveOfType[Marker](root)
	require.NoError(t, err)
	assert.Same(t, exact, got, "a component keyed by the requested type wins")

	child := root.NewChild("child")
	near := &markerImpl{name: "near"}
	require.NoError(t, child.RegisterInstance("near", near))
	got, err = container.ResolveOfType[Marker](child)
	require.NoError(t, err)
	assert.Same(t, near, got, "the nearest container wins")
}

func TestDependencies_ResolvedFromRequestingContainer(t *testing.T) {
	t.Parallel()

	type tenantName string
	type greeter struct{ tenant tenantName }

	root := container.New()
	require.NoError(t, container.ProvideInstance(root, nil, tenantName("default")))
	require.NoError(t, container.Provide1(root, nil, func(n tenantName) (*greeter, error) {
		return &greeter{tenant: n}, nil
	}, container.WithScope(container.PerLookup)))

	acme := root.NewChild("acme")
	require.NoError(t, container.ProvideInstance(acme, nil, tenantName("acme")))

	g, err := container.Resolve[*greeter](acme, nil)
	require.NoError(t, err)
	assert.Equal(t, tenantName("acme"), g.tenant)

	g, err = container.Resolve[*greeter](root, nil)
	require.NoError(t, err)
	assert.Equal(t, tenantName("default"), g.tenant)
}

func TestSingleton_DependenciesResolvedFromOwner(t *testing.T) {
	t.Parallel()

	type region string
	type client struct{ region region }

	root := container.New()
	require.NoError(t, container.ProvideInstance(root, nil, region("eu")))
	require.NoError(t, container.Provide1(root, nil, func(r region) (*client, error) {
		return &client{region: r}, nil
	}))

	child := root.NewChild("us")
	require.NoError(t, container.ProvideInstance(child, nil, region("us")))

	c, err := container.Resolve[*client](child, nil)
	require.NoError(t, err)
	assert.Equal(t, region("eu"), c.region)
}

func TestVerify_SingletonDependenciesCheckedAgainstOwner(t *testing.T) {
	t.Parallel()

	type region string
	type client struct{ region region }
	type handler struct{ c *client }

	root := container.New()
	require.NoError(t, container.Provide1(root, nil, func(r region) (*client, error) {
		return &client{region: r}, nil
	}))
	child := root.NewChild("us")
	require.NoError(t, container.ProvideInstance(child, nil, region("us")))
	require.NoError(t, container.Provide1(child, nil, func(c *client) (*handler, error) {
		return &handler{c: c}, nil
	}, container.WithScope(container.PerLookup)))

	err := child.Verify()
	assert.ErrorIs(t, err, kerrors.ErrUnsatisfiedDependency, "the root singleton cannot see the child's region")
}

// ── Dependency declarations ───────────────────────────────────────────────────

func TestDependencies_NamedOptionalAndAll(t *testing.T) {
	t.Parallel()

	type report struct {
		primary Marker
		cache   *componentA
		markers []Marker
	}

	c := container.New()
	primary := &markerImpl{name: "primary"}
	require.NoError(t, c.RegisterInstance("primary", primary))
	require.NoError(t, c.RegisterInstance("other", &markerImpl{name: "other"}))

	require.NoError(t, container.Provide3(c, nil, func(m Marker, a *componentA, all []Marker) (*report, error) {
		return &report{primary: m, cache: a, markers: all}, nil
	}, container.WithDependencies(
		container.Needs[Marker]().Named("primary"),
		container.Needs[*componentA]().AsOptional(),
		container.NeedsAll[Marker](),
	)))

	r, err := container.Resolve[*report](c, nil)
	require.NoError(t, err)
	assert.Same(t, primary, r.primary)
	assert.Nil(t, r.cache)
	assert.Len(t, r.markers, 2)
}

func TestDependencies_SliceOfInterfaceCollectsAll(t *testing.T) {
	t.Parallel()

	c := container.New()
	require.NoError(t, c.RegisterInstance("one", &markerImpl{name: "one"}))
	require.NoError(t, c.RegisterInstance("two", &markerImpl{name: "two"}))
	require.NoError(t, container.Provide1(c, "count", func(all []Marker) (int, error) {
		return len(all), nil
	}))

	n, err := container.Resolve[int](c, "count")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnsatisfiedDependency(t *testing.T) {
	t.Parallel()

	c := container.New()
	require.NoError(t, container.Provide1(c, nil, func(a *componentA) (*componentB, error) {
		return &componentB{a: a}, nil
	}))

	_, err := container.Resolve[*componentB](c, nil)
	require.ErrorIs(t, err, kerrors.ErrUnsatisfiedDependency)

	var unsatisfied *kerrors.UnsatisfiedDependencyError
	require.ErrorAs(t, err, &unsatisfied)
	assert.Equal(t, "*container_test.componentA", unsatisfied.Key)
	assert.Equal(t, "*container_test.componentB", unsatisfied.Component)

	_, err = c.Get("missing")
	assert.EqualError(t, err, `no component registered for "missing"`)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	c := container.New()
	noop := func([]any) (any, error) { return 1, nil }

	assert.Error(t, c.Register(nil, noop))
	assert.Error(t, c.Register("", noop))
	assert.Error(t, c.Register(42, noop))
	assert.Error(t, c.Register("k", nil))
	assert.Error(t, c.RegisterInstance("k", nil))
	assert.Error(t, c.Register("k", noop, container.WithDependencies(container.Dependency{})))

	err := container.Provide1(c, "k", func(a *componentA) (int, error) { return 1, nil },
		container.WithDependencies())
	assert.ErrorContains(t, err, "constructor takes 1 dependencies, 0 declared")
}

func TestRegister_ReplacesKeepingOrder(t *testing.T) {
	t.Parallel()

	c := container.New()
	require.NoError(t, c.RegisterInstance("a", &markerImpl{name: "a1"}))
	require.NoError(t, c.RegisterInstance("b", &markerImpl{name: "b"}))
	require.NoError(t, c.RegisterInstance("a", &markerImpl{name: "a2"}))

	adapters := c.Adapters()
	require.Len(t, adapters, 2)
	assert.Equal(t, "a", adapters[0].Key())

	got, err := container.ResolveOfType[Marker](c)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.Mark())

	assert.True(t, c.Unregister("a"))
	assert.False(t, c.Unregister("a"))
	_, err = c.Get("a")
	assert.ErrorIs(t, err, kerrors.ErrUnsatisfiedDependency)
}

// ── Cycles & instantiation ────────────────────────────────────────────────────

func TestCyclicDependency(t *testing.T) {
	t.Parallel()

	type cycA struct{}
	type cycB struct{}

	c := container.New()
	require.NoError(t, container.Provide1(c, nil, func(*cycB) (*cycA, error) { return &cycA{}, nil }))
	require.NoError(t, container.Provide1(c, nil, func(*cycA) (*cycB, error) { return &cycB{}, nil }))

	for _, resolve := range []func() error{
		func() error { _, err := container.Resolve[*cycA](c, nil); return err },
		func() error { _, err := container.Resolve[*cycB](c, nil); return err },
	} {
		err := resolve()
		require.ErrorIs(t, err, kerrors.ErrCyclicDependency)
		var cyclic *kerrors.CyclicDependencyError
		require.ErrorAs(t, err, &cyclic)
		assert.Len(t, cyclic.Path, 3)
		assert.Equal(t, cyclic.Path[0], cyclic.Path[2])
	}

	err := c.Verify()
	assert.ErrorIs(t, err, kerrors.ErrCyclicDependency)
}

func TestSelfDependency_PerLookup(t *testing.T) {
	t.Parallel()

	c := container.New()
	require.NoError(t, c.Register("loop", func([]any) (any, error) { return 1, nil },
		container.WithScope(container.PerLookup),
		container.WithDependencies(container.NeedsNamed("loop"))))

	_, err := c.Get("loop")
	assert.ErrorIs(t, err, kerrors.ErrCyclicDependency)
}

func TestInstantiationError_WrapsCause(t *testing.T) {
	t.Parallel()

	c := container.New()
	cause := errors.New("connection refused")
	require.NoError(t, container.Provide(c, nil, func() (*componentA, error) { return nil, cause }))

	_, err := container.Resolve[*componentA](c, nil)
	require.ErrorIs(t, err, kerrors.ErrInstantiation)
	assert.ErrorIs(t, err, cause)

	// a failed singleton is retried on the next lookup
	_, err = container.Resolve[*componentA](c, nil)
	assert.ErrorIs(t, err, cause)
}

// ── Interception ──────────────────────────────────────────────────────────────

func TestScenario_InterceptedSingletonWithSingletonDependency(t *testing.T) {
	t.Parallel()

	c := container.New()
	var log []string
	c.RegisterBinding(matcher.OnlyOf[*componentB](), matcher.Any[aop.Method](),
		aop.InterceptorFunc(func(inv *aop.Invocation) (any, error) {
			log = append(log, "X")
			return inv.Proceed()
		}))

	require.NoError(t, container.Provide(c, nil, func() (*componentA, error) { return &componentA{}, nil }))
	require.NoError(t, container.Provide1(c, container.TypeKey[Doer](), func(a *componentA) (Doer, error) {
		return &componentB{a: a}, nil
	}, container.WithImplementation(reflect.TypeFor[*componentB]()), container.WithWrapper(wrapDoer)))

	b, err := container.Resolve[Doer](c, nil)
	require.NoError(t, err)
	out, err := b.Do(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, []string{"X"}, log)

	a, err := container.Resolve[*componentA](c, nil)
	require.NoError(t, err)
	proxy, ok := b.(*doerProxy)
	require.True(t, ok, "B is returned through its wrapper")
	assert.Same(t, a, proxy.h.Target().(*componentB).a)
}

func TestInterception_ParentBindingsApplyToChildComponents(t *testing.T) {
	t.Parallel()

	root := container.New()
	var log []string
	tag := func(name string) aop.Interceptor {
		return aop.InterceptorFunc(func(inv *aop.Invocation) (any, error) {
			log = append(log, name)
			return inv.Proceed()
		})
	}
	root.RegisterBinding(nil, matcher.Named[aop.Method]("Do"), tag("root"))

	portal := root.NewChild("portal")
	portal.RegisterBinding(matcher.SubtypeOfType[Doer](), nil, tag("portal"))
	require.NoError(t, container.Provide(portal, nil, func() (Doer, error) {
		return &componentB{}, nil
	}, container.WithImplementation(reflect.TypeFor[*componentB]()), container.WithWrapper(wrapDoer)))

	d, err := container.Resolve[Doer](portal, nil)
	require.NoError(t, err)
	_, err = d.Do(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "portal"}, log)

	info := portal.Describe()
	require.NotEmpty(t, info)
	assert.Equal(t, []string{"Do"}, info[0].Intercepted)
}

func TestInterception_NoWrapperMeansNoInterception(t *testing.T) {
	t.Parallel()

	c := container.New()
	called := false
	c.RegisterBinding(nil, nil, aop.InterceptorFunc(func(inv *aop.Invocation) (any, error) {
		called = true
		return inv.Proceed()
	}))
	require.NoError(t, container.Provide(c, nil, func() (*componentB, error) { return &componentB{}, nil }))

	b, err := container.Resolve[*componentB](c, nil)
	require.NoError(t, err)
	_, err = b.Do(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
}

// ── Plugins ───────────────────────────────────────────────────────────────────

type pluginHost struct{ plugins []Marker }

func (h *pluginHost) AddPlugin(p any) error {
	m, ok := p.(Marker)
	if !ok {
		return fmt.Errorf("unsupported plugin %T", p)
	}
	h.plugins = append(h.plugins, m)
	return nil
}

func TestPlugins_HandedToHostDuringConstruction(t *testing.T) {
	t.Parallel()

	root := container.New()
	require.NoError(t, root.RegisterInstance("root-marker", &markerImpl{name: "root"}))
	child := root.NewChild("child")
	require.NoError(t, child.RegisterInstance("child-marker", &markerImpl{name: "child"}))
	require.NoError(t, container.Provide(child, nil, func() (*pluginHost, error) {
		return &pluginHost{}, nil
	}, container.WithPlugins(reflect.TypeFor[Marker]())))

	h, err := container.Resolve[*pluginHost](child, nil)
	require.NoError(t, err)
	require.Len(t, h.plugins, 2)
	assert.Equal(t, "child", h.plugins[0].Mark())
	assert.Equal(t, "root", h.plugins[1].Mark())
}

func TestPlugins_HostMustImplementPluginHost(t *testing.T) {
	t.Parallel()

	c := container.New()
	require.NoError(t, container.Provide(c, nil, func() (*componentA, error) {
		return &componentA{}, nil
	}, container.WithPlugins(reflect.TypeFor[Marker]())))

	_, err := container.Resolve[*componentA](c, nil)
	assert.ErrorIs(t, err, kerrors.ErrInstantiation)
	assert.ErrorContains(t, err, "does not implement PluginHost")
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func TestLifecycle_StartStopOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := &lifecycleLog{}
	root := container.New()
	registerService(t, root, &service{name: "db", log: log})
	registerService(t, root, &service{name: "cache", log: log})

	portal := root.NewChild("portal")
	registerService(t, portal, &service{name: "web", log: log})

	require.ErrorIs(t, portal.Start(ctx), kerrors.ErrParentNotStarted)
	require.NoError(t, root.Start(ctx))
	require.NoError(t, portal.Start(ctx))
	assert.True(t, portal.Running())

	require.NoError(t, root.Stop(ctx))
	assert.False(t, portal.Running())
	assert.Equal(t, []string{
		"start db", "start cache", "start web",
		"stop web", "stop cache", "stop db",
	}, log.all())
}

func TestLifecycle_IllegalStates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := container.New()

	err := c.Stop(ctx)
	require.ErrorIs(t, err, kerrors.ErrIllegalState)
	assert.ErrorIs(t, err, kerrors.ErrContainerNotStarted)

	require.NoError(t, c.Start(ctx))
	err = c.Start(ctx)
	require.ErrorIs(t, err, kerrors.ErrIllegalState)
	assert.ErrorIs(t, err, kerrors.ErrContainerStarted)

	require.NoError(t, c.Stop(ctx))
	assert.NoError(t, c.Start(ctx), "a stopped container can be started again")
}

func TestLifecycle_StartFailureRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := &lifecycleLog{}
	boom := errors.New("port in use")

	c := container.New()
	registerService(t, c, &service{name: "db", log: log})
	registerService(t, c, &service{name: "http", log: log, startErr: boom})
	registerService(t, c, &service{name: "never", log: log})

	err := c.Start(ctx)
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Running())
	assert.Equal(t, []string{"start db", "start http", "stop db"}, log.all())
}

func TestLifecycle_StopErrorsCombined(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := &lifecycleLog{}
	e1, e2 := errors.New("flush failed"), errors.New("close failed")

	c := container.New()
	registerService(t, c, &service{name: "a", log: log, stopErr: e1})
	registerService(t, c, &service{name: "b", log: log, stopErr: e2})
	require.NoError(t, c.Start(ctx))

	err := c.Stop(ctx)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log.all())
}

func TestLifecycle_EagerSingletonMaterializedOnStart(t *testing.T) {
	t.Parallel()

	c := container.New()
	var built counter
	require.NoError(t, container.Provide(c, nil, func() (*componentA, error) {
		return &componentA{id: built.next()}, nil
	}, container.Eager()))
	require.NoError(t, container.Provide(c, "lazy", func() (*componentB, error) {
		built.next()
		return &componentB{}, nil
	}))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, int64(1), built.n.Load())
}

type Worker interface{ Work() string }

type startableWorker struct{ started bool }

func (w *startableWorker) Work() string                { return "working" }
func (w *startableWorker) Start(context.Context) error { w.started = true; return nil }

func TestLifecycle_StartsComponentDeclaredByInterface(t *testing.T) {
	t.Parallel()

	c := container.New()
	w := &startableWorker{}
	require.NoError(t, container.Provide(c, nil, func() (Worker, error) { return w, nil }))

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, w.started)

	got, err := container.Resolve[Worker](c, nil)
	require.NoError(t, err)
	assert.Same(t, w, got)
}

func TestDispose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := &lifecycleLog{}
	root := container.New()
	require.NoError(t, root.Start(ctx))

	session := root.NewChild("session")
	require.NoError(t, container.Provide(session, "svc", func() (*service, error) {
		return &service{name: "scoped", log: log}, nil
	}, container.WithScope(container.PerContainer)))
	_, err := session.Get("svc")
	require.NoError(t, err)

	require.NoError(t, session.Dispose(ctx))
	require.NoError(t, session.Dispose(ctx), "dispose is idempotent")
	assert.True(t, session.Disposed())
	assert.Equal(t, []string{"dispose scoped"}, log.all())

	_, err = session.Get("svc")
	assert.ErrorIs(t, err, kerrors.ErrContainerDisposed)
	assert.Error(t, session.RegisterInstance("x", 1))
}

// ── Verify & Describe ─────────────────────────────────────────────────────────

func TestVerify_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	c := container.New()
	require.NoError(t, container.Provide1(c, "needs-a", func(a *componentA) (int, error) { return 1, nil }))
	require.NoError(t, container.Provide1(c, "needs-b", func(b *componentB) (int, error) { return 2, nil }))
	require.NoError(t, c.Register("optional", func([]any) (any, error) { return 3, nil },
		container.WithDependencies(container.NeedsNamed("nothing").AsOptional())))

	err := c.Verify()
	require.Error(t, err)
	assert.ErrorContains(t, err, "component \"needs-a\": unsatisfied dependency *container_test.componentA")
	assert.ErrorContains(t, err, "component \"needs-b\": unsatisfied dependency *container_test.componentB")
	assert.NotContains(t, err.Error(), "optional")

	require.NoError(t, container.ProvideInstance(c, nil, &componentA{}))
	require.NoError(t, container.ProvideInstance(c, nil, &componentB{}))
	assert.NoError(t, c.Verify())
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	root := container.New()
	require.NoError(t, root.RegisterInstance("greeting", "root"))
	require.NoError(t, container.Provide(root, nil, func() (*componentA, error) { return &componentA{}, nil },
		container.WithScope(container.PerLookup)))
	portal := root.NewChild("portal")
	require.NoError(t, portal.RegisterInstance("greeting", "portal"))

	info := portal.Describe()
	require.Len(t, info, 3)
	assert.Equal(t, container.ComponentInfo{
		Key: `"greeting"`, Scope: "singleton", Implementation: "string",
		Container: "portal", Level: 1, Materialized: true,
	}, info[0])
	assert.True(t, info[1].Shadowed)
	assert.Equal(t, "per-lookup", info[2].Scope)
	assert.False(t, info[2].Materialized)
}

// ── Logging ───────────────────────────────────────────────────────────────────

func TestLogging_RegistrationAndLifecycle(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	c := container.New(container.WithLogger(zap.New(core)))
	require.NoError(t, container.Provide(c, nil, func() (*componentA, error) { return &componentA{}, nil }))
	_, err := container.Resolve[*componentA](c, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, 1, logs.FilterMessage("component registered").Len())
	assert.Equal(t, 1, logs.FilterMessage("component materialized").Len())
	started := logs.FilterMessage("container started").All()
	require.Len(t, started, 1)
	assert.Equal(t, "root", started[0].ContextMap()["container"])
}
