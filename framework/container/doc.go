// Package container provides a hierarchical component container with
// pluggable method interception.
//
// # Overview
//
// A Container holds component adapters. Each adapter knows its key, its
// scope, the dependencies its constructor takes and how to build it. Containers
// form a tree: a portal container under the root, a session container under
// the portal for each request. Lookups walk from the requesting container up
// to the root.
//
// Go has no constructor reflection, so constructors are explicit factory
// functions receiving already resolved dependencies.
//
// # Container Lifecycle
//
//  1. Create: root := container.New(container.WithLogger(log))
//  2. Register providers: registry.Register(ctx, &MyProvider{})
//  3. Boot: registry.Boot(ctx)
//  4. Start: root.Start(ctx), then each child
//  5. Serve requests, with a short-lived child per request
//  6. Stop: root.Stop(ctx) stops children first
//
// # Registration
//
//	// Singleton, keyed by its type
//	container.Provide(root, nil, func() (*Database, error) { return Open(dsn) })
//
//	// One instance per lookup, dependencies from the requesting container
//	container.Provide1(root, nil, NewCart, container.WithScope(container.PerLookup))
//
//	// Named, with an explicit dependency list
//	root.Register("reportMailer", func(args []any) (any, error) {
//	    return NewMailer(args[0].(*Config)), nil
//	}, container.WithImplementation(container.TypeKey[*Mailer]()),
//	    container.WithDependencies(container.Needs[*Config]()))
//
//	// Pre-built value
//	root.RegisterInstance("config", cfg)
//
// # Resolving
//
//	db, err := container.Resolve[*Database](portal, nil)       // by key
//	m, err := container.ResolveOfType[Mailer](portal)          // nearest assignable
//	checks, err := container.ResolveAll[HealthCheck](portal)   // every assignable
//
// # Scopes
//
// Singleton components are built once per adapter and resolve their
// dependencies from the container that owns the adapter. PerLookup components
// are built on every resolution and PerContainer components once per
// requesting container; both resolve their dependencies from the requesting
// container, so a component registered in the root can be wired with
// request-specific collaborators.
//
// # Interception
//
//	root.RegisterBinding(matcher.SubtypeOfType[Repository](), matcher.Any[aop.Method](),
//	    interceptors.Logging(log), interceptors.Tracing(tp))
//
//	container.Provide1(root, nil, NewOrders, container.WithWrapper(
//	    func(r Repository, h *aop.Handler) Repository { return &repositoryProxy{r, h} }))
//
// Bindings registered on a container apply to the components it owns, after
// the bindings of its ancestors.
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(c *container.Container) error {
//	    return container.Provide1(c, nil, mail.NewSMTP)
//	}
//
//	registry := container.NewProviderRegistry(root)
//	registry.Register(ctx, &AppServiceProvider{})
//	registry.Boot(ctx)
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool        { return true }
//	func (p *HeavyProvider) Provides() []container.Key { return []container.Key{"heavy"} }
//	func (p *HeavyProvider) Register(c *container.Container) error {
//	    return container.Provide(c, "heavy", heavySetup) // only called on first Get("heavy")
//	}
package container
