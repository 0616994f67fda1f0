package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/km-arc/go-kernel/framework/config"
	"github.com/km-arc/go-kernel/framework/container"
	"github.com/km-arc/go-kernel/framework/providers"
	"github.com/km-arc/go-kernel/routing"
)

// Container levels, as named in component declarations.
const (
	RootLevel   = "root"
	PortalLevel = "portal"
)

// Kernel owns a two-level container hierarchy: root holds process-wide
// services, portal the request-facing ones. Each HTTP request runs in a
// session child of portal.
//
//	k, err := app.New(config.Load())
//	if err != nil { ... }
//	k.PortalProviders.Register(ctx, &OrdersProvider{})
//	err = k.Run(ctx)
type Kernel struct {
	Config *config.Config
	Log    *zap.Logger

	Root   *container.Container
	Portal *container.Container

	RootProviders   *container.ProviderRegistry
	PortalProviders *container.ProviderRegistry

	Metrics *prometheus.Registry
	Tracing *sdktrace.TracerProvider

	catalog      *config.Catalog
	declarations *config.Declarations
}

// Option configures New.
type Option func(*Kernel)

// WithLogger replaces the logger built from the config.
func WithLogger(log *zap.Logger) Option {
	return func(k *Kernel) { k.Log = log }
}

// WithCatalog sets the component types available to the declarations file
// named by Config.Components.
func WithCatalog(cat *config.Catalog) Option {
	return func(k *Kernel) { k.catalog = cat }
}

// WithTracerProvider replaces the default tracer provider, which records
// spans without exporting them.
func WithTracerProvider(tp *sdktrace.TracerProvider) Option {
	return func(k *Kernel) { k.Tracing = tp }
}

// New builds the hierarchy and registers the framework providers:
//
//	root:   config, logger, properties, metrics, tracing
//	portal: tenant service, router
//
// Declarations from Config.Components are applied after the framework
// providers, so they may shadow framework components.
func New(cfg *config.Config, opts ...Option) (*Kernel, error) {
	k := &Kernel{Config: cfg}
	for _, opt := range opts {
		opt(k)
	}
	if k.Log == nil {
		log, err := providers.NewLogger(cfg)
		if err != nil {
			return nil, err
		}
		k.Log = log
	}
	if k.Tracing == nil {
		k.Tracing = sdktrace.NewTracerProvider()
	}
	if k.catalog == nil {
		k.catalog = config.NewCatalog()
	}

	if cfg.Components != "" {
		d, err := config.LoadDeclarations(cfg.Components)
		if err != nil {
			return nil, err
		}
		k.declarations = d
	} else {
		k.declarations = &config.Declarations{}
	}

	k.Metrics = prometheus.NewRegistry()
	k.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	k.Root = container.New(container.WithLogger(k.Log))
	k.Portal = k.Root.NewChild(PortalLevel)
	k.RootProviders = container.NewProviderRegistry(k.Root)
	k.PortalProviders = container.NewProviderRegistry(k.Portal)

	ctx := context.Background()
	for _, p := range []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg, Logger: k.Log},
		&providers.PropertiesServiceProvider{Initial: k.declarations.Properties},
		&providers.ObservabilityServiceProvider{Registry: k.Metrics, TracerProvider: k.Tracing, Logger: k.Log},
	} {
		if err := k.RootProviders.Register(ctx, p); err != nil {
			return nil, err
		}
	}
	for _, p := range []container.ServiceProvider{
		&providers.TenantServiceProvider{},
		&providers.RoutingServiceProvider{},
	} {
		if err := k.PortalProviders.Register(ctx, p); err != nil {
			return nil, err
		}
	}

	if err := k.declarations.Apply(k.Root, RootLevel, k.catalog); err != nil {
		return nil, fmt.Errorf("apply declarations: %w", err)
	}
	if err := k.declarations.Apply(k.Portal, PortalLevel, k.catalog); err != nil {
		return nil, fmt.Errorf("apply declarations: %w", err)
	}
	return k, nil
}

// Boot boots the root providers, then the portal providers. Calling it
// again is a no-op.
func (k *Kernel) Boot(ctx context.Context) error {
	if err := k.RootProviders.Boot(ctx); err != nil {
		return err
	}
	return k.PortalProviders.Boot(ctx)
}

// Start boots the providers, verifies both containers and starts root then
// portal. If portal fails to start, root is stopped again.
func (k *Kernel) Start(ctx context.Context) error {
	if err := k.Boot(ctx); err != nil {
		return err
	}
	if err := multierr.Combine(k.Root.Verify(), k.Portal.Verify()); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if err := k.Root.Start(ctx); err != nil {
		return fmt.Errorf("start root: %w", err)
	}
	if err := k.Portal.Start(ctx); err != nil {
		return multierr.Append(fmt.Errorf("start portal: %w", err), k.Root.Stop(ctx))
	}
	k.Log.Info("kernel started",
		zap.String("env", k.Config.Env), zap.Int("root", len(k.Root.Adapters())), zap.Int("portal", len(k.Portal.Adapters())))
	return nil
}

// Stop stops portal then root.
func (k *Kernel) Stop(ctx context.Context) error {
	err := multierr.Append(k.Portal.Stop(ctx), k.Root.Stop(ctx))
	k.Log.Info("kernel stopped")
	return err
}

// Shutdown disposes the hierarchy, stopping it first if it is running, and
// flushes the tracer provider and the logger.
func (k *Kernel) Shutdown(ctx context.Context) error {
	err := k.Root.Dispose(ctx)
	err = multierr.Append(err, k.Tracing.Shutdown(ctx))
	_ = k.Log.Sync()
	return err
}

// Router resolves the portal router.
func (k *Kernel) Router() (*routing.Router, error) {
	return container.Resolve[*routing.Router](k.Portal, nil)
}

// Run starts the kernel, serves HTTP on Config.Addr until ctx is done, then
// shuts the server and the kernel down.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.Start(ctx); err != nil {
		return err
	}
	router, err := k.Router()
	if err != nil {
		return multierr.Append(err, k.Shutdown(context.WithoutCancel(ctx)))
	}

	srv := &http.Server{
		Addr:              k.Config.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		k.Log.Info("listening", zap.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return multierr.Append(err, k.Shutdown(context.WithoutCancel(ctx)))
}

// Environment helpers.
func (k *Kernel) IsLocal() bool      { return k.Config.Env == "local" }
func (k *Kernel) IsProduction() bool { return k.Config.Production() }
func (k *Kernel) IsTesting() bool    { return k.Config.Env == "testing" }
