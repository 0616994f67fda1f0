package providers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-kernel/framework/aop"
	"github.com/km-arc/go-kernel/framework/aop/interceptors"
	"github.com/km-arc/go-kernel/framework/aop/matcher"
	"github.com/km-arc/go-kernel/framework/config"
	"github.com/km-arc/go-kernel/framework/container"
	"github.com/km-arc/go-kernel/framework/tenant"
	"github.com/km-arc/go-kernel/routing"
)

// NewLogger builds the kernel logger: zap's production config when
// cfg.LogFormat is json, a development console logger otherwise. An unknown
// level falls back to info.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log.With(zap.String("app", cfg.Name)), nil
}

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the kernel settings and the logger.
//
// Bound keys:
//   - *config.Config
//   - *zap.Logger
type ConfigServiceProvider struct {
	container.BaseProvider
	Config *config.Config
	Logger *zap.Logger
}

func (p *ConfigServiceProvider) Register(c *container.Container) error {
	if p.Config == nil {
		return fmt.Errorf("config provider: no config")
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := container.ProvideInstance(c, nil, p.Config); err != nil {
		return err
	}
	return container.ProvideInstance(c, nil, log)
}

// ── PropertiesServiceProvider ─────────────────────────────────────────────────

// PropertiesServiceProvider binds the property configurator. The file named
// by Config.Properties is read when the container starts.
//
// Bound keys:
//   - *config.Properties
//
// Dependencies: *config.Config, *zap.Logger.
type PropertiesServiceProvider struct {
	container.BaseProvider
	Initial map[string]string
}

func (p *PropertiesServiceProvider) Register(c *container.Container) error {
	initial := p.Initial
	return container.Provide2(c, nil, func(cfg *config.Config, log *zap.Logger) (*config.Properties, error) {
		return config.NewProperties(cfg.Properties, initial, log.Named("properties")), nil
	})
}

// ── TenantServiceProvider ─────────────────────────────────────────────────────

// TenantServiceProvider binds the tenant service and its stock plugins. The
// service receives every CurrentTenantLookup and StateObserver visible from
// its container, including ones registered by applications.
//
// Bound keys:
//   - *tenant.Service
//   - "tenant.contextLookup" → tenant.CurrentTenantLookup
//   - *tenant.Observer
type TenantServiceProvider struct {
	container.BaseProvider
}

// ContextLookupKey is the key of the lookup reading tenants from the request
// context.
const ContextLookupKey = "tenant.contextLookup"

func (p *TenantServiceProvider) Register(c *container.Container) error {
	if err := container.ProvideInstance[tenant.CurrentTenantLookup](c, ContextLookupKey, tenant.ContextLookup{}); err != nil {
		return err
	}
	if err := container.Provide(c, nil, func() (*tenant.Observer, error) {
		return tenant.NewObserver(), nil
	}); err != nil {
		return err
	}
	return container.Provide1(c, nil, func(log *zap.Logger) (*tenant.Service, error) {
		return tenant.NewService(log.Named("tenant")), nil
	}, container.WithPlugins(tenant.LookupType, tenant.ObserverType))
}

// Boot reports the plugins registered so far. It must not build the
// service: plugins are handed over once, when it is first resolved.
func (p *TenantServiceProvider) Boot(_ context.Context, c *container.Container) error {
	log, err := container.Resolve[*zap.Logger](c, nil)
	if err != nil {
		return err
	}
	log.Info("tenant service ready",
		zap.Int("lookups", len(c.GetAdaptersOfType(tenant.LookupType))),
		zap.Int("observers", len(c.GetAdaptersOfType(tenant.ObserverType))))
	return nil
}

// ── ObservabilityServiceProvider ──────────────────────────────────────────────

// ObservabilityServiceProvider binds the metrics registry and the tracer
// provider, and intercepts the methods selected by Classes and Methods with
// logging, metrics and tracing. Only components registered with a wrapper
// are intercepted.
//
// Bound keys:
//   - *prometheus.Registry
//   - *interceptors.MethodMetrics
//   - trace.TracerProvider
type ObservabilityServiceProvider struct {
	container.BaseProvider
	Registry       *prometheus.Registry
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger

	// Nil matchers select everything.
	Classes matcher.Matcher[reflect.Type]
	Methods matcher.Matcher[aop.Method]
}

func (p *ObservabilityServiceProvider) Register(c *container.Container) error {
	reg := p.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	tp := p.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	metrics, err := interceptors.NewMethodMetrics(reg)
	if err != nil {
		return fmt.Errorf("method metrics: %w", err)
	}
	if err := container.ProvideInstance(c, nil, reg); err != nil {
		return err
	}
	if err := container.ProvideInstance(c, nil, metrics); err != nil {
		return err
	}
	if err := container.ProvideInstance(c, nil, tp); err != nil {
		return err
	}

	c.RegisterBinding(p.Classes, p.Methods,
		interceptors.Tracing(tp),
		metrics.Interceptor(),
		interceptors.Logging(log.Named("calls")),
	)
	return nil
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router of the container it is
// added to, usually the portal. Requests run in session children of that
// container. /metrics is served when a *prometheus.Registry is visible.
//
// Bound keys:
//   - *routing.Router
type RoutingServiceProvider struct {
	container.BaseProvider
	TenantHeader string
}

func (p *RoutingServiceProvider) Register(c *container.Container) error {
	header := p.TenantHeader
	return container.Provide2(c, nil, func(log *zap.Logger, reg *prometheus.Registry) (*routing.Router, error) {
		opts := routing.Options{Logger: log.Named("http"), TenantHeader: header}
		if reg != nil {
			opts.Gatherer = reg
		}
		return routing.New(c, opts), nil
	}, container.WithDependencies(
		container.Needs[*zap.Logger](),
		container.Needs[*prometheus.Registry]().AsOptional(),
	))
}
