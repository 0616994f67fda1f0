package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/km-arc/go-kernel/framework/aop"
	"github.com/km-arc/go-kernel/framework/app"
	"github.com/km-arc/go-kernel/framework/config"
	"github.com/km-arc/go-kernel/framework/container"
	"github.com/km-arc/go-kernel/framework/tenant"
	"github.com/km-arc/go-kernel/routing"
)

// Greeter is intercepted by the kernel's logging, metrics and tracing
// bindings through greeterProxy.
type Greeter interface {
	Greet(ctx context.Context, name string) (string, error)
}

type greeter struct {
	props *config.Properties
}

func (g *greeter) Greet(_ context.Context, name string) (string, error) {
	return g.props.GetOr("greeting", "Hello") + ", " + name, nil
}

type greeterProxy struct {
	target Greeter
	h      *aop.Handler
}

func (p *greeterProxy) Greet(ctx context.Context, name string) (string, error) {
	return aop.Call(ctx, p.h, "Greet", func(ctx context.Context, args []any) (string, error) {
		return p.target.Greet(ctx, args[0].(string))
	}, name)
}

// catalog names the components available to KERNEL_COMPONENTS declarations.
func catalog() *config.Catalog {
	return config.NewCatalog().
		Add("greeter", func(c *container.Container, key container.Key, opts ...container.Option) error {
			return container.Provide1(c, key, func(p *config.Properties) (Greeter, error) {
				return &greeter{props: p}, nil
			}, append([]container.Option{
				container.WithWrapper(func(g Greeter, h *aop.Handler) Greeter { return &greeterProxy{target: g, h: h} }),
			}, opts...)...)
		}).
		Add("static-tenant", func(c *container.Container, key container.Key, opts ...container.Option) error {
			return container.Provide1(c, key, func(p *config.Properties) (tenant.CurrentTenantLookup, error) {
				return tenant.StaticLookup{Tenant: tenant.Tenant{Name: p.GetOr("tenant.default", "public")}}, nil
			}, opts...)
		})
}

// defaultComponents is used when KERNEL_COMPONENTS is not set.
const defaultComponents = `
containers:
  portal:
    - type: greeter
    - key: staticTenant
      type: static-tenant
`

func main() {
	cfg := config.Load()

	k, err := app.New(cfg, app.WithCatalog(catalog()))
	if err != nil {
		fail(err)
	}
	if cfg.Components == "" {
		d, err := config.ParseDeclarations([]byte(defaultComponents))
		if err != nil {
			fail(err)
		}
		if err := d.Apply(k.Portal, app.PortalLevel, catalog()); err != nil {
			fail(err)
		}
	}

	router, err := k.Router()
	if err != nil {
		fail(err)
	}

	// GET /greet/{name} answers with the portal greeter, for the tenant of the
	// X-Tenant header.
	router.Get("/greet/{name}", func(w http.ResponseWriter, req *http.Request) {
		res := routing.NewResponse(w)
		g, err := routing.Resolve[Greeter](req, nil)
		if err != nil {
			res.Fail(err)
			return
		}
		tenants, err := routing.Resolve[*tenant.Service](req, nil)
		if err != nil {
			res.Fail(err)
			return
		}
		msg, err := g.Greet(req.Context(), routing.Param(req, "name"))
		if err != nil {
			res.Fail(err)
			return
		}
		who, err := tenants.CurrentTenant(req.Context())
		if err != nil {
			res.Fail(err)
			return
		}
		res.Success(map[string]any{"message": msg, "tenant": who.Name})
	})

	banner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := k.Run(ctx); err != nil {
		fail(err)
	}
}

func banner(cfg *config.Config) {
	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	title.Printf("%s", cfg.Name)
	dim.Printf("  [%s]\n", cfg.Env)
	fmt.Printf("  listening on http://localhost%s\n", cfg.Addr())
	dim.Println("  GET /greet/{name}  GET /components  GET /metrics")
}

func fail(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
