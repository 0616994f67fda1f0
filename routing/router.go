package routing

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/km-arc/go-kernel/framework/container"
)

// TenantHeader is the default request header naming the tenant.
const TenantHeader = "X-Tenant"

// Options configures New.
type Options struct {
	Logger *zap.Logger
	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer
	// TenantHeader defaults to X-Tenant.
	TenantHeader string
}

// Router wraps chi.Router. Every request runs in its own session container,
// a child of the portal container, disposed when the request ends.
type Router struct {
	mux    chi.Router
	portal *container.Container
	log    *zap.Logger
}

// New creates a Router serving components of portal.
//
//	r := routing.New(portal, routing.Options{Logger: log})
//	r.Get("/orders", func(w http.ResponseWriter, req *http.Request) {
//	    orders, err := routing.Resolve[*Orders](req, nil)
//	    ...
//	})
func New(portal *container.Container, opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	header := opts.TenantHeader
	if header == "" {
		header = TenantHeader
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(Tenant(header))
	r.Use(SessionScope(portal, log))

	router := &Router{mux: r, portal: portal, log: log}
	r.Get("/components", router.components)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

// ── HTTP verbs ───────────────────────────────────────────────────────────────

func (r *Router) Get(pattern string, h http.HandlerFunc)    { r.mux.Get(pattern, h) }
func (r *Router) Post(pattern string, h http.HandlerFunc)   { r.mux.Post(pattern, h) }
func (r *Router) Put(pattern string, h http.HandlerFunc)    { r.mux.Put(pattern, h) }
func (r *Router) Delete(pattern string, h http.HandlerFunc) { r.mux.Delete(pattern, h) }

// ── Groups & Prefixes ────────────────────────────────────────────────────────

// Group creates an inline group sharing the router's middleware.
func (r *Router) Group(fn func(r *Router)) {
	r.mux.Group(func(mx chi.Router) {
		fn(&Router{mux: mx, portal: r.portal, log: r.log})
	})
}

// Prefix creates a sub-router mounted under pattern.
func (r *Router) Prefix(pattern string, fn func(r *Router)) {
	r.mux.Route(pattern, func(mx chi.Router) {
		fn(&Router{mux: mx, portal: r.portal, log: r.log})
	})
}

// Middleware adds one or more middleware to the router.
func (r *Router) Middleware(mw ...func(http.Handler) http.Handler) {
	r.mux.Use(mw...)
}

// Param extracts a URL parameter.
func Param(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// ── Diagnostics ──────────────────────────────────────────────────────────────

// components lists the components visible from the request's session
// container.
func (r *Router) components(w http.ResponseWriter, req *http.Request) {
	c, ok := ContainerFrom(req.Context())
	if !ok {
		c = r.portal
	}
	NewResponse(w).Success(c.Describe())
}

// ── Serve ────────────────────────────────────────────────────────────────────

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the underlying http.Handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
