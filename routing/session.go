package routing

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/go-kernel/framework/container"
	"github.com/km-arc/go-kernel/framework/tenant"
)

type containerKey struct{}

// WithContainer returns a copy of ctx carrying c.
func WithContainer(ctx context.Context, c *container.Container) context.Context {
	return context.WithValue(ctx, containerKey{}, c)
}

// ContainerFrom returns the session container of the request carried by ctx.
func ContainerFrom(ctx context.Context) (*container.Container, bool) {
	c, ok := ctx.Value(containerKey{}).(*container.Container)
	return c, ok
}

// ErrNoSession is returned by Resolve outside SessionScope.
var ErrNoSession = errors.New("routing: request has no session container")

// Resolve resolves key from the request's session container. A nil key
// means the type key of T.
func Resolve[T any](r *http.Request, key container.Key) (T, error) {
	c, ok := ContainerFrom(r.Context())
	if !ok {
		var zero T
		return zero, ErrNoSession
	}
	return container.Resolve[T](c, key)
}

// SessionScope runs every request in a fresh child of parent named
// "session-<uuid>". PerContainer components resolved during the request are
// private to it. The child is started when parent is running, and disposed
// once the handler returns.
func SessionScope(parent *container.Container, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := parent.NewChild("session-" + uuid.NewString())
			ctx := r.Context()
			defer func() {
				if err := session.Dispose(context.WithoutCancel(ctx)); err != nil {
					log.Warn("session dispose failed", zap.String("container", session.Name()), zap.Error(err))
				}
			}()

			if parent.Running() {
				if err := session.Start(ctx); err != nil {
					log.Error("session start failed", zap.String("container", session.Name()), zap.Error(err))
					NewResponse(w).ServerError()
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithContainer(ctx, session)))
		})
	}
}

// Tenant stores the tenant named by header in the request context, where
// tenant.ContextLookup finds it.
func Tenant(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if name := strings.TrimSpace(r.Header.Get(header)); name != "" {
				r = r.WithContext(tenant.WithTenant(r.Context(), tenant.Tenant{Name: name}))
			}
			next.ServeHTTP(w, r)
		})
	}
}
