// Package interceptors holds cross-cutting interceptors that can be bound to
// any component through the container's RegisterBinding.
package interceptors

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/km-arc/go-kernel/framework/aop"
)

// ── Logging ───────────────────────────────────────────────────────────────────

// Logging logs every intercepted call at debug level and failures at warn.
func Logging(log *zap.Logger) aop.Interceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return aop.InterceptorFunc(func(inv *aop.Invocation) (any, error) {
		method := inv.Method().String()
		log.Debug("call", zap.String("method", method), zap.Int("args", len(inv.Args())))

		start := time.Now()
		out, err := inv.Proceed()
		elapsed := time.Since(start)

		if err != nil {
			log.Warn("call failed", zap.String("method", method), zap.Duration("duration", elapsed), zap.Error(err))
			return out, err
		}
		log.Debug("call returned", zap.String("method", method), zap.Duration("duration", elapsed))
		return out, err
	})
}

// ── Metrics ───────────────────────────────────────────────────────────────────

// MethodMetrics counts and times intercepted calls.
type MethodMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMethodMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMethodMetrics(reg prometheus.Registerer) (*MethodMetrics, error) {
	m := &MethodMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "method_calls_total",
			Help:      "Intercepted component method calls.",
		}, []string{"type", "method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kernel",
			Name:      "method_duration_seconds",
			Help:      "Duration of intercepted component method calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "method"}),
	}
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.calls); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		m.calls = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		m.duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return m, nil
}

// Calls exposes the call counter, mostly for tests.
func (m *MethodMetrics) Calls() *prometheus.CounterVec { return m.calls }

// Interceptor returns the interceptor recording into m.
func (m *MethodMetrics) Interceptor() aop.Interceptor {
	return aop.InterceptorFunc(func(inv *aop.Invocation) (any, error) {
		method := inv.Method()
		typ := "unknown"
		if t := method.DeclaringType(); t != nil {
			typ = t.String()
		}

		start := time.Now()
		out, err := inv.Proceed()
		m.duration.WithLabelValues(typ, method.Name()).Observe(time.Since(start).Seconds())

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.calls.WithLabelValues(typ, method.Name(), outcome).Inc()
		return out, err
	})
}

// ── Tracing ───────────────────────────────────────────────────────────────────

const tracerName = "github.com/km-arc/go-kernel/framework/aop/interceptors"

// Tracing starts one span per intercepted call, as a child of the span in the
// call's context. Later interceptors and the real method run under the new
// span.
func Tracing(tp trace.TracerProvider) aop.Interceptor {
	tracer := tp.Tracer(tracerName)
	return aop.InterceptorFunc(func(inv *aop.Invocation) (any, error) {
		method := inv.Method()
		ctx, span := tracer.Start(inv.Context(), method.String(),
			trace.WithAttributes(
				attribute.String("kernel.method", method.Name()),
				attribute.Int("kernel.args", len(inv.Args())),
			))
		defer span.End()
		inv.SetContext(ctx)

		out, err := inv.Proceed()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	})
}

// ── Guard ─────────────────────────────────────────────────────────────────────

// Check decides whether a call may proceed.
type Check func(ctx context.Context, inv *aop.Invocation) error

// Guard runs check before the call and returns its error without proceeding
// when it fails.
func Guard(check Check) aop.Interceptor {
	return aop.InterceptorFunc(func(inv *aop.Invocation) (any, error) {
		if err := check(inv.Context(), inv); err != nil {
			return nil, err
		}
		return inv.Proceed()
	})
}
