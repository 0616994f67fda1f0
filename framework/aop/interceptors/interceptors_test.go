package interceptors_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/km-arc/go-kernel/framework/aop"
	"github.com/km-arc/go-kernel/framework/aop/interceptors"
)

type account struct{}

func (account) Withdraw(int) error { return nil }

func withdrawMethod() aop.Method {
	t := reflect.TypeFor[account]()
	m, _ := t.MethodByName("Withdraw")
	return aop.NewMethod(t, m)
}

func invoke(t *testing.T, i aop.Interceptor, real aop.RealMethod) (any, error) {
	t.Helper()
	return aop.NewChain(withdrawMethod(), i).Invoke(context.Background(), account{}, []any{10}, real)
}

func ok(_ context.Context, args []any) (any, error) { return args[0], nil }

func TestLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	i := interceptors.Logging(zap.New(core))

	out, err := invoke(t, i, ok)
	require.NoError(t, err)
	assert.Equal(t, 10, out)

	boom := errors.New("insufficient funds")
	_, err = invoke(t, i, func(context.Context, []any) (any, error) { return nil, boom })
	assert.Same(t, boom, err)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "call", entries[0].Message)
	assert.Equal(t, "interceptors_test.account.Withdraw", entries[0].ContextMap()["method"])
	assert.Equal(t, "call returned", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
	assert.Equal(t, "call failed", entries[3].Message)
}

func TestLogging_NilLogger(t *testing.T) {
	t.Parallel()

	_, err := invoke(t, interceptors.Logging(nil), ok)
	assert.NoError(t, err)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := interceptors.NewMethodMetrics(reg)
	require.NoError(t, err)

	_, err = invoke(t, m.Interceptor(), ok)
	require.NoError(t, err)
	_, err = invoke(t, m.Interceptor(), func(context.Context, []any) (any, error) { return nil, errors.New("x") })
	require.Error(t, err)

	typ := "interceptors_test.account"
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls().WithLabelValues(typ, "Withdraw", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls().WithLabelValues(typ, "Withdraw", "error")))

	again, err := interceptors.NewMethodMetrics(reg)
	require.NoError(t, err, "registering twice reuses the existing collectors")
	assert.Same(t, m.Calls(), again.Calls())
}

func TestTracing(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	i := interceptors.Tracing(tp)
	_, err := invoke(t, i, ok)
	require.NoError(t, err)
	_, err = invoke(t, i, func(context.Context, []any) (any, error) { return nil, errors.New("denied") })
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "interceptors_test.account.Withdraw", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "denied", spans[1].Status.Description)
}

func TestTracing_NestsLaterSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := invoke(t, interceptors.Tracing(tp), func(ctx context.Context, args []any) (any, error) {
		_, span := tp.Tracer("repo").Start(ctx, "query")
		span.End()
		return args[0], nil
	})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	query, call := spans[0], spans[1]
	assert.Equal(t, "query", query.Name)
	assert.Equal(t, call.SpanContext.SpanID(), query.Parent.SpanID())
	assert.Equal(t, call.SpanContext.TraceID(), query.SpanContext.TraceID())
}

func TestGuard(t *testing.T) {
	t.Parallel()

	forbidden := errors.New("forbidden")
	allow := true
	guard := interceptors.Guard(func(_ context.Context, inv *aop.Invocation) error {
		if !allow || inv.Args()[0].(int) > 100 {
			return forbidden
		}
		return nil
	})

	out, err := invoke(t, guard, ok)
	require.NoError(t, err)
	assert.Equal(t, 10, out)

	allow = false
	called := false
	_, err = invoke(t, guard, func(context.Context, []any) (any, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, forbidden)
	assert.False(t, called)
}
