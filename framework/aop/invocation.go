package aop

import (
	"context"

	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

// Interceptor wraps a method call. It receives the invocation and either
// proceeds to the rest of the chain or returns without proceeding.
type Interceptor interface {
	Invoke(inv *Invocation) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(inv *Invocation) (any, error)

func (f InterceptorFunc) Invoke(inv *Invocation) (any, error) { return f(inv) }

// RealMethod invokes the intercepted method body with the (possibly
// replaced) context and arguments.
type RealMethod func(ctx context.Context, args []any) (any, error)

// Chain is the ordered list of interceptors composed for one method.
type Chain struct {
	method       Method
	interceptors []Interceptor
}

// NewChain composes interceptors for method, outermost first.
func NewChain(method Method, interceptors ...Interceptor) *Chain {
	cp := make([]Interceptor, len(interceptors))
	copy(cp, interceptors)
	return &Chain{method: method, interceptors: cp}
}

// Method returns the intercepted method.
func (c *Chain) Method() Method { return c.method }

// Len returns the number of interceptors in the chain.
func (c *Chain) Len() int { return len(c.interceptors) }

// Invoke runs the chain for one call. The first interceptor sees the call
// first; the real method runs once every interceptor has proceeded.
func (c *Chain) Invoke(ctx context.Context, target any, args []any, real RealMethod) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	call := &call{ctx: ctx, chain: c, target: target, args: args, real: real}
	return call.at(0)
}

// call is the state shared by every frame of one chain invocation.
type call struct {
	ctx    context.Context
	chain  *Chain
	target any
	args   []any
	real   RealMethod
}

func (c *call) at(index int) (any, error) {
	if index == len(c.chain.interceptors) {
		return c.real(c.ctx, c.args)
	}
	return c.chain.interceptors[index].Invoke(&Invocation{call: c, index: index})
}

// Invocation is the view one interceptor has of the current call. Each
// interceptor gets its own Invocation bound to its position in the chain.
//
// Proceed may be called at most once per Invocation: a second call returns
// errors.ErrProceedTwice without running the rest of the chain again.
type Invocation struct {
	call      *call
	index     int
	proceeded bool
}

// Context returns the context of the call, as last set by an interceptor
// further up the chain.
func (inv *Invocation) Context() context.Context { return inv.call.ctx }

// SetContext replaces the context passed down the chain and to the real
// method.
func (inv *Invocation) SetContext(ctx context.Context) {
	if ctx != nil {
		inv.call.ctx = ctx
	}
}

// Method returns the intercepted method.
func (inv *Invocation) Method() Method { return inv.call.chain.method }

// Target returns the real instance the call is made on.
func (inv *Invocation) Target() any { return inv.call.target }

// Args returns the current arguments. Interceptors further down the chain and
// the real method see replacements made through SetArgs.
func (inv *Invocation) Args() []any { return inv.call.args }

// SetArgs replaces the arguments passed down the chain.
func (inv *Invocation) SetArgs(args ...any) { inv.call.args = args }

// Proceed runs the next interceptor, or the real method when this is the
// last interceptor, and returns its result unchanged.
func (inv *Invocation) Proceed() (any, error) {
	if inv.proceeded {
		return nil, kerrors.ErrProceedTwice
	}
	inv.proceeded = true
	return inv.call.at(inv.index + 1)
}
