package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

// ── Lifecycle hooks ───────────────────────────────────────────────────────────

// Startable components are started when their container starts.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable components are stopped when their container stops, in reverse
// start order.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Disposable components release their resources when their container is
// disposed. Instances registered with RegisterInstance are left to their
// owner.
type Disposable interface {
	Dispose(ctx context.Context) error
}

var startableType = reflect.TypeFor[Startable]()

// ── Start / Stop ──────────────────────────────────────────────────────────────

// Start materializes eager singletons and singletons that may implement
// Startable, in registration order, then starts every Startable singleton of c. The
// parent must be running. If a component fails to start, the components
// already started are stopped and the error is returned.
func (c *Container) Start(ctx context.Context) error {
	c.lc.Lock()
	defer c.lc.Unlock()

	switch {
	case c.disposed.Load():
		return kerrors.IllegalState("start", "container disposed")
	case c.running.Load():
		return kerrors.ErrContainerStarted
	case c.parent != nil && !c.parent.running.Load():
		return kerrors.ErrParentNotStarted
	}

	c.mu.RLock()
	order := slices.Clone(c.order)
	c.mu.RUnlock()

	for _, a := range order {
		if a.scope != Singleton || !(a.eager || a.mayImplement(startableType)) {
			continue
		}
		if _, err := a.resolve(&resolution{}, c); err != nil {
			return fmt.Errorf("start %s: %w", c.name, err)
		}
	}

	started := make([]*materialized, 0)
	for _, m := range c.startable(order) {
		s := m.raw.(Startable)
		if err := s.Start(ctx); err != nil {
			rollback := c.stopAll(ctx, started)
			c.log.Warn("container start failed",
				logContainer(c), logKey(m.adapter.key), zap.Error(err))
			return multierr.Append(fmt.Errorf("start %s: %w", KeyString(m.adapter.key), err), rollback)
		}
		started = append(started, m)
	}

	c.started = started
	c.running.Store(true)
	c.log.Info("container started", logContainer(c), zap.Int("components", len(started)))
	return nil
}

// startable returns the materialized singletons of c implementing Startable,
// ordered by registration.
func (c *Container) startable(order []*adapter) []*materialized {
	var out []*materialized
	for _, a := range order {
		if a.scope != Singleton {
			continue
		}
		m := a.value.Load()
		if m == nil {
			continue
		}
		if _, ok := m.raw.(Startable); ok {
			out = append(out, m)
		}
	}
	return out
}

// Stop stops running children, newest first, then the components started by
// c in reverse start order. Every component is stopped even when some fail;
// the failures are combined.
func (c *Container) Stop(ctx context.Context) error {
	c.lc.Lock()
	defer c.lc.Unlock()

	if !c.running.Load() {
		return kerrors.ErrContainerNotStarted
	}
	return c.stop(ctx)
}

// stop must be called with lc held.
func (c *Container) stop(ctx context.Context) error {
	var err error
	children := c.liveChildren()
	for i := len(children) - 1; i >= 0; i-- {
		child := children[i]
		if !child.running.Load() {
			continue
		}
		if cerr := child.Stop(ctx); cerr != nil && !isNotStarted(cerr) {
			err = multierr.Append(err, cerr)
		}
	}

	err = multierr.Append(err, c.stopAll(ctx, c.started))
	c.started = nil
	c.running.Store(false)
	c.log.Info("container stopped", logContainer(c))
	return err
}

func (c *Container) stopAll(ctx context.Context, started []*materialized) error {
	var err error
	for i := len(started) - 1; i >= 0; i-- {
		m := started[i]
		s, ok := m.raw.(Stoppable)
		if !ok {
			continue
		}
		if serr := s.Stop(ctx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("stop %s: %w", KeyString(m.adapter.key), serr))
		}
	}
	return err
}

// ── Dispose ───────────────────────────────────────────────────────────────────

// Dispose stops c if it is running, disposes its children, releases every
// Disposable instance c constructed in reverse construction order and
// detaches c from its parent. Lookups on a disposed container fail with
// ErrContainerDisposed. Dispose is idempotent.
func (c *Container) Dispose(ctx context.Context) error {
	c.lc.Lock()
	defer c.lc.Unlock()

	if c.disposed.Load() {
		return nil
	}

	var err error
	if c.running.Load() {
		err = c.stop(ctx)
	}

	children := c.liveChildren()
	for i := len(children) - 1; i >= 0; i-- {
		err = multierr.Append(err, children[i].Dispose(ctx))
	}

	c.disposed.Store(true)

	c.mu.Lock()
	live := c.live
	c.live = nil
	c.mu.Unlock()

	for i := len(live) - 1; i >= 0; i-- {
		m := live[i]
		if m.fixed {
			continue
		}
		d, ok := m.raw.(Disposable)
		if !ok {
			continue
		}
		if derr := d.Dispose(ctx); derr != nil {
			err = multierr.Append(err, fmt.Errorf("dispose %s: %w", KeyString(m.adapter.key), derr))
		}
	}
	c.scoped.Clear()

	if c.parent != nil {
		c.parent.detach(c)
	}
	c.log.Debug("container disposed", logContainer(c))
	return err
}

func isNotStarted(err error) bool {
	return errors.Is(err, kerrors.ErrContainerNotStarted)
}
