package container

import (
	"go.uber.org/multierr"

	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

// ── Verify ────────────────────────────────────────────────────────────────────

// Verify checks, without constructing anything, that every component
// registered in c can be resolved from c: each required dependency has a
// provider and no dependency chain comes back to a component already on it.
// All problems are reported, combined with multierr.
//
// Dependencies are checked where they are resolved: a singleton's from its
// owning container, any other component's from the requesting container.
// A singleton in root that needs a component registered only in a child
// fails here even when verifying the child.
//
//	if err := portal.Verify(); err != nil {
//	    log.Fatal("invalid component graph", zap.Error(err))
//	}
func (c *Container) Verify() error {
	c.mu.RLock()
	order := append([]*adapter(nil), c.order...)
	c.mu.RUnlock()

	v := &verifier{done: make(map[*adapter]bool)}
	for _, a := range order {
		v.visit(c, a, nil)
	}
	return v.err
}

type verifier struct {
	done map[*adapter]bool
	err  error
}

func (v *verifier) visit(from *Container, a *adapter, path []*adapter) {
	if v.done[a] || (a.scope == Singleton && a.value.Load() != nil) {
		return
	}
	res := &resolution{path: path}
	if err := res.enter(a); err != nil {
		v.err = multierr.Append(v.err, err)
		return
	}

	deps := from
	if a.scope == Singleton {
		deps = a.owner
	}
	for _, d := range a.deps {
		switch {
		case d.Name != "":
			if dep := deps.lookupKey(d.Name); dep != nil {
				v.visit(deps, dep, res.path)
			} else if !d.Optional {
				v.unsatisfied(a, d)
			}
		case d.All:
			for _, dep := range deps.lookupAllOfType(d.Type) {
				v.visit(deps, dep, res.path)
			}
		default:
			if dep := deps.lookupType(d.Type); dep != nil {
				v.visit(deps, dep, res.path)
			} else if !d.Optional {
				v.unsatisfied(a, d)
			}
		}
	}
	for _, t := range a.plugins {
		for _, dep := range deps.lookupAllOfType(t) {
			if dep != a {
				v.visit(deps, dep, res.path)
			}
		}
	}
	v.done[a] = true
}

func (v *verifier) unsatisfied(a *adapter, d Dependency) {
	v.err = multierr.Append(v.err, &kerrors.UnsatisfiedDependencyError{Key: d.String(), Component: a.String()})
}

// ── Describe ──────────────────────────────────────────────────────────────────

// ComponentInfo describes one adapter visible from a container.
type ComponentInfo struct {
	Key            string   `json:"key"`
	Scope          string   `json:"scope"`
	Implementation string   `json:"implementation,omitempty"`
	Container      string   `json:"container"`
	Level          int      `json:"level"`
	Dependencies   []string `json:"dependencies,omitempty"`
	Intercepted    []string `json:"intercepted,omitempty"`
	Materialized   bool     `json:"materialized"`
	Shadowed       bool     `json:"shadowed,omitempty"`
}

// Describe lists the adapters visible from c, nearest container first, each
// container in registration order. Adapters hidden by a nearer registration
// of the same key are included with Shadowed set.
//
// Dependencies are listed as declared. A singleton's are resolved from its
// Container, every other component's from the container asking for it.
func (c *Container) Describe() []ComponentInfo {
	var out []ComponentInfo
	seen := make(map[Key]bool)
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		order := append([]*adapter(nil), cur.order...)
		cur.mu.RUnlock()

		for _, a := range order {
			info := ComponentInfo{
				Key:       KeyString(a.key),
				Scope:     a.scope.String(),
				Container: cur.name,
				Level:     cur.level,
				Shadowed:  seen[a.key],
			}
			if a.impl != nil {
				info.Implementation = a.impl.String()
				if a.wrap != nil {
					info.Intercepted = cur.proxies.Intercepted(a.impl)
				}
			}
			for _, d := range a.deps {
				info.Dependencies = append(info.Dependencies, d.String())
			}
			switch a.scope {
			case Singleton:
				info.Materialized = a.value.Load() != nil
			case PerContainer:
				_, info.Materialized = c.scoped.Load(a)
			}
			out = append(out, info)
		}
		for _, a := range order {
			seen[a.key] = true
		}
	}
	return out
}
