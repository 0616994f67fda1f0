package container

import (
	"fmt"
	"reflect"
)

// ── Keys ──────────────────────────────────────────────────────────────────────

// Key identifies one binding inside a single container. A key is either a
// type token (reflect.Type) or a name (string). A child container may reuse a
// key registered by an ancestor, shadowing it.
type Key any

// TypeKey returns the type token for T.
//
//	c.Register(container.TypeKey[Mailer](), ...)
func TypeKey[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// NameKey returns a name key. It exists for symmetry with TypeKey.
func NameKey(name string) Key { return name }

// KeyString formats a key for errors and diagnostics.
func KeyString(k Key) string {
	switch v := k.(type) {
	case reflect.Type:
		return v.String()
	case string:
		return fmt.Sprintf("%q", v)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func validKey(k Key) error {
	switch v := k.(type) {
	case reflect.Type:
		if v == nil {
			return fmt.Errorf("container: nil type key")
		}
		return nil
	case string:
		if v == "" {
			return fmt.Errorf("container: empty name key")
		}
		return nil
	default:
		return fmt.Errorf("container: key must be a reflect.Type or a string, got %T", k)
	}
}

// ── Scopes ────────────────────────────────────────────────────────────────────

// Scope governs instance reuse for a component.
type Scope int

const (
	// Singleton components are constructed once per adapter.
	Singleton Scope = iota
	// PerLookup components are constructed on every resolution.
	PerLookup
	// PerContainer components are constructed once per requesting container,
	// which gives per-request or per-tenant instances when the hierarchy has
	// one container per request or tenant.
	PerContainer
)

func (s Scope) String() string {
	switch s {
	case Singleton:
		return "singleton"
	case PerLookup:
		return "per-lookup"
	case PerContainer:
		return "per-container"
	default:
		return "unknown"
	}
}

// ParseScope parses the String form of a scope. An empty string is Singleton.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "singleton":
		return Singleton, nil
	case "per-lookup", "prototype", "transient":
		return PerLookup, nil
	case "per-container", "scoped":
		return PerContainer, nil
	}
	return 0, fmt.Errorf("container: unknown scope %q", s)
}
