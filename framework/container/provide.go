package container

import (
	"fmt"
	"reflect"
)

// ── Typed registration ────────────────────────────────────────────────────────

// Provide registers a constructor without dependencies. A nil key registers
// the component under TypeKey[T]().
//
//	container.Provide(c, nil, func() (*Clock, error) { return &Clock{}, nil })
func Provide[T any](c *Container, key Key, fn func() (T, error), opts ...Option) error {
	return register[T](c, key, func([]any) (any, error) {
		return fn()
	}, nil, opts)
}

// Provide1 registers a constructor taking one dependency, looked up by the
// type of A unless WithDependencies says otherwise.
//
//	container.Provide1(c, nil, func(db *Database) (*Orders, error) {
//	    return &Orders{db: db}, nil
//	})
func Provide1[T, A any](c *Container, key Key, fn func(A) (T, error), opts ...Option) error {
	return register[T](c, key, func(args []any) (any, error) {
		return fn(arg[A](args, 0))
	}, []Dependency{need[A]()}, opts)
}

// Provide2 is Provide1 with two dependencies.
func Provide2[T, A, B any](c *Container, key Key, fn func(A, B) (T, error), opts ...Option) error {
	return register[T](c, key, func(args []any) (any, error) {
		return fn(arg[A](args, 0), arg[B](args, 1))
	}, []Dependency{need[A](), need[B]()}, opts)
}

// Provide3 is Provide1 with three dependencies.
func Provide3[T, A, B, C any](c *Container, key Key, fn func(A, B, C) (T, error), opts ...Option) error {
	return register[T](c, key, func(args []any) (any, error) {
		return fn(arg[A](args, 0), arg[B](args, 1), arg[C](args, 2))
	}, []Dependency{need[A](), need[B](), need[C]()}, opts)
}

// ProvideInstance registers instance under key, or under TypeKey[T]() when
// key is nil. The implementation type is T rather than the dynamic type.
func ProvideInstance[T any](c *Container, key Key, instance T) error {
	if key == nil {
		key = TypeKey[T]()
	}
	return c.registerInstance(key, instance, reflect.TypeFor[T]())
}

func register[T any](c *Container, key Key, ctor Constructor, deps []Dependency, opts []Option) error {
	if key == nil {
		key = TypeKey[T]()
	}
	defaults := []Option{
		WithImplementation(reflect.TypeFor[T]()),
		WithDependencies(deps...),
	}
	return c.Register(key, ctor, append(defaults, append(opts, withArity(len(deps)))...)...)
}

// withArity makes Register reject dependency lists that do not match the
// typed constructor.
func withArity(n int) Option {
	return func(a *adapter) { a.arity = n }
}

// need declares a slice-of-interface parameter as a collect-all dependency on
// its element type and anything else as a single dependency.
func need[A any]() Dependency {
	t := reflect.TypeFor[A]()
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Interface {
		return Dependency{Type: t.Elem(), All: true}
	}
	return Dependency{Type: t}
}

func arg[A any](args []any, i int) A {
	v, _ := args[i].(A)
	return v
}

// ── Typed lookup ──────────────────────────────────────────────────────────────

// Resolve resolves the component registered under key, or under TypeKey[T]()
// when key is nil, and asserts it to T.
//
//	orders, err := container.Resolve[*Orders](c, nil)
//	mailer, err := container.Resolve[Mailer](c, "smtpMailer")
func Resolve[T any](c *Container, key Key) (T, error) {
	if key == nil {
		key = TypeKey[T]()
	}
	v, err := c.Get(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return assert[T](key, v)
}

// ResolveOfType resolves the nearest component assignable to T.
func ResolveOfType[T any](c *Container) (T, error) {
	t := TypeKey[T]()
	v, err := c.GetOfType(t)
	if err != nil {
		var zero T
		return zero, err
	}
	return assert[T](t, v)
}

// ResolveAll resolves every component assignable to T visible from c.
func ResolveAll[T any](c *Container) ([]T, error) {
	t := TypeKey[T]()
	found, err := c.GetAllOfType(t)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(found))
	for _, v := range found {
		typed, err := assert[T](t, v)
		if err != nil {
			return nil, err
		}
		out = append(out, typed)
	}
	return out, nil
}

// MustResolve is Resolve that panics on failure. Use it in bootstrap code
// where a missing component is a programming error.
func MustResolve[T any](c *Container, key Key) T {
	v, err := Resolve[T](c, key)
	if err != nil {
		panic(fmt.Sprintf("container: MustResolve[%s]: %v", TypeKey[T](), err))
	}
	return v
}

func assert[T any](key Key, v any) (T, error) {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("container: %s resolved to %T, want %s", KeyString(key), v, TypeKey[T]())
	}
	return typed, nil
}
