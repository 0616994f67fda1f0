// Package matcher provides composable predicates used to select which
// component types and methods an interceptor binding applies to.
//
// Matchers are immutable and side-effect free, so a proxy factory may cache
// the outcome of a match for the lifetime of a type.
//
//	classes := matcher.SubtypeOfType[Repository]().And(matcher.Not(matcher.OnlyOf[*cachedRepo]()))
//	methods := matcher.Named[aop.Method]("Save").Or(matcher.Named[aop.Method]("Delete"))
package matcher

import (
	"reflect"
)

// Matcher returns true or false for a given subject.
type Matcher[T any] interface {
	// Matches reports whether subject satisfies the predicate.
	Matches(subject T) bool

	// And returns a matcher accepting only what both this matcher and other
	// accept. This matcher is evaluated first; other is skipped when it fails.
	And(other Matcher[T]) Matcher[T]

	// Or returns a matcher accepting what either this matcher or other
	// accepts. This matcher is evaluated first; other is skipped when it passes.
	Or(other Matcher[T]) Matcher[T]
}

// ── Base ──────────────────────────────────────────────────────────────────────

// funcMatcher adapts a predicate function to Matcher.
type funcMatcher[T any] struct {
	desc string
	fn   func(T) bool
}

func (m funcMatcher[T]) Matches(subject T) bool { return m.fn(subject) }

func (m funcMatcher[T]) And(other Matcher[T]) Matcher[T] { return and[T](m, other) }

func (m funcMatcher[T]) Or(other Matcher[T]) Matcher[T] { return or[T](m, other) }

func (m funcMatcher[T]) String() string { return m.desc }

func and[T any](left, right Matcher[T]) Matcher[T] {
	return funcMatcher[T]{
		desc: "and(" + describe(left) + ", " + describe(right) + ")",
		fn: func(subject T) bool {
			return left.Matches(subject) && right.Matches(subject)
		},
	}
}

func or[T any](left, right Matcher[T]) Matcher[T] {
	return funcMatcher[T]{
		desc: "or(" + describe(left) + ", " + describe(right) + ")",
		fn: func(subject T) bool {
			return left.Matches(subject) || right.Matches(subject)
		},
	}
}

func describe(m any) string {
	if s, ok := m.(interface{ String() string }); ok {
		return s.String()
	}
	return "func"
}

// ── Primitives ────────────────────────────────────────────────────────────────

// Func adapts an arbitrary predicate. The predicate must be pure.
func Func[T any](fn func(T) bool) Matcher[T] {
	return funcMatcher[T]{desc: "func", fn: fn}
}

// Any matches every subject.
func Any[T any]() Matcher[T] {
	return funcMatcher[T]{desc: "any()", fn: func(T) bool { return true }}
}

// Not negates m.
func Not[T any](m Matcher[T]) Matcher[T] {
	return funcMatcher[T]{
		desc: "not(" + describe(m) + ")",
		fn:   func(subject T) bool { return !m.Matches(subject) },
	}
}

// Only matches exactly the type t.
func Only(t reflect.Type) Matcher[reflect.Type] {
	return funcMatcher[reflect.Type]{
		desc: "only(" + typeName(t) + ")",
		fn:   func(subject reflect.Type) bool { return subject == t },
	}
}

// OnlyOf is Only for the type parameter T.
//
//	matcher.OnlyOf[*UserService]()
func OnlyOf[T any]() Matcher[reflect.Type] {
	return Only(reflect.TypeFor[T]())
}

// SubtypeOf matches t and every type assignable to t. For an interface t this
// is every type implementing it.
func SubtypeOf(t reflect.Type) Matcher[reflect.Type] {
	return funcMatcher[reflect.Type]{
		desc: "subtypeOf(" + typeName(t) + ")",
		fn: func(subject reflect.Type) bool {
			return subject != nil && t != nil && subject.AssignableTo(t)
		},
	}
}

// SubtypeOfType is SubtypeOf for the type parameter T.
//
//	matcher.SubtypeOfType[io.Closer]()
func SubtypeOfType[T any]() Matcher[reflect.Type] {
	return SubtypeOf(reflect.TypeFor[T]())
}

// Named matches subjects whose Name() equals name. Both reflect.Type and
// aop.Method satisfy the constraint.
func Named[T interface{ Name() string }](name string) Matcher[T] {
	return funcMatcher[T]{
		desc: "named(" + name + ")",
		fn:   func(subject T) bool { return subject.Name() == name },
	}
}

// Declaring lifts a type matcher to subjects that report their declaring
// type, typically methods: the result matches methods declared on a type m
// accepts.
func Declaring[T interface{ DeclaringType() reflect.Type }](m Matcher[reflect.Type]) Matcher[T] {
	return funcMatcher[T]{
		desc: "declaring(" + describe(m) + ")",
		fn:   func(subject T) bool { return m.Matches(subject.DeclaringType()) },
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
