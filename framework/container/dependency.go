package container

import (
	"reflect"
)

// Dependency declares one constructor argument of a component. Arguments are
// looked up from the requesting container, so a component shared by several
// scopes may receive scope-specific dependencies.
//
//	container.Needs[*sql.DB]()                      // nearest component assignable to *sql.DB
//	container.Needs[Mailer]().Named("smtpMailer")   // the component registered as "smtpMailer"
//	container.Needs[*Cache]().AsOptional()          // nil when nothing is registered
//	container.NeedsAll[HealthCheck]()               // []HealthCheck across the hierarchy
type Dependency struct {
	// Type is the requested type, or the element type when All is set.
	Type reflect.Type
	// Name, when set, selects the component registered under that name key.
	Name string
	// Optional dependencies resolve to nil instead of failing.
	Optional bool
	// All collects every visible component assignable to Type.
	All bool
}

// Needs declares a dependency on the nearest component assignable to T.
func Needs[T any]() Dependency {
	return Dependency{Type: reflect.TypeFor[T]()}
}

// NeedsAll declares a dependency on every visible component assignable to T.
// The argument is a []T.
func NeedsAll[T any]() Dependency {
	return Dependency{Type: reflect.TypeFor[T](), All: true}
}

// NeedsNamed declares a dependency on the component registered as name,
// whatever its type.
func NeedsNamed(name string) Dependency {
	return Dependency{Name: name}
}

// Named narrows the dependency to the component registered under name.
func (d Dependency) Named(name string) Dependency {
	d.Name = name
	return d
}

// AsOptional marks the dependency as optional.
func (d Dependency) AsOptional() Dependency {
	d.Optional = true
	return d
}

// ParamType returns the constructor parameter type the dependency is passed as.
func (d Dependency) ParamType() reflect.Type {
	switch {
	case d.All && d.Type != nil:
		return reflect.SliceOf(d.Type)
	case d.Type != nil:
		return d.Type
	default:
		return reflect.TypeFor[any]()
	}
}

func (d Dependency) String() string {
	switch {
	case d.Name != "":
		return KeyString(d.Name)
	case d.All:
		return "[]" + KeyString(d.Type)
	default:
		return KeyString(d.Type)
	}
}
