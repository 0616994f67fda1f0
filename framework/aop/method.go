package aop

import (
	"reflect"
)

// Method is one exported method of an implementation type. It is the subject
// of method matchers.
type Method struct {
	owner  reflect.Type
	method reflect.Method
}

// NewMethod describes method m declared on owner.
func NewMethod(owner reflect.Type, m reflect.Method) Method {
	return Method{owner: owner, method: m}
}

// Name returns the method name.
func (m Method) Name() string { return m.method.Name }

// DeclaringType returns the type whose method set contains the method.
func (m Method) DeclaringType() reflect.Type { return m.owner }

// Type returns the method's function type, receiver first.
func (m Method) Type() reflect.Type { return m.method.Type }

func (m Method) String() string {
	if m.owner == nil {
		return m.method.Name
	}
	return m.owner.String() + "." + m.method.Name
}

// MethodsOf lists the exported method set of t in the order reflect reports
// it (lexicographic).
func MethodsOf(t reflect.Type) []Method {
	if t == nil {
		return nil
	}
	out := make([]Method, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		out = append(out, NewMethod(t, t.Method(i)))
	}
	return out
}
