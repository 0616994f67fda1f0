// Package errors defines the error taxonomy shared by the component container
// and the interception engine.
//
// Every error is surfaced synchronously to the immediate caller. Nothing in the
// kernel retries, swallows or logs these on the caller's behalf.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ── Sentinels ─────────────────────────────────────────────────────────────────

// Sentinel values matched with errors.Is against the typed errors below.
var (
	ErrUnsatisfiedDependency = errors.New("unsatisfied dependency")
	ErrCyclicDependency      = errors.New("cyclic dependency")
	ErrInstantiation         = errors.New("instantiation failed")
	ErrIllegalState          = errors.New("illegal state")

	ErrContainerStarted    = &IllegalStateError{Op: "start", Reason: "container already started"}
	ErrContainerNotStarted = &IllegalStateError{Op: "stop", Reason: "container not started"}
	ErrParentNotStarted    = &IllegalStateError{Op: "start", Reason: "parent container not started"}
	ErrContainerDisposed   = &IllegalStateError{Op: "resolve", Reason: "container disposed"}
	ErrProceedTwice        = &IllegalStateError{Op: "proceed", Reason: "interceptor chain proceeded twice"}
)

// ── UnsatisfiedDependencyError ────────────────────────────────────────────────

// UnsatisfiedDependencyError is returned when a required key or type has no
// resolvable adapter anywhere in the visible hierarchy.
type UnsatisfiedDependencyError struct {
	// Key is the missing dependency key, formatted.
	Key string
	// Component is the component whose construction needed Key. Empty for a
	// top-level lookup.
	Component string
}

func (e *UnsatisfiedDependencyError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("no component registered for %s", e.Key)
	}
	return fmt.Sprintf("component %s: unsatisfied dependency %s", e.Component, e.Key)
}

// Is matches ErrUnsatisfiedDependency and other UnsatisfiedDependencyErrors
// with the same (non-empty) key.
func (e *UnsatisfiedDependencyError) Is(target error) bool {
	if target == ErrUnsatisfiedDependency {
		return true
	}
	t, ok := target.(*UnsatisfiedDependencyError)
	if !ok {
		return false
	}
	return t.Key == "" || t.Key == e.Key
}

// ── CyclicDependencyError ─────────────────────────────────────────────────────

// CyclicDependencyError is returned when resolution revisits a component that
// is already being constructed in the same call chain.
type CyclicDependencyError struct {
	// Path lists the component keys from the first occurrence of the repeated
	// component to its second occurrence.
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ")
}

func (e *CyclicDependencyError) Is(target error) bool {
	if target == ErrCyclicDependency {
		return true
	}
	_, ok := target.(*CyclicDependencyError)
	return ok
}

// ── InstantiationError ────────────────────────────────────────────────────────

// InstantiationError wraps a failed constructor invocation: the constructor
// returned an error, panicked, or was called with the wrong arguments.
type InstantiationError struct {
	Type  string
	Cause error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("cannot instantiate %s: %v", e.Type, e.Cause)
}

func (e *InstantiationError) Unwrap() error { return e.Cause }

func (e *InstantiationError) Is(target error) bool {
	return target == ErrInstantiation
}

// NewInstantiationError builds an InstantiationError for typ.
func NewInstantiationError(typ string, cause error) *InstantiationError {
	return &InstantiationError{Type: typ, Cause: cause}
}

// ── IllegalStateError ─────────────────────────────────────────────────────────

// IllegalStateError reports lifecycle misuse: double start, stop before
// start, or proceeding an interceptor chain twice.
type IllegalStateError struct {
	Op     string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state on %s: %s", e.Op, e.Reason)
}

// Is matches ErrIllegalState and any IllegalStateError with the same op and
// reason, so the package-level sentinels work with errors.Is.
func (e *IllegalStateError) Is(target error) bool {
	if target == ErrIllegalState {
		return true
	}
	t, ok := target.(*IllegalStateError)
	if !ok {
		return false
	}
	return e.Op == t.Op && e.Reason == t.Reason
}

// IllegalState builds an IllegalStateError.
func IllegalState(op, reason string) *IllegalStateError {
	return &IllegalStateError{Op: op, Reason: reason}
}
