package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	kerrors "github.com/km-arc/go-kernel/framework/errors"
)

func TestUnsatisfiedDependencyError(t *testing.T) {
	t.Parallel()

	err := &kerrors.UnsatisfiedDependencyError{Key: "db", Component: "repo"}
	assert.EqualError(t, err, "component repo: unsatisfied dependency db")
	assert.ErrorIs(t, err, kerrors.ErrUnsatisfiedDependency)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), &kerrors.UnsatisfiedDependencyError{Key: "db"})
	assert.NotErrorIs(t, err, &kerrors.UnsatisfiedDependencyError{Key: "cache"})

	top := &kerrors.UnsatisfiedDependencyError{Key: "db"}
	assert.EqualError(t, top, "no component registered for db")
}

func TestCyclicDependencyError(t *testing.T) {
	t.Parallel()

	err := &kerrors.CyclicDependencyError{Path: []string{"a", "b", "a"}}
	assert.EqualError(t, err, "cyclic dependency: a -> b -> a")
	assert.ErrorIs(t, err, kerrors.ErrCyclicDependency)
}

func TestInstantiationError_PreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := kerrors.NewInstantiationError("*main.Service", cause)

	assert.ErrorIs(t, err, kerrors.ErrInstantiation)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestIllegalStateSentinels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"started", kerrors.IllegalState("start", "container already started"), kerrors.ErrContainerStarted},
		{"not started", kerrors.IllegalState("stop", "container not started"), kerrors.ErrContainerNotStarted},
		{"proceed", kerrors.ErrProceedTwice, kerrors.ErrProceedTwice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.want)
			assert.ErrorIs(t, tc.err, kerrors.ErrIllegalState)
		})
	}

	assert.NotErrorIs(t, kerrors.ErrContainerStarted, kerrors.ErrContainerNotStarted)
}
