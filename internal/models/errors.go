package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store and the engine packages.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidEdge     = errors.New("invalid dependency edge")
	ErrDuplicateEdge   = errors.New("dependency already exists")
	ErrTransientStore  = errors.New("task store unavailable")
	ErrMalformedStatus = errors.New("malformed task status")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
)

// StoreError wraps a database failure. It matches ErrTransientStore.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransientStore) match any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrTransientStore
}

// EdgeError describes why a dependency edge was rejected.
type EdgeError struct {
	Edge TaskDependency
	Msg  string
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %s", ErrInvalidEdge, e.Edge.BlockerTaskID, e.Edge.BlockedTaskID, e.Msg)
}

func (e *EdgeError) Unwrap() error { return ErrInvalidEdge }

// ValueError reports an unknown enumeration value supplied by a caller.
type ValueError struct {
	Kind  error
	Value string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s: %q", e.Kind, e.Value)
}

func (e *ValueError) Unwrap() error { return e.Kind }

// NotFoundf wraps ErrNotFound with a description of what was missing.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
