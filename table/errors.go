package table

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/resgo/resource"
)

var (
	// ErrAlreadyExists is returned by Strict tables for occupied handles.
	ErrAlreadyExists = errors.New("handle already occupied")
	// ErrNotFound is returned when a handle has no occupant.
	ErrNotFound = errors.New("handle not found")
	// ErrConstruction wraps constructor failures and panics.
	ErrConstruction = errors.New("resource construction failed")
	// ErrNilResource is returned by Strict tables for nil resources.
	ErrNilResource = errors.New("nil resource")
	// ErrInvalidHandle is returned for resource.InvalidID.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrNotCopyable is returned by Copy for resources without Clone.
	ErrNotCopyable = errors.New("resource is not copyable")
	// ErrNotCacheable is returned by Evict for resources without Cache.
	ErrNotCacheable = errors.New("resource is not cacheable")
	// ErrNotLoaded is returned by Evict for resources that are not loaded.
	ErrNotLoaded = errors.New("resource is not loaded")
	// ErrNotCached is returned by Restore for resources that are not cached.
	ErrNotCached = errors.New("resource is not cached")
	// ErrInvalidResource is returned when operating on an Invalid resource.
	ErrInvalidResource = errors.New("resource is invalid")
	// ErrNoCache is returned by Evict and Restore without a cache pool.
	ErrNoCache = errors.New("table has no cache pool")
	// ErrPanicked wraps a panic raised by a resource method.
	ErrPanicked = errors.New("resource panicked")
)

// BatchError reports the per-handle failures of a batch operation.
type BatchError struct {
	Op        string
	Succeeded int
	Failures  map[resource.ID]error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d failed, %d succeeded", e.Op, len(e.Failures), e.Succeeded)
}

// Unwrap returns the failures in handle order.
func (e *BatchError) Unwrap() []error {
	ids := e.Handles()
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, e.Failures[id])
	}
	return errs
}

// Handles returns the failed handles in ascending order.
func (e *BatchError) Handles() []resource.ID {
	ids := make([]resource.ID, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *BatchError) add(id resource.ID, err error) {
	if e.Failures == nil {
		e.Failures = make(map[resource.ID]error)
	}
	e.Failures[id] = err
}

// safeCall runs fn and turns a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn()
}
