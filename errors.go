package resgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/resgo/cachefile"
	"github.com/hupe1980/resgo/internal/handle"
	"github.com/hupe1980/resgo/resource"
	"github.com/hupe1980/resgo/table"
)

var (
	// ErrOwnerNotFound is returned when an owner has no registered table.
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrOutOfHandles is returned when the handle space is exhausted.
	ErrOutOfHandles = errors.New("out of handles")

	// ErrConstructionFailed wraps a failing or panicking constructor.
	ErrConstructionFailed = errors.New("construction failed")

	// ErrInvalidOwner is returned for the empty owner or for operations the
	// public owner does not allow.
	ErrInvalidOwner = errors.New("invalid owner")

	// ErrAlreadyExists is returned when a handle or owner is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned when a handle is not present.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine closed")
)

// OpError describes a failed engine operation.
//
// The translated cause can be accessed via errors.Unwrap.
type OpError struct {
	Op    string
	Owner Owner
	ID    resource.ID
	Err   error
}

func (e *OpError) Error() string {
	if e.ID == resource.InvalidID {
		return fmt.Sprintf("resgo: %s (owner %q): %v", e.Op, e.Owner, e.Err)
	}
	return fmt.Sprintf("resgo: %s %d (owner %q): %v", e.Op, e.ID, e.Owner, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, owner Owner, id resource.ID, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Owner: owner, ID: id, Err: translateError(err)}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already public.
	for _, pub := range []error{ErrOwnerNotFound, ErrOutOfHandles, ErrConstructionFailed,
		ErrInvalidOwner, ErrAlreadyExists, ErrNotFound, ErrClosed} {
		if errors.Is(err, pub) {
			return err
		}
	}

	// Capacity.
	if errors.Is(err, handle.ErrOutOfHandles) {
		return fmt.Errorf("%w: %w", ErrOutOfHandles, err)
	}

	// Construction.
	if errors.Is(err, table.ErrConstruction) {
		return fmt.Errorf("%w: %w", ErrConstructionFailed, err)
	}

	// Occupancy.
	if errors.Is(err, table.ErrAlreadyExists) {
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	if errors.Is(err, table.ErrNotFound) || errors.Is(err, cachefile.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
