package lurch

import (
	"errors"
	"fmt"

	crdberrors "github.com/cockroachdb/errors"
)

var (
	// ErrDisposed is returned by every operation on a table that has been closed.
	ErrDisposed = errors.New("lurch: collection disposed")

	// ErrViewDisposed is returned by operations on a closed snapshot, or on a
	// snapshot whose tree has been closed.
	ErrViewDisposed = errors.New("lurch: view disposed")

	// ErrNotFound is returned when a key is not present.
	ErrNotFound = errors.New("lurch: not found")

	// ErrNoSuchItem is returned by extremal and neighbour queries that have no answer,
	// e.g. FindMin on an empty tree or Successor of the maximum.
	ErrNoSuchItem = errors.New("lurch: no such item")

	// ErrInvalidArgument is returned for argument and configuration errors.
	ErrInvalidArgument = errors.New("lurch: invalid argument")

	// ErrNotSorted is returned by AddSorted when the input is not strictly increasing.
	ErrNotSorted = fmt.Errorf("%w: argument not sorted", ErrInvalidArgument)

	// ErrKeyExists is returned by Add when the key is already present.
	ErrKeyExists = fmt.Errorf("%w: key already exists", ErrInvalidArgument)

	// ErrUnsupported is returned when an operation does not apply to the receiver,
	// e.g. Dequeue on an unordered table or IndexOf on a snapshot.
	ErrUnsupported = errors.New("lurch: unsupported operation")

	// ErrConcurrentModification is yielded by live-tree iterators when the tree
	// was modified after the iterator was created.
	ErrConcurrentModification = errors.New("lurch: collection was modified during enumeration")

	// ErrCorrupted marks internal consistency violations. Only the checkers
	// (Table.Verify, Tree.Check) return it; elsewhere it travels in a panic,
	// see Corruption.
	ErrCorrupted = errors.New("lurch: internal data structure corrupted")
)

// IndexOutOfRangeError indicates a rank or position outside [0, Count).
//
// It unwraps to ErrInvalidArgument.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("lurch: index %d out of range [0, %d)", e.Index, e.Count)
}

func (e *IndexOutOfRangeError) Unwrap() error { return ErrInvalidArgument }

// Corruption builds the value a collection panics with when it detects a
// broken chain, order, free-list or balance invariant. Continuing after such a
// violation risks silent data loss, so callers are expected to let it crash.
//
//	panic(lurch.Corruption("order link %d already marked", idx))
//
// The returned error carries a stack trace and satisfies errors.Is(err, ErrCorrupted).
func Corruption(format string, args ...any) error {
	return crdberrors.WithAssertionFailure(crdberrors.Wrapf(ErrCorrupted, format, args...))
}

// IsCorruption reports whether v (typically a recovered panic value) is a corruption error.
func IsCorruption(v any) bool {
	err, ok := v.(error)
	return ok && errors.Is(err, ErrCorrupted)
}
