// Package mvccerr defines the engine's error taxonomy: recoverable client
// errors returned from Connection commands, and invariant violations that
// indicate a caller or engine bug and are reported as panics.
package mvccerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConflictKind names which commit-time check aborted a transaction.
type ConflictKind string

const (
	WriteWrite ConflictKind = "write-write conflict"
	ReadWrite  ConflictKind = "read-write conflict"
)

// ConflictError is returned from Connection.Commit when commit-time
// analysis finds an overlapping committed transaction.
type ConflictError struct {
	Kind ConflictKind
}

func (e *ConflictError) Error() string {
	return string(e.Kind)
}

// NewConflict wraps a ConflictError with a stack trace.
func NewConflict(kind ConflictKind) error {
	return errors.WithStack(&ConflictError{Kind: kind})
}

// KeyNotFoundError is returned from get/delete when no version of the key
// is visible to the calling transaction.
type KeyNotFoundError struct {
	Op  string // "get" or "delete"
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("cannot %s key that does not exist", e.Op)
}

// NewKeyNotFound wraps a KeyNotFoundError with a stack trace.
func NewKeyNotFound(op, key string) error {
	return errors.WithStack(&KeyNotFoundError{Op: op, Key: key})
}

// InvariantError signals a caller or engine bug: a precondition the engine
// assumes always holds did not. Raised via Invariant, which panics.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

// Invariant panics with an *InvariantError carrying msg. Invariant
// violations are not recoverable client errors; callers are expected to
// let the process crash, though tests may recover() to assert on it.
func Invariant(msg string) {
	panic(errors.WithStack(&InvariantError{Msg: msg}))
}

// Assert panics via Invariant when cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		Invariant(msg)
	}
}
