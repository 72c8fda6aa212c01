package storage

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrDisposed        = errors.New("handle is disposed or was never registered")
	ErrNoData          = errors.New("no data has been written for handle")
	ErrShapeMismatch   = errors.New("value shape does not match registry entry")
	ErrDTypeMismatch   = errors.New("value dtype does not match registry entry")
	ErrLayoutMismatch  = errors.New("texture layout does not match requested representation")
	ErrReleasedTexture = errors.New("texture reference was released")
	ErrInputCount      = errors.New("operand count does not match program inputs")
)

// HandleError identifies the operation and handle an error surfaced on.
type HandleError struct {
	Op     string // Operation name (e.g., "write", "readSync", "dispose")
	Handle Handle
	Err    error
}

// Error implements the error interface.
func (e *HandleError) Error() string {
	return fmt.Sprintf("storage: %s: handle %v: %v", e.Op, e.Handle, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandleError) Unwrap() error {
	return e.Err
}

// opErr wraps err with the operation and handle it surfaced on.
func opErr(op string, h Handle, err error) error {
	return &HandleError{Op: op, Handle: h, Err: err}
}
