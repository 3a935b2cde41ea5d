package data

import (
	"errors"
	"fmt"
	"sync"
)

// Standard errors returned by every storage backend.
var (
	ErrInvalidPath = errors.New("unifs: invalid path detected")
	ErrInvalid     = errors.New("unifs: invalid argument")

	// File operation errors
	ErrNotExist          = errors.New("unifs: file does not exist")
	ErrExist             = errors.New("unifs: file already exists")
	ErrIsDirectory       = errors.New("unifs: is a directory")
	ErrNotDirectory      = errors.New("unifs: not a directory")
	ErrPermission        = errors.New("unifs: permission denied")
	ErrDirectoryNotEmpty = errors.New("unifs: directory not empty")

	// Backend errors
	ErrUnsupported = errors.New("unifs: operation unsupported by backend")
	ErrTransport   = errors.New("unifs: backend transport failure")
	ErrOpenFailed  = errors.New("unifs: backend initialization failed")

	// Upload and rename errors
	ErrPersistFailed = errors.New("unifs: upload persist failed")
	ErrPartialRename = errors.New("unifs: rename partially applied")

	// I/O errors
	ErrClosed = errors.New("unifs: already closed")
)

// PathError records the operation and resolved key that caused err.
type PathError struct {
	Op  string
	Key string
	Err error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s '%s': %v", e.Op, e.Key, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func NewPathError(op, key string, err error) error {
	if err == nil {
		return nil
	}

	return &PathError{Op: op, Key: key, Err: err}
}

func NotExist(op, key string) error {
	return &PathError{Op: op, Key: key, Err: ErrNotExist}
}

func Unsupported(op, key, reason string) error {
	return &PathError{Op: op, Key: key, Err: fmt.Errorf("%w: %s", ErrUnsupported, reason)}
}

// Transport wraps a native client failure. Errors that already carry a
// PathError are returned unchanged.
func Transport(op, key string, err error) error {
	if err == nil {
		return nil
	}

	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}

	return &PathError{Op: op, Key: key, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
}

// PersistFailed marks err as the failure of an asynchronous upload task.
func PersistFailed(key string, err error) error {
	if err == nil || errors.Is(err, ErrPersistFailed) {
		return err
	}

	return &PathError{Op: "persist", Key: key, Err: fmt.Errorf("%w: %w", ErrPersistFailed, err)}
}

// RenameError is returned by non-atomic renames. Copied reports whether the
// destination was written before the failure; only then does the error
// match ErrPartialRename.
type RenameError struct {
	From   string
	To     string
	Copied bool
	Err    error
}

func (e *RenameError) Error() string {
	if e.Copied {
		return fmt.Sprintf("rename '%s' -> '%s': destination written but source kept: %v", e.From, e.To, e.Err)
	}

	return fmt.Sprintf("rename '%s' -> '%s': %v", e.From, e.To, e.Err)
}

func (e *RenameError) Unwrap() []error {
	if e.Copied {
		return []error{ErrPartialRename, e.Err}
	}

	return []error{e.Err}
}

// Errors collects failures from concurrent operations.
type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.errors)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
