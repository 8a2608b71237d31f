package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the Gateway matches exactly one of
// these with errors.Is.
var (
	ErrMissingScope = errors.New("scope is required")
	ErrInvalidKey   = errors.New("invalid key")
	ErrNotFound     = errors.New("not found")
	ErrBackendWrite = errors.New("backend write failed")
	ErrBackendRead  = errors.New("backend read failed")
)

var kinds = []error{ErrMissingScope, ErrInvalidKey, ErrNotFound, ErrBackendWrite, ErrBackendRead}

// Error is a classified Gateway failure.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error
	// Key is the storage key involved, when one had been composed.
	Key string
	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Key)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// KindOf returns the Err* sentinel that err is classified as, or nil if err
// did not come from the Gateway.
func KindOf(err error) error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
