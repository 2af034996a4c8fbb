// Package apperr holds the error taxonomy shared by repositories, services and the
// HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown token, questionnaire, response or client.
	ErrNotFound = errors.New("not found")
	// ErrExpired signals that a link's expiry has elapsed.
	ErrExpired = errors.New("link expired")
	// ErrAlreadyConsumed signals a second submission against a used link.
	ErrAlreadyConsumed = errors.New("link already consumed")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrTransientStore is matched by every *TransientStoreError.
	ErrTransientStore = errors.New("store unavailable")
)

// ValidationError reports a malformed token or payload field.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransientStoreError wraps a storage or catalog failure. Callers further up are
// expected to retry; nothing in this module does.
type TransientStoreError struct {
	Op  string
	Err error
}

// Transient wraps err as a TransientStoreError for op. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientStoreError
	if errors.As(err, &te) {
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

func (e *TransientStoreError) Is(target error) bool {
	return target == ErrTransientStore
}
