package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorKindTransient    ErrorKind = "transient"
	ErrorKindUnauthorized ErrorKind = "unauthorized"
	ErrorKindConflict     ErrorKind = "conflict"
	ErrorKindNotFound     ErrorKind = "not_found"
	ErrorKindRejected     ErrorKind = "rejected"
)

// StoreError is returned for every Booking Store failure. Message is safe to show to the traveler.
type StoreError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(kind ErrorKind, message string, err error) *StoreError {
	return &StoreError{Kind: kind, Message: message, Err: err}
}

// StoreErrorKind returns the kind of a wrapped StoreError, or transient for anything else.
func StoreErrorKind(err error) ErrorKind {
	var target *StoreError
	if errors.As(err, &target) {
		return target.Kind
	}
	return ErrorKindTransient
}

func IsUnauthorized(err error) bool { return isKind(err, ErrorKindUnauthorized) }

func IsConflict(err error) bool { return isKind(err, ErrorKindConflict) }

func IsNotFound(err error) bool { return isKind(err, ErrorKindNotFound) }

func IsRejected(err error) bool { return isKind(err, ErrorKindRejected) }

func IsTransient(err error) bool { return isKind(err, ErrorKindTransient) }

func isKind(err error, kind ErrorKind) bool {
	var target *StoreError
	return errors.As(err, &target) && target.Kind == kind
}
