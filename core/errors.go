package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when the requested resource does not exist.
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string {
	return err.Resource + " not found"
}

// AuthorizationError is returned when the caller lacks the permission required for an operation.
type AuthorizationError struct {
	Permission string
}

func NewAuthorizationError(perm string) error {
	return &AuthorizationError{Permission: perm}
}

func (err AuthorizationError) Error() string {
	if err.Permission == "" {
		return "permission denied"
	}
	return fmt.Sprintf("permission denied: %s required", err.Permission)
}

// ConstraintViolationError is the storage-agnostic form of a unique or foreign-key violation.
type ConstraintViolationError struct {
	Constraint string
	Field      string
	Message    string
}

func (err ConstraintViolationError) Error() string {
	return err.Message
}

// ConflictError is returned when a record was modified concurrently.
type ConflictError struct {
	Message string
}

func NewConflictError(msg string) error {
	return &ConflictError{Message: msg}
}

func (err ConflictError) Error() string {
	return err.Message
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// IsNotFound reports whether the cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}
