package core

import "github.com/pkg/errors"

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

// NotFoundError is returned when a referenced object does not exist.
type NotFoundError struct {
	msg string
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{msg: msg}
}

func (err NotFoundError) Error() string { return err.msg }

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// PermissionError is returned when the acting user may not access an object.
type PermissionError struct {
	msg string
}

func NewPermissionError(msg string) error {
	return &PermissionError{msg: msg}
}

func (err PermissionError) Error() string { return err.msg }

// ExternalError wraps a failure of a third-party service (payment gateway, ...).
type ExternalError struct {
	Service string
	Err     error
}

func NewExternalError(service string, err error) error {
	return &ExternalError{Service: service, Err: err}
}

func (err ExternalError) Error() string {
	if err.Err == nil {
		return err.Service + ": failure"
	}
	return err.Service + ": " + err.Err.Error()
}

func (err ExternalError) Unwrap() error { return err.Err }

// PaymentError is returned when the gateway processed a payment but it cannot be accepted
// (declined, wrong amount or currency).
type PaymentError struct {
	Reason string
}

func NewPaymentError(reason string) error {
	return &PaymentError{Reason: reason}
}

func (err PaymentError) Error() string { return err.Reason }

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
