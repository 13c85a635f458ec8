package provider

import (
	"errors"
	"fmt"
)

// Class is the canonical failure category an adapter must map its native
// errors onto. The executor only ever looks at the class.
type Class string

const (
	ClassQuotaExceeded         Class = "quota_exceeded"
	ClassTransient             Class = "transient"
	ClassAuth                  Class = "auth"
	ClassUnsupportedCapability Class = "unsupported_capability"
)

var (
	ErrQuotaExceeded         = errors.New("provider quota exceeded")
	ErrTransient             = errors.New("transient provider failure")
	ErrAuth                  = errors.New("provider rejected credential or request")
	ErrUnsupportedCapability = errors.New("provider does not support capability")
)

func (c Class) sentinel() error {
	switch c {
	case ClassQuotaExceeded:
		return ErrQuotaExceeded
	case ClassTransient:
		return ErrTransient
	case ClassUnsupportedCapability:
		return ErrUnsupportedCapability
	default:
		return ErrAuth
	}
}

// Error is a classified adapter failure. It matches its class sentinel with
// errors.Is and keeps the native error for operator logs.
type Error struct {
	Class    Class
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class.sentinel()}
	}
	return []error{e.Class.sentinel(), e.Err}
}

// NewError builds a classified error for provider id.
func NewError(class Class, id string, err error) *Error {
	return &Error{Class: class, Provider: id, Err: err}
}

func QuotaExceeded(id string, err error) *Error { return NewError(ClassQuotaExceeded, id, err) }
func Transient(id string, err error) *Error     { return NewError(ClassTransient, id, err) }
func Auth(id string, err error) *Error          { return NewError(ClassAuth, id, err) }

func Unsupported(id string, c Capability) *Error {
	return NewError(ClassUnsupportedCapability, id, fmt.Errorf("capability %s", c))
}

// ClassOf extracts the class of err. Errors that were never classified are
// reported as auth/fatal so they are surfaced to operators instead of retried.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassAuth
}
