package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindAuth         ErrorKind = "auth"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindInvalidState ErrorKind = "invalid_state"
	KindUpstream     ErrorKind = "upstream"
	KindPersistence  ErrorKind = "persistence"
)

// Error is the typed failure returned across service boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can test errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrAuth         = &Error{Kind: KindAuth}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrPersistence  = &Error{Kind: KindPersistence}
)

func ValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func AuthError(message string) error {
	return &Error{Kind: KindAuth, Message: message}
}

func ForbiddenError(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError always names the status the order is currently in.
func InvalidTransitionError(current OrderStatus, action string) error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("order cannot be %s in status %s", action, current),
	}
}

func InvalidPaymentStateError(current PaymentStatus, action string) error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("payment cannot be %s in payment status %s", action, current),
	}
}

func UpstreamError(message string, err error) error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

func PersistenceError(message string, err error) error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

// KindOf reports the kind of a typed error. Untyped errors are treated as
// persistence failures since they come from the store or the runtime.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}
