// Package apperr defines the error kinds surfaced by the service layer and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindUnauthorized
	KindInconsistent
	KindStoreFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindInconsistent:
		return "inconsistent"
	case KindStoreFailure:
		return "store-failure"
	default:
		return "unknown"
	}
}

// Error is an application error carrying a Kind and a client-facing detail.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input. The operation had no side effect.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing subject, device, therapist or user.
func NotFound(detail string) error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

// Conflict reports a duplicate registration.
func Conflict(detail string) error {
	return &Error{Kind: KindConflict, Detail: detail}
}

// Unauthorized reports a credential mismatch.
func Unauthorized(detail string) error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

// Inconsistent reports a stored document missing expected linkage fields.
func Inconsistent(format string, args ...interface{}) error {
	return &Error{Kind: KindInconsistent, Detail: fmt.Sprintf(format, args...)}
}

// Store wraps an I/O failure from the document or blob store. Errors that
// already carry a Kind are returned unchanged.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStoreFailure, Detail: op, Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not an application error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// Is reports whether err is an application error of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// Detail returns the client-facing message for err.
func Detail(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindStoreFailure && ae.Err != nil {
			return ae.Error()
		}
		return ae.Detail
	}
	return err.Error()
}

// HTTPStatus maps err onto an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
