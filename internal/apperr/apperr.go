// Package apperr defines the error taxonomy shared by the booking engine and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that need to react to it.
type Kind string

const (
	Validation  Kind = "validation"
	Conflict    Kind = "conflict"
	NotFound    Kind = "not_found"
	Forbidden   Kind = "forbidden"
	Expired     Kind = "expired"
	Gateway     Kind = "gateway"
	Unsettled   Kind = "unsettled"
	Consistency Kind = "consistency"
)

// Error is an error with a Kind and a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error { return newf(Validation, format, args...) }
func Conflictf(format string, args ...any) *Error   { return newf(Conflict, format, args...) }
func NotFoundf(format string, args ...any) *Error   { return newf(NotFound, format, args...) }
func Forbiddenf(format string, args ...any) *Error  { return newf(Forbidden, format, args...) }
func Expiredf(format string, args ...any) *Error    { return newf(Expired, format, args...) }
func Unsettledf(format string, args ...any) *Error  { return newf(Unsettled, format, args...) }

// Wrap attaches a kind and message to an underlying cause.
func Wrap(k Kind, err error, msg string) *Error {
	return &Error{Kind: k, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Consistency
// for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Consistency
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(k Kind) int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Expired:
		return http.StatusGone
	case Gateway:
		return http.StatusBadGateway
	case Unsettled:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the message safe to show a caller. Internal and gateway
// failures are reduced to a generic text when detailed is false.
func Public(err error, detailed bool) string {
	var e *Error
	if !errors.As(err, &e) {
		if detailed {
			return err.Error()
		}
		return "internal error, please retry"
	}
	switch e.Kind {
	case Consistency, Gateway:
		if !detailed {
			if e.Kind == Gateway {
				return "payment provider unavailable, please retry"
			}
			return "internal error, please retry"
		}
		return e.Error()
	default:
		return e.Message
	}
}
