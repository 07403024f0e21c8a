package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of a user-facing operation.
type Kind string

const (
	KindLoad             Kind = "load_error"
	KindRebuild          Kind = "cache_rebuild_error"
	KindBadQuery         Kind = "bad_query"
	KindEmptyResult      Kind = "empty_result"
	KindComputation      Kind = "computation_error"
	KindModelUnavailable Kind = "model_unavailable"
	KindNoHistoricalData Kind = "no_historical_data"
	KindNotFound         Kind = "not_found"
)

// Error carries a Kind, a message safe to show to users, and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.EmptyResult("")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func Load(err error, format string, args ...any) error {
	return &Error{Kind: KindLoad, Message: fmt.Sprintf(format, args...), Err: err}
}

func Rebuild(err error, format string, args ...any) error {
	return &Error{Kind: KindRebuild, Message: fmt.Sprintf(format, args...), Err: err}
}

func BadQuery(format string, args ...any) error {
	return &Error{Kind: KindBadQuery, Message: fmt.Sprintf(format, args...)}
}

func EmptyResult(format string, args ...any) error {
	return &Error{Kind: KindEmptyResult, Message: fmt.Sprintf(format, args...)}
}

// Computation hides the cause from the user-facing message.
func Computation(err error) error {
	return &Error{Kind: KindComputation, Message: "an error occurred while computing the result", Err: err}
}

func ModelUnavailable(err error) error {
	return &Error{Kind: KindModelUnavailable, Message: "failure model is not available", Err: err}
}

func NoHistoricalData(part string) error {
	return &Error{Kind: KindNoHistoricalData, Message: fmt.Sprintf("no historical failure data for part '%s'", part)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage returns the message of the first *Error in err's chain.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an internal error occurred"
}
