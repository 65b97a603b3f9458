package services

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindDependencyFailure  Kind = "DEPENDENCY_FAILURE"
	KindInternal           Kind = "INTERNAL"
)

// Error is the failure type every service returns to the HTTP layer.
// Data carries extra fields for the client, e.g. the measured distance on a geofence miss.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func ErrValidation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }
func ErrNotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func ErrConflict(msg string) *Error   { return &Error{Kind: KindConflict, Message: msg} }
func ErrPrecondition(msg string, data map[string]interface{}) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: msg, Data: data}
}
func ErrDependency(msg string, err error) *Error {
	return &Error{Kind: KindDependencyFailure, Message: msg, Err: err}
}
func ErrInternal(err error) *Error { return &Error{Kind: KindInternal, Message: "服务器错误", Err: err} }

// Messages clients match on.
const (
	MsgWindowClosed     = "check-in window closed"
	MsgAlreadyCheckedIn = "already checked in"
	MsgOutOfRange       = "not within check-in range"
	MsgAlreadyTriggered = "already triggered today"
)

// KindOf classifies err; anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindPreconditionFailed:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
