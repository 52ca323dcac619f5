package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeIO                 ErrorType = "IO"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeAlreadyExists      ErrorType = "ALREADY_EXISTS"
	ErrorTypeMalformedStore     ErrorType = "MALFORMED_STORE"
	ErrorTypeCorruptDifference  ErrorType = "CORRUPT_DIFFERENCE"
	ErrorTypeUnknownVersion     ErrorType = "UNKNOWN_VERSION"
	ErrorTypeCannotDeleteRoot   ErrorType = "CANNOT_DELETE_ROOT"
	ErrorTypeUncommittedChanges ErrorType = "UNCOMMITTED_CHANGES"
	ErrorTypeEmptyName          ErrorType = "EMPTY_NAME"
	ErrorTypeValidation         ErrorType = "VALIDATION"
	ErrorTypeClosed             ErrorType = "CLOSED"
)

// Error is the typed error returned by the store, the engine and the scheduler.
// Two Errors match under errors.Is when their types are equal.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

var (
	ErrNotFound           = &Error{Type: ErrorTypeNotFound, Message: "not found"}
	ErrAlreadyExists      = &Error{Type: ErrorTypeAlreadyExists, Message: "already exists"}
	ErrIO                 = &Error{Type: ErrorTypeIO, Message: "i/o failure"}
	ErrMalformedStore     = &Error{Type: ErrorTypeMalformedStore, Message: "malformed store"}
	ErrCorruptDifference  = &Error{Type: ErrorTypeCorruptDifference, Message: "corrupt difference"}
	ErrUnknownVersion     = &Error{Type: ErrorTypeUnknownVersion, Message: "unknown version"}
	ErrCannotDeleteRoot   = &Error{Type: ErrorTypeCannotDeleteRoot, Message: "cannot delete the root version"}
	ErrUncommittedChanges = &Error{Type: ErrorTypeUncommittedChanges, Message: "tracked file has uncommitted changes"}
	ErrEmptyName          = &Error{Type: ErrorTypeEmptyName, Message: "version name cannot be empty"}
	ErrValidation         = &Error{Type: ErrorTypeValidation, Message: "validation failed"}
	ErrClosed             = &Error{Type: ErrorTypeClosed, Message: "closed"}
)

func IO(message string, err error) *Error {
	return &Error{Type: ErrorTypeIO, Message: message, Err: err}
}

func NotFound(message string, err error) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: message, Err: err}
}

func AlreadyExists(message string) *Error {
	return &Error{Type: ErrorTypeAlreadyExists, Message: message}
}

func MalformedStore(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeMalformedStore, Message: fmt.Sprintf(format, args...)}
}

func CorruptDifference(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeCorruptDifference, Message: fmt.Sprintf(format, args...)}
}

func UnknownVersion(id uint32) *Error {
	return &Error{Type: ErrorTypeUnknownVersion, Message: fmt.Sprintf("unknown version %d", id)}
}

func ValidationError(message string) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message}
}

// TypeOf returns the ErrorType carried by err, or "" for untyped errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeNotFound, ErrorTypeUnknownVersion:
		return http.StatusNotFound
	case ErrorTypeAlreadyExists, ErrorTypeUncommittedChanges:
		return http.StatusConflict
	case ErrorTypeEmptyName, ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeCannotDeleteRoot:
		return http.StatusUnprocessableEntity
	case ErrorTypeClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
