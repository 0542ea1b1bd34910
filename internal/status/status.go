// Package status defines the error taxonomy shared by the tensor, convert,
// backend and runtime packages, plus helpers to classify wrapped errors.
package status

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Code classifies a runtime failure.
type Code int

const (
	OK Code = iota
	NotFound
	IncompatibleBlob
	ShapeNotResolved
	UnsupportedPrecisionConversion
	AllocationFailed
	RequestBusy
	NotStarted
	ExecutionFailed
	InferCancelled
	InvalidArgument
	NetworkClosed
)

var codeNames = map[Code]string{
	OK:                             "ok",
	NotFound:                       "not found",
	IncompatibleBlob:               "incompatible blob",
	ShapeNotResolved:               "shape not resolved",
	UnsupportedPrecisionConversion: "unsupported precision conversion",
	AllocationFailed:               "allocation failed",
	RequestBusy:                    "request busy",
	NotStarted:                     "infer not started",
	ExecutionFailed:                "execution failed",
	InferCancelled:                 "infer cancelled",
	InvalidArgument:                "invalid argument",
	NetworkClosed:                  "network closed",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error carries a Code, the tensor name it refers to (if any) and an
// optional cause.
type Error struct {
	Code  Code
	Name  string
	msg   string
	cause error
}

func (e *Error) Error() string {
	s := e.Code.String()
	if e.Name != "" {
		s += " [" + e.Name + "]"
	}
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.cause }

// StatusCode lets the HTTP layer map runtime errors without importing this package's predicates.
func (e *Error) StatusCode() int { return HTTPStatus(e.Code) }

// Newf builds an error with the given code.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Named builds an error bound to a tensor name.
func Named(code Code, name, format string, args ...any) error {
	return &Error{Code: code, Name: name, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error. A nil err yields nil.
func Wrap(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, msg: msg, cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, OK for nil and
// ExecutionFailed for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ExecutionFailed
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	var se *Error
	for err != nil {
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.cause
	}
	return false
}

func IsNotFound(err error) bool         { return Is(err, NotFound) }
func IsIncompatibleBlob(err error) bool { return Is(err, IncompatibleBlob) }
func IsShapeNotResolved(err error) bool { return Is(err, ShapeNotResolved) }
func IsRequestBusy(err error) bool      { return Is(err, RequestBusy) }
func IsNotStarted(err error) bool       { return Is(err, NotStarted) }
func IsExecutionFailed(err error) bool  { return Is(err, ExecutionFailed) }
func IsAllocationFailed(err error) bool { return Is(err, AllocationFailed) }
func IsCancelled(err error) bool        { return Is(err, InferCancelled) }

// IsUnsupportedConversion reports a precision pair the converter cannot handle.
func IsUnsupportedConversion(err error) bool { return Is(err, UnsupportedPrecisionConversion) }

// HTTPStatus maps a code to the status returned by the HTTP API.
func HTTPStatus(c Code) int {
	switch c {
	case OK:
		return http.StatusOK
	case NotFound:
		return http.StatusNotFound
	case IncompatibleBlob, InvalidArgument, ShapeNotResolved:
		return http.StatusBadRequest
	case UnsupportedPrecisionConversion:
		return http.StatusUnprocessableEntity
	case RequestBusy, NotStarted:
		return http.StatusConflict
	case AllocationFailed:
		return http.StatusInsufficientStorage
	case InferCancelled:
		return http.StatusRequestTimeout
	case NetworkClosed:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
