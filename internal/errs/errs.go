// Package errs defines the structured, per-request recoverable errors returned
// by the engine and mapped onto transport status codes by the gateway.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies an error.
type Code uint8

const (
	CodeInternalCrypto Code = iota
	CodeNotFound
	CodeTypeMismatch
	CodeInvalidArgument
	CodeUnsupportedOperation
	CodeSerialization

	numCodes
)

var codeNames = [numCodes]string{
	CodeInternalCrypto:       "INTERNAL_CRYPTO",
	CodeNotFound:             "NOT_FOUND",
	CodeTypeMismatch:         "TYPE_MISMATCH",
	CodeInvalidArgument:      "INVALID_ARGUMENT",
	CodeUnsupportedOperation: "UNSUPPORTED_OPERATION",
	CodeSerialization:        "SERIALIZATION",
}

func (c Code) String() string {
	if c >= numCodes {
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
	return codeNames[c]
}

func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Code) UnmarshalText(text []byte) error {
	name := strings.ToUpper(string(text))
	for i, n := range codeNames {
		if n == name {
			*c = Code(i)
			return nil
		}
	}
	return fmt.Errorf("unknown error code %q", text)
}

// Error is a classified error. Two *Error values match under errors.Is when
// the target carries only a code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(e.Code.String(), "_", " "))
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrTypeMismatch         = &Error{Code: CodeTypeMismatch}
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument}
	ErrUnsupportedOperation = &Error{Code: CodeUnsupportedOperation}
	ErrSerialization        = &Error{Code: CodeSerialization}
	ErrInternalCrypto       = &Error{Code: CodeInternalCrypto}
)

// NotFound reports a missing object of the given kind.
func NotFound(kind, handle string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", kind, handle)}
}

func TypeMismatch(expected, actual string) *Error {
	return &Error{Code: CodeTypeMismatch, Message: fmt.Sprintf("type mismatch: expected %s, got %s", expected, actual)}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func Unsupported(operation, kind string) *Error {
	return &Error{Code: CodeUnsupportedOperation, Message: fmt.Sprintf("operation %s is not supported on %s operands", operation, kind)}
}

func Serialization(detail string, cause error) *Error {
	return &Error{Code: CodeSerialization, Message: detail, Err: cause}
}

func InternalCrypto(detail string, cause error) *Error {
	return &Error{Code: CodeInternalCrypto, Message: detail, Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain. Unclassified
// errors are reported as CodeInternalCrypto.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalCrypto
}
