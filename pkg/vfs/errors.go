package vfs

import (
	"errors"
	"fmt"
)

// Error is a domain error raised by the namespace engine or a content
// provider.
//
// Adapters translate the Code into whatever return convention their
// kernel protocol expects (errno values for FUSE).
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the namespace path related to the error (if known)
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// Is lets errors.Is match an *Error against its bare ErrorCode:
//
//	errors.Is(err, vfs.ErrNotFound)
func (e *Error) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.Code
}

// ErrorCode represents the category of an Error.
//
// ErrorCode itself implements error so codes can be used as sentinels.
type ErrorCode int

const (
	// ErrNotFound indicates a path segment or name has no matching entry
	ErrNotFound ErrorCode = iota + 1

	// ErrNotADirectory indicates an intermediate path segment, or the target
	// of a directory-only operation, is a file
	ErrNotADirectory

	// ErrIsADirectory indicates a file-only operation was attempted on a directory
	ErrIsADirectory

	// ErrBadHandle indicates a handle does not resolve to a live entry
	ErrBadHandle

	// ErrNotImplemented indicates no table in the fallback chain implements
	// the requested operation
	ErrNotImplemented

	// ErrOutOfSpace indicates content allocation failed during write/truncate
	ErrOutOfSpace

	// ErrNameCollision indicates an insertion targets a name already present
	ErrNameCollision

	// ErrInvalidArgument indicates malformed input (bad name, relative path,
	// negative offset)
	ErrInvalidArgument

	// ErrReadOnly indicates a write-class operation on a read-only node or mount
	ErrReadOnly

	// ErrPermissionDenied indicates a capability check refused the caller
	ErrPermissionDenied
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:         "not found",
	ErrNotADirectory:    "not a directory",
	ErrIsADirectory:     "is a directory",
	ErrBadHandle:        "bad handle",
	ErrNotImplemented:   "not implemented",
	ErrOutOfSpace:       "out of space",
	ErrNameCollision:    "name collision",
	ErrInvalidArgument:  "invalid argument",
	ErrReadOnly:         "read-only",
	ErrPermissionDenied: "permission denied",
}

// String returns the human readable category name.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", int(c))
}

// Error implements the error interface.
func (c ErrorCode) Error() string {
	return c.String()
}

// Errorf builds an *Error with a formatted message.
func Errorf(code ErrorCode, path string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
	}
}

func newError(code ErrorCode, path string) *Error {
	return &Error{Code: code, Message: code.String(), Path: path}
}

// CodeOf extracts the ErrorCode carried by err, looking through wrapping.
func CodeOf(err error) (ErrorCode, bool) {
	if err == nil {
		return 0, false
	}

	var vErr *Error
	if errors.As(err, &vErr) {
		return vErr.Code, true
	}

	var code ErrorCode
	if errors.As(err, &code) {
		return code, true
	}

	return 0, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
