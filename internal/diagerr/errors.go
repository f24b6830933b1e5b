// Package diagerr provides errors that remember where they were created.
//
// An *Error carries a kind name (what a .NET developer would call the
// exception type), a message, an optional cause, and the call stack captured
// at construction. mlog.Exception prints all of these when flattening a chain.
//
//	if err := post(req); err != nil {
//	    return diagerr.Wrap(err, diagerr.KindHTTP, "post log")
//	}
package diagerr

import (
	"fmt"
	"runtime"
	"strings"
)

// Kinds used across the module.
const (
	KindUpload      = "UploadError"
	KindCompression = "CompressionError"
	KindIO          = "IOError"
	KindHTTP        = "HTTPError"
	KindPanic       = "PanicError"
)

// maxFrames caps how much of the stack is captured.
const maxFrames = 32

// Error is an error with a kind, an optional cause, and a captured stack.
type Error struct {
	kind    string
	message string
	cause   error
	pcs     []uintptr
}

// New creates an Error of the given kind without a cause.
func New(kind, message string) *Error {
	return newError(kind, message, nil)
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind, format string, args ...any) *Error {
	return newError(kind, fmt.Sprintf(format, args...), nil)
}

// Wrap annotates cause with a kind and message. A nil cause yields nil.
func Wrap(cause error, kind, message string) error {
	if cause == nil {
		return nil
	}
	return newError(kind, message, cause)
}

func newError(kind, message string, cause error) *Error {
	pcs := make([]uintptr, maxFrames)
	// Skip runtime.Callers, newError, and the exported constructor.
	n := runtime.Callers(3, pcs)
	return &Error{
		kind:    kind,
		message: message,
		cause:   cause,
		pcs:     pcs[:n],
	}
}

// Error returns the message followed by the cause, if any.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// ErrorKind returns the kind given at construction.
func (e *Error) ErrorKind() string {
	return e.kind
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// StackTrace renders the captured stack, one "at function (file:line)"
// entry per frame, innermost first.
func (e *Error) StackTrace() []string {
	if len(e.pcs) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(e.pcs)
	var lines []string
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			lines = append(lines, fmt.Sprintf("   at %s (%s:%d)", f.Function, f.File, f.Line))
		}
		if !more {
			break
		}
	}
	return lines
}
