package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"time"
)

// Error is the structured error carried across component boundaries.
// The cause chain is preserved for errors.Is/As; the context map holds
// human-readable detail for diagnostics surfaces.
type Error struct {
	Code      Code
	Message   string
	Cause     error
	Context   map[string]string
	Stack     []Frame
	Timestamp time.Time
}

// Frame represents a stack frame
type Frame struct {
	Function string
	File     string
	Line     int
}

// New creates an error with a compulsory code and an optional cause.
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
		Stack:     captureStackTrace(),
	}
}

// Newf creates an error without a cause from a format string.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// AddContext attaches a key/value pair and returns the error for chaining.
func (e *Error) AddContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err (or anything in its chain) carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		if typed, ok := err.(*Error); ok && typed.Code.Equals(code) {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// CodeOf returns the code of the outermost *Error in the chain,
// or CommonInternal when err is not a structured error.
func CodeOf(err error) Code {
	for err != nil {
		if typed, ok := err.(*Error); ok {
			return typed.Code
		}
		err = stderrors.Unwrap(err)
	}
	return CommonInternal
}

func captureStackTrace() []Frame {
	var frames []Frame
	for i := 2; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		frames = append(frames, Frame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}
	return frames
}
