// Package errors provides the coded errors procflow returns when an event
// log cannot be turned into a graph, or a navigation or decouple request
// names something the graph does not have.
//
// Input (E1xx) and data (E2xx) errors mean the log itself is wrong and
// retrying will not help. Exploration errors (E3xx) come from the session
// layer; system errors (E4xx) from configuration and remote sources.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class across the CLI and the loaders.
type Code string

const (
	// Reading a log: the file, its format or its columns.
	CodeFileNotFound      Code = "E101"
	CodeUnsupportedFormat Code = "E102"
	CodeInvalidFormat     Code = "E103"
	CodeMissingColumn     Code = "E104"
	CodeInvalidTimestamp  Code = "E105"

	// An event that cannot join a case timeline.
	CodeMissingField Code = "E201"
	CodeParseFailed  Code = "E202"

	// Navigation and decoupling.
	CodeUnknownNode    Code = "E301"
	CodeUnknownVariant Code = "E302"
	CodeInvalidLayer   Code = "E303"

	// Config files and S3/SQL sources.
	CodeConfig      Code = "E401"
	CodeSourceFetch Code = "E402"

	CodeUnknown Code = "E999"
)

// Class names the group a code belongs to: "input", "data",
// "exploration", "system" or "unknown".
func (c Code) Class() string {
	switch {
	case strings.HasPrefix(string(c), "E1"):
		return "input"
	case strings.HasPrefix(string(c), "E2"):
		return "data"
	case strings.HasPrefix(string(c), "E3"):
		return "exploration"
	case strings.HasPrefix(string(c), "E4"):
		return "system"
	default:
		return "unknown"
	}
}

// ProcflowError carries a code, a short message and the row, path or node
// it concerns in Context.
type ProcflowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]any
	StackTrace []Frame
}

// Frame is one captured caller.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error renders "[code] message (k=v, ...): cause" with context keys sorted.
func (e *ProcflowError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Context[k])
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ProcflowError) Unwrap() error {
	return e.Cause
}

// Is matches any ProcflowError with the same code, so
// errors.Is(err, errors.New(CodeUnknownNode, "")) works.
func (e *ProcflowError) Is(target error) bool {
	if t, ok := target.(*ProcflowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext records key=value on e and returns e for chaining.
func (e *ProcflowError) WithContext(key string, value any) *ProcflowError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func New(code Code, message string) *ProcflowError {
	return &ProcflowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap returns nil when err is nil.
func Wrap(err error, code Code, message string) *ProcflowError {
	if err == nil {
		return nil
	}
	return &ProcflowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *ProcflowError {
	if err == nil {
		return nil
	}
	return &ProcflowError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// captureStack keeps at most ten frames above the constructor.
func captureStack(skip int) []Frame {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	var frames []Frame
	cf := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack renders the captured frames for --verbose output.
func (e *ProcflowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		fmt.Fprintf(&sb, "  at %s\n    %s:%d\n", f.Function, f.File, f.Line)
	}
	return sb.String()
}

// FileNotFound reports a log path or --config file that does not exist.
func FileNotFound(path string) *ProcflowError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// UnsupportedFormat is returned when no decoder handles a log.
func UnsupportedFormat(path string) *ProcflowError {
	return New(CodeUnsupportedFormat, "unsupported event log format").WithContext("path", path)
}

// MissingColumn reports a tabular log without a case, activity or
// timestamp column, listing the header it did find.
func MissingColumn(column string, available []string) *ProcflowError {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// MissingField reports an event without a case id or activity.
// Row is the zero-based position of the event in its input.
func MissingField(field string, row int) *ProcflowError {
	return New(CodeMissingField, "event is missing a required field").
		WithContext("field", field).
		WithContext("row", row)
}

// InvalidTimestamp reports an event whose time cannot be placed on its
// case timeline.
func InvalidTimestamp(value string, row int) *ProcflowError {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value).
		WithContext("row", row)
}

// ParseError wraps a decoder failure at row of a log in format.
func ParseError(format string, row int, err error) *ProcflowError {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("row", row)
}

// GetCode returns the code of the first ProcflowError in err's chain,
// or CodeUnknown.
func GetCode(err error) Code {
	var pe *ProcflowError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var pe *ProcflowError
	for err != nil {
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

// IsDataError reports whether err is an input or data malformation.
// Callers should show "no data" instead of retrying these.
func IsDataError(err error) bool {
	switch GetCode(err).Class() {
	case "input", "data":
		return true
	}
	return false
}
