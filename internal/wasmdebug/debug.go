// Package wasmdebug builds the wasm-level stack trace attached to an error
// recovered from a panic raised by the interpreter (traps, resource
// failures, or Go-level bugs). This is the interpreter's only error-
// reporting surface: there is no structured logger in the hot path.
package wasmdebug

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero-interp-core/api"
)

// FuncName returns a human-readable, dot-delimited function identifier used
// in stack traces, matching the format documented on api.FunctionDefinition.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	if funcName == "" {
		funcName = "$" + strconv.FormatUint(uint64(funcIdx), 10)
	}
	return moduleName + "." + funcName
}

func signature(funcName string, paramTypes, resultTypes []api.ValueType) string {
	var sb strings.Builder
	sb.WriteString(funcName)
	sb.WriteByte('(')
	for i, t := range paramTypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(api.ValueTypeName(t))
	}
	sb.WriteByte(')')
	switch len(resultTypes) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(api.ValueTypeName(resultTypes[0]))
	default:
		sb.WriteString(" (")
		for i, t := range resultTypes {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(api.ValueTypeName(t))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// ErrorBuilder accumulates frames (innermost first) while a panic unwinds
// through nested callNativeFunc/callGoFunc invocations, then renders them
// into a single error with a wasm stack trace appended.
type ErrorBuilder interface {
	// AddFrame records one call frame. Called once per frame, innermost
	// first, as moduleEngine.Call's deferred recover unwinds ce.frames.
	AddFrame(funcName string, paramTypes, resultTypes []api.ValueType)
	// FromRecovered turns a recover()'d value into an error wrapping it,
	// with the accumulated frames rendered as a trailing stack trace.
	FromRecovered(recovered interface{}) error
}

type errorBuilder struct {
	frames []string
}

// NewErrorBuilder returns an empty ErrorBuilder.
func NewErrorBuilder() ErrorBuilder {
	return &errorBuilder{}
}

// AddFrame implements ErrorBuilder.AddFrame.
func (b *errorBuilder) AddFrame(funcName string, paramTypes, resultTypes []api.ValueType) {
	b.frames = append(b.frames, signature(funcName, paramTypes, resultTypes))
}

// FromRecovered implements ErrorBuilder.FromRecovered.
func (b *errorBuilder) FromRecovered(recovered interface{}) error {
	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}

	if len(b.frames) == 0 {
		return cause
	}

	var sb strings.Builder
	sb.WriteString(cause.Error())
	sb.WriteString(" (recovered by wazero)\nwasm stack trace:")
	for _, f := range b.frames {
		sb.WriteString("\n\t")
		sb.WriteString(f)
	}
	return &traceError{cause: cause, msg: sb.String()}
}

type traceError struct {
	cause error
	msg   string
}

func (e *traceError) Error() string { return e.msg }
func (e *traceError) Unwrap() error { return e.cause }
