package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/vango-dev/pulse/pkg/protocol"
)

// Category groups error codes by the subsystem that raises them.
type Category string

const (
	CategoryConnection Category = "connection"
	CategoryChannel    Category = "channel"
	CategoryPresence   Category = "presence"
	CategoryAuth       Category = "auth"
	CategoryProtocol   Category = "protocol"
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
)

// New creates an ErrorInfo from a registered error code.
func New(code int) *protocol.ErrorInfo {
	template, ok := registry[code]
	if !ok {
		return &protocol.ErrorInfo{
			Code:       code,
			StatusCode: 500,
			Message:    "Unknown error",
		}
	}
	return &protocol.ErrorInfo{
		Code:       code,
		StatusCode: template.StatusCode,
		Message:    template.Message,
		HRef:       template.HelpURL(code),
	}
}

// Newf creates an ErrorInfo for a registered code with a custom message.
func Newf(code int, format string, args ...any) *protocol.ErrorInfo {
	e := New(code)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// Wrap creates an ErrorInfo for code that carries err as its cause.
func Wrap(code int, err error) *protocol.ErrorInfo {
	e := New(code)
	e.Cause = err
	return e
}

// FromError returns err as an ErrorInfo, wrapping it under code if it is
// not one already.
func FromError(err error, code int) *protocol.ErrorInfo {
	if err == nil {
		return nil
	}
	var ei *protocol.ErrorInfo
	if stderrors.As(err, &ei) {
		return ei
	}
	return Wrap(code, err)
}

// CategoryOf returns the category of a registered code, or "" if unknown.
func CategoryOf(code int) Category {
	return registry[code].Category
}

// Detail returns the long explanation of a registered code.
func Detail(code int) string {
	return registry[code].Detail
}
