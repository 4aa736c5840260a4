package protocol

import "fmt"

// Error codes carried in ErrorInfo.Code. The hundreds digit groups codes by
// concern; HTTP-like status codes go in ErrorInfo.StatusCode.
const (
	CodeBadRequest       = 40000
	CodeInvalidClientID  = 40012
	CodeUnauthorized     = 40100
	CodeTokenErrorMin    = 40140
	CodeTokenExpired     = 40142
	CodeTokenErrorMax    = 40149
	CodeForbidden        = 40300
	CodeInternal         = 50000
	CodeTimeout          = 50003
	CodeConnectionFailed = 80000
	CodeSuspended        = 80002
	CodeDisconnected     = 80003
	CodeConnectTimedOut  = 80014
	CodeConnectionClosed = 80017
	CodeChannelFailed    = 90000
	CodeChannelState     = 90001
	CodeChannelDetached  = 90004
	CodeNoClientID       = 91000
	CodePresenceState    = 91001
)

// ErrorInfo describes a failure reported by the service or raised locally.
// It travels on the wire inside ERROR, NACK, DISCONNECTED and DETACHED
// messages and is attached to state changes.
type ErrorInfo struct {
	Code       int    `json:"code,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message,omitempty"`
	HRef       string `json:"href,omitempty"`

	// Cause is the local error that produced this one, if any.
	Cause error `json:"-"`
}

// NewErrorInfo creates an ErrorInfo.
func NewErrorInfo(code, statusCode int, message string) *ErrorInfo {
	return &ErrorInfo{
		Code:       code,
		StatusCode: statusCode,
		Message:    message,
	}
}

// Error implements the error interface.
func (e *ErrorInfo) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("[ErrorInfo code=%d statusCode=%d] %s", e.Code, e.StatusCode, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause for errors.Is/As support.
func (e *ErrorInfo) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *ErrorInfo by code.
func (e *ErrorInfo) Is(target error) bool {
	t, ok := target.(*ErrorInfo)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// IsTokenError reports whether the error signals an expired or invalid token
// that a fresh credential could fix.
func (e *ErrorInfo) IsTokenError() bool {
	return e != nil && e.Code >= CodeTokenErrorMin && e.Code <= CodeTokenErrorMax
}

// IsAuthError reports whether the error is in the 401/403 class.
func (e *ErrorInfo) IsAuthError() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == 401 || e.StatusCode == 403 ||
		(e.Code >= CodeUnauthorized && e.Code < CodeUnauthorized+100) ||
		(e.Code >= CodeForbidden && e.Code < CodeForbidden+100)
}

// Clone returns a shallow copy.
func (e *ErrorInfo) Clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
