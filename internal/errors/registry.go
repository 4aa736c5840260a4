package errors

import (
	"strconv"

	"github.com/vango-dev/pulse/pkg/protocol"
)

// Codes raised only by local tooling, never seen on the wire.
const (
	CodeConfigNotFound = 10001
	CodeConfigInvalid  = 10002
	CodeConfigValue    = 10003
	CodeCLIUsage       = 10010
)

// helpBase is the root of the per-code help pages.
const helpBase = "https://pulse.dev/docs/errors/"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	StatusCode int
	Message    string
	Detail     string
}

// HelpURL returns the help page for code.
func (t ErrorTemplate) HelpURL(code int) string {
	if t.Message == "" {
		return ""
	}
	return helpBase + strconv.Itoa(code)
}

// registry maps error codes to their templates.
var registry = map[int]ErrorTemplate{
	// ============================================
	// Request and auth errors (40000-40999)
	// ============================================

	protocol.CodeBadRequest: {
		Category:   CategoryProtocol,
		StatusCode: 400,
		Message:    "Bad request",
	},
	protocol.CodeInvalidClientID: {
		Category:   CategoryAuth,
		StatusCode: 400,
		Message:    "Invalid clientId",
		Detail:     "The clientId is not valid for the credentials in use.",
	},
	protocol.CodeUnauthorized: {
		Category:   CategoryAuth,
		StatusCode: 401,
		Message:    "Unauthorized",
		Detail:     "The service rejected the supplied credentials.",
	},
	protocol.CodeTokenExpired: {
		Category:   CategoryAuth,
		StatusCode: 401,
		Message:    "Token expired",
		Detail:     "The access token has expired. Configure a token callback so the client can renew it.",
	},
	protocol.CodeForbidden: {
		Category:   CategoryAuth,
		StatusCode: 403,
		Message:    "Operation not permitted",
	},

	// ============================================
	// Internal errors (50000-50999)
	// ============================================

	protocol.CodeInternal: {
		Category:   CategoryProtocol,
		StatusCode: 500,
		Message:    "Internal error",
	},
	protocol.CodeTimeout: {
		Category:   CategoryProtocol,
		StatusCode: 504,
		Message:    "Timed out",
	},

	// ============================================
	// Connection errors (80000-80999)
	// ============================================

	protocol.CodeConnectionFailed: {
		Category:   CategoryConnection,
		StatusCode: 503,
		Message:    "Connection failed",
		Detail:     "The connection entered the failed state and will not retry. Call Connect to start over.",
	},
	protocol.CodeSuspended: {
		Category:   CategoryConnection,
		StatusCode: 503,
		Message:    "Connection unavailable",
		Detail:     "The service has been unreachable for longer than the suspend timeout. Queued messages were discarded.",
	},
	protocol.CodeDisconnected: {
		Category:   CategoryConnection,
		StatusCode: 503,
		Message:    "Connection temporarily unavailable",
	},
	protocol.CodeConnectTimedOut: {
		Category:   CategoryConnection,
		StatusCode: 503,
		Message:    "Connection attempt timed out",
	},
	protocol.CodeConnectionClosed: {
		Category:   CategoryConnection,
		StatusCode: 400,
		Message:    "Connection closed",
	},

	// ============================================
	// Channel and presence errors (90000-91999)
	// ============================================

	protocol.CodeChannelFailed: {
		Category:   CategoryChannel,
		StatusCode: 400,
		Message:    "Channel operation failed",
	},
	protocol.CodeChannelState: {
		Category:   CategoryChannel,
		StatusCode: 400,
		Message:    "Unable to publish in the current channel state",
		Detail:     "Messages can only be published on a channel that is initialised, attaching or attached.",
	},
	protocol.CodeChannelDetached: {
		Category:   CategoryChannel,
		StatusCode: 409,
		Message:    "Channel is not attached",
	},
	protocol.CodeNoClientID: {
		Category:   CategoryPresence,
		StatusCode: 400,
		Message:    "Unable to enter presence channel without a clientId",
	},
	protocol.CodePresenceState: {
		Category:   CategoryPresence,
		StatusCode: 400,
		Message:    "Unable to enter presence channel in detached or failed state",
	},

	// ============================================
	// Local tooling errors (10000-10999)
	// ============================================

	CodeConfigNotFound: {
		Category:   CategoryConfig,
		StatusCode: 400,
		Message:    "Configuration file not found",
	},
	CodeConfigInvalid: {
		Category:   CategoryConfig,
		StatusCode: 400,
		Message:    "Invalid configuration file",
	},
	CodeConfigValue: {
		Category:   CategoryConfig,
		StatusCode: 400,
		Message:    "Invalid configuration value",
	},
	CodeCLIUsage: {
		Category:   CategoryCLI,
		StatusCode: 400,
		Message:    "Invalid command usage",
	},
}

// Lookup returns the template for a code.
func Lookup(code int) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns all registered codes.
func Codes() []int {
	codes := make([]int, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}
