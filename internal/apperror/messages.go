package apperror

// messages maps error codes to human-readable default messages, used when
// a caller builds an AppError via New without WithMessage.
var messages = map[Code]string{
	CodeRequiredField:      "required field is missing",
	CodeInvalidInput:       "invalid input provided",
	CodeInvalidFormat:      "invalid data format",
	CodeInvalidState:       "invalid state for this operation",
	CodeNotFound:           "resource not found",
	CodeValidationError:    "validation error",
	CodeUnsupportedOp:      "operation not supported",
	CodeConfigurationError: "configuration error",
	CodeUnknownInstrument:  "instrument not known to the local cache",

	CodeConnectionFailed:   "connection failed",
	CodeServiceTimeout:     "request timed out",
	CodeServiceUnavailable: "service temporarily unavailable",
	CodeRateLimitExceeded:  "local rate limit exceeded",
	CodeReconnecting:       "transport is reconnecting",
	CodeCircuitOpen:        "circuit breaker is open",
	CodeRequestCanceled:    "request canceled",

	CodeUnauthorized:       "unauthorized",
	CodeInvalidCredentials: "invalid credentials",
	CodeLoginFailed:        "venue login failed",
	CodeLoginTimeout:       "venue login did not complete in time",
	CodeListenKeyExpired:   "listen key expired",

	CodeProtocolViolation: "venue sent a frame that violates the wire protocol",
	CodeUnexpectedFrame:   "unexpected frame type",
	CodeDecodeError:       "failed to decode venue message",
	CodeStreamClosed:      "stream closed by venue",
	CodeMuxTornDown:       "multiplexer torn down",

	CodeVenueError:          "venue returned an error",
	CodeOrderRejected:       "order rejected by venue",
	CodeInsufficientBalance: "insufficient balance",
	CodeVenueRateLimited:    "venue rate limit exceeded",
	CodeVenueBusy:           "venue reported itself busy",
	CodeInstrumentSuspended: "instrument suspended for trading",

	CodeInternalError: "internal error",
	CodeUnknownError:  "an unknown error occurred",
}
