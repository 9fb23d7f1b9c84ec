package apperror

// Code represents a unique error code for the module.
type Code string

// Bucket is one of the five error categories every Code belongs to. The
// bucket, not the code, decides whether a layer retries an error.
type Bucket string

const (
	// BucketTransient covers connection drops, timeouts and backpressure —
	// retried by the layer.Retry/layer.Reconnect layers with backoff.
	BucketTransient Bucket = "transient"
	// BucketAuth covers login/credential failures — never retried without
	// operator intervention (bad keys don't fix themselves on retry).
	BucketAuth Bucket = "auth"
	// BucketProtocol covers frames that don't parse as the wire contract
	// expects — fatal to the connection, triggers a reconnect rather than
	// a request-level retry.
	BucketProtocol Bucket = "protocol"
	// BucketSemantic covers venue-returned error codes (rejected order,
	// unknown instrument, venue-side rate limit). Retryable only for the
	// allow-listed subset in semanticRetryable.
	BucketSemantic Bucket = "semantic"
	// BucketUsage covers caller mistakes (bad arguments, unsupported
	// operations) — never retried, since retrying sends the same mistake
	// again.
	BucketUsage Bucket = "usage"
)

// General / usage error codes
const (
	CodeRequiredField       Code = "REQUIRED_FIELD"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeInvalidFormat       Code = "INVALID_FORMAT"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidationError     Code = "VALIDATION_ERROR"
	CodeUnsupportedOp       Code = "UNSUPPORTED_OPERATION"
	CodeConfigurationError  Code = "CONFIGURATION_ERROR"
	CodeUnknownInstrument   Code = "UNKNOWN_INSTRUMENT"
)

// Transient (retryable) error codes
const (
	CodeConnectionFailed   Code = "CONNECTION_FAILED"
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeReconnecting       Code = "RECONNECTING"
	CodeCircuitOpen        Code = "CIRCUIT_OPEN"
	CodeRequestCanceled    Code = "REQUEST_CANCELED"
	CodeMuxTornDown        Code = "MUX_TORN_DOWN"
)

// Auth (not retried) error codes
const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeLoginFailed        Code = "LOGIN_FAILED"
	CodeLoginTimeout       Code = "LOGIN_TIMEOUT"
	CodeListenKeyExpired   Code = "LISTEN_KEY_EXPIRED"
)

// Protocol (fatal, triggers reconnect) error codes
const (
	CodeProtocolViolation Code = "PROTOCOL_VIOLATION"
	CodeUnexpectedFrame   Code = "UNEXPECTED_FRAME"
	CodeDecodeError       Code = "DECODE_ERROR"
	CodeStreamClosed      Code = "STREAM_CLOSED"
)

// Semantic (venue-returned) error codes
const (
	CodeVenueError          Code = "VENUE_ERROR"
	CodeOrderRejected       Code = "ORDER_REJECTED"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeVenueRateLimited    Code = "VENUE_RATE_LIMITED"
	CodeVenueBusy           Code = "VENUE_BUSY"
	CodeInstrumentSuspended Code = "INSTRUMENT_SUSPENDED"
)

// System/fallback error codes
const (
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// bucketOf classifies every code this module produces. A code with no
// entry here falls back to BucketUsage — the safest default, since an
// unrecognized error should not be silently retried.
var bucketOf = map[Code]Bucket{
	CodeRequiredField:      BucketUsage,
	CodeInvalidInput:       BucketUsage,
	CodeInvalidFormat:      BucketUsage,
	CodeInvalidState:       BucketUsage,
	CodeNotFound:           BucketUsage,
	CodeValidationError:    BucketUsage,
	CodeUnsupportedOp:      BucketUsage,
	CodeConfigurationError: BucketUsage,
	CodeUnknownInstrument:  BucketUsage,

	CodeConnectionFailed:   BucketTransient,
	CodeServiceTimeout:     BucketTransient,
	CodeServiceUnavailable: BucketTransient,
	CodeRateLimitExceeded:  BucketTransient,
	CodeReconnecting:       BucketTransient,
	CodeCircuitOpen:        BucketTransient,
	CodeRequestCanceled:    BucketTransient,
	CodeMuxTornDown:        BucketTransient,

	CodeUnauthorized:       BucketAuth,
	CodeInvalidCredentials: BucketAuth,
	CodeLoginFailed:        BucketAuth,
	CodeLoginTimeout:       BucketAuth,
	CodeListenKeyExpired:   BucketAuth,

	CodeProtocolViolation: BucketProtocol,
	CodeUnexpectedFrame:   BucketProtocol,
	CodeDecodeError:       BucketProtocol,
	CodeStreamClosed:      BucketProtocol,

	CodeVenueError:          BucketSemantic,
	CodeOrderRejected:       BucketSemantic,
	CodeInsufficientBalance: BucketSemantic,
	CodeVenueRateLimited:    BucketSemantic,
	CodeVenueBusy:           BucketSemantic,
	CodeInstrumentSuspended: BucketSemantic,

	CodeInternalError: BucketUsage,
	CodeUnknownError:  BucketUsage,
}

// semanticRetryable allow-lists the semantic codes worth retrying. A
// rejected order or a suspended instrument will not change by retrying;
// a venue telling us to back off or that it is momentarily busy will.
var semanticRetryable = map[Code]bool{
	CodeVenueRateLimited: true,
	CodeVenueBusy:        true,
}

// BucketOf returns the Bucket for a Code, defaulting to BucketUsage.
func BucketOf(code Code) Bucket {
	if b, ok := bucketOf[code]; ok {
		return b
	}
	return BucketUsage
}
