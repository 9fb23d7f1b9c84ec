package exc

import (
	"errors"

	"github.com/fd1az/go-exc/internal/apperror"
)

// Re-export the five-bucket taxonomy so callers of this package
// never need to import internal/apperror directly.
type Code = apperror.Code
type Bucket = apperror.Bucket
type Error = apperror.AppError

const (
	BucketTransient = apperror.BucketTransient
	BucketAuth      = apperror.BucketAuth
	BucketProtocol  = apperror.BucketProtocol
	BucketSemantic  = apperror.BucketSemantic
	BucketUsage     = apperror.BucketUsage
)

// Re-export the bucket factories so layer/venue code building errors
// never needs a second import of internal/apperror alongside this
// package's Code/Bucket aliases.
var (
	NewTransientError = apperror.Transient
	NewAuthError      = apperror.Auth
	NewProtocolError  = apperror.Protocol
	NewSemanticError  = apperror.Semantic
	NewUsageError     = apperror.Usage
)

// Re-export every Code constant so layer/venue packages need only
// import this package, not internal/apperror, for error construction.
const (
	CodeRequiredField      = apperror.CodeRequiredField
	CodeInvalidInput       = apperror.CodeInvalidInput
	CodeInvalidFormat      = apperror.CodeInvalidFormat
	CodeInvalidState       = apperror.CodeInvalidState
	CodeNotFound           = apperror.CodeNotFound
	CodeValidationError    = apperror.CodeValidationError
	CodeUnsupportedOp      = apperror.CodeUnsupportedOp
	CodeConfigurationError = apperror.CodeConfigurationError
	CodeUnknownInstrument  = apperror.CodeUnknownInstrument

	CodeConnectionFailed   = apperror.CodeConnectionFailed
	CodeServiceTimeout     = apperror.CodeServiceTimeout
	CodeServiceUnavailable = apperror.CodeServiceUnavailable
	CodeRateLimitExceeded  = apperror.CodeRateLimitExceeded
	CodeReconnecting       = apperror.CodeReconnecting
	CodeCircuitOpen        = apperror.CodeCircuitOpen
	CodeRequestCanceled    = apperror.CodeRequestCanceled

	CodeUnauthorized       = apperror.CodeUnauthorized
	CodeInvalidCredentials = apperror.CodeInvalidCredentials
	CodeLoginFailed        = apperror.CodeLoginFailed
	CodeLoginTimeout       = apperror.CodeLoginTimeout
	CodeListenKeyExpired   = apperror.CodeListenKeyExpired

	CodeProtocolViolation = apperror.CodeProtocolViolation
	CodeUnexpectedFrame   = apperror.CodeUnexpectedFrame
	CodeDecodeError       = apperror.CodeDecodeError
	CodeStreamClosed      = apperror.CodeStreamClosed
	CodeMuxTornDown       = apperror.CodeMuxTornDown

	CodeVenueError          = apperror.CodeVenueError
	CodeOrderRejected       = apperror.CodeOrderRejected
	CodeInsufficientBalance = apperror.CodeInsufficientBalance
	CodeVenueRateLimited    = apperror.CodeVenueRateLimited
	CodeVenueBusy           = apperror.CodeVenueBusy
	CodeInstrumentSuspended = apperror.CodeInstrumentSuspended

	CodeInternalError = apperror.CodeInternalError
	CodeUnknownError  = apperror.CodeUnknownError
)

// SemanticAllowList is the configured set of venue codes treated as
// retryable semantic errors. A nil or empty list falls back to the
// module's built-in defaults (venue busy / venue rate-limited).
type SemanticAllowList map[Code]bool

// Retryable reports whether err should be retried by the Retry layer,
// consulting allowlist for the semantic bucket only. Transient errors are
// always retryable; auth, protocol and usage errors never are.
func Retryable(err error, allowlist SemanticAllowList) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}

	if appErr.Bucket == BucketSemantic && len(allowlist) > 0 {
		return allowlist[appErr.Code]
	}

	return appErr.Retryable()
}

// BucketOf extracts the error bucket from err, defaulting to BucketUsage
// for errors that are not an *Error (never retried, never assumed safe).
func BucketOf(err error) Bucket {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Bucket
	}
	return BucketUsage
}
