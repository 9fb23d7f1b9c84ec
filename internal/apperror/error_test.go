package apperror

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want bool
	}{
		{name: "transient_always_retryable", err: Transient(CodeConnectionFailed, "dial", nil), want: true},
		{name: "semantic_allowlisted", err: Semantic(CodeVenueBusy, "1003", "busy"), want: true},
		{name: "semantic_not_allowlisted", err: Semantic(CodeOrderRejected, "-2010", "rejected"), want: false},
		{name: "auth_never_retryable", err: Auth(CodeLoginFailed, "login", nil), want: false},
		{name: "usage_never_retryable", err: Usage(CodeRequiredField, "missing symbol"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Fatalf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorStringIncludesContext(t *testing.T) {
	withCtx := Usage(CodeRequiredField, "symbol is required")
	if !strings.Contains(withCtx.Error(), "symbol is required") {
		t.Fatalf("Error() = %q, want it to contain the context", withCtx.Error())
	}

	withoutCtx := Usage(CodeRequiredField, "")
	if strings.Contains(withoutCtx.Error(), "context:") {
		t.Fatalf("Error() = %q, want no context clause for an empty Context", withoutCtx.Error())
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Transient(CodeConnectionFailed, "connect", cause)
	if errors.Unwrap(err) != cause {
		t.Fatalf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
}

func TestIsComparesByCode(t *testing.T) {
	a := Usage(CodeRequiredField, "ctx a")
	b := Usage(CodeRequiredField, "ctx b")
	c := Usage(CodeInvalidInput, "ctx c")

	if !errors.Is(a, b) {
		t.Fatal("expected errors with the same code to be Is-equal")
	}
	if errors.Is(a, c) {
		t.Fatal("expected errors with different codes to not be Is-equal")
	}
}

func TestWithTraceIDSetsField(t *testing.T) {
	err := Usage(CodeRequiredField, "ctx").WithTraceID("trace-123")
	if err.TraceID != "trace-123" {
		t.Fatalf("TraceID = %q, want trace-123", err.TraceID)
	}
}

func TestDefaultStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		code Code
		want int
	}{
		{name: "rate_limited_override", code: CodeRateLimitExceeded, want: http.StatusTooManyRequests},
		{name: "venue_rate_limited_override", code: CodeVenueRateLimited, want: http.StatusTooManyRequests},
		{name: "not_found_override", code: CodeNotFound, want: http.StatusNotFound},
		{name: "bucket_auth_default", code: CodeUnauthorized, want: http.StatusUnauthorized},
		{name: "bucket_usage_default", code: CodeRequiredField, want: http.StatusBadRequest},
		{name: "bucket_transient_default", code: CodeConnectionFailed, want: http.StatusServiceUnavailable},
		{name: "bucket_protocol_default", code: CodeProtocolViolation, want: http.StatusBadGateway},
		{name: "bucket_semantic_default", code: CodeOrderRejected, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getDefaultStatusCode(tt.code); got != tt.want {
				t.Fatalf("getDefaultStatusCode(%v) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWrapPreservesExistingAppError(t *testing.T) {
	inner := Usage(CodeRequiredField, "")
	wrapped := Wrap(inner, CodeInternalError, "outer context")

	if wrapped != inner {
		t.Fatal("Wrap should return the same *AppError pointer when already an AppError")
	}
	if wrapped.Context != "outer context" {
		t.Fatalf("Context = %q, want outer context to fill an empty Context", wrapped.Context)
	}
}

func TestWrapBuildsNewAppErrorForPlainError(t *testing.T) {
	plain := errors.New("boom")
	wrapped := Wrap(plain, CodeInternalError, "ctx")

	if wrapped.Code != CodeInternalError {
		t.Fatalf("Code = %v, want CodeInternalError", wrapped.Code)
	}
	if errors.Unwrap(wrapped) != plain {
		t.Fatal("expected the plain error to be wrapped as the cause")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(nil, CodeInternalError, "ctx") != nil {
		t.Fatal("Wrap(nil, ...) should return nil")
	}
}

func TestIsAppErrorAndGetCode(t *testing.T) {
	appErr := Usage(CodeRequiredField, "ctx")
	if !IsAppError(appErr) {
		t.Fatal("expected IsAppError to report true for an *AppError")
	}
	if IsAppError(errors.New("plain")) {
		t.Fatal("expected IsAppError to report false for a plain error")
	}

	if GetCode(appErr) != CodeRequiredField {
		t.Fatalf("GetCode() = %v, want CodeRequiredField", GetCode(appErr))
	}
	if GetCode(errors.New("plain")) != CodeUnknownError {
		t.Fatalf("GetCode() for a plain error = %v, want CodeUnknownError", GetCode(errors.New("plain")))
	}
}

func TestToResponseOmitsEmptyFields(t *testing.T) {
	err := Usage(CodeRequiredField, "")
	resp := err.ToResponse()

	body, ok := resp["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected an \"error\" key holding a map")
	}
	if _, hasContext := body["context"]; hasContext {
		t.Fatal("expected no context key for an empty Context")
	}
	if _, hasTrace := body["traceId"]; hasTrace {
		t.Fatal("expected no traceId key for an empty TraceID")
	}
}

func TestToLogIncludesCauseAndStack(t *testing.T) {
	cause := errors.New("root cause")
	err := Transient(CodeConnectionFailed, "dial", cause)
	log := err.ToLog()

	if log["cause"] != cause.Error() {
		t.Fatalf("cause = %v, want %q", log["cause"], cause.Error())
	}
	if _, hasStack := log["stack"]; !hasStack {
		t.Fatal("expected a stack entry to be present")
	}
}
