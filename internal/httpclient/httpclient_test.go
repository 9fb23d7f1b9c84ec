package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingResponse struct {
	Pong bool `json:"pong"`
}

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	client, err := NewInstrumentedClient(
		WithBaseURL(baseURL),
		WithProviderName("test-provider"),
	)
	if err != nil {
		t.Fatalf("NewInstrumentedClient: %v", err)
	}
	return client
}

func TestGetResolvesBaseURLAndDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			t.Errorf("path = %q, want /ping", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pingResponse{Pong: true})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var result pingResponse
	resp, err := client.NewRequestWithOptions().SetResult(&result).Get(context.Background(), "/ping")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resp.IsSuccess() {
		t.Fatalf("IsSuccess() = false, status %d", resp.StatusCode)
	}
	if !result.Pong {
		t.Fatal("expected result.Pong to be decoded as true")
	}
}

func TestSetQueryParamsAppendedToURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("symbol query param = %q, want BTCUSDT", r.URL.Query().Get("symbol"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.NewRequest().SetQueryParam("symbol", "BTCUSDT").Get(context.Background(), "/orders")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestSetHeaderSentOnRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "secret" {
			t.Errorf("X-API-KEY header = %q, want secret", r.Header.Get("X-API-KEY"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.NewRequest().SetHeader("X-API-KEY", "secret").Get(context.Background(), "/account")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestPostEncodesJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["side"] != "buy" {
			t.Errorf("side = %q, want buy", body["side"])
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.NewRequest().SetBody(map[string]string{"side": "buy"}).Post(context.Background(), "/orders")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("StatusCode = %d, want 201", resp.StatusCode)
	}
}

func TestIsErrorForStatusAtOrAbove400(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.NewRequest().Get(context.Background(), "/orders")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resp.IsError() {
		t.Fatal("expected IsError() to be true for a 400 response")
	}
	if resp.String() != `{"error":"bad request"}` {
		t.Fatalf("String() = %q", resp.String())
	}
}

func TestResponseErrorHandlerOverridesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"-1003"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.NewRequestWithOptions(
		WithResponseErrorHandler(func(statusCode int, body []byte) error {
			if statusCode == http.StatusTooManyRequests {
				return context.DeadlineExceeded
			}
			return nil
		}),
	).Get(context.Background(), "/orders")

	if err == nil {
		t.Fatal("expected the custom error handler's error to surface")
	}
}

func TestReadBodyHandlesNilResponse(t *testing.T) {
	body, err := ReadBody(nil)
	if err != nil || body != nil {
		t.Fatalf("ReadBody(nil) = (%v, %v), want (nil, nil)", body, err)
	}
}

func TestDoExecutesRawRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	req, err := http.NewRequest(http.MethodGet, server.URL+"/status", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
}
