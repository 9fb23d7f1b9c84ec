package config

import (
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "excctl" {
		t.Fatalf("App.Name = %q, want excctl", cfg.App.Name)
	}
	if cfg.Binance.WebSocketURL != "wss://stream.binance.com:9443" {
		t.Fatalf("Binance.WebSocketURL = %q", cfg.Binance.WebSocketURL)
	}
	if cfg.OKX.WebSocketPublicURL != "wss://ws.okx.com:8443/ws/v5/public" {
		t.Fatalf("OKX.WebSocketPublicURL = %q", cfg.OKX.WebSocketPublicURL)
	}
	if cfg.Telemetry.PrometheusPort != 9090 {
		t.Fatalf("Telemetry.PrometheusPort = %d, want 9090", cfg.Telemetry.PrometheusPort)
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("EXC_APP_NAME", "custom-excctl")
	t.Setenv("EXC_BINANCE_API_KEY", "env-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "custom-excctl" {
		t.Fatalf("App.Name = %q, want custom-excctl", cfg.App.Name)
	}
	if cfg.Binance.APIKey != "env-key" {
		t.Fatalf("Binance.APIKey = %q, want env-key", cfg.Binance.APIKey)
	}
}

func TestValidateRequiresWebSocketURLs(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when binance.websocket_url is empty")
	}

	cfg.Binance.WebSocketURL = "wss://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when okx.websocket_public_url is empty")
	}
}

func TestValidateRequiresPassphraseWithOKXCredentials(t *testing.T) {
	cfg := &Config{}
	cfg.Binance.WebSocketURL = "wss://example.com"
	cfg.OKX.WebSocketPublicURL = "wss://example.com"
	cfg.OKX.APIKey = "key"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when OKX credentials are set without a passphrase")
	}

	cfg.OKX.Passphrase = "pass"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
