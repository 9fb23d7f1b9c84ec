// Package config provides configuration loading and validation for the
// example CLI. The library itself (package exc and venue/*) is configured
// through functional options, not viper — this package only configures the
// consumer of the library.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all excctl configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	OKX       OKXConfig       `mapstructure:"okx"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// BinanceConfig holds Binance venue configuration.
type BinanceConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	RecvWindow     time.Duration `mapstructure:"recv_window"`
	FetchRateLimit int           `mapstructure:"fetch_rate_limit"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// OKXConfig holds OKX venue configuration.
type OKXConfig struct {
	WebSocketPublicURL  string        `mapstructure:"websocket_public_url"`
	WebSocketPrivateURL string        `mapstructure:"websocket_private_url"`
	HTTPURL             string        `mapstructure:"http_url"`
	APIKey              string        `mapstructure:"api_key"`
	APISecret           string        `mapstructure:"api_secret"`
	Passphrase          string        `mapstructure:"passphrase"`
	Simulated           bool          `mapstructure:"simulated"`
	MaxReconnects       int           `mapstructure:"max_reconnects"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ConsoleTracing bool   `mapstructure:"console_tracing"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("EXC")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "EXC_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "EXC_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "EXC_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("binance.websocket_url", "EXC_BINANCE_WS_URL", "BINANCE_WS_URL")
	v.BindEnv("binance.http_url", "EXC_BINANCE_HTTP_URL", "BINANCE_HTTP_URL")
	v.BindEnv("binance.api_key", "EXC_BINANCE_API_KEY", "BINANCE_API_KEY")
	v.BindEnv("binance.api_secret", "EXC_BINANCE_API_SECRET", "BINANCE_API_SECRET")

	v.BindEnv("okx.websocket_public_url", "EXC_OKX_WS_PUBLIC_URL", "OKX_WS_PUBLIC_URL")
	v.BindEnv("okx.websocket_private_url", "EXC_OKX_WS_PRIVATE_URL", "OKX_WS_PRIVATE_URL")
	v.BindEnv("okx.http_url", "EXC_OKX_HTTP_URL", "OKX_HTTP_URL")
	v.BindEnv("okx.api_key", "EXC_OKX_API_KEY", "OKX_API_KEY")
	v.BindEnv("okx.api_secret", "EXC_OKX_API_SECRET", "OKX_API_SECRET")
	v.BindEnv("okx.passphrase", "EXC_OKX_PASSPHRASE", "OKX_PASSPHRASE")

	v.BindEnv("telemetry.enabled", "EXC_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "EXC_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "excctl")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("binance.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("binance.http_url", "https://api.binance.com")
	v.SetDefault("binance.recv_window", "5s")
	v.SetDefault("binance.fetch_rate_limit", 20)
	v.SetDefault("binance.initial_backoff", "1s")
	v.SetDefault("binance.max_backoff", "30s")

	v.SetDefault("okx.websocket_public_url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("okx.websocket_private_url", "wss://ws.okx.com:8443/ws/v5/private")
	v.SetDefault("okx.http_url", "https://www.okx.com")
	v.SetDefault("okx.simulated", false)
	v.SetDefault("okx.initial_backoff", "1s")
	v.SetDefault("okx.max_backoff", "30s")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "excctl")
	v.SetDefault("telemetry.console_tracing", true)
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Binance.WebSocketURL == "" {
		return fmt.Errorf("binance.websocket_url is required")
	}
	if c.OKX.WebSocketPublicURL == "" {
		return fmt.Errorf("okx.websocket_public_url is required")
	}
	if (c.OKX.APIKey != "" || c.OKX.APISecret != "") && c.OKX.Passphrase == "" {
		return fmt.Errorf("okx.passphrase is required when okx credentials are set")
	}
	return nil
}
