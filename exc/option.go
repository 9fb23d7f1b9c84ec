package exc

import "time"

// Credentials is the private-endpoint key triple. Passphrase is OKX-only;
// Binance leaves it empty and signs with APIKey+APISecret alone.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// RateLimit is a token-bucket spec, (n, window): n tokens refilled every
// window.
type RateLimit struct {
	N      int
	Window time.Duration
}

// ReconnectBackoff configures the reconnect supervisor's exponential
// backoff with jitter.
type ReconnectBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64 // fraction of the current backoff added as jitter, e.g. 0.5
}

// EndpointConfig collects every option recognized by an endpoint builder.
// Zero value is invalid; use NewEndpointConfig for the documented
// defaults.
type EndpointConfig struct {
	WSRequestTimeout time.Duration
	KeepaliveInterval time.Duration
	ReconnectBackoff  ReconnectBackoff
	RateLimit         RateLimit
	Private           *Credentials
	BufferBound       int
	InstTags          []string
	SemanticAllowList SemanticAllowList
}

// Option mutates an EndpointConfig being built.
type Option func(*EndpointConfig)

// NewEndpointConfig applies defaults grounded in spec and the original
// exc-core InstrumentsOptions defaults (buffer_bound 1024, fetch/subscribe
// rate limit (1, 1s)), then applies opts.
func NewEndpointConfig(opts ...Option) EndpointConfig {
	cfg := EndpointConfig{
		WSRequestTimeout:  10 * time.Second,
		KeepaliveInterval: 15 * time.Second,
		ReconnectBackoff: ReconnectBackoff{
			Initial: 1 * time.Second,
			Max:     30 * time.Second,
			Jitter:  0.5,
		},
		RateLimit:   RateLimit{N: 1, Window: time.Second},
		BufferBound: 1024,
		InstTags:    []string{"SPOT"},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *EndpointConfig) { c.WSRequestTimeout = d }
}

func WithKeepaliveInterval(d time.Duration) Option {
	return func(c *EndpointConfig) { c.KeepaliveInterval = d }
}

func WithReconnectBackoff(b ReconnectBackoff) Option {
	return func(c *EndpointConfig) { c.ReconnectBackoff = b }
}

func WithRateLimit(n int, window time.Duration) Option {
	return func(c *EndpointConfig) { c.RateLimit = RateLimit{N: n, Window: window} }
}

func WithPrivate(creds Credentials) Option {
	return func(c *EndpointConfig) { c.Private = &creds }
}

func WithBufferBound(n int) Option {
	return func(c *EndpointConfig) { c.BufferBound = n }
}

func WithInstTags(tags ...string) Option {
	return func(c *EndpointConfig) { c.InstTags = tags }
}

func WithSemanticAllowList(codes ...Code) Option {
	return func(c *EndpointConfig) {
		allow := make(SemanticAllowList, len(codes))
		for _, code := range codes {
			allow[code] = true
		}
		c.SemanticAllowList = allow
	}
}
