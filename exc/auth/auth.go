// Package auth implements the login gate shared signing
// primitives. Each venue builds its own login/signing frame on top of
// these (OKX's WS login handshake, Binance's listen-key REST bootstrap)
// but both satisfy the same contract exposed by Gate: user requests
// queue behind Ready() until the gate resolves, and a failed login is
// fatal to the connection.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"sync"
)

// SignBase64 computes HMAC-SHA256(secret, payload) and base64-encodes
// the result — OKX's login/request signature format.
func SignBase64(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignHex computes HMAC-SHA256(secret, payload) and hex-encodes the
// result — Binance's signed-REST-query format.
func SignHex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Gate tracks whether a connection's private channel has completed its
// login (or, for Binance, its listen-key bootstrap). Ready blocks every
// private request behind it until Resolve is called.
type Gate struct {
	mu      sync.Mutex
	doneCh  chan struct{}
	err     error
	private bool
}

// NewGate builds a Gate. private is false for public-only endpoints,
// whose Ready always succeeds immediately.
func NewGate(private bool) *Gate {
	g := &Gate{doneCh: make(chan struct{}), private: private}
	if !private {
		close(g.doneCh)
	}
	return g
}

// Resolve is called exactly once per connection lifetime by the venue's
// connect routine, after the login frame is acknowledged (or failed).
func (g *Gate) Resolve(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.doneCh:
		return // already resolved; reconnect must Reset first
	default:
	}

	g.err = err
	close(g.doneCh)
}

// Reset prepares the gate for a fresh connection (called by the
// reconnect supervisor before re-login).
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.doneCh = make(chan struct{})
	g.err = nil
}

// Ready blocks until the gate resolves or ctx is done.
func (g *Gate) Ready(ctx context.Context) error {
	g.mu.Lock()
	doneCh := g.doneCh
	g.mu.Unlock()

	select {
	case <-doneCh:
		g.mu.Lock()
		err := g.err
		g.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
