// Package instrument implements the instrument/market cache: a
// reconciliation of REST snapshots with websocket update events into a
// consistent symbol <-> native-name index, served through a synchronous
// GetInstrument lookup. Each update is applied as it arrives; updates are
// not debounced or batched.
package instrument

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fd1az/go-exc/exc"
)

// Fetcher is the venue-specific half: a one-shot REST listing plus an
// optional update stream for a given instrument tag ("SPOT", "FUTURES").
// SubscribeUpdates may return a nil channel if the venue has no push
// update for the tag — the cache then relies on the caller periodically
// calling Refresh.
type Fetcher interface {
	FetchInstruments(ctx context.Context, tag string) ([]*exc.InstrumentMeta, error)
	SubscribeUpdates(ctx context.Context, tag string) (<-chan *exc.InstrumentMeta, error)
}

// Cache is the H component: by_symbol / by_native indices, kept
// current by a single coalesced warmup per tag and last-writer-wins
// update application.
type Cache struct {
	fetcher Fetcher

	mu       sync.RWMutex
	bySymbol map[exc.Symbol]*exc.InstrumentMeta
	byNative map[string]*exc.InstrumentMeta
	updateTS map[exc.Symbol]time.Time

	warm        sync.Map // tag -> struct{}, set once warmup succeeds
	warmupGroup singleflight.Group
}

// New builds an empty Cache backed by fetcher.
func New(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher:  fetcher,
		bySymbol: make(map[exc.Symbol]*exc.InstrumentMeta),
		byNative: make(map[string]*exc.InstrumentMeta),
		updateTS: make(map[exc.Symbol]time.Time),
	}
}

// GetInstrument returns the current InstrumentMeta for symbol, warming
// up tag's snapshot first if this is the first demand for it. Concurrent
// calls for the same tag before warmup completes coalesce into a single
// REST fetch.
func (c *Cache) GetInstrument(ctx context.Context, tag string, symbol exc.Symbol) (*exc.InstrumentMeta, error) {
	if err := c.ensureWarm(ctx, tag); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok := c.bySymbol[symbol]
	if !ok {
		return nil, exc.NewUsageError(exc.CodeUnknownInstrument, string(symbol))
	}
	return meta, nil
}

// GetByNative looks up an instrument by its venue-native name (e.g.
// Binance's "BTCUSDT" or OKX's "BTC-USDT") instead of the neutral Symbol.
func (c *Cache) GetByNative(ctx context.Context, tag, native string) (*exc.InstrumentMeta, error) {
	if err := c.ensureWarm(ctx, tag); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok := c.byNative[native]
	if !ok {
		return nil, exc.NewUsageError(exc.CodeUnknownInstrument, native)
	}
	return meta, nil
}

// ensureWarm triggers the first REST fetch and update subscription for
// tag, exactly once, coalescing concurrent callers via singleflight.
func (c *Cache) ensureWarm(ctx context.Context, tag string) error {
	if _, ok := c.warm.Load(tag); ok {
		return nil
	}

	_, err, _ := c.warmupGroup.Do(tag, func() (any, error) {
		if _, ok := c.warm.Load(tag); ok {
			return nil, nil
		}

		metas, err := c.fetcher.FetchInstruments(ctx, tag)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for _, m := range metas {
			c.applyLocked(m)
		}
		c.mu.Unlock()

		c.warm.Store(tag, struct{}{})
		go c.watchUpdates(tag)

		return nil, nil
	})

	return err
}

// watchUpdates runs for the lifetime of the process, applying push
// updates as they arrive. A nil update channel (venue has none for this
// tag) simply returns — Refresh is then the only reconciliation path.
func (c *Cache) watchUpdates(tag string) {
	ch, err := c.fetcher.SubscribeUpdates(context.Background(), tag)
	if err != nil || ch == nil {
		return
	}

	for meta := range ch {
		c.Apply(meta)
	}
}

// Refresh re-fetches tag's full listing via REST and reconciles it with
// last-writer-wins, for venues/tags with no push update stream.
func (c *Cache) Refresh(ctx context.Context, tag string) error {
	metas, err := c.fetcher.FetchInstruments(ctx, tag)
	if err != nil {
		return err
	}
	for _, m := range metas {
		c.Apply(m)
	}
	return nil
}

// Apply reconciles one instrument update with last-writer-wins on
// (symbol, update_ts): an update strictly older than the current
// entry's timestamp is dropped.
func (c *Cache) Apply(meta *exc.InstrumentMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(meta)
}

func (c *Cache) applyLocked(meta *exc.InstrumentMeta) {
	if prevTS, ok := c.updateTS[meta.Symbol]; ok && meta.UpdatedAt.Before(prevTS) {
		return
	}

	c.bySymbol[meta.Symbol] = meta
	c.byNative[meta.Native] = meta
	c.updateTS[meta.Symbol] = meta.UpdatedAt
}
