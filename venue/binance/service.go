package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fd1az/go-exc/exc"
	"github.com/fd1az/go-exc/exc/instrument"
	"github.com/fd1az/go-exc/exc/layer"
	"github.com/fd1az/go-exc/exc/mux"
	"github.com/fd1az/go-exc/exc/transport"
	"github.com/fd1az/go-exc/internal/apperror"
)

const combinedStreamBase = "wss://stream.binance.com:9443/stream"

// Config is the venue-specific connection info an Endpoint builder
// supplies on top of the neutral exc.EndpointConfig options.
type Config struct {
	WSBaseURL string
	HTTPURL   string
}

// DefaultConfig points at Binance's production endpoints.
func DefaultConfig() Config {
	return Config{WSBaseURL: combinedStreamBase, HTTPURL: DefaultBaseURL}
}

// NewService builds the full Binance Service stack: Adaptor
// translation fused with the innermost engine touching the Multiplexer,
// wrapped by Reconnect, then Breaker, Buffer, Timeout, Retry and
// RateLimit as the caller-facing policy layers, in that inside-out
// order. The instrument cache is returned alongside the Service since
// GetInstrument is a synchronous lookup sitting beside the
// request/response stack, not a Request variant.
func NewService(ctx context.Context, venueCfg Config, cfg exc.EndpointConfig) (exc.Service, *instrument.Cache, error) {
	httpClient, err := NewHTTPClient(venueCfg.HTTPURL, cfg.Private)
	if err != nil {
		return nil, nil, err
	}

	cache := instrument.New(httpClient)

	connector := &connector{venueCfg: venueCfg, cfg: cfg, http: httpClient, cache: cache}
	reconnect := layer.NewReconnect(ctx, connector, cfg.ReconnectBackoff)
	base := layer.Breaker(layer.DefaultBreakerConfig("binance"))(reconnect)

	limiter := layer.NewLimiter(cfg.RateLimit)
	svc := exc.Stack(base,
		layer.Buffer(cfg.BufferBound),
		layer.Timeout(cfg.WSRequestTimeout),
		layer.Retry(layer.DefaultRetryConfig(), cfg.SemanticAllowList, limiter),
		layer.RateLimitWithLimiter(limiter),
	)

	return svc, cache, nil
}

// connector implements layer.Connector: each Connect call dials a fresh
// combined-stream Channel, runs a fresh Mux over it, and wraps both in
// an adaptorService. Durable subscriptions from the previous generation
// (if any) are replayed before the new generation is handed back.
type connector struct {
	venueCfg Config
	cfg      exc.EndpointConfig
	http     *HTTPClient
	cache    *instrument.Cache

	genMu       sync.Mutex
	prevDurable []mux.Subscription
}

func (c *connector) Connect(ctx context.Context) (exc.Service, <-chan struct{}, error) {
	ch, err := transport.New(transport.DefaultConfig(c.venueCfg.WSBaseURL, "binance"))
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Connect(ctx); err != nil {
		return nil, nil, err
	}

	a := &adaptorService{http: c.http, cache: c.cache}
	codec := NewCodec(nil)
	m, err := mux.New(ch, codec, c.cfg.BufferBound)
	if err != nil {
		return nil, nil, err
	}
	codec.resolve = m.ResolveChannel
	a.mux = m

	go m.Run(ctx)

	c.genMu.Lock()
	durable := c.prevDurable
	c.genMu.Unlock()

	for _, sub := range durable {
		if _, err := m.Subscribe(ctx, sub); err != nil {
			// Best-effort replay: a failed resubscribe is left for
			// the caller's telemetry to surface, not fatal to the new
			// generation.
			continue
		}
	}

	go func() {
		<-ch.Closed()
		c.genMu.Lock()
		c.prevDurable = m.Durable()
		c.genMu.Unlock()
	}()

	return a, ch.Closed(), nil
}

// adaptorService is the Adaptor: the only place that translates
// between exc.Request/Response and the mux's (Subscription, json.RawMessage)
// vocabulary. It holds no state of its own beyond references to the
// current generation's mux and the shared instrument cache.
type adaptorService struct {
	mux   *mux.Mux
	http  *HTTPClient
	cache *instrument.Cache

	userStreamOnce sync.Once
	userStreamErr  error
	userStreamCh   <-chan exc.Event
}

func (a *adaptorService) Ready(ctx context.Context) error {
	return nil
}

func (a *adaptorService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	switch r := req.(type) {
	case exc.SubscribeTickers:
		return a.subscribeStream(ctx, streamName("bookTicker", r.Symbol, ""), r.Symbol, decodeBookTicker)
	case exc.SubscribeBidAsk:
		return a.subscribeStream(ctx, streamName("bookTicker", r.Symbol, ""), r.Symbol, decodeBookTicker)
	case exc.SubscribeTrades:
		return a.subscribeStream(ctx, streamName("aggTrade", r.Symbol, ""), r.Symbol, decodeAggTrade)
	case exc.SubscribeOrders:
		return a.subscribeOrders(ctx)

	case exc.FetchInstruments:
		return a.fetchInstruments(ctx, r.Tag)

	case exc.FetchCandles:
		return a.fetchCandles(ctx, r.Symbol, r.Period, r.Range, r.Limit)
	case exc.FetchFirstCandles:
		// Binance's klines endpoint with no startTime/endTime returns the
		// most recent `limit` candles, not the oldest — "first" needs an
		// explicit start at the beginning of history (startTime=0) to get
		// that ordering.
		firstRange := exc.Range{Start: exc.Bound{Kind: exc.Excluded, Ts: 0}}
		return a.fetchCandles(ctx, r.Symbol, r.Period, firstRange, r.Limit)
	case exc.FetchLastCandles:
		// No bound needed: Binance's default (no startTime/endTime) is
		// already "most recent limit candles, ascending". Only that page
		// is returned; older candles are not paged backward.
		return a.fetchCandles(ctx, r.Symbol, r.Period, exc.Range{}, r.Limit)

	case exc.PlaceOrder:
		return a.placeOrder(ctx, r)
	case exc.CancelOrder:
		return a.cancelOrder(ctx, r)
	case exc.GetOrder:
		return a.getOrder(ctx, r)

	default:
		return exc.Response{}, apperror.Usage(apperror.CodeUnsupportedOp, fmt.Sprintf("binance: unsupported request %T", req))
	}
}

type decodeFn func(sym exc.Symbol, raw []byte) (exc.Event, error)

func (a *adaptorService) subscribeStream(ctx context.Context, channel string, sym exc.Symbol, decode decodeFn) (exc.Response, error) {
	raw, err := a.mux.Subscribe(ctx, mux.Subscription{Channel: channel})
	if err != nil {
		return exc.Response{}, err
	}

	out := make(chan exc.Event, cap(raw))
	go func() {
		defer close(out)
		for frame := range raw {
			ev, err := decode(sym, frame)
			if err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return exc.Response{Stream: out}, nil
}

func decodeBookTicker(sym exc.Symbol, raw []byte) (exc.Event, error) {
	var e BookTickerEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	ba, err := e.toBidAsk(sym)
	if err != nil {
		return nil, err
	}
	return exc.BidAskEvent{BidAsk: ba}, nil
}

func decodeAggTrade(sym exc.Symbol, raw []byte) (exc.Event, error) {
	var e AggTradeEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	t, err := e.toTrade(sym)
	if err != nil {
		return nil, err
	}
	return exc.TradeEvent{Trade: t}, nil
}

// executionReportEvent is Binance's user-data-stream order event.
type executionReportEvent struct {
	EventType       string `json:"e"`
	Symbol          string `json:"s"`
	OrderID         int64  `json:"i"`
	Side            string `json:"S"`
	OrderType       string `json:"o"`
	Price           string `json:"p"`
	OrigQty         string `json:"q"`
	ExecutedQty     string `json:"z"`
	OrderStatus     string `json:"X"`
}

// subscribeOrders opens the user-data stream: a listen key is
// minted over signed REST, the gate resolves once the stream connects,
// and the key is kept alive on a ticker for the life of the
// subscription. There is exactly one user stream per connection
// generation — repeated calls share it.
func (a *adaptorService) subscribeOrders(ctx context.Context) (exc.Response, error) {
	a.userStreamOnce.Do(func() {
		listenKey, err := a.http.CreateListenKey(ctx)
		if err != nil {
			a.userStreamErr = err
			return
		}

		url := "wss://stream.binance.com:9443/ws/" + listenKey
		ch, err := transport.New(transport.DefaultConfig(url, "binance-userdata"))
		if err != nil {
			a.userStreamErr = err
			return
		}
		if err := ch.Connect(ctx); err != nil {
			a.userStreamErr = err
			return
		}

		go keepAliveListenKey(ctx, a.http, listenKey)

		out := make(chan exc.Event, 64)
		go func() {
			defer close(out)
			for {
				select {
				case frame, ok := <-ch.Messages():
					if !ok {
						return
					}
					var e executionReportEvent
					if err := json.Unmarshal(frame, &e); err != nil || e.EventType != "executionReport" {
						continue
					}
					order := executionReportToOrder(e)
					select {
					case out <- exc.OrderEvent{Order: order}:
					case <-ctx.Done():
						return
					}
				case <-ch.Closed():
					return
				case <-ctx.Done():
					_ = ch.Close()
					return
				}
			}
		}()

		a.userStreamCh = out
	})

	if a.userStreamErr != nil {
		return exc.Response{}, a.userStreamErr
	}
	return exc.Response{Stream: a.userStreamCh}, nil
}

func executionReportToOrder(e executionReportEvent) *exc.Order {
	o := &exc.Order{
		ID:     exc.OrderID(fmt.Sprintf("%d", e.OrderID)),
		Symbol: symbolFromNative(e.Symbol),
		Side:   exc.SideBuy,
		Kind:   exc.OrderKindLimit,
		State:  orderStateFromBinance(e.OrderStatus),
	}
	if e.Side == "SELL" {
		o.Side = exc.SideSell
	}
	if e.OrderType == "MARKET" {
		o.Kind = exc.OrderKindMarket
	}
	o.Price, _ = parseDecimal(e.Price)
	o.Size, _ = parseDecimal(e.OrigQty)
	o.Filled, _ = parseDecimal(e.ExecutedQty)
	return o
}

// symbolFromNative cannot recover the original base/quote split from a
// concatenated native symbol without an instrument lookup; callers that
// need the split should resolve it through the instrument cache. Events
// here carry Base as the full native string so identity is preserved.
func symbolFromNative(native string) exc.Symbol {
	return exc.Symbol{Base: native, Kind: exc.KindSpot}
}

func (a *adaptorService) fetchInstruments(ctx context.Context, tag string) (exc.Response, error) {
	metas, err := a.http.FetchInstruments(ctx, tag)
	if err != nil {
		return exc.Response{}, err
	}

	out := make(chan exc.Event, len(metas))
	for _, m := range metas {
		out <- exc.InstrumentEvent{Meta: m}
	}
	close(out)

	return exc.Response{Stream: out}, nil
}

func (a *adaptorService) fetchCandles(ctx context.Context, sym exc.Symbol, period exc.Period, rng exc.Range, limit int) (exc.Response, error) {
	candles, err := a.http.FetchCandles(ctx, sym, period, rng, limit)
	if err != nil {
		return exc.Response{}, err
	}

	out := make(chan exc.Event, len(candles))
	for _, c := range candles {
		out <- exc.CandleEvent{Candle: c}
	}
	close(out)

	return exc.Response{Stream: out}, nil
}

func (a *adaptorService) placeOrder(ctx context.Context, req exc.PlaceOrder) (exc.Response, error) {
	future := make(chan exc.PlaceOrderResult, 1)

	go func() {
		defer close(future)
		id, err := a.http.PlaceOrder(ctx, req)
		future <- exc.PlaceOrderResult{ID: id, Err: err}
	}()

	return exc.Response{OrderIDFuture: future}, nil
}

func (a *adaptorService) cancelOrder(ctx context.Context, req exc.CancelOrder) (exc.Response, error) {
	if err := a.http.CancelOrder(ctx, req.Symbol, req.ID); err != nil {
		return exc.Response{}, err
	}
	return exc.Response{Order: &exc.Order{ID: req.ID, Symbol: req.Symbol, State: exc.OrderCanceled}}, nil
}

func (a *adaptorService) getOrder(ctx context.Context, req exc.GetOrder) (exc.Response, error) {
	order, err := a.http.GetOrder(ctx, req.Symbol, req.ID)
	if err != nil {
		return exc.Response{}, err
	}
	return exc.Response{Order: order}, nil
}

// keepAliveListenKey renews the user-data-stream listen key on a ticker
// well inside its 60-minute TTL.
func keepAliveListenKey(ctx context.Context, http *HTTPClient, listenKey string) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = http.KeepAliveListenKey(ctx, listenKey)
		case <-ctx.Done():
			return
		}
	}
}
