package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fd1az/go-exc/exc"
	"github.com/fd1az/go-exc/exc/auth"
	"github.com/fd1az/go-exc/exc/instrument"
	"github.com/fd1az/go-exc/exc/layer"
	"github.com/fd1az/go-exc/exc/mux"
	"github.com/fd1az/go-exc/exc/transport"
	"github.com/fd1az/go-exc/internal/apperror"
)

const (
	publicWSURL  = "wss://ws.okx.com:8443/ws/v5/public"
	privateWSURL = "wss://ws.okx.com:8443/ws/v5/private"
)

// Config is the venue-specific connection info an Endpoint builder
// supplies on top of the neutral exc.EndpointConfig options.
type Config struct {
	PublicWSURL  string
	PrivateWSURL string
	HTTPURL      string
}

// DefaultConfig points at OKX's production endpoints.
func DefaultConfig() Config {
	return Config{PublicWSURL: publicWSURL, PrivateWSURL: privateWSURL, HTTPURL: DefaultBaseURL}
}

// NewService builds the full OKX Service stack, mirroring
// venue/binance's composition: Adaptor translation fused with the
// innermost engine touching the Multiplexer, wrapped by Reconnect, then
// Breaker, Buffer, Timeout, Retry and RateLimit as the caller-facing
// policy layers. The instrument cache is returned alongside the
// Service.
func NewService(ctx context.Context, venueCfg Config, cfg exc.EndpointConfig) (exc.Service, *instrument.Cache, error) {
	httpClient, err := NewHTTPClient(venueCfg.HTTPURL, cfg.Private)
	if err != nil {
		return nil, nil, err
	}

	cache := instrument.New(httpClient)

	connector := &connector{venueCfg: venueCfg, cfg: cfg, http: httpClient, cache: cache}
	reconnect := layer.NewReconnect(ctx, connector, cfg.ReconnectBackoff)
	base := layer.Breaker(layer.DefaultBreakerConfig("okx"))(reconnect)

	limiter := layer.NewLimiter(cfg.RateLimit)
	svc := exc.Stack(base,
		layer.Buffer(cfg.BufferBound),
		layer.Timeout(cfg.WSRequestTimeout),
		layer.Retry(layer.DefaultRetryConfig(), cfg.SemanticAllowList, limiter),
		layer.RateLimitWithLimiter(limiter),
	)

	return svc, cache, nil
}

// connector implements layer.Connector over OKX's public channel. The
// private (login-gated) order stream is a separate connection built
// lazily on first SubscribeOrders call, not part of the reconnect
// generation the public Mux lives in — OKX logins are cheap and
// re-established independently of public market data.
type connector struct {
	venueCfg Config
	cfg      exc.EndpointConfig
	http     *HTTPClient
	cache    *instrument.Cache

	genMu       sync.Mutex
	prevDurable []mux.Subscription
}

func (c *connector) Connect(ctx context.Context) (exc.Service, <-chan struct{}, error) {
	ch, err := transport.New(transport.DefaultConfig(c.venueCfg.PublicWSURL, "okx-public"))
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Connect(ctx); err != nil {
		return nil, nil, err
	}

	a := &adaptorService{http: c.http, cache: c.cache, venueCfg: c.venueCfg, creds: c.cfg.Private}
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

// adaptorService is the Adaptor for OKX.
type adaptorService struct {
	mux      *mux.Mux
	http     *HTTPClient
	cache    *instrument.Cache
	venueCfg Config
	creds    *exc.Credentials

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
		return a.subscribeStream(ctx, "tickers", r.Symbol, decodeTickers)
	case exc.SubscribeBidAsk:
		return a.subscribeStream(ctx, "tickers", r.Symbol, decodeTickers)
	case exc.SubscribeTrades:
		return a.subscribeStream(ctx, "trades", r.Symbol, decodeTrades)
	case exc.SubscribeOrders:
		return a.subscribeOrders(ctx)

	case exc.FetchInstruments:
		return a.fetchInstruments(ctx, r.Tag)

	case exc.FetchCandles:
		return a.fetchCandles(ctx, r.Symbol, r.Period, r.Range, r.Limit)
	case exc.FetchFirstCandles:
		// OKX's recent-candles endpoint doesn't reach far enough back for
		// "from the start of history" — route through history-candles
		// with an explicit start at epoch.
		firstRange := exc.Range{Start: exc.Bound{Kind: exc.Excluded, Ts: 0}}
		return a.fetchCandlesHistory(ctx, r.Symbol, r.Period, firstRange, r.Limit)
	case exc.FetchLastCandles:
		return a.fetchCandles(ctx, r.Symbol, r.Period, exc.Range{}, r.Limit)

	case exc.PlaceOrder:
		return a.placeOrder(ctx, r)
	case exc.CancelOrder:
		return a.cancelOrder(ctx, r)
	case exc.GetOrder:
		return a.getOrder(ctx, r)

	default:
		return exc.Response{}, apperror.Usage(apperror.CodeUnsupportedOp, fmt.Sprintf("okx: unsupported request %T", req))
	}
}

type decodeFn func(sym exc.Symbol, raw []byte) ([]exc.Event, error)

// subscribeStream subscribes to an instrument-scoped public channel.
// OKX push frames carry an array of updates per frame (batched trades
// in particular), so decode returns a slice rather than a single event.
func (a *adaptorService) subscribeStream(ctx context.Context, channel string, sym exc.Symbol, decode decodeFn) (exc.Response, error) {
	instID := nativeInstID(sym)
	sub := mux.Subscription{
		Channel: subscriptionKey(channel, instID),
		Args:    map[string]string{"channel": channel, "instId": instID},
	}

	raw, err := a.mux.Subscribe(ctx, sub)
	if err != nil {
		return exc.Response{}, err
	}

	out := make(chan exc.Event, cap(raw))
	go func() {
		defer close(out)
		for frame := range raw {
			events, err := decode(sym, frame)
			if err != nil {
				continue
			}
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return exc.Response{Stream: out}, nil
}

func decodeTickers(sym exc.Symbol, raw []byte) ([]exc.Event, error) {
	var items []tickerPush
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	events := make([]exc.Event, 0, len(items))
	for _, item := range items {
		ba, err := item.toBidAsk(sym)
		if err != nil {
			continue
		}
		events = append(events, exc.BidAskEvent{BidAsk: ba})
	}
	return events, nil
}

func decodeTrades(sym exc.Symbol, raw []byte) ([]exc.Event, error) {
	var items []tradePush
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	events := make([]exc.Event, 0, len(items))
	for _, item := range items {
		t, err := item.toTrade(sym)
		if err != nil {
			continue
		}
		events = append(events, exc.TradeEvent{Trade: t})
	}
	return events, nil
}

// subscribeOrders opens the private order-event stream: a fresh
// WebSocket connects to the private endpoint, a login frame is signed
// and sent directly (outside the public Mux — the gate resolves once
// the "login" event event comes back), then the "orders" channel is
// subscribed for every instrument type this adaptor trades (SPOT).
// There is exactly one user stream per adaptor instance — repeated
// calls share it.
func (a *adaptorService) subscribeOrders(ctx context.Context) (exc.Response, error) {
	a.userStreamOnce.Do(func() {
		if a.creds == nil {
			a.userStreamErr = apperror.Usage(apperror.CodeRequiredField, "subscribe orders requires credentials")
			return
		}

		ch, err := transport.New(transport.DefaultConfig(a.venueCfg.PrivateWSURL, "okx-private"))
		if err != nil {
			a.userStreamErr = err
			return
		}
		if err := ch.Connect(ctx); err != nil {
			a.userStreamErr = err
			return
		}

		gate := auth.NewGate(true)

		loginReq := WSRequest{Op: "login", Args: []WSArg{loginArg(a.creds)}}
		payload, _ := json.Marshal(loginReq)
		if err := ch.Send(ctx, payload); err != nil {
			a.userStreamErr = err
			return
		}

		out := make(chan exc.Event, 64)
		go a.runPrivateStream(ctx, ch, gate, out)

		if err := gate.Ready(ctx); err != nil {
			a.userStreamErr = apperror.Auth(apperror.CodeLoginFailed, "okx login", err)
			return
		}

		subReq := WSRequest{Op: "subscribe", Args: []WSArg{{Channel: "orders", InstType: "SPOT"}}}
		subPayload, _ := json.Marshal(subReq)
		if err := ch.Send(ctx, subPayload); err != nil {
			a.userStreamErr = err
			return
		}

		a.userStreamCh = out
	})

	if a.userStreamErr != nil {
		return exc.Response{}, a.userStreamErr
	}
	return exc.Response{Stream: a.userStreamCh}, nil
}

// runPrivateStream decodes the private connection's raw frames directly
// (it is never handed to a Mux): the first event resolves the login
// gate, subsequent "orders" pushes are converted and forwarded.
func (a *adaptorService) runPrivateStream(ctx context.Context, ch *transport.Channel, gate *auth.Gate, out chan<- exc.Event) {
	defer close(out)

	for {
		select {
		case frame, ok := <-ch.Messages():
			if !ok {
				return
			}

			var ev WSEvent
			if err := json.Unmarshal(frame, &ev); err == nil && ev.Event != "" {
				if ev.Event == "login" {
					if ev.isError() {
						gate.Resolve(fmt.Errorf("okx: login %s %s", ev.Code, ev.Msg))
					} else {
						gate.Resolve(nil)
					}
				}
				continue
			}

			var push WSPush
			if err := json.Unmarshal(frame, &push); err != nil || push.Arg.Channel != "orders" {
				continue
			}

			for _, raw := range push.Data {
				var o orderPush
				if err := json.Unmarshal(raw, &o); err != nil {
					continue
				}
				order := o.toOrder(symbolFromInstID(o.InstID))
				select {
				case out <- exc.OrderEvent{Order: order}:
				case <-ctx.Done():
					return
				}
			}

		case <-ch.Closed():
			return
		case <-ctx.Done():
			_ = ch.Close()
			return
		}
	}
}

func loginArg(creds *exc.Credentials) WSArg {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sign := auth.SignBase64(creds.APISecret, ts+"GET"+"/users/self/verify")
	return WSArg{APIKey: creds.APIKey, Passphrase: creds.Passphrase, Timestamp: ts, Sign: sign}
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
	candles, err := a.http.FetchCandles(ctx, sym, period, rng, limit, false)
	if err != nil {
		return exc.Response{}, err
	}
	return candlesToResponse(candles), nil
}

func (a *adaptorService) fetchCandlesHistory(ctx context.Context, sym exc.Symbol, period exc.Period, rng exc.Range, limit int) (exc.Response, error) {
	candles, err := a.http.FetchCandles(ctx, sym, period, rng, limit, true)
	if err != nil {
		return exc.Response{}, err
	}
	return candlesToResponse(candles), nil
}

func candlesToResponse(candles []exc.Candle) exc.Response {
	out := make(chan exc.Event, len(candles))
	for _, c := range candles {
		out <- exc.CandleEvent{Candle: c}
	}
	close(out)
	return exc.Response{Stream: out}
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
