package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/go-exc/exc"
	"github.com/fd1az/go-exc/exc/auth"
	"github.com/fd1az/go-exc/internal/apperror"
	"github.com/fd1az/go-exc/internal/httpclient"
	"github.com/fd1az/go-exc/internal/ratelimit"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

const (
	DefaultBaseURL = "https://api.binance.com"

	tracerName = "github.com/fd1az/go-exc/venue/binance"

	exchangeInfoEndpoint = "/api/v3/exchangeInfo"
	klinesEndpoint       = "/api/v3/klines"
	listenKeyEndpoint    = "/api/v3/userDataStream"
	orderEndpoint        = "/api/v3/order"

	// candlePagerRequestsPerMinute paces FetchCandles' paging loop well
	// under Binance's shared 1200 weight/min REST budget.
	candlePagerRequestsPerMinute = 1000
)

// HTTPClient is the signed REST half of the Binance adaptor:
// instrument listings, candle pagination, listen-key bootstrap and
// trading calls.
type HTTPClient struct {
	client  httpclient.Client
	creds   *exc.Credentials
	baseURL string
	tracer  trace.Tracer
	pager   *ratelimit.Limiter
}

// NewHTTPClient builds an instrumented Binance REST client. creds is
// nil for public-only endpoints (FetchInstruments, FetchCandles); the
// listen-key and trading calls require it.
func NewHTTPClient(baseURL string, creds *exc.Credentials) (*HTTPClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(10*time.Second),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("binance http client: %w", err)
	}

	return &HTTPClient{
		client:  client,
		creds:   creds,
		baseURL: baseURL,
		tracer:  otel.Tracer(tracerName),
		pager:   ratelimit.New(candlePagerRequestsPerMinute),
	}, nil
}

// FetchInstruments lists every SPOT symbol, satisfying
// instrument.Fetcher for the instrument cache's REST warmup.
func (c *HTTPClient) FetchInstruments(ctx context.Context, tag string) ([]*exc.InstrumentMeta, error) {
	ctx, span := c.tracer.Start(ctx, "binance.http.exchange_info")
	defer span.End()

	var info ExchangeInfo
	resp, err := c.client.NewRequest().SetResult(&info).Get(ctx, exchangeInfoEndpoint)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Transient(apperror.CodeConnectionFailed, "fetch exchange info", err)
	}
	if resp.IsError() {
		return nil, apperror.Transient(apperror.CodeConnectionFailed, fmt.Sprintf("exchange info HTTP %d", resp.StatusCode), nil)
	}

	now := time.Now()
	metas := make([]*exc.InstrumentMeta, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		metas = append(metas, s.toInstrumentMeta(now))
	}

	span.SetAttributes(attribute.Int("count", len(metas)))
	return metas, nil
}

// SubscribeUpdates has no Binance equivalent — the instrument list is
// polled via Refresh, never pushed — so this always returns a nil
// channel (instrument.Cache treats that as "no push source").
func (c *HTTPClient) SubscribeUpdates(ctx context.Context, tag string) (<-chan *exc.InstrumentMeta, error) {
	return nil, nil
}

// FetchCandles pages klines *forward* in period-sized windows of ≤limit
// rows: each page's last candle advances the next page's startTime, and
// paging stops once the venue hands back a short page (fewer than limit
// rows — upstream exhaustion) or the window's upper bound is reached.
// The pager limiter paces page requests the way it paces the rest of
// the REST surface.
func (c *HTTPClient) FetchCandles(ctx context.Context, sym exc.Symbol, period exc.Period, rng exc.Range, limit int) ([]exc.Candle, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	endMillis, hasEnd := exc.EndMillis(rng.End)

	var all []exc.Candle
	cur := rng
	for {
		if c.pager != nil {
			if err := c.pager.Wait(ctx); err != nil {
				return nil, apperror.Transient(apperror.CodeConnectionFailed, "candle pagination rate limit wait", err)
			}
		}

		page, err := c.fetchCandlesPage(ctx, sym, period, cur, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < limit {
			break
		}

		nextStart := page[len(page)-1].OpenTime.Add(time.Duration(period)).UnixMilli()
		if hasEnd && nextStart >= endMillis {
			break
		}
		cur = exc.Range{Start: exc.Bound{Kind: exc.Excluded, Ts: nextStart}, End: rng.End}
	}

	return all, nil
}

// fetchCandlesPage performs a single klines REST call over a [start, end)
// window.
func (c *HTTPClient) fetchCandlesPage(ctx context.Context, sym exc.Symbol, period exc.Period, rng exc.Range, limit int) ([]exc.Candle, error) {
	ctx, span := c.tracer.Start(ctx, "binance.http.klines",
		trace.WithAttributes(attribute.String("symbol", sym.String())))
	defer span.End()

	req := c.client.NewRequest().
		SetQueryParam("symbol", nativeSymbol(sym)).
		SetQueryParam("interval", intervalFor(period)).
		SetQueryParam("limit", strconv.Itoa(limit))

	if start, ok := exc.StartMillis(rng.Start); ok {
		req.SetQueryParam("startTime", strconv.FormatInt(start, 10))
	}
	if end, ok := exc.EndMillis(rng.End); ok {
		req.SetQueryParam("endTime", strconv.FormatInt(end, 10))
	}

	var raw [][]any
	resp, err := req.SetResult(&raw).Get(ctx, klinesEndpoint)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Transient(apperror.CodeConnectionFailed, "fetch klines", err)
	}
	if resp.IsError() {
		return nil, apperror.Transient(apperror.CodeConnectionFailed, fmt.Sprintf("klines HTTP %d", resp.StatusCode), nil)
	}

	candles := make([]exc.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := klineRowToCandle(sym, row)
		if err != nil {
			continue
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// klineRowToCandle parses one row of the REST klines array response:
// [openTime, open, high, low, close, volume, closeTime, ...].
func klineRowToCandle(sym exc.Symbol, row []any) (exc.Candle, error) {
	if len(row) < 7 {
		return exc.Candle{}, fmt.Errorf("short kline row")
	}

	ev := &KlineEvent{Symbol: nativeSymbol(sym)}
	ev.Kline.OpenTime = int64(row[0].(float64))
	ev.Kline.Open, _ = row[1].(string)
	ev.Kline.High, _ = row[2].(string)
	ev.Kline.Low, _ = row[3].(string)
	ev.Kline.Close, _ = row[4].(string)
	ev.Kline.Volume, _ = row[5].(string)
	ev.Kline.CloseTime = int64(row[6].(float64))

	return ev.toCandle(sym)
}

// CreateListenKey bootstraps the user-data stream gate: Binance
// has no WS login frame, only a listen-key minted over signed REST and
// renewed by keepAlive.
func (c *HTTPClient) CreateListenKey(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", apperror.Usage(apperror.CodeRequiredField, "listen key requires credentials")
	}

	var result struct {
		ListenKey string `json:"listenKey"`
	}

	resp, err := c.client.NewRequest().
		SetHeader("X-MBX-APIKEY", c.creds.APIKey).
		SetResult(&result).
		Post(ctx, listenKeyEndpoint)
	if err != nil {
		return "", apperror.Auth(apperror.CodeLoginFailed, "create listen key", err)
	}
	if resp.IsError() {
		return "", apperror.Auth(apperror.CodeLoginFailed, fmt.Sprintf("listen key HTTP %d", resp.StatusCode), nil)
	}

	return result.ListenKey, nil
}

// KeepAliveListenKey refreshes the listen key's 60-minute TTL; the venue
// service calls this on a ticker well inside that window.
func (c *HTTPClient) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	resp, err := c.client.NewRequest().
		SetHeader("X-MBX-APIKEY", c.creds.APIKey).
		SetQueryParam("listenKey", listenKey).
		Put(ctx, listenKeyEndpoint)
	if err != nil {
		return apperror.Transient(apperror.CodeConnectionFailed, "keepalive listen key", err)
	}
	if resp.IsError() {
		return apperror.Auth(apperror.CodeListenKeyExpired, fmt.Sprintf("keepalive HTTP %d", resp.StatusCode), nil)
	}
	return nil
}

// signedQuery appends timestamp+signature to a query string the way
// every private Binance REST call requires (HMAC-SHA256 over the raw
// query string, hex-encoded).
func (c *HTTPClient) signedQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	raw := params.Encode()
	params.Set("signature", auth.SignHex(c.creds.APISecret, raw))
	return params.Encode()
}

// PlaceOrder submits a signed order and returns the venue order id.
func (c *HTTPClient) PlaceOrder(ctx context.Context, req exc.PlaceOrder) (exc.OrderID, error) {
	if c.creds == nil {
		return "", apperror.Usage(apperror.CodeRequiredField, "place order requires credentials")
	}

	side := "BUY"
	if req.Side == exc.SideSell {
		side = "SELL"
	}
	orderType := "LIMIT"
	if req.Kind_ == exc.OrderKindMarket {
		orderType = "MARKET"
	}

	params := url.Values{}
	params.Set("symbol", nativeSymbol(req.Symbol))
	params.Set("side", side)
	params.Set("type", orderType)
	params.Set("quantity", req.Size.String())
	if orderType == "LIMIT" {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	}
	query := c.signedQuery(params)

	var result struct {
		OrderID int64 `json:"orderId"`
	}

	resp, err := c.client.NewRequest().
		SetHeader("X-MBX-APIKEY", c.creds.APIKey).
		SetResult(&result).
		Post(ctx, orderEndpoint+"?"+query)
	if err != nil {
		return "", apperror.Transient(apperror.CodeConnectionFailed, "place order", err)
	}
	if resp.IsError() {
		return "", apperror.Semantic(apperror.CodeOrderRejected, resp.String(), "place order rejected")
	}

	return exc.OrderID(strconv.FormatInt(result.OrderID, 10)), nil
}

// CancelOrder cancels a resting order by venue id.
func (c *HTTPClient) CancelOrder(ctx context.Context, sym exc.Symbol, id exc.OrderID) error {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(sym))
	params.Set("orderId", string(id))
	query := c.signedQuery(params)

	resp, err := c.client.NewRequest().
		SetHeader("X-MBX-APIKEY", c.creds.APIKey).
		Delete(ctx, orderEndpoint+"?"+query)
	if err != nil {
		return apperror.Transient(apperror.CodeConnectionFailed, "cancel order", err)
	}
	if resp.IsError() {
		return apperror.Semantic(apperror.CodeOrderRejected, resp.String(), "cancel order rejected")
	}
	return nil
}

// GetOrder fetches a single order's current state.
func (c *HTTPClient) GetOrder(ctx context.Context, sym exc.Symbol, id exc.OrderID) (*exc.Order, error) {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(sym))
	params.Set("orderId", string(id))
	query := c.signedQuery(params)

	var result struct {
		OrderID       int64  `json:"orderId"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Status        string `json:"status"`
	}

	resp, err := c.client.NewRequest().
		SetHeader("X-MBX-APIKEY", c.creds.APIKey).
		SetResult(&result).
		Get(ctx, orderEndpoint+"?"+query)
	if err != nil {
		return nil, apperror.Transient(apperror.CodeConnectionFailed, "get order", err)
	}
	if resp.IsError() {
		return nil, apperror.NotFound(apperror.CodeNotFound, "order not found")
	}

	return decodeOrder(sym, result.OrderID, result.Side, result.Type, result.Price, result.OrigQty, result.ExecutedQty, result.Status)
}

func decodeOrder(sym exc.Symbol, venueID int64, side, kind, price, origQty, execQty, status string) (*exc.Order, error) {
	o := &exc.Order{
		ID:     exc.OrderID(strconv.FormatInt(venueID, 10)),
		Symbol: sym,
		Side:   exc.SideBuy,
		Kind:   exc.OrderKindLimit,
		State:  orderStateFromBinance(status),
	}
	if side == "SELL" {
		o.Side = exc.SideSell
	}
	if kind == "MARKET" {
		o.Kind = exc.OrderKindMarket
	}
	if d, err := parseDecimal(price); err == nil {
		o.Price = d
	}
	if d, err := parseDecimal(origQty); err == nil {
		o.Size = d
	}
	if d, err := parseDecimal(execQty); err == nil {
		o.Filled = d
	}
	return o, nil
}

func orderStateFromBinance(status string) exc.OrderState {
	switch status {
	case "NEW":
		return exc.OrderPending
	case "PARTIALLY_FILLED":
		return exc.OrderPartial
	case "FILLED":
		return exc.OrderFilled
	case "CANCELED", "EXPIRED":
		return exc.OrderCanceled
	case "REJECTED":
		return exc.OrderRejected
	default:
		return exc.OrderLive
	}
}
