package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/go-exc/exc"
	"github.com/fd1az/go-exc/exc/auth"
	"github.com/fd1az/go-exc/internal/apperror"
	"github.com/fd1az/go-exc/internal/httpclient"
	"github.com/fd1az/go-exc/internal/ratelimit"
)

const (
	DefaultBaseURL = "https://www.okx.com"

	tracerName = "github.com/fd1az/go-exc/venue/okx"

	instrumentsEndpoint = "/api/v5/public/instruments"
	candlesEndpoint     = "/api/v5/market/candles"
	historyCandlesEndpoint = "/api/v5/market/history-candles"
	orderEndpoint       = "/api/v5/trade/order"
	cancelOrderEndpoint = "/api/v5/trade/cancel-order"

	// candlePagerRequestsPerMinute paces FetchCandles' paging loop well
	// under OKX's public market-data rate limit (20 requests/2s per rule).
	candlePagerRequestsPerMinute = 300
)

// envelope is the {"code":"0","msg":"","data":[...]} wrapper every OKX
// v5 REST response uses.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// HTTPClient is the signed REST half of the OKX adaptor:
// instrument listings, candle pagination and trading calls.
type HTTPClient struct {
	client  httpclient.Client
	creds   *exc.Credentials
	baseURL string
	tracer  trace.Tracer
	pager   *ratelimit.Limiter
}

// NewHTTPClient builds an instrumented OKX REST client. creds is nil for
// public-only endpoints; trading calls require it.
func NewHTTPClient(baseURL string, creds *exc.Credentials) (*HTTPClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("okx"),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(10*time.Second),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("okx http client: %w", err)
	}

	return &HTTPClient{
		client:  client,
		creds:   creds,
		baseURL: baseURL,
		tracer:  otel.Tracer(tracerName),
		pager:   ratelimit.New(candlePagerRequestsPerMinute),
	}, nil
}

// FetchInstruments lists every instrument under the given instType tag
// (SPOT, MARGIN, SWAP, FUTURES, OPTION), satisfying instrument.Fetcher
// for the instrument cache's REST warmup.
func (c *HTTPClient) FetchInstruments(ctx context.Context, tag string) ([]*exc.InstrumentMeta, error) {
	ctx, span := c.tracer.Start(ctx, "okx.http.instruments")
	defer span.End()

	instType, err := ParseInstType(tag)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var env envelope
	resp, err := c.client.NewRequest().
		SetQueryParam("instType", string(instType)).
		SetResult(&env).
		Get(ctx, instrumentsEndpoint)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Transient(apperror.CodeConnectionFailed, "fetch instruments", err)
	}
	if resp.IsError() || env.Code != "0" {
		return nil, apperror.Transient(apperror.CodeConnectionFailed, fmt.Sprintf("instruments HTTP %d code %s", resp.StatusCode, env.Code), nil)
	}

	var dtos []instrumentDTO
	if err := json.Unmarshal(env.Data, &dtos); err != nil {
		return nil, apperror.Protocol(apperror.CodeProtocolViolation, "decode instruments", err)
	}

	now := time.Now()
	metas := make([]*exc.InstrumentMeta, 0, len(dtos))
	for _, d := range dtos {
		if d.State != "live" {
			continue
		}
		metas = append(metas, d.toInstrumentMeta(now))
	}

	span.SetAttributes(attribute.Int("count", len(metas)))
	return metas, nil
}

// SubscribeUpdates has no OKX equivalent push source in this adaptor —
// the instrument list is polled via Refresh, never pushed — so this
// always returns a nil channel (instrument.Cache treats that as "no
// push source").
func (c *HTTPClient) SubscribeUpdates(ctx context.Context, tag string) (<-chan *exc.InstrumentMeta, error) {
	return nil, nil
}

// FetchCandles pages candles across a [start, end) window. OKX's "after"
// parameter returns records strictly older than the given ts, so unlike
// Binance this walks backward from the upper bound: each page's oldest
// candle becomes the next page's "after" pivot, and paging stops once a
// short page comes back (upstream exhaustion) or the oldest candle
// reaches the lower bound. The accumulated newest-first pages are
// reversed once at the end, the order every caller in this package
// expects. OKX's /market/candles only covers the last few days;
// history-candles serves anything older, so useHistory routes every
// page of the walk there.
func (c *HTTPClient) FetchCandles(ctx context.Context, sym exc.Symbol, period exc.Period, rng exc.Range, limit int, useHistory bool) ([]exc.Candle, error) {
	if limit <= 0 || limit > 300 {
		limit = 300
	}

	startMillis, hasStart := exc.StartMillis(rng.Start)
	after, hasAfter := exc.EndMillis(rng.End)

	var all []exc.Candle // newest-first
	first := true
	for {
		if c.pager != nil {
			if err := c.pager.Wait(ctx); err != nil {
				return nil, apperror.Transient(apperror.CodeConnectionFailed, "candle pagination rate limit wait", err)
			}
		}

		page, err := c.fetchCandlesPage(ctx, sym, period, rng.Start, hasStart && first, after, hasAfter, limit, useHistory)
		if err != nil {
			return nil, err
		}
		first = false
		all = append(all, page...)

		if len(page) < limit {
			break
		}

		oldest := page[len(page)-1].OpenTime.UnixMilli()
		if hasStart && oldest <= startMillis {
			break
		}
		after, hasAfter = oldest, true
	}

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	return all, nil
}

// fetchCandlesPage performs a single candles REST call. before/after mirror
// OKX's own pagination parameters: "before" returns records newer than the
// given ts, "after" returns records older than it (the opposite sense of
// Binance's startTime/endTime). includeBefore lets the paging loop send
// the lower bound only on its first page; subsequent pages are already
// walking strictly older than after.
func (c *HTTPClient) fetchCandlesPage(ctx context.Context, sym exc.Symbol, period exc.Period, startBound exc.Bound, includeBefore bool, after int64, hasAfter bool, limit int, useHistory bool) ([]exc.Candle, error) {
	ctx, span := c.tracer.Start(ctx, "okx.http.candles",
		trace.WithAttributes(attribute.String("symbol", sym.String())))
	defer span.End()

	endpoint := candlesEndpoint
	if useHistory {
		endpoint = historyCandlesEndpoint
	}

	req := c.client.NewRequest().
		SetQueryParam("instId", nativeInstID(sym)).
		SetQueryParam("bar", barFor(period)).
		SetQueryParam("limit", strconv.Itoa(limit))

	if includeBefore {
		if start, ok := exc.StartMillis(startBound); ok {
			req.SetQueryParam("before", strconv.FormatInt(start, 10))
		}
	}
	if hasAfter {
		req.SetQueryParam("after", strconv.FormatInt(after, 10))
	}

	var env envelope
	resp, err := req.SetResult(&env).Get(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Transient(apperror.CodeConnectionFailed, "fetch candles", err)
	}
	if resp.IsError() || env.Code != "0" {
		return nil, apperror.Transient(apperror.CodeConnectionFailed, fmt.Sprintf("candles HTTP %d code %s", resp.StatusCode, env.Code), nil)
	}

	var rows [][]any
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, apperror.Protocol(apperror.CodeProtocolViolation, "decode candles", err)
	}

	candles := make([]exc.Candle, 0, len(rows))
	for _, row := range rows {
		cd, err := candleRowToCandle(sym, row)
		if err != nil {
			continue
		}
		candles = append(candles, cd)
	}

	return candles, nil
}

// sign computes the OK-ACCESS-SIGN header value for a REST request:
// base64(HMAC-SHA256(secret, timestamp+method+requestPath+body)).
func (c *HTTPClient) sign(timestamp, method, requestPath, body string) string {
	return auth.SignBase64(c.creds.APISecret, timestamp+method+requestPath+body)
}

func (c *HTTPClient) signedHeaders(method, requestPath, body string) map[string]string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	return map[string]string{
		"OK-ACCESS-KEY":        c.creds.APIKey,
		"OK-ACCESS-SIGN":       c.sign(ts, method, requestPath, body),
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": c.creds.Passphrase,
	}
}

// PlaceOrder submits a signed order and returns the venue order id.
func (c *HTTPClient) PlaceOrder(ctx context.Context, req exc.PlaceOrder) (exc.OrderID, error) {
	if c.creds == nil {
		return "", apperror.Usage(apperror.CodeRequiredField, "place order requires credentials")
	}

	side := "buy"
	if req.Side == exc.SideSell {
		side = "sell"
	}
	ordType := "limit"
	if req.Kind_ == exc.OrderKindMarket {
		ordType = "market"
	}

	body := map[string]string{
		"instId":  nativeInstID(req.Symbol),
		"tdMode":  "cash",
		"side":    side,
		"ordType": ordType,
		"sz":      req.Size.String(),
	}
	if ordType == "limit" {
		body["px"] = req.Price.String()
	}
	bodyBytes, _ := json.Marshal(body)

	var env envelope
	resp, err := c.client.NewRequest().
		SetHeaders(c.signedHeaders("POST", orderEndpoint, string(bodyBytes))).
		SetBody(bodyBytes).
		SetResult(&env).
		Post(ctx, orderEndpoint)
	if err != nil {
		return "", apperror.Transient(apperror.CodeConnectionFailed, "place order", err)
	}
	if resp.IsError() || env.Code != "0" {
		return "", apperror.Semantic(apperror.CodeOrderRejected, string(env.Data), "place order rejected")
	}

	var results []struct {
		OrdID string `json:"ordId"`
	}
	if err := json.Unmarshal(env.Data, &results); err != nil || len(results) == 0 {
		return "", apperror.Protocol(apperror.CodeProtocolViolation, "decode place order result", err)
	}

	return exc.OrderID(results[0].OrdID), nil
}

// CancelOrder cancels a resting order by venue id.
func (c *HTTPClient) CancelOrder(ctx context.Context, sym exc.Symbol, id exc.OrderID) error {
	body := map[string]string{
		"instId": nativeInstID(sym),
		"ordId":  string(id),
	}
	bodyBytes, _ := json.Marshal(body)

	var env envelope
	resp, err := c.client.NewRequest().
		SetHeaders(c.signedHeaders("POST", cancelOrderEndpoint, string(bodyBytes))).
		SetBody(bodyBytes).
		SetResult(&env).
		Post(ctx, cancelOrderEndpoint)
	if err != nil {
		return apperror.Transient(apperror.CodeConnectionFailed, "cancel order", err)
	}
	if resp.IsError() || env.Code != "0" {
		return apperror.Semantic(apperror.CodeOrderRejected, string(env.Data), "cancel order rejected")
	}
	return nil
}

// GetOrder fetches a single order's current state.
func (c *HTTPClient) GetOrder(ctx context.Context, sym exc.Symbol, id exc.OrderID) (*exc.Order, error) {
	requestPath := orderEndpoint + "?instId=" + nativeInstID(sym) + "&ordId=" + string(id)

	var env envelope
	resp, err := c.client.NewRequest().
		SetHeaders(c.signedHeaders("GET", requestPath, "")).
		SetQueryParam("instId", nativeInstID(sym)).
		SetQueryParam("ordId", string(id)).
		SetResult(&env).
		Get(ctx, orderEndpoint)
	if err != nil {
		return nil, apperror.Transient(apperror.CodeConnectionFailed, "get order", err)
	}
	if resp.IsError() || env.Code != "0" {
		return nil, apperror.NotFound(apperror.CodeNotFound, "order not found")
	}

	var results []orderPush
	if err := json.Unmarshal(env.Data, &results); err != nil || len(results) == 0 {
		return nil, apperror.Protocol(apperror.CodeProtocolViolation, "decode order", err)
	}

	return results[0].toOrder(sym), nil
}
