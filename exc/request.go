package exc

import "github.com/shopspring/decimal"

// RequestKind tags which concrete Request variant a value carries. The
// venue adaptors themselves dispatch with a type switch on the concrete
// variant, not on this tag.
type RequestKind string

const (
	ReqSubscribeTickers     RequestKind = "subscribe_tickers"
	ReqSubscribeTrades      RequestKind = "subscribe_trades"
	ReqSubscribeBidAsk      RequestKind = "subscribe_bid_ask"
	ReqSubscribeOrders      RequestKind = "subscribe_orders"
	ReqSubscribeInstruments RequestKind = "subscribe_instruments"
	ReqFetchInstruments     RequestKind = "fetch_instruments"
	ReqFetchCandles         RequestKind = "fetch_candles"
	ReqFetchFirstCandles    RequestKind = "fetch_first_candles"
	ReqFetchLastCandles     RequestKind = "fetch_last_candles"
	ReqPlaceOrder           RequestKind = "place_order"
	ReqCancelOrder          RequestKind = "cancel_order"
	ReqGetOrder             RequestKind = "get_order"
	ReqReconnect            RequestKind = "reconnect"
)

// Request is the neutral public surface. Every variant below
// implements it; the adaptor layer is the only place that inspects the
// concrete variant.
type Request interface {
	Kind() RequestKind
}

type SubscribeTickers struct{ Symbol Symbol }

func (SubscribeTickers) Kind() RequestKind { return ReqSubscribeTickers }

type SubscribeTrades struct{ Symbol Symbol }

func (SubscribeTrades) Kind() RequestKind { return ReqSubscribeTrades }

type SubscribeBidAsk struct{ Symbol Symbol }

func (SubscribeBidAsk) Kind() RequestKind { return ReqSubscribeBidAsk }

// SubscribeOrders opens the private order-event stream. Binance realizes
// this via a listen-key user stream; OKX via the login-gated private
// channel — both satisfy the same "gate resolves before admission"
// contract.
type SubscribeOrders struct{}

func (SubscribeOrders) Kind() RequestKind { return ReqSubscribeOrders }

// SubscribeInstruments streams instrument-metadata updates for a tag
// (e.g. "SPOT"), feeding the instrument cache's reconciliation.
type SubscribeInstruments struct{ Tag string }

func (SubscribeInstruments) Kind() RequestKind { return ReqSubscribeInstruments }

// FetchInstruments is a one-shot REST listing for a tag.
type FetchInstruments struct{ Tag string }

func (FetchInstruments) Kind() RequestKind { return ReqFetchInstruments }

// FetchCandles returns a finite, forward-paging stream of Candle events.
// Limit bounds the page size; venues cap it (Binance/OKX both cap at
// 1000 or less).
type FetchCandles struct {
	Symbol Symbol
	Period Period
	Range  Range
	Limit  int
}

func (FetchCandles) Kind() RequestKind { return ReqFetchCandles }

// FetchFirstCandles pages forward from the start of available history.
type FetchFirstCandles struct {
	Symbol Symbol
	Period Period
	Limit  int
}

func (FetchFirstCandles) Kind() RequestKind { return ReqFetchFirstCandles }

// FetchLastCandles pages backward from the most recent candle, returning
// them in forward (ascending open-time) order.
type FetchLastCandles struct {
	Symbol Symbol
	Period Period
	Limit  int
}

func (FetchLastCandles) Kind() RequestKind { return ReqFetchLastCandles }

// PlaceOrder's response is itself a future resolving to an OrderID,
// allowing pipelined placement — see Response.OrderIDFuture.
type PlaceOrder struct {
	Symbol Symbol
	Side   Side
	Kind_  OrderKind
	Price  decimal.Decimal
	Size   decimal.Decimal
}

func (PlaceOrder) Kind() RequestKind { return ReqPlaceOrder }

type CancelOrder struct {
	Symbol Symbol
	ID     OrderID
}

func (CancelOrder) Kind() RequestKind { return ReqCancelOrder }

type GetOrder struct {
	Symbol Symbol
	ID     OrderID
}

func (GetOrder) Kind() RequestKind { return ReqGetOrder }

// ReconnectRequest is the one-shot control request that tears down and
// rebuilds the transport. It completes only when the next ready
// state is reached.
type ReconnectRequest struct{}

func (ReconnectRequest) Kind() RequestKind { return ReqReconnect }
