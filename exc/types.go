// Package exc is the venue-neutral surface of the client: request/response
// types, the service/layer contract, and the bound-conversion rules shared
// by every venue adaptor. Venue-specific wire types live in venue/binance
// and venue/okx; this package never imports either.
package exc

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes instrument families within a symbol.
type Kind string

const (
	KindSpot   Kind = "spot"
	KindSwap   Kind = "swap"
	KindFuture Kind = "future"
	KindOption Kind = "option"
	KindMargin Kind = "margin"
)

// Symbol is the canonical (base, quote, kind) triple every neutral request
// and response is keyed by. It is an immutable value — two Symbols with
// equal fields are interchangeable.
type Symbol struct {
	Base  string
	Quote string
	Kind  Kind
}

func (s Symbol) String() string {
	return s.Base + "-" + s.Quote
}

// InstrumentMeta describes a tradable instrument as published by a venue.
// Built by the instrument cache from exchange listings and shared by
// reference — callers holding a prior pointer keep observing the old
// value until they re-query.
type InstrumentMeta struct {
	Symbol      Symbol
	Native      string // venue-native instrument identifier, e.g. "BTCUSDT" or "BTC-USDT-SWAP"
	PriceTick   decimal.Decimal
	SizeTick    decimal.Decimal
	MinSize     decimal.Decimal
	Tags        []string
	UpdatedAt   time.Time
}

// Side is the taker/maker side of a trade or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single executed trade as streamed by SubscribeTrades.
type Trade struct {
	Symbol    Symbol
	Timestamp time.Time
	Price     decimal.Decimal
	Size      decimal.Decimal
	TakerSide Side
}

// PriceLevel is one resting side of a BidAsk update.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BidAsk is a top-of-book update as streamed by SubscribeBidAsk. Either
// side may be absent (e.g. a one-sided book momentarily).
type BidAsk struct {
	Symbol    Symbol
	Timestamp time.Time
	Bid       *PriceLevel
	Ask       *PriceLevel
}

// Period is a candle bucket width, expressed as its duration. Venues
// restrict this to a closed set of supported periods; adaptors validate.
type Period time.Duration

const (
	Period1m  Period = Period(time.Minute)
	Period5m  Period = Period(5 * time.Minute)
	Period15m Period = Period(15 * time.Minute)
	Period1h  Period = Period(time.Hour)
	Period4h  Period = Period(4 * time.Hour)
	Period1d  Period = Period(24 * time.Hour)
)

// Candle is one OHLCV bucket as streamed by FetchCandles.
type Candle struct {
	Symbol    Symbol
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// OrderState is the lifecycle state of an Order. Terminal states
// (Filled, Canceled, Rejected) are absorbing — no further transition is
// ever reported for the same order id.
type OrderState string

const (
	OrderPending  OrderState = "pending"
	OrderLive     OrderState = "live"
	OrderPartial  OrderState = "partial"
	OrderFilled   OrderState = "filled"
	OrderCanceled OrderState = "canceled"
	OrderRejected OrderState = "rejected"
)

func (s OrderState) Terminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected:
		return true
	default:
		return false
	}
}

// OrderKind distinguishes limit vs market orders.
type OrderKind string

const (
	OrderKindLimit  OrderKind = "limit"
	OrderKindMarket OrderKind = "market"
)

// OrderID identifies a placed order on a venue.
type OrderID string

// Order is the neutral view of a venue order, created by PlaceOrder and
// mutated in place by subsequent venue events and GetOrder calls.
type Order struct {
	ID       OrderID
	Symbol   Symbol
	Side     Side
	Kind     OrderKind
	Price    decimal.Decimal
	Size     decimal.Decimal
	Filled   decimal.Decimal
	State    OrderState
}
