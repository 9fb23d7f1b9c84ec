// Package binance adapts Binance's combined-stream WebSocket API and
// signed REST API to the venue-neutral surface in package exc. It is
// the Adaptor of the canonical stack — stateless translation
// only; all bookkeeping lives in exc/mux and exc/instrument.
package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/go-exc/exc"
)

// WSRequest is Binance's SUBSCRIBE/UNSUBSCRIBE/LIST_SUBSCRIPTIONS
// envelope, correlated by ID the same way every other venue's ack is.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// WSResponse is the ack for a WSRequest.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
	Error  *WSError        `json:"error,omitempty"`
}

// WSError is Binance's inline error shape on WebSocket request acks.
type WSError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *WSError) Error() string {
	return "binance: " + strconv.Itoa(e.Code) + " " + e.Msg
}

// StreamEvent is the combined-stream wrapper Binance puts every pushed
// event inside: {"stream": "...", "data": {...}}.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type AggTradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func (e *AggTradeEvent) toTrade(sym exc.Symbol) (exc.Trade, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return exc.Trade{}, err
	}
	qty, err := decimal.NewFromString(e.Quantity)
	if err != nil {
		return exc.Trade{}, err
	}

	side := exc.SideBuy
	if e.IsBuyerMaker {
		side = exc.SideSell
	}

	return exc.Trade{
		Symbol:    sym,
		Timestamp: time.UnixMilli(e.TradeTime),
		Price:     price,
		Size:      qty,
		TakerSide: side,
	}, nil
}

// BookTickerEvent is the best bid/ask push (<symbol>@bookTicker).
type BookTickerEvent struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (e *BookTickerEvent) toBidAsk(sym exc.Symbol) (exc.BidAsk, error) {
	ba := exc.BidAsk{Symbol: sym, Timestamp: time.Now()}

	if e.BidPrice != "" {
		price, err := decimal.NewFromString(e.BidPrice)
		if err != nil {
			return exc.BidAsk{}, err
		}
		qty, err := decimal.NewFromString(e.BidQty)
		if err != nil {
			return exc.BidAsk{}, err
		}
		ba.Bid = &exc.PriceLevel{Price: price, Size: qty}
	}

	if e.AskPrice != "" {
		price, err := decimal.NewFromString(e.AskPrice)
		if err != nil {
			return exc.BidAsk{}, err
		}
		qty, err := decimal.NewFromString(e.AskQty)
		if err != nil {
			return exc.BidAsk{}, err
		}
		ba.Ask = &exc.PriceLevel{Price: price, Size: qty}
	}

	return ba, nil
}

// KlineEvent is the <symbol>@kline_<interval> push.
type KlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func (e *KlineEvent) toCandle(sym exc.Symbol) (exc.Candle, error) {
	open, err := decimal.NewFromString(e.Kline.Open)
	if err != nil {
		return exc.Candle{}, err
	}
	high, err := decimal.NewFromString(e.Kline.High)
	if err != nil {
		return exc.Candle{}, err
	}
	low, err := decimal.NewFromString(e.Kline.Low)
	if err != nil {
		return exc.Candle{}, err
	}
	cls, err := decimal.NewFromString(e.Kline.Close)
	if err != nil {
		return exc.Candle{}, err
	}
	vol, err := decimal.NewFromString(e.Kline.Volume)
	if err != nil {
		return exc.Candle{}, err
	}

	return exc.Candle{
		Symbol:    sym,
		OpenTime:  time.UnixMilli(e.Kline.OpenTime),
		CloseTime: time.UnixMilli(e.Kline.CloseTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

// ExchangeInfo is the /api/v3/exchangeInfo REST response, used by
// FetchInstruments and the instrument cache's REST warmup.
type ExchangeInfo struct {
	Symbols []ExchangeSymbol `json:"symbols"`
}

type ExchangeSymbol struct {
	Symbol     string       `json:"symbol"`
	BaseAsset  string       `json:"baseAsset"`
	QuoteAsset string       `json:"quoteAsset"`
	Status     string       `json:"status"`
	Filters    []SymbolFilter `json:"filters"`
}

type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	MinNotional string `json:"minNotional"`
}

func (s ExchangeSymbol) toInstrumentMeta(now time.Time) *exc.InstrumentMeta {
	meta := &exc.InstrumentMeta{
		Symbol:    exc.Symbol{Base: s.BaseAsset, Quote: s.QuoteAsset, Kind: exc.KindSpot},
		Native:    s.Symbol,
		Tags:      []string{"SPOT"},
		UpdatedAt: now,
	}

	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			if d, err := decimal.NewFromString(f.TickSize); err == nil {
				meta.PriceTick = d
			}
		case "LOT_SIZE":
			if d, err := decimal.NewFromString(f.StepSize); err == nil {
				meta.SizeTick = d
			}
			if d, err := decimal.NewFromString(f.MinQty); err == nil {
				meta.MinSize = d
			}
		}
	}

	return meta
}

// streamSuffix returns the portion of a combined-stream name after the
// symbol, e.g. "btcusdt@bookTicker" -> "bookTicker".
func streamSuffix(stream string) string {
	i := strings.Index(stream, "@")
	if i < 0 {
		return stream
	}
	return stream[i+1:]
}

func symbolFromStream(stream string) string {
	i := strings.Index(stream, "@")
	if i < 0 {
		return stream
	}
	return strings.ToUpper(stream[:i])
}

// nativeSymbol renders a neutral Symbol the way Binance spells it on
// the wire: concatenated, uppercase, no separator.
func nativeSymbol(sym exc.Symbol) string {
	return strings.ToUpper(sym.Base + sym.Quote)
}

// streamName builds the combined-stream channel name for one of the
// three push types this adaptor understands.
func streamName(kind string, sym exc.Symbol, extra string) string {
	native := strings.ToLower(nativeSymbol(sym))
	switch kind {
	case "bookTicker":
		return native + "@bookTicker"
	case "aggTrade":
		return native + "@aggTrade"
	case "kline":
		return native + "@kline_" + extra
	default:
		return native + "@" + kind
	}
}

// intervalFor maps a neutral Period to Binance's kline interval string.
func intervalFor(p exc.Period) string {
	switch p {
	case exc.Period1m:
		return "1m"
	case exc.Period5m:
		return "5m"
	case exc.Period15m:
		return "15m"
	case exc.Period1h:
		return "1h"
	case exc.Period4h:
		return "4h"
	case exc.Period1d:
		return "1d"
	default:
		return "1m"
	}
}
