// Package okx adapts OKX's {op, channel, args} WebSocket protocol and
// its signed v5 REST API to the venue-neutral surface in package exc.
// Like venue/binance, it is the Adaptor of the canonical stack:
// stateless translation only, all bookkeeping lives in exc/mux and
// exc/instrument.
package okx

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/go-exc/exc"
)

var errShortRow = errors.New("okx: short candle row")

// WSArg identifies one subscription target: a channel plus the
// parameters OKX requires alongside it (instId for most channels,
// instType for the private orders channel, nothing for login).
type WSArg struct {
	Channel    string `json:"channel"`
	InstID     string `json:"instId,omitempty"`
	InstType   string `json:"instType,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Sign       string `json:"sign,omitempty"`
}

// WSRequest is OKX's subscribe/unsubscribe/login envelope. Unlike
// Binance there is no numeric id on the wire — OKX acks by echoing
// "event" + the arg itself, so the mux correlates by (channel, instId)
// rather than by id (see Codec.Decode).
type WSRequest struct {
	Op   string  `json:"op"`
	Args []WSArg `json:"args"`
}

// WSEvent is the ack/error envelope: {"event":"subscribe","arg":{...}}
// or {"event":"error","code":"...","msg":"..."}.
type WSEvent struct {
	Event   string `json:"event"`
	Arg     *WSArg `json:"arg,omitempty"`
	Code    string `json:"code,omitempty"`
	Msg     string `json:"msg,omitempty"`
	ConnID  string `json:"connId,omitempty"`
}

func (e *WSEvent) isError() bool {
	return e.Event == "error" || (e.Code != "" && e.Code != "0")
}

// WSPush is a data push: {"arg":{"channel":...,"instId":...},"data":[...]}.
type WSPush struct {
	Arg  WSArg             `json:"arg"`
	Data []json.RawMessage `json:"data"`
}

type tickerPush struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	BidPx   string `json:"bidPx"`
	BidSz   string `json:"bidSz"`
	AskPx   string `json:"askPx"`
	AskSz   string `json:"askSz"`
	TS      string `json:"ts"`
}

func (t tickerPush) toBidAsk(sym exc.Symbol) (exc.BidAsk, error) {
	ba := exc.BidAsk{Symbol: sym, Timestamp: tsToTime(t.TS)}

	if t.BidPx != "" {
		price, err := decimal.NewFromString(t.BidPx)
		if err != nil {
			return exc.BidAsk{}, err
		}
		size, err := decimal.NewFromString(t.BidSz)
		if err != nil {
			return exc.BidAsk{}, err
		}
		ba.Bid = &exc.PriceLevel{Price: price, Size: size}
	}

	if t.AskPx != "" {
		price, err := decimal.NewFromString(t.AskPx)
		if err != nil {
			return exc.BidAsk{}, err
		}
		size, err := decimal.NewFromString(t.AskSz)
		if err != nil {
			return exc.BidAsk{}, err
		}
		ba.Ask = &exc.PriceLevel{Price: price, Size: size}
	}

	return ba, nil
}

type tradePush struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	TS      string `json:"ts"`
}

func (t tradePush) toTrade(sym exc.Symbol) (exc.Trade, error) {
	price, err := decimal.NewFromString(t.Px)
	if err != nil {
		return exc.Trade{}, err
	}
	size, err := decimal.NewFromString(t.Sz)
	if err != nil {
		return exc.Trade{}, err
	}

	side := exc.SideBuy
	if strings.EqualFold(t.Side, "sell") {
		side = exc.SideSell
	}

	return exc.Trade{
		Symbol:    sym,
		Timestamp: tsToTime(t.TS),
		Price:     price,
		Size:      size,
		TakerSide: side,
	}, nil
}

// orderPush is the private "orders" channel's per-element shape.
type orderPush struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	OrdType   string `json:"ordType"`
	Side      string `json:"side"`
	State     string `json:"state"`
	AccFillSz string `json:"accFillSz"`
	UTime     string `json:"uTime"`
}

func (o orderPush) toOrder(sym exc.Symbol) *exc.Order {
	ord := &exc.Order{
		ID:     exc.OrderID(o.OrdID),
		Symbol: sym,
		Side:   exc.SideBuy,
		Kind:   exc.OrderKindLimit,
		State:  orderStateFromOKX(o.State),
	}
	if strings.EqualFold(o.Side, "sell") {
		ord.Side = exc.SideSell
	}
	if strings.EqualFold(o.OrdType, "market") {
		ord.Kind = exc.OrderKindMarket
	}
	ord.Price, _ = parseDecimal(o.Px)
	ord.Size, _ = parseDecimal(o.Sz)
	ord.Filled, _ = parseDecimal(o.AccFillSz)
	return ord
}

func orderStateFromOKX(state string) exc.OrderState {
	switch strings.ToLower(state) {
	case "live":
		return exc.OrderLive
	case "partially_filled":
		return exc.OrderPartial
	case "filled":
		return exc.OrderFilled
	case "canceled":
		return exc.OrderCanceled
	default:
		return exc.OrderPending
	}
}

// instrumentDTO is one element of /api/v5/public/instruments' data array.
type instrumentDTO struct {
	InstID   string `json:"instId"`
	BaseCcy  string `json:"baseCcy"`
	QuoteCcy string `json:"quoteCcy"`
	TickSz   string `json:"tickSz"`
	LotSz    string `json:"lotSz"`
	MinSz    string `json:"minSz"`
	State    string `json:"state"`
}

func (i instrumentDTO) toInstrumentMeta(now time.Time) *exc.InstrumentMeta {
	meta := &exc.InstrumentMeta{
		Symbol:    exc.Symbol{Base: i.BaseCcy, Quote: i.QuoteCcy, Kind: exc.KindSpot},
		Native:    i.InstID,
		Tags:      []string{"SPOT"},
		UpdatedAt: now,
	}
	if d, err := decimal.NewFromString(i.TickSz); err == nil {
		meta.PriceTick = d
	}
	if d, err := decimal.NewFromString(i.LotSz); err == nil {
		meta.SizeTick = d
	}
	if d, err := decimal.NewFromString(i.MinSz); err == nil {
		meta.MinSize = d
	}
	return meta
}

// candleRowToCandle parses one row of /api/v5/market/candles' data array:
// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func candleRowToCandle(sym exc.Symbol, row []any) (exc.Candle, error) {
	if len(row) < 6 {
		return exc.Candle{}, errShortRow
	}

	ts, _ := row[0].(string)
	openMs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return exc.Candle{}, err
	}

	open, err := parseDecimal(row[1].(string))
	if err != nil {
		return exc.Candle{}, err
	}
	high, err := parseDecimal(row[2].(string))
	if err != nil {
		return exc.Candle{}, err
	}
	low, err := parseDecimal(row[3].(string))
	if err != nil {
		return exc.Candle{}, err
	}
	cls, err := parseDecimal(row[4].(string))
	if err != nil {
		return exc.Candle{}, err
	}
	vol, err := parseDecimal(row[5].(string))
	if err != nil {
		return exc.Candle{}, err
	}

	return exc.Candle{
		Symbol:   sym,
		OpenTime: time.UnixMilli(openMs),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   vol,
	}, nil
}

// nativeInstID renders a neutral Symbol the way OKX spells it on the
// wire: "BASE-QUOTE".
func nativeInstID(sym exc.Symbol) string {
	return strings.ToUpper(sym.Base) + "-" + strings.ToUpper(sym.Quote)
}

func symbolFromInstID(instID string) exc.Symbol {
	parts := strings.SplitN(instID, "-", 2)
	if len(parts) != 2 {
		return exc.Symbol{Base: instID, Kind: exc.KindSpot}
	}
	return exc.Symbol{Base: parts[0], Quote: parts[1], Kind: exc.KindSpot}
}

// barFor maps a neutral Period to OKX's candle "bar" string.
func barFor(p exc.Period) string {
	switch p {
	case exc.Period1m:
		return "1m"
	case exc.Period5m:
		return "5m"
	case exc.Period15m:
		return "15m"
	case exc.Period1h:
		return "1H"
	case exc.Period4h:
		return "4H"
	case exc.Period1d:
		return "1D"
	default:
		return "1m"
	}
}

func tsToTime(ts string) time.Time {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
