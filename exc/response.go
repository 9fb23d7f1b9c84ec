package exc

// Event is the element type of every streaming Response. Concrete
// payloads are Trade, BidAsk, Candle, *InstrumentMeta and *Order; the
// consumer knows which one to expect from the Request it issued.
type Event interface {
	isEvent()
}

type TradeEvent struct{ Trade Trade }

func (TradeEvent) isEvent() {}

type BidAskEvent struct{ BidAsk BidAsk }

func (BidAskEvent) isEvent() {}

type CandleEvent struct{ Candle Candle }

func (CandleEvent) isEvent() {}

type InstrumentEvent struct{ Meta *InstrumentMeta }

func (InstrumentEvent) isEvent() {}

type OrderEvent struct{ Order *Order }

func (OrderEvent) isEvent() {}

// PlaceOrderResult is the resolved value of a PlaceOrder response's
// OrderIDFuture: either the venue accepted the order (ID set) or
// rejected it (Err set, typically a Semantic AppError).
type PlaceOrderResult struct {
	ID  OrderID
	Err error
}

// Response is the uniform envelope every Service.Call returns.
// Exactly one of the three shapes is populated, determined by the
// Request's Kind:
//
//   - Stream is set for every Subscribe* request and for FetchCandles/
//     FetchFirstCandles/FetchLastCandles/FetchInstruments (finite streams
//     that close on exhaustion).
//   - Order is set for GetOrder and CancelOrder (single value).
//   - OrderIDFuture is set for PlaceOrder — a future-of-future: the
//     channel delivers exactly one PlaceOrderResult then closes.
//
// Dropping a Response (never reading Stream/OrderIDFuture to
// completion, or canceling the call's context) is cancellation: the
// producing side closes its sink and best-effort UNSUBs.
type Response struct {
	Stream        <-chan Event
	Order         *Order
	OrderIDFuture <-chan PlaceOrderResult
}
