package mux

import "encoding/json"

// State is a stream's position in the SUB/UNSUB protocol.
type State int32

const (
	StatePending State = iota // SUB sent, awaiting ack
	StateLive                 // ack received, data frames forwarded
	StateClosing              // UNSUB sent, awaiting ack
	StateTerminal              // ack/error received or torn down; id freed
)

// Subscription identifies a logical subscribe request for durable
// replay: the reconnect supervisor keys its recorded set by
// (Channel, Args).
type Subscription struct {
	Channel string
	Args    map[string]string
}

// stream is the multiplexer's bookkeeping for one live or pending
// subscription.
type stream struct {
	id    int64
	sub   Subscription
	state State

	sink   chan json.RawMessage
	ackCh  chan error // signaled once, on SUB ack/error
	termCh chan struct{}
}

func newStream(id int64, sub Subscription, bufferBound int) *stream {
	return &stream{
		id:     id,
		sub:    sub,
		state:  StatePending,
		sink:   make(chan json.RawMessage, bufferBound),
		ackCh:  make(chan error, 1),
		termCh: make(chan struct{}),
	}
}
