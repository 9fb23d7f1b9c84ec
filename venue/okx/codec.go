package okx

import (
	"encoding/json"
	"fmt"

	"github.com/fd1az/go-exc/exc/mux"
)

// Codec implements mux.Codec for OKX's public {op,args} WebSocket
// protocol: subscribe/unsubscribe acked by an event envelope that
// echoes the (channel, instId) pair rather than a numeric id, and push
// frames wrapped {"arg":{"channel":...,"instId":...},"data":[...]}.
// Correlation uses a composite "channel:instId" key carried as
// Subscription.Channel, resolved back to the mux's id the same way
// Binance's stream-name resolution works — the codec itself stays
// stateless.
type Codec struct {
	resolve func(key string) (id int64, ok bool)
}

// NewCodec builds a Codec. resolve must return the mux stream id
// currently subscribed to a "channel:instId" key, or false if none is
// live — wired by the Service to Mux bookkeeping it owns.
func NewCodec(resolve func(string) (int64, bool)) *Codec {
	return &Codec{resolve: resolve}
}

func (c *Codec) EncodeSub(id int64, sub mux.Subscription) ([]byte, error) {
	return json.Marshal(WSRequest{Op: "subscribe", Args: []WSArg{argFromSub(sub)}})
}

func (c *Codec) EncodeUnsub(id int64, sub mux.Subscription) ([]byte, error) {
	return json.Marshal(WSRequest{Op: "unsubscribe", Args: []WSArg{argFromSub(sub)}})
}

func (c *Codec) EncodeRequest(id int64, payload any) ([]byte, error) {
	req, ok := payload.(WSRequest)
	if !ok {
		return nil, fmt.Errorf("okx codec: unexpected request payload %T", payload)
	}
	return json.Marshal(req)
}

func argFromSub(sub mux.Subscription) WSArg {
	return WSArg{Channel: sub.Args["channel"], InstID: sub.Args["instId"], InstType: sub.Args["instType"]}
}

func (c *Codec) Decode(frame []byte) (mux.Inbound, error) {
	// A subscribe/unsubscribe ack or inline error:
	// {"event":"subscribe","arg":{...}} / {"event":"error","code":"...","msg":"..."}.
	var ev WSEvent
	if err := json.Unmarshal(frame, &ev); err == nil && ev.Event != "" {
		if ev.Arg == nil {
			// Login acks and other arg-less control events are handled
			// out-of-band by the private connection, never through this
			// public codec's Mux.
			return mux.Inbound{Kind: mux.InboundControl}, nil
		}

		key := subscriptionKey(ev.Arg.Channel, ev.Arg.InstID)
		id, ok := c.resolve(key)
		if !ok {
			return mux.Inbound{Kind: mux.InboundControl}, nil
		}

		if ev.isError() {
			return mux.Inbound{Kind: mux.InboundAck, ID: id, OK: false, Err: fmt.Errorf("okx: %s %s", ev.Code, ev.Msg)}, nil
		}
		return mux.Inbound{Kind: mux.InboundAck, ID: id, OK: true}, nil
	}

	// A data push: {"arg":{"channel":...,"instId":...},"data":[...]}.
	var push WSPush
	if err := json.Unmarshal(frame, &push); err != nil || push.Arg.Channel == "" {
		return mux.Inbound{Kind: mux.InboundControl}, nil
	}

	key := subscriptionKey(push.Arg.Channel, push.Arg.InstID)
	id, ok := c.resolve(key)
	if !ok {
		// Push for a stream we've since unsubscribed from — dropped
		// silently per the mux's tie-break rules.
		return mux.Inbound{Kind: mux.InboundControl}, nil
	}

	payload, err := json.Marshal(push.Data)
	if err != nil {
		return mux.Inbound{Kind: mux.InboundControl}, nil
	}

	return mux.Inbound{Kind: mux.InboundData, ID: id, Payload: payload}, nil
}

// subscriptionKey is the canonical composite key a Subscription's
// Channel field is set to: "channel:instId" (instId empty for
// instrument-less channels).
func subscriptionKey(channel, instID string) string {
	if instID == "" {
		return channel
	}
	return channel + ":" + instID
}
