package binance

import (
	"encoding/json"
	"fmt"

	"github.com/fd1az/go-exc/exc/mux"
)

// Codec implements mux.Codec for Binance's combined-stream WebSocket
// wire format: SUBSCRIBE/UNSUBSCRIBE requests acked by a matching id,
// and push frames wrapped in {"stream": ..., "data": ...} with no id of
// their own — Decode resolves those to a stream id via Mux.ResolveChannel,
// so the codec itself stays stateless and only maps names, not ids.
type Codec struct {
	// resolve is consulted by Decode to map a push frame's stream name
	// back to the id Subscribe assigned. The Service's connector sets it
	// to the Mux's ResolveChannel right after building the Mux — the
	// codec only calls it.
	resolve func(channel string) (id int64, ok bool)
}

// NewCodec builds a Codec. resolve must return the mux stream id
// currently subscribed to channel (a combined-stream name), or false if
// none is live — wired by the Service to Mux bookkeeping it owns.
func NewCodec(resolve func(channel string) (int64, bool)) *Codec {
	return &Codec{resolve: resolve}
}

func (c *Codec) EncodeSub(id int64, sub mux.Subscription) ([]byte, error) {
	return json.Marshal(WSRequest{Method: "SUBSCRIBE", Params: []string{sub.Channel}, ID: id})
}

func (c *Codec) EncodeUnsub(id int64, sub mux.Subscription) ([]byte, error) {
	return json.Marshal(WSRequest{Method: "UNSUBSCRIBE", Params: []string{sub.Channel}, ID: id})
}

func (c *Codec) EncodeRequest(id int64, payload any) ([]byte, error) {
	req, ok := payload.(WSRequest)
	if !ok {
		return nil, fmt.Errorf("binance codec: unexpected request payload %T", payload)
	}
	req.ID = id
	return json.Marshal(req)
}

func (c *Codec) Decode(frame []byte) (mux.Inbound, error) {
	// A SUBSCRIBE/UNSUBSCRIBE ack or request response: {"result":null,"id":1}.
	var resp WSResponse
	if err := json.Unmarshal(frame, &resp); err == nil && resp.ID != 0 {
		if resp.Error != nil {
			return mux.Inbound{Kind: mux.InboundAck, ID: resp.ID, OK: false, Err: resp.Error}, nil
		}
		return mux.Inbound{Kind: mux.InboundAck, ID: resp.ID, OK: true, Payload: resp.Result}, nil
	}

	// A combined-stream push: {"stream": "...", "data": {...}}.
	var se StreamEvent
	if err := json.Unmarshal(frame, &se); err != nil || se.Stream == "" {
		return mux.Inbound{Kind: mux.InboundControl}, nil
	}

	id, ok := c.resolve(se.Stream)
	if !ok {
		// Push for a stream we've since unsubscribed from — dropped
		// silently per the mux's tie-break rules.
		return mux.Inbound{Kind: mux.InboundControl}, nil
	}

	return mux.Inbound{Kind: mux.InboundData, ID: id, Payload: se.Data}, nil
}
