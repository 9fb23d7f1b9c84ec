// Package mux implements the streaming multiplexer: one channel,
// many logical subscriptions and one-shot requests, correlated by stream
// id / request id. It never parses venue-specific payload shapes beyond
// what a venue's Codec tells it — decoding Data payloads into typed
// events is the adaptor layer's job (venue/binance, venue/okx).
package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/go-exc/exc/transport"
	"github.com/fd1az/go-exc/internal/apperror"
)

const (
	tracerName = "github.com/fd1az/go-exc/exc/mux"
	meterName  = "github.com/fd1az/go-exc/exc/mux"

	teardownLaneSize = 4096
)

// InboundKind classifies a decoded inbound frame.
type InboundKind int

const (
	InboundAck InboundKind = iota
	InboundData
	InboundControl // pong, login-ack and similar frames with no stream id
	InboundError   // frame-level error with no correlatable id
)

// Inbound is the Codec's classification of one received frame.
type Inbound struct {
	Kind    InboundKind
	ID      int64 // meaningful for InboundAck and InboundData
	OK      bool  // meaningful for InboundAck: true = subscribe/unsubscribe/request succeeded
	Payload json.RawMessage
	Err     error // venue-reported error, meaningful for InboundAck(!OK) and InboundError
}

// Codec is the venue-specific half of the wire protocol. It MUST be
// stateless — all mutable bookkeeping lives in Mux.
type Codec interface {
	EncodeSub(id int64, sub Subscription) ([]byte, error)
	EncodeUnsub(id int64, sub Subscription) ([]byte, error)
	EncodeRequest(id int64, payload any) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
}

// Mux owns the single underlying channel; nothing else may write to it.
type Mux struct {
	channel *transport.Channel
	codec   Codec

	outbound chan []byte
	teardown chan []byte
	done     chan struct{}
	closeOnce sync.Once

	nextID  atomic.Int64
	freeIDs chan int64

	mu        sync.Mutex
	streams   map[int64]*stream
	oneShots  map[int64]chan Inbound

	tracer  trace.Tracer
	metrics *muxMetrics
}

type muxMetrics struct {
	subsLive     metric.Int64UpDownCounter
	framesIn     metric.Int64Counter
	framesOut    metric.Int64Counter
	framesDropped metric.Int64Counter
	decodeErrors metric.Int64Counter
}

// New builds a Mux over an already-constructed (but not yet connected)
// transport.Channel. bufferBound sizes both the outbound queue and each
// stream's sink.
func New(ch *transport.Channel, codec Codec, bufferBound int) (*Mux, error) {
	m := &Mux{
		channel:  ch,
		codec:    codec,
		outbound: make(chan []byte, bufferBound),
		teardown: make(chan []byte, teardownLaneSize),
		done:     make(chan struct{}),
		freeIDs:  make(chan int64, bufferBound),
		streams:  make(map[int64]*stream),
		oneShots: make(map[int64]chan Inbound),
		tracer:   otel.Tracer(tracerName),
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init mux metrics: %w", err)
	}

	return m, nil
}

func (m *Mux) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	m.metrics = &muxMetrics{}

	if m.metrics.subsLive, err = meter.Int64UpDownCounter("exc_mux_live_streams"); err != nil {
		return err
	}
	if m.metrics.framesIn, err = meter.Int64Counter("exc_mux_frames_in_total"); err != nil {
		return err
	}
	if m.metrics.framesOut, err = meter.Int64Counter("exc_mux_frames_out_total"); err != nil {
		return err
	}
	if m.metrics.framesDropped, err = meter.Int64Counter("exc_mux_frames_dropped_total"); err != nil {
		return err
	}
	if m.metrics.decodeErrors, err = meter.Int64Counter("exc_mux_decode_errors_total"); err != nil {
		return err
	}
	return nil
}

// Run starts the writer and reader loops. It returns once the underlying
// channel dies (or ctx is canceled); the caller (the layer.Reconnect
// connector) is
// responsible for rebuilding a fresh Mux over a fresh Channel.
func (m *Mux) Run(ctx context.Context) {
	go m.writeLoop(ctx)
	m.readLoop(ctx)
}

// nextStreamID returns a recycled id if one is free, else the next fresh
// one. The free-list only holds ids whose stream has reached its
// terminal state, so a recycled id is never shared with a live stream.
func (m *Mux) nextStreamID() int64 {
	select {
	case id := <-m.freeIDs:
		return id
	default:
		return m.nextID.Add(1)
	}
}

// Subscribe opens a durable stream. The
// returned channel is closed when the stream reaches StateTerminal
// (unsubscribe ack, error, or ctx cancellation — the Go stand-in for
// "consumer drops the handle"). Call blocks until the SUB ack (or
// error) arrives or ctx is done.
func (m *Mux) Subscribe(ctx context.Context, sub Subscription) (<-chan json.RawMessage, error) {
	ctx, span := m.tracer.Start(ctx, "mux.subscribe",
		trace.WithAttributes(attribute.String("exc.mux.channel", sub.Channel)))
	defer span.End()

	id := m.nextStreamID()
	st := newStream(id, sub, cap(m.outbound))

	m.mu.Lock()
	m.streams[id] = st
	m.mu.Unlock()

	frame, err := m.codec.EncodeSub(id, sub)
	if err != nil {
		m.releaseStream(id)
		return nil, apperror.Usage(apperror.CodeInvalidInput, "encode subscribe")
	}

	if err := m.enqueue(ctx, frame, false); err != nil {
		m.releaseStream(id)
		return nil, err
	}
	m.metrics.framesOut.Add(ctx, 1)

	select {
	case err := <-st.ackCh:
		if err != nil {
			m.releaseStream(id)
			return nil, err
		}
	case <-ctx.Done():
		// Best-effort UNSUB even though we never saw the ack.
		go m.unsubscribe(context.Background(), st)
		return nil, ctx.Err()
	case <-m.done:
		return nil, apperror.Transient(apperror.CodeMuxTornDown, "subscribe", nil)
	}

	m.metrics.subsLive.Add(ctx, 1)

	// Watch for ctx cancellation (our stand-in for "consumer drops the
	// stream handle") and tear the subscription down.
	go func() {
		select {
		case <-ctx.Done():
			m.unsubscribe(context.Background(), st)
		case <-st.termCh:
		}
	}()

	return st.sink, nil
}

func (m *Mux) unsubscribe(ctx context.Context, st *stream) {
	m.mu.Lock()
	if st.state != StateLive {
		m.mu.Unlock()
		return
	}
	st.state = StateClosing
	m.mu.Unlock()

	frame, err := m.codec.EncodeUnsub(st.id, st.sub)
	if err != nil {
		m.terminateStream(st, err)
		return
	}

	// UNSUB MUST be delivered even if the outbound queue is full, so it
	// goes to the unbounded-ish teardown lane.
	select {
	case m.teardown <- frame:
	case <-m.done:
	}
}

// Request issues a one-shot request/response over the mux (used for
// exchange operations the venue exposes over the WS connection rather
// than REST, e.g. OKX order placement). It is never replayed on
// reconnect — callers that need retry compose layer.Retry above.
func (m *Mux) Request(ctx context.Context, id int64, payload any) (json.RawMessage, error) {
	respCh := make(chan Inbound, 1)

	m.mu.Lock()
	m.oneShots[id] = respCh
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.oneShots, id)
		m.mu.Unlock()
	}()

	frame, err := m.codec.EncodeRequest(id, payload)
	if err != nil {
		return nil, apperror.Usage(apperror.CodeInvalidInput, "encode request")
	}

	if err := m.enqueue(ctx, frame, false); err != nil {
		return nil, err
	}
	m.metrics.framesOut.Add(ctx, 1)

	select {
	case in := <-respCh:
		if !in.OK {
			return nil, in.Err
		}
		return in.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, apperror.Transient(apperror.CodeMuxTornDown, "request", nil)
	}
}

func (m *Mux) enqueue(ctx context.Context, frame []byte, teardown bool) error {
	lane := m.outbound
	if teardown {
		lane = m.teardown
	}

	select {
	case lane <- frame:
		return nil
	default:
	}

	// Backpressure: the normal lane is full. Block up to the caller's
	// deadline rather than fail immediately — RateLimit/Timeout
	// layers above are what enforce "not ready".
	select {
	case lane <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return apperror.Transient(apperror.CodeMuxTornDown, "enqueue", nil)
	}
}

func (m *Mux) writeLoop(ctx context.Context) {
	for {
		// Teardown frames (UNSUB) get priority so they are never starved
		// by a busy outbound queue.
		select {
		case frame := <-m.teardown:
			m.send(ctx, frame)
			continue
		default:
		}

		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case frame := <-m.teardown:
			m.send(ctx, frame)
		case frame := <-m.outbound:
			m.send(ctx, frame)
		}
	}
}

func (m *Mux) send(ctx context.Context, frame []byte) {
	if err := m.channel.Send(ctx, frame); err != nil {
		m.teardownAll(err)
	}
}

func (m *Mux) readLoop(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case <-m.channel.Closed():
			m.teardownAll(m.channel.Err())
			return
		case frame, ok := <-m.channel.Messages():
			if !ok {
				return
			}
			m.handleFrame(ctx, frame)
		}
	}
}

func (m *Mux) handleFrame(ctx context.Context, frame []byte) {
	m.metrics.framesIn.Add(ctx, 1)

	in, err := m.codec.Decode(frame)
	if err != nil {
		// Corrupt JSON is a protocol violation, fatal to the connection.
		// Close the channel; readLoop observes Closed() and tears down.
		m.metrics.decodeErrors.Add(ctx, 1)
		_ = m.channel.Close()
		return
	}

	switch in.Kind {
	case InboundControl:
		// Pong / login-ack and similar: nothing to correlate here. The
		// auth gate listens on the channel directly for login acks
		// before the mux is handed user traffic.
		return

	case InboundError:
		// Frame-level error with no id to correlate: log-and-drop.
		// Left to the caller's telemetry.
		return

	case InboundAck:
		m.handleAck(in)

	case InboundData:
		m.handleData(in)
	}
}

func (m *Mux) handleAck(in Inbound) {
	m.mu.Lock()
	if respCh, ok := m.oneShots[in.ID]; ok {
		m.mu.Unlock()
		select {
		case respCh <- in:
		default:
		}
		return
	}

	st, ok := m.streams[in.ID]
	if !ok {
		m.mu.Unlock()
		// Ack for an id we no longer track: dropped after UNSUB, or a
		// stale duplicate. Silent per tie-break rules.
		return
	}

	switch st.state {
	case StatePending:
		if in.OK {
			st.state = StateLive
			m.mu.Unlock()
			st.ackCh <- nil
		} else {
			st.state = StateTerminal
			delete(m.streams, in.ID)
			m.mu.Unlock()
			close(st.sink)
			close(st.termCh)
			st.ackCh <- in.Err
			m.freeIDs <- st.id
		}
	case StateClosing:
		// UNSUB ack (or error — either way the stream is gone).
		st.state = StateTerminal
		delete(m.streams, in.ID)
		m.mu.Unlock()
		close(st.sink)
		close(st.termCh)
		m.freeIDs <- st.id
	default:
		m.mu.Unlock()
	}
}

func (m *Mux) handleData(in Inbound) {
	m.mu.Lock()
	st, ok := m.streams[in.ID]
	m.mu.Unlock()

	if !ok || st.state != StateLive {
		// Unknown id, or a frame for a stream that is pending/closing:
		// dropped silently.
		return
	}

	select {
	case st.sink <- in.Payload:
	default:
		m.metrics.framesDropped.Add(context.Background(), 1)
	}
}

func (m *Mux) terminateStream(st *stream, err error) {
	m.mu.Lock()
	if st.state == StateTerminal {
		m.mu.Unlock()
		return
	}
	st.state = StateTerminal
	delete(m.streams, st.id)
	m.mu.Unlock()

	close(st.sink)
	close(st.termCh)
	m.freeIDs <- st.id
}

func (m *Mux) releaseStream(id int64) {
	m.mu.Lock()
	delete(m.streams, id)
	m.mu.Unlock()
}

// teardownAll is called once the underlying channel has died. Every live
// or pending stream is terminated with a transient (reconnect-triggering)
// error; one-shot requests in flight are failed the same way — they are
// not replayed, the retry layer decides.
func (m *Mux) teardownAll(cause error) {
	m.closeOnce.Do(func() {
		close(m.done)
	})

	err := apperror.Transient(apperror.CodeReconnecting, "transport torn down", cause)

	m.mu.Lock()
	streams := m.streams
	m.streams = make(map[int64]*stream)
	oneShots := m.oneShots
	m.oneShots = make(map[int64]chan Inbound)
	m.mu.Unlock()

	for _, st := range streams {
		switch st.state {
		case StatePending:
			select {
			case st.ackCh <- err:
			default:
			}
		default:
			close(st.sink)
		}
		select {
		case <-st.termCh:
		default:
			close(st.termCh)
		}
	}

	for _, respCh := range oneShots {
		select {
		case respCh <- Inbound{OK: false, Err: err}:
		default:
		}
	}
}

// Durable returns the (channel, args) pair of every currently live or
// pending subscription, for the reconnect supervisor to replay.
func (m *Mux) Durable() []Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]Subscription, 0, len(m.streams))
	for _, st := range m.streams {
		if st.state == StateLive || st.state == StatePending {
			subs = append(subs, st.sub)
		}
	}
	return subs
}

// ResolveChannel looks up the stream id currently subscribed to a given
// channel name. Venue codecs whose push frames carry a channel name
// instead of the stream id the Mux assigned (Binance's combined-stream
// frames, OKX's channel+instId) use this to correlate Decode results
// back to the right stream.
func (m *Mux) ResolveChannel(channel string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, st := range m.streams {
		if st.sub.Channel == channel && (st.state == StateLive || st.state == StatePending) {
			return id, true
		}
	}
	return 0, false
}

