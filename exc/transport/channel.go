// Package transport implements the raw full-duplex frame pipe: one
// WebSocket connection, opaque text/binary frames in and out, connection
// errors surfaced distinctly from payload decoding (which is the
// multiplexer's job, not this package's). Reconnection policy lives one
// layer up, in exc/layer's Reconnect — a Channel connects exactly
// once per instance.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/fd1az/go-exc/exc/transport"
	meterName  = "github.com/fd1az/go-exc/exc/transport"

	maxMissedPongs = 2
)

// Config holds the parameters for a single Channel connection.
type Config struct {
	URL            string
	Name           string // identifier for metrics/tracing, e.g. "binance-public"
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults for url/name.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		PingInterval:   15 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     1024,
		MaxMessageSize: 10 * 1024 * 1024,
	}
}

// metrics holds the OTEL instruments shared by every Channel instance.
type metrics struct {
	messagesReceived metric.Int64Counter
	messagesSent     metric.Int64Counter
	droppedMessages  metric.Int64Counter
	messageLatency   metric.Float64Histogram
	bytesReceived    metric.Int64Counter
	bytesSent        metric.Int64Counter
	pingsFailed      metric.Int64Counter
}

// Channel is a single, one-shot WebSocket connection. Call Connect once;
// after the connection drops (read error, close frame, missed pongs) the
// channel is dead — Closed() fires and a fresh Channel must be built.
type Channel struct {
	config Config

	conn   *websocket.Conn
	connMu sync.RWMutex

	messages chan []byte
	closed   chan struct{}
	closeErr error
	closeOnce sync.Once

	missedPongs atomic.Int32

	tracer  trace.Tracer
	metrics *metrics

	stopping atomic.Bool
}

// New builds a Channel. It does not connect.
func New(config Config) (*Channel, error) {
	c := &Channel{
		config:   config,
		messages: make(chan []byte, config.BufferSize),
		closed:   make(chan struct{}),
		tracer:   otel.Tracer(tracerName),
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init transport metrics: %w", err)
	}

	return c, nil
}

func (c *Channel) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &metrics{}

	if c.metrics.messagesReceived, err = meter.Int64Counter(
		"exc_transport_messages_received_total",
		metric.WithDescription("Total frames received"),
	); err != nil {
		return err
	}
	if c.metrics.messagesSent, err = meter.Int64Counter(
		"exc_transport_messages_sent_total",
		metric.WithDescription("Total frames sent"),
	); err != nil {
		return err
	}
	if c.metrics.droppedMessages, err = meter.Int64Counter(
		"exc_transport_messages_dropped_total",
		metric.WithDescription("Frames dropped because the inbound buffer was full"),
	); err != nil {
		return err
	}
	if c.metrics.messageLatency, err = meter.Float64Histogram(
		"exc_transport_message_latency_ms",
		metric.WithDescription("Frame read/write latency"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}
	if c.metrics.bytesReceived, err = meter.Int64Counter(
		"exc_transport_bytes_received_total",
		metric.WithUnit("By"),
	); err != nil {
		return err
	}
	if c.metrics.bytesSent, err = meter.Int64Counter(
		"exc_transport_bytes_sent_total",
		metric.WithUnit("By"),
	); err != nil {
		return err
	}
	if c.metrics.pingsFailed, err = meter.Int64Counter(
		"exc_transport_pings_failed_total",
	); err != nil {
		return err
	}

	return nil
}

// Connect dials the WebSocket once. On success, a background read loop
// and ping loop are started; Connect itself does not block on them.
func (c *Channel) Connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "transport.connect",
		trace.WithAttributes(
			attribute.String("exc.channel.name", c.config.Name),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	conn, _, err := websocket.Dial(ctx, c.config.URL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	span.SetStatus(codes.Ok, "connected")

	go c.readLoop(context.Background())
	go c.pingLoop(context.Background())

	return nil
}

func (c *Channel) readLoop(ctx context.Context) {
	attrs := metric.WithAttributes(attribute.String("exc.channel.name", c.config.Name))

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		readCtx := ctx
		var cancel context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, c.config.ReadTimeout)
		}

		start := time.Now()
		msgType, data, err := conn.Read(readCtx)
		latency := float64(time.Since(start).Milliseconds())
		if cancel != nil {
			cancel()
		}

		if err != nil {
			c.fail(fmt.Errorf("transport read failed: %w", err))
			return
		}

		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}

		c.metrics.messagesReceived.Add(ctx, 1, attrs)
		c.metrics.bytesReceived.Add(ctx, int64(len(data)), attrs)
		c.metrics.messageLatency.Record(ctx, latency, attrs)

		select {
		case c.messages <- data:
		default:
			c.metrics.droppedMessages.Add(ctx, 1, attrs)
		}
	}
}

func (c *Channel) pingLoop(ctx context.Context) {
	if c.config.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	attrs := metric.WithAttributes(attribute.String("exc.channel.name", c.config.Name))

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				c.metrics.pingsFailed.Add(ctx, 1, attrs)
				if c.missedPongs.Add(1) >= maxMissedPongs {
					c.fail(fmt.Errorf("transport missed %d pongs: %w", maxMissedPongs, err))
					return
				}
				continue
			}

			c.missedPongs.Store(0)
		}
	}
}

// fail marks the channel dead due to a connection-level error (distinct
// from payload decode errors, which never reach this package).
func (c *Channel) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close(websocket.StatusGoingAway, "transport failure")
			c.conn = nil
		}
		c.connMu.Unlock()

		close(c.closed)
	})
}

// Send writes a single frame. It is safe to call concurrently with Connect
// finishing, but not before Connect has returned successfully.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	ctx, span := c.tracer.Start(ctx, "transport.send",
		trace.WithAttributes(attribute.String("exc.channel.name", c.config.Name)))
	defer span.End()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		err := errors.New("transport: not connected")
		span.RecordError(err)
		return err
	}

	writeCtx := ctx
	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	start := time.Now()
	err := conn.Write(writeCtx, websocket.MessageText, frame)
	latency := float64(time.Since(start).Milliseconds())

	attrs := metric.WithAttributes(attribute.String("exc.channel.name", c.config.Name))

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("transport write failed: %w", err)
	}

	c.metrics.messagesSent.Add(ctx, 1, attrs)
	c.metrics.bytesSent.Add(ctx, int64(len(frame)), attrs)
	c.metrics.messageLatency.Record(ctx, latency, attrs)

	return nil
}

// Messages is the inbound frame channel. It is never closed by the
// channel itself (only Closed() signals death) so a reader can safely
// range over it alongside a select on Closed().
func (c *Channel) Messages() <-chan []byte {
	return c.messages
}

// Closed fires exactly once, when the connection dies for any reason
// (remote close, read error, missed pongs, or an explicit Close call).
func (c *Channel) Closed() <-chan struct{} {
	return c.closed
}

// Err returns the error that caused Closed to fire, if any (nil if Close
// was called explicitly rather than the connection failing).
func (c *Channel) Err() error {
	return c.closeErr
}

// Close gracefully closes the channel from this side.
func (c *Channel) Close() error {
	c.stopping.Store(true)

	var err error
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		conn := c.conn
		c.conn = nil
		c.connMu.Unlock()

		close(c.closed)

		if conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "client closing")
		}
	})
	return err
}
