package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// mockWSServer starts a test WebSocket server running handler for every
// accepted connection.
func mockWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("websocket accept error: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		if handler != nil {
			handler(conn)
		}
	}))
}

func echoHandler(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, msgType, data); err != nil {
			return
		}
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestChannelConnectAndSend(t *testing.T) {
	received := make(chan []byte, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- data
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	ch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := ch.Send(ctx, []byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != `{"hello":"world"}` {
			t.Fatalf("server received %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestChannelReceivesMessages(t *testing.T) {
	server := mockWSServer(t, echoHandler)
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	ch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := ch.Send(ctx, []byte("ping-me")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-ch.Messages():
		if string(data) != "ping-me" {
			t.Fatalf("echoed %q, want ping-me", data)
		}
	case <-time.After(time.Second):
		t.Fatal("never received the echoed frame")
	}
}

func TestChannelClosedFiresOnServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Close immediately from the server side.
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	ch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case <-ch.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("Closed() never fired after server closed the connection")
	}
}

func TestChannelSendBeforeConnectFails(t *testing.T) {
	cfg := DefaultConfig("ws://unused", "test")
	ch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := ch.Send(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected Send before Connect to fail")
	}
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	ch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}
