package okx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fd1az/go-exc/exc"
)

func TestFetchInstrumentsFiltersNonLive(t *testing.T) {
	dtos := []instrumentDTO{
		{InstID: "BTC-USDT", BaseCcy: "BTC", QuoteCcy: "USDT", State: "live"},
		{InstID: "OLD-USDT", BaseCcy: "OLD", QuoteCcy: "USDT", State: "suspend"},
	}
	data, _ := json.Marshal(dtos)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instType") != "SPOT" {
			t.Errorf("instType = %q, want SPOT", r.URL.Query().Get("instType"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: data})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	metas, err := client.FetchInstruments(context.Background(), "SPOT")
	if err != nil {
		t.Fatalf("FetchInstruments: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("len(metas) = %d, want 1 (non-live instruments dropped)", len(metas))
	}
	if metas[0].Native != "BTC-USDT" {
		t.Fatalf("Native = %q, want BTC-USDT", metas[0].Native)
	}
}

func TestFetchInstrumentsSurfacesNonZeroCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "50000", Msg: "internal error"})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := client.FetchInstruments(context.Background(), "SPOT"); err == nil {
		t.Fatal("expected an error for a non-zero envelope code")
	}
}

func TestFetchInstrumentsForwardsNonSpotTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instType"); got != "FUTURES" {
			t.Errorf("instType = %q, want FUTURES", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: json.RawMessage("[]")})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := client.FetchInstruments(context.Background(), "FUTURES"); err != nil {
		t.Fatalf("FetchInstruments: %v", err)
	}
}

func TestFetchInstrumentsRejectsUnrecognizedTag(t *testing.T) {
	client, err := NewHTTPClient("http://unused.invalid", nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := client.FetchInstruments(context.Background(), "BOGUS"); err == nil {
		t.Fatal("expected an error for an unrecognized instType tag")
	}
}

func TestFetchCandlesReversesToAscending(t *testing.T) {
	rows := [][]any{
		{"2000", "2", "2.5", "1.5", "2", "5"},
		{"1000", "1", "1.5", "0.5", "1", "5"},
	}
	data, _ := json.Marshal(rows)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != candlesEndpoint {
			t.Errorf("path = %q, want %q (useHistory=false)", r.URL.Path, candlesEndpoint)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: data})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	sym := exc.Symbol{Base: "BTC", Quote: "USDT", Kind: exc.KindSpot}
	candles, err := client.FetchCandles(context.Background(), sym, exc.Period1m, exc.Range{}, 0, false)
	if err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
	if candles[0].OpenTime.UnixMilli() != 1000 {
		t.Fatalf("candles[0].OpenTime = %v, want the oldest candle first", candles[0].OpenTime)
	}
}

func TestFetchCandlesRoutesToHistoryEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != historyCandlesEndpoint {
			t.Errorf("path = %q, want %q (useHistory=true)", r.URL.Path, historyCandlesEndpoint)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: json.RawMessage("[]")})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	sym := exc.Symbol{Base: "BTC", Quote: "USDT", Kind: exc.KindSpot}
	if _, err := client.FetchCandles(context.Background(), sym, exc.Period1m, exc.Range{}, 0, true); err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
}

func TestFetchCandlesPagesUntilShortPage(t *testing.T) {
	var calls int
	var afterParams []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		afterParams = append(afterParams, r.URL.Query().Get("after"))

		w.Header().Set("Content-Type", "application/json")
		var rows [][]any
		switch calls {
		case 1:
			// OKX returns newest-first.
			rows = [][]any{
				{"120000", "1", "1", "1", "1", "5"},
				{"60000", "1", "1", "1", "1", "5"},
			}
		case 2:
			rows = [][]any{
				{"0", "1", "1", "1", "1", "5"},
			}
		default:
			t.Fatalf("unexpected page request #%d", calls)
		}
		data, _ := json.Marshal(rows)
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: data})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	sym := exc.Symbol{Base: "BTC", Quote: "USDT", Kind: exc.KindSpot}
	candles, err := client.FetchCandles(context.Background(), sym, exc.Period1m, exc.Range{}, 2, false)
	if err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (loop stops once a short page comes back)", calls)
	}
	if len(candles) != 3 {
		t.Fatalf("len(candles) = %d, want 3 (stitched across pages)", len(candles))
	}
	if candles[0].OpenTime.UnixMilli() != 0 || candles[2].OpenTime.UnixMilli() != 120000 {
		t.Fatalf("candles not in ascending order: %+v", candles)
	}
	if afterParams[1] != "60000" {
		t.Fatalf("second page after = %q, want 60000 (oldest candle from the first page)", afterParams[1])
	}
}

func TestFetchCandlesStopsAtLowerBound(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		rows := [][]any{
			{"120000", "1", "1", "1", "1", "5"},
			{"60000", "1", "1", "1", "1", "5"},
		}
		data, _ := json.Marshal(rows)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: data})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	sym := exc.Symbol{Base: "BTC", Quote: "USDT", Kind: exc.KindSpot}
	rng := exc.Range{Start: exc.Bound{Kind: exc.Excluded, Ts: 60000}}
	candles, err := client.FetchCandles(context.Background(), sym, exc.Period1m, rng, 2, false)
	if err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (oldest candle already reached the lower bound)", calls)
	}
	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
}

func TestPlaceOrderRequiresCredentials(t *testing.T) {
	client, err := NewHTTPClient("https://example.invalid", nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := client.PlaceOrder(context.Background(), exc.PlaceOrder{}); err == nil {
		t.Fatal("expected an error when no credentials are configured")
	}
}

func TestPlaceOrderSignsAndReturnsVenueID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{"OK-ACCESS-KEY", "OK-ACCESS-SIGN", "OK-ACCESS-TIMESTAMP", "OK-ACCESS-PASSPHRASE"} {
			if r.Header.Get(h) == "" {
				t.Errorf("missing header %s", h)
			}
		}
		data, _ := json.Marshal([]map[string]string{{"ordId": "999"}})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: data})
	}))
	defer server.Close()

	creds := &exc.Credentials{APIKey: "key", APISecret: "secret", Passphrase: "pass"}
	client, err := NewHTTPClient(server.URL, creds)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	id, err := client.PlaceOrder(context.Background(), exc.PlaceOrder{
		Symbol: exc.Symbol{Base: "BTC", Quote: "USDT", Kind: exc.KindSpot},
		Side:   exc.SideBuy,
		Kind_:  exc.OrderKindLimit,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != exc.OrderID("999") {
		t.Fatalf("id = %q, want 999", id)
	}
}

func TestGetOrderDecodesViaOrderPush(t *testing.T) {
	data, _ := json.Marshal([]orderPush{
		{InstID: "BTC-USDT", OrdID: "42", Px: "100", Sz: "2", OrdType: "limit", Side: "sell", State: "filled", AccFillSz: "2"},
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "0", Data: data})
	}))
	defer server.Close()

	creds := &exc.Credentials{APIKey: "key", APISecret: "secret", Passphrase: "pass"}
	client, err := NewHTTPClient(server.URL, creds)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	sym := exc.Symbol{Base: "BTC", Quote: "USDT", Kind: exc.KindSpot}
	ord, err := client.GetOrder(context.Background(), sym, exc.OrderID("42"))
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if ord.State != exc.OrderFilled {
		t.Fatalf("State = %v, want filled", ord.State)
	}
	if ord.Side != exc.SideSell {
		t.Fatalf("Side = %v, want sell", ord.Side)
	}
}

func TestGetOrderNonZeroCodeIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Code: "51000", Msg: "order not found"})
	}))
	defer server.Close()

	creds := &exc.Credentials{APIKey: "key", APISecret: "secret", Passphrase: "pass"}
	client, err := NewHTTPClient(server.URL, creds)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	sym := exc.Symbol{Base: "BTC", Quote: "USDT", Kind: exc.KindSpot}
	if _, err := client.GetOrder(context.Background(), sym, exc.OrderID("999")); err == nil {
		t.Fatal("expected an error for a non-zero envelope code")
	}
}
