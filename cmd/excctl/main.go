// Command excctl is a demonstration CLI for the go-exc client library: it
// wires the ambient stack (config, logging, tracing, health), then drives
// a Binance or OKX Service through a short subscribe-and-print loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fd1az/go-exc/exc"
	"github.com/fd1az/go-exc/exc/instrument"
	"github.com/fd1az/go-exc/internal/apm"
	"github.com/fd1az/go-exc/internal/config"
	"github.com/fd1az/go-exc/internal/health"
	"github.com/fd1az/go-exc/internal/logger"
	"github.com/fd1az/go-exc/venue/binance"
	"github.com/fd1az/go-exc/venue/okx"
)

func main() {
	venueFlag := flag.String("venue", "binance", "venue to connect to: binance or okx")
	symbolFlag := flag.String("symbol", "BTC-USDT", "BASE-QUOTE symbol to stream")
	streamFlag := flag.String("stream", "bidask", "stream to subscribe: bidask or trades")
	configPath := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "excctl: config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.WithJSON(cfg.App.Environment == "production"))

	provider := apm.ConsoleProvider
	if !cfg.Telemetry.Enabled {
		provider = apm.EmptyProvider
	}
	tp := apm.NewTraceProvider(cfg.Telemetry.ServiceName, apm.WithProvider(provider, log))
	defer tp.Stop()

	healthSrv := health.NewServer(cfg.Telemetry.PrometheusPort, "dev")
	go func() {
		if err := healthSrv.Start(); err != nil {
			log.Warn(context.Background(), "health server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sym := parseSymbol(*symbolFlag)

	svc, cache, err := buildService(ctx, *venueFlag, cfg)
	if err != nil {
		log.Error(ctx, "build service failed", "error", err, "venue", *venueFlag)
		os.Exit(1)
	}

	meta, err := cache.GetInstrument(ctx, "SPOT", sym)
	if err != nil {
		log.Warn(ctx, "instrument lookup failed", "error", err, "symbol", sym.String())
	} else {
		log.Info(ctx, "resolved instrument", "symbol", sym.String(), "native", meta.Native)
	}

	if err := svc.Ready(ctx); err != nil {
		log.Error(ctx, "service not ready", "error", err)
		os.Exit(1)
	}

	var req exc.Request
	switch *streamFlag {
	case "trades":
		req = exc.SubscribeTrades{Symbol: sym}
	default:
		req = exc.SubscribeBidAsk{Symbol: sym}
	}

	resp, err := svc.Call(ctx, req)
	if err != nil {
		log.Error(ctx, "subscribe failed", "error", err)
		os.Exit(1)
	}

	log.Info(ctx, "subscribed", "venue", *venueFlag, "symbol", sym.String(), "stream", *streamFlag)

	for {
		select {
		case ev, ok := <-resp.Stream:
			if !ok {
				log.Info(ctx, "stream closed")
				return
			}
			printEvent(ctx, log, ev)
		case <-ctx.Done():
			log.Info(ctx, "shutting down")
			_ = healthSrv.Stop(context.Background())
			return
		}
	}
}

func buildService(ctx context.Context, venue string, cfg *config.Config) (exc.Service, *instrument.Cache, error) {
	switch venue {
	case "okx":
		opts := []exc.Option{}
		if cfg.OKX.APIKey != "" {
			opts = append(opts, exc.WithPrivate(exc.Credentials{
				APIKey:     cfg.OKX.APIKey,
				APISecret:  cfg.OKX.APISecret,
				Passphrase: cfg.OKX.Passphrase,
			}))
		}
		opts = append(opts, exc.WithReconnectBackoff(exc.ReconnectBackoff{
			Initial: cfg.OKX.InitialBackoff,
			Max:     cfg.OKX.MaxBackoff,
			Jitter:  0.5,
		}))

		venueCfg := okx.DefaultConfig()
		venueCfg.PublicWSURL = cfg.OKX.WebSocketPublicURL
		venueCfg.PrivateWSURL = cfg.OKX.WebSocketPrivateURL
		venueCfg.HTTPURL = cfg.OKX.HTTPURL

		return okx.NewService(ctx, venueCfg, exc.NewEndpointConfig(opts...))

	default:
		opts := []exc.Option{}
		if cfg.Binance.APIKey != "" {
			opts = append(opts, exc.WithPrivate(exc.Credentials{
				APIKey:    cfg.Binance.APIKey,
				APISecret: cfg.Binance.APISecret,
			}))
		}
		opts = append(opts, exc.WithReconnectBackoff(exc.ReconnectBackoff{
			Initial: cfg.Binance.InitialBackoff,
			Max:     cfg.Binance.MaxBackoff,
			Jitter:  0.5,
		}))

		venueCfg := binance.DefaultConfig()
		if cfg.Binance.WebSocketURL != "" {
			venueCfg.WSBaseURL = cfg.Binance.WebSocketURL + "/stream"
		}
		venueCfg.HTTPURL = cfg.Binance.HTTPURL

		return binance.NewService(ctx, venueCfg, exc.NewEndpointConfig(opts...))
	}
}

func printEvent(ctx context.Context, log logger.LoggerInterface, ev exc.Event) {
	switch e := ev.(type) {
	case exc.BidAskEvent:
		log.Info(ctx, "bidask", "symbol", e.BidAsk.Symbol.String(), "ts", e.BidAsk.Timestamp.Format(time.RFC3339))
	case exc.TradeEvent:
		log.Info(ctx, "trade", "symbol", e.Trade.Symbol.String(), "price", e.Trade.Price.String(), "size", e.Trade.Size.String())
	default:
		log.Info(ctx, "event", "type", fmt.Sprintf("%T", ev))
	}
}

func parseSymbol(s string) exc.Symbol {
	for i := range s {
		if s[i] == '-' {
			return exc.Symbol{Base: s[:i], Quote: s[i+1:], Kind: exc.KindSpot}
		}
	}
	return exc.Symbol{Base: s, Kind: exc.KindSpot}
}
