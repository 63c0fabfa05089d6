// Command server wires together the historical feed, the realtime
// transport, and the market-data engine for one instrument, exposing a
// Prometheus scrape endpoint and an optional Redis event fan-out.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epic1st/marketcore/config"
	"github.com/epic1st/marketcore/distribute"
	"github.com/epic1st/marketcore/historicalfeed"
	"github.com/epic1st/marketcore/logging"
	"github.com/epic1st/marketcore/marketdata"
	"github.com/epic1st/marketcore/monitoring"
	"github.com/epic1st/marketcore/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("config load failed", err)
	}

	zone, err := time.LoadLocation(cfg.MarketZone)
	if err != nil {
		logging.Warn(fmt.Sprintf("unknown market zone %q, falling back to UTC", cfg.MarketZone))
		zone = time.UTC
	}

	logging.AddHook(logging.MaskingHook{})
	if err := logging.EnableFileOutput(logging.RotationConfig{
		Filename:           cfg.Logging.FilePath,
		MaxSizeMB:          cfg.Logging.MaxSizeMB,
		MaxBackups:         cfg.Logging.MaxBackups,
		CompressionEnabled: cfg.Logging.CompressionEnabled,
	}); err != nil {
		logging.Warn(fmt.Sprintf("file log output disabled: %s", err))
	}

	errTracker := logging.NewErrorTracker()

	historical := historicalfeed.NewClient(historicalfeed.Config{
		BaseURL:   cfg.Historical.BaseURL,
		APIKey:    cfg.Historical.APIKey,
		RetryMax:  cfg.Historical.RetryMax,
		RetryWait: time.Duration(cfg.Historical.RetryWaitSeconds) * time.Second,
	})

	engine, err := marketdata.NewEngine(marketdata.EngineConfig{
		Symbol:              cfg.Symbol,
		Zone:                zone,
		Timeframes:          cfg.Timeframes,
		MaxBarsPerSeries:    cfg.MaxBarsPerSeries,
		MaxLevelsPerSide:    cfg.MaxLevelsPerSide,
		MaxTrades:           cfg.MaxTrades,
		EnforceMinBarVolume: cfg.EnforceMinBarVolume,
	}, historical, errTracker)
	if err != nil {
		logging.Fatal("engine construction failed", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Initialize(ctx, 1); err != nil {
		logging.Fatal("historical warm-up failed", err)
	}

	realtimeTransport := transport.NewWebSocketTransport(transport.Config{
		URL:                cfg.Realtime.URL,
		PingInterval:       time.Duration(cfg.Realtime.PingIntervalSeconds) * time.Second,
		DefaultTradeVolume: cfg.Realtime.DefaultTradeVolume,
	})

	token, err := historical.GetSessionToken(ctx)
	if err != nil {
		logging.Fatal("session token fetch failed", err)
	}
	if err := engine.StartFeed(ctx, token, realtimeTransport); err != nil {
		logging.Fatal("start feed failed", err)
	}

	var fanout *distribute.Fanout
	if cfg.Redis.Enabled {
		fanout = distribute.NewFanout(distribute.Config{Symbol: cfg.Symbol, Addr: cfg.Redis.Addr, ChannelPrefix: cfg.Redis.ChannelPrefix})
		if err := fanout.Ping(ctx); err != nil {
			logging.Warn(fmt.Sprintf("redis fan-out disabled, ping failed: %s", err))
			fanout = nil
		} else {
			fanout.Attach(engine)
			go fanout.Run(ctx)
		}
	}

	go healthLoop(ctx, engine, cfg.Symbol)

	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if engine.Health(time.Now()) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "ok")
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "unhealthy")
	})

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		logging.Info("metrics/health server listening on :8080", logging.Component("http"), logging.Symbol(cfg.Symbol))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Warn(fmt.Sprintf("http server error: %s", err), logging.Component("http"))
		}
	}()

	<-ctx.Done()
	logging.Info("shutting down", logging.Symbol(cfg.Symbol))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = engine.StopFeed()
	if fanout != nil {
		_ = fanout.Close()
	}
}

// healthLoop periodically pushes statistics() state into the metrics
// registry so staleness is visible even between scrapes.
func healthLoop(ctx context.Context, engine *marketdata.Engine, symbol string) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Statistics()
			monitoring.SetHealthy(symbol, stats.Healthy)
			monitoring.SetBookDepth(symbol, "bid", stats.BookBidLevels)
			monitoring.SetBookDepth(symbol, "ask", stats.BookAskLevels)
			for tf, seconds := range engine.BarStaleness(time.Now()) {
				monitoring.SetBarStaleness(symbol, tf, seconds)
			}
			if !stats.Healthy {
				monitoring.RecordDataQualityWarning(symbol, "unhealthy")
			}
		}
	}
}
