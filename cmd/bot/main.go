// Package main is the entry point of the trailing stop bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/trail-guard-bot/internal/config"
	"github.com/your-org/trail-guard-bot/internal/engine"
	"github.com/your-org/trail-guard-bot/internal/events"
	"github.com/your-org/trail-guard-bot/internal/exchange"
	"github.com/your-org/trail-guard-bot/internal/feed"
	"github.com/your-org/trail-guard-bot/internal/http/handler"
	"github.com/your-org/trail-guard-bot/internal/indicator"
	"github.com/your-org/trail-guard-bot/internal/position"
	"github.com/your-org/trail-guard-bot/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	logger.Info("Trailing Stop Bot starting...")
	logger.Infof("Loaded configuration from: %s", *configPath)
	logger.Infof("Symbols: %v, timeframe: %s", cfg.Symbols, cfg.Timeframe)

	var zapLogger *zap.Logger
	var zapErr error
	if cfg.LogLevel == "debug" {
		zapLogger, zapErr = zap.NewDevelopment()
	} else {
		zapLogger, zapErr = zap.NewProduction()
	}
	if zapErr != nil {
		logger.Fatalf("Failed to initialize Zap logger: %v", zapErr)
	}
	defer func() {
		if err := zapLogger.Sync(); err != nil {
			// We can't use the logger here because it's being synced.
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}()

	var sink events.Sink
	if cfg.Silent {
		sink = events.NewNopSink()
	} else {
		sink = events.NewZapSink(zapLogger)
	}

	// --- Health Check Server ---
	go func() {
		http.HandleFunc("/health", handler.HealthCheckHandler)
		logger.Info("Health check server starting on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			logger.Fatalf("Health check server failed: %v", err)
		}
	}()

	// --- Price Feed and Volatility Estimators ---
	priceCache := feed.NewCache()
	estimators := make(engine.EstimatorSet, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		estimators[symbol] = indicator.NewEWMAVolatility(cfg.Risk.EWMALambda)
	}

	tickHandler := func(t feed.Tick) {
		priceCache.Put(t)
		if est, ok := estimators[t.Symbol]; ok {
			est.Update(t.Price)
		}
	}
	wsClient := feed.NewWebSocketClient(cfg.Feed.URL, cfg.Symbols, tickHandler)

	// --- Exchange Client with Retry Policy ---
	binance := exchange.NewBinanceClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet, cfg.Exchange.TickSize)
	client := exchange.NewRetrier(binance, exchange.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		CallTimeout: time.Duration(cfg.Retry.CallTimeoutS) * time.Second,
	})

	// --- Position Store, Controller and Synchronizer ---
	store := position.NewStore()
	controller := engine.NewController(store, client, priceCache, sink, cfg.Risk, cfg.Timeframe)
	synchronizer := engine.NewSynchronizer(store, client, estimators, sink, cfg.Risk, cfg.Timeframe)

	// --- Graceful Shutdown Setup ---
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// --- Start Services ---
	go func() {
		logger.Info("Connecting to mark price stream...")
		if err := wsClient.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("WebSocket client exited with error: %v", err)
			sigs <- syscall.SIGTERM
		}
	}()
	go synchronizer.Run(ctx)
	go controller.Run(ctx)

	// Wait for shutdown signal
	sig := <-sigs
	logger.Infof("Received signal: %s, initiating shutdown...", sig)

	cancel()
	time.Sleep(1 * time.Second)
	logger.Info("Trailing Stop Bot shut down gracefully.")
}
