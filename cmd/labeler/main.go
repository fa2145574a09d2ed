// Package main is the entry point of the offline label generator. It replays
// historical candles through the stop simulator and writes one label per
// (symbol, entry bar, side) for the downstream training pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/trail-guard-bot/internal/config"
	"github.com/your-org/trail-guard-bot/internal/indicator"
	"github.com/your-org/trail-guard-bot/internal/labelstore"
	"github.com/your-org/trail-guard-bot/internal/simulator"
	"github.com/your-org/trail-guard-bot/pkg/logger"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

func main() {
	var configPath string
	var migrationsPath string
	var useDB bool
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flag.StringVar(&migrationsPath, "migrations", "db/migrations", "path to schema migrations")
	flag.BoolVar(&useDB, "db", false, "also write labels to TimescaleDB")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	logger.Info("Label generator starting...")

	zapLogger, err := zap.NewProduction()
	if err != nil {
		logger.Fatalf("Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()

	csvWriter, err := labelstore.NewCSVWriter(cfg.Label.OutputCSV, zapLogger)
	if err != nil {
		logger.Fatalf("Failed to open output CSV: %v", err)
	}

	var dbWriter *labelstore.Writer
	if useDB {
		dsn := cfg.Database.DSN()
		if err := labelstore.Migrate(dsn, migrationsPath); err != nil {
			logger.Fatalf("Failed to migrate label database: %v", err)
		}
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			logger.Fatalf("Failed to connect to label database: %v", err)
		}
		dbWriter = labelstore.NewWriter(pool, cfg.Database, zapLogger)
	}

	params := simulator.Params{
		KFixed:     cfg.Risk.FixedStopATRMult[cfg.Timeframe],
		KTrailing:  cfg.Risk.TrailingATRMult[cfg.Timeframe],
		MaxBars:    cfg.Risk.MaxBars[cfg.Timeframe],
		HoldLambda: cfg.Label.HoldLambda,
		Cost:       cfg.Label.Cost,
	}

	// Simulation is CPU bound and independent per symbol; results are
	// collected per symbol and written in sorted order so repeated runs over
	// the same candles produce byte-identical output.
	symbols := append([]string(nil), cfg.Symbols...)
	sort.Strings(symbols)
	results := make([][]simulator.LabelRecord, len(symbols))

	g := new(errgroup.Group)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			records, err := labelSymbol(symbol, cfg, params)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatalf("Label generation failed: %v", err)
	}

	total := 0
	for _, records := range results {
		for _, rec := range records {
			if err := csvWriter.Write(rec); err != nil {
				logger.Fatalf("Failed to write label: %v", err)
			}
			if dbWriter != nil {
				dbWriter.Save(rec)
			}
			total++
		}
	}

	if err := csvWriter.Close(); err != nil {
		logger.Errorf("Failed to close output CSV: %v", err)
	}
	if dbWriter != nil {
		dbWriter.Close()
	}
	logger.Infof("Label generation finished: %d labels for %d symbols -> %s", total, len(symbols), cfg.Label.OutputCSV)
}

// labelSymbol loads the symbol's candle file and simulates a long and a short
// entry on every bar with a usable ATR. Entries during the ATR warm-up and the
// final bar are skipped.
func labelSymbol(symbol string, cfg *config.Config, params simulator.Params) ([]simulator.LabelRecord, error) {
	path := filepath.Join(cfg.Label.CandleDir, symbol+".csv")
	candles, err := simulator.ReadCandlesCSV(path)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		logger.Warnf("%s: no candles in %s, skipping", symbol, path)
		return nil, nil
	}

	bars := make([]indicator.OHLC, len(candles))
	for i, c := range candles {
		bars[i] = indicator.OHLC{High: c.High, Low: c.Low, Close: c.Close}
	}
	atr, err := indicator.ATR(bars, cfg.Label.ATRPeriod)
	if err != nil {
		return nil, err
	}

	var records []simulator.LabelRecord
	for i := range candles {
		if atr[i] <= 0 || candles[i].Close <= 0 {
			continue
		}
		atrFrac := atr[i] / candles[i].Close
		for _, side := range []ratchet.Side{ratchet.Long, ratchet.Short} {
			rec, err := simulator.Simulate(candles, symbol, side, i, atrFrac, params)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				continue
			}
			records = append(records, *rec)
		}
	}
	logger.Infof("%s: %d labels from %d candles", symbol, len(records), len(candles))
	return records, nil
}
