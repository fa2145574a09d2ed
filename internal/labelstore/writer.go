// Package labelstore persists simulated stop labels for the downstream
// training pipeline: batched TimescaleDB writes, a CSV exporter, and the
// schema migrations both rely on.
package labelstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/trail-guard-bot/internal/config"
	"github.com/your-org/trail-guard-bot/internal/simulator"
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close()
}

var labelColumns = []string{
	"entry_time", "symbol", "side", "entry_index", "entry_price", "atr_frac",
	"exit_price", "exit_type", "bars_held", "mfe", "mae", "realized_return", "score",
}

// Writer はラベルレコードをTimescaleDBへバッチ書き込みします。
// バッファリングとフラッシュのパターンは板情報ライターと同じです。
type Writer struct {
	pool         Pool
	logger       *zap.Logger
	batchSize    int
	buffer       []simulator.LabelRecord
	bufferMutex  sync.Mutex
	flushTicker  *time.Ticker
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewWriter は新しいWriterを作成します。pool が nil の場合はダミーライターを
// 返し、すべての保存が no-op になります（CSVのみの実行モード用）。
func NewWriter(pool Pool, dbConfig config.DatabaseConf, logger *zap.Logger) *Writer {
	w := &Writer{
		pool:         pool,
		logger:       logger,
		batchSize:    dbConfig.BatchSize,
		shutdownChan: make(chan struct{}),
	}
	if pool == nil {
		logger.Info("label pool is nil, creating dummy label writer")
		return w
	}

	if w.batchSize <= 0 {
		w.batchSize = 100
		logger.Warn("batch_size is zero or negative, defaulting to 100",
			zap.Int("originalValue", dbConfig.BatchSize))
	}
	interval := dbConfig.WriteIntervalSeconds
	if interval <= 0 {
		interval = 1
		logger.Warn("write_interval_seconds is zero or negative, defaulting to 1s",
			zap.Int("originalValue", dbConfig.WriteIntervalSeconds))
	}

	w.buffer = make([]simulator.LabelRecord, 0, w.batchSize)
	w.flushTicker = time.NewTicker(time.Duration(interval) * time.Second)
	w.wg.Add(1)
	go w.run()
	logger.Info("label writer started", zap.Int("batchSize", w.batchSize))
	return w
}

// Save buffers one record. Flushing happens on the background ticker or when
// the buffer reaches the batch size.
func (w *Writer) Save(rec simulator.LabelRecord) {
	if w.pool == nil {
		return
	}
	w.bufferMutex.Lock()
	w.buffer = append(w.buffer, rec)
	full := len(w.buffer) >= w.batchSize
	w.bufferMutex.Unlock()
	if full {
		w.flush()
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.flushTicker.C:
			w.flush()
		case <-w.shutdownChan:
			return
		}
	}
}

func (w *Writer) flush() {
	w.bufferMutex.Lock()
	if len(w.buffer) == 0 {
		w.bufferMutex.Unlock()
		return
	}
	batch := w.buffer
	w.buffer = make([]simulator.LabelRecord, 0, w.batchSize)
	w.bufferMutex.Unlock()

	rows := make([][]interface{}, len(batch))
	for i, r := range batch {
		rows[i] = []interface{}{
			r.EntryTime, r.Symbol, string(r.Side), r.EntryIndex, r.EntryPrice, r.ATRFrac,
			r.ExitPrice, string(r.ExitType), r.BarsHeld, r.MFE, r.MAE, r.Return, r.Score,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	copied, err := w.pool.CopyFrom(ctx, pgx.Identifier{"trade_labels"}, labelColumns, pgx.CopyFromRows(rows))
	if err != nil {
		w.logger.Error("failed to copy label batch", zap.Error(err), zap.Int("batch", len(batch)))
		return
	}
	w.logger.Debug("flushed label batch", zap.Int64("rows", copied))
}

// Close flushes the remaining buffer and stops the background goroutine.
func (w *Writer) Close() {
	if w.pool == nil {
		return
	}
	close(w.shutdownChan)
	w.flushTicker.Stop()
	w.wg.Wait()
	w.flush()
	w.pool.Close()
	w.logger.Info("label writer closed")
}
