package labelstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/trail-guard-bot/internal/simulator"
)

// CSVWriter writes label records to a CSV file, one row per record.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// NewCSVWriter creates the file, truncating any existing one, and writes the
// header row.
func NewCSVWriter(filePath string, logger *zap.Logger) (*CSVWriter, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	w := &CSVWriter{
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger,
	}
	header := []string{
		"entry_time", "symbol", "side", "entry_index", "entry_price", "atr_frac",
		"exit_price", "exit_type", "bars_held", "mfe", "mae", "realized_return", "score",
	}
	if err := w.writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return w, nil
}

// Write appends one record.
func (w *CSVWriter) Write(rec simulator.LabelRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := []string{
		rec.EntryTime.UTC().Format(time.RFC3339),
		rec.Symbol,
		string(rec.Side),
		strconv.Itoa(rec.EntryIndex),
		formatFloat(rec.EntryPrice),
		formatFloat(rec.ATRFrac),
		formatFloat(rec.ExitPrice),
		string(rec.ExitType),
		strconv.Itoa(rec.BarsHeld),
		formatFloat(rec.MFE),
		formatFloat(rec.MAE),
		formatFloat(rec.Return),
		formatFloat(rec.Score),
	}
	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.logger.Error("csv flush failed", zap.Error(err))
	}
	return w.file.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
