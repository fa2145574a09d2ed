package simulator

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadCandlesCSV loads an OHLC series from a CSV file.
// The file is expected to have a header and the following columns:
// time, open, high, low, close (extra columns such as volume are ignored).
// The time column accepts RFC3339 or a unix millisecond timestamp.
func ReadCandlesCSV(filePath string) ([]Candle, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // tolerate trailing columns

	// Header row.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil // empty file is not an error
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var candles []Candle
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		if len(record) < 5 {
			return nil, fmt.Errorf("csv line %d: expected at least 5 columns, got %d", line, len(record))
		}

		ts, err := parseCandleTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		var prices [4]float64
		for i := 0; i < 4; i++ {
			prices[i], err = strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: bad price %q: %w", line, record[i+1], err)
			}
		}
		candles = append(candles, Candle{
			Time:  ts,
			Open:  prices[0],
			High:  prices[1],
			Low:   prices[2],
			Close: prices[3],
		})
	}
	return candles, nil
}

func parseCandleTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
