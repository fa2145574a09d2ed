package simulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

var testParams = Params{
	KFixed:     2.5,
	KTrailing:  1.2,
	MaxBars:    10,
	HoldLambda: 0.002,
	Cost:       0.0008,
}

func flatCandles(n int, price float64) []Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{
			Time: base.Add(time.Duration(i) * time.Hour),
			Open: price, High: price, Low: price, Close: price,
		}
	}
	return out
}

func TestSimulate_FixedStopExit(t *testing.T) {
	// Entry at 100 with atrFrac 0.012 and kFixed 2.5 puts the fixed stop at
	// 97. The second scanned bar crashes through both the trailing level
	// (100*(1-0.0144) = 98.56 off the flat extreme) and the fixed level, so
	// breach priority classifies the exit as fixed; the fill is the
	// effective stop where the working order sat.
	candles := flatCandles(5, 100)
	candles[2] = Candle{Time: candles[2].Time, Open: 100, High: 100, Low: 95, Close: 96}

	rec, err := Simulate(candles, "BTCUSDT", ratchet.Long, 0, 0.012, testParams)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExitFixed, rec.ExitType)
	assert.InDelta(t, 98.56, rec.ExitPrice, 1e-9)
	assert.Equal(t, 2, rec.BarsHeld)
	assert.InDelta(t, -0.0144, rec.Return, 1e-9)
	assert.Less(t, rec.MAE, 0.0)
}

func TestSimulate_TrailingStopExit(t *testing.T) {
	// Price rallies enough for the trailing candidate to ratchet up, then
	// pulls back through it without coming near the fixed stop.
	candles := flatCandles(6, 100)
	candles[1] = Candle{Time: candles[1].Time, Open: 100, High: 102, Low: 101, Close: 101.5}
	// Trailing level after bar 1: 102*(1-0.0144) = 100.5312, above entry's 98.56.
	candles[2] = Candle{Time: candles[2].Time, Open: 101.5, High: 101.5, Low: 100, Close: 100.2}

	rec, err := Simulate(candles, "BTCUSDT", ratchet.Long, 0, 0.012, testParams)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExitTrailing, rec.ExitType)
	assert.InDelta(t, 102*(1-1.2*0.012), rec.ExitPrice, 1e-9)
	assert.Equal(t, 2, rec.BarsHeld)
	assert.Greater(t, rec.Return, 0.0)
	assert.InDelta(t, 0.02, rec.MFE, 1e-9)
}

// TestSimulate_FixedBeatsTrailing pins the breach priority: when a single bar
// crosses both the fixed and the trailing level, the exit is fixed.
func TestSimulate_FixedBeatsTrailing(t *testing.T) {
	candles := flatCandles(4, 100)
	candles[1] = Candle{Time: candles[1].Time, Open: 100, High: 100.5, Low: 90, Close: 91}

	rec, err := Simulate(candles, "BTCUSDT", ratchet.Long, 0, 0.012, testParams)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExitFixed, rec.ExitType, "fixed must win when both levels are breached")
	// Fill at the effective stop: extreme 100.5 -> 100.5*(1-0.0144).
	assert.InDelta(t, 100.5*(1-1.2*0.012), rec.ExitPrice, 1e-9)
	assert.Equal(t, 1, rec.BarsHeld)
}

func TestSimulate_TimeExit(t *testing.T) {
	candles := flatCandles(20, 100)
	params := testParams
	params.MaxBars = 5

	rec, err := Simulate(candles, "BTCUSDT", ratchet.Long, 0, 0.012, params)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExitTime, rec.ExitType)
	assert.Equal(t, 5, rec.BarsHeld)
	assert.InDelta(t, 100.0, rec.ExitPrice, 1e-9)
	assert.InDelta(t, 0.0, rec.Return, 1e-9)
	// Flat series: score is pure penalty.
	assert.Less(t, rec.Score, 0.0)
}

func TestSimulate_TimeExitTruncatedSeries(t *testing.T) {
	// MaxBars reaches past the end of the series; the time exit lands on the
	// last available bar.
	candles := flatCandles(4, 100)
	rec, err := Simulate(candles, "BTCUSDT", ratchet.Short, 0, 0.012, testParams)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ExitTime, rec.ExitType)
	assert.Equal(t, 3, rec.BarsHeld)
}

func TestSimulate_EntryTooNearEnd(t *testing.T) {
	candles := flatCandles(3, 100)
	rec, err := Simulate(candles, "BTCUSDT", ratchet.Long, 2, 0.012, testParams)
	require.NoError(t, err)
	assert.Nil(t, rec, "no record for an entry on the final bar")
}

func TestSimulate_ShortSide(t *testing.T) {
	// Short entry at 100: fixed stop at 103. A rally bar triggers it.
	candles := flatCandles(5, 100)
	candles[1] = Candle{Time: candles[1].Time, Open: 100, High: 104, Low: 100, Close: 103.5}

	rec, err := Simulate(candles, "ETHUSDT", ratchet.Short, 0, 0.012, testParams)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExitFixed, rec.ExitType)
	// Effective stop for the short: min(103, 100*(1+0.0144)) = 101.44.
	assert.InDelta(t, 101.44, rec.ExitPrice, 1e-9)
	assert.InDelta(t, -0.0144, rec.Return, 1e-9)
}

// TestSimulate_Deterministic reruns an eventful series and requires the two
// records to be identical, field for field.
func TestSimulate_Deterministic(t *testing.T) {
	candles := flatCandles(30, 100)
	for i := 1; i < len(candles); i++ {
		// A deterministic zig-zag with a late sell-off.
		drift := float64(i % 7)
		candles[i].Open = 100 + drift
		candles[i].High = 101 + drift
		candles[i].Low = 99 + drift - float64(i)/3
		candles[i].Close = 100 + drift - float64(i)/4
	}

	first, err := Simulate(candles, "BTCUSDT", ratchet.Long, 3, 0.015, testParams)
	require.NoError(t, err)
	second, err := Simulate(candles, "BTCUSDT", ratchet.Long, 3, 0.015, testParams)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("simulate is not deterministic (-first +second):\n%s", diff)
	}
}

func TestSimulate_InvalidParams(t *testing.T) {
	candles := flatCandles(5, 100)

	_, err := Simulate(candles, "BTCUSDT", ratchet.Long, 0, 0.012, Params{KFixed: 0, KTrailing: 1, MaxBars: 5})
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)

	_, err = Simulate(candles, "BTCUSDT", ratchet.Long, -1, 0.012, testParams)
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)

	_, err = Simulate(candles, "BTCUSDT", ratchet.Long, 0, 0, testParams)
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)
}

func TestReadCandlesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BTCUSDT.csv")
	content := "time,open,high,low,close,volume\n" +
		"2025-06-01T00:00:00Z,100,101,99,100.5,12.3\n" +
		"1748739600000,100.5,102,100,101.5,8.1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	candles, err := ReadCandlesCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), candles[0].Time)
	assert.Equal(t, 101.0, candles[0].High)
	assert.Equal(t, time.UnixMilli(1748739600000).UTC(), candles[1].Time)
	assert.Equal(t, 101.5, candles[1].Close)
}

func TestReadCandlesCSV_BadRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,open,high,low,close\nnot-a-time,1,2,0,1\n"), 0644))

	_, err := ReadCandlesCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad timestamp")
}
