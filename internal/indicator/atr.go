package indicator

import "fmt"

// OHLC is the minimal bar shape ATR needs.
type OHLC struct {
	High  float64
	Low   float64
	Close float64
}

// ATR computes the Average True Range series with Wilder smoothing.
//
// Entries before index `period` are zero (insufficient history). Index
// `period` holds the seed, the simple average of the first `period` true
// ranges; later entries use Wilder's recursive smoothing.
func ATR(bars []OHLC, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("indicator: atr period must be positive, got %d", period)
	}
	out := make([]float64, len(bars))
	if len(bars) <= period {
		return out, nil
	}

	trueRange := func(i int) float64 {
		tr := bars[i].High - bars[i].Low
		if i == 0 {
			return tr
		}
		if hc := abs(bars[i].High - bars[i-1].Close); hc > tr {
			tr = hc
		}
		if lc := abs(bars[i].Low - bars[i-1].Close); lc > tr {
			tr = lc
		}
		return tr
	}

	// Seed: simple average of the first `period` true ranges.
	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(i)
	}
	out[period] = sum / float64(period)

	// Wilder smoothing: ATR_t = (ATR_{t-1}*(period-1) + TR_t) / period.
	for i := period + 1; i < len(bars); i++ {
		out[i] = (out[i-1]*float64(period-1) + trueRange(i)) / float64(period)
	}
	return out, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
