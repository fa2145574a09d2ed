// Package simulator replays the stop-loss ratchet bar-by-bar over historical
// candles to produce training labels: for each entry candidate, which stop
// would have fired, when, and at what realized return.
//
// A simulation run is pure over its inputs. Rerunning with the same candles
// and parameters always yields the identical record, which downstream
// training depends on.
package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

// Candle is one OHLC bar.
type Candle struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// ExitType classifies which rule ended a simulated trade.
type ExitType string

const (
	ExitFixed    ExitType = "fixed"
	ExitTrailing ExitType = "trailing"
	ExitTime     ExitType = "time"
)

// Params are the stop parameters of one simulation pass. They are global
// across symbols; per-symbol tuning would leak look-ahead into the labels.
type Params struct {
	KFixed     float64 // fixed stop distance, in ATR-fractions of entry
	KTrailing  float64 // trailing distance, in ATR-fractions of the extreme
	MaxBars    int     // holding horizon
	HoldLambda float64 // holding-time penalty weight in the score
	Cost       float64 // round-trip cost subtracted from the score
}

func (p Params) validate() error {
	if p.KFixed <= 0 || p.KTrailing <= 0 {
		return fmt.Errorf("%w: multipliers must be positive (kFixed=%v, kTrailing=%v)",
			ratchet.ErrInvalidParameter, p.KFixed, p.KTrailing)
	}
	if p.MaxBars <= 0 {
		return fmt.Errorf("%w: max bars must be positive, got %d", ratchet.ErrInvalidParameter, p.MaxBars)
	}
	if p.HoldLambda < 0 || p.Cost < 0 {
		return fmt.Errorf("%w: hold lambda and cost must not be negative", ratchet.ErrInvalidParameter)
	}
	return nil
}

// LabelRecord is one training label: the outcome of simulating the stop logic
// for a single (entry, side) candidate. Records are immutable once produced.
type LabelRecord struct {
	Symbol     string
	EntryIndex int
	EntryTime  time.Time
	Side       ratchet.Side
	EntryPrice float64
	ATRFrac    float64 // ATR-relative volatility at entry
	ExitPrice  float64
	ExitType   ExitType
	BarsHeld   int
	MFE        float64 // maximum favorable excursion, fraction of entry
	MAE        float64 // maximum adverse excursion, fraction of entry (<= 0)
	Return     float64 // sign-adjusted realized return
	Score      float64
}

// Simulate runs the stop logic for an entry filled at candles[entryIndex]'s
// close. It returns (nil, nil) when no bar follows the entry, i.e. the entry
// sits too near the series end to label.
//
// Scanning walks entryIndex+1 .. entryIndex+MaxBars. Each bar first ratchets
// the extreme in the favorable direction, then checks whether the bar's
// adverse side crossed the effective stop. A breach exits at the stop price
// and is classified fixed when the bar also crossed the immutable fixed
// level, trailing otherwise. Without a breach the trade exits at
// the final bar's close as a time exit. MFE/MAE are tracked for diagnostics
// only and never influence the exit decision.
func Simulate(candles []Candle, symbol string, side ratchet.Side, entryIndex int, atrFrac float64, p Params) (*LabelRecord, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if entryIndex < 0 || entryIndex >= len(candles) {
		return nil, fmt.Errorf("%w: entry index %d out of range [0,%d)", ratchet.ErrInvalidParameter, entryIndex, len(candles))
	}
	if entryIndex+1 >= len(candles) {
		return nil, nil // too near the series end to label
	}

	entry := candles[entryIndex].Close
	fixedStop, err := ratchet.FixedStop(side, entry, p.KFixed, atrFrac)
	if err != nil {
		return nil, err
	}

	rec := &LabelRecord{
		Symbol:     symbol,
		EntryIndex: entryIndex,
		EntryTime:  candles[entryIndex].Time,
		Side:       side,
		EntryPrice: entry,
		ATRFrac:    atrFrac,
	}

	extreme := entry
	last := entryIndex + p.MaxBars
	if last >= len(candles) {
		last = len(candles) - 1
	}

	for i := entryIndex + 1; i <= last; i++ {
		bar := candles[i]
		rec.BarsHeld = i - entryIndex

		favorable, adverse := bar.High, bar.Low
		if side == ratchet.Short {
			favorable, adverse = bar.Low, bar.High
		}

		extreme = ratchet.FavorableExtreme(side, extreme, favorable)
		rec.MFE = math.Max(rec.MFE, ratchet.ProfitFraction(side, entry, favorable))
		rec.MAE = math.Min(rec.MAE, ratchet.ProfitFraction(side, entry, adverse))

		stop, err := ratchet.EffectiveStop(side, entry, fixedStop, extreme, p.KTrailing, atrFrac)
		if err != nil {
			return nil, err
		}

		if breached(side, adverse, stop) {
			rec.ExitPrice = stop
			// Breach priority is fixed > trailing: a bar deep enough to cross
			// the immutable fixed level is a fixed-stop exit even when the
			// trailing level also sits inside the bar's range. The fill is
			// still the effective stop, where the working order actually sat.
			if breached(side, adverse, fixedStop) {
				rec.ExitType = ExitFixed
			} else {
				rec.ExitType = ExitTrailing
			}
			finalize(rec, p)
			return rec, nil
		}
	}

	rec.ExitPrice = candles[last].Close
	rec.ExitType = ExitTime
	rec.BarsHeld = last - entryIndex
	finalize(rec, p)
	return rec, nil
}

// breached reports whether the bar's adverse price crossed the stop.
func breached(side ratchet.Side, adverse, stop float64) bool {
	if side == ratchet.Long {
		return adverse <= stop
	}
	return adverse >= stop
}

func finalize(rec *LabelRecord, p Params) {
	rec.Return = ratchet.ProfitFraction(rec.Side, rec.EntryPrice, rec.ExitPrice)
	rec.Score = rec.Return - p.HoldLambda*math.Log1p(float64(rec.BarsHeld)) - p.Cost
}
