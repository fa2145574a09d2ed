// Package indicator provides the volatility estimates the stop engine scales
// its distances by: Wilder ATR for the offline candle path and an EWMA
// standard deviation of tick returns for the live path.
package indicator

import (
	"math"
	"sync"
)

// EWMAVolatility tracks an exponentially weighted variance of per-tick simple
// returns. The square root, scaled back to a fraction of price, stands in for
// ATR/price on the live side where no candle history is kept.
//
// The RiskMetrics form is used with a zero assumed mean:
// Var_t = (1-lambda)*Var_{t-1} + lambda*R_t^2.
type EWMAVolatility struct {
	mu          sync.Mutex
	lambda      float64
	prevPrice   float64
	ewmVar      float64
	initialized bool
	samples     int
}

// NewEWMAVolatility creates an estimator. lambda is the weight of the newest
// squared return and must be in (0,1).
func NewEWMAVolatility(lambda float64) *EWMAVolatility {
	return &EWMAVolatility{lambda: lambda}
}

// Update feeds the latest observed price.
func (v *EWMAVolatility) Update(price float64) {
	if price <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		v.prevPrice = price
		v.initialized = true
		return
	}
	ret := (price - v.prevPrice) / v.prevPrice
	v.ewmVar = (1-v.lambda)*v.ewmVar + v.lambda*ret*ret
	v.prevPrice = price
	v.samples++
}

// Fraction returns the current volatility as a fraction of price, and whether
// enough samples have been seen for the estimate to be usable.
func (v *EWMAVolatility) Fraction() (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.samples < 2 || v.ewmVar <= 0 {
		return 0, false
	}
	return math.Sqrt(v.ewmVar), true
}
