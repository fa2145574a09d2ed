package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestATR_Seed(t *testing.T) {
	// Constant 10-point ranges with no gaps: every true range is 10, so the
	// seed and all smoothed values are exactly 10.
	bars := make([]OHLC, 20)
	for i := range bars {
		base := 100.0 + float64(i)
		bars[i] = OHLC{High: base + 10, Low: base, Close: base + 5}
	}

	atr, err := ATR(bars, 14)
	require.NoError(t, err)
	require.Len(t, atr, 20)

	for i := 0; i < 14; i++ {
		assert.Zero(t, atr[i], "index %d should have no ATR yet", i)
	}
	for i := 14; i < 20; i++ {
		assert.InDelta(t, 10.0, atr[i], 1e-9)
	}
}

func TestATR_GapUsesPrevClose(t *testing.T) {
	// A gap up makes |high - prevClose| irrelevant but |low - prevClose|
	// dominant when the bar opens far above the previous close.
	bars := []OHLC{
		{High: 102, Low: 100, Close: 101},
		{High: 112, Low: 110, Close: 111}, // TR = max(2, 11, 9) = 11
		{High: 113, Low: 111, Close: 112}, // TR = max(2, 2, 0) = 2
	}
	atr, err := ATR(bars, 2)
	require.NoError(t, err)
	assert.InDelta(t, (11.0+2.0)/2, atr[2], 1e-9)
}

func TestATR_ShortSeries(t *testing.T) {
	atr, err := ATR([]OHLC{{High: 1, Low: 0.5, Close: 0.8}}, 14)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, atr)

	_, err = ATR(nil, 0)
	assert.Error(t, err)
}

func TestEWMAVolatility(t *testing.T) {
	v := NewEWMAVolatility(0.5)

	_, ok := v.Fraction()
	assert.False(t, ok, "no estimate before any samples")

	v.Update(100)
	v.Update(101) // ret = 0.01
	_, ok = v.Fraction()
	assert.False(t, ok, "one return is not enough")

	v.Update(101) // ret = 0
	frac, ok := v.Fraction()
	require.True(t, ok)
	// var = 0.5*(0.5*0.01^2) = 2.5e-5 -> sqrt = 5e-3
	assert.InDelta(t, 0.005, frac, 1e-9)

	// Zero or negative prices are ignored.
	v.Update(0)
	frac2, ok := v.Fraction()
	require.True(t, ok)
	assert.Equal(t, frac, frac2)
}
