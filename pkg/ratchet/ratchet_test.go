// Package ratchet_test contains tests for the protective-stop math.
package ratchet_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

func TestFixedStop(t *testing.T) {
	tests := []struct {
		name     string
		side     ratchet.Side
		entry    float64
		kFixed   float64
		volFrac  float64
		expected float64
	}{
		{
			name:     "long entry 100k",
			side:     ratchet.Long,
			entry:    100_000,
			kFixed:   2.5,
			volFrac:  0.012,
			expected: 97_000, // 100000 * (1 - 2.5*0.012)
		},
		{
			name:     "short entry 100k",
			side:     ratchet.Short,
			entry:    100_000,
			kFixed:   2.5,
			volFrac:  0.012,
			expected: 103_000,
		},
		{
			name:     "long small price",
			side:     ratchet.Long,
			entry:    1.25,
			kFixed:   2.0,
			volFrac:  0.02,
			expected: 1.2, // 1.25 * 0.96
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ratchet.FixedStop(tt.side, tt.entry, tt.kFixed, tt.volFrac)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestEffectiveStop_Long(t *testing.T) {
	// entry=100000, kFixed=2.5, kTrail=1.2, volFrac=0.012.
	fixed, err := ratchet.FixedStop(ratchet.Long, 100_000, 2.5, 0.012)
	require.NoError(t, err)
	require.InDelta(t, 97_000, fixed, 1e-9)

	// At extreme=102000 the trailing candidate 102000*(1-0.0144)=100531.2
	// overtakes the fixed stop.
	got, err := ratchet.EffectiveStop(ratchet.Long, 100_000, fixed, 102_000, 1.2, 0.012)
	require.NoError(t, err)
	assert.InDelta(t, 100_531.2, got, 1e-6)

	// Right after entry the trailing candidate is below the fixed stop, so the
	// fixed stop still binds.
	got, err = ratchet.EffectiveStop(ratchet.Long, 100_000, fixed, 100_000, 1.2, 0.012)
	require.NoError(t, err)
	assert.InDelta(t, fixed, got, 1e-9)
}

func TestEffectiveStop_Short(t *testing.T) {
	fixed, err := ratchet.FixedStop(ratchet.Short, 100_000, 2.5, 0.012)
	require.NoError(t, err)

	got, err := ratchet.EffectiveStop(ratchet.Short, 100_000, fixed, 98_000, 1.2, 0.012)
	require.NoError(t, err)
	// 98000 * (1 + 0.0144) = 99411.2, below the 103000 fixed stop.
	assert.InDelta(t, 99_411.2, got, 1e-6)
}

// TestEffectiveStop_Monotone feeds a random but monotone sequence of extremes
// and asserts the resulting stop sequence never moves against the holder.
func TestEffectiveStop_Monotone(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, side := range []ratchet.Side{ratchet.Long, ratchet.Short} {
		entry := 50_000.0
		fixed, err := ratchet.FixedStop(side, entry, 2.0, 0.01)
		require.NoError(t, err)

		extreme := entry
		prev, err := ratchet.EffectiveStop(side, entry, fixed, extreme, 1.0, 0.01)
		require.NoError(t, err)

		for i := 0; i < 500; i++ {
			move := rng.Float64() * 200
			if side == ratchet.Long {
				extreme += move
			} else {
				extreme -= move
			}
			stop, err := ratchet.EffectiveStop(side, entry, fixed, extreme, 1.0, 0.01)
			require.NoError(t, err)
			if side == ratchet.Long {
				assert.GreaterOrEqual(t, stop, prev, "long stop regressed at step %d", i)
			} else {
				assert.LessOrEqual(t, stop, prev, "short stop regressed at step %d", i)
			}
			prev = stop
		}
	}
}

func TestInvalidParameters(t *testing.T) {
	_, err := ratchet.FixedStop(ratchet.Long, 0, 2.5, 0.012)
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)

	_, err = ratchet.FixedStop(ratchet.Long, 100, -1, 0.012)
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)

	_, err = ratchet.FixedStop("sideways", 100, 2.5, 0.012)
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)

	_, err = ratchet.EffectiveStop(ratchet.Long, 100, 97, 100, 1.2, 0)
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)

	_, err = ratchet.EffectiveStop(ratchet.Long, 100, 0, 100, 1.2, 0.012)
	assert.ErrorIs(t, err, ratchet.ErrInvalidParameter)
}

func TestImproves(t *testing.T) {
	assert.True(t, ratchet.Improves(ratchet.Long, 95.30, 95.00))
	assert.False(t, ratchet.Improves(ratchet.Long, 95.00, 95.00))
	assert.False(t, ratchet.Improves(ratchet.Long, 94.00, 95.00))
	assert.True(t, ratchet.Improves(ratchet.Short, 94.00, 95.00))
	assert.False(t, ratchet.Improves(ratchet.Short, 96.00, 95.00))
}

func TestFavorableExtreme(t *testing.T) {
	assert.Equal(t, 101.0, ratchet.FavorableExtreme(ratchet.Long, 100, 101))
	assert.Equal(t, 100.0, ratchet.FavorableExtreme(ratchet.Long, 100, 99))
	assert.Equal(t, 99.0, ratchet.FavorableExtreme(ratchet.Short, 100, 99))
	assert.Equal(t, 100.0, ratchet.FavorableExtreme(ratchet.Short, 100, 101))
}

func TestProfitFraction(t *testing.T) {
	assert.InDelta(t, 0.0099, ratchet.ProfitFraction(ratchet.Long, 100, 100.99), 1e-9)
	assert.InDelta(t, 0.0101, ratchet.ProfitFraction(ratchet.Long, 100, 101.01), 1e-9)
	assert.InDelta(t, 0.02, ratchet.ProfitFraction(ratchet.Short, 100, 98), 1e-9)
	assert.InDelta(t, -0.02, ratchet.ProfitFraction(ratchet.Short, 100, 102), 1e-9)
}
