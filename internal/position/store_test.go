package position

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

func newTestPosition(symbol string) Position {
	return Position{
		Symbol:     symbol,
		Side:       ratchet.Long,
		EntryPrice: 100_000,
		Size:       0.5,
		Leverage:   5,
		FixedStop:  97_000,
		VolFrac:    0.012,
	}
}

func TestStore_OpenAndGet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Open(newTestPosition("BTCUSDT")))

	pos, version, ok := s.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, StateInactive, pos.State)
	assert.Equal(t, 100_000.0, pos.Extreme, "extreme defaults to entry price")

	assert.ErrorIs(t, s.Open(newTestPosition("BTCUSDT")), ErrAlreadyOpen)
}

func TestStore_CommitOptimistic(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Open(newTestPosition("BTCUSDT")))

	_, version, ok := s.Get("BTCUSDT")
	require.True(t, ok)

	// First commit at the read version succeeds and bumps the version.
	err := s.Commit("BTCUSDT", version, func(p *Position) {
		p.Extreme = 102_000
	})
	require.NoError(t, err)

	// A second commit against the old version must fail without mutating.
	err = s.Commit("BTCUSDT", version, func(p *Position) {
		p.Extreme = 90_000
	})
	assert.ErrorIs(t, err, ErrStaleVersion)

	pos, newVersion, _ := s.Get("BTCUSDT")
	assert.Equal(t, 102_000.0, pos.Extreme)
	assert.Equal(t, version+1, newVersion)
}

func TestStore_CommitMissing(t *testing.T) {
	s := NewStore()
	err := s.Commit("BTCUSDT", 1, func(p *Position) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RemoveExactlyOnce(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Open(newTestPosition("BTCUSDT")))

	pos, removed := s.Remove("BTCUSDT")
	require.True(t, removed)
	assert.Equal(t, "BTCUSDT", pos.Symbol)

	_, removed = s.Remove("BTCUSDT")
	assert.False(t, removed, "second removal must report not-present")

	// A commit for the removed position is a clean ErrNotFound, which is how
	// an in-flight exchange response for a closed position gets discarded.
	err := s.Commit("BTCUSDT", 1, func(p *Position) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ActiveSorted(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Open(newTestPosition("ETHUSDT")))
	require.NoError(t, s.Open(newTestPosition("BTCUSDT")))

	active := s.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "BTCUSDT", active[0].Symbol)
	assert.Equal(t, "ETHUSDT", active[1].Symbol)
}

// TestStore_ConcurrentCommits hammers one position from many goroutines, each
// doing read-modify-commit with retry, and checks the extreme never regresses
// and every intended improvement landed exactly once.
func TestStore_ConcurrentCommits(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Open(newTestPosition("BTCUSDT")))

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				for {
					pos, version, ok := s.Get("BTCUSDT")
					if !assert.True(t, ok) {
						return
					}
					next := pos.Extreme + 1
					err := s.Commit("BTCUSDT", version, func(p *Position) {
						p.Extreme = next
					})
					if err == nil {
						break
					}
					assert.ErrorIs(t, err, ErrStaleVersion)
				}
			}
		}()
	}
	wg.Wait()

	pos, _, _ := s.Get("BTCUSDT")
	assert.Equal(t, 100_000.0+writers*perWriter, pos.Extreme)
}

func TestPosition_EffectiveStop(t *testing.T) {
	p := newTestPosition("BTCUSDT")
	assert.Equal(t, 97_000.0, p.EffectiveStop(), "fixed stop binds before activation")

	p.TrailingStop = 100_531.2
	assert.Equal(t, 100_531.2, p.EffectiveStop())

	short := Position{Side: ratchet.Short, FixedStop: 103_000, TrailingStop: 99_411.2}
	assert.Equal(t, 99_411.2, short.EffectiveStop())
}
