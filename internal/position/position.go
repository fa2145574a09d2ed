// Package position holds the bot's view of open leveraged positions and the
// concurrency-safe store they live in.
package position

import (
	"fmt"
	"time"

	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

// State is the trailing activation state of a position.
type State string

const (
	// StateInactive means the position has not yet earned enough unrealized
	// profit for the trailing stop; only the fixed stop protects it.
	StateInactive State = "inactive"
	// StateActive means the trailing ratchet is live for the position.
	StateActive State = "active"
)

// Position is the state of one open leveraged position.
//
// FixedStop is immutable once set at entry. TrailingStop is zero until the
// position activates. Extreme only ever moves in the position's favor.
// AppliedStop mirrors what the exchange currently has, so drift between the
// computed stop and the working order is detectable.
type Position struct {
	Symbol     string
	Side       ratchet.Side
	EntryPrice float64
	Size       float64
	Leverage   int

	FixedStop    float64
	TrailingStop float64
	Extreme      float64
	State        State

	AppliedStop float64
	StopOrderID int64

	// VolFrac is the ATR-relative volatility fraction snapshotted at entry.
	// The trailing distance derives from it and must not drift afterwards.
	VolFrac float64

	OpenedAt  time.Time
	UpdatedAt time.Time
}

// EffectiveStop returns the currently binding protective price: the more
// favorable of the fixed and trailing stops.
func (p Position) EffectiveStop() float64 {
	if p.TrailingStop == 0 {
		return p.FixedStop
	}
	if p.Side == ratchet.Long {
		if p.TrailingStop > p.FixedStop {
			return p.TrailingStop
		}
		return p.FixedStop
	}
	if p.TrailingStop < p.FixedStop {
		return p.TrailingStop
	}
	return p.FixedStop
}

// String returns a short human-readable representation.
func (p Position) String() string {
	return fmt.Sprintf("Position{%s %s entry=%.2f size=%.4f fixed=%.2f trail=%.2f applied=%.2f state=%s}",
		p.Symbol, p.Side, p.EntryPrice, p.Size, p.FixedStop, p.TrailingStop, p.AppliedStop, p.State)
}
