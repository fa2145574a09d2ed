// Package ratchet implements the protective-stop math shared by the live
// trailing controller and the offline label simulator. All functions are pure:
// the same inputs always produce the same stop price, and nothing here touches
// the exchange, the clock, or any shared state.
package ratchet

import (
	"errors"
	"fmt"
)

// Side identifies the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// ErrInvalidParameter is returned (wrapped) for non-positive prices,
// multipliers, or volatility fractions. Callers treat it as fatal
// misconfiguration, never as a transient condition.
var ErrInvalidParameter = errors.New("ratchet: invalid parameter")

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == Long || s == Short
}

// FixedStop computes the initial protective stop attached at entry:
// entry*(1 - kFixed*volFrac) for long, entry*(1 + kFixed*volFrac) for short.
// The result is computed exactly once per position and never recomputed.
func FixedStop(side Side, entry, kFixed, volFrac float64) (float64, error) {
	if err := validate(side, entry, kFixed, volFrac); err != nil {
		return 0, err
	}
	if side == Long {
		return entry * (1 - kFixed*volFrac), nil
	}
	return entry * (1 + kFixed*volFrac), nil
}

// EffectiveStop returns the currently binding protective price: the more
// favorable of the immutable fixed stop and the trailing candidate derived
// from the extreme price.
//
// Long:  max(fixedStop, extreme*(1 - kTrail*volFrac))
// Short: min(fixedStop, extreme*(1 + kTrail*volFrac))
//
// Provided the caller feeds a non-decreasing (long) / non-increasing (short)
// sequence of extremes, successive results never move against the holder.
func EffectiveStop(side Side, entry, fixedStop, extreme, kTrail, volFrac float64) (float64, error) {
	if err := validate(side, entry, kTrail, volFrac); err != nil {
		return 0, err
	}
	if fixedStop <= 0 {
		return 0, fmt.Errorf("%w: fixed stop %.8f must be positive", ErrInvalidParameter, fixedStop)
	}
	if extreme <= 0 {
		return 0, fmt.Errorf("%w: extreme price %.8f must be positive", ErrInvalidParameter, extreme)
	}
	if side == Long {
		candidate := extreme * (1 - kTrail*volFrac)
		if candidate > fixedStop {
			return candidate, nil
		}
		return fixedStop, nil
	}
	candidate := extreme * (1 + kTrail*volFrac)
	if candidate < fixedStop {
		return candidate, nil
	}
	return fixedStop, nil
}

// Improves reports whether candidate is strictly more favorable for the
// holder than applied. A regressing candidate must never reach the exchange.
func Improves(side Side, candidate, applied float64) bool {
	if side == Long {
		return candidate > applied
	}
	return candidate < applied
}

// FavorableExtreme returns the more favorable of the running extreme and the
// newly observed price: the maximum for long, the minimum for short.
func FavorableExtreme(side Side, extreme, price float64) float64 {
	if side == Long {
		if price > extreme {
			return price
		}
		return extreme
	}
	if price < extreme {
		return price
	}
	return extreme
}

// ProfitFraction returns the unrealized profit as a fraction of the entry
// price, sign-adjusted so that a favorable move is positive for both sides.
func ProfitFraction(side Side, entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == Long {
		return (price - entry) / entry
	}
	return (entry - price) / entry
}

func validate(side Side, price, mult, volFrac float64) error {
	if !side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidParameter, side)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price %.8f must be positive", ErrInvalidParameter, price)
	}
	if mult <= 0 {
		return fmt.Errorf("%w: multiplier %.4f must be positive", ErrInvalidParameter, mult)
	}
	if volFrac <= 0 {
		return fmt.Errorf("%w: volatility fraction %.6f must be positive", ErrInvalidParameter, volFrac)
	}
	return nil
}
