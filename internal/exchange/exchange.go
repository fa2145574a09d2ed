// Package exchange handles interactions with the margin exchange. The engine
// only talks to the Client interface; the Binance futures implementation and
// the retry policy wrapper both satisfy it.
package exchange

import (
	"context"
	"errors"

	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

// ErrCallFailed wraps transient exchange/API failures. Callers retry with the
// policy wrapper and surface a warning once attempts are exhausted.
var ErrCallFailed = errors.New("exchange: call failed")

// ErrStopLost marks a modify that cancelled the working stop but failed to
// re-place it: the position no longer has a stop order at the exchange. The
// caller must treat the position as unprotected and re-arm it.
var ErrStopLost = errors.New("exchange: stop order lost")

// Snapshot is the exchange's authoritative view of one open position.
type Snapshot struct {
	Symbol     string
	Side       ratchet.Side
	EntryPrice float64
	Size       float64
	Leverage   int
}

// Client is the engine-facing exchange surface. All calls are safe for the
// caller to retry; the engine enforces the monotonicity and suppression
// policies before anything reaches the wire.
type Client interface {
	// PlaceStopOrder places a close-position stop order protecting the given
	// position side and returns the exchange order id.
	PlaceStopOrder(ctx context.Context, symbol string, side ratchet.Side, stopPrice float64) (int64, error)
	// ModifyStopOrder moves an existing stop order to newStop and returns the
	// id of the working order afterwards (which may differ from orderID on
	// exchanges without in-place modification).
	ModifyStopOrder(ctx context.Context, symbol string, side ratchet.Side, orderID int64, newStop float64) (int64, error)
	// CancelStopOrder cancels a working stop order.
	CancelStopOrder(ctx context.Context, symbol string, orderID int64) error
	// GetOpenPositions returns every position currently open at the exchange.
	GetOpenPositions(ctx context.Context) ([]Snapshot, error)
}
