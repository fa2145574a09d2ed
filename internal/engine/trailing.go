// Package engine contains the live side of the risk engine: the trailing
// controller that ratchets protective stops on open positions, and the
// synchronizer that reconciles the local position store against the exchange.
package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/your-org/trail-guard-bot/internal/config"
	"github.com/your-org/trail-guard-bot/internal/events"
	"github.com/your-org/trail-guard-bot/internal/exchange"
	"github.com/your-org/trail-guard-bot/internal/position"
	"github.com/your-org/trail-guard-bot/pkg/logger"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

// PriceSource supplies the latest observed price per symbol. The feed cache
// implements it; tests substitute a fixture.
type PriceSource interface {
	Latest(symbol string) (float64, time.Time, bool)
}

// Controller periodically re-evaluates every open position: it refreshes the
// favorable extreme, activates trailing once the profit trigger is reached,
// and tightens the working stop order when the ratchet produces a meaningful
// improvement.
//
// The controller never blocks the store during exchange calls. It reads a
// position with its version, computes and calls the exchange off-lock, and
// commits with the version it read; a stale commit means another writer got
// there first and the result is reconsidered or discarded.
type Controller struct {
	store  *position.Store
	client exchange.Client
	prices PriceSource
	sink   events.Sink

	kTrail      float64
	trigger     float64
	suppression float64
	interval    time.Duration
}

// NewController wires a controller from the risk configuration. The trailing
// multiplier is resolved for the configured timeframe.
func NewController(store *position.Store, client exchange.Client, prices PriceSource, sink events.Sink, risk config.RiskConf, timeframe string) *Controller {
	return &Controller{
		store:       store,
		client:      client,
		prices:      prices,
		sink:        sink,
		kTrail:      risk.TrailingATRMult[timeframe],
		trigger:     risk.ActivationTrigger,
		suppression: risk.SuppressionFraction,
		interval:    risk.UpdateInterval(),
	}
}

// Run ticks until the context is cancelled.
func (c *Controller) Run(ctx context.Context) {
	logger.Infof("Trailing controller started (interval=%s, trigger=%.4f)", c.interval, c.trigger)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Trailing controller shutting down.")
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick evaluates every open position once.
func (c *Controller) Tick(ctx context.Context) {
	for _, pos := range c.store.Active() {
		if ctx.Err() != nil {
			return
		}
		c.evaluate(ctx, pos.Symbol)
	}
}

func (c *Controller) evaluate(ctx context.Context, symbol string) {
	pos, version, ok := c.store.Get(symbol)
	if !ok {
		return
	}

	// A position without a working stop order is unprotected. Placing the
	// fixed stop takes priority over everything else.
	if pos.AppliedStop == 0 {
		c.ensureProtection(ctx, pos, version)
		return
	}

	price, _, ok := c.prices.Latest(symbol)
	if !ok {
		logger.Debugf("%s: no price observed yet, skipping evaluation", symbol)
		return
	}

	extreme := ratchet.FavorableExtreme(pos.Side, pos.Extreme, price)

	if pos.State == position.StateInactive {
		profit := ratchet.ProfitFraction(pos.Side, pos.EntryPrice, price)
		if profit >= c.trigger {
			err := c.store.Commit(symbol, version, func(p *position.Position) {
				p.Extreme = ratchet.FavorableExtreme(p.Side, p.Extreme, price)
				p.State = position.StateActive
			})
			if err == nil {
				c.sink.TrailingActivated(symbol, profit)
			}
			return
		}
		if extreme != pos.Extreme {
			c.commitExtreme(symbol, version, price)
		}
		return
	}

	candidate, err := ratchet.EffectiveStop(pos.Side, pos.EntryPrice, pos.FixedStop, extreme, c.kTrail, pos.VolFrac)
	if err != nil {
		logger.Errorf("%s: effective stop computation failed: %v", symbol, err)
		return
	}

	if !ratchet.Improves(pos.Side, candidate, pos.AppliedStop) {
		// A working stop never loosens. The candidate regressing below what
		// is already applied is expected after drift corrections and is a
		// logged no-op, not an error.
		if candidate != pos.AppliedStop {
			c.sink.StopUpdateSkipped(symbol, "regression")
		}
		if extreme != pos.Extreme {
			c.commitExtreme(symbol, version, price)
		}
		return
	}

	if math.Abs(candidate-pos.AppliedStop) < c.suppression*price {
		c.sink.StopUpdateSkipped(symbol, "suppressed")
		c.commitExtreme(symbol, version, price)
		return
	}

	orderID, err := c.client.ModifyStopOrder(ctx, symbol, pos.Side, pos.StopOrderID, candidate)
	if err != nil {
		if errors.Is(err, exchange.ErrStopLost) {
			// Cancel went through but the re-place did not: the exchange holds
			// no stop for this position right now. Flag it unprotected so the
			// next tick re-arms at the effective stop.
			logger.Errorf("%s: position is UNPROTECTED, stop lost during update to %.4f: %v", symbol, candidate, err)
			c.markUnprotected(symbol, version, price)
			return
		}
		logger.Warnf("%s: stop update to %.4f failed, keeping %.4f: %v", symbol, candidate, pos.AppliedStop, err)
		c.commitExtreme(symbol, version, price)
		return
	}

	if err := c.commitStop(symbol, version, price, candidate, orderID); err != nil {
		if errors.Is(err, position.ErrNotFound) {
			logger.Debugf("%s: position closed while updating stop, discarding result", symbol)
		} else {
			logger.Warnf("%s: could not record applied stop %.4f: %v", symbol, candidate, err)
		}
		return
	}
	c.sink.StopUpdated(symbol, pos.AppliedStop, candidate, "trailing")
}

// ensureProtection places a stop for a position that has none: the effective
// stop, so a trailing level already earned is not given back when protection
// is re-armed. On failure the position stays flagged unprotected and the next
// tick retries.
func (c *Controller) ensureProtection(ctx context.Context, pos position.Position, version uint64) {
	stop := pos.EffectiveStop()
	orderID, err := c.client.PlaceStopOrder(ctx, pos.Symbol, pos.Side, stop)
	if err != nil {
		logger.Errorf("%s: position is UNPROTECTED, placing stop %.4f failed: %v", pos.Symbol, stop, err)
		return
	}
	err = c.store.Commit(pos.Symbol, version, func(p *position.Position) {
		p.AppliedStop = stop
		p.StopOrderID = orderID
	})
	if errors.Is(err, position.ErrNotFound) {
		// Closed before the stop registered locally. The order is a stray
		// close-position stop on a flat symbol; cancel it.
		if cerr := c.client.CancelStopOrder(ctx, pos.Symbol, orderID); cerr != nil {
			logger.Warnf("%s: could not cancel stray stop order %d: %v", pos.Symbol, orderID, cerr)
		}
		return
	}
	if errors.Is(err, position.ErrStaleVersion) {
		fresh, v2, ok := c.store.Get(pos.Symbol)
		if ok && fresh.AppliedStop == 0 {
			err = c.store.Commit(pos.Symbol, v2, func(p *position.Position) {
				p.AppliedStop = stop
				p.StopOrderID = orderID
			})
		} else {
			err = nil
		}
	}
	if err != nil {
		logger.Warnf("%s: could not record stop placement: %v", pos.Symbol, err)
		return
	}
	logger.Infof("%s: protective stop placed at %.4f (order %d)", pos.Symbol, stop, orderID)
}

// commitStop records a successfully applied stop. A stale version is retried
// once against the fresh state, unless a more favorable stop landed meanwhile.
func (c *Controller) commitStop(symbol string, version uint64, price, candidate float64, orderID int64) error {
	mutate := func(p *position.Position) {
		p.Extreme = ratchet.FavorableExtreme(p.Side, p.Extreme, price)
		p.TrailingStop = candidate
		p.AppliedStop = candidate
		p.StopOrderID = orderID
	}
	err := c.store.Commit(symbol, version, mutate)
	if errors.Is(err, position.ErrStaleVersion) {
		fresh, v2, ok := c.store.Get(symbol)
		if !ok {
			return position.ErrNotFound
		}
		if !ratchet.Improves(fresh.Side, candidate, fresh.AppliedStop) {
			return nil
		}
		err = c.store.Commit(symbol, v2, mutate)
	}
	return err
}

// markUnprotected clears the applied stop so the unprotected-position check
// re-arms on the next tick. The trailing level is kept; re-arming places the
// effective stop, not just the fixed one. A stale version is retried with the
// fresh state because leaving the flag unset would hide the missing order.
func (c *Controller) markUnprotected(symbol string, version uint64, price float64) {
	mutate := func(p *position.Position) {
		p.Extreme = ratchet.FavorableExtreme(p.Side, p.Extreme, price)
		p.AppliedStop = 0
		p.StopOrderID = 0
	}
	err := c.store.Commit(symbol, version, mutate)
	if errors.Is(err, position.ErrStaleVersion) {
		if _, v2, ok := c.store.Get(symbol); ok {
			err = c.store.Commit(symbol, v2, mutate)
		} else {
			err = nil
		}
	}
	if err != nil && !errors.Is(err, position.ErrNotFound) {
		logger.Errorf("%s: could not flag position unprotected: %v", symbol, err)
	}
}

// commitExtreme advances the favorable extreme without touching the stop. A
// stale or missing position is simply left for the next tick.
func (c *Controller) commitExtreme(symbol string, version uint64, price float64) {
	err := c.store.Commit(symbol, version, func(p *position.Position) {
		p.Extreme = ratchet.FavorableExtreme(p.Side, p.Extreme, price)
	})
	if err != nil && !errors.Is(err, position.ErrStaleVersion) && !errors.Is(err, position.ErrNotFound) {
		logger.Warnf("%s: extreme update failed: %v", symbol, err)
	}
}
