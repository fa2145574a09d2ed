package engine

import (
	"context"
	"errors"
	"time"

	"github.com/your-org/trail-guard-bot/internal/config"
	"github.com/your-org/trail-guard-bot/internal/events"
	"github.com/your-org/trail-guard-bot/internal/exchange"
	"github.com/your-org/trail-guard-bot/internal/indicator"
	"github.com/your-org/trail-guard-bot/internal/position"
	"github.com/your-org/trail-guard-bot/pkg/logger"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

// VolatilityEstimator supplies the current volatility fraction for a symbol.
// It is consulted once per adoption to pin the position's trailing distance.
type VolatilityEstimator interface {
	Fraction(symbol string) (float64, bool)
}

// EstimatorSet maps symbols to their live EWMA estimators and satisfies
// VolatilityEstimator.
type EstimatorSet map[string]*indicator.EWMAVolatility

func (s EstimatorSet) Fraction(symbol string) (float64, bool) {
	est, ok := s[symbol]
	if !ok {
		return 0, false
	}
	return est.Fraction()
}

// Synchronizer periodically reconciles the local store against the exchange.
// The exchange is the authority: positions it reports that the store lacks are
// adopted with a fresh fixed stop, positions the store holds that the exchange
// no longer has are removed and reported closed exactly once, and size or
// entry drift on known positions is corrected without touching trailing state.
// A side flip is a close of the old position plus a fresh adoption.
type Synchronizer struct {
	store  *position.Store
	client exchange.Client
	vols   VolatilityEstimator
	sink   events.Sink

	kFixed   float64
	interval time.Duration
}

// NewSynchronizer wires a synchronizer from the risk configuration.
func NewSynchronizer(store *position.Store, client exchange.Client, vols VolatilityEstimator, sink events.Sink, risk config.RiskConf, timeframe string) *Synchronizer {
	return &Synchronizer{
		store:    store,
		client:   client,
		vols:     vols,
		sink:     sink,
		kFixed:   risk.FixedStopATRMult[timeframe],
		interval: risk.SyncInterval(),
	}
}

// Run performs an immediate reconciliation, then ticks until the context is
// cancelled. A failed pass is logged and retried on the next tick.
func (s *Synchronizer) Run(ctx context.Context) {
	logger.Infof("Position synchronizer started (interval=%s)", s.interval)
	if err := s.Sync(ctx); err != nil {
		logger.Warnf("Initial position sync failed: %v", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Position synchronizer shutting down.")
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				logger.Warnf("Position sync failed: %v", err)
			}
		}
	}
}

// Sync runs one reconciliation pass.
func (s *Synchronizer) Sync(ctx context.Context) error {
	snapshots, err := s.client.GetOpenPositions(ctx)
	if err != nil {
		return err
	}

	open := make(map[string]exchange.Snapshot, len(snapshots))
	for _, snap := range snapshots {
		open[snap.Symbol] = snap
	}

	// Positions the exchange no longer has were closed out-of-band: the stop
	// filled, or the operator flattened manually. Remove reports false on a
	// repeat pass, so the closure event fires exactly once.
	for _, pos := range s.store.Active() {
		if _, ok := open[pos.Symbol]; ok {
			continue
		}
		removed, ok := s.store.Remove(pos.Symbol)
		if !ok {
			continue
		}
		s.sink.PositionClosed(removed.Symbol, "exchange_flat")
		if removed.StopOrderID != 0 {
			if cerr := s.client.CancelStopOrder(ctx, removed.Symbol, removed.StopOrderID); cerr != nil {
				logger.Warnf("%s: leftover stop order %d not cancelled: %v", removed.Symbol, removed.StopOrderID, cerr)
			}
		}
	}

	for _, snap := range snapshots {
		pos, version, ok := s.store.Get(snap.Symbol)
		if !ok {
			s.adopt(snap)
			continue
		}
		if pos.Side != snap.Side {
			// The position was flipped at the exchange. None of the old
			// trailing state is meaningful for the opposite direction, so
			// this is a close followed by a fresh adoption.
			logger.Warnf("%s: side flipped at exchange (%s -> %s), re-adopting", snap.Symbol, pos.Side, snap.Side)
			removed, removedOK := s.store.Remove(snap.Symbol)
			if removedOK {
				s.sink.PositionClosed(removed.Symbol, "side_flipped")
				if removed.StopOrderID != 0 {
					if cerr := s.client.CancelStopOrder(ctx, removed.Symbol, removed.StopOrderID); cerr != nil {
						logger.Warnf("%s: stale stop order %d not cancelled: %v", removed.Symbol, removed.StopOrderID, cerr)
					}
				}
			}
			s.adopt(snap)
			continue
		}
		if pos.Size == snap.Size && pos.EntryPrice == snap.EntryPrice && pos.Leverage == snap.Leverage {
			continue
		}
		logger.Infof("%s: correcting drift (size %.6f -> %.6f, entry %.4f -> %.4f)",
			snap.Symbol, pos.Size, snap.Size, pos.EntryPrice, snap.EntryPrice)
		err := s.store.Commit(snap.Symbol, version, func(p *position.Position) {
			// Stops, extreme and activation state stay as they are: a size
			// change must never loosen protection already earned.
			p.Size = snap.Size
			p.EntryPrice = snap.EntryPrice
			p.Leverage = snap.Leverage
		})
		if err != nil && !errors.Is(err, position.ErrStaleVersion) && !errors.Is(err, position.ErrNotFound) {
			logger.Warnf("%s: drift correction failed: %v", snap.Symbol, err)
		}
	}
	return nil
}

// adopt registers an exchange position the store did not know about. The fixed
// stop derives from the current volatility estimate; if the estimator has not
// warmed up yet the adoption waits for a later pass, logged loudly because the
// position sits unprotected meanwhile.
func (s *Synchronizer) adopt(snap exchange.Snapshot) {
	volFrac, ok := s.vols.Fraction(snap.Symbol)
	if !ok {
		logger.Warnf("%s: exchange position found but volatility estimate not ready, adoption deferred", snap.Symbol)
		return
	}
	fixedStop, err := ratchet.FixedStop(snap.Side, snap.EntryPrice, s.kFixed, volFrac)
	if err != nil {
		logger.Errorf("%s: cannot derive fixed stop for adopted position: %v", snap.Symbol, err)
		return
	}
	pos := position.Position{
		Symbol:     snap.Symbol,
		Side:       snap.Side,
		EntryPrice: snap.EntryPrice,
		Size:       snap.Size,
		Leverage:   snap.Leverage,
		FixedStop:  fixedStop,
		VolFrac:    volFrac,
	}
	if err := s.store.Open(pos); err != nil {
		logger.Warnf("%s: adoption raced another writer: %v", snap.Symbol, err)
		return
	}
	logger.Infof("%s: adopted %s position (entry=%.4f size=%.6f, fixed stop %.4f)",
		snap.Symbol, snap.Side, snap.EntryPrice, snap.Size, fixedStop)
	s.sink.PositionOpened(snap.Symbol, snap.Side, snap.EntryPrice, fixedStop)
}
