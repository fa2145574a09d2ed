// Package events defines the structured events the risk engine emits for
// observability. Events are fire-and-forget: nothing downstream is required
// for correctness, and the engine never branches on how (or whether) a sink
// presents them.
package events

import (
	"go.uber.org/zap"

	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

// Sink receives engine events. Implementations must be safe for concurrent
// use and must not block the caller.
type Sink interface {
	PositionOpened(symbol string, side ratchet.Side, entry, fixedStop float64)
	TrailingActivated(symbol string, profitFraction float64)
	StopUpdated(symbol string, oldStop, newStop float64, reason string)
	StopUpdateSkipped(symbol string, reason string)
	PositionClosed(symbol string, reason string)
}

// ZapSink logs every event as a structured zap entry.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink over the given zap logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) PositionOpened(symbol string, side ratchet.Side, entry, fixedStop float64) {
	s.logger.Info("position_opened",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", entry),
		zap.Float64("fixed_stop", fixedStop),
	)
}

func (s *ZapSink) TrailingActivated(symbol string, profitFraction float64) {
	s.logger.Info("trailing_activated",
		zap.String("symbol", symbol),
		zap.Float64("profit_fraction", profitFraction),
	)
}

func (s *ZapSink) StopUpdated(symbol string, oldStop, newStop float64, reason string) {
	s.logger.Info("stop_updated",
		zap.String("symbol", symbol),
		zap.Float64("old_stop", oldStop),
		zap.Float64("new_stop", newStop),
		zap.String("reason", reason),
	)
}

func (s *ZapSink) StopUpdateSkipped(symbol string, reason string) {
	s.logger.Debug("stop_update_skipped",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
	)
}

func (s *ZapSink) PositionClosed(symbol string, reason string) {
	s.logger.Info("position_closed",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
	)
}

// NopSink drops every event. Used in silent mode and in tests.
type NopSink struct{}

// NewNopSink creates a NopSink.
func NewNopSink() *NopSink { return &NopSink{} }

func (*NopSink) PositionOpened(string, ratchet.Side, float64, float64) {}
func (*NopSink) TrailingActivated(string, float64)                     {}
func (*NopSink) StopUpdated(string, float64, float64, string)          {}
func (*NopSink) StopUpdateSkipped(string, string)                      {}
func (*NopSink) PositionClosed(string, string)                         {}
