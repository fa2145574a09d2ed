package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/your-org/trail-guard-bot/pkg/logger"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

const defaultTickSize = 0.1

// BinanceClient implements Client on Binance USD-M futures.
//
// Protective stops are STOP_MARKET close-position orders: a SELL stop for a
// long position, a BUY stop for a short. Binance has no in-place modify for
// these, so ModifyStopOrder cancels and re-places.
type BinanceClient struct {
	api       *futures.Client
	tickSizes map[string]float64
}

// NewBinanceClient creates a client. tickSizes maps symbol to price tick; a
// missing entry falls back to a conservative default.
func NewBinanceClient(apiKey, apiSecret string, testnet bool, tickSizes map[string]float64) *BinanceClient {
	futures.UseTestnet = testnet
	return &BinanceClient{
		api:       futures.NewClient(apiKey, apiSecret),
		tickSizes: tickSizes,
	}
}

// roundToTick quantizes a stop price to the symbol's tick grid. decimal
// arithmetic avoids float artifacts like 97000.000000001 reaching the API.
func (c *BinanceClient) roundToTick(symbol string, price float64) string {
	tick := c.tickSizes[symbol]
	if tick <= 0 {
		tick = defaultTickSize
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	return p.Div(t).Round(0).Mul(t).String()
}

func stopSide(side ratchet.Side) futures.SideType {
	if side == ratchet.Long {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

// PlaceStopOrder places a close-position STOP_MARKET order.
func (c *BinanceClient) PlaceStopOrder(ctx context.Context, symbol string, side ratchet.Side, stopPrice float64) (int64, error) {
	clientID := "tg-" + uuid.NewString()[:18]
	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(stopSide(side)).
		Type(futures.OrderTypeStopMarket).
		StopPrice(c.roundToTick(symbol, stopPrice)).
		ClosePosition(true).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: place stop %s@%.2f: %v", ErrCallFailed, symbol, stopPrice, err)
	}
	logger.Infof("[Binance] Placed stop order %d for %s at %s", res.OrderID, symbol, c.roundToTick(symbol, stopPrice))
	return res.OrderID, nil
}

// ModifyStopOrder cancels the working stop and re-places it at newStop.
// If the cancel reports the order as already gone (filled or previously
// cancelled) the re-place still proceeds: the synchronizer owns detecting
// positions that closed underneath us.
func (c *BinanceClient) ModifyStopOrder(ctx context.Context, symbol string, side ratchet.Side, orderID int64, newStop float64) (int64, error) {
	if err := c.CancelStopOrder(ctx, symbol, orderID); err != nil {
		if !isUnknownOrder(err) {
			return 0, err
		}
		logger.Warnf("[Binance] Stop order %d for %s already gone, re-placing", orderID, symbol)
	}
	id, err := c.PlaceStopOrder(ctx, symbol, side, newStop)
	if err != nil {
		// The cancel went through, so the position has no working stop now.
		return 0, fmt.Errorf("%w: %s: %w", ErrStopLost, symbol, err)
	}
	return id, nil
}

// CancelStopOrder cancels a working stop order.
func (c *BinanceClient) CancelStopOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := c.api.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: cancel order %d on %s: %v", ErrCallFailed, orderID, symbol, err)
	}
	return nil
}

// GetOpenPositions maps non-flat position risk entries to Snapshots.
func (c *BinanceClient) GetOpenPositions(ctx context.Context) ([]Snapshot, error) {
	risks, err := c.api.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get position risk: %v", ErrCallFailed, err)
	}

	snapshots := make([]Snapshot, 0, len(risks))
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}
		entry, err := strconv.ParseFloat(r.EntryPrice, 64)
		if err != nil || entry <= 0 {
			logger.Warnf("[Binance] Skipping %s: unparsable entry price %q", r.Symbol, r.EntryPrice)
			continue
		}
		leverage, _ := strconv.Atoi(r.Leverage)

		side := ratchet.Long
		size := amt
		if amt < 0 {
			side = ratchet.Short
			size = -amt
		}
		snapshots = append(snapshots, Snapshot{
			Symbol:     r.Symbol,
			Side:       side,
			EntryPrice: entry,
			Size:       size,
			Leverage:   leverage,
		})
	}
	return snapshots, nil
}

// isUnknownOrder matches Binance's -2011 "Unknown order sent" cancel failure.
func isUnknownOrder(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "-2011") || strings.Contains(strings.ToLower(err.Error()), "unknown order")
}
