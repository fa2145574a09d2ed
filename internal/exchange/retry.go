package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/trail-guard-bot/pkg/logger"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

// Policy is an explicit retry schedule for exchange calls: bounded attempts,
// exponential backoff, and a per-attempt timeout. It lives here, wrapped
// around the client, so the ratchet and state logic never see retries.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

// Retrier wraps a Client with a Policy. Every method retries transient
// failures and gives up after MaxAttempts, returning the last error wrapped
// with ErrCallFailed.
type Retrier struct {
	inner  Client
	policy Policy
	sleep  func(context.Context, time.Duration) error // overridable in tests
}

// NewRetrier wraps client with the given policy.
func NewRetrier(client Client, policy Policy) *Retrier {
	return &Retrier{
		inner:  client,
		policy: policy,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Retrier) do(ctx context.Context, what string, call func(context.Context) error) error {
	delay := r.policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.policy.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.CallTimeout)
		}
		lastErr = call(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", ErrCallFailed, what, ctx.Err())
		}
		if attempt < r.policy.MaxAttempts {
			logger.Warnf("[Retry] %s failed (attempt %d/%d): %v. Retrying in %v...",
				what, attempt, r.policy.MaxAttempts, lastErr, delay)
			if err := r.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrCallFailed, what, err)
			}
			delay *= 2
			if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
				delay = r.policy.MaxDelay
			}
		}
	}
	// Keep the last error in the chain: callers distinguish ErrStopLost from
	// an ordinary failed call even after exhaustion.
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrCallFailed, what, r.policy.MaxAttempts, lastErr)
}

func (r *Retrier) PlaceStopOrder(ctx context.Context, symbol string, side ratchet.Side, stopPrice float64) (int64, error) {
	var id int64
	err := r.do(ctx, "place stop "+symbol, func(ctx context.Context) error {
		var err error
		id, err = r.inner.PlaceStopOrder(ctx, symbol, side, stopPrice)
		return err
	})
	return id, err
}

func (r *Retrier) ModifyStopOrder(ctx context.Context, symbol string, side ratchet.Side, orderID int64, newStop float64) (int64, error) {
	var id int64
	err := r.do(ctx, "modify stop "+symbol, func(ctx context.Context) error {
		var err error
		id, err = r.inner.ModifyStopOrder(ctx, symbol, side, orderID, newStop)
		return err
	})
	return id, err
}

func (r *Retrier) CancelStopOrder(ctx context.Context, symbol string, orderID int64) error {
	return r.do(ctx, "cancel stop "+symbol, func(ctx context.Context) error {
		return r.inner.CancelStopOrder(ctx, symbol, orderID)
	})
}

func (r *Retrier) GetOpenPositions(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	err := r.do(ctx, "get open positions", func(ctx context.Context) error {
		var err error
		out, err = r.inner.GetOpenPositions(ctx)
		return err
	})
	return out, err
}
