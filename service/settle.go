package service

import (
	"context"
	"math"
	"time"

	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/layer-3/pinwallet/core"
)

// SettlePolicy controls wallet discovery after a signed challenge.
// The custody service indexes a new wallet asynchronously, so discovery waits
// InitialDelay before the first listing and backs off exponentially while the
// list stays empty.
type SettlePolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultSettlePolicy waits 2.5s, then 5s, then 10s
func DefaultSettlePolicy() SettlePolicy {
	return SettlePolicy{
		InitialDelay: 2500 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	}
}

// Delay returns the wait before the given zero-based attempt
func (p SettlePolicy) Delay(attempt uint) time.Duration {
	return p.schedule()(attempt)
}

// schedule scales InitialDelay by Multiplier^attempt in floating point, so
// fractional multipliers are honoured
func (p SettlePolicy) schedule() backoff.Algorithm {
	if p.InitialDelay <= 0 {
		return func(uint) time.Duration { return 0 }
	}
	multiplier := math.Max(p.Multiplier, 1)
	initial := float64(p.InitialDelay)
	return func(attempt uint) time.Duration {
		return time.Duration(initial * math.Pow(multiplier, float64(attempt)))
	}
}

func (p SettlePolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// poll lists wallets until the list is non-empty or attempts run out.
// An empty result with a nil error means the wallet is still pending.
func (p SettlePolicy) poll(ctx context.Context, list func(context.Context) ([]core.WalletRecord, error)) ([]core.WalletRecord, error) {
	delay := p.schedule()
	limit := strategy.Limit(uint(p.attempts()))
	for attempt := uint(0); limit(attempt); attempt++ {
		if err := sleep(ctx, delay(attempt)); err != nil {
			return nil, err
		}
		wallets, err := list(ctx)
		if err != nil {
			return nil, err
		}
		if len(wallets) > 0 {
			return wallets, nil
		}
	}
	return nil, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
