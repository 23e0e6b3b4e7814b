package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/layer-3/pinwallet/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlePolicy_Delay(t *testing.T) {
	p := DefaultSettlePolicy()

	assert.Equal(t, 2500*time.Millisecond, p.Delay(0))
	assert.Equal(t, 5*time.Second, p.Delay(1))
	assert.Equal(t, 10*time.Second, p.Delay(2))

	assert.Zero(t, SettlePolicy{MaxAttempts: 1}.Delay(0))
}

func TestSettlePolicy_FractionalMultiplier(t *testing.T) {
	p := SettlePolicy{InitialDelay: 2 * time.Second, Multiplier: 1.5, MaxAttempts: 4}

	assert.Equal(t, 2*time.Second, p.Delay(0))
	assert.Equal(t, 3*time.Second, p.Delay(1))
	assert.Equal(t, 4500*time.Millisecond, p.Delay(2))
	assert.Equal(t, 6750*time.Millisecond, p.Delay(3))

	below := SettlePolicy{InitialDelay: time.Second, Multiplier: 0.5}
	assert.Equal(t, time.Second, below.Delay(3))
}

func TestSettlePolicy_Poll(t *testing.T) {
	p := SettlePolicy{InitialDelay: time.Millisecond, Multiplier: 2, MaxAttempts: 3}

	t.Run("gives up when still empty", func(t *testing.T) {
		calls := 0
		wallets, err := p.poll(context.Background(), func(context.Context) ([]core.WalletRecord, error) {
			calls++
			return nil, nil
		})
		require.NoError(t, err)
		assert.Empty(t, wallets)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on error", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		_, err := p.poll(context.Background(), func(context.Context) ([]core.WalletRecord, error) {
			calls++
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := SettlePolicy{InitialDelay: time.Hour, Multiplier: 2, MaxAttempts: 3}
		_, err := slow.poll(ctx, func(context.Context) ([]core.WalletRecord, error) {
			t.Fatal("listed after cancellation")
			return nil, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
