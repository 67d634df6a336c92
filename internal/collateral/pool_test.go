package collateral

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frizo/prop_engine/internal/fpmath"
)

func amount(v int64) decimal.Decimal { return decimal.New(v, 6) }

// 100k pool, exposure capped at 50%, 150% minimum collateralization
func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool(amount(100_000), 5000, 15000, nil)
	require.NoError(t, err)
	return p
}

func TestPoolReserve(t *testing.T) {
	t.Run("LocksAndTracks", func(t *testing.T) {
		p := newTestPool(t)
		require.NoError(t, p.Reserve("acct_1", amount(10_000)))

		assert.True(t, p.LockedFor("acct_1").Equal(amount(10_000)))
		assert.True(t, p.TotalExposure().Equal(amount(10_000)))
		assert.True(t, p.Available().Equal(amount(90_000)))
	})

	t.Run("RejectsZero", func(t *testing.T) {
		p := newTestPool(t)
		assert.ErrorIs(t, p.Reserve("acct_1", decimal.Zero), ErrInvalidAmount)
	})

	t.Run("RollsBackOnExposureBreach", func(t *testing.T) {
		p := newTestPool(t)
		require.NoError(t, p.Reserve("acct_1", amount(40_000)))

		// 40k + 20k = 60k > 50% of 100k
		err := p.Reserve("acct_2", amount(20_000))
		assert.ErrorIs(t, err, ErrExposureBreached)

		// state untouched by the failed call
		assert.True(t, p.TotalExposure().Equal(amount(40_000)))
		assert.True(t, p.LockedFor("acct_2").IsZero())
	})
}

func TestPoolRelease(t *testing.T) {
	p := newTestPool(t)
	require.NoError(t, p.Reserve("acct_1", amount(10_000)))

	require.NoError(t, p.Release("acct_1", amount(4_000)))
	assert.True(t, p.LockedFor("acct_1").Equal(amount(6_000)))
	assert.True(t, p.TotalExposure().Equal(amount(6_000)))

	err := p.Release("acct_1", amount(7_000))
	assert.ErrorIs(t, err, ErrOverRelease)
	assert.True(t, p.LockedFor("acct_1").Equal(amount(6_000)))
}

func TestPoolUpdateExposure(t *testing.T) {
	p := newTestPool(t)
	require.NoError(t, p.Reserve("acct_1", amount(10_000)))

	require.NoError(t, p.UpdateExposure("acct_1", amount(15_000)))
	assert.True(t, p.TotalExposure().Equal(amount(15_000)))

	require.NoError(t, p.UpdateExposure("acct_1", amount(5_000)))
	assert.True(t, p.TotalExposure().Equal(amount(5_000)))

	// beyond the exposure cap rolls back
	err := p.UpdateExposure("acct_1", amount(60_000))
	assert.ErrorIs(t, err, ErrExposureBreached)
	assert.True(t, p.TotalExposure().Equal(amount(5_000)))

	assert.ErrorIs(t, p.UpdateExposure("acct_1", amount(-1)), ErrNegativeExposure)
}

func TestPoolWithdraw(t *testing.T) {
	p := newTestPool(t)
	require.NoError(t, p.Reserve("acct_1", amount(30_000)))

	// withdrawing 50k leaves 50k collateral against 30k exposure:
	// exposure cap 50% -> max 25k exposure, invariant breaks
	err := p.Withdraw(amount(50_000))
	assert.ErrorIs(t, err, ErrWithdrawTooLarge)
	assert.True(t, p.TotalCollateral().Equal(amount(100_000)))

	require.NoError(t, p.Withdraw(amount(10_000)))
	assert.True(t, p.TotalCollateral().Equal(amount(90_000)))

	require.NoError(t, p.Deposit(amount(10_000)))
	assert.True(t, p.TotalCollateral().Equal(amount(100_000)))
}

// After any sequence of successful mutations the exposure invariant holds.
func TestPoolInvariantUnderRandomOps(t *testing.T) {
	p := newTestPool(t)
	rng := rand.New(rand.NewSource(42))
	accounts := []string{"acct_1", "acct_2", "acct_3"}

	for i := 0; i < 500; i++ {
		acct := accounts[rng.Intn(len(accounts))]
		amt := amount(int64(rng.Intn(20_000) + 1))

		switch rng.Intn(3) {
		case 0:
			_ = p.Reserve(acct, amt)
		case 1:
			_ = p.Release(acct, amt)
		case 2:
			_ = p.UpdateExposure(acct, amt)
		}

		maxExposure := fpmath.ApplyBps(p.TotalCollateral(), 5000)
		require.True(t, p.TotalExposure().LessThanOrEqual(maxExposure),
			"iteration %d: exposure %s exceeds cap %s", i, p.TotalExposure(), maxExposure)
		require.False(t, p.TotalExposure().IsNegative())
	}

	// per-account locked sums to the aggregate
	sum := decimal.Zero
	for _, acct := range accounts {
		sum = sum.Add(p.LockedFor(acct))
	}
	assert.True(t, sum.Equal(p.TotalExposure()))
}

func TestPoolConfigValidation(t *testing.T) {
	_, err := NewPool(decimal.Zero, 5000, 15000, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = NewPool(amount(1000), 0, 15000, nil)
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
	_, err = NewPool(amount(1000), 5000, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}
