package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frizo/prop_engine/internal/fpmath"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func price(v int64) decimal.Decimal { return decimal.New(v, 8) }

func testConfig() Config {
	return Config{
		Symbol:            "BTCUSDT",
		MaxDeviationBps:   500, // 5%
		Heartbeat:         time.Minute,
		MinUpdateInterval: time.Second,
		HistorySize:       8,
		AuthorizedSources: []string{"oracle-a", "oracle-b"},
	}
}

func newTestFeed(t *testing.T) *Feed {
	t.Helper()
	f, err := New(testConfig(), nil)
	require.NoError(t, err)
	return f
}

func TestFeedSubmit(t *testing.T) {
	t.Run("AcceptsAuthorized", func(t *testing.T) {
		f := newTestFeed(t)
		require.NoError(t, f.Submit("oracle-a", price(50000), t0))

		tick, err := f.Latest(t0)
		require.NoError(t, err)
		assert.True(t, tick.Price.Equal(price(50000)))
		assert.Equal(t, uint64(1), tick.Sequence)
	})

	t.Run("RejectsUnauthorized", func(t *testing.T) {
		f := newTestFeed(t)
		err := f.Submit("rando", price(50000), t0)
		assert.ErrorIs(t, err, ErrUnauthorizedSource)
		assert.Equal(t, 0, f.HistoryLen())
	})

	t.Run("RejectsZeroPrice", func(t *testing.T) {
		f := newTestFeed(t)
		err := f.Submit("oracle-a", decimal.Zero, t0)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("RejectsTooFrequent", func(t *testing.T) {
		f := newTestFeed(t)
		require.NoError(t, f.Submit("oracle-a", price(50000), t0))
		err := f.Submit("oracle-a", price(50001), t0.Add(500*time.Millisecond))
		assert.ErrorIs(t, err, ErrTooFrequent)
	})

	t.Run("RejectsDeviation", func(t *testing.T) {
		f := newTestFeed(t)
		require.NoError(t, f.Submit("oracle-a", price(50000), t0))

		// 6% jump against a 5% bound
		err := f.Submit("oracle-a", price(53000), t0.Add(2*time.Second))
		assert.ErrorIs(t, err, ErrDeviationExceeded)

		// rejection is idempotent: resubmitting mutates nothing either time
		err = f.Submit("oracle-a", price(53000), t0.Add(4*time.Second))
		assert.ErrorIs(t, err, ErrDeviationExceeded)
		assert.Equal(t, 1, f.HistoryLen())

		tick, err := f.Latest(t0.Add(4 * time.Second))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), tick.Sequence)
	})

	t.Run("SequenceStrictlyIncreasing", func(t *testing.T) {
		f := newTestFeed(t)
		var last uint64
		for i := 0; i < 5; i++ {
			ts := t0.Add(time.Duration(i) * 2 * time.Second)
			require.NoError(t, f.Submit("oracle-b", price(50000+int64(i)), ts))
			tick, err := f.Latest(ts)
			require.NoError(t, err)
			assert.Greater(t, tick.Sequence, last)
			last = tick.Sequence
		}
	})

	t.Run("HistoryBounded", func(t *testing.T) {
		f := newTestFeed(t)
		for i := 0; i < 20; i++ {
			ts := t0.Add(time.Duration(i) * 2 * time.Second)
			require.NoError(t, f.Submit("oracle-a", price(50000+int64(i)), ts))
		}
		assert.Equal(t, 8, f.HistoryLen())
	})
}

func TestFeedStaleness(t *testing.T) {
	f := newTestFeed(t)
	require.NoError(t, f.Submit("oracle-a", price(50000), t0))

	_, err := f.Latest(t0.Add(59 * time.Second))
	assert.NoError(t, err)

	_, err = f.Latest(t0.Add(2 * time.Minute))
	assert.ErrorIs(t, err, ErrStalePrice)
}

func TestFeedHalt(t *testing.T) {
	f := newTestFeed(t)
	require.NoError(t, f.Submit("oracle-a", price(50000), t0))

	f.Halt()
	_, err := f.Latest(t0)
	assert.ErrorIs(t, err, ErrFeedHalted)
	_, err = f.TWAPOver(time.Minute, t0)
	assert.ErrorIs(t, err, ErrFeedHalted)

	f.Resume()
	_, err = f.Latest(t0)
	assert.NoError(t, err)
}

func TestFeedTWAP(t *testing.T) {
	f := newTestFeed(t)
	require.NoError(t, f.Submit("oracle-a", price(100), t0))
	require.NoError(t, f.Submit("oracle-a", price(102), t0.Add(time.Minute)))
	require.NoError(t, f.Submit("oracle-a", price(104), t0.Add(2*time.Minute)))

	now := t0.Add(3 * time.Minute)
	got, err := f.TWAPOver(10*time.Minute, now)
	require.NoError(t, err)
	assert.True(t, got.Equal(price(102)), "got %s", got)

	_, err = f.TWAPOver(time.Millisecond, now)
	assert.ErrorIs(t, err, fpmath.ErrEmptyTwapWindow)
}

func TestFeedConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Symbol = ""
	_, err := New(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.MaxDeviationBps = 0
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.AuthorizedSources = nil
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
