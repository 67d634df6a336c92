package qualification

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frizo/prop_engine/internal/events"
	"frizo/prop_engine/internal/feed"
	"frizo/prop_engine/internal/position"
)

const (
	adminKey = "admin-secret"
	oracle   = "oracle-a"
	symbol   = "BTCUSDT"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func price(f float64) decimal.Decimal { return decimal.NewFromFloat(f).Mul(decimal.New(1, 8)) }
func amount(v int64) decimal.Decimal  { return decimal.New(v, 6) }

// countingIssuer records every issuance.
type countingIssuer struct {
	creds []Credential
}

func (c *countingIssuer) IssueCredential(cred Credential) error {
	for _, existing := range c.creds {
		if existing.Owner == cred.Owner {
			return fmt.Errorf("credential already issued to %s", cred.Owner)
		}
	}
	c.creds = append(c.creds, cred)
	return nil
}

type harness struct {
	mgr    *Manager
	feed   *feed.Feed
	issuer *countingIssuer
	bus    *events.Bus
}

func newHarness(t *testing.T, maxDeviationBps int64) *harness {
	t.Helper()

	registry, err := feed.NewRegistry(adminKey)
	require.NoError(t, err)

	f, err := feed.New(feed.Config{
		Symbol:            symbol,
		MaxDeviationBps:   maxDeviationBps,
		Heartbeat:         24 * time.Hour,
		MinUpdateInterval: time.Second,
		AuthorizedSources: []string{oracle},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(adminKey, f))

	issuer := &countingIssuer{}
	bus := events.NewBus()
	mgr, err := NewManager(adminKey, registry, issuer, bus, nil)
	require.NoError(t, err)

	return &harness{mgr: mgr, feed: f, issuer: issuer, bus: bus}
}

func defaultRules() Rules {
	return Rules{
		VirtualBalance:   amount(10000),
		ProfitTargetBps:  1000, // 10%
		MaxDrawdownBps:   500,  // 5%
		MinTrades:        5,
		EvaluationPeriod: 30 * 24 * time.Hour,
		Leverage:         10,
		MaxPositionSize:  amount(5000),
	}
}

func TestManagerStart(t *testing.T) {
	h := newHarness(t, 500)

	t.Run("RejectsInvalidRules", func(t *testing.T) {
		rules := defaultRules()
		rules.ProfitTargetBps = 0
		_, err := h.mgr.Start("trader-0", rules, t0)
		assert.Error(t, err)
	})

	t.Run("RejectsDuplicateActive", func(t *testing.T) {
		_, err := h.mgr.Start("trader-1", defaultRules(), t0)
		require.NoError(t, err)
		_, err = h.mgr.Start("trader-1", defaultRules(), t0)
		assert.ErrorIs(t, err, ErrAlreadyEvaluating)
	})

	t.Run("FailedOwnerMayRetry", func(t *testing.T) {
		_, err := h.mgr.Start("trader-2", defaultRules(), t0)
		require.NoError(t, err)
		require.NoError(t, h.mgr.Halt(adminKey, "trader-2", t0))

		_, err = h.mgr.Start("trader-2", defaultRules(), t0)
		assert.NoError(t, err)
	})
}

func TestEvaluationOpenPosition(t *testing.T) {
	h := newHarness(t, 500)
	ev, err := h.mgr.Start("trader", defaultRules(), t0)
	require.NoError(t, err)

	t.Run("NoPriceBlocks", func(t *testing.T) {
		_, err := ev.OpenPosition(symbol, position.LONG, amount(1000), decimal.Zero, decimal.Zero, t0)
		assert.ErrorIs(t, err, feed.ErrNoTicks)
	})

	require.NoError(t, h.feed.Submit(oracle, price(1.0), t0))

	t.Run("StalePriceBlocks", func(t *testing.T) {
		_, err := ev.OpenPosition(symbol, position.LONG, amount(1000), decimal.Zero, decimal.Zero, t0.Add(48*time.Hour))
		assert.ErrorIs(t, err, feed.ErrStalePrice)
	})

	t.Run("OversizeRejected", func(t *testing.T) {
		_, err := ev.OpenPosition(symbol, position.LONG, amount(6000), decimal.Zero, decimal.Zero, t0)
		assert.ErrorIs(t, err, ErrPositionSize)
	})

	t.Run("OpensAtFeedPrice", func(t *testing.T) {
		pos, err := ev.OpenPosition(symbol, position.LONG, amount(5000), decimal.Zero, decimal.Zero, t0)
		require.NoError(t, err)
		assert.True(t, pos.EntryPrice.Equal(price(1.0)))
		// margin = size/leverage at price 1.0
		assert.True(t, pos.MarginLocked.Equal(amount(500)))
	})
}

// Scenario: 10,000 virtual balance, 10% target, 5% drawdown cap, 5 minimum
// trades; five trades each netting +250 end Passed at 11,250 with exactly
// one credential issued.
func TestEvaluationPassScenario(t *testing.T) {
	h := newHarness(t, 500)
	ev, err := h.mgr.Start("trader", defaultRules(), t0)
	require.NoError(t, err)

	now := t0
	for i := 0; i < 5; i++ {
		require.NoError(t, h.feed.Submit(oracle, price(1.0), now))
		pos, err := ev.OpenPosition(symbol, position.LONG, amount(5000), decimal.Zero, decimal.Zero, now)
		require.NoError(t, err)

		// +5% on 5000 notional = +250
		now = now.Add(10 * time.Second)
		require.NoError(t, h.feed.Submit(oracle, price(1.05), now))
		result, err := ev.ClosePosition(pos.ID, now)
		require.NoError(t, err)
		assert.True(t, result.PnL.Equal(amount(250)))

		if i < 4 {
			// target may be reached in balance terms before the minimum
			// trade count; the evaluation must stay active until both hold
			assert.Equal(t, StatusActive, result.Status, "trade %d", i+1)
		} else {
			assert.Equal(t, StatusPassed, result.Status)
		}

		now = now.Add(10 * time.Second)
		require.NoError(t, h.feed.Submit(oracle, price(1.0), now))
		now = now.Add(10 * time.Second)
	}

	assert.True(t, ev.State().Balance.Equal(amount(11250)))
	assert.Equal(t, StatusPassed, ev.Status())

	require.Len(t, h.issuer.creds, 1)
	cred := h.issuer.creds[0]
	assert.Equal(t, "trader", cred.Owner)
	assert.True(t, cred.FinalBalance.Equal(amount(11250)))
	assert.True(t, cred.ProfitAchieved.Equal(amount(1250)))
	assert.Equal(t, 5, cred.TradeCount)
	assert.Equal(t, int64(10000), cred.WinRateBps)

	// terminal: no further opens
	_, err = ev.OpenPosition(symbol, position.LONG, amount(1000), decimal.Zero, decimal.Zero, now)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestEvaluationFailsOnDrawdown(t *testing.T) {
	h := newHarness(t, 2000)
	ev, err := h.mgr.Start("trader", defaultRules(), t0)
	require.NoError(t, err)

	require.NoError(t, h.feed.Submit(oracle, price(1.0), t0))
	pos, err := ev.OpenPosition(symbol, position.LONG, amount(5000), decimal.Zero, decimal.Zero, t0)
	require.NoError(t, err)

	// -12% on 5000 notional = -600 -> 600 bps drawdown against a 500 cap
	now := t0.Add(10 * time.Second)
	require.NoError(t, h.feed.Submit(oracle, price(0.88), now))
	result, err := ev.ClosePosition(pos.ID, now)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, FailDrawdown, result.FailReason)
	assert.True(t, result.Balance.Equal(amount(9400)))
	assert.Empty(t, h.issuer.creds)
}

func TestEvaluationFailsOnExpiry(t *testing.T) {
	h := newHarness(t, 500)
	rules := defaultRules()
	rules.EvaluationPeriod = time.Hour
	ev, err := h.mgr.Start("trader", rules, t0)
	require.NoError(t, err)

	require.NoError(t, h.feed.Submit(oracle, price(1.0), t0))
	pos, err := ev.OpenPosition(symbol, position.LONG, amount(5000), decimal.Zero, decimal.Zero, t0)
	require.NoError(t, err)

	// close lands two hours in, past the one hour window
	now := t0.Add(2 * time.Hour)
	require.NoError(t, h.feed.Submit(oracle, price(1.01), now))
	result, err := ev.ClosePosition(pos.ID, now)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, FailExpired, result.FailReason)
}

func TestEvaluationCheckTriggers(t *testing.T) {
	h := newHarness(t, 2000)
	ev, err := h.mgr.Start("trader", defaultRules(), t0)
	require.NoError(t, err)

	require.NoError(t, h.feed.Submit(oracle, price(1.0), t0))
	pos, err := ev.OpenPosition(symbol, position.LONG, amount(5000), price(0.96), decimal.Zero, t0)
	require.NoError(t, err)

	// above the stop: nothing to do
	reason, _, err := ev.CheckTriggers(pos.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, position.CloseNone, reason)

	now := t0.Add(10 * time.Second)
	require.NoError(t, h.feed.Submit(oracle, price(0.95), now))
	reason, result, err := ev.CheckTriggers(pos.ID, now)
	require.NoError(t, err)
	assert.Equal(t, position.CloseStopLoss, reason)
	assert.True(t, result.PnL.IsNegative())

	// already closed
	_, _, err = ev.CheckTriggers(pos.ID, now)
	assert.ErrorIs(t, err, position.ErrPositionNotOpen)
}

func TestManagerHalt(t *testing.T) {
	h := newHarness(t, 500)
	ev, err := h.mgr.Start("trader", defaultRules(), t0)
	require.NoError(t, err)

	assert.ErrorIs(t, h.mgr.Halt("wrong", "trader", t0), ErrNotAdmin)
	assert.ErrorIs(t, h.mgr.Halt(adminKey, "ghost", t0), ErrEvaluationUnknown)

	require.NoError(t, h.mgr.Halt(adminKey, "trader", t0))
	assert.Equal(t, StatusFailed, ev.Status())
	assert.Equal(t, FailHalted, ev.FailReason())

	// halt is one-shot on a terminal evaluation
	assert.ErrorIs(t, h.mgr.Halt(adminKey, "trader", t0), ErrNotActive)
}
