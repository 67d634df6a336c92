package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestDrawdownOk(t *testing.T) {
	ok, dd := DrawdownOk(dec(9500), dec(10000), 500)
	assert.True(t, ok)
	assert.True(t, dd.Equal(dec(500)))

	ok, dd = DrawdownOk(dec(9499), dec(10000), 500)
	assert.False(t, ok)
	assert.True(t, dd.Equal(dec(501)))

	ok, _ = DrawdownOk(dec(12000), dec(10000), 1)
	assert.True(t, ok)
}

func TestExposureOk(t *testing.T) {
	assert.True(t, ExposureOk(dec(100), dec(100)))
	assert.False(t, ExposureOk(dec(101), dec(100)))
}

func TestPositionSizeOk(t *testing.T) {
	t.Run("RejectsZero", func(t *testing.T) {
		assert.False(t, PositionSizeOk(decimal.Zero, dec(1000), dec(1000)))
	})
	t.Run("RejectsOversize", func(t *testing.T) {
		assert.False(t, PositionSizeOk(dec(600), dec(1000), dec(500)))
	})
	t.Run("RejectsBeyondBalance", func(t *testing.T) {
		assert.False(t, PositionSizeOk(dec(400), dec(300), dec(500)))
	})
	t.Run("Accepts", func(t *testing.T) {
		assert.True(t, PositionSizeOk(dec(300), dec(300), dec(500)))
	})
}

func TestStopAndTakeProfitTriggers(t *testing.T) {
	stop := dec(49000)
	tp := dec(52000)

	t.Run("Long", func(t *testing.T) {
		assert.True(t, StopTriggered(dec(49000), stop, true))
		assert.True(t, StopTriggered(dec(48000), stop, true))
		assert.False(t, StopTriggered(dec(49001), stop, true))

		assert.True(t, TakeProfitTriggered(dec(52000), tp, true))
		assert.False(t, TakeProfitTriggered(dec(51999), tp, true))
	})

	t.Run("Short", func(t *testing.T) {
		shortStop := dec(52000)
		shortTp := dec(49000)
		assert.True(t, StopTriggered(dec(52000), shortStop, false))
		assert.False(t, StopTriggered(dec(51999), shortStop, false))

		assert.True(t, TakeProfitTriggered(dec(49000), shortTp, false))
		assert.False(t, TakeProfitTriggered(dec(49001), shortTp, false))
	})
}

func TestCollateralRatioOk(t *testing.T) {
	// 150% minimum ratio
	assert.True(t, CollateralRatioOk(dec(150), dec(100), 15000))
	assert.False(t, CollateralRatioOk(dec(149), dec(100), 15000))
	// vacuous at zero exposure
	assert.True(t, CollateralRatioOk(decimal.Zero, decimal.Zero, 15000))
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	assert.False(t, IsStale(now.Add(-30*time.Second), time.Minute, now))
	assert.False(t, IsStale(now.Add(-time.Minute), time.Minute, now))
	assert.True(t, IsStale(now.Add(-61*time.Second), time.Minute, now))
}

func TestDailyLossExceeded(t *testing.T) {
	assert.False(t, DailyLossExceeded(dec(499), dec(500)))
	assert.True(t, DailyLossExceeded(dec(500), dec(500))) // at-limit counts
	assert.True(t, DailyLossExceeded(dec(501), dec(500)))
}

func TestEvaluationRulesOk(t *testing.T) {
	assert.True(t, EvaluationRulesOk(1000, 500))
	assert.False(t, EvaluationRulesOk(0, 500))
	assert.False(t, EvaluationRulesOk(10000, 500))
	assert.False(t, EvaluationRulesOk(1000, 0))
	assert.False(t, EvaluationRulesOk(1000, 10000))
}
