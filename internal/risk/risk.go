package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/internal/fpmath"
)

// Pure pass/fail predicates gating every state mutation in the engine.
// Each takes already-validated state; none of them mutates anything.

// DrawdownOk reports whether balance has not fallen more than maxBps below
// the high-water mark. The measured drawdown is returned alongside.
func DrawdownOk(balance, hwm decimal.Decimal, maxBps int64) (bool, decimal.Decimal) {
	dd := fpmath.DrawdownBps(balance, hwm)
	return dd.LessThanOrEqual(decimal.NewFromInt(maxBps)), dd
}

// ExposureOk reports whether exposure is within the allowed maximum.
func ExposureOk(exposure, maxExposure decimal.Decimal) bool {
	return exposure.LessThanOrEqual(maxExposure)
}

// PositionSizeOk rejects zero size, size above the configured maximum, and
// size exceeding the caller's available balance.
func PositionSizeOk(size, availableBalance, maxSize decimal.Decimal) bool {
	if !size.IsPositive() {
		return false
	}
	if size.GreaterThan(maxSize) {
		return false
	}
	return size.LessThanOrEqual(availableBalance)
}

// StopTriggered reports whether price has crossed the stop-loss.
// Long positions stop out at or below the stop, shorts at or above.
func StopTriggered(price, stopPrice decimal.Decimal, isLong bool) bool {
	if isLong {
		return price.LessThanOrEqual(stopPrice)
	}
	return price.GreaterThanOrEqual(stopPrice)
}

// TakeProfitTriggered is the inverse comparison of StopTriggered.
func TakeProfitTriggered(price, tpPrice decimal.Decimal, isLong bool) bool {
	if isLong {
		return price.GreaterThanOrEqual(tpPrice)
	}
	return price.LessThanOrEqual(tpPrice)
}

// CollateralRatioOk reports whether collateral covers exposure at the
// minimum ratio. Vacuously true while there is no exposure.
func CollateralRatioOk(collateral, exposure decimal.Decimal, minRatioBps int64) bool {
	if !exposure.IsPositive() {
		return true
	}
	ratio := collateral.Mul(decimal.NewFromInt(fpmath.BpsDenominator)).Div(exposure)
	return ratio.GreaterThanOrEqual(decimal.NewFromInt(minRatioBps))
}

// IsStale reports whether the last update is older than the heartbeat.
func IsStale(lastUpdate time.Time, heartbeat time.Duration, now time.Time) bool {
	return now.Sub(lastUpdate) > heartbeat
}

// DailyLossExceeded reports whether the rolling loss has reached the cap.
// Sitting exactly at the limit counts as exceeded.
func DailyLossExceeded(currentLoss, maxLoss decimal.Decimal) bool {
	return currentLoss.GreaterThanOrEqual(maxLoss)
}

// EvaluationRulesOk sanity-checks a qualification rule pair: profit target
// and drawdown cap must both be positive and below 100%.
func EvaluationRulesOk(profitTargetBps, maxDrawdownBps int64) bool {
	if profitTargetBps <= 0 || profitTargetBps >= fpmath.BpsDenominator {
		return false
	}
	return maxDrawdownBps > 0 && maxDrawdownBps < fpmath.BpsDenominator
}
