package fpmath

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Scaled-integer conventions shared by the whole engine:
// prices carry 8 decimal places as integer units (1e8 = 1.0),
// currency amounts carry a per-asset scale, percentages are basis points
// out of 10,000. Every division truncates toward zero.

const BpsDenominator = 10000

var (
	// PriceScale is the integer scale of one whole price unit.
	PriceScale = decimal.New(1, 8)

	bpsDenom = decimal.NewFromInt(BpsDenominator)
)

var (
	ErrZeroBase        = fmt.Errorf("base value must be non-zero")
	ErrInvalidAmount   = fmt.Errorf("amount must be greater than zero")
	ErrZeroLeverage    = fmt.Errorf("leverage must be greater than zero")
	ErrEmptyTwapWindow = fmt.Errorf("no ticks inside twap window")
)

// divTrunc divides a by b truncating toward zero. QuoRem with precision 0
// gives the exact integer quotient, independent of decimal's global
// division precision.
func divTrunc(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

// PnL returns the signed profit or loss of a position sized in currency
// units: (exit-entry)*size/entry for longs, negated for shorts.
func PnL(entry, exit, size decimal.Decimal, isLong bool) (decimal.Decimal, error) {
	if !entry.IsPositive() || !exit.IsPositive() {
		return decimal.Zero, fmt.Errorf("pnl: %w", ErrInvalidAmount)
	}
	if !size.IsPositive() {
		return decimal.Zero, fmt.Errorf("pnl: %w", ErrInvalidAmount)
	}

	diff := exit.Sub(entry)
	if !isLong {
		diff = diff.Neg()
	}

	return divTrunc(diff.Mul(size), entry), nil
}

// PercentChangeBps returns |new-old| relative to old, in basis points.
func PercentChangeBps(oldVal, newVal decimal.Decimal) (decimal.Decimal, error) {
	if oldVal.IsZero() {
		return decimal.Zero, fmt.Errorf("percent change: %w", ErrZeroBase)
	}
	diff := newVal.Sub(oldVal).Abs()
	return divTrunc(diff.Mul(bpsDenom), oldVal.Abs()), nil
}

// DrawdownBps returns how far balance sits below the high-water mark, in
// basis points of the mark. Zero whenever balance has not fallen below it.
func DrawdownBps(balance, hwm decimal.Decimal) decimal.Decimal {
	if !hwm.IsPositive() || balance.GreaterThanOrEqual(hwm) {
		return decimal.Zero
	}
	return divTrunc(hwm.Sub(balance).Mul(bpsDenom), hwm)
}

// RequiredMargin returns size*price/1e8/leverage: the collateral that must
// be locked against a position of the given notional size.
func RequiredMargin(size decimal.Decimal, leverage uint, price decimal.Decimal) (decimal.Decimal, error) {
	if leverage == 0 {
		return decimal.Zero, fmt.Errorf("required margin: %w", ErrZeroLeverage)
	}
	if !size.IsPositive() || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("required margin: %w", ErrInvalidAmount)
	}
	notional := divTrunc(size.Mul(price), PriceScale)
	return divTrunc(notional, decimal.NewFromInt(int64(leverage))), nil
}

// LiquidationPrice returns the price at which a position's margin is fully
// consumed: entry -/+ entry/leverage (minus for long, plus for short).
func LiquidationPrice(entry decimal.Decimal, leverage uint, isLong bool) (decimal.Decimal, error) {
	if leverage == 0 {
		return decimal.Zero, fmt.Errorf("liquidation price: %w", ErrZeroLeverage)
	}
	if !entry.IsPositive() {
		return decimal.Zero, fmt.Errorf("liquidation price: %w", ErrInvalidAmount)
	}
	buffer := divTrunc(entry, decimal.NewFromInt(int64(leverage)))
	if isLong {
		return entry.Sub(buffer), nil
	}
	return entry.Add(buffer), nil
}

// PricePoint is one observation for TWAP weighting.
type PricePoint struct {
	Price decimal.Decimal
	Time  time.Time
}

// TWAP computes the time-weighted average price of the points that fall in
// [now-period, now). Each point is weighted by the interval until the next
// point in the window, the last one by the interval until now. Points must
// be in ascending time order.
func TWAP(points []PricePoint, period time.Duration, now time.Time) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, fmt.Errorf("twap: %w", ErrInvalidAmount)
	}
	start := now.Add(-period)

	var inWindow []PricePoint
	for _, p := range points {
		if !p.Time.Before(start) && p.Time.Before(now) {
			inWindow = append(inWindow, p)
		}
	}
	if len(inWindow) == 0 {
		return decimal.Zero, ErrEmptyTwapWindow
	}

	weightedSum := decimal.Zero
	totalWeight := decimal.Zero
	for i, p := range inWindow {
		end := now
		if i+1 < len(inWindow) {
			end = inWindow[i+1].Time
		}
		weight := decimal.NewFromInt(int64(end.Sub(p.Time) / time.Millisecond))
		weightedSum = weightedSum.Add(p.Price.Mul(weight))
		totalWeight = totalWeight.Add(weight)
	}

	if totalWeight.IsZero() {
		// every point sits on the window edge, fall back to the latest
		return inWindow[len(inWindow)-1].Price, nil
	}
	return divTrunc(weightedSum, totalWeight), nil
}

// ApplyBps returns value*bps/10000, truncated.
func ApplyBps(value decimal.Decimal, bps int64) decimal.Decimal {
	return divTrunc(value.Mul(decimal.NewFromInt(bps)), bpsDenom)
}

// SplitProfit splits total into (share, remainder) where share is
// ApplyBps(total, shareBps). The two parts always sum back to total.
func SplitProfit(total decimal.Decimal, shareBps int64) (decimal.Decimal, decimal.Decimal) {
	share := ApplyBps(total, shareBps)
	return share, total.Sub(share)
}
