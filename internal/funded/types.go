package funded

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status Active <-> Paused. Paused is reached by a daily-loss breach or an
// explicit owner halt; only an explicit owner action resumes.
type Status int

const (
	StatusActive Status = iota
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// dailyWindow is the wall-clock span of the rolling loss counter.
const dailyWindow = 24 * time.Hour

// Rules parameterizes a funded account. Captured at funding time; later
// configuration changes never alter a running account.
type Rules struct {
	InitialBalance  decimal.Decimal
	MaxDailyLoss    decimal.Decimal
	MaxPositionSize decimal.Decimal
	Leverage        uint
	ProfitSplitBps  int64 // trader's share of payout profit
}

func (r Rules) Validate() error {
	if !r.InitialBalance.IsPositive() {
		return fmt.Errorf("rules: initial balance must be positive")
	}
	if !r.MaxDailyLoss.IsPositive() {
		return fmt.Errorf("rules: daily loss cap must be positive")
	}
	if !r.MaxPositionSize.IsPositive() {
		return fmt.Errorf("rules: max position size must be positive")
	}
	if r.Leverage == 0 {
		return fmt.Errorf("rules: leverage must be positive")
	}
	if r.ProfitSplitBps <= 0 || r.ProfitSplitBps > 10000 {
		return fmt.Errorf("rules: profit split must be in (0,10000]")
	}
	return nil
}

// CapitalLedger is the external firm-level capital bookkeeper. The core
// only emits allocation and receipt requests against it.
type CapitalLedger interface {
	Allocate(accountID string, amount decimal.Decimal) error
	ReceiveShare(amount decimal.Decimal) error
}

// DisabledLedger rejects every request, for wiring without a real ledger.
type DisabledLedger struct{}

func (DisabledLedger) Allocate(string, decimal.Decimal) error {
	return fmt.Errorf("capital ledger not configured")
}

func (DisabledLedger) ReceiveShare(decimal.Decimal) error {
	return fmt.Errorf("capital ledger not configured")
}
