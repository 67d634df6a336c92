package qualification

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/internal/risk"
)

// Status Active -> Passed | Failed. Both outcomes are terminal.
type Status int

const (
	StatusActive Status = iota
	StatusPassed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fail reasons recorded on the terminal transition.
const (
	FailExpired  = "expired"
	FailDrawdown = "drawdown"
	FailHalted   = "halt"
)

// Rules parameterizes one evaluation. Captured at start and never re-read,
// so later configuration changes cannot alter a running evaluation.
type Rules struct {
	VirtualBalance   decimal.Decimal
	ProfitTargetBps  int64
	MaxDrawdownBps   int64
	MinTrades        int
	EvaluationPeriod time.Duration
	Leverage         uint
	MaxPositionSize  decimal.Decimal
}

func (r Rules) Validate() error {
	if !r.VirtualBalance.IsPositive() {
		return fmt.Errorf("rules: virtual balance must be positive")
	}
	if !risk.EvaluationRulesOk(r.ProfitTargetBps, r.MaxDrawdownBps) {
		return fmt.Errorf("rules: profit target and drawdown cap must be in (0,10000)")
	}
	if r.MinTrades <= 0 {
		return fmt.Errorf("rules: minimum trade count must be positive")
	}
	if r.EvaluationPeriod <= 0 {
		return fmt.Errorf("rules: evaluation period must be positive")
	}
	if r.Leverage == 0 {
		return fmt.Errorf("rules: leverage must be positive")
	}
	if !r.MaxPositionSize.IsPositive() {
		return fmt.Errorf("rules: max position size must be positive")
	}
	return nil
}

// Credential is the record handed to the external issuer when an
// evaluation passes.
type Credential struct {
	Owner          string
	EvaluationID   string
	FinalBalance   decimal.Decimal
	ProfitAchieved decimal.Decimal
	MaxDrawdownBps int64
	TradeCount     int
	WinRateBps     int64
}

// CredentialIssuer is implemented outside the core. The core calls it
// exactly once per passed evaluation; the issuer must reject a second
// issuance to the same owner.
type CredentialIssuer interface {
	IssueCredential(cred Credential) error
}

// DisabledIssuer rejects every issuance, for wiring without a real issuer.
type DisabledIssuer struct{}

func (DisabledIssuer) IssueCredential(Credential) error {
	return fmt.Errorf("credential issuer not configured")
}
