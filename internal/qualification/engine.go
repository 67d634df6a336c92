package qualification

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/common"
	"frizo/prop_engine/internal/account"
	ids "frizo/prop_engine/internal/common"
	"frizo/prop_engine/internal/events"
	"frizo/prop_engine/internal/feed"
	"frizo/prop_engine/internal/fpmath"
	"frizo/prop_engine/internal/logger"
	"frizo/prop_engine/internal/position"
	"frizo/prop_engine/internal/risk"
)

var (
	ErrNotActive           = fmt.Errorf("evaluation is not active")
	ErrPositionSize        = fmt.Errorf("position size rejected")
	ErrInsufficientBalance = fmt.Errorf("insufficient available balance for margin")
)

// Evaluation is one virtual-capital challenge: trade a virtual balance to
// the profit target inside the time window without breaking the drawdown
// cap. All mutations on one evaluation are serialized by its lock.
type Evaluation struct {
	id    string
	owner string
	rules Rules

	state        account.State
	status       Status
	failReason   string
	lockedMargin decimal.Decimal

	credentialIssued bool

	ledger *position.Ledger
	feeds  *feed.Registry
	issuer CredentialIssuer
	sink   events.Sink
	log    *logger.Logger

	mu sync.Mutex
}

// CloseResult reports the committed effect of one position close. A limit
// breach is an expected outcome: the caller sees the terminal status here,
// not an error.
type CloseResult struct {
	PnL        decimal.Decimal
	Balance    decimal.Decimal
	Status     Status
	FailReason string
}

func newEvaluation(owner string, rules Rules, feeds *feed.Registry, issuer CredentialIssuer, sink events.Sink, log *logger.Logger, now time.Time) (*Evaluation, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	state, err := account.NewState(rules.VirtualBalance, now)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		id:     ids.GenerateEvaluationID(),
		owner:  owner,
		rules:  rules,
		state:  state,
		status: StatusActive,
		ledger: position.NewLedger(),
		feeds:  feeds,
		issuer: issuer,
		sink:   sink,
		log:    log.WithComponent("qualification"),
	}

	ev.sink.Publish(events.New(events.EvaluationStarted, ev.id, "",
		map[string]decimal.Decimal{"virtual_balance": rules.VirtualBalance}, now))

	return ev, nil
}

func (ev *Evaluation) ID() string    { return ev.id }
func (ev *Evaluation) Owner() string { return ev.owner }

func (ev *Evaluation) Status() Status {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.status
}

func (ev *Evaluation) FailReason() string {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.failReason
}

// State returns a copy of the account counters.
func (ev *Evaluation) State() account.State {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.state
}

// OpenPosition opens a virtual position at the current feed price. A stop
// is optional on the qualification track.
func (ev *Evaluation) OpenPosition(symbol string, side position.Side, size, stopLoss, takeProfit decimal.Decimal, now time.Time) (*position.Position, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	if ev.status != StatusActive {
		return nil, fmt.Errorf("open: %w", ErrNotActive)
	}

	price, err := ev.feeds.PriceOf(symbol, now)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	available := ev.state.Balance.Sub(ev.lockedMargin)
	if !risk.PositionSizeOk(size, available, ev.rules.MaxPositionSize) {
		return nil, fmt.Errorf("open: %w", ErrPositionSize)
	}

	margin, err := fpmath.RequiredMargin(size, ev.rules.Leverage, price)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if margin.GreaterThan(available) {
		return nil, fmt.Errorf("open: %w", ErrInsufficientBalance)
	}

	pos, err := ev.ledger.Open(position.OpenParams{
		AccountID:  ev.id,
		Symbol:     symbol,
		Side:       side,
		Track:      common.QualificationTrack,
		EntryPrice: price,
		Size:       size,
		Margin:     margin,
		Leverage:   ev.rules.Leverage,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		OpenedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	ev.lockedMargin = ev.lockedMargin.Add(margin)

	ev.log.Info("position opened",
		"evaluation", ev.id, "position", pos.ID, "symbol", symbol,
		"side", side.String(), "size", size, "margin", margin)
	ev.sink.Publish(events.New(events.PositionOpened, ev.id, symbol,
		map[string]decimal.Decimal{"size": size, "entry_price": price}, now))

	return pos, nil
}

// ClosePosition closes at the current feed price, commits the PnL and then
// runs the state-machine transitions.
func (ev *Evaluation) ClosePosition(id string, now time.Time) (CloseResult, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	if ev.status != StatusActive {
		return CloseResult{}, fmt.Errorf("close: %w", ErrNotActive)
	}

	pos, err := ev.ledger.Get(id)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close: %w", err)
	}

	price, err := ev.feeds.PriceOf(pos.Symbol, now)
	if err != nil {
		// a stale price never commits a close
		return CloseResult{}, fmt.Errorf("close: %w", err)
	}

	return ev.settle(pos, price, now)
}

// CheckTriggers closes the position when its stop, take-profit or
// liquidation price has been crossed. Callable by anyone (keeper pattern).
func (ev *Evaluation) CheckTriggers(id string, now time.Time) (position.CloseReason, CloseResult, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	if ev.status != StatusActive {
		return position.CloseNone, CloseResult{}, fmt.Errorf("check triggers: %w", ErrNotActive)
	}

	pos, err := ev.ledger.Get(id)
	if err != nil {
		return position.CloseNone, CloseResult{}, fmt.Errorf("check triggers: %w", err)
	}

	price, err := ev.feeds.PriceOf(pos.Symbol, now)
	if err != nil {
		return position.CloseNone, CloseResult{}, fmt.Errorf("check triggers: %w", err)
	}

	reason, err := ev.ledger.ShouldClose(id, price)
	if err != nil {
		return position.CloseNone, CloseResult{}, fmt.Errorf("check triggers: %w", err)
	}
	if reason == position.CloseNone {
		return position.CloseNone, CloseResult{}, nil
	}

	result, err := ev.settle(pos, price, now)
	return reason, result, err
}

// settle commits one close and runs the transitions. Caller holds the lock.
func (ev *Evaluation) settle(pos *position.Position, price decimal.Decimal, now time.Time) (CloseResult, error) {
	pnl, err := ev.ledger.Close(pos.ID, price, now)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close: %w", err)
	}

	ev.lockedMargin = ev.lockedMargin.Sub(pos.MarginLocked)
	ev.state.ApplyClose(pnl)

	ev.log.Info("position closed",
		"evaluation", ev.id, "position", pos.ID, "pnl", pnl, "balance", ev.state.Balance)
	ev.sink.Publish(events.New(events.PositionClosed, ev.id, pos.Symbol,
		map[string]decimal.Decimal{"pnl": pnl, "exit_price": price}, now))

	err = ev.transition(now)

	return CloseResult{
		PnL:        pnl,
		Balance:    ev.state.Balance,
		Status:     ev.status,
		FailReason: ev.failReason,
	}, err
}

// transition runs the fail checks before the pass check, so an expired or
// breached evaluation can never pass on the same close. Caller holds the lock.
func (ev *Evaluation) transition(now time.Time) error {
	if now.Sub(ev.state.OpenedAt) > ev.rules.EvaluationPeriod {
		ev.fail(FailExpired, now)
		return nil
	}

	if ok, dd := risk.DrawdownOk(ev.state.Balance, ev.state.HighWaterMark, ev.rules.MaxDrawdownBps); !ok {
		ev.log.Info("drawdown cap breached", "evaluation", ev.id, "drawdown_bps", dd)
		ev.fail(FailDrawdown, now)
		return nil
	}

	target := ev.rules.VirtualBalance.Add(fpmath.ApplyBps(ev.rules.VirtualBalance, ev.rules.ProfitTargetBps))
	if ev.state.Balance.GreaterThanOrEqual(target) && ev.state.TradeCount >= ev.rules.MinTrades {
		return ev.pass(now)
	}
	return nil
}

func (ev *Evaluation) fail(reason string, now time.Time) {
	ev.status = StatusFailed
	ev.failReason = reason

	ev.log.Info("evaluation failed", "evaluation", ev.id, "reason", reason)
	ev.sink.Publish(events.New(events.EvaluationFailed, ev.id, "",
		map[string]decimal.Decimal{"balance": ev.state.Balance}, now))
}

func (ev *Evaluation) pass(now time.Time) error {
	ev.status = StatusPassed

	ev.log.Info("evaluation passed",
		"evaluation", ev.id, "balance", ev.state.Balance, "trades", ev.state.TradeCount)
	ev.sink.Publish(events.New(events.EvaluationPassed, ev.id, "",
		map[string]decimal.Decimal{"balance": ev.state.Balance}, now))

	if ev.credentialIssued {
		return nil
	}

	cred := Credential{
		Owner:          ev.owner,
		EvaluationID:   ev.id,
		FinalBalance:   ev.state.Balance,
		ProfitAchieved: ev.state.Balance.Sub(ev.rules.VirtualBalance),
		MaxDrawdownBps: ev.state.PeakDrawdownBps,
		TradeCount:     ev.state.TradeCount,
		WinRateBps:     ev.state.WinRateBps(),
	}
	if err := ev.issuer.IssueCredential(cred); err != nil {
		// the pass itself is committed; the issuance failure is surfaced
		// so it can be retried out-of-band
		ev.log.Error("credential issuance failed", "evaluation", ev.id, "error", err)
		return fmt.Errorf("issue credential: %w", err)
	}
	ev.credentialIssued = true
	return nil
}

// halt force-fails the evaluation. Admin capability is checked by the
// Manager before this is called.
func (ev *Evaluation) halt(now time.Time) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	if ev.status != StatusActive {
		return fmt.Errorf("halt: %w", ErrNotActive)
	}
	ev.fail(FailHalted, now)
	return nil
}
