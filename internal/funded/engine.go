package funded

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/common"
	"frizo/prop_engine/internal/account"
	"frizo/prop_engine/internal/collateral"
	ids "frizo/prop_engine/internal/common"
	"frizo/prop_engine/internal/events"
	"frizo/prop_engine/internal/feed"
	"frizo/prop_engine/internal/fpmath"
	"frizo/prop_engine/internal/logger"
	"frizo/prop_engine/internal/position"
	"frizo/prop_engine/internal/risk"
)

var (
	ErrAccountPaused       = fmt.Errorf("account is paused")
	ErrAccountActive       = fmt.Errorf("account is not paused")
	ErrNotOwner            = fmt.Errorf("owner capability required")
	ErrDailyLossReached    = fmt.Errorf("daily loss cap reached")
	ErrPositionSize        = fmt.Errorf("position size rejected")
	ErrInsufficientBalance = fmt.Errorf("insufficient available balance for margin")
	ErrNoProfit            = fmt.Errorf("balance does not exceed high-water mark")
)

// Engine is one real-capital funded account. Margin is reserved from the
// shared collateral pool, a stop-loss is mandatory on every position and a
// rolling 24h loss cap pauses the account when crossed.
type Engine struct {
	id       string
	owner    string
	ownerKey string
	rules    Rules

	state        account.State
	status       Status
	lockedMargin decimal.Decimal

	dailyLoss decimal.Decimal
	dayStart  time.Time

	ledger  *position.Ledger
	feeds   *feed.Registry
	pool    *collateral.Pool
	capital CapitalLedger
	sink    events.Sink
	log     *logger.Logger

	mu sync.Mutex
}

// CloseResult reports the committed effect of one live close. Crossing the
// daily-loss cap shows up as StatusPaused here, not as an error.
type CloseResult struct {
	PnL       decimal.Decimal
	Balance   decimal.Decimal
	DailyLoss decimal.Decimal
	Status    Status
}

// New funds an account. The external provisioning factory is expected to
// have verified the owner's credential before calling this; the engine
// emits the allocation request to the capital ledger.
func New(owner, ownerKey string, rules Rules, feeds *feed.Registry, pool *collateral.Pool, capital CapitalLedger, sink events.Sink, log *logger.Logger, now time.Time) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if owner == "" || ownerKey == "" {
		return nil, fmt.Errorf("funded: owner and owner key are required")
	}
	if feeds == nil || pool == nil || capital == nil {
		return nil, fmt.Errorf("funded: feed registry, collateral pool and capital ledger are required")
	}
	if sink == nil {
		sink = events.Discard{}
	}
	if log == nil {
		log = logger.Default()
	}

	state, err := account.NewState(rules.InitialBalance, now)
	if err != nil {
		return nil, err
	}

	id := ids.GenerateAccountID()
	if err := capital.Allocate(id, rules.InitialBalance); err != nil {
		return nil, fmt.Errorf("funded: allocate capital: %w", err)
	}

	e := &Engine{
		id:       id,
		owner:    owner,
		ownerKey: ownerKey,
		rules:    rules,
		state:    state,
		status:   StatusActive,
		dayStart: now,
		ledger:   position.NewLedger(),
		feeds:    feeds,
		pool:     pool,
		capital:  capital,
		sink:     sink,
		log:      log.WithComponent("funded"),
	}

	e.log.Info("funded account created", "account", id, "owner", owner, "balance", rules.InitialBalance)
	return e, nil
}

func (e *Engine) ID() string    { return e.id }
func (e *Engine) Owner() string { return e.owner }

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// State returns a copy of the account counters.
func (e *Engine) State() account.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// DailyLoss returns the rolling loss accumulated in the current window.
func (e *Engine) DailyLoss() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyLoss
}

// resetDailyWindow lazily rolls the 24h loss window. Caller holds the lock;
// every mutating call runs this first.
func (e *Engine) resetDailyWindow(now time.Time) {
	if now.Sub(e.dayStart) >= dailyWindow {
		e.dailyLoss = decimal.Zero
		e.dayStart = now
	}
}

// OpenLive opens a real position. Requires Active status, the daily loss
// cap not reached, an in-bounds size and a mandatory stop-loss; margin is
// reserved from the shared pool before the position is committed.
func (e *Engine) OpenLive(symbol string, side position.Side, size, stopLoss, takeProfit decimal.Decimal, now time.Time) (*position.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetDailyWindow(now)

	if e.status != StatusActive {
		return nil, fmt.Errorf("open live: %w", ErrAccountPaused)
	}
	if risk.DailyLossExceeded(e.dailyLoss, e.rules.MaxDailyLoss) {
		return nil, fmt.Errorf("open live: %w", ErrDailyLossReached)
	}

	price, err := e.feeds.PriceOf(symbol, now)
	if err != nil {
		return nil, fmt.Errorf("open live: %w", err)
	}

	available := e.state.Balance.Sub(e.lockedMargin)
	if !risk.PositionSizeOk(size, available, e.rules.MaxPositionSize) {
		return nil, fmt.Errorf("open live: %w", ErrPositionSize)
	}

	margin, err := fpmath.RequiredMargin(size, e.rules.Leverage, price)
	if err != nil {
		return nil, fmt.Errorf("open live: %w", err)
	}
	if margin.GreaterThan(available) {
		return nil, fmt.Errorf("open live: %w", ErrInsufficientBalance)
	}

	if err := e.pool.Reserve(e.id, margin); err != nil {
		return nil, fmt.Errorf("open live: %w", err)
	}

	pos, err := e.ledger.Open(position.OpenParams{
		AccountID:   e.id,
		Symbol:      symbol,
		Side:        side,
		Track:       common.FundedTrack,
		EntryPrice:  price,
		Size:        size,
		Margin:      margin,
		Leverage:    e.rules.Leverage,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		RequireStop: true,
		OpenedAt:    now,
	})
	if err != nil {
		// release the reservation so the failed open leaves no trace
		if relErr := e.pool.Release(e.id, margin); relErr != nil {
			e.log.Error("margin release after failed open", "account", e.id, "error", relErr)
		}
		return nil, err
	}

	e.lockedMargin = e.lockedMargin.Add(margin)

	e.log.Info("live position opened",
		"account", e.id, "position", pos.ID, "symbol", symbol,
		"side", side.String(), "size", size, "margin", margin)
	e.sink.Publish(events.New(events.PositionOpened, e.id, symbol,
		map[string]decimal.Decimal{"size": size, "entry_price": price, "margin": margin}, now))

	return pos, nil
}

// CloseLive closes a position at the current feed price, releases its
// margin back to the pool and commits the PnL. The close that crosses the
// daily loss cap pauses the account.
func (e *Engine) CloseLive(id string, now time.Time) (CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetDailyWindow(now)

	pos, err := e.ledger.Get(id)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close live: %w", err)
	}

	price, err := e.feeds.PriceOf(pos.Symbol, now)
	if err != nil {
		// a stale price never commits a close
		return CloseResult{}, fmt.Errorf("close live: %w", err)
	}

	return e.settle(pos, price, now)
}

// CheckStop closes the position when its stop, take-profit or liquidation
// price has been crossed. Permissionless by design: risk enforcement must
// not depend on the owner acting.
func (e *Engine) CheckStop(id string, now time.Time) (position.CloseReason, CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetDailyWindow(now)

	pos, err := e.ledger.Get(id)
	if err != nil {
		return position.CloseNone, CloseResult{}, fmt.Errorf("check stop: %w", err)
	}

	price, err := e.feeds.PriceOf(pos.Symbol, now)
	if err != nil {
		return position.CloseNone, CloseResult{}, fmt.Errorf("check stop: %w", err)
	}

	reason, err := e.ledger.ShouldClose(id, price)
	if err != nil {
		return position.CloseNone, CloseResult{}, fmt.Errorf("check stop: %w", err)
	}
	if reason == position.CloseNone {
		return position.CloseNone, CloseResult{}, nil
	}

	result, err := e.settle(pos, price, now)
	return reason, result, err
}

// settle commits one close. Caller holds the lock.
func (e *Engine) settle(pos *position.Position, price decimal.Decimal, now time.Time) (CloseResult, error) {
	pnl, err := e.ledger.Close(pos.ID, price, now)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close live: %w", err)
	}

	if err := e.pool.Release(e.id, pos.MarginLocked); err != nil {
		e.log.Error("margin release on close", "account", e.id, "error", err)
	}
	e.lockedMargin = e.lockedMargin.Sub(pos.MarginLocked)

	// the mark is the payout benchmark on this track; closes never move it
	e.state.ApplyCloseKeepMark(pnl)
	if pnl.IsNegative() {
		e.dailyLoss = e.dailyLoss.Add(pnl.Neg())
	}

	e.log.Info("live position closed",
		"account", e.id, "position", pos.ID, "pnl", pnl,
		"balance", e.state.Balance, "daily_loss", e.dailyLoss)
	e.sink.Publish(events.New(events.PositionClosed, e.id, pos.Symbol,
		map[string]decimal.Decimal{"pnl": pnl, "exit_price": price}, now))

	if e.status == StatusActive && risk.DailyLossExceeded(e.dailyLoss, e.rules.MaxDailyLoss) {
		e.status = StatusPaused
		e.log.Warn("daily loss cap crossed, account paused",
			"account", e.id, "daily_loss", e.dailyLoss, "cap", e.rules.MaxDailyLoss)
		e.sink.Publish(events.New(events.DailyLossBreached, e.id, "",
			map[string]decimal.Decimal{"daily_loss": e.dailyLoss}, now))
		e.sink.Publish(events.New(events.AccountPaused, e.id, "", nil, now))
	}

	return CloseResult{
		PnL:       pnl,
		Balance:   e.state.Balance,
		DailyLoss: e.dailyLoss,
		Status:    e.status,
	}, nil
}

// RequestPayout settles profit above the high-water mark: the trader share
// is transferred out, the pool share goes to the capital ledger, and the
// mark resets to the post-payout balance.
func (e *Engine) RequestPayout(ownerKey string, now time.Time) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ownerKey != e.ownerKey {
		return decimal.Zero, fmt.Errorf("payout: %w", ErrNotOwner)
	}

	e.resetDailyWindow(now)

	if !e.state.Balance.GreaterThan(e.state.HighWaterMark) {
		return decimal.Zero, fmt.Errorf("payout: %w", ErrNoProfit)
	}

	profit := e.state.Balance.Sub(e.state.HighWaterMark)
	traderShare, poolShare := fpmath.SplitProfit(profit, e.rules.ProfitSplitBps)

	// forward the pool share before committing; a ledger failure aborts
	// with no state change
	if poolShare.IsPositive() {
		if err := e.capital.ReceiveShare(poolShare); err != nil {
			return decimal.Zero, fmt.Errorf("payout: %w", err)
		}
	}

	e.state.Balance = e.state.Balance.Sub(profit)
	e.state.ResetHighWaterMark()

	e.log.Info("payout settled",
		"account", e.id, "profit", profit, "trader_share", traderShare, "pool_share", poolShare)
	e.sink.Publish(events.New(events.PayoutSettled, e.id, "",
		map[string]decimal.Decimal{"profit": profit, "trader_share": traderShare, "pool_share": poolShare}, now))

	return traderShare, nil
}

// Pause is the explicit owner halt.
func (e *Engine) Pause(ownerKey string, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ownerKey != e.ownerKey {
		return fmt.Errorf("pause: %w", ErrNotOwner)
	}
	if e.status == StatusPaused {
		return fmt.Errorf("pause: %w", ErrAccountPaused)
	}
	e.status = StatusPaused
	e.sink.Publish(events.New(events.AccountPaused, e.id, "", nil, now))
	return nil
}

// Resume reactivates a paused account. Only the owner, after review.
func (e *Engine) Resume(ownerKey string, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ownerKey != e.ownerKey {
		return fmt.Errorf("resume: %w", ErrNotOwner)
	}
	if e.status != StatusPaused {
		return fmt.Errorf("resume: %w", ErrAccountActive)
	}
	e.status = StatusActive
	e.sink.Publish(events.New(events.AccountResumed, e.id, "", nil, now))
	return nil
}
