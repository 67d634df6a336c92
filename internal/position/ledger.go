package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/common"
	ids "frizo/prop_engine/internal/common"
	"frizo/prop_engine/internal/fpmath"
	"frizo/prop_engine/internal/risk"
)

var (
	ErrInvalidSize     = fmt.Errorf("position size must be greater than zero")
	ErrInvalidEntry    = fmt.Errorf("entry price must be greater than zero")
	ErrInvalidMargin   = fmt.Errorf("margin must be greater than zero")
	ErrStopRequired    = fmt.Errorf("stop-loss is mandatory")
	ErrStopWrongSide   = fmt.Errorf("stop-loss must sit on the loss side of entry")
	ErrTakeWrongSide   = fmt.Errorf("take-profit must sit on the profit side of entry")
	ErrPositionUnknown = fmt.Errorf("position not found")
	ErrPositionNotOpen = fmt.Errorf("position is not open")
)

// OpenParams carries everything needed to open a position.
type OpenParams struct {
	AccountID   string
	Symbol      string
	Side        Side
	Track       common.Track
	EntryPrice  decimal.Decimal
	Size        decimal.Decimal
	Margin      decimal.Decimal
	Leverage    uint
	StopLoss    decimal.Decimal // zero = none; rejected when RequireStop
	TakeProfit  decimal.Decimal // zero = none
	RequireStop bool
	OpenedAt    time.Time
}

// Ledger owns the position lifecycle for one account engine.
type Ledger struct {
	positions map[string]*Position
	mu        sync.RWMutex
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

// Open validates and records a new position. A mandatory stop (live track)
// or an optional one (virtual track) must sit on the loss side of entry,
// a take-profit on the profit side.
func (l *Ledger) Open(params OpenParams) (*Position, error) {
	if !params.Size.IsPositive() {
		return nil, fmt.Errorf("open: %w", ErrInvalidSize)
	}
	if !params.EntryPrice.IsPositive() {
		return nil, fmt.Errorf("open: %w", ErrInvalidEntry)
	}
	if !params.Margin.IsPositive() {
		return nil, fmt.Errorf("open: %w", ErrInvalidMargin)
	}
	if params.RequireStop && !params.StopLoss.IsPositive() {
		return nil, fmt.Errorf("open: %w", ErrStopRequired)
	}

	isLong := params.Side.IsLong()
	if params.StopLoss.IsPositive() {
		wrongSide := (isLong && params.StopLoss.GreaterThanOrEqual(params.EntryPrice)) ||
			(!isLong && params.StopLoss.LessThanOrEqual(params.EntryPrice))
		if wrongSide {
			return nil, fmt.Errorf("open: %w", ErrStopWrongSide)
		}
	}
	if params.TakeProfit.IsPositive() {
		wrongSide := (isLong && params.TakeProfit.LessThanOrEqual(params.EntryPrice)) ||
			(!isLong && params.TakeProfit.GreaterThanOrEqual(params.EntryPrice))
		if wrongSide {
			return nil, fmt.Errorf("open: %w", ErrTakeWrongSide)
		}
	}

	liqPrice, err := fpmath.LiquidationPrice(params.EntryPrice, params.Leverage, isLong)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	pos := &Position{
		ID:               ids.GeneratePositionID(),
		AccountID:        params.AccountID,
		Symbol:           params.Symbol,
		Side:             params.Side,
		Status:           StatusOpen,
		Track:            params.Track,
		Size:             params.Size,
		EntryPrice:       params.EntryPrice,
		MarginLocked:     params.Margin,
		LiquidationPrice: liqPrice,
		Leverage:         params.Leverage,
		StopLoss:         params.StopLoss,
		TakeProfit:       params.TakeProfit,
		OpenedAt:         params.OpenedAt,
	}

	l.mu.Lock()
	l.positions[pos.ID] = pos
	l.mu.Unlock()

	return pos, nil
}

// Get returns a position by ID.
func (l *Ledger) Get(id string) (*Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, exists := l.positions[id]
	if !exists {
		return nil, fmt.Errorf("get %s: %w", id, ErrPositionUnknown)
	}
	return pos, nil
}

// OpenPositions lists the open positions belonging to accountID.
func (l *Ledger) OpenPositions(accountID string) []*Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var open []*Position
	for _, pos := range l.positions {
		if pos.AccountID == accountID && pos.IsOpen() {
			open = append(open, pos)
		}
	}
	return open
}

// MarkToMarket returns the signed unrealized PnL at currentPrice.
func (l *Ledger) MarkToMarket(id string, currentPrice decimal.Decimal) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, exists := l.positions[id]
	if !exists {
		return decimal.Zero, fmt.Errorf("mark %s: %w", id, ErrPositionUnknown)
	}
	if !pos.IsOpen() {
		return decimal.Zero, fmt.Errorf("mark %s: %w", id, ErrPositionNotOpen)
	}
	return fpmath.PnL(pos.EntryPrice, currentPrice, pos.Size, pos.Side.IsLong())
}

// ShouldClose evaluates close triggers in priority order: stop-loss,
// take-profit, liquidation. Both stop and liquidation are checked;
// whichever the price has crossed decides the close reason.
func (l *Ledger) ShouldClose(id string, currentPrice decimal.Decimal) (CloseReason, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, exists := l.positions[id]
	if !exists {
		return CloseNone, fmt.Errorf("should close %s: %w", id, ErrPositionUnknown)
	}
	if !pos.IsOpen() {
		return CloseNone, fmt.Errorf("should close %s: %w", id, ErrPositionNotOpen)
	}

	isLong := pos.Side.IsLong()
	if pos.HasStop() && risk.StopTriggered(currentPrice, pos.StopLoss, isLong) {
		return CloseStopLoss, nil
	}
	if pos.HasTakeProfit() && risk.TakeProfitTriggered(currentPrice, pos.TakeProfit, isLong) {
		return CloseTakeProfit, nil
	}
	if risk.StopTriggered(currentPrice, pos.LiquidationPrice, isLong) {
		return CloseLiquidation, nil
	}
	return CloseNone, nil
}

// Close settles a position at exitPrice. One-shot: a second close is
// rejected and changes nothing.
func (l *Ledger) Close(id string, exitPrice decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, exists := l.positions[id]
	if !exists {
		return decimal.Zero, fmt.Errorf("close %s: %w", id, ErrPositionUnknown)
	}
	if !pos.IsOpen() {
		return decimal.Zero, fmt.Errorf("close %s: %w", id, ErrPositionNotOpen)
	}

	pnl, err := fpmath.PnL(pos.EntryPrice, exitPrice, pos.Size, pos.Side.IsLong())
	if err != nil {
		return decimal.Zero, fmt.Errorf("close %s: %w", id, err)
	}

	pos.Status = StatusClosed
	pos.ClosePrice = exitPrice
	pos.RealizedPnL = pnl
	pos.ClosedAt = now

	return pnl, nil
}

// HealthBps scores an open position as the share of locked margin left
// after unrealized loss, in basis points. 10000 = untouched margin,
// 0 = margin fully consumed.
func (l *Ledger) HealthBps(id string, currentPrice decimal.Decimal) (decimal.Decimal, error) {
	pnl, err := l.MarkToMarket(id, currentPrice)
	if err != nil {
		return decimal.Zero, err
	}

	l.mu.RLock()
	margin := l.positions[id].MarginLocked
	l.mu.RUnlock()

	remaining := margin.Add(pnl)
	if remaining.IsNegative() {
		return decimal.Zero, nil
	}
	return remaining.Mul(decimal.NewFromInt(fpmath.BpsDenominator)).Div(margin).Truncate(0), nil
}
