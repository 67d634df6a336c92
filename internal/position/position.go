package position

import (
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/common"
)

// Position is one leveraged exposure. Fields are set at open and mutated
// exactly once, at close (Status, ClosePrice, RealizedPnL, ClosedAt).
type Position struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	Symbol    string       `json:"symbol"`
	Side      Side         `json:"side"`
	Status    Status       `json:"status"`
	Track     common.Track `json:"track"`

	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	MarginLocked     decimal.Decimal `json:"margin_locked"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	Leverage         uint            `json:"leverage"`

	StopLoss   decimal.Decimal `json:"stop_loss"`             // zero = unset (virtual track only)
	TakeProfit decimal.Decimal `json:"take_profit,omitempty"` // zero = unset

	ClosePrice  decimal.Decimal `json:"close_price,omitempty"`
	RealizedPnL decimal.Decimal `json:"realized_pnl,omitempty"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// IsOpen reports whether the position can still be marked or closed.
func (p *Position) IsOpen() bool { return p.Status == StatusOpen }

// HasStop reports whether a stop-loss is set.
func (p *Position) HasStop() bool { return p.StopLoss.IsPositive() }

// HasTakeProfit reports whether a take-profit is set.
func (p *Position) HasTakeProfit() bool { return p.TakeProfit.IsPositive() }
