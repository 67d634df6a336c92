package account

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/internal/fpmath"
)

var ErrInvalidBalance = fmt.Errorf("starting balance must be greater than zero")

// State is the balance/drawdown shape shared by both account tracks.
// HighWaterMark never decreases; a loss larger than the balance floors
// the balance at zero instead of going negative.
type State struct {
	Balance         decimal.Decimal `json:"balance"`
	HighWaterMark   decimal.Decimal `json:"high_water_mark"`
	DrawdownBps     int64           `json:"drawdown_bps"`
	PeakDrawdownBps int64           `json:"peak_drawdown_bps"`
	TradeCount      int             `json:"trade_count"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	OpenedAt        time.Time       `json:"opened_at"`
}

func NewState(balance decimal.Decimal, openedAt time.Time) (State, error) {
	if !balance.IsPositive() {
		return State{}, ErrInvalidBalance
	}
	return State{
		Balance:       balance,
		HighWaterMark: balance,
		OpenedAt:      openedAt,
	}, nil
}

// ApplyClose commits one realized PnL: balance moves (floored at zero),
// the high-water mark ratchets up on profit, drawdown is recomputed and
// trade/win/loss counters advance.
func (s *State) ApplyClose(pnl decimal.Decimal) {
	s.applyClose(pnl, true)
}

// ApplyCloseKeepMark commits one realized PnL without ratcheting the
// high-water mark. The funded track uses the mark as its payout benchmark,
// so only payout settlement may move it.
func (s *State) ApplyCloseKeepMark(pnl decimal.Decimal) {
	s.applyClose(pnl, false)
}

func (s *State) applyClose(pnl decimal.Decimal, ratchetMark bool) {
	s.Balance = s.Balance.Add(pnl)
	if s.Balance.IsNegative() {
		s.Balance = decimal.Zero
	}
	if ratchetMark && s.Balance.GreaterThan(s.HighWaterMark) {
		s.HighWaterMark = s.Balance
	}

	s.DrawdownBps = fpmath.DrawdownBps(s.Balance, s.HighWaterMark).IntPart()
	if s.DrawdownBps > s.PeakDrawdownBps {
		s.PeakDrawdownBps = s.DrawdownBps
	}

	s.TradeCount++
	switch {
	case pnl.IsPositive():
		s.Wins++
	case pnl.IsNegative():
		s.Losses++
	}
}

// WinRateBps derives the win rate from real win/loss counts.
func (s *State) WinRateBps() int64 {
	if s.TradeCount == 0 {
		return 0
	}
	return int64(s.Wins) * fpmath.BpsDenominator / int64(s.TradeCount)
}

// ResetHighWaterMark pins the mark to the current balance. Only payout
// settlement may do this.
func (s *State) ResetHighWaterMark() {
	s.HighWaterMark = s.Balance
	s.DrawdownBps = 0
}
