package position

// Side LONG or SHORT
type Side int

const (
	LONG  Side = 1
	SHORT Side = -1
)

func (s Side) String() string {
	switch s {
	case LONG:
		return "long"
	case SHORT:
		return "short"
	default:
		return "unknown"
	}
}

// IsLong is a convenience for the math layer, which speaks booleans.
func (s Side) IsLong() bool { return s == LONG }

// ========================================================

// Status Open or Closed. A closed position is never reopened.
type Status int

const (
	StatusOpen Status = iota
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ========================================================

// CloseReason reports which trigger fired, in evaluation priority order.
type CloseReason int

const (
	CloseNone CloseReason = iota
	CloseStopLoss
	CloseTakeProfit
	CloseLiquidation
)

func (r CloseReason) String() string {
	switch r {
	case CloseNone:
		return "none"
	case CloseStopLoss:
		return "stop_loss"
	case CloseTakeProfit:
		return "take_profit"
	case CloseLiquidation:
		return "liquidation"
	default:
		return "unknown"
	}
}
