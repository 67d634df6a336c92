package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind labels a domain event.
type Kind string

const (
	FeedUpdated       Kind = "feed_updated"
	PositionOpened    Kind = "position_opened"
	PositionClosed    Kind = "position_closed"
	EvaluationStarted Kind = "evaluation_started"
	EvaluationPassed  Kind = "evaluation_passed"
	EvaluationFailed  Kind = "evaluation_failed"
	PayoutSettled     Kind = "payout_settled"
	DailyLossBreached Kind = "daily_loss_breached"
	AccountPaused     Kind = "account_paused"
	AccountResumed    Kind = "account_resumed"
	CollateralChanged Kind = "collateral_changed"
)

// Event is one append-only record handed to external consumers. Consumers
// must tolerate at-least-once delivery; the engine's own state never
// depends on the stream.
type Event struct {
	ID        string                     `json:"id"`
	Kind      Kind                       `json:"kind"`
	AccountID string                     `json:"account_id,omitempty"`
	Symbol    string                     `json:"symbol,omitempty"`
	Amounts   map[string]decimal.Decimal `json:"amounts,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

// New builds an event with a fresh time-sortable ID.
func New(kind Kind, accountID, symbol string, amounts map[string]decimal.Decimal, ts time.Time) Event {
	return Event{
		ID:        NewEventID(),
		Kind:      kind,
		AccountID: accountID,
		Symbol:    symbol,
		Amounts:   amounts,
		Timestamp: ts,
	}
}

// Sink receives domain events. Publish must never block the caller.
type Sink interface {
	Publish(evt Event)
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}
