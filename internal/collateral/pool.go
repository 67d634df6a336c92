package collateral

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/internal/events"
	"frizo/prop_engine/internal/fpmath"
	"frizo/prop_engine/internal/risk"
)

var (
	ErrInvalidAmount     = fmt.Errorf("amount must be greater than zero")
	ErrInsufficientFunds = fmt.Errorf("insufficient available collateral")
	ErrOverRelease       = fmt.Errorf("release exceeds locked amount")
	ErrExposureBreached  = fmt.Errorf("exposure would exceed allowed ratio")
	ErrRatioBreached     = fmt.Errorf("collateralization would fall below minimum")
	ErrNegativeExposure  = fmt.Errorf("exposure must not be negative")
	ErrWithdrawTooLarge  = fmt.Errorf("withdrawal would break pool invariants")
	ErrInvalidPoolConfig = fmt.Errorf("invalid pool configuration")
)

// Pool is the shared collateral backing every funded account. All mutation
// is serialized by one lock because the two ratio invariants span all
// accounts; every path mutates, re-validates, and rolls back on failure.
type Pool struct {
	totalCollateral decimal.Decimal
	totalExposure   decimal.Decimal
	locked          map[string]decimal.Decimal

	maxExposureRatioBps   int64
	minCollateralRatioBps int64

	sink events.Sink

	mu sync.Mutex
}

func NewPool(totalCollateral decimal.Decimal, maxExposureRatioBps, minCollateralRatioBps int64, sink events.Sink) (*Pool, error) {
	if !totalCollateral.IsPositive() {
		return nil, fmt.Errorf("pool: %w", ErrInvalidAmount)
	}
	if maxExposureRatioBps <= 0 || minCollateralRatioBps <= 0 {
		return nil, fmt.Errorf("pool: %w", ErrInvalidPoolConfig)
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &Pool{
		totalCollateral:       totalCollateral,
		locked:                make(map[string]decimal.Decimal),
		maxExposureRatioBps:   maxExposureRatioBps,
		minCollateralRatioBps: minCollateralRatioBps,
		sink:                  sink,
	}, nil
}

// validate re-checks both pool-wide ratio invariants.
func (p *Pool) validate() error {
	maxExposure := fpmath.ApplyBps(p.totalCollateral, p.maxExposureRatioBps)
	if !risk.ExposureOk(p.totalExposure, maxExposure) {
		return ErrExposureBreached
	}
	if !risk.CollateralRatioOk(p.totalCollateral, p.totalExposure, p.minCollateralRatioBps) {
		return ErrRatioBreached
	}
	return nil
}

// Reserve locks amount of collateral against accountID.
func (p *Pool) Reserve(accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("reserve: %w", ErrInvalidAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if amount.GreaterThan(p.totalCollateral.Sub(p.totalExposure)) {
		return fmt.Errorf("reserve %s: %w", accountID, ErrInsufficientFunds)
	}

	p.locked[accountID] = p.locked[accountID].Add(amount)
	p.totalExposure = p.totalExposure.Add(amount)

	if err := p.validate(); err != nil {
		// roll back atomically
		p.locked[accountID] = p.locked[accountID].Sub(amount)
		p.totalExposure = p.totalExposure.Sub(amount)
		return fmt.Errorf("reserve %s: %w", accountID, err)
	}

	p.sink.Publish(events.New(events.CollateralChanged, accountID, "",
		map[string]decimal.Decimal{"reserved": amount, "total_exposure": p.totalExposure}, time.Now()))

	return nil
}

// Release returns amount of locked collateral from accountID to the pool.
func (p *Pool) Release(accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("release: %w", ErrInvalidAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if amount.GreaterThan(p.locked[accountID]) {
		return fmt.Errorf("release %s: %w", accountID, ErrOverRelease)
	}

	p.locked[accountID] = p.locked[accountID].Sub(amount)
	p.totalExposure = p.totalExposure.Sub(amount)

	if err := p.validate(); err != nil {
		p.locked[accountID] = p.locked[accountID].Add(amount)
		p.totalExposure = p.totalExposure.Add(amount)
		return fmt.Errorf("release %s: %w", accountID, err)
	}

	p.sink.Publish(events.New(events.CollateralChanged, accountID, "",
		map[string]decimal.Decimal{"released": amount, "total_exposure": p.totalExposure}, time.Now()))

	return nil
}

// UpdateExposure moves accountID's locked amount to newExposure as a delta
// against the aggregate, re-validating the same invariants.
func (p *Pool) UpdateExposure(accountID string, newExposure decimal.Decimal) error {
	if newExposure.IsNegative() {
		return fmt.Errorf("update exposure: %w", ErrNegativeExposure)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.locked[accountID]
	delta := newExposure.Sub(old)

	p.locked[accountID] = newExposure
	p.totalExposure = p.totalExposure.Add(delta)

	if err := p.validate(); err != nil {
		p.locked[accountID] = old
		p.totalExposure = p.totalExposure.Sub(delta)
		return fmt.Errorf("update exposure %s: %w", accountID, err)
	}

	return nil
}

// Deposit adds collateral to the pool.
func (p *Pool) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit: %w", ErrInvalidAmount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalCollateral = p.totalCollateral.Add(amount)
	return nil
}

// Withdraw removes unencumbered collateral, rejecting any withdrawal that
// would break either ratio invariant.
func (p *Pool) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw: %w", ErrInvalidAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalCollateral = p.totalCollateral.Sub(amount)
	if p.totalCollateral.IsNegative() || p.validate() != nil {
		p.totalCollateral = p.totalCollateral.Add(amount)
		return fmt.Errorf("withdraw: %w", ErrWithdrawTooLarge)
	}
	return nil
}

// Available returns the collateral not currently backing exposure. Locked
// amounts are tracked explicitly, never inferred from balances.
func (p *Pool) Available() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalCollateral.Sub(p.totalExposure)
}

func (p *Pool) TotalCollateral() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalCollateral
}

func (p *Pool) TotalExposure() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalExposure
}

// LockedFor returns the collateral locked against one account.
func (p *Pool) LockedFor(accountID string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locked[accountID]
}
