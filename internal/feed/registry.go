package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/pkg/utils"
)

var (
	ErrFeedNotFound  = fmt.Errorf("feed not found")
	ErrFeedExists    = fmt.Errorf("feed already registered")
	ErrNotAdmin      = fmt.Errorf("admin capability required")
	ErrEmptyAdminKey = fmt.Errorf("admin key must not be empty")
)

// Registry is the symbol -> Feed directory. Registration is one-time and
// gated by an admin capability token passed into each mutating call.
type Registry struct {
	admin string
	feeds map[string]*Feed
	mu    sync.RWMutex
}

func NewRegistry(adminKey string) (*Registry, error) {
	if adminKey == "" {
		return nil, ErrEmptyAdminKey
	}
	return &Registry{
		admin: adminKey,
		feeds: make(map[string]*Feed),
	}, nil
}

// Register adds a feed under its symbol. One feed per symbol, ever;
// replacing a feed requires an explicit Remove first.
func (r *Registry) Register(adminKey string, f *Feed) error {
	if adminKey != r.admin {
		return fmt.Errorf("register: %w", ErrNotAdmin)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.feeds[f.Symbol()]; exists {
		return fmt.Errorf("register %s: %w", f.Symbol(), ErrFeedExists)
	}
	r.feeds[f.Symbol()] = f
	return nil
}

// Remove drops a feed from the directory.
func (r *Registry) Remove(adminKey, symbol string) error {
	if adminKey != r.admin {
		return fmt.Errorf("remove: %w", ErrNotAdmin)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.feeds[symbol]; !exists {
		return fmt.Errorf("remove %s: %w", symbol, ErrFeedNotFound)
	}
	delete(r.feeds, symbol)
	return nil
}

// Get resolves a feed by symbol.
func (r *Registry) Get(symbol string) (*Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.feeds[symbol]
	if !exists {
		return nil, fmt.Errorf("get %s: %w", symbol, ErrFeedNotFound)
	}
	return f, nil
}

// PriceOf returns the latest non-stale price for symbol.
func (r *Registry) PriceOf(symbol string, now time.Time) (decimal.Decimal, error) {
	f, err := r.Get(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	tick, err := f.Latest(now)
	if err != nil {
		return decimal.Zero, err
	}
	return tick.Price, nil
}

// HealthOf reports whether a feed exists, is not halted, is not stale and
// carries a nonzero latest price.
func (r *Registry) HealthOf(symbol string, now time.Time) bool {
	f, err := r.Get(symbol)
	if err != nil {
		return false
	}
	tick, err := f.Latest(now)
	if err != nil {
		return false
	}
	return tick.Price.IsPositive()
}

// UnhealthySymbols returns every registered symbol failing HealthOf.
// An empty slice means the whole directory is healthy.
func (r *Registry) UnhealthySymbols(now time.Time) []string {
	r.mu.RLock()
	symbols := make([]string, 0, len(r.feeds))
	for symbol := range r.feeds {
		symbols = append(symbols, symbol)
	}
	r.mu.RUnlock()

	return utils.Filter(symbols, func(symbol string) bool {
		return !r.HealthOf(symbol, now)
	})
}
