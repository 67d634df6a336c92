package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frizo/prop_engine/internal/events"
	"frizo/prop_engine/internal/fpmath"
	"frizo/prop_engine/internal/risk"
	"frizo/prop_engine/pkg/utils"
)

var (
	ErrUnauthorizedSource = fmt.Errorf("source not authorized to submit prices")
	ErrInvalidPrice       = fmt.Errorf("price must be greater than zero")
	ErrTooFrequent        = fmt.Errorf("update interval below minimum")
	ErrDeviationExceeded  = fmt.Errorf("price deviates beyond allowed bound")
	ErrStalePrice         = fmt.Errorf("latest price is stale")
	ErrFeedHalted         = fmt.Errorf("feed is halted")
	ErrNoTicks            = fmt.Errorf("feed has no ticks yet")
)

const defaultHistorySize = 256

// Tick is one accepted price observation.
type Tick struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
}

// Config bounds a feed's update behavior. Deviation and heartbeat are the
// manipulation-resistance boundary: one bad tick cannot move valuation
// beyond MaxDeviationBps, and valuation cannot be read once stale.
type Config struct {
	Symbol            string
	MaxDeviationBps   int64
	Heartbeat         time.Duration
	MinUpdateInterval time.Duration
	HistorySize       int
	AuthorizedSources []string
}

// Feed holds the bounded tick history for a single symbol. One feed per
// symbol; mutation only through Submit by an authorized source.
type Feed struct {
	cfg     Config
	history []Tick
	seq     uint64
	halted  bool

	sink events.Sink

	mu sync.RWMutex
}

func New(cfg Config, sink events.Sink) (*Feed, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("feed config: symbol is required")
	}
	if cfg.MaxDeviationBps <= 0 || cfg.Heartbeat <= 0 {
		return nil, fmt.Errorf("feed config: deviation bound and heartbeat must be positive")
	}
	if len(cfg.AuthorizedSources) == 0 {
		return nil, fmt.Errorf("feed config: at least one authorized source required")
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &Feed{
		cfg:     cfg,
		history: make([]Tick, 0, cfg.HistorySize),
		sink:    sink,
	}, nil
}

func (f *Feed) Symbol() string { return f.cfg.Symbol }

// Submit ingests one price update. Rejections leave the feed untouched.
func (f *Feed) Submit(source string, price decimal.Decimal, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !utils.Contains(f.cfg.AuthorizedSources, source) {
		return fmt.Errorf("submit %s: %w", f.cfg.Symbol, ErrUnauthorizedSource)
	}
	if !price.IsPositive() {
		return fmt.Errorf("submit %s: %w", f.cfg.Symbol, ErrInvalidPrice)
	}

	if len(f.history) > 0 {
		last := f.history[len(f.history)-1]
		if now.Sub(last.Timestamp) < f.cfg.MinUpdateInterval {
			return fmt.Errorf("submit %s: %w", f.cfg.Symbol, ErrTooFrequent)
		}
		change, err := fpmath.PercentChangeBps(last.Price, price)
		if err != nil {
			return fmt.Errorf("submit %s: %w", f.cfg.Symbol, err)
		}
		if change.GreaterThan(decimal.NewFromInt(f.cfg.MaxDeviationBps)) {
			return fmt.Errorf("submit %s: %w (%s bps)", f.cfg.Symbol, ErrDeviationExceeded, change)
		}
	}

	f.seq++
	f.history = append(f.history, Tick{Price: price, Timestamp: now, Sequence: f.seq})
	if len(f.history) > f.cfg.HistorySize {
		f.history = f.history[len(f.history)-f.cfg.HistorySize:]
	}

	f.sink.Publish(events.New(events.FeedUpdated, "", f.cfg.Symbol,
		map[string]decimal.Decimal{"price": price}, now))

	return nil
}

// Latest returns the newest tick, failing when the feed is halted, empty,
// or stale relative to the heartbeat.
func (f *Feed) Latest(now time.Time) (Tick, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.halted {
		return Tick{}, fmt.Errorf("latest %s: %w", f.cfg.Symbol, ErrFeedHalted)
	}
	if len(f.history) == 0 {
		return Tick{}, fmt.Errorf("latest %s: %w", f.cfg.Symbol, ErrNoTicks)
	}
	last := f.history[len(f.history)-1]
	if risk.IsStale(last.Timestamp, f.cfg.Heartbeat, now) {
		return Tick{}, fmt.Errorf("latest %s: %w", f.cfg.Symbol, ErrStalePrice)
	}
	return last, nil
}

// TWAPOver computes the time-weighted average over the bounded history.
func (f *Feed) TWAPOver(period time.Duration, now time.Time) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.halted {
		return decimal.Zero, fmt.Errorf("twap %s: %w", f.cfg.Symbol, ErrFeedHalted)
	}
	points := make([]fpmath.PricePoint, len(f.history))
	for i, tick := range f.history {
		points[i] = fpmath.PricePoint{Price: tick.Price, Time: tick.Timestamp}
	}
	return fpmath.TWAP(points, period, now)
}

// Halt stops reads until Resume. Submissions keep accumulating so the
// deviation chain stays intact across the halt.
func (f *Feed) Halt() {
	f.mu.Lock()
	f.halted = true
	f.mu.Unlock()
}

func (f *Feed) Resume() {
	f.mu.Lock()
	f.halted = false
	f.mu.Unlock()
}

func (f *Feed) Halted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.halted
}

// HistoryLen reports how many ticks are retained.
func (f *Feed) HistoryLen() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.history)
}
