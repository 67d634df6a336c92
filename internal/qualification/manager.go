package qualification

import (
	"fmt"
	"sync"
	"time"

	"frizo/prop_engine/internal/events"
	"frizo/prop_engine/internal/feed"
	"frizo/prop_engine/internal/logger"
)

var (
	ErrAlreadyEvaluating = fmt.Errorf("owner already holds an active or passed evaluation")
	ErrEvaluationUnknown = fmt.Errorf("no evaluation for owner")
	ErrNotAdmin          = fmt.Errorf("admin capability required")
)

// Manager tracks one evaluation per owner and gates the admin halt.
type Manager struct {
	admin  string
	evals  map[string]*Evaluation // owner -> evaluation
	feeds  *feed.Registry
	issuer CredentialIssuer
	sink   events.Sink
	log    *logger.Logger

	mu sync.RWMutex
}

func NewManager(adminKey string, feeds *feed.Registry, issuer CredentialIssuer, sink events.Sink, log *logger.Logger) (*Manager, error) {
	if adminKey == "" {
		return nil, fmt.Errorf("manager: admin key must not be empty")
	}
	if feeds == nil || issuer == nil {
		return nil, fmt.Errorf("manager: feed registry and credential issuer are required")
	}
	if sink == nil {
		sink = events.Discard{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		admin:  adminKey,
		evals:  make(map[string]*Evaluation),
		feeds:  feeds,
		issuer: issuer,
		sink:   sink,
		log:    log,
	}, nil
}

// Start begins a new evaluation for owner. An owner holding an active or
// passed evaluation cannot start another; a failed one may retry.
func (m *Manager) Start(owner string, rules Rules, now time.Time) (*Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.evals[owner]; ok {
		switch existing.Status() {
		case StatusActive, StatusPassed:
			return nil, fmt.Errorf("start %s: %w", owner, ErrAlreadyEvaluating)
		}
	}

	ev, err := newEvaluation(owner, rules, m.feeds, m.issuer, m.sink, m.log, now)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", owner, err)
	}
	m.evals[owner] = ev

	m.log.Info("evaluation started", "owner", owner, "evaluation", ev.ID())
	return ev, nil
}

// Get returns owner's current evaluation.
func (m *Manager) Get(owner string) (*Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.evals[owner]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", owner, ErrEvaluationUnknown)
	}
	return ev, nil
}

// Count returns the number of evaluations ever started, any status.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.evals)
}

// Halt force-fails owner's active evaluation. Requires the admin token.
func (m *Manager) Halt(adminKey, owner string, now time.Time) error {
	if adminKey != m.admin {
		return fmt.Errorf("halt: %w", ErrNotAdmin)
	}
	ev, err := m.Get(owner)
	if err != nil {
		return err
	}
	return ev.halt(now)
}
