package safety

import (
	"context"
	"sync"
	"time"

	"tradecore/internal/model"
)

// Monitor evaluates safety on an interval and exposes the latest state.
// The halt hook fires on the safe-to-unsafe edge only, so one outage
// produces one halt event.
type Monitor struct {
	cfg      func() Config
	activity *Activity
	interval time.Duration

	mu      sync.RWMutex
	current model.SafetyState
	wasSafe bool

	// OnHalt is called once when safe_to_run transitions to false.
	OnHalt func(model.SafetyState)
	// OnResume is called once when it transitions back to true.
	OnResume func(model.SafetyState)
	// OnState is called after every evaluation (state persistence).
	OnState func(model.SafetyState)
}

// NewMonitor builds a Monitor. cfg is re-invoked each cycle so operator
// edits to the kill-switch file take effect without a restart.
func NewMonitor(cfg func() Config, activity *Activity, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{cfg: cfg, activity: activity, interval: interval, wasSafe: true}
}

// State returns the latest evaluation result.
func (m *Monitor) State() model.SafetyState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Evaluate runs one cycle at now and fires edge hooks.
func (m *Monitor) Evaluate(now time.Time) model.SafetyState {
	c := m.cfg()
	state := Evaluate(Inputs{
		TradingEnabled:   c.TradingEnabled,
		KillSwitch:       c.KillSwitch,
		MarketDataLastTS: m.activity.Last(),
		StaleThreshold:   c.StaleThreshold,
		Now:              now,
		TTLSeconds:       c.TTLSeconds,
	})

	m.mu.Lock()
	m.current = state
	safe := state.SafeToRun()
	haltEdge := m.wasSafe && !safe
	resumeEdge := !m.wasSafe && safe
	m.wasSafe = safe
	m.mu.Unlock()

	if haltEdge && m.OnHalt != nil {
		m.OnHalt(state)
	}
	if resumeEdge && m.OnResume != nil {
		m.OnResume(state)
	}
	if m.OnState != nil {
		m.OnState(state)
	}
	return state
}

// Run evaluates on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Evaluate(time.Now().UTC())
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate(time.Now().UTC())
		}
	}
}
