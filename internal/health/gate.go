package health

import (
	"context"
	"sync"
	"time"

	"github.com/visionrelay/visionrelay/internal/logging"
)

// State is the gate's view of the backend.
type State int

const (
	StateUnknown State = iota
	StateReady
	StateNotReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// Prober checks whether the dependent backend can currently serve requests.
// Probe failures are reported as errors, never panics.
type Prober interface {
	Probe(ctx context.Context) error
}

// Gate tracks backend readiness. It starts Unknown, moves to Ready/NotReady on
// the first probe, and re-probes continuously while Run is active. Requests
// read the state before forwarding; a stale state triggers an on-demand probe.
//
// The gate exists because the backend may still be loading its model at
// process start; forwarding during that window produces confusing backend-side
// errors instead of a clean "not ready" signal.
type Gate struct {
	mu        sync.RWMutex
	state     State
	lastProbe time.Time

	prober   Prober
	interval time.Duration
	maxAge   time.Duration
	logger   *logging.Logger
}

// NewGate creates a gate probing via prober every interval. A state older than
// twice the interval is considered stale and re-probed on demand.
func NewGate(prober Prober, interval time.Duration, logger *logging.Logger) *Gate {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Gate{
		state:    StateUnknown,
		prober:   prober,
		interval: interval,
		maxAge:   2 * interval,
		logger:   logger,
	}
}

// State returns the current state without probing.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// CheckOrProbe returns the current state, probing first if the state is
// Unknown or stale. Probe failures transition to NotReady without raising.
func (g *Gate) CheckOrProbe(ctx context.Context) State {
	g.mu.RLock()
	state := g.state
	age := time.Since(g.lastProbe)
	g.mu.RUnlock()

	if state != StateUnknown && age < g.maxAge {
		return state
	}

	return g.probe(ctx)
}

// Run re-probes the backend on a fixed interval until ctx is canceled. An
// immediate first probe resolves the initial Unknown state.
func (g *Gate) Run(ctx context.Context) {
	g.probe(ctx)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gate) probe(ctx context.Context) State {
	err := g.prober.Probe(ctx)

	g.mu.Lock()
	previous := g.state
	if err != nil {
		g.state = StateNotReady
	} else {
		g.state = StateReady
	}
	g.lastProbe = time.Now()
	current := g.state
	g.mu.Unlock()

	if current != previous {
		if err != nil {
			g.logger.Warn("Backend not ready", logging.WithField("error", err.Error()))
		} else {
			g.logger.Info("Backend ready")
		}
	}

	return current
}
