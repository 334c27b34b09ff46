// Package safety implements the safety governor: an independent gate in front
// of every externally visible action. It rate-limits action frequency,
// detects runaway bursts, and carries a global kill switch. The governor has
// no knowledge of signals or tasks.
package safety

import (
	"fmt"
	"sync"
	"time"

	"vigil/internal/logging"
)

// Block reasons returned by RecordAction. Callers treat these as recoverable
// and never abort the engine.
const (
	ReasonAllowed     = "allowed"
	ReasonKillSwitch  = "kill switch active"
	ReasonRunaway     = "runaway detected"
	ReasonChainLength = "chain length exceeded"
	ReasonConsecutive = "too many consecutive actions"
)

// History pruning and burst windows.
const (
	historyRetention   = 5 * time.Minute
	runawayWindow      = 60 * time.Second
	consecutiveSpacing = 10 * time.Second
)

// Limits holds the enforcement parameters. All values must be positive;
// validate at the configuration boundary with Validate.
type Limits struct {
	MaxToolChainLength    int `yaml:"max_tool_chain_length"`
	MaxConsecutiveActions int `yaml:"max_consecutive_actions"`
	RunawayThreshold      int `yaml:"runaway_threshold"`
}

// DefaultLimits returns production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxToolChainLength:    10,
		MaxConsecutiveActions: 5,
		RunawayThreshold:      20,
	}
}

// Validate checks that every limit is a positive integer.
func (l Limits) Validate() error {
	if l.MaxToolChainLength <= 0 {
		return fmt.Errorf("max_tool_chain_length must be positive, got %d", l.MaxToolChainLength)
	}
	if l.MaxConsecutiveActions <= 0 {
		return fmt.Errorf("max_consecutive_actions must be positive, got %d", l.MaxConsecutiveActions)
	}
	if l.RunawayThreshold <= 0 {
		return fmt.Errorf("runaway_threshold must be positive, got %d", l.RunawayThreshold)
	}
	return nil
}

// Action is one recorded externally visible action.
type Action struct {
	Type      string
	Timestamp time.Time
	Data      map[string]any
}

// Status is a read-only snapshot for the digest and CLI.
type Status struct {
	KillSwitchActive bool
	HistorySize      int
	ConsecutiveCount int
	LastActionTime   time.Time
	Limits           Limits
}

// Governor gates externally visible actions. Every network call, file
// mutation, or notification must route through RecordAction first.
type Governor struct {
	mu sync.Mutex

	limits           Limits
	killSwitchActive bool
	history          []Action
	consecutiveCount int
	lastActionTime   time.Time

	now func() time.Time // injected for tests
}

// NewGovernor creates a governor with the given limits. Construction time is
// the reference point for the consecutive-action check, so a burst that
// starts immediately after boot is still counted.
func NewGovernor(limits Limits) *Governor {
	return &Governor{limits: limits, now: time.Now, lastActionTime: time.Now()}
}

// SetClock overrides the time source and resets the consecutive reference
// point to the new clock's present. Test hook only.
func (g *Governor) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.lastActionTime = now()
}

// RecordAction records an externally visible action and decides whether it is
// allowed. Checks run in a fixed order: kill switch, runaway detection,
// chain-length cap, consecutive-action cap. When runaway and the consecutive
// condition would both hold on the same call, runaway wins - it latches the
// kill switch.
func (g *Governor) RecordAction(actionType string, data map[string]any) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.killSwitchActive {
		return false, ReasonKillSwitch
	}

	now := g.now()
	g.history = append(g.history, Action{Type: actionType, Timestamp: now, Data: data})
	g.pruneLocked(now)

	// Runaway detection: too many actions packed into too short a span.
	if len(g.history) >= g.limits.RunawayThreshold {
		span := now.Sub(g.history[0].Timestamp)
		if span < runawayWindow {
			logging.SafetyWarn("runaway detected: %d actions in %v, latching kill switch",
				len(g.history), span.Round(time.Millisecond))
			g.activateLocked()
			return false, ReasonRunaway
		}
	}

	// Chain-length cap. The action stays recorded.
	if len(g.history) > g.limits.MaxToolChainLength {
		logging.SafetyWarn("chain length exceeded: %d > %d", len(g.history), g.limits.MaxToolChainLength)
		return false, ReasonChainLength
	}

	// Consecutive-action cap.
	if now.Sub(g.lastActionTime) < consecutiveSpacing {
		g.consecutiveCount++
	} else {
		g.consecutiveCount = 0
	}
	if g.consecutiveCount > g.limits.MaxConsecutiveActions {
		logging.SafetyWarn("too many consecutive actions: %d > %d",
			g.consecutiveCount, g.limits.MaxConsecutiveActions)
		return false, ReasonConsecutive
	}

	g.lastActionTime = now
	return true, ReasonAllowed
}

// pruneLocked drops history entries older than the retention window.
func (g *Governor) pruneLocked(now time.Time) {
	cutoff := now.Add(-historyRetention)
	i := 0
	for i < len(g.history) && g.history[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		g.history = append([]Action(nil), g.history[i:]...)
	}
}

// activateLocked latches the kill switch and resets all counters.
func (g *Governor) activateLocked() {
	g.killSwitchActive = true
	g.history = nil
	g.consecutiveCount = 0
	g.lastActionTime = time.Time{}
}

// ActivateKillSwitch latches the kill switch. Idempotent; also resets all
// counters and history.
func (g *Governor) ActivateKillSwitch(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.killSwitchActive {
		logging.Safety("kill switch activated: %s", reason)
	}
	g.activateLocked()
}

// DeactivateKillSwitch clears the latch. It does not retroactively forgive
// anything - state is only cleared going forward.
func (g *Governor) DeactivateKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.killSwitchActive {
		logging.Safety("kill switch deactivated")
	}
	g.killSwitchActive = false
}

// KillSwitchActive reports the latch state.
func (g *Governor) KillSwitchActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killSwitchActive
}

// SetLimits replaces the enforcement limits. Invalid limits are rejected and
// the previous limits remain active.
func (g *Governor) SetLimits(limits Limits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
	return nil
}

// GetStatus returns a snapshot of the governor state.
func (g *Governor) GetStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		KillSwitchActive: g.killSwitchActive,
		HistorySize:      len(g.history),
		ConsecutiveCount: g.consecutiveCount,
		LastActionTime:   g.lastActionTime,
		Limits:           g.limits,
	}
}
