// Package energy implements the energy/budget tracker: a clamped attention
// scalar plus an hourly unsolicited-action quota and quiet-hours policy. The
// tracker informs the heartbeat cadence and gates whether the engine may
// initiate unsolicited proposals.
package energy

import (
	"fmt"
	"sync"
	"time"

	"vigil/internal/logging"
)

// Energy bounds and the initiation floor.
const (
	MinEnergy       = 0
	MaxEnergy       = 100
	initiationFloor = 30
)

// Standard deltas applied by the engine for environment events.
const (
	DeltaActivity = 8  // artifact saved
	DeltaIdle     = -5 // operator idle
)

// Heartbeat delay derivation bounds.
const (
	maxTickDelay = 120 * time.Second
	minTickDelay = 10 * time.Second
)

// Budget configures the unsolicited-action quota and quiet hours. Hours are
// wall-clock [0,23]; a quiet window with start > end spans midnight.
type Budget struct {
	MaxPerHour      int           `yaml:"max_unsolicited_per_hour"`
	QuietHoursStart int           `yaml:"quiet_hours_start"`
	QuietHoursEnd   int           `yaml:"quiet_hours_end"`
	Cooldown        time.Duration `yaml:"cooldown"`
}

// DefaultBudget returns production defaults: 4 unsolicited proposals per
// hour, quiet from 22:00 to 08:00, 10 minute spacing.
func DefaultBudget() Budget {
	return Budget{
		MaxPerHour:      4,
		QuietHoursStart: 22,
		QuietHoursEnd:   8,
		Cooldown:        10 * time.Minute,
	}
}

// Validate checks the budget at the configuration boundary.
func (b Budget) Validate() error {
	if b.MaxPerHour < 0 {
		return fmt.Errorf("max_unsolicited_per_hour must be >= 0, got %d", b.MaxPerHour)
	}
	if b.QuietHoursStart < 0 || b.QuietHoursStart > 23 {
		return fmt.Errorf("quiet_hours_start must be in [0,23], got %d", b.QuietHoursStart)
	}
	if b.QuietHoursEnd < 0 || b.QuietHoursEnd > 23 {
		return fmt.Errorf("quiet_hours_end must be in [0,23], got %d", b.QuietHoursEnd)
	}
	if b.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %v", b.Cooldown)
	}
	return nil
}

// Status is a read-only snapshot for the digest and CLI.
type Status struct {
	Energy           int
	UnsolicitedCount int
	WindowStartHour  int
	Budget           Budget
}

// Tracker owns the process-wide energy level and budget window. Mutation is
// serialized through the engine loop; the mutex covers the read-side callers.
type Tracker struct {
	mu sync.Mutex

	energy           int
	budget           Budget
	unsolicitedCount int
	windowStartHour  int
	lastUnsolicited  time.Time
}

// NewTracker creates a tracker starting at the given energy level, clamped.
func NewTracker(initial int, budget Budget) *Tracker {
	return &Tracker{
		energy:          clamp(initial),
		budget:          budget,
		windowStartHour: time.Now().Hour(),
	}
}

func clamp(e int) int {
	if e < MinEnergy {
		return MinEnergy
	}
	if e > MaxEnergy {
		return MaxEnergy
	}
	return e
}

// ApplyDelta adjusts energy, clamping the result to [0,100].
func (t *Tracker) ApplyDelta(amount int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.energy = clamp(t.energy + amount)
	logging.EnergyDebug("delta %+d -> energy %d", amount, t.energy)
	return t.energy
}

// Energy returns the current level.
func (t *Tracker) Energy() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.energy
}

// CanInitiateUnsolicited reports whether the engine may interrupt the
// operator right now: energy above the floor, outside quiet hours, hourly
// quota not exhausted, and not inside the global cooldown.
func (t *Tracker) CanInitiateUnsolicited(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.energy <= initiationFloor {
		return false
	}
	if t.budget.quiet(now.Hour()) {
		return false
	}
	count := t.unsolicitedCount
	if now.Hour() != t.windowStartHour {
		count = 0 // window would reset on record
	}
	if count >= t.budget.MaxPerHour {
		return false
	}
	if !t.lastUnsolicited.IsZero() && now.Sub(t.lastUnsolicited) < t.budget.Cooldown {
		return false
	}
	return true
}

// RecordUnsolicited counts one unsolicited initiation, resetting the hourly
// window first if the wall-clock hour has rolled over. The reset happens
// exactly once per hour change and is never retroactive.
func (t *Tracker) RecordUnsolicited(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Hour() != t.windowStartHour {
		t.unsolicitedCount = 0
		t.windowStartHour = now.Hour()
	}
	t.unsolicitedCount++
	t.lastUnsolicited = now
	logging.Energy("unsolicited initiation %d/%d this hour", t.unsolicitedCount, t.budget.MaxPerHour)
}

// quiet reports whether an hour falls inside the quiet window. A window with
// start > end spans midnight.
func (b Budget) quiet(hour int) bool {
	if b.QuietHoursStart == b.QuietHoursEnd {
		return false // zero-width window
	}
	if b.QuietHoursStart > b.QuietHoursEnd {
		return hour >= b.QuietHoursStart || hour < b.QuietHoursEnd
	}
	return hour >= b.QuietHoursStart && hour < b.QuietHoursEnd
}

// TickDelay derives the adaptive heartbeat delay from the current energy:
// clamp(120000 - energy*1000, 10000, 120000) milliseconds. High energy means
// a faster heartbeat.
func (t *Tracker) TickDelay() time.Duration {
	t.mu.Lock()
	energy := t.energy
	t.mu.Unlock()

	d := maxTickDelay - time.Duration(energy)*time.Second
	if d < minTickDelay {
		d = minTickDelay
	}
	if d > maxTickDelay {
		d = maxTickDelay
	}
	return d
}

// SetBudget replaces the budget. Invalid budgets are rejected, the previous
// budget stays active.
func (t *Tracker) SetBudget(b Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budget = b
	return nil
}

// GetStatus returns a snapshot for the read side.
func (t *Tracker) GetStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Energy:           t.energy,
		UnsolicitedCount: t.unsolicitedCount,
		WindowStartHour:  t.windowStartHour,
		Budget:           t.budget,
	}
}
