// Package focus implements the focus mode controller: a single active named
// profile governing interruption frequency, narration, auto-execution, and
// subtask concurrency. Other components read the active profile; the
// controller never mutates them.
package focus

import (
	"fmt"
	"sort"
	"sync"

	"vigil/internal/card"
	"vigil/internal/logging"
)

// InterruptFrequency controls how eagerly proposals are surfaced.
type InterruptFrequency string

const (
	InterruptNone InterruptFrequency = "none"
	InterruptLow  InterruptFrequency = "low"
	InterruptHigh InterruptFrequency = "high"
)

// Profile is one named focus mode. Profiles are fixed at construction; only
// which profile is active changes at runtime.
type Profile struct {
	Name               string
	InterruptFrequency InterruptFrequency
	NarrationEnabled   bool
	AutoExecute        bool
	StepByStep         bool
	BatchSize          int
}

// ErrUnknownMode is returned by SetMode for names outside the fixed set.
// The previously active mode stays in effect.
var ErrUnknownMode = fmt.Errorf("unknown mode")

// DefaultModeName is the mode active at startup.
const DefaultModeName = "background"

// Controller holds exactly one active profile. Switching is atomic and
// immediately visible to all readers.
type Controller struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	active   string
}

// NewController creates a controller with the fixed profile set, starting in
// the background mode.
func NewController() *Controller {
	profiles := map[string]Profile{
		"pair": {
			Name:               "pair",
			InterruptFrequency: InterruptHigh,
			NarrationEnabled:   true,
			AutoExecute:        false,
			StepByStep:         true,
			BatchSize:          1,
		},
		"background": {
			Name:               "background",
			InterruptFrequency: InterruptLow,
			NarrationEnabled:   false,
			AutoExecute:        true,
			StepByStep:         false,
			BatchSize:          2,
		},
		"solo_batches": {
			Name:               "solo_batches",
			InterruptFrequency: InterruptNone,
			NarrationEnabled:   false,
			AutoExecute:        true,
			StepByStep:         false,
			BatchSize:          4,
		},
	}
	return &Controller{profiles: profiles, active: DefaultModeName}
}

// SetMode activates the named profile. Unknown names return ErrUnknownMode
// and leave the previous mode active.
func (c *Controller) SetMode(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
	if c.active != name {
		logging.Heartbeat("focus mode %s -> %s", c.active, name)
	}
	c.active = name
	return nil
}

// Active returns the currently active profile by value.
func (c *Controller) Active() Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profiles[c.active]
}

// Modes lists the available mode names, sorted.
func (c *Controller) Modes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShouldInterrupt decides whether a newly proposed card warrants interrupting
// the operator under the active profile: none never interrupts, low only for
// high impact, high for high or medium impact.
func (c *Controller) ShouldInterrupt(cd card.Card) bool {
	switch c.Active().InterruptFrequency {
	case InterruptNone:
		return false
	case InterruptLow:
		return cd.Impact == card.ImpactHigh
	case InterruptHigh:
		return cd.Impact == card.ImpactHigh || cd.Impact == card.ImpactMedium
	}
	return false
}
