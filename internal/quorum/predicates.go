// Package quorum implements the quorum engine: named rules made of predicate
// lists with a trigger threshold, evaluated against each newly ingested
// signal and the rolling signal window.
package quorum

import (
	"sync"
	"time"

	"vigil/internal/logging"
	"vigil/internal/signal"
)

// Predicate is a pure function of the new signal and a read-only window
// snapshot. Predicates must not mutate either argument. Signal-scoped
// predicates ignore the window; window-scoped predicates scan it.
type Predicate func(sig signal.Signal, window []signal.Signal) bool

// Registry maps predicate names to implementations. Lookup of an unknown
// name evaluates as never-true: fail closed, not fatal.
type Registry struct {
	mu    sync.RWMutex
	preds map[string]Predicate

	warnedMu sync.Mutex
	warned   map[string]bool // unknown names already logged
}

// NewRegistry returns a registry pre-loaded with the built-in predicates.
func NewRegistry() *Registry {
	r := &Registry{
		preds:  make(map[string]Predicate),
		warned: make(map[string]bool),
	}
	for name, p := range builtins() {
		r.preds[name] = p
	}
	return r
}

// Register adds or replaces a predicate.
func (r *Registry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preds[name] = p
}

// Eval runs the named predicate. Unknown names return false; the miss is
// logged once per name.
func (r *Registry) Eval(name string, sig signal.Signal, window []signal.Signal) bool {
	r.mu.RLock()
	p, ok := r.preds[name]
	r.mu.RUnlock()

	if !ok {
		r.warnedMu.Lock()
		if !r.warned[name] {
			r.warned[name] = true
			logging.Get(logging.CategoryQuorum).Warn("unknown predicate %q treated as false", name)
		}
		r.warnedMu.Unlock()
		return false
	}
	return p(sig, window)
}

// Known reports whether a predicate name is registered. Used for config
// validation at the boundary rather than at evaluation time.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.preds[name]
	return ok
}

// Built-in predicate thresholds, carried over from the source analyzers.
const (
	duplicationLimit = 5
	complexityLimit  = 50
	coverageFloor    = 0.5
	todoLimit        = 2
	saveBurstCount   = 5
	saveBurstWindow  = time.Hour
)

func builtins() map[string]Predicate {
	return map[string]Predicate{
		// Signal-scoped: inspect the new signal's analysis payload.
		"duplication_high": func(sig signal.Signal, _ []signal.Signal) bool {
			v, ok := sig.Number("duplicationScore")
			return ok && v > duplicationLimit
		},
		"complexity_high": func(sig signal.Signal, _ []signal.Signal) bool {
			v, ok := sig.Number("complexityScore")
			return ok && v > complexityLimit
		},
		"coverage_low": func(sig signal.Signal, _ []signal.Signal) bool {
			v, ok := sig.Number("coverageRatio")
			return ok && v < coverageFloor
		},
		"todos_high": func(sig signal.Signal, _ []signal.Signal) bool {
			v, ok := sig.Number("todoCount")
			return ok && v > todoLimit
		},
		"severity_high": func(sig signal.Signal, _ []signal.Signal) bool {
			return sig.Severity == signal.SeverityHigh
		},

		// Window-scoped: scan the rolling buffer.
		"save_burst": func(_ signal.Signal, window []signal.Signal) bool {
			cutoff := time.Now().Add(-saveBurstWindow)
			saves := 0
			for _, s := range window {
				if s.Kind == signal.KindSave && s.ObservedAt.After(cutoff) {
					saves++
				}
			}
			return saves > saveBurstCount
		},
		"idle_period": func(_ signal.Signal, window []signal.Signal) bool {
			if len(window) == 0 {
				return false
			}
			return window[len(window)-1].Kind == signal.KindIdle
		},
	}
}
