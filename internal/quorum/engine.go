package quorum

import (
	"fmt"

	"vigil/internal/logging"
	"vigil/internal/signal"
)

// Rule is a named combination of predicates with a trigger threshold. A rule
// triggers for an ingestion event when at least Threshold of its predicates
// evaluate true against the new signal and the window snapshot.
type Rule struct {
	Name       string          `yaml:"name"`
	Predicates []string        `yaml:"predicates"`
	Threshold  int             `yaml:"threshold"`
	Severity   signal.Severity `yaml:"severity"`
	ActionTag  string          `yaml:"action_tag"`
}

// Validate checks a rule's shape at the configuration boundary.
func (r Rule) Validate(reg *Registry) error {
	if r.Name == "" {
		return fmt.Errorf("rule name required")
	}
	if len(r.Predicates) == 0 {
		return fmt.Errorf("rule %q: at least one predicate required", r.Name)
	}
	if r.Threshold < 1 || r.Threshold > len(r.Predicates) {
		return fmt.Errorf("rule %q: threshold %d out of range [1,%d]",
			r.Name, r.Threshold, len(r.Predicates))
	}
	for _, p := range r.Predicates {
		if !reg.Known(p) {
			// Unknown predicates are legal (fail closed at eval time) but a
			// rule that can never reach threshold is a config mistake.
			logging.Get(logging.CategoryQuorum).Warn("rule %q references unknown predicate %q", r.Name, p)
		}
	}
	return nil
}

// Triggered describes one rule that fired for an ingestion event.
type Triggered struct {
	Rule      Rule
	Satisfied int // how many predicates evaluated true
}

// Engine evaluates a configured rule set against the signal bus.
type Engine struct {
	rules    []Rule
	registry *Registry
	bus      *signal.Bus
}

// NewEngine creates an engine over the given bus. A nil registry gets the
// built-in predicate set.
func NewEngine(bus *signal.Bus, rules []Rule, registry *Registry) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Engine{rules: rules, registry: registry, bus: bus}
}

// DefaultRules returns the stock rule set derived from the source analyzers.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "code_quality_concern",
			Predicates: []string{"duplication_high", "complexity_high"},
			Threshold:  2,
			Severity:   signal.SeverityHigh,
			ActionTag:  "refactor",
		},
		{
			Name:       "test_gap",
			Predicates: []string{"coverage_low"},
			Threshold:  1,
			Severity:   signal.SeverityMedium,
			ActionTag:  "generate_tests",
		},
		{
			Name:       "housekeeping",
			Predicates: []string{"todos_high", "save_burst"},
			Threshold:  1,
			Severity:   signal.SeverityLow,
			ActionTag:  "cleanup",
		},
	}
}

// Registry exposes the predicate registry (for config validation and custom
// predicate registration).
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Rules returns the configured rule set.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule independently against the new signal and a single
// window snapshot, returning all qualifying rules. There is no short-circuit
// and no priority ordering: one ingestion can trigger zero, one, or many
// rules.
func (e *Engine) Evaluate(newSignal signal.Signal) []Triggered {
	window := e.bus.Snapshot()

	var fired []Triggered
	for _, rule := range e.rules {
		satisfied := 0
		for _, name := range rule.Predicates {
			if e.registry.Eval(name, newSignal, window) {
				satisfied++
			}
		}
		if satisfied >= rule.Threshold {
			fired = append(fired, Triggered{Rule: rule, Satisfied: satisfied})
			logging.Quorum("rule %q triggered (%d/%d predicates, threshold %d)",
				rule.Name, satisfied, len(rule.Predicates), rule.Threshold)
		}
	}
	return fired
}
