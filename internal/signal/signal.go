// Package signal implements the signal bus: a bounded, time-ordered store of
// recently observed signals from analyzers and environment event adapters.
// The bus is pure data - interpretation of signal contents belongs to the
// quorum engine.
package signal

import (
	"time"
)

// Severity classifies how serious a signal is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Well-known signal kinds emitted by the environment adapters.
const (
	KindAnalysis Kind = "analysis" // Analyzer output (duplication, complexity, coverage...)
	KindSave     Kind = "save"     // Artifact saved
	KindIdle     Kind = "idle"     // Operator idle
	KindTick     Kind = "tick"     // Heartbeat timer; evaluated but never stored
)

// Kind names the source category of a signal.
type Kind string

// Signal is a single timestamped observation. Signals are immutable once
// ingested; the Payload map must not be mutated after construction.
type Signal struct {
	Kind       Kind
	Payload    map[string]any
	Severity   Severity
	ObservedAt time.Time
}

// New builds a signal observed now.
func New(kind Kind, payload map[string]any, severity Severity) Signal {
	return Signal{
		Kind:       kind,
		Payload:    payload,
		Severity:   severity,
		ObservedAt: time.Now(),
	}
}

// Number extracts a numeric payload field. JSON decoding and hand-built
// payloads disagree about int vs float64, so both are accepted.
func (s Signal) Number(key string) (float64, bool) {
	v, ok := s.Payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
