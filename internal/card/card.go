// Package card implements the intent card lifecycle: proposed tasks created
// from quorum triggers or explicit requests, moving through a guarded state
// machine until accepted, deferred, dismissed, or completed.
package card

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Impact classifies how much a card matters to the operator.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Status is the card lifecycle state. A card is in exactly one status at any
// time; status transitions are the only permitted mutation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDeferred   Status = "deferred"
	StatusDismissed  Status = "dismissed"
	StatusCompleted  Status = "completed"
)

// TaskSpec is the shape produced by the external specification-generation
// collaborator. Only the fields the engine consumes are modeled.
type TaskSpec struct {
	Goal                string
	Risk                string // low/medium/high
	Priority            string // low/medium/high
	EstimatedCost       string
	Inputs              []string
	Outputs             []string
	ConstraintsInferred []string
}

// Card is a proposed, trackable task.
type Card struct {
	ID            string
	Title         string
	Description   string
	Impact        Impact
	Cost          string
	Plan          []string
	Spec          TaskSpec
	Status        Status
	Failed        bool // reconciliation failed; card stays visible
	CreatedAt     time.Time
	DeferredUntil time.Time
}

// levelScore maps low/medium/high to 1/2/3; unknown values count medium.
func levelScore(level string) int {
	switch strings.ToLower(level) {
	case "low":
		return 1
	case "high":
		return 3
	default:
		return 2
	}
}

// deriveImpact computes impact from a risk x priority score against fixed
// thresholds: score >= 6 is high, >= 3 medium, else low.
func deriveImpact(spec TaskSpec) Impact {
	score := levelScore(spec.Risk) * levelScore(spec.Priority)
	switch {
	case score >= 6:
		return ImpactHigh
	case score >= 3:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// buildPlan renders a human-readable plan from the spec's inputs,
// constraints, and outputs, falling back to a generic one-liner when the
// spec carries none of these.
func buildPlan(spec TaskSpec) []string {
	var plan []string
	for _, in := range spec.Inputs {
		plan = append(plan, fmt.Sprintf("Review %s", in))
	}
	for _, c := range spec.ConstraintsInferred {
		plan = append(plan, fmt.Sprintf("Address: %s", c))
	}
	for _, out := range spec.Outputs {
		plan = append(plan, fmt.Sprintf("Produce %s", out))
	}
	if len(plan) == 0 {
		plan = []string{fmt.Sprintf("Execute: %s", spec.Goal)}
	}
	return plan
}

// newCard builds a pending card from a task spec.
func newCard(spec TaskSpec) *Card {
	title := spec.Goal
	if title == "" {
		title = "Untitled task"
	}
	return &Card{
		ID:          uuid.New().String(),
		Title:       title,
		Description: spec.Goal,
		Impact:      deriveImpact(spec),
		Cost:        spec.EstimatedCost,
		Plan:        buildPlan(spec),
		Spec:        spec,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}
