// Package dispatch implements the subtask dispatcher and reconciler. An
// accepted card is decomposed into independently executable subtasks, run
// under bounded concurrency through an external action executor, and the
// terminal outcomes are reconciled into a single parent result.
package dispatch

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil/internal/card"
)

// SubtaskStatus is the subtask lifecycle state.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskRunning   SubtaskStatus = "running"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
)

// terminal reports whether a status is terminal.
func (s SubtaskStatus) terminal() bool {
	return s == SubtaskCompleted || s == SubtaskFailed
}

// Subtask is one independently executable unit owned exclusively by its
// parent card. Subtasks exist from dispatch until the parent reconciles.
type Subtask struct {
	ID          string
	ParentID    string
	Description string
	ActionTag   string
	Params      map[string]any
	Status      SubtaskStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Result      string
}

// archetype maps a constraint keyword to a canned subtask shape.
type archetype struct {
	keyword     string
	description string
	actionTag   string
}

// Decomposition archetypes, checked in order against each inferred
// constraint.
var archetypes = []archetype{
	{"test", "Generate tests", "generate_tests"},
	{"complex", "Refactor for lower complexity", "refactor"},
	{"duplicat", "Deduplicate repeated code", "deduplicate"},
}

// Decompose turns a card's underlying specification into an ordered subtask
// list. Declared constraints are matched against the archetype keywords; a
// card whose constraints match nothing yields exactly one generic "execute
// task" subtask.
func Decompose(c card.Card) []*Subtask {
	params := map[string]any{
		"goal":   c.Spec.Goal,
		"inputs": c.Spec.Inputs,
	}

	var subs []*Subtask
	for _, constraint := range c.Spec.ConstraintsInferred {
		lowered := strings.ToLower(constraint)
		for _, a := range archetypes {
			if strings.Contains(lowered, a.keyword) {
				subs = append(subs, &Subtask{
					ID:          uuid.New().String(),
					ParentID:    c.ID,
					Description: a.description + ": " + constraint,
					ActionTag:   a.actionTag,
					Params:      params,
					Status:      SubtaskPending,
				})
				break
			}
		}
	}

	if len(subs) == 0 {
		subs = []*Subtask{{
			ID:          uuid.New().String(),
			ParentID:    c.ID,
			Description: "Execute task: " + c.Title,
			ActionTag:   "execute",
			Params:      params,
			Status:      SubtaskPending,
		}}
	}
	return subs
}
