package engine

import (
	"strings"

	"vigil/internal/card"
	"vigil/internal/quorum"
	"vigil/internal/signal"
)

// issue maps a rule action tag to the text the synthesized spec carries for
// it. Constraints deliberately reuse the dispatcher's decomposition keywords
// so a synthesized card breaks into matching subtasks.
type issue struct {
	summary    string
	constraint string
	output     string
}

var issuesByTag = map[string]issue{
	"refactor": {
		summary:    "elevated complexity and duplication",
		constraint: "reduce cyclomatic complexity and duplicated blocks",
		output:     "refactored code",
	},
	"generate_tests": {
		summary:    "insufficient test coverage",
		constraint: "raise test coverage above the floor",
		output:     "new tests",
	},
	"cleanup": {
		summary:    "accumulated housekeeping debt",
		constraint: "resolve outstanding TODO markers",
		output:     "cleanup changes",
	},
}

// synthesizeSpec builds a task spec locally from the rules a signal
// triggered. The external specification generator is the preferred source;
// this fallback keeps the engine able to propose work when the generator is
// unreachable.
func synthesizeSpec(trigs []quorum.Triggered, sig signal.Signal) card.TaskSpec {
	var (
		summaries   []string
		constraints []string
		outputs     []string
	)
	risk := signal.SeverityLow
	for _, t := range trigs {
		if severityRank(t.Rule.Severity) > severityRank(risk) {
			risk = t.Rule.Severity
		}
		is, ok := issuesByTag[t.Rule.ActionTag]
		if !ok {
			is = issue{
				summary:    t.Rule.Name,
				constraint: "address " + strings.ReplaceAll(t.Rule.Name, "_", " "),
				output:     "resolution for " + t.Rule.Name,
			}
		}
		summaries = append(summaries, is.summary)
		constraints = append(constraints, is.constraint)
		outputs = append(outputs, is.output)
	}

	priority := "medium"
	if len(trigs) >= 2 {
		priority = "high"
	}

	var inputs []string
	if p, ok := sig.Payload["path"].(string); ok && p != "" {
		inputs = append(inputs, p)
	}

	return card.TaskSpec{
		Goal:                "Improve code health: " + strings.Join(summaries, "; "),
		Risk:                string(risk),
		Priority:            priority,
		EstimatedCost:       estimateCost(len(trigs)),
		Inputs:              inputs,
		Outputs:             outputs,
		ConstraintsInferred: constraints,
	}
}

func severityRank(s signal.Severity) int {
	switch s {
	case signal.SeverityHigh:
		return 3
	case signal.SeverityMedium:
		return 2
	default:
		return 1
	}
}

// estimateCost is a coarse heuristic: more triggered rules means a broader
// change surface.
func estimateCost(ruleCount int) string {
	switch {
	case ruleCount >= 3:
		return "large"
	case ruleCount == 2:
		return "medium"
	default:
		return "small"
	}
}
