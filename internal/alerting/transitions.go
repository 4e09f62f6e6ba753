package alerting

import (
	"slices"

	"github.com/velociti/velociti/internal/datastore/entities"
)

// transitions lists the statuses reachable from each status. Dismissed is terminal.
var transitions = map[string][]string{
	entities.StatusActive:    {entities.StatusDismissed, entities.StatusEscalated},
	entities.StatusEscalated: {entities.StatusDismissed},
	entities.StatusDismissed: {},
}

// CanTransition reports whether an alert may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Transitions returns a copy of the transition table.
func Transitions() map[string][]string {
	out := make(map[string][]string, len(transitions))
	for from, to := range transitions {
		out[from] = slices.Clone(to)
	}
	return out
}
