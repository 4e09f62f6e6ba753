package alerting

import (
	"time"

	"github.com/velociti/velociti/internal/datastore/entities"
)

// IsSustained checks whether cond has held on each of the newest
// cond.SustainedDays snapshots and that those snapshots fall on consecutive
// dates. history must be ordered newest first, as returned by
// RoutePerformanceRepository.History. A gap in the dates breaks the run.
func IsSustained(cond *entities.ThresholdCondition, history []entities.RoutePerformance) bool {
	days := max(cond.SustainedDays, 1)
	if len(history) < days {
		return false
	}

	var prev time.Time
	for i := range days {
		date, err := time.Parse(entities.DateLayout, history[i].Date)
		if err != nil {
			return false
		}
		if i > 0 && !prev.AddDate(0, 0, -1).Equal(date) {
			return false
		}
		prev = date

		if !EvaluateCondition(cond, RouteProperties(&history[i])) {
			return false
		}
	}
	return true
}

// MaxSustainedDays returns the longest history any condition needs.
func MaxSustainedDays(conditions []entities.ThresholdCondition) int {
	n := 1
	for i := range conditions {
		n = max(n, conditions[i].SustainedDays)
	}
	return n
}
