package alerting

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/datastore/repository"
	"golang.org/x/sync/errgroup"
)

const summaryCacheKey = "summary"

// DashboardSummary is the payload of the dashboard landing page.
type DashboardSummary struct {
	TotalAlerts    int64            `json:"total_alerts"`
	CriticalAlerts int64            `json:"critical_alerts"`
	ActiveAlerts   int64            `json:"active_alerts"`
	RecentAlerts   []entities.Alert `json:"recent_alerts"`
	Agents         []AgentSummary   `json:"agents"`
	Metrics        SummaryMetrics   `json:"metrics"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// AgentSummary is an agent with its feedback aggregate.
type AgentSummary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	Accuracy      float64 `json:"accuracy"`
	TotalRuns     int64   `json:"total_runs"`
	FeedbackCount int64   `json:"feedback_count"`
	AverageRating float64 `json:"average_rating"`
}

// SummaryMetrics holds network-wide figures. Yield and load factor average
// the most recent snapshot date.
type SummaryMetrics struct {
	NetworkYield  float64 `json:"network_yield"`
	LoadFactor    float64 `json:"load_factor"`
	AgentAccuracy float64 `json:"agent_accuracy"`
	SnapshotDate  string  `json:"snapshot_date,omitempty"`
}

// DashboardSummary computes the dashboard payload. Queries run concurrently;
// the first failure cancels the rest.
func (s *Service) DashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	if s.summary != nil {
		if cached, ok := s.summary.Get(summaryCacheKey); ok {
			return cached.(*DashboardSummary), nil
		}
	}

	out := &DashboardSummary{GeneratedAt: s.now().UTC()}
	var (
		agents []entities.Agent
		stats  map[string]repository.FeedbackStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalAlerts, err = s.repos.Alerts.Count(gctx, repository.AlertFilter{})
		return wrapSummaryErr(err, "count_alerts")
	})
	g.Go(func() (err error) {
		out.CriticalAlerts, err = s.repos.Alerts.Count(gctx, repository.AlertFilter{Priority: entities.PriorityCritical})
		return wrapSummaryErr(err, "count_critical_alerts")
	})
	g.Go(func() (err error) {
		out.ActiveAlerts, err = s.repos.Alerts.Count(gctx, repository.AlertFilter{Status: entities.StatusActive})
		return wrapSummaryErr(err, "count_active_alerts")
	})
	g.Go(func() (err error) {
		out.RecentAlerts, err = s.repos.Alerts.List(gctx, repository.AlertFilter{Limit: s.recent})
		return wrapSummaryErr(err, "recent_alerts")
	})
	g.Go(func() (err error) {
		agents, err = s.repos.Agents.List(gctx)
		return wrapSummaryErr(err, "list_agents")
	})
	g.Go(func() (err error) {
		stats, err = s.repos.Feedback.StatsByAgent(gctx)
		return wrapSummaryErr(err, "feedback_stats")
	})
	g.Go(func() error {
		date, err := s.repos.Routes.LatestDate(gctx)
		if err != nil || date == "" {
			return wrapSummaryErr(err, "latest_snapshot")
		}
		avg, err := s.repos.Routes.Averages(gctx, date)
		if err != nil {
			return wrapSummaryErr(err, "network_averages")
		}
		out.Metrics.NetworkYield = avg.Yield
		out.Metrics.LoadFactor = avg.LoadFactor
		out.Metrics.SnapshotDate = date
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Agents = make([]AgentSummary, 0, len(agents))
	var accuracy float64
	for i := range agents {
		a := &agents[i]
		st := stats[a.ID]
		out.Agents = append(out.Agents, AgentSummary{
			ID:            a.ID,
			Name:          a.Name,
			Status:        a.Status,
			Accuracy:      a.Accuracy,
			TotalRuns:     a.TotalRuns,
			FeedbackCount: st.Count,
			AverageRating: st.AverageRating,
		})
		accuracy += a.Accuracy
	}
	if len(agents) > 0 {
		out.Metrics.AgentAccuracy = accuracy / float64(len(agents))
	}

	if s.summary != nil {
		s.summary.Set(summaryCacheKey, out, cache.DefaultExpiration)
	}
	return out, nil
}

func wrapSummaryErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return databaseError(err, op)
}
