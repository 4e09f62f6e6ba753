package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/datastore/entities"
)

func TestService_DashboardSummary(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	require.NoError(t, f.db.Model(&entities.Agent{}).Where("id = ?", "competitive").Update("accuracy", 90.0).Error)
	require.NoError(t, f.db.Model(&entities.Agent{}).Where("id = ?", "performance").Update("accuracy", 70.0).Error)

	require.NoError(t, f.repos.Routes.Upsert(ctx,
		entities.RoutePerformance{Route: "LHR-JFK", Date: "2026-03-09", LoadFactor: 0.5, Yield: 0.5},
		entities.RoutePerformance{Route: "LHR-JFK", Date: "2026-03-10", LoadFactor: 0.8, Yield: 0.12},
		entities.RoutePerformance{Route: "LHR-DXB", Date: "2026-03-10", LoadFactor: 0.9, Yield: 0.14},
	))

	var ids []string
	for i := range 7 {
		in := validInput()
		if i < 2 {
			in.Priority = entities.PriorityCritical
		}
		f.svc.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Minute) }
		a, err := f.svc.CreateAlert(ctx, in)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	require.NoError(t, f.svc.UpdateAlertStatus(ctx, ids[0], entities.StatusDismissed))
	_, err := f.svc.SubmitFeedback(ctx, FeedbackInput{AlertID: ids[1], Rating: 5})
	require.NoError(t, err)
	_, err = f.svc.SubmitFeedback(ctx, FeedbackInput{AlertID: ids[2], Rating: 3})
	require.NoError(t, err)

	summary, err := f.svc.DashboardSummary(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(7), summary.TotalAlerts)
	assert.Equal(t, int64(2), summary.CriticalAlerts)
	assert.Equal(t, int64(6), summary.ActiveAlerts)
	require.Len(t, summary.RecentAlerts, RecentAlertCount)
	assert.Equal(t, ids[6], summary.RecentAlerts[0].ID)

	assert.Equal(t, "2026-03-10", summary.Metrics.SnapshotDate)
	assert.InDelta(t, 0.85, summary.Metrics.LoadFactor, 1e-9)
	assert.InDelta(t, 0.13, summary.Metrics.NetworkYield, 1e-9)
	assert.InDelta(t, 80.0, summary.Metrics.AgentAccuracy, 1e-9)

	require.Len(t, summary.Agents, 2)
	for _, a := range summary.Agents {
		if a.ID == "competitive" {
			assert.Equal(t, int64(2), a.FeedbackCount)
			assert.InDelta(t, 4.0, a.AverageRating, 1e-9)
		} else {
			assert.Zero(t, a.FeedbackCount)
		}
	}
}

func TestService_DashboardSummaryEmpty(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	summary, err := f.svc.DashboardSummary(t.Context())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalAlerts)
	assert.Empty(t, summary.RecentAlerts)
	assert.Empty(t, summary.Metrics.SnapshotDate)
	assert.Zero(t, summary.Metrics.LoadFactor)
}

func TestService_DashboardSummaryCacheInvalidatedOnWrite(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, WithSummaryTTL(time.Hour))
	ctx := t.Context()

	first, err := f.svc.DashboardSummary(ctx)
	require.NoError(t, err)
	again, err := f.svc.DashboardSummary(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again, "served from cache")

	_, err = f.svc.CreateAlert(ctx, validInput())
	require.NoError(t, err)

	fresh, err := f.svc.DashboardSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.TotalAlerts)
}
