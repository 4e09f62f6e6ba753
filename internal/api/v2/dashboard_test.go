package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
)

func TestGetDashboardSummary(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.createAlert(t, entities.PriorityCritical, "performance")
	api.createAlert(t, entities.PriorityLow, "competitive")
	require.NoError(t, api.routes.Upsert(t.Context(),
		entities.RoutePerformance{Route: "LHR-JFK", Date: "2026-03-10", LoadFactor: 0.8, Yield: 0.2},
		entities.RoutePerformance{Route: "LHR-BOS", Date: "2026-03-10", LoadFactor: 0.6, Yield: 0.1},
	))

	rec := api.do(t, http.MethodGet, "/api/dashboard/summary", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summary := decodeJSON[alerting.DashboardSummary](t, rec)
	assert.Equal(t, int64(2), summary.TotalAlerts)
	assert.Equal(t, int64(1), summary.CriticalAlerts)
	assert.Equal(t, int64(2), summary.ActiveAlerts)
	assert.Len(t, summary.RecentAlerts, 2)
	assert.Len(t, summary.Agents, 3)
	assert.InDelta(t, 0.7, summary.Metrics.LoadFactor, 1e-9)
	assert.InDelta(t, 0.15, summary.Metrics.NetworkYield, 1e-9)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       []apiOption
		wantStatus int
		wantBody   string
	}{
		{"database reachable", []apiOption{withHealth(nil)}, http.StatusOK, `{"status":"ok","database":"ok"}`},
		{"database down", []apiOption{withHealth(errors.NewStd("connection refused"))}, http.StatusServiceUnavailable, `{"status":"degraded","database":"unavailable"}`},
		{"no checker", nil, http.StatusOK, `{"status":"ok","database":"unknown"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newTestAPI(t, tt.opts...)

			rec := api.do(t, http.MethodGet, "/api/health", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
