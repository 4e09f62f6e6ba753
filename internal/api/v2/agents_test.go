package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/agents"
	"github.com/velociti/velociti/internal/datastore/entities"
)

func TestListAgents(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeJSON[[]entities.Agent](t, rec)
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"competitive", "performance", "network"}, ids)
}

func TestGetAgent(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/agents/network", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entities.AgentStatusLearning, decodeJSON[entities.Agent](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/api/agents/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAgentStatus(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodPatch, "/api/agents/network/status", `{"status":"active"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	agent, err := api.svc.GetAgent(t.Context(), "network")
	require.NoError(t, err)
	assert.Equal(t, entities.AgentStatusActive, agent.Status)

	rec = api.do(t, http.MethodPatch, "/api/agents/network/status", `{"status":"retired"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/agents/ghost/status", `{"status":"active"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitFeedback(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, withIdentity("analyst-7"))
	alert := api.createAlert(t, entities.PriorityHigh, "performance")

	rec := api.do(t, http.MethodPost, "/api/agents/performance/feedback",
		`{"alertId":"`+alert.ID+`","rating":5,"actionTaken":false,"comment":"spot on"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/alerts/"+alert.ID+"/feedback", "")
	require.Equal(t, http.StatusOK, rec.Code)
	feedback := decodeJSON[[]entities.Feedback](t, rec)
	require.Len(t, feedback, 1)
	assert.Equal(t, "performance", feedback[0].AgentID)
	assert.Equal(t, "analyst-7", feedback[0].UserID)
	assert.Equal(t, 5, feedback[0].Rating)
	require.NotNil(t, feedback[0].Comment)
	assert.Equal(t, "spot on", *feedback[0].Comment)
}

func TestSubmitFeedback_AnonymousWithoutIdentity(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	alert := api.createAlert(t, entities.PriorityLow, "competitive")

	rec := api.do(t, http.MethodPost, "/api/agents/competitive/feedback",
		`{"alertId":"`+alert.ID+`","rating":3,"actionTaken":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	var fb entities.Feedback
	require.NoError(t, api.db.First(&fb).Error)
	assert.Equal(t, AnonymousUser, fb.UserID)
	assert.True(t, fb.ActionTaken)
}

func TestSubmitFeedback_Rejected(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	alert := api.createAlert(t, entities.PriorityHigh, "performance")

	tests := []struct {
		name string
		path string
		body string
	}{
		{"rating zero", "/api/agents/performance/feedback", `{"alertId":"` + alert.ID + `","rating":0}`},
		{"rating six", "/api/agents/performance/feedback", `{"alertId":"` + alert.ID + `","rating":6}`},
		{"unknown alert", "/api/agents/performance/feedback", `{"alertId":"missing","rating":4}`},
		{"missing alert id", "/api/agents/performance/feedback", `{"rating":4}`},
		{"agent mismatch", "/api/agents/network/feedback", `{"alertId":"` + alert.ID + `","rating":4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	var count int64
	require.NoError(t, api.db.Model(&entities.Feedback{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRunAgent(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	require.NoError(t, api.routes.Upsert(t.Context(),
		entities.RoutePerformance{Route: "LHR-JFK", Date: "2026-03-10", LoadFactor: 0.8, OurPrice: 560, CompetitorPrice: 500},
		entities.RoutePerformance{Route: "LHR-DXB", Date: "2026-03-10", LoadFactor: 0.8, OurPrice: 410, CompetitorPrice: 400},
	))

	rec := api.do(t, http.MethodPost, "/api/agents/competitive/run", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeJSON[agents.RunResult](t, rec)
	assert.Equal(t, entities.ExecutionSucceeded, result.Status)
	assert.Equal(t, 2, result.RoutesScanned)
	assert.Equal(t, 1, result.AlertsCreated)
	require.Len(t, result.AlertIDs, 1)

	rec = api.do(t, http.MethodGet, "/api/alerts?priority=high", "")
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := decodeJSON[[]entities.Alert](t, rec)
	require.Len(t, alerts, 1)
	assert.Equal(t, result.AlertIDs[0], alerts[0].ID)
}

func TestRunAgent_Rejections(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/agents/ghost/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusNoContent,
		api.do(t, http.MethodPatch, "/api/agents/performance/status", `{"status":"maintenance"}`).Code)
	rec = api.do(t, http.MethodPost, "/api/agents/performance/run", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunAgent_NoRunner(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, func(d *Dependencies) { d.Runner = nil })
	rec := api.do(t, http.MethodPost, "/api/agents/competitive/run", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
