package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/datastore/entities"
)

func TestCreateAlert(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	before := time.Now()
	rec := api.do(t, http.MethodPost, "/api/alerts",
		`{"title":"X","priority":"critical","category":"network","agentId":"network"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	alert := decodeJSON[entities.Alert](t, rec)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, entities.StatusActive, alert.Status)
	assert.Equal(t, "network", alert.AgentID)
	assert.WithinDuration(t, before, alert.CreatedAt, 5*time.Second)
	assert.Nil(t, alert.ResolvedAt)
}

func TestCreateAlert_WithMetadata(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/alerts", `{
		"title": "Competitor undercut",
		"priority": "high",
		"category": "competitive",
		"agentId": "competitive",
		"route": "LHR-JFK",
		"confidence": 0.8,
		"metadata": {"kind": "competitive", "competitor": "BA", "competitor_price": 420, "our_price": 480, "price_gap_pct": 14.3}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	alert := decodeJSON[entities.Alert](t, rec)
	require.NotNil(t, alert.Route)
	assert.Equal(t, "LHR-JFK", *alert.Route)
	assert.Equal(t, entities.MetadataCompetitive, alert.Metadata.Kind)
	require.NotNil(t, alert.Metadata.Competitive)
	assert.Equal(t, "BA", alert.Metadata.Competitive.Competitor)
}

func TestCreateAlert_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"missing title", `{"priority":"high","category":"network","agentId":"network"}`},
		{"unknown priority", `{"title":"X","priority":"urgent","category":"network","agentId":"network"}`},
		{"unknown category", `{"title":"X","priority":"high","category":"cargo","agentId":"network"}`},
		{"unknown agent", `{"title":"X","priority":"high","category":"network","agentId":"ghost"}`},
		{"confidence above one", `{"title":"X","priority":"high","category":"network","agentId":"network","confidence":1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newTestAPI(t)

			rec := api.do(t, http.MethodPost, "/api/alerts", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeJSON[ErrorResponse](t, rec).Error)

			var count int64
			require.NoError(t, api.db.Model(&entities.Alert{}).Count(&count).Error)
			assert.Zero(t, count, "no row may be written on validation failure")
		})
	}
}

func TestListAlerts_LimitContract(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	for range 3 {
		api.createAlert(t, entities.PriorityHigh, "performance")
	}

	tests := []struct {
		query      string
		wantStatus int
		wantLen    int
	}{
		{"", http.StatusOK, 3},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=500", http.StatusOK, 3},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=-5", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/api/alerts"+tt.query, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Len(t, decodeJSON[[]entities.Alert](t, rec), tt.wantLen)
			}
		})
	}
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	n, err := parseLimit("")
	require.NoError(t, err)
	assert.Equal(t, alerting.DefaultListLimit, n)

	n, err = parseLimit("999")
	require.NoError(t, err)
	assert.Equal(t, alerting.MaxListLimit, n)

	_, err = parseLimit("1.5")
	assert.Error(t, err)
}

func TestListAlerts_PriorityFilter(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.createAlert(t, entities.PriorityCritical, "performance")
	api.createAlert(t, entities.PriorityLow, "performance")

	rec := api.do(t, http.MethodGet, "/api/alerts?priority=critical", "")
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := decodeJSON[[]entities.Alert](t, rec)
	require.Len(t, alerts, 1)
	assert.Equal(t, entities.PriorityCritical, alerts[0].Priority)

	rec = api.do(t, http.MethodGet, "/api/alerts?priority=urgent", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAlerts_EmptyIsArray(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUpdateAlertStatus(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	alert := api.createAlert(t, entities.PriorityHigh, "performance")
	path := "/api/alerts/" + alert.ID + "/status"

	rec := api.do(t, http.MethodPatch, path, `{"status":"escalated"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// Same status is a no-op, not an error.
	rec = api.do(t, http.MethodPatch, path, `{"status":"escalated"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodPatch, path, `{"status":"dismissed"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := api.svc.GetAlert(t.Context(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDismissed, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)

	// Dismissed is terminal.
	rec = api.do(t, http.MethodPatch, path, `{"status":"active"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAlertStatus_Errors(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	alert := api.createAlert(t, entities.PriorityHigh, "performance")

	rec := api.do(t, http.MethodPatch, "/api/alerts/does-not-exist/status", `{"status":"dismissed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/alerts/"+alert.ID+"/status", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/alerts/"+alert.ID+"/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status is required", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestGetAlertSchema(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/alerts/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)

	schema := decodeJSON[map[string]any](t, rec)
	assert.NotEmpty(t, schema)
	assert.Contains(t, rec.Body.String(), `"escalated"`)
}
