package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/logger"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Environment: conf.EnvTest,
		Log:         conf.LogSettings{Level: "error"},
		Server: conf.ServerSettings{
			Host:           "127.0.0.1",
			Port:           0,
			AllowedOrigins: []string{"http://localhost:5173"},
			SessionSecret:  "test-secret",
			ShutdownWait:   conf.Duration(2 * time.Second),
		},
		Database: conf.DatabaseSettings{
			Driver: "sqlite",
			URL:    filepath.Join(t.TempDir(), "velociti.db"),
		},
		Realtime: conf.RealtimeSettings{
			PingInterval: conf.Duration(time.Second),
			PongWait:     conf.Duration(2 * time.Second),
			WriteWait:    conf.Duration(time.Second),
		},
		LLM:       conf.LLMSettings{DefaultProvider: "canned"},
		Agents:    conf.AgentSettings{SeedOnStartup: true, Cooldown: conf.Duration(time.Hour)},
		Dashboard: conf.DashboardSettings{RecentAlerts: 3},
	}
}

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := &conf.Settings{Environment: conf.EnvProduction}
	NewLogger(s, &buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	s = &conf.Settings{Environment: conf.EnvDevelopment, Log: conf.LogSettings{Level: "warn"}}
	lg := NewLogger(s, &buf)
	lg.Info("dropped")
	lg.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestNew_SeedsAndServes(t *testing.T) {
	t.Parallel()

	a, err := New(t.Context(), testSettings(t), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	agents, err := a.Service.ListAgents(t.Context())
	require.NoError(t, err)
	assert.Len(t, agents, 3)

	latest, err := a.Store.Routes.LatestDate(t.Context())
	require.NoError(t, err)
	assert.NotEmpty(t, latest)
	rows, err := a.Store.Routes.List(t.Context(), repository.RoutePerformanceFilter{Limit: 500})
	require.NoError(t, err)
	assert.NotEmpty(t, rows)

	assert.Nil(t, a.Scheduler, "scheduler is off unless enabled")

	rec := httptest.NewRecorder()
	a.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())
}

func TestStore_SeedDefaultsIsIdempotent(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	store, err := OpenStore(t.Context(), s, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Manager.Migrate(t.Context()))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SeedDefaults(t.Context(), now))
	first, err := store.Routes.List(t.Context(), repository.RoutePerformanceFilter{Limit: 500})
	require.NoError(t, err)

	require.NoError(t, store.SeedDefaults(t.Context(), now.AddDate(0, 0, 1)))
	second, err := store.Routes.List(t.Context(), repository.RoutePerformanceFilter{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, second, len(first), "existing history is left alone")

	latest, err := store.Routes.LatestDate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", latest)
}

func TestNew_RejectsBadDatabase(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Database.Driver = "oracle"
	_, err := New(t.Context(), s, logger.NewNop())
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Agents.Schedule = true
	s.Agents.Tick = conf.Duration(time.Hour)
	s.Agents.RunTimeout = conf.Duration(time.Minute)

	a, err := New(t.Context(), s, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.Scheduler)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Server.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + a.Server.Addr().String() + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
