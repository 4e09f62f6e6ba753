// Package repository provides GORM backed data access for every aggregate.
// Each operation is a single statement; callers own any cross-row policy.
package repository

import (
	"context"
	"time"

	"github.com/velociti/velociti/internal/datastore/entities"
)

// AlertRepository handles alert persistence.
type AlertRepository interface {
	List(ctx context.Context, filter AlertFilter) ([]entities.Alert, error)
	Get(ctx context.Context, id string) (*entities.Alert, error)
	Create(ctx context.Context, alert *entities.Alert) error
	// UpdateStatus sets status and resolved_at. Returns ErrAlertNotFound for an unknown id.
	UpdateStatus(ctx context.Context, id, status string, resolvedAt *time.Time) error
	Count(ctx context.Context, filter AlertFilter) (int64, error)
	// HasRecent reports whether agentID raised an alert for route since the given time.
	HasRecent(ctx context.Context, agentID, route string, since time.Time) (bool, error)
}

// AlertFilter controls alert queries. Zero values mean unfiltered.
type AlertFilter struct {
	Priority string
	Status   string
	Category string
	AgentID  string
	Since    time.Time
	Limit    int
}

// AgentRepository handles agent persistence.
type AgentRepository interface {
	List(ctx context.Context) ([]entities.Agent, error)
	Get(ctx context.Context, id string) (*entities.Agent, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Upsert inserts the agent or refreshes its descriptive fields, keeping counters.
	Upsert(ctx context.Context, agent *entities.Agent) error
	UpdateStatus(ctx context.Context, id, status string) error
	// RecordRun increments total_runs and sets last_run_at and accuracy.
	RecordRun(ctx context.Context, id string, at time.Time, accuracy float64) error
	IncrementAlertsGenerated(ctx context.Context, id string, n int) error
}

// FeedbackRepository handles analyst feedback.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *entities.Feedback) error
	ListByAlert(ctx context.Context, alertID string) ([]entities.Feedback, error)
	StatsByAgent(ctx context.Context) (map[string]FeedbackStats, error)
	Count(ctx context.Context) (int64, error)
}

// FeedbackStats aggregates feedback per agent.
type FeedbackStats struct {
	AgentID       string  `json:"agent_id"`
	Count         int64   `json:"feedback_count"`
	AverageRating float64 `json:"average_rating"`
}

// RoutePerformanceRepository handles daily route snapshots.
type RoutePerformanceRepository interface {
	// Upsert writes one snapshot per (route, date), replacing metric values.
	Upsert(ctx context.Context, rows ...entities.RoutePerformance) error
	List(ctx context.Context, filter RoutePerformanceFilter) ([]entities.RoutePerformance, error)
	// LatestDate returns the most recent snapshot date, or "" when empty.
	LatestDate(ctx context.Context) (string, error)
	ListByDate(ctx context.Context, date string) ([]entities.RoutePerformance, error)
	// Averages returns mean yield and load factor for one date.
	Averages(ctx context.Context, date string) (NetworkAverages, error)
	// History returns the newest days snapshots for route, newest first.
	History(ctx context.Context, route string, days int) ([]entities.RoutePerformance, error)
}

// RoutePerformanceFilter controls snapshot listing.
type RoutePerformanceFilter struct {
	Route string
	From  string
	To    string
	Limit int
}

// NetworkAverages holds network-wide means for one snapshot date.
type NetworkAverages struct {
	Date       string
	Yield      float64
	LoadFactor float64
	Routes     int64
}

// ActionAgentRepository handles agent scheduling, executions and daily metrics.
type ActionAgentRepository interface {
	GetConfig(ctx context.Context, agentID string) (*entities.ActionAgentConfig, error)
	ListConfigs(ctx context.Context, enabledOnly bool) ([]entities.ActionAgentConfig, error)
	SaveConfig(ctx context.Context, cfg *entities.ActionAgentConfig) error

	StartExecution(ctx context.Context, exec *entities.ActionAgentExecution) error
	FinishExecution(ctx context.Context, exec *entities.ActionAgentExecution) error
	ListExecutions(ctx context.Context, agentID string, limit int) ([]entities.ActionAgentExecution, error)

	// RecordMetric adds one run to the (agent, date) row, creating it if needed.
	RecordMetric(ctx context.Context, agentID, date string, alerts int, duration time.Duration) error
	ListMetrics(ctx context.Context, agentID string, days int) ([]entities.ActionAgentMetric, error)
}
