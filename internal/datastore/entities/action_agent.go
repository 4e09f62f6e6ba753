package entities

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Condition operators understood by the agent runner.
const (
	OperatorGreaterThan    = "greater_than"
	OperatorLessThan       = "less_than"
	OperatorGreaterOrEqual = "greater_or_equal"
	OperatorLessOrEqual    = "less_or_equal"
	OperatorIs             = "is"
	OperatorIsNot          = "is_not"
)

// Operators lists every supported condition operator.
var Operators = []string{
	OperatorGreaterThan, OperatorLessThan,
	OperatorGreaterOrEqual, OperatorLessOrEqual,
	OperatorIs, OperatorIsNot,
}

// ThresholdCondition compares one route metric against a value. All
// conditions of an agent use AND logic.
type ThresholdCondition struct {
	Property string `json:"property"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	// SustainedDays requires the condition to hold on this many consecutive
	// snapshot dates. 0 or 1 means the latest snapshot alone decides.
	SustainedDays int `json:"sustained_days,omitempty"`
}

// Thresholds is the rule set an action agent evaluates per route.
type Thresholds struct {
	Conditions []ThresholdCondition `json:"conditions"`
	Priority   string               `json:"priority"`
	// Category of raised alerts. Empty means the agent id when it names a category.
	Category      string `json:"category,omitempty"`
	CooldownHours int    `json:"cooldown_hours,omitempty"`
}

// ActionAgentConfig controls when and how an agent runs.
type ActionAgentConfig struct {
	AgentID          string                         `gorm:"primaryKey;size:64" json:"agent_id"`
	Enabled          bool                           `gorm:"not null" json:"enabled"`
	ScheduleInterval int                            `gorm:"column:schedule_interval;not null;default:3600" json:"schedule_interval"`
	Thresholds       datatypes.JSONType[Thresholds] `gorm:"type:text" json:"thresholds"`
	UpdatedAt        time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
	Agent            *Agent                         `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (ActionAgentConfig) TableName() string {
	return "action_agent_configs"
}

// Execution statuses.
const (
	ExecutionRunning   = "running"
	ExecutionSucceeded = "succeeded"
	ExecutionFailed    = "failed"
)

// ActionAgentExecution records one agent run.
type ActionAgentExecution struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	AgentID       string     `gorm:"size:64;not null;index:idx_execution_agent_started,priority:1" json:"agent_id"`
	StartedAt     time.Time  `gorm:"not null;index:idx_execution_agent_started,priority:2" json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	RoutesScanned int        `gorm:"not null;default:0" json:"routes_scanned"`
	AlertsCreated int        `gorm:"not null;default:0" json:"alerts_created"`
	Error         string     `gorm:"type:text" json:"error,omitempty"`
}

// TableName returns the table name for GORM.
func (ActionAgentExecution) TableName() string {
	return "action_agent_executions"
}

// Duration returns how long a finished execution took.
func (e *ActionAgentExecution) Duration() time.Duration {
	if e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// ActionAgentMetric aggregates runs per agent per day.
type ActionAgentMetric struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	AgentID         string  `gorm:"size:64;not null;uniqueIndex:idx_agent_metric_date,priority:1" json:"agent_id"`
	Date            string  `gorm:"size:10;not null;uniqueIndex:idx_agent_metric_date,priority:2" json:"date"`
	Runs            int64   `gorm:"not null;default:0" json:"runs"`
	AlertsCreated   int64   `gorm:"not null;default:0" json:"alerts_created"`
	TotalDurationMs int64   `gorm:"not null;default:0" json:"-"`
	AvgDurationMs   float64 `gorm:"-" json:"avg_duration_ms"`
}

// TableName returns the table name for GORM.
func (ActionAgentMetric) TableName() string {
	return "action_agent_metrics"
}

// AfterFind derives the average duration.
func (m *ActionAgentMetric) AfterFind(*gorm.DB) error {
	if m.Runs > 0 {
		m.AvgDurationMs = float64(m.TotalDurationMs) / float64(m.Runs)
	}
	return nil
}

// All returns every entity in migration order.
func All() []any {
	return []any{
		&Agent{},
		&Alert{},
		&Feedback{},
		&RoutePerformance{},
		&ActionAgentConfig{},
		&ActionAgentExecution{},
		&ActionAgentMetric{},
	}
}
