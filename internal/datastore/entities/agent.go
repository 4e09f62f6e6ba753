package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Agent statuses.
const (
	AgentStatusActive      = "active"
	AgentStatusLearning    = "learning"
	AgentStatusMaintenance = "maintenance"
)

// AgentStatuses lists every valid agent status.
var AgentStatuses = []string{AgentStatusActive, AgentStatusLearning, AgentStatusMaintenance}

// Agent is an analysis unit that produces alerts from route performance data.
type Agent struct {
	ID              string         `gorm:"primaryKey;size:64" json:"id"`
	Name            string         `gorm:"size:255;not null" json:"name"`
	Status          string         `gorm:"size:20;not null;default:'active';index" json:"status"`
	Accuracy        float64        `gorm:"not null;default:0" json:"accuracy"`
	TotalRuns       int64          `gorm:"not null;default:0" json:"total_runs"`
	AlertsGenerated int64          `gorm:"not null;default:0" json:"alerts_generated"`
	LastRunAt       *time.Time     `json:"last_run_at"`
	Configuration   datatypes.JSON `gorm:"type:text" json:"configuration,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Agent) TableName() string {
	return "agents"
}
