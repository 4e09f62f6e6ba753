package entities

import "time"

// Alert priorities, most urgent first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Alert categories.
const (
	CategoryCompetitive = "competitive"
	CategoryPerformance = "performance"
	CategoryNetwork     = "network"
)

// Alert statuses.
const (
	StatusActive    = "active"
	StatusDismissed = "dismissed"
	StatusEscalated = "escalated"
)

var (
	Priorities = []string{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
	Categories = []string{CategoryCompetitive, CategoryPerformance, CategoryNetwork}
	Statuses   = []string{StatusActive, StatusDismissed, StatusEscalated}
)

// PriorityRank orders priorities for threshold comparisons. Higher is more
// urgent; unknown priorities rank 0.
func PriorityRank(p string) int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Alert is a time-stamped insight raised by an agent.
type Alert struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Priority    string     `gorm:"size:20;not null;index" json:"priority"`
	Category    string     `gorm:"size:20;not null;index" json:"category"`
	Status      string     `gorm:"size:20;not null;default:'active';index" json:"status"`
	AgentID     string     `gorm:"size:64;not null;index" json:"agent_id"`
	Route       *string    `gorm:"size:20;index" json:"route"`
	Impact      *float64   `json:"impact"`
	Confidence  *float64   `json:"confidence"`
	Metadata    Metadata   `gorm:"type:text" json:"metadata"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Agent       *Agent     `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"agent,omitempty"`
}

// TableName returns the table name for GORM.
func (Alert) TableName() string {
	return "alerts"
}
