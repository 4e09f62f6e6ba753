package entities

import "time"

// Feedback is an analyst's rating of an alert. Rows are never updated.
type Feedback struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AlertID      string    `gorm:"size:36;not null;index" json:"alert_id"`
	AgentID      string    `gorm:"size:64;not null;index" json:"agent_id"`
	UserID       string    `gorm:"size:100;not null" json:"user_id"`
	Rating       int       `gorm:"not null" json:"rating"`
	Comment      *string   `gorm:"type:text" json:"comment"`
	ActionTaken  bool      `gorm:"not null;default:false" json:"action_taken"`
	ActualImpact *float64  `json:"actual_impact"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	Alert        *Alert    `gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE" json:"-"`
	Agent        *Agent    `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (Feedback) TableName() string {
	return "alert_feedback"
}
