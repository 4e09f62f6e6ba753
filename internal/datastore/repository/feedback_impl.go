package repository

import (
	"context"
	"fmt"

	"github.com/velociti/velociti/internal/datastore/entities"
	"gorm.io/gorm"
)

// feedbackRepository implements FeedbackRepository.
type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

// Create inserts a feedback row.
func (r *feedbackRepository) Create(ctx context.Context, feedback *entities.Feedback) error {
	if err := r.db.WithContext(ctx).Omit("Alert", "Agent").Create(feedback).Error; err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// ListByAlert returns feedback for one alert, oldest first.
func (r *feedbackRepository) ListByAlert(ctx context.Context, alertID string) ([]entities.Feedback, error) {
	items := make([]entities.Feedback, 0)
	if err := r.db.WithContext(ctx).Where("alert_id = ?", alertID).Order("created_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list feedback for alert %s: %w", alertID, err)
	}
	return items, nil
}

// StatsByAgent returns feedback count and mean rating keyed by agent id.
func (r *feedbackRepository) StatsByAgent(ctx context.Context) (map[string]FeedbackStats, error) {
	var rows []FeedbackStats
	err := r.db.WithContext(ctx).Model(&entities.Feedback{}).
		Select("agent_id, COUNT(*) AS count, AVG(rating) AS average_rating").
		Group("agent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	stats := make(map[string]FeedbackStats, len(rows))
	for _, row := range rows {
		stats[row.AgentID] = row
	}
	return stats, nil
}

// Count returns the total number of feedback rows.
func (r *feedbackRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Feedback{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}
