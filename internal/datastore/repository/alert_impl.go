package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
	"gorm.io/gorm"
)

// alertRepository implements AlertRepository.
type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) filtered(ctx context.Context, filter AlertFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&entities.Alert{})
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.AgentID != "" {
		query = query.Where("agent_id = ?", filter.AgentID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	return query
}

// List returns alerts newest first, capped at filter.Limit when positive.
func (r *alertRepository) List(ctx context.Context, filter AlertFilter) ([]entities.Alert, error) {
	alerts := make([]entities.Alert, 0)
	query := r.filtered(ctx, filter).Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Get returns a single alert. Returns ErrAlertNotFound if it does not exist.
func (r *alertRepository) Get(ctx context.Context, id string) (*entities.Alert, error) {
	var alert entities.Alert
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return &alert, nil
}

// Create inserts an alert. The caller assigns the id.
func (r *alertRepository) Create(ctx context.Context, alert *entities.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("failed to create alert: missing alert ID")
	}
	if err := r.db.WithContext(ctx).Omit("Agent").Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and resolution time of an alert.
func (r *alertRepository) UpdateStatus(ctx context.Context, id, status string, resolvedAt *time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.Alert{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "resolved_at": resolvedAt})
	if result.Error != nil {
		return fmt.Errorf("failed to update alert %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Count returns the number of alerts matching the filter. Limit is ignored.
func (r *alertRepository) Count(ctx context.Context, filter AlertFilter) (int64, error) {
	var count int64
	if err := r.filtered(ctx, filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// HasRecent reports whether an alert for agentID and route exists since the given time.
func (r *alertRepository) HasRecent(ctx context.Context, agentID, route string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Alert{}).
		Where("agent_id = ? AND route = ? AND created_at >= ?", agentID, route, since).
		Limit(1).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check recent alerts for %s/%s: %w", agentID, route, err)
	}
	return count > 0, nil
}
