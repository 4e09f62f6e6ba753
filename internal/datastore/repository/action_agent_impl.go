package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// actionAgentRepository implements ActionAgentRepository.
type actionAgentRepository struct {
	db *gorm.DB
}

// NewActionAgentRepository creates a new ActionAgentRepository.
func NewActionAgentRepository(db *gorm.DB) ActionAgentRepository {
	return &actionAgentRepository{db: db}
}

// GetConfig returns the config of one agent. Returns ErrConfigNotFound if missing.
func (r *actionAgentRepository) GetConfig(ctx context.Context, agentID string) (*entities.ActionAgentConfig, error) {
	var cfg entities.ActionAgentConfig
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get config for agent %s: %w", agentID, err)
	}
	return &cfg, nil
}

// ListConfigs returns agent configs ordered by agent id.
func (r *actionAgentRepository) ListConfigs(ctx context.Context, enabledOnly bool) ([]entities.ActionAgentConfig, error) {
	configs := make([]entities.ActionAgentConfig, 0)
	query := r.db.WithContext(ctx).Order("agent_id ASC")
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	if err := query.Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to list action agent configs: %w", err)
	}
	return configs, nil
}

// SaveConfig creates or replaces an agent config.
func (r *actionAgentRepository) SaveConfig(ctx context.Context, cfg *entities.ActionAgentConfig) error {
	err := r.db.WithContext(ctx).Omit("Agent").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "schedule_interval", "thresholds", "updated_at"}),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to save config for agent %s: %w", cfg.AgentID, err)
	}
	return nil
}

// StartExecution inserts a running execution record.
func (r *actionAgentRepository) StartExecution(ctx context.Context, exec *entities.ActionAgentExecution) error {
	if exec.Status == "" {
		exec.Status = entities.ExecutionRunning
	}
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		return fmt.Errorf("failed to start execution for agent %s: %w", exec.AgentID, err)
	}
	return nil
}

// FinishExecution stores the outcome of an execution.
func (r *actionAgentRepository) FinishExecution(ctx context.Context, exec *entities.ActionAgentExecution) error {
	if exec.ID == 0 {
		return fmt.Errorf("failed to finish execution: missing execution ID")
	}
	err := r.db.WithContext(ctx).Model(exec).
		Select("finished_at", "status", "routes_scanned", "alerts_created", "error").
		Updates(exec).Error
	if err != nil {
		return fmt.Errorf("failed to finish execution %d: %w", exec.ID, err)
	}
	return nil
}

// ListExecutions returns the newest executions of an agent.
func (r *actionAgentRepository) ListExecutions(ctx context.Context, agentID string, limit int) ([]entities.ActionAgentExecution, error) {
	items := make([]entities.ActionAgentExecution, 0)
	query := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list executions for agent %s: %w", agentID, err)
	}
	return items, nil
}

// RecordMetric folds one run into the daily metrics row.
func (r *actionAgentRepository) RecordMetric(ctx context.Context, agentID, date string, alerts int, duration time.Duration) error {
	row := entities.ActionAgentMetric{
		AgentID:         agentID,
		Date:            date,
		Runs:            1,
		AlertsCreated:   int64(alerts),
		TotalDurationMs: duration.Milliseconds(),
	}
	table := row.TableName()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "agent_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"runs":              gorm.Expr(table+".runs + ?", 1),
			"alerts_created":    gorm.Expr(table+".alerts_created + ?", alerts),
			"total_duration_ms": gorm.Expr(table+".total_duration_ms + ?", duration.Milliseconds()),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record metric for agent %s on %s: %w", agentID, date, err)
	}
	return nil
}

// ListMetrics returns up to days daily rows for an agent, newest first.
func (r *actionAgentRepository) ListMetrics(ctx context.Context, agentID string, days int) ([]entities.ActionAgentMetric, error) {
	items := make([]entities.ActionAgentMetric, 0)
	query := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("date DESC")
	if days > 0 {
		query = query.Limit(days)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list metrics for agent %s: %w", agentID, err)
	}
	return items, nil
}
