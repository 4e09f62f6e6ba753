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

// agentRepository implements AgentRepository.
type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

// List returns all agents ordered by id.
func (r *agentRepository) List(ctx context.Context) ([]entities.Agent, error) {
	agents := make([]entities.Agent, 0)
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// Get returns a single agent. Returns ErrAgentNotFound if it does not exist.
func (r *agentRepository) Get(ctx context.Context, id string) (*entities.Agent, error) {
	var agent entities.Agent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}
	return &agent, nil
}

// Exists reports whether an agent with id exists.
func (r *agentRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Agent{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check agent %s: %w", id, err)
	}
	return count > 0, nil
}

// Upsert inserts the agent or refreshes name and configuration of an existing one.
// Status and counters of an existing agent are left alone.
func (r *agentRepository) Upsert(ctx context.Context, agent *entities.Agent) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "configuration", "updated_at"}),
	}).Create(agent).Error
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", agent.ID, err)
	}
	return nil
}

// UpdateStatus sets an agent's status.
func (r *agentRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).Model(&entities.Agent{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update agent %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// RecordRun bumps the run counter and stores the run time and accuracy.
func (r *agentRepository) RecordRun(ctx context.Context, id string, at time.Time, accuracy float64) error {
	result := r.db.WithContext(ctx).Model(&entities.Agent{}).Where("id = ?", id).
		Updates(map[string]any{
			"total_runs":  gorm.Expr("total_runs + ?", 1),
			"last_run_at": at,
			"accuracy":    accuracy,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record run for agent %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// IncrementAlertsGenerated adds n to the agent's alert counter.
func (r *agentRepository) IncrementAlertsGenerated(ctx context.Context, id string, n int) error {
	result := r.db.WithContext(ctx).Model(&entities.Agent{}).Where("id = ?", id).
		Update("alerts_generated", gorm.Expr("alerts_generated + ?", n))
	if result.Error != nil {
		return fmt.Errorf("failed to increment alerts for agent %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}
