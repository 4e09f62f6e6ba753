package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/velociti/velociti/internal/datastore/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds the number of rows per INSERT statement.
const upsertBatchSize = 200

// routePerformanceRepository implements RoutePerformanceRepository.
type routePerformanceRepository struct {
	db *gorm.DB
}

// NewRoutePerformanceRepository creates a new RoutePerformanceRepository.
func NewRoutePerformanceRepository(db *gorm.DB) RoutePerformanceRepository {
	return &routePerformanceRepository{db: db}
}

// Upsert saves snapshots, replacing metrics of existing (route, date) rows.
func (r *routePerformanceRepository) Upsert(ctx context.Context, rows ...entities.RoutePerformance) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "route"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"load_factor", "yield", "competitor_price", "our_price", "demand_index",
			}),
		}).
		CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert route performance: %w", err)
	}
	return nil
}

// List returns snapshots newest first, then by route.
func (r *routePerformanceRepository) List(ctx context.Context, filter RoutePerformanceFilter) ([]entities.RoutePerformance, error) {
	rows := make([]entities.RoutePerformance, 0)
	query := r.db.WithContext(ctx).Order("date DESC").Order("route ASC")
	if filter.Route != "" {
		query = query.Where("route = ?", filter.Route)
	}
	if filter.From != "" {
		query = query.Where("date >= ?", filter.From)
	}
	if filter.To != "" {
		query = query.Where("date <= ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list route performance: %w", err)
	}
	return rows, nil
}

// LatestDate returns the most recent snapshot date, or "" when there is none.
func (r *routePerformanceRepository) LatestDate(ctx context.Context) (string, error) {
	var latest sql.NullString
	err := r.db.WithContext(ctx).Model(&entities.RoutePerformance{}).
		Select("MAX(date)").Row().Scan(&latest)
	if err != nil {
		return "", fmt.Errorf("failed to get latest snapshot date: %w", err)
	}
	return latest.String, nil
}

// ListByDate returns all snapshots for one date ordered by route.
func (r *routePerformanceRepository) ListByDate(ctx context.Context, date string) ([]entities.RoutePerformance, error) {
	rows := make([]entities.RoutePerformance, 0)
	if err := r.db.WithContext(ctx).Where("date = ?", date).Order("route ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list route performance for %s: %w", date, err)
	}
	return rows, nil
}

// Averages returns network means for one date. Zero values when the date has no rows.
func (r *routePerformanceRepository) Averages(ctx context.Context, date string) (NetworkAverages, error) {
	out := NetworkAverages{Date: date}
	err := r.db.WithContext(ctx).Model(&entities.RoutePerformance{}).
		Select("COALESCE(AVG(yield), 0) AS yield, COALESCE(AVG(load_factor), 0) AS load_factor, COUNT(*) AS routes").
		Where("date = ?", date).
		Scan(&out).Error
	if err != nil {
		return NetworkAverages{}, fmt.Errorf("failed to average route performance for %s: %w", date, err)
	}
	out.Date = date
	return out, nil
}

// History returns up to days snapshots for route, newest first.
func (r *routePerformanceRepository) History(ctx context.Context, route string, days int) ([]entities.RoutePerformance, error) {
	return r.List(ctx, RoutePerformanceFilter{Route: route, Limit: days})
}
