// Package seed populates a fresh database with the default agents, route
// performance history and optional sample alerts. Every step is idempotent.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

// Seeder writes default data through the repositories.
type Seeder struct {
	agents       repository.AgentRepository
	actionAgents repository.ActionAgentRepository
	routes       repository.RoutePerformanceRepository
	alerts       repository.AlertRepository
	log          logger.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(
	agents repository.AgentRepository,
	actionAgents repository.ActionAgentRepository,
	routes repository.RoutePerformanceRepository,
	alerts repository.AlertRepository,
	log logger.Logger,
) *Seeder {
	return &Seeder{
		agents:       agents,
		actionAgents: actionAgents,
		routes:       routes,
		alerts:       alerts,
		log:          log.Module("seed"),
	}
}

// Agents ensures every default agent and its config exist. It checks by id
// so partial seeds from previous runs self-heal on restart. Existing rows are
// left untouched.
func (s *Seeder) Agents(ctx context.Context) (int, error) {
	existing, err := s.agents.List(ctx)
	if err != nil {
		return 0, err
	}
	existingIDs := make(map[string]struct{}, len(existing))
	for i := range existing {
		existingIDs[existing[i].ID] = struct{}{}
	}

	var created int
	for _, d := range DefaultAgents() {
		if _, ok := existingIDs[d.Agent.ID]; !ok {
			if err := s.agents.Upsert(ctx, &d.Agent); err != nil {
				return created, err
			}
			created++
		}
		if _, err := s.actionAgents.GetConfig(ctx, d.Config.AgentID); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrConfigNotFound) {
			return created, err
		}
		if err := s.actionAgents.SaveConfig(ctx, &d.Config); err != nil {
			return created, err
		}
	}
	if created > 0 {
		s.log.Info("seeded default agents", logger.Int("created", created))
	}
	return created, nil
}

// routeProfile is the steady state a generated route oscillates around.
type routeProfile struct {
	loadFactor float64
	yield      float64
	fare       float64
}

// RoutePerformance upserts days of snapshots ending at end for DefaultRoutes.
// Values are generated from seed so repeated runs write identical rows.
func (s *Seeder) RoutePerformance(ctx context.Context, days int, end time.Time, seed uint64) (int, error) {
	if days < 1 {
		return 0, fmt.Errorf("days must be at least 1, got %d", days)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	profiles := make(map[string]routeProfile, len(DefaultRoutes))
	for _, route := range DefaultRoutes {
		profiles[route] = routeProfile{
			loadFactor: 0.68 + rng.Float64()*0.2,
			yield:      0.09 + rng.Float64()*0.08,
			fare:       250 + rng.Float64()*600,
		}
	}

	rows := make([]entities.RoutePerformance, 0, days*len(DefaultRoutes))
	start := end.UTC().AddDate(0, 0, -(days - 1))
	for d := range days {
		date := start.AddDate(0, 0, d).Format(entities.DateLayout)
		for _, route := range DefaultRoutes {
			p := profiles[route]
			ourPrice := p.fare * (0.95 + rng.Float64()*0.1)
			rows = append(rows, entities.RoutePerformance{
				Route:           route,
				Date:            date,
				LoadFactor:      clamp(p.loadFactor+rng.NormFloat64()*0.06, 0.3, 1),
				Yield:           round(p.yield+rng.NormFloat64()*0.01, 4),
				OurPrice:        round(ourPrice, 2),
				CompetitorPrice: round(ourPrice*(0.85+rng.Float64()*0.25), 2),
				DemandIndex:     round(clamp(1+rng.NormFloat64()*0.2, 0.4, 2), 3),
			})
		}
	}
	for i := range rows {
		rows[i].LoadFactor = round(rows[i].LoadFactor, 4)
	}

	if err := s.routes.Upsert(ctx, rows...); err != nil {
		return 0, err
	}
	s.log.Info("seeded route performance",
		logger.Int("days", days),
		logger.Int("routes", len(DefaultRoutes)),
		logger.Int("rows", len(rows)))
	return len(rows), nil
}

// SampleAlerts inserts a handful of demo alerts when the table is empty.
func (s *Seeder) SampleAlerts(ctx context.Context, now time.Time) (int, error) {
	count, err := s.alerts.Count(ctx, repository.AlertFilter{})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	samples := sampleAlerts(now.UTC())
	for i := range samples {
		if err := s.alerts.Create(ctx, &samples[i]); err != nil {
			return i, err
		}
		if err := s.agents.IncrementAlertsGenerated(ctx, samples[i].AgentID, 1); err != nil {
			return i + 1, err
		}
	}
	s.log.Info("seeded sample alerts", logger.Int("created", len(samples)))
	return len(samples), nil
}

func sampleAlerts(now time.Time) []entities.Alert {
	ptr := func(s string) *string { return &s }
	num := func(f float64) *float64 { return &f }
	return []entities.Alert{
		{
			ID:          uuid.NewString(),
			Title:       "Competitor fare cut on LHR-JFK",
			Description: "Competitor fares dropped 14% below ours for next-week departures.",
			Priority:    entities.PriorityCritical,
			Category:    entities.CategoryCompetitive,
			Status:      entities.StatusActive,
			AgentID:     AgentCompetitive,
			Route:       ptr("LHR-JFK"),
			Impact:      num(185000),
			Confidence:  num(0.91),
			Metadata: entities.NewCompetitiveMetadata(entities.CompetitiveMetadata{
				Competitor: "VS", CompetitorPrice: 412, OurPrice: 479, PriceGapPct: 16.3,
			}),
			CreatedAt: now.Add(-2 * time.Hour),
		},
		{
			ID:          uuid.NewString(),
			Title:       "Sustained load factor drop on LHR-SIN",
			Description: "Load factor has been below 65% for four consecutive days.",
			Priority:    entities.PriorityHigh,
			Category:    entities.CategoryPerformance,
			Status:      entities.StatusActive,
			AgentID:     AgentPerformance,
			Route:       ptr("LHR-SIN"),
			Impact:      num(92000),
			Confidence:  num(0.84),
			Metadata: entities.NewPerformanceMetadata(entities.PerformanceMetadata{
				LoadFactor: 0.61, Yield: 0.118, BaselineLoadFactor: 0.79,
			}),
			CreatedAt: now.Add(-5 * time.Hour),
		},
		{
			ID:          uuid.NewString(),
			Title:       "Demand surge on transatlantic routes",
			Description: "Search and booking demand up 35% on US east coast routes.",
			Priority:    entities.PriorityMedium,
			Category:    entities.CategoryNetwork,
			Status:      entities.StatusActive,
			AgentID:     AgentNetwork,
			Confidence:  num(0.72),
			Metadata: entities.NewNetworkMetadata(entities.NetworkMetadata{
				Routes: []string{"LHR-JFK", "LHR-BOS", "MAN-JFK"}, DemandIndex: 1.35,
			}),
			CreatedAt: now.Add(-26 * time.Hour),
		},
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func round(v float64, places int) float64 {
	p := 1.0
	for range places {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}
