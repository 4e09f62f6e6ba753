// Package agents runs the analysis agents that turn route performance
// snapshots into alerts.
package agents

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

const (
	componentName = "agents"

	// bookkeepingTimeout bounds the writes that close an execution, which
	// run even when the caller's context is already cancelled.
	bookkeepingTimeout = 10 * time.Second
	defaultCooldown    = 24 * time.Hour
)

// ErrRunInProgress is returned when an agent is already running.
var ErrRunInProgress = errors.NewStd("agent run already in progress")

// AlertCreator stores alerts through the lifecycle service so broadcasts and
// events fire for agent generated alerts too.
type AlertCreator interface {
	CreateAlert(ctx context.Context, in alerting.CreateAlertInput) (*entities.Alert, error)
}

// Repositories groups the stores the runner uses.
type Repositories struct {
	Agents       repository.AgentRepository
	ActionAgents repository.ActionAgentRepository
	Routes       repository.RoutePerformanceRepository
	Alerts       repository.AlertRepository
	Feedback     repository.FeedbackRepository
}

// RunObserver is notified after every finished run.
type RunObserver func(result *RunResult)

// Runner executes one agent at a time per agent id.
type Runner struct {
	repos    Repositories
	creator  AlertCreator
	cooldown time.Duration
	now      func() time.Time
	observer RunObserver
	log      logger.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// RunResult summarises one execution.
type RunResult struct {
	ExecutionID   uint          `json:"execution_id"`
	AgentID       string        `json:"agent_id"`
	Status        string        `json:"status"`
	SnapshotDate  string        `json:"snapshot_date,omitempty"`
	RoutesScanned int           `json:"routes_scanned"`
	AlertsCreated int           `json:"alerts_created"`
	AlertIDs      []string      `json:"alert_ids"`
	Accuracy      float64       `json:"accuracy"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
	Error         string        `json:"error,omitempty"`
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDefaultCooldown sets the cooldown used when thresholds name none.
func WithDefaultCooldown(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.cooldown = d
		}
	}
}

// WithRunObserver registers a callback for finished runs.
func WithRunObserver(fn RunObserver) RunnerOption {
	return func(r *Runner) { r.observer = fn }
}

// WithRunnerClock overrides the time source.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(repos Repositories, creator AlertCreator, log logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		repos:    repos,
		creator:  creator,
		cooldown: defaultCooldown,
		now:      time.Now,
		log:      log.Module(componentName),
		running:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes agentID once against the latest route snapshots. Alerts are
// raised per route when every threshold condition holds and no alert for the
// same route was raised within the cooldown.
func (r *Runner) Run(ctx context.Context, agentID string) (*RunResult, error) {
	agent, err := r.repos.Agents.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			return nil, errors.Newf("agent %s not found", agentID).
				Component(componentName).
				Category(errors.CategoryNotFound).
				Context("agent_id", agentID).
				Build()
		}
		return nil, dbError(err, agentID, "get_agent")
	}
	if agent.Status == entities.AgentStatusMaintenance {
		return nil, errors.Newf("agent %s is in maintenance", agentID).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("agent_id", agentID).
			Build()
	}

	cfg, err := r.repos.ActionAgents.GetConfig(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			return nil, errors.Newf("agent %s has no action configuration", agentID).
				Component(componentName).
				Category(errors.CategoryValidation).
				Context("agent_id", agentID).
				Build()
		}
		return nil, dbError(err, agentID, "get_config")
	}

	if !r.acquire(agentID) {
		return nil, errors.New(ErrRunInProgress).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("agent_id", agentID).
			Build()
	}
	defer r.release(agentID)

	started := r.now().UTC()
	exec := &entities.ActionAgentExecution{AgentID: agentID, StartedAt: started}
	if err := r.repos.ActionAgents.StartExecution(ctx, exec); err != nil {
		return nil, dbError(err, agentID, "start_execution")
	}

	result := &RunResult{
		ExecutionID: exec.ID,
		AgentID:     agentID,
		StartedAt:   started,
		Accuracy:    agent.Accuracy,
		AlertIDs:    make([]string, 0),
	}
	runErr := r.scan(ctx, agent, cfg, result)

	// Close out the execution even if ctx was cancelled mid-run.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	r.finish(bctx, agent, exec, result, runErr)

	if r.observer != nil {
		r.observer(result)
	}
	return result, runErr
}

func (r *Runner) scan(ctx context.Context, agent *entities.Agent, cfg *entities.ActionAgentConfig, result *RunResult) error {
	thresholds := cfg.Thresholds.Data()
	if len(thresholds.Conditions) == 0 {
		r.log.Debug("agent has no conditions, nothing to evaluate", logger.String("agent_id", agent.ID))
		return nil
	}
	for i := range thresholds.Conditions {
		if err := alerting.ValidateCondition(&thresholds.Conditions[i]); err != nil {
			return errors.New(err).
				Component(componentName).
				Category(errors.CategoryConfiguration).
				Context("agent_id", agent.ID).
				Build()
		}
	}

	date, err := r.repos.Routes.LatestDate(ctx)
	if err != nil {
		return dbError(err, agent.ID, "latest_snapshot")
	}
	if date == "" {
		r.log.Info("no route performance data, skipping agent", logger.String("agent_id", agent.ID))
		return nil
	}
	result.SnapshotDate = date

	rows, err := r.repos.Routes.ListByDate(ctx, date)
	if err != nil {
		return dbError(err, agent.ID, "list_snapshots")
	}

	cooldown := r.cooldown
	if thresholds.CooldownHours > 0 {
		cooldown = time.Duration(thresholds.CooldownHours) * time.Hour
	}
	sustainedDays := alerting.MaxSustainedDays(thresholds.Conditions)

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := &rows[i]
		result.RoutesScanned++

		matched, history, err := r.matches(ctx, thresholds.Conditions, row, sustainedDays)
		if err != nil {
			return dbError(err, agent.ID, "route_history")
		}
		if !matched {
			continue
		}

		recent, err := r.repos.Alerts.HasRecent(ctx, agent.ID, row.Route, r.now().UTC().Add(-cooldown))
		if err != nil {
			return dbError(err, agent.ID, "cooldown_check")
		}
		if recent {
			r.log.Debug("route in cooldown",
				logger.String("agent_id", agent.ID),
				logger.String("route", row.Route))
			continue
		}

		in := buildAlert(agent, &thresholds, row, history)
		alert, err := r.creator.CreateAlert(ctx, in)
		if err != nil {
			return err
		}
		result.AlertsCreated++
		result.AlertIDs = append(result.AlertIDs, alert.ID)
	}
	return nil
}

// matches evaluates conditions for one route. History is only loaded when a
// condition needs more than the latest snapshot.
func (r *Runner) matches(ctx context.Context, conds []entities.ThresholdCondition, row *entities.RoutePerformance, days int) (bool, []entities.RoutePerformance, error) {
	props := alerting.RouteProperties(row)
	var history []entities.RoutePerformance
	for i := range conds {
		cond := &conds[i]
		if cond.SustainedDays <= 1 {
			if !alerting.EvaluateCondition(cond, props) {
				return false, nil, nil
			}
			continue
		}
		if history == nil {
			var err error
			history, err = r.repos.Routes.History(ctx, row.Route, days)
			if err != nil {
				return false, nil, err
			}
		}
		if !alerting.IsSustained(cond, history) {
			return false, nil, nil
		}
	}
	return true, history, nil
}

func (r *Runner) finish(ctx context.Context, agent *entities.Agent, exec *entities.ActionAgentExecution, result *RunResult, runErr error) {
	finished := r.now().UTC()
	exec.FinishedAt = &finished
	exec.RoutesScanned = result.RoutesScanned
	exec.AlertsCreated = result.AlertsCreated
	exec.Status = entities.ExecutionSucceeded
	if runErr != nil {
		exec.Status = entities.ExecutionFailed
		exec.Error = runErr.Error()
		result.Error = runErr.Error()
	}
	result.Status = exec.Status
	result.Duration = exec.Duration()

	log := r.log.With(logger.String("agent_id", agent.ID), logger.Uint64("execution_id", uint64(exec.ID)))

	if err := r.repos.ActionAgents.FinishExecution(ctx, exec); err != nil {
		log.Error("failed to finish execution", logger.Error(err))
	}

	accuracy := agent.Accuracy
	stats, err := r.repos.Feedback.StatsByAgent(ctx)
	if err != nil {
		log.Warn("failed to load feedback stats, keeping accuracy", logger.Error(err))
	} else if st, ok := stats[agent.ID]; ok && st.Count > 0 {
		accuracy = AccuracyFromRating(st.AverageRating)
	}
	result.Accuracy = accuracy
	if err := r.repos.Agents.RecordRun(ctx, agent.ID, finished, accuracy); err != nil {
		log.Error("failed to record agent run", logger.Error(err))
	}

	date := finished.Format(entities.DateLayout)
	if err := r.repos.ActionAgents.RecordMetric(ctx, agent.ID, date, result.AlertsCreated, result.Duration); err != nil {
		log.Error("failed to record agent metric", logger.Error(err))
	}

	if runErr != nil {
		log.Error("agent run failed", logger.Error(runErr))
		return
	}
	log.Info("agent run completed",
		logger.Int("routes_scanned", result.RoutesScanned),
		logger.Int("alerts_created", result.AlertsCreated),
		logger.Duration("duration", result.Duration))
}

// AccuracyFromRating maps a mean 1-5 feedback rating onto 0-100.
func AccuracyFromRating(avg float64) float64 {
	if math.IsNaN(avg) {
		return 0
	}
	return math.Round(min(max(avg/5*100, 0), 100)*10) / 10
}

func (r *Runner) acquire(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[agentID]; busy {
		return false
	}
	r.running[agentID] = struct{}{}
	return true
}

func (r *Runner) release(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, agentID)
}

func categoryFor(agent *entities.Agent, t *entities.Thresholds) string {
	if t.Category != "" {
		return t.Category
	}
	if slices.Contains(entities.Categories, agent.ID) {
		return agent.ID
	}
	return entities.CategoryPerformance
}

func buildAlert(agent *entities.Agent, t *entities.Thresholds, row *entities.RoutePerformance, history []entities.RoutePerformance) alerting.CreateAlertInput {
	route := row.Route
	confidence := min(max(agent.Accuracy/100, 0), 1)
	priority := t.Priority
	if priority == "" {
		priority = entities.PriorityMedium
	}

	in := alerting.CreateAlertInput{
		Priority:   priority,
		Category:   categoryFor(agent, t),
		AgentID:    agent.ID,
		Route:      &route,
		Confidence: &confidence,
	}

	switch in.Category {
	case entities.CategoryCompetitive:
		gap := row.PriceGapPct()
		impact := math.Round((row.OurPrice - row.CompetitorPrice) * row.LoadFactor * 100)
		in.Title = fmt.Sprintf("Fare gap of %.1f%% on %s", gap, route)
		in.Description = fmt.Sprintf("Our fare %.2f is %.1f%% above the competitor's %.2f.",
			row.OurPrice, gap, row.CompetitorPrice)
		in.Impact = &impact
		in.Metadata = entities.NewCompetitiveMetadata(entities.CompetitiveMetadata{
			Competitor:      "market",
			CompetitorPrice: row.CompetitorPrice,
			OurPrice:        row.OurPrice,
			PriceGapPct:     math.Round(gap*10) / 10,
		})
	case entities.CategoryNetwork:
		in.Title = fmt.Sprintf("Demand surge on %s", route)
		in.Description = fmt.Sprintf("Demand index reached %.2f on %s.", row.DemandIndex, row.Date)
		in.Metadata = entities.NewNetworkMetadata(entities.NetworkMetadata{
			Routes:      []string{route},
			DemandIndex: row.DemandIndex,
		})
	default:
		baseline := baselineLoadFactor(history, row)
		in.Title = fmt.Sprintf("Load factor %.0f%% on %s", row.LoadFactor*100, route)
		in.Description = fmt.Sprintf("Load factor %.2f and yield %.3f on %s.", row.LoadFactor, row.Yield, row.Date)
		in.Metadata = entities.NewPerformanceMetadata(entities.PerformanceMetadata{
			LoadFactor:         row.LoadFactor,
			Yield:              row.Yield,
			BaselineLoadFactor: baseline,
		})
	}
	return in
}

func baselineLoadFactor(history []entities.RoutePerformance, row *entities.RoutePerformance) float64 {
	if len(history) == 0 {
		return row.LoadFactor
	}
	var sum float64
	for i := range history {
		sum += history[i].LoadFactor
	}
	return math.Round(sum/float64(len(history))*1000) / 1000
}

func dbError(err error, agentID, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Context("agent_id", agentID).
		Context("operation", op).
		Build()
}
