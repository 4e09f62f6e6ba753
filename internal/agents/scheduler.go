package agents

import (
	"context"
	"sync"
	"time"

	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

// Scheduler runs enabled agents whenever their schedule interval has
// elapsed. It wakes every tick and runs due agents one after another.
type Scheduler struct {
	runner     *Runner
	configs    repository.ActionAgentRepository
	agents     repository.AgentRepository
	tick       time.Duration
	runTimeout time.Duration
	now        func() time.Time
	log        logger.Logger

	mu      sync.Mutex
	lastRun map[string]time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a Scheduler. A zero runTimeout leaves runs unbounded.
func NewScheduler(runner *Runner, configs repository.ActionAgentRepository, agents repository.AgentRepository, tick, runTimeout time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		configs:    configs,
		agents:     agents,
		tick:       tick,
		runTimeout: runTimeout,
		now:        time.Now,
		log:        log.Module("scheduler"),
		lastRun:    make(map[string]time.Time),
	}
}

// Start launches the scheduling loop. It returns immediately; call Stop to
// end it. Starting a running scheduler restarts the loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		s.RunDue(ctx)
		for {
			select {
			case <-ticker.C:
				s.RunDue(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.log.Info("agent scheduler started", logger.Duration("tick", s.tick))
}

// Stop ends the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunDue runs every enabled agent whose interval has elapsed and returns how
// many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	configs, err := s.configs.ListConfigs(ctx, true)
	if err != nil {
		s.log.Error("failed to list agent configs", logger.Error(err))
		return 0
	}

	var ran int
	for i := range configs {
		if ctx.Err() != nil {
			return ran
		}
		cfg := &configs[i]
		interval := time.Duration(cfg.ScheduleInterval) * time.Second
		if !s.due(ctx, cfg.AgentID, interval) {
			continue
		}

		runCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.runTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		}
		_, err := s.runner.Run(runCtx, cfg.AgentID)
		cancel()

		s.mu.Lock()
		s.lastRun[cfg.AgentID] = s.now()
		s.mu.Unlock()
		ran++

		if err != nil && !errors.Is(err, ErrRunInProgress) {
			s.log.Warn("scheduled agent run failed",
				logger.String("agent_id", cfg.AgentID),
				logger.Error(err))
		}
	}
	return ran
}

// due reports whether agentID should run. The first check after startup
// falls back to the persisted last_run_at so restarts keep the cadence.
func (s *Scheduler) due(ctx context.Context, agentID string, interval time.Duration) bool {
	s.mu.Lock()
	last, ok := s.lastRun[agentID]
	s.mu.Unlock()

	if !ok {
		agent, err := s.agents.Get(ctx, agentID)
		if err != nil {
			s.log.Warn("failed to load agent for scheduling",
				logger.String("agent_id", agentID),
				logger.Error(err))
			return false
		}
		if agent.LastRunAt != nil {
			last = *agent.LastRunAt
		}
		s.mu.Lock()
		s.lastRun[agentID] = last
		s.mu.Unlock()
	}
	return last.IsZero() || s.now().Sub(last) >= interval
}
