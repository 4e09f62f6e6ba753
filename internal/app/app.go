// Package app wires settings into the running Velociti components.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/velociti/velociti/internal/agents"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/api"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/datastore"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/datastore/seed"
	"github.com/velociti/velociti/internal/logger"
	"github.com/velociti/velociti/internal/notification"
	"github.com/velociti/velociti/internal/observability"
	"github.com/velociti/velociti/internal/realtime"
	"github.com/velociti/velociti/internal/streaming"
	"github.com/velociti/velociti/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// seedDays is the route performance history generated on a fresh database.
const seedDays = 30

// NewLogger builds the root logger. Production logs JSON at info unless a
// level is configured; development logs text at debug.
func NewLogger(s *conf.Settings, w io.Writer) logger.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := s.Log.Level
	if level == "" {
		level = "debug"
		if s.IsProduction() {
			level = "info"
		}
	}
	return logger.NewSlogLogger(w, logger.ParseLevel(level), &logger.Options{
		JSON: s.Log.JSON || s.IsProduction(),
	})
}

// Store is an open database with its repositories.
type Store struct {
	Manager      *datastore.Manager
	Alerts       repository.AlertRepository
	Agents       repository.AgentRepository
	Feedback     repository.FeedbackRepository
	Routes       repository.RoutePerformanceRepository
	ActionAgents repository.ActionAgentRepository
	log          logger.Logger
}

// OpenStore connects to the configured database.
func OpenStore(ctx context.Context, s *conf.Settings, log logger.Logger) (*Store, error) {
	mgr, err := datastore.Open(ctx, &s.Database, log)
	if err != nil {
		return nil, err
	}
	db := mgr.DB()
	return &Store{
		Manager:      mgr,
		Alerts:       repository.NewAlertRepository(db),
		Agents:       repository.NewAgentRepository(db),
		Feedback:     repository.NewFeedbackRepository(db),
		Routes:       repository.NewRoutePerformanceRepository(db),
		ActionAgents: repository.NewActionAgentRepository(db),
		log:          log,
	}, nil
}

// Seeder returns a seeder over the store's repositories.
func (st *Store) Seeder() *seed.Seeder {
	return seed.NewSeeder(st.Agents, st.ActionAgents, st.Routes, st.Alerts, st.log)
}

// Close releases the database connection.
func (st *Store) Close() error {
	return st.Manager.Close()
}

// SeedDefaults creates the default agents and, on an empty route table,
// generated route performance history ending today.
func (st *Store) SeedDefaults(ctx context.Context, now time.Time) error {
	seeder := st.Seeder()
	if _, err := seeder.Agents(ctx); err != nil {
		return err
	}
	latest, err := st.Routes.LatestDate(ctx)
	if err != nil {
		return err
	}
	if latest == "" {
		if _, err := seeder.RoutePerformance(ctx, seedDays, now, uint64(now.Unix())); err != nil {
			return err
		}
	}
	return nil
}

// App holds every long lived component of the serve command.
type App struct {
	Settings  *conf.Settings
	Store     *Store
	Bus       *alerting.EventBus
	Service   *alerting.Service
	Runner    *agents.Runner
	Scheduler *agents.Scheduler
	Hub       *realtime.Hub
	Relay     *streaming.Relay
	Metrics   *observability.Metrics
	Server    *api.Server

	closers []func()
	log     logger.Logger
}

// New opens the store, migrates it and builds every component. Optional
// integrations (sentry, push notifications, MQTT, cloud providers) that fail
// to initialise are logged and skipped.
func New(ctx context.Context, s *conf.Settings, log logger.Logger) (*App, error) {
	a := &App{Settings: s, log: log}

	flush, err := telemetry.Init(s, log)
	if err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
	} else {
		a.closers = append(a.closers, flush)
	}

	store, err := OpenStore(ctx, s, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	if err := store.Manager.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if s.Agents.SeedOnStartup {
		if err := store.SeedDefaults(ctx, time.Now().UTC()); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Metrics = observability.NewMetrics()

	a.Bus = alerting.NewEventBus(log, alerting.WithDropHook(a.Metrics.EventDropped))
	a.closers = append(a.closers, a.Bus.Stop)
	a.Bus.Subscribe(a.Metrics.AlertEvent)

	sinks, closeSinks := notification.BuildSinks(ctx, s, log)
	a.closers = append(a.closers, closeSinks)
	if len(sinks) > 0 {
		dispatcher := alerting.NewDispatcher(log, sinks...)
		dispatcher.OnError(a.Metrics.SinkFailed)
		dispatcher.Attach(a.Bus)
	}

	var svc *alerting.Service
	a.Hub = realtime.NewHub(realtime.Config{
		SendBuffer:     s.Realtime.SendBuffer,
		InitialAlerts:  s.Realtime.InitialAlerts,
		PingInterval:   s.Realtime.PingInterval.Std(),
		PongWait:       s.Realtime.PongWait.Std(),
		WriteWait:      s.Realtime.WriteWait.Std(),
		AllowedOrigins: s.Server.AllowedOrigins,
	}, func(ctx context.Context, limit int) ([]entities.Alert, error) {
		return svc.ListAlerts(ctx, alerting.ListFilter{Limit: limit})
	}, log, realtime.WithMetrics(a.Metrics))
	a.closers = append(a.closers, a.Hub.Close)

	svc = alerting.NewService(alerting.Repositories{
		Alerts:   store.Alerts,
		Agents:   store.Agents,
		Feedback: store.Feedback,
		Routes:   store.Routes,
	}, log,
		alerting.WithBroadcaster(a.Hub),
		alerting.WithEventBus(a.Bus),
		alerting.WithSummaryTTL(s.Dashboard.CacheTTL.Std()),
		alerting.WithRecentAlerts(s.Dashboard.RecentAlerts),
	)
	a.Service = svc

	a.Runner = NewRunner(store, svc, s, log, agents.WithRunObserver(a.Metrics.AgentRun))
	if s.Agents.Schedule {
		a.Scheduler = agents.NewScheduler(a.Runner, store.ActionAgents, store.Agents,
			s.Agents.Tick.Std(), s.Agents.RunTimeout.Std(), log)
	}

	registry := streaming.NewRegistryFromSettings(ctx, s.LLM, log)
	a.Relay = streaming.NewRelayFromSettings(registry, s.LLM, log,
		streaming.WithObserver(a.Metrics.StreamFinished))

	a.Server, err = api.NewServer(api.Dependencies{
		Settings: s,
		Service:  svc,
		Runner:   a.Runner,
		Routes:   store.Routes,
		Relay:    a.Relay,
		Hub:      a.Hub,
		Metrics:  a.Metrics,
		Health:   store.Manager,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewRunner builds an agent runner over store that creates alerts through svc.
func NewRunner(store *Store, svc *alerting.Service, s *conf.Settings, log logger.Logger, opts ...agents.RunnerOption) *agents.Runner {
	base := []agents.RunnerOption{agents.WithDefaultCooldown(s.Agents.Cooldown.Std())}
	return agents.NewRunner(agents.Repositories{
		Agents:       store.Agents,
		ActionAgents: store.ActionAgents,
		Routes:       store.Routes,
		Alerts:       store.Alerts,
		Feedback:     store.Feedback,
	}, svc, log, append(base, opts...)...)
}

// Run serves HTTP and runs the scheduler until ctx is cancelled, then shuts
// the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx := context.WithoutCancel(gctx)
		return a.Server.Shutdown(shutdownCtx)
	})
	if a.Scheduler != nil {
		a.Scheduler.Start(gctx)
		defer a.Scheduler.Stop()
	}

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
