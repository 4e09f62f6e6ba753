// Package api assembles the Velociti HTTP server: the echo instance, its
// middleware stack, the /api controller, the WebSocket relay, metrics and
// the dashboard SPA.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/velociti/velociti/internal/agents"
	"github.com/velociti/velociti/internal/alerting"
	apiv2 "github.com/velociti/velociti/internal/api/v2"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
	"github.com/velociti/velociti/internal/observability"
	"github.com/velociti/velociti/internal/realtime"
	"github.com/velociti/velociti/internal/streaming"
	"golang.org/x/crypto/acme/autocert"
)

const componentName = "http"

// Dependencies are the components the server exposes.
type Dependencies struct {
	Settings *conf.Settings
	Service  *alerting.Service
	Runner   *agents.Runner
	Routes   repository.RoutePerformanceRepository
	Relay    *streaming.Relay
	Hub      *realtime.Hub
	Metrics  *observability.Metrics
	Health   apiv2.HealthChecker
}

// Server is the HTTP front of the application.
type Server struct {
	echo         *echo.Echo
	settings     *conf.Settings
	controller   *apiv2.Controller
	staticServer *StaticFileServer
	sessions     *SessionManager
	metrics      *observability.Metrics
	hub          *realtime.Hub
	logger       logger.Logger
}

// NewServer builds the echo instance and registers every route.
func NewServer(deps Dependencies, lg logger.Logger) (*Server, error) {
	if deps.Settings == nil {
		return nil, errors.Newf("server settings are required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if deps.Service == nil {
		return nil, errors.Newf("alert service is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if lg == nil {
		lg = logger.NewNop()
	}

	sessions, err := NewSessionManager(deps.Settings)
	if err != nil {
		return nil, err
	}

	s := &Server{
		echo:         echo.New(),
		settings:     deps.Settings,
		staticServer: NewStaticFileServer(deps.Settings.Server.StaticDir),
		sessions:     sessions,
		metrics:      deps.Metrics,
		hub:          deps.Hub,
		logger:       lg.Module(componentName),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Validator = apiv2.NewValidator()
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	if deps.Settings.IsProduction() {
		s.echo.Logger.SetLevel(log.WARN)
	} else {
		s.echo.Logger.SetLevel(log.DEBUG)
	}

	s.setupMiddleware()

	group := s.echo.Group("/api", s.rateLimiter(deps.Settings.Server.RateLimit))
	s.registerSessionRoutes(group)
	s.controller = apiv2.New(group, apiv2.Dependencies{
		Service:          deps.Service,
		Runner:           deps.Runner,
		Routes:           deps.Routes,
		Relay:            deps.Relay,
		Health:           deps.Health,
		Identity:         s.sessions.UserID,
		StreamMiddleware: []echo.MiddlewareFunc{s.rateLimiter(deps.Settings.Server.StreamLimit)},
		ExposeDetail:     !deps.Settings.IsProduction(),
	}, lg)

	if s.metrics != nil {
		s.echo.GET("/api/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	if s.hub != nil {
		s.echo.GET("/ws", echo.WrapHandler(s.hub))
	}
	s.registerStaticRoutes()

	return s, nil
}

// ServeHTTP lets the server be mounted on an httptest.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens until Shutdown is called. With auto TLS enabled certificates
// are obtained from Let's Encrypt for the configured domains.
func (s *Server) Start() error {
	addr := s.settings.Server.ListenAddr()
	tls := s.settings.Server.TLS

	var err error
	if tls.AutoTLS {
		s.echo.AutoTLSManager.Prompt = autocert.AcceptTOS
		s.echo.AutoTLSManager.HostPolicy = autocert.HostWhitelist(tls.Domains...)
		s.echo.AutoTLSManager.Cache = autocert.DirCache(tls.CacheDir)
		s.logger.Info("starting https server",
			logger.String("addr", addr),
			logger.Any("domains", tls.Domains))
		err = s.echo.StartAutoTLS(addr)
	} else {
		s.logger.Info("starting http server", logger.String("addr", addr))
		err = s.echo.Start(addr)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr is the bound listener address, or nil before Start has bound it.
func (s *Server) Addr() net.Addr {
	if s.settings.Server.TLS.AutoTLS {
		return s.echo.TLSListenerAddr()
	}
	return s.echo.ListenerAddr()
}

// Shutdown stops accepting connections, closes realtime clients and waits
// for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	wait := s.settings.Server.ShutdownWait.Std()
	if wait <= 0 {
		wait = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
