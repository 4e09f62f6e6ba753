package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
	"golang.org/x/time/rate"
)

const (
	defaultBodyLimit = "1M"

	// contentSecurityPolicy allows the SPA, its inline styles and the
	// WebSocket relay on the same origin.
	contentSecurityPolicy = "default-src 'self'; " +
		"script-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"connect-src 'self' ws: wss:; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"
)

// setupMiddleware installs the global middleware stack. Order matters:
// recover must wrap everything and the request id must exist before logging.
func (s *Server) setupMiddleware() {
	bodyLimit := s.settings.Server.BodyLimit
	if bodyLimit == "" {
		bodyLimit = defaultBodyLimit
	}

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(s.requestLogger())
	s.echo.Use(s.metricsMiddleware)
	s.echo.Use(middleware.SecureWithConfig(s.secureConfig()))
	s.echo.Use(middleware.CORSWithConfig(s.corsConfig()))
	s.echo.Use(middleware.BodyLimit(bodyLimit))
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
				logger.String("remote_ip", v.RemoteIP),
			}
			switch {
			case v.Error != nil && v.Status >= http.StatusInternalServerError:
				s.logger.Error("request failed", append(fields, logger.Error(v.Error))...)
			case v.Status >= http.StatusInternalServerError:
				s.logger.Warn("request failed", fields...)
			default:
				s.logger.Debug("request", fields...)
			}
			return nil
		},
	})
}

// metricsMiddleware records request counts and latency by route template.
// Errors are rendered here so the recorded status is the one sent; the
// error handler ignores them once the response is committed.
func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.metrics == nil {
			return next(c)
		}
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(c.Request().Method, route, c.Response().Status, time.Since(start))
		return err
	}
}

func (s *Server) secureConfig() middleware.SecureConfig {
	cfg := middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: contentSecurityPolicy,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
	if s.settings.IsProduction() {
		cfg.HSTSMaxAge = 31536000
	}
	return cfg
}

// corsConfig is strict in production: only the configured origins may make
// credentialed requests. Development allows any origin without credentials
// unless origins are configured explicitly.
func (s *Server) corsConfig() middleware.CORSConfig {
	origins := s.settings.Server.AllowedOrigins
	cfg := middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID, echo.HeaderAccept},
		MaxAge:       600,
	}
	switch {
	case len(origins) > 0:
	case s.settings.IsProduction():
		// Same origin only.
		cfg.AllowOriginFunc = func(string) (bool, error) { return false, nil }
	default:
		cfg.AllowOrigins = []string{"*"}
	}
	cfg.AllowCredentials = !slices.Contains(cfg.AllowOrigins, "*")
	return cfg
}

// rateLimiter applies a per client token bucket keyed by the real client IP.
// A zero rate disables limiting.
func (s *Server) rateLimiter(rl conf.RateLimitSettings) echo.MiddlewareFunc {
	if rl.Requests <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rl.Requests),
		Burst:     rl.Burst,
		ExpiresIn: rl.Expires.Std(),
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", "1")
			return errors.Newf("rate limit exceeded").
				Component(componentName).
				Category(errors.CategoryRateLimit).
				Context("client", identifier).
				Context("path", c.Path()).
				Build()
		},
	})
}
