// Package api implements the Velociti REST endpoints mounted under /api.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/velociti/velociti/internal/agents"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
	"github.com/velociti/velociti/internal/streaming"
)

const (
	componentName = "api"

	// AnonymousUser attributes feedback when the request carries no analyst identity.
	AnonymousUser = "anonymous"
)

// HealthChecker reports whether the relational store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// IdentityFunc returns the analyst id for a request, or "" when unknown.
type IdentityFunc func(ctx echo.Context) string

// Dependencies are the collaborators the controller serves requests with.
type Dependencies struct {
	Service  *alerting.Service
	Runner   *agents.Runner
	Routes   repository.RoutePerformanceRepository
	Relay    *streaming.Relay
	Health   HealthChecker
	Identity IdentityFunc
	// StreamMiddleware wraps only the streaming endpoint, typically a stricter rate limiter.
	StreamMiddleware []echo.MiddlewareFunc
	// ExposeDetail adds raw error text to 5xx responses.
	ExposeDetail bool
}

// Controller serves the /api route group.
type Controller struct {
	Group        *echo.Group
	service      *alerting.Service
	runner       *agents.Runner
	routes       repository.RoutePerformanceRepository
	relay        *streaming.Relay
	health       HealthChecker
	identity     IdentityFunc
	exposeDetail bool
	logger       logger.Logger
}

// New creates the controller and registers its routes on group.
func New(group *echo.Group, deps Dependencies, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Controller{
		Group:        group,
		service:      deps.Service,
		runner:       deps.Runner,
		routes:       deps.Routes,
		relay:        deps.Relay,
		health:       deps.Health,
		identity:     deps.Identity,
		exposeDetail: deps.ExposeDetail,
		logger:       log.Module(componentName),
	}
	c.initAlertRoutes()
	c.initAgentRoutes()
	c.initRoutePerformanceRoutes()
	c.initStreamRoutes(deps.StreamMiddleware...)
	c.initDashboardRoutes()
	return c
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// HandleError renders err. Categorised errors choose their own status and,
// below 500, their own message; anything else uses fallback and message.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, fallback int) error {
	status := fallback
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		status = errors.HTTPStatus(err)
		if status < http.StatusInternalServerError {
			message = ee.Error()
		}
	}

	resp := ErrorResponse{Error: message}
	if status >= http.StatusInternalServerError {
		c.logErrorIfEnabled(message,
			logger.Error(err),
			logger.String("path", ctx.Path()),
			logger.String("request_id", ctx.Response().Header().Get(echo.HeaderXRequestID)))
		if c.exposeDetail {
			resp.Detail = err.Error()
		}
	}
	return ctx.JSON(status, resp)
}

func (c *Controller) badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// bind decodes the body into v and validates it. Failures are validation
// errors so HandleError renders them as 400.
func (c *Controller) bind(ctx echo.Context, v any) error {
	if err := ctx.Bind(v); err != nil {
		return errors.Newf("invalid request body").
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("cause", err.Error()).
			Build()
	}
	return ctx.Validate(v)
}

func (c *Controller) userID(ctx echo.Context) string {
	if c.identity != nil {
		if id := c.identity(ctx); id != "" {
			return id
		}
	}
	return AnonymousUser
}

func (c *Controller) logErrorIfEnabled(msg string, fields ...logger.Field) {
	if c.logger != nil {
		c.logger.Error(msg, fields...)
	}
}

func (c *Controller) logDebugIfEnabled(msg string, fields ...logger.Field) {
	if c.logger != nil {
		c.logger.Debug(msg, fields...)
	}
}
