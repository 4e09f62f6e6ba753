package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/velociti/velociti/internal/logger"
)

const healthTimeout = 2 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// initDashboardRoutes registers summary and health endpoints.
func (c *Controller) initDashboardRoutes() {
	c.Group.GET("/dashboard/summary", c.GetDashboardSummary)
	c.Group.GET("/health", c.HealthCheck)
}

// GetDashboardSummary returns counts, recent alerts, agents and network metrics.
func (c *Controller) GetDashboardSummary(ctx echo.Context) error {
	summary, err := c.service.DashboardSummary(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to build dashboard summary", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, summary)
}

// HealthCheck reports service and database health. An unreachable database
// answers 503 so load balancers take the instance out of rotation.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	resp := HealthResponse{Status: "ok", Database: "ok"}
	if c.health == nil {
		resp.Database = "unknown"
		return ctx.JSON(http.StatusOK, resp)
	}

	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
	defer cancel()
	if err := c.health.Ping(pingCtx); err != nil {
		c.logErrorIfEnabled("health check failed", logger.Error(err))
		resp.Status = "degraded"
		resp.Database = "unavailable"
		return ctx.JSON(http.StatusServiceUnavailable, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}
