package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

// CreateAlertRequest is the body of POST /alerts.
type CreateAlertRequest struct {
	Title       string            `json:"title" validate:"required,max=255"`
	Description string            `json:"description" validate:"max=4000"`
	Priority    string            `json:"priority" validate:"required"`
	Category    string            `json:"category" validate:"required"`
	AgentID     string            `json:"agentId" validate:"required,max=64"`
	Route       *string           `json:"route,omitempty" validate:"omitempty,max=20"`
	Impact      *float64          `json:"impact,omitempty"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Metadata    entities.Metadata `json:"metadata"`
}

// UpdateStatusRequest is the body of the status PATCH endpoints.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// initAlertRoutes registers alert endpoints.
func (c *Controller) initAlertRoutes() {
	alerts := c.Group.Group("/alerts")

	alerts.GET("", c.ListAlerts)
	alerts.POST("", c.CreateAlert)
	alerts.GET("/schema", c.GetAlertSchema)
	alerts.PATCH("/:id/status", c.UpdateAlertStatus)
	alerts.GET("/:id/feedback", c.ListAlertFeedback)
}

// ListAlerts returns alerts newest first, optionally filtered by priority.
func (c *Controller) ListAlerts(ctx echo.Context) error {
	limit, err := parseLimit(ctx.QueryParam("limit"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid limit", http.StatusBadRequest)
	}

	alerts, err := c.service.ListAlerts(ctx.Request().Context(), alerting.ListFilter{
		Priority: ctx.QueryParam("priority"),
		Status:   ctx.QueryParam("status"),
		Category: ctx.QueryParam("category"),
		AgentID:  ctx.QueryParam("agentId"),
		Limit:    limit,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alerts", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, alerts)
}

// CreateAlert persists a new alert and notifies realtime clients.
func (c *Controller) CreateAlert(ctx echo.Context) error {
	var req CreateAlertRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	alert, err := c.service.CreateAlert(ctx.Request().Context(), alerting.CreateAlertInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
		AgentID:     req.AgentID,
		Route:       req.Route,
		Impact:      req.Impact,
		Confidence:  req.Confidence,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to create alert", http.StatusInternalServerError)
	}

	c.logDebugIfEnabled("alert created",
		logger.String("alert_id", alert.ID),
		logger.String("priority", alert.Priority))
	return ctx.JSON(http.StatusCreated, alert)
}

// UpdateAlertStatus moves an alert to a new status.
func (c *Controller) UpdateAlertStatus(ctx echo.Context) error {
	var req UpdateStatusRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	if err := c.service.UpdateAlertStatus(ctx.Request().Context(), ctx.Param("id"), req.Status); err != nil {
		return c.HandleError(ctx, err, "Failed to update alert status", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListAlertFeedback returns the feedback attached to one alert.
func (c *Controller) ListAlertFeedback(ctx echo.Context) error {
	feedback, err := c.service.ListFeedback(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list feedback", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, feedback)
}

// GetAlertSchema returns the enumerations and transition policy for the UI.
func (c *Controller) GetAlertSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.service.Schema())
}

// parseLimit reads the limit query parameter. An absent value selects the
// default; anything that is not a positive integer is rejected.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return alerting.NormalizeLimit(0)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.Newf("limit must be a positive integer").
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("limit", raw).
			Build()
	}
	return alerting.NormalizeLimit(n)
}
