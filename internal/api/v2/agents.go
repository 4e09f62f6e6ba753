package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/velociti/velociti/internal/agents"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

// FeedbackRequest is the body of POST /agents/:agentId/feedback.
type FeedbackRequest struct {
	AlertID      string   `json:"alertId" validate:"required,max=36"`
	Rating       int      `json:"rating"`
	Comment      *string  `json:"comment,omitempty" validate:"omitempty,max=2000"`
	ActionTaken  bool     `json:"actionTaken"`
	ActualImpact *float64 `json:"actualImpact,omitempty"`
}

// initAgentRoutes registers agent endpoints.
func (c *Controller) initAgentRoutes() {
	group := c.Group.Group("/agents")

	group.GET("", c.ListAgents)
	group.GET("/:agentId", c.GetAgent)
	group.PATCH("/:agentId/status", c.UpdateAgentStatus)
	group.POST("/:agentId/run", c.RunAgent)
	group.POST("/:agentId/feedback", c.SubmitFeedback)
}

// ListAgents returns every agent.
func (c *Controller) ListAgents(ctx echo.Context) error {
	list, err := c.service.ListAgents(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list agents", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, list)
}

// GetAgent returns one agent.
func (c *Controller) GetAgent(ctx echo.Context) error {
	agent, err := c.service.GetAgent(ctx.Request().Context(), ctx.Param("agentId"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get agent", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, agent)
}

// UpdateAgentStatus changes an agent's operating status.
func (c *Controller) UpdateAgentStatus(ctx echo.Context) error {
	var req UpdateStatusRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	if err := c.service.UpdateAgentStatus(ctx.Request().Context(), ctx.Param("agentId"), req.Status); err != nil {
		return c.HandleError(ctx, err, "Failed to update agent status", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// RunAgent executes an agent immediately and returns the execution summary.
func (c *Controller) RunAgent(ctx echo.Context) error {
	if c.runner == nil {
		return ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Agent runner is not available"})
	}

	agentID := ctx.Param("agentId")
	result, err := c.runner.Run(ctx.Request().Context(), agentID)
	if errors.Is(err, agents.ErrRunInProgress) {
		return ctx.JSON(http.StatusConflict, ErrorResponse{Error: "Agent run already in progress"})
	}
	if err != nil && result == nil {
		return c.HandleError(ctx, err, "Failed to run agent", http.StatusInternalServerError)
	}
	if err != nil {
		// The execution row records the failure; the summary still goes back.
		c.logErrorIfEnabled("agent run failed",
			logger.String("agent_id", agentID),
			logger.Error(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// SubmitFeedback records an analyst rating for an alert raised by the agent.
func (c *Controller) SubmitFeedback(ctx echo.Context) error {
	var req FeedbackRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	_, err := c.service.SubmitFeedback(ctx.Request().Context(), alerting.FeedbackInput{
		AgentID:      ctx.Param("agentId"),
		AlertID:      req.AlertID,
		UserID:       c.userID(ctx),
		Rating:       req.Rating,
		Comment:      req.Comment,
		ActionTaken:  req.ActionTaken,
		ActualImpact: req.ActualImpact,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to submit feedback", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}
