package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
	"github.com/velociti/velociti/internal/streaming"
)

// StreamRequest is the body of POST /llm/stream.
type StreamRequest struct {
	Query    string `json:"query" validate:"required,max=8000"`
	Provider string `json:"provider" validate:"max=32"`
	Model    string `json:"model" validate:"max=128"`
}

// initStreamRoutes registers the query relay endpoints. mw applies only to
// the stream itself.
func (c *Controller) initStreamRoutes(mw ...echo.MiddlewareFunc) {
	llm := c.Group.Group("/llm")

	llm.GET("/providers", c.ListProviders)
	llm.POST("/stream", c.StreamQuery, mw...)
}

// ListProviders returns the configured provider names.
func (c *Controller) ListProviders(ctx echo.Context) error {
	if c.relay == nil {
		return ctx.JSON(http.StatusOK, map[string]any{"providers": []string{}})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"providers": c.relay.Providers()})
}

// StreamQuery relays a natural-language query to a provider as a
// Server-Sent-Events stream. Validation and provider lookup happen before
// the stream opens; once it has opened failures travel as error frames.
func (c *Controller) StreamQuery(ctx echo.Context) error {
	if c.relay == nil {
		return ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Query relay is not available"})
	}

	var req StreamRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	provider, err := c.relay.Resolve(req.Provider)
	if err != nil {
		return c.HandleError(ctx, err, "Unknown provider", http.StatusBadRequest)
	}

	res := ctx.Response()
	streaming.SetHeaders(res.Header())
	res.WriteHeader(http.StatusOK)

	result, err := c.relay.Stream(ctx.Request().Context(), provider, req.Query, req.Model, streaming.NewEventWriter(res))
	switch {
	case errors.Is(err, streaming.ErrClientGone):
		c.logDebugIfEnabled("stream client disconnected",
			logger.String("provider", provider.Name()))
	case err != nil:
		// Already reported to the client as an error frame.
		c.logDebugIfEnabled("stream ended with upstream error",
			logger.String("provider", provider.Name()),
			logger.Error(err))
	default:
		c.logDebugIfEnabled("stream finished",
			logger.String("provider", result.Provider),
			logger.Int("tokens", result.Tokens))
	}
	return nil
}
