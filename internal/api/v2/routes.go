package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
)

const snapshotDateLayout = "2006-01-02"

// initRoutePerformanceRoutes registers route snapshot endpoints.
func (c *Controller) initRoutePerformanceRoutes() {
	c.Group.GET("/routes/performance", c.ListRoutePerformance)
}

// ListRoutePerformance returns daily route snapshots, newest first.
func (c *Controller) ListRoutePerformance(ctx echo.Context) error {
	limit, err := parseLimit(ctx.QueryParam("limit"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid limit", http.StatusBadRequest)
	}

	filter := repository.RoutePerformanceFilter{
		Route: strings.ToUpper(strings.TrimSpace(ctx.QueryParam("route"))),
		Limit: limit,
	}
	for param, dst := range map[string]*string{"from": &filter.From, "to": &filter.To} {
		raw := ctx.QueryParam(param)
		if raw == "" {
			continue
		}
		if _, err := time.Parse(snapshotDateLayout, raw); err != nil {
			return c.HandleError(ctx, errors.Newf("%s must be a YYYY-MM-DD date", param).
				Component(componentName).
				Category(errors.CategoryValidation).
				Context(param, raw).
				Build(), "Invalid date", http.StatusBadRequest)
		}
		*dst = raw
	}

	rows, err := c.routes.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list route performance", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, rows)
}
