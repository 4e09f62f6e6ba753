package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	apiv2 "github.com/velociti/velociti/internal/api/v2"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

const genericServerError = "Internal server error"

// httpErrorHandler renders errors returned by handlers and middleware as
// {"error": message}. Categorised errors map to their HTTP status. Server
// errors carry the raw error as "detail" outside production only.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := genericServerError

	var he *echo.HTTPError
	var ee *errors.EnhancedError
	switch {
	case errors.As(err, &he):
		status = he.Code
		if m, ok := he.Message.(string); ok && m != "" {
			message = m
		} else {
			message = http.StatusText(status)
		}
	case errors.As(err, &ee):
		status = errors.HTTPStatus(err)
		if status < http.StatusInternalServerError {
			message = ee.Error()
		}
	}

	resp := apiv2.ErrorResponse{Error: message}
	if status >= http.StatusInternalServerError {
		s.logger.Error("unhandled request error",
			logger.Error(err),
			logger.String("path", c.Path()),
			logger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
		if !s.settings.IsProduction() {
			resp.Detail = err.Error()
		} else {
			resp.Error = genericServerError
		}
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, resp)
	}
	if werr != nil {
		s.logger.Debug("failed to write error response", logger.Error(werr))
	}
}
