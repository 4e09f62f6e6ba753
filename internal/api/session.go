package api

import (
	"crypto/rand"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	apiv2 "github.com/velociti/velociti/internal/api/v2"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

const (
	sessionName   = "velociti_session"
	sessionUserID = "user_id"
	sessionMaxAge = 30 * 24 * 60 * 60
)

// SessionManager keeps the analyst identity in a signed cookie. Feedback is
// attributed to it.
type SessionManager struct {
	store sessions.Store
}

// NewSessionManager creates a cookie store keyed by the configured secret.
// Without a secret (development only) a random key is generated, so
// sessions do not survive a restart.
func NewSessionManager(settings *conf.Settings) (*SessionManager, error) {
	key := []byte(settings.Server.SessionSecret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryInternal).
				Context("operation", "generate_session_key").
				Build()
		}
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   settings.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}, nil
}

// UserID returns the analyst id stored in the request's session, or "".
func (m *SessionManager) UserID(c echo.Context) string {
	sess, err := m.store.Get(c.Request(), sessionName)
	if err != nil {
		return ""
	}
	id, _ := sess.Values[sessionUserID].(string)
	return id
}

// SessionRequest is the body of PUT /api/session.
type SessionRequest struct {
	UserID string `json:"userId" validate:"required,max=100"`
}

// SessionResponse is the body of GET /api/session.
type SessionResponse struct {
	UserID string `json:"userId"`
}

func (s *Server) registerSessionRoutes(group *echo.Group) {
	group.GET("/session", s.getSession)
	group.PUT("/session", s.putSession)
	group.DELETE("/session", s.deleteSession)
}

func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, SessionResponse{UserID: s.sessions.UserID(c)})
}

func (s *Server) putSession(c echo.Context) error {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiv2.ErrorResponse{Error: "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sess, _ := s.sessions.store.Get(c.Request(), sessionName)
	sess.Values[sessionUserID] = req.UserID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryInternal).
			Context("operation", "save_session").
			Build()
	}
	s.logger.Debug("analyst session started", logger.String("user_id", req.UserID))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteSession(c echo.Context) error {
	sess, _ := s.sessions.store.Get(c.Request(), sessionName)
	sess.Options.MaxAge = -1
	delete(sess.Values, sessionUserID)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryInternal).
			Context("operation", "clear_session").
			Build()
	}
	return c.NoContent(http.StatusNoContent)
}
