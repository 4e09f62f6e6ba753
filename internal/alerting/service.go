package alerting

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

// Broadcaster pushes alert changes to connected realtime clients. Calls must
// enqueue to every open connection before returning.
type Broadcaster interface {
	BroadcastNewAlert(alert *entities.Alert)
	BroadcastAlertStatus(alertID, status string)
	BroadcastAgentStatus(agentID, status string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastNewAlert(*entities.Alert)   {}
func (nopBroadcaster) BroadcastAlertStatus(string, string) {}
func (nopBroadcaster) BroadcastAgentStatus(string, string) {}

// Repositories groups the stores the service reads and writes.
type Repositories struct {
	Alerts   repository.AlertRepository
	Agents   repository.AgentRepository
	Feedback repository.FeedbackRepository
	Routes   repository.RoutePerformanceRepository
}

// Service owns the alert lifecycle. Every write validates its input before
// touching the store and notifies realtime clients and the event bus after
// a successful write.
type Service struct {
	repos       Repositories
	broadcaster Broadcaster
	bus         *EventBus
	summary     *cache.Cache
	recent      int
	now         func() time.Time
	log         logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBroadcaster sets the realtime broadcaster.
func WithBroadcaster(b Broadcaster) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithEventBus sets the bus that receives lifecycle events.
func WithEventBus(bus *EventBus) ServiceOption {
	return func(s *Service) { s.bus = bus }
}

// WithSummaryTTL caches the dashboard summary for ttl. Writes clear it.
// The cache holds a single key, so expiry is checked on read and no janitor
// goroutine is started.
func WithSummaryTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.summary = cache.New(ttl, 0)
		}
	}
}

// WithRecentAlerts sets how many alerts the dashboard summary lists.
func WithRecentAlerts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.recent = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates the alert lifecycle service.
func NewService(repos Repositories, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repos:       repos,
		broadcaster: nopBroadcaster{},
		recent:      RecentAlertCount,
		now:         time.Now,
		log:         log.Module(componentName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListFilter selects alerts for ListAlerts.
type ListFilter struct {
	Priority string
	Status   string
	Category string
	AgentID  string
	Limit    int
}

// CreateAlertInput is the payload for CreateAlert.
type CreateAlertInput struct {
	Title       string
	Description string
	Priority    string
	Category    string
	AgentID     string
	Route       *string
	Impact      *float64
	Confidence  *float64
	Metadata    entities.Metadata
}

// FeedbackInput is the payload for SubmitFeedback.
type FeedbackInput struct {
	AgentID      string
	AlertID      string
	UserID       string
	Rating       int
	Comment      *string
	ActionTaken  bool
	ActualImpact *float64
}

// NormalizeLimit applies the list limit contract: 0 means the default,
// negative values are rejected and anything above the maximum is clamped.
func NormalizeLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultListLimit, nil
	case limit < 0:
		return 0, validationError("limit must be a positive integer", "limit", limit)
	case limit > MaxListLimit:
		return MaxListLimit, nil
	default:
		return limit, nil
	}
}

// ListAlerts returns alerts newest first.
func (s *Service) ListAlerts(ctx context.Context, filter ListFilter) ([]entities.Alert, error) {
	if err := checkEnum("priority", filter.Priority, entities.Priorities); err != nil {
		return nil, err
	}
	if err := checkEnum("status", filter.Status, entities.Statuses); err != nil {
		return nil, err
	}
	if err := checkEnum("category", filter.Category, entities.Categories); err != nil {
		return nil, err
	}
	limit, err := NormalizeLimit(filter.Limit)
	if err != nil {
		return nil, err
	}

	alerts, err := s.repos.Alerts.List(ctx, repository.AlertFilter{
		Priority: filter.Priority,
		Status:   filter.Status,
		Category: filter.Category,
		AgentID:  filter.AgentID,
		Limit:    limit,
	})
	if err != nil {
		return nil, databaseError(err, "list_alerts")
	}
	return alerts, nil
}

// GetAlert returns one alert.
func (s *Service) GetAlert(ctx context.Context, id string) (*entities.Alert, error) {
	alert, err := s.repos.Alerts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return nil, notFoundError("alert not found", "alert_id", id)
		}
		return nil, databaseError(err, "get_alert")
	}
	return alert, nil
}

// CreateAlert validates and stores a new active alert, then broadcasts it.
func (s *Service) CreateAlert(ctx context.Context, in CreateAlertInput) (*entities.Alert, error) {
	if err := s.validateCreate(ctx, &in); err != nil {
		return nil, err
	}

	alert := &entities.Alert{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Priority:    in.Priority,
		Category:    in.Category,
		Status:      entities.StatusActive,
		AgentID:     in.AgentID,
		Route:       in.Route,
		Impact:      in.Impact,
		Confidence:  in.Confidence,
		Metadata:    in.Metadata,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repos.Alerts.Create(ctx, alert); err != nil {
		return nil, databaseError(err, "create_alert")
	}

	if err := s.repos.Agents.IncrementAlertsGenerated(ctx, alert.AgentID, 1); err != nil {
		s.log.Warn("failed to increment agent alert counter",
			logger.String("agent_id", alert.AgentID),
			logger.Error(err))
	}

	s.invalidate()
	s.broadcaster.BroadcastNewAlert(alert)
	s.publish(&AlertEvent{
		Name:    EventAlertCreated,
		Alert:   alert,
		AgentID: alert.AgentID,
		Status:  alert.Status,
	})

	s.log.Info("alert created",
		logger.String("alert_id", alert.ID),
		logger.String("agent_id", alert.AgentID),
		logger.String("priority", alert.Priority))
	return alert, nil
}

func (s *Service) validateCreate(ctx context.Context, in *CreateAlertInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return validationError("title is required", "field", "title")
	}
	if !slices.Contains(entities.Priorities, in.Priority) {
		return validationError("invalid priority", "priority", in.Priority)
	}
	if !slices.Contains(entities.Categories, in.Category) {
		return validationError("invalid category", "category", in.Category)
	}
	if in.Confidence != nil && (math.IsNaN(*in.Confidence) || *in.Confidence < 0 || *in.Confidence > 1) {
		return validationError("confidence must be between 0 and 1", "confidence", *in.Confidence)
	}
	if in.Impact != nil && (math.IsNaN(*in.Impact) || math.IsInf(*in.Impact, 0)) {
		return validationError("impact must be a finite number", "field", "impact")
	}
	if k := in.Metadata.Kind; k != "" && k != entities.MetadataOpaque && k != in.Category {
		return validationError("metadata kind does not match category", "metadata_kind", k)
	}
	if in.AgentID == "" {
		return validationError("agent_id is required", "field", "agent_id")
	}
	exists, err := s.repos.Agents.Exists(ctx, in.AgentID)
	if err != nil {
		return databaseError(err, "check_agent")
	}
	if !exists {
		return validationError("unknown agent", "agent_id", in.AgentID)
	}
	return nil
}

// UpdateAlertStatus moves an alert to status. Same-status updates do nothing.
func (s *Service) UpdateAlertStatus(ctx context.Context, id, status string) error {
	if !slices.Contains(entities.Statuses, status) {
		return validationError("invalid status", "status", status)
	}

	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.Status == status {
		return nil
	}
	if !CanTransition(alert.Status, status) {
		return errors.Newf("cannot change alert status from %s to %s", alert.Status, status).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("alert_id", id).
			Build()
	}

	var resolvedAt *time.Time
	if status == entities.StatusDismissed {
		now := s.now().UTC()
		resolvedAt = &now
	}
	if err := s.repos.Alerts.UpdateStatus(ctx, id, status, resolvedAt); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return notFoundError("alert not found", "alert_id", id)
		}
		return databaseError(err, "update_alert_status")
	}

	previous := alert.Status
	alert.Status = status
	alert.ResolvedAt = resolvedAt

	s.invalidate()
	s.broadcaster.BroadcastAlertStatus(id, status)
	s.publish(&AlertEvent{
		Name:           EventAlertStatusChanged,
		Alert:          alert,
		AgentID:        alert.AgentID,
		Status:         status,
		PreviousStatus: previous,
	})
	return nil
}

// SubmitFeedback records an analyst rating against the alert's agent.
func (s *Service) SubmitFeedback(ctx context.Context, in FeedbackInput) (*entities.Feedback, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, validationError("rating must be between 1 and 5", "rating", in.Rating)
	}
	if in.AlertID == "" {
		return nil, validationError("alert_id is required", "field", "alert_id")
	}

	alert, err := s.repos.Alerts.Get(ctx, in.AlertID)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return nil, validationError("alert does not exist", "alert_id", in.AlertID)
		}
		return nil, databaseError(err, "get_alert")
	}
	if in.AgentID != "" && in.AgentID != alert.AgentID {
		return nil, validationError("alert does not belong to agent", "agent_id", in.AgentID)
	}

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = "anonymous"
	}
	fb := &entities.Feedback{
		AlertID:      alert.ID,
		AgentID:      alert.AgentID,
		UserID:       userID,
		Rating:       in.Rating,
		Comment:      in.Comment,
		ActionTaken:  in.ActionTaken,
		ActualImpact: in.ActualImpact,
	}
	if err := s.repos.Feedback.Create(ctx, fb); err != nil {
		return nil, databaseError(err, "create_feedback")
	}
	s.invalidate()
	return fb, nil
}

// ListFeedback returns the feedback recorded for one alert.
func (s *Service) ListFeedback(ctx context.Context, alertID string) ([]entities.Feedback, error) {
	if _, err := s.GetAlert(ctx, alertID); err != nil {
		return nil, err
	}
	rows, err := s.repos.Feedback.ListByAlert(ctx, alertID)
	if err != nil {
		return nil, databaseError(err, "list_feedback")
	}
	return rows, nil
}

// ListAgents returns every agent.
func (s *Service) ListAgents(ctx context.Context) ([]entities.Agent, error) {
	agents, err := s.repos.Agents.List(ctx)
	if err != nil {
		return nil, databaseError(err, "list_agents")
	}
	return agents, nil
}

// GetAgent returns one agent.
func (s *Service) GetAgent(ctx context.Context, id string) (*entities.Agent, error) {
	agent, err := s.repos.Agents.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			return nil, notFoundError("agent not found", "agent_id", id)
		}
		return nil, databaseError(err, "get_agent")
	}
	return agent, nil
}

// UpdateAgentStatus changes an agent's status and broadcasts it.
func (s *Service) UpdateAgentStatus(ctx context.Context, id, status string) error {
	if !slices.Contains(entities.AgentStatuses, status) {
		return validationError("invalid agent status", "status", status)
	}
	agent, err := s.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status == status {
		return nil
	}
	if err := s.repos.Agents.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			return notFoundError("agent not found", "agent_id", id)
		}
		return databaseError(err, "update_agent_status")
	}

	s.invalidate()
	s.broadcaster.BroadcastAgentStatus(id, status)
	s.publish(&AlertEvent{
		Name:           EventAgentStatusChanged,
		AgentID:        id,
		Status:         status,
		PreviousStatus: agent.Status,
	})
	return nil
}

// Schema returns the alerting enumerations and transition policy.
func (s *Service) Schema() Schema {
	return GetSchema()
}

func (s *Service) publish(event *AlertEvent) {
	if s.bus == nil {
		return
	}
	event.Timestamp = s.now()
	s.bus.Publish(event)
}

func (s *Service) invalidate() {
	if s.summary != nil {
		s.summary.Flush()
	}
}

func checkEnum(field, value string, allowed []string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return validationError("invalid "+field, field, value)
}

func validationError(msg, key string, value any) error {
	return errors.Newf("%s", msg).
		Component(componentName).
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}

func notFoundError(msg, key string, value any) error {
	return errors.Newf("%s", msg).
		Component(componentName).
		Category(errors.CategoryNotFound).
		Context(key, value).
		Build()
}

func databaseError(err error, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}
