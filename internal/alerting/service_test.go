package alerting

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/datastore/repository"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
	"github.com/velociti/velociti/internal/testutil/testdb"
	"gorm.io/gorm"
)

type fakeBroadcaster struct {
	mu           sync.Mutex
	newAlerts    []*entities.Alert
	statusChange [][2]string
	agentChange  [][2]string
}

func (f *fakeBroadcaster) BroadcastNewAlert(a *entities.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newAlerts = append(f.newAlerts, a)
}

func (f *fakeBroadcaster) BroadcastAlertStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusChange = append(f.statusChange, [2]string{id, status})
}

func (f *fakeBroadcaster) BroadcastAgentStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agentChange = append(f.agentChange, [2]string{id, status})
}

type serviceFixture struct {
	db    *gorm.DB
	svc   *Service
	bc    *fakeBroadcaster
	bus   *EventBus
	repos Repositories

	mu     sync.Mutex
	events []*AlertEvent
}

func (f *serviceFixture) published() []*AlertEvent {
	f.bus.Stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*AlertEvent(nil), f.events...)
}

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func newServiceFixture(t *testing.T, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	db := testdb.New(t)
	testdb.SeedAgent(t, db, "competitive")
	testdb.SeedAgent(t, db, "performance")

	f := &serviceFixture{
		db:  db,
		bc:  &fakeBroadcaster{},
		bus: NewEventBus(logger.NewNop()),
		repos: Repositories{
			Alerts:   repository.NewAlertRepository(db),
			Agents:   repository.NewAgentRepository(db),
			Feedback: repository.NewFeedbackRepository(db),
			Routes:   repository.NewRoutePerformanceRepository(db),
		},
	}
	f.bus.Subscribe(func(e *AlertEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
	})
	t.Cleanup(f.bus.Stop)

	base := []ServiceOption{
		WithBroadcaster(f.bc),
		WithEventBus(f.bus),
		WithClock(func() time.Time { return fixedNow }),
	}
	f.svc = NewService(f.repos, logger.NewNop(), append(base, opts...)...)
	return f
}

func validInput() CreateAlertInput {
	route := "LHR-JFK"
	confidence := 0.9
	return CreateAlertInput{
		Title:      "Competitor undercut on LHR-JFK",
		Priority:   entities.PriorityHigh,
		Category:   entities.CategoryCompetitive,
		AgentID:    "competitive",
		Route:      &route,
		Confidence: &confidence,
		Metadata: entities.NewCompetitiveMetadata(entities.CompetitiveMetadata{
			Competitor: "BA", CompetitorPrice: 500, OurPrice: 560, PriceGapPct: 12,
		}),
	}
}

func TestService_CreateAlert(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	alert, err := f.svc.CreateAlert(ctx, validInput())
	require.NoError(t, err)

	assert.Len(t, alert.ID, 36)
	assert.Equal(t, entities.StatusActive, alert.Status)
	assert.Equal(t, fixedNow, alert.CreatedAt)
	assert.Nil(t, alert.ResolvedAt)

	stored, err := f.svc.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.MetadataCompetitive, stored.Metadata.Kind)
	require.NotNil(t, stored.Metadata.Competitive)
	assert.Equal(t, "BA", stored.Metadata.Competitive.Competitor)

	agent, err := f.svc.GetAgent(ctx, "competitive")
	require.NoError(t, err)
	assert.Equal(t, int64(1), agent.AlertsGenerated)

	require.Len(t, f.bc.newAlerts, 1)
	assert.Equal(t, alert.ID, f.bc.newAlerts[0].ID)

	events := f.published()
	require.Len(t, events, 1)
	assert.Equal(t, EventAlertCreated, events[0].Name)
	assert.Equal(t, fixedNow, events[0].Timestamp)
}

func TestService_CreateAlertValidation(t *testing.T) {
	t.Parallel()

	tooConfident := 1.2
	tests := []struct {
		name   string
		mutate func(*CreateAlertInput)
	}{
		{"empty title", func(in *CreateAlertInput) { in.Title = "   " }},
		{"unknown priority", func(in *CreateAlertInput) { in.Priority = "urgent" }},
		{"unknown category", func(in *CreateAlertInput) { in.Category = "loyalty" }},
		{"unknown agent", func(in *CreateAlertInput) { in.AgentID = "ghost" }},
		{"missing agent", func(in *CreateAlertInput) { in.AgentID = "" }},
		{"confidence out of range", func(in *CreateAlertInput) { in.Confidence = &tooConfident }},
		{"metadata kind mismatch", func(in *CreateAlertInput) { in.Category = entities.CategoryNetwork }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newServiceFixture(t)
			in := validInput()
			tt.mutate(&in)

			_, err := f.svc.CreateAlert(t.Context(), in)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation), "got %v", err)

			count, err := f.repos.Alerts.Count(t.Context(), repository.AlertFilter{})
			require.NoError(t, err)
			assert.Zero(t, count, "nothing should be written")
			assert.Empty(t, f.bc.newAlerts)
			assert.Empty(t, f.published())
		})
	}
}

func TestService_CreateAlertOpaqueMetadataAnyCategory(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	in := validInput()
	in.Category = entities.CategoryNetwork
	in.Metadata = entities.Metadata{Kind: entities.MetadataOpaque, Opaque: []byte(`{"source":"manual"}`)}

	_, err := f.svc.CreateAlert(t.Context(), in)
	require.NoError(t, err)
}

func TestService_ListAlerts(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	for i, p := range []string{entities.PriorityCritical, entities.PriorityHigh, entities.PriorityCritical} {
		in := validInput()
		in.Priority = p
		f.svc.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Minute) }
		_, err := f.svc.CreateAlert(ctx, in)
		require.NoError(t, err)
	}

	all, err := f.svc.ListAlerts(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt), "newest first")

	critical, err := f.svc.ListAlerts(ctx, ListFilter{Priority: entities.PriorityCritical})
	require.NoError(t, err)
	assert.Len(t, critical, 2)

	limited, err := f.svc.ListAlerts(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = f.svc.ListAlerts(ctx, ListFilter{Priority: "urgent"})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = f.svc.ListAlerts(ctx, ListFilter{Limit: -5})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      int
		want    int
		wantErr bool
	}{
		{0, DefaultListLimit, false},
		{1, 1, false},
		{200, 200, false},
		{500, MaxListLimit, false},
		{-1, 0, true},
	}
	for _, tt := range tests {
		got, err := NormalizeLimit(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestService_UpdateAlertStatus(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	alert, err := f.svc.CreateAlert(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateAlertStatus(ctx, alert.ID, entities.StatusEscalated))

	// escalated cannot go back to active
	err = f.svc.UpdateAlertStatus(ctx, alert.ID, entities.StatusActive)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	require.NoError(t, f.svc.UpdateAlertStatus(ctx, alert.ID, entities.StatusDismissed))

	stored, err := f.svc.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDismissed, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, stored.ResolvedAt.Equal(fixedNow))

	// dismissed is terminal, same status is a silent no-op
	err = f.svc.UpdateAlertStatus(ctx, alert.ID, entities.StatusEscalated)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	require.NoError(t, f.svc.UpdateAlertStatus(ctx, alert.ID, entities.StatusDismissed))

	assert.Equal(t, [][2]string{
		{alert.ID, entities.StatusEscalated},
		{alert.ID, entities.StatusDismissed},
	}, f.bc.statusChange)

	events := f.published()
	require.Len(t, events, 3)
	assert.Equal(t, EventAlertStatusChanged, events[2].Name)
	assert.Equal(t, entities.StatusEscalated, events[2].PreviousStatus)
}

func TestService_UpdateAlertStatusErrors(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	err := f.svc.UpdateAlertStatus(ctx, "00000000-0000-0000-0000-000000000000", entities.StatusDismissed)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
	assert.Equal(t, 404, errors.HTTPStatus(err))

	alert, err := f.svc.CreateAlert(ctx, validInput())
	require.NoError(t, err)
	err = f.svc.UpdateAlertStatus(ctx, alert.ID, "archived")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestService_SubmitFeedback(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	alert, err := f.svc.CreateAlert(ctx, validInput())
	require.NoError(t, err)

	comment := "matched our own analysis"
	fb, err := f.svc.SubmitFeedback(ctx, FeedbackInput{
		AlertID: alert.ID,
		UserID:  "analyst-1",
		Rating:  4,
		Comment: &comment,
	})
	require.NoError(t, err)
	assert.Equal(t, "competitive", fb.AgentID, "attributed to the alert's agent")

	rows, err := f.svc.ListFeedback(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Rating)
}

func TestService_SubmitFeedbackValidation(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	alert, err := f.svc.CreateAlert(ctx, validInput())
	require.NoError(t, err)

	tests := []struct {
		name string
		in   FeedbackInput
	}{
		{"rating too low", FeedbackInput{AlertID: alert.ID, Rating: 0}},
		{"rating too high", FeedbackInput{AlertID: alert.ID, Rating: 6}},
		{"missing alert", FeedbackInput{AlertID: "nope", Rating: 3}},
		{"agent mismatch", FeedbackInput{AlertID: alert.ID, AgentID: "performance", Rating: 3}},
	}
	for _, tt := range tests {
		_, err := f.svc.SubmitFeedback(ctx, tt.in)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation), tt.name)
	}

	count, err := f.repos.Feedback.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_UpdateAgentStatus(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := t.Context()

	require.NoError(t, f.svc.UpdateAgentStatus(ctx, "performance", entities.AgentStatusMaintenance))
	require.NoError(t, f.svc.UpdateAgentStatus(ctx, "performance", entities.AgentStatusMaintenance))

	agent, err := f.svc.GetAgent(ctx, "performance")
	require.NoError(t, err)
	assert.Equal(t, entities.AgentStatusMaintenance, agent.Status)
	assert.Equal(t, [][2]string{{"performance", entities.AgentStatusMaintenance}}, f.bc.agentChange)

	err = f.svc.UpdateAgentStatus(ctx, "performance", "retired")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	err = f.svc.UpdateAgentStatus(ctx, "ghost", entities.AgentStatusActive)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	events := f.published()
	require.Len(t, events, 1)
	assert.Equal(t, EventAgentStatusChanged, events[0].Name)
	assert.Equal(t, entities.AgentStatusActive, events[0].PreviousStatus)
}
