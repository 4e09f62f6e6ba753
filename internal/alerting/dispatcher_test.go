package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []*AlertEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(ctx context.Context, event *AlertEvent) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.NewStd("missing deadline")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) received() []*AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*AlertEvent(nil), s.events...)
}

func testAlert() *entities.Alert {
	route := "LHR-JFK"
	impact := 125000.0
	return &entities.Alert{
		ID:       "a1",
		Title:    "Fare gap on LHR-JFK",
		Priority: entities.PriorityHigh,
		Category: entities.CategoryCompetitive,
		AgentID:  "competitive",
		Route:    &route,
		Impact:   &impact,
	}
}

func TestDispatcher_FailingSinkDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	failing := &recordingSink{name: "failing", err: errors.NewStd("broker down")}
	ok := &recordingSink{name: "ok"}
	var failed []string

	d := NewDispatcher(logger.NewNop(), failing, ok)
	d.OnError(func(sink string) { failed = append(failed, sink) })
	d.Dispatch(&AlertEvent{Name: EventAlertCreated, Alert: testAlert()})

	assert.Len(t, failing.received(), 1)
	assert.Len(t, ok.received(), 1)
	assert.Equal(t, []string{"failing"}, failed)
}

func TestDispatcher_AttachedToBus(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{name: "rec"}
	bus := NewEventBus(logger.NewNop())
	NewDispatcher(logger.NewNop(), sink).Attach(bus)

	bus.Publish(&AlertEvent{Name: EventAgentStatusChanged, AgentID: "network", Status: "maintenance"})
	bus.Stop()

	events := sink.received()
	require.Len(t, events, 1)
	assert.Equal(t, "network", events[0].AgentID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	event := &AlertEvent{Name: EventAlertCreated, Alert: testAlert(), Timestamp: time.Now()}

	got := RenderTemplate("{{priority}} alert on {{route}}: {{title}}", event)
	assert.Equal(t, "high alert on LHR-JFK: Fare gap on LHR-JFK", got)

	assert.Equal(t, "[HIGH] Fare gap on LHR-JFK", RenderTemplate("", event))

	status := &AlertEvent{Name: EventAlertStatusChanged, Alert: testAlert(), Status: "dismissed"}
	assert.Equal(t, "Alert Fare gap on LHR-JFK is now dismissed", RenderTemplate("", status))

	agent := &AlertEvent{Name: EventAgentStatusChanged, AgentID: "network", Status: "learning"}
	assert.Equal(t, "Agent network is now learning", RenderTemplate("", agent))
	assert.Equal(t, "unknown {{nope}}", RenderTemplate("unknown {{nope}}", agent))
}
