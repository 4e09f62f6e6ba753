package alerting

import (
	"sync"
	"time"

	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/logger"
)

// AlertEvent describes a change in the alert lifecycle.
type AlertEvent struct {
	Name           string
	Alert          *entities.Alert // set for alert events
	AgentID        string
	Status         string
	PreviousStatus string
	Timestamp      time.Time
}

// Properties flattens the event for template rendering.
func (e *AlertEvent) Properties() map[string]any {
	props := map[string]any{
		"event":           e.Name,
		"agent_id":        e.AgentID,
		"status":          e.Status,
		"previous_status": e.PreviousStatus,
	}
	if a := e.Alert; a != nil {
		props["alert_id"] = a.ID
		props["title"] = a.Title
		props["description"] = a.Description
		props["priority"] = a.Priority
		props["category"] = a.Category
		if a.Route != nil {
			props["route"] = *a.Route
		}
		if a.Impact != nil {
			props["impact"] = *a.Impact
		}
	}
	return props
}

// AlertEventHandler processes alert events.
type AlertEventHandler func(event *AlertEvent)

const (
	// eventBusBufferSize is the capacity of the async event channel.
	// Events are dropped if the buffer is full to avoid blocking callers.
	eventBusBufferSize = 1000
)

// EventBus is an async pub/sub for alert events. Publish is non-blocking:
// events are sent to a buffered channel and processed by a single worker
// goroutine, so request handlers never wait on external sinks.
type EventBus struct {
	handlers []AlertEventHandler
	mu       sync.RWMutex
	eventCh  chan *AlertEvent
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	onDrop   func()
	log      logger.Logger
}

// BusOption configures an EventBus.
type BusOption func(*EventBus)

// WithBufferSize overrides the event channel capacity.
func WithBufferSize(n int) BusOption {
	return func(b *EventBus) {
		if n > 0 {
			b.eventCh = make(chan *AlertEvent, n)
		}
	}
}

// WithDropHook registers a callback invoked for every dropped event.
func WithDropHook(fn func()) BusOption {
	return func(b *EventBus) { b.onDrop = fn }
}

// NewEventBus creates a new event bus and starts its worker.
func NewEventBus(log logger.Logger, opts ...BusOption) *EventBus {
	b := &EventBus{
		handlers: make([]AlertEventHandler, 0),
		eventCh:  make(chan *AlertEvent, eventBusBufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      log.Module("eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler for alert events.
func (b *EventBus) Subscribe(handler AlertEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event for async processing. If the buffer is full the
// event is dropped. Events published after Stop are discarded.
func (b *EventBus) Publish(event *AlertEvent) {
	select {
	case <-b.stopCh:
		return
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	default:
		b.log.Warn("event bus full, dropping event", logger.String("event", event.Name))
		if b.onDrop != nil {
			b.onDrop()
		}
	}
}

// Stop shuts down the worker after draining queued events and waits for it.
// Safe to call multiple times.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

// processLoop drains the event channel and dispatches to handlers.
func (b *EventBus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) dispatch(event *AlertEvent) {
	b.mu.RLock()
	handlers := make([]AlertEventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the event bus goroutine.
func (b *EventBus) safeCall(handler AlertEventHandler, event *AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				logger.String("event", event.Name),
				logger.Any("panic", r))
		}
	}()
	handler(event)
}
