package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/velociti/velociti/internal/logger"
)

// Sink receives alert events from the bus, e.g. an MQTT publisher or a
// push notification service.
type Sink interface {
	Name() string
	Handle(ctx context.Context, event *AlertEvent) error
}

const defaultSinkTimeout = 10 * time.Second

// Dispatcher forwards bus events to external sinks. Failures are logged and
// never reach the publisher.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	onError func(sink string)
	log     logger.Logger
}

// NewDispatcher creates a Dispatcher for sinks.
func NewDispatcher(log logger.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		timeout: defaultSinkTimeout,
		log:     log.Module("dispatcher"),
	}
}

// SetTimeout bounds each sink call.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// OnError registers a callback invoked with the sink name on every failure.
func (d *Dispatcher) OnError(fn func(sink string)) {
	d.onError = fn
}

// Attach subscribes the dispatcher to bus.
func (d *Dispatcher) Attach(bus *EventBus) {
	bus.Subscribe(d.Dispatch)
}

// Dispatch hands event to every sink in order.
func (d *Dispatcher) Dispatch(event *AlertEvent) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Handle(ctx, event)
		cancel()
		if err != nil {
			d.log.Error("alert sink failed",
				logger.String("sink", sink.Name()),
				logger.String("event", event.Name),
				logger.Error(err))
			if d.onError != nil {
				d.onError(sink.Name())
			}
		}
	}
}

// RenderTemplate substitutes {{name}} placeholders with event properties.
// An empty template renders the default title for the event.
func RenderTemplate(tmpl string, event *AlertEvent) string {
	if tmpl == "" {
		return defaultTemplate(event)
	}
	props := event.Properties()
	pairs := make([]string, 0, len(props)*2)
	for k, v := range props {
		pairs = append(pairs, fmt.Sprintf("{{%s}}", k), fmt.Sprintf("%v", v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func defaultTemplate(event *AlertEvent) string {
	switch {
	case event.Alert != nil && event.Name == EventAlertCreated:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(event.Alert.Priority), event.Alert.Title)
	case event.Alert != nil:
		return fmt.Sprintf("Alert %s is now %s", event.Alert.Title, event.Status)
	case event.AgentID != "":
		return fmt.Sprintf("Agent %s is now %s", event.AgentID, event.Status)
	default:
		return event.Name
	}
}
