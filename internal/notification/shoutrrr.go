// Package notification delivers alert events to people and systems outside
// the dashboard: push services through shoutrrr and an MQTT broker.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

const componentName = "notification"

// sender is the part of the shoutrrr router the sink needs.
type sender interface {
	Send(message string, params *types.Params) []error
}

// ShoutrrrSink pushes newly created alerts at or above a minimum priority
// to every configured shoutrrr URL.
type ShoutrrrSink struct {
	sender      sender
	minPriority string
	title       string
	log         logger.Logger
}

// NewShoutrrrSink validates the URLs and builds the sink.
func NewShoutrrrSink(s conf.NotifySettings, log logger.Logger) (*ShoutrrrSink, error) {
	if len(s.URLs) == 0 {
		return nil, errors.Newf("no notification urls configured").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(s.URLs...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("invalid notification url: %w", err)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("url_count", len(s.URLs)).
			Build()
	}
	return newShoutrrrSink(router, s.MinPriority, s.Title, log), nil
}

func newShoutrrrSink(snd sender, minPriority, title string, log logger.Logger) *ShoutrrrSink {
	if minPriority == "" {
		minPriority = entities.PriorityHigh
	}
	return &ShoutrrrSink{
		sender:      snd,
		minPriority: minPriority,
		title:       title,
		log:         log.Module(componentName).With(logger.String("sink", "shoutrrr")),
	}
}

func (s *ShoutrrrSink) Name() string { return "shoutrrr" }

// Handle implements alerting.Sink. Events other than alert creation and
// alerts below the minimum priority are ignored.
func (s *ShoutrrrSink) Handle(ctx context.Context, event *alerting.AlertEvent) error {
	if event.Name != alerting.EventAlertCreated || event.Alert == nil {
		return nil
	}
	if entities.PriorityRank(event.Alert.Priority) < entities.PriorityRank(s.minPriority) {
		return nil
	}

	params := types.Params{}
	params.SetTitle(alerting.RenderTemplate(s.title, event))
	message := event.Alert.Description
	if message == "" {
		message = event.Alert.Title
	}

	done := make(chan []error, 1)
	go func() { done <- s.sender.Send(message, &params) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case errs := <-done:
		var failed []string
		for _, err := range errs {
			if err != nil {
				failed = append(failed, err.Error())
			}
		}
		if len(failed) > 0 {
			return errors.Newf("notification delivery failed: %s", strings.Join(failed, "; ")).
				Component(componentName).
				Category(errors.CategoryNetwork).
				Context("alert_id", event.Alert.ID).
				Build()
		}
		s.log.Debug("notification sent",
			logger.String("alert_id", event.Alert.ID),
			logger.String("priority", event.Alert.Priority))
		return nil
	}
}
