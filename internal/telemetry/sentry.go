// Package telemetry forwards internal errors to Sentry.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

const flushTimeout = 2 * time.Second

// Init configures Sentry and installs it as the error reporter. It returns a
// flush function to call on shutdown. With no DSN configured it is a no-op.
func Init(settings *conf.Settings, log logger.Logger) (func(), error) {
	if settings.Sentry.DSN == "" {
		log.Debug("sentry disabled, no dsn configured")
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Environment:      settings.Environment,
		Release:          settings.Sentry.Release,
		SampleRate:       settings.Sentry.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	errors.SetReporter(Reporter(sentry.CurrentHub()))
	log.Info("sentry error reporting enabled", logger.String("environment", settings.Environment))

	return func() {
		errors.SetReporter(nil)
		sentry.Flush(flushTimeout)
	}, nil
}

// Reporter returns an errors.Reporter that captures each error on hub with
// its component and category as tags.
func Reporter(hub *sentry.Hub) errors.Reporter {
	return func(ee *errors.EnhancedError) {
		hub.WithScope(func(scope *sentry.Scope) {
			if c := ee.GetComponent(); c != "" {
				scope.SetTag("component", c)
			}
			scope.SetTag("category", string(ee.GetCategory()))
			if ctx := ee.GetContext(); len(ctx) > 0 {
				scope.SetContext("error", sentry.Context(ctx))
			}
			hub.CaptureException(ee)
		})
	}
}
