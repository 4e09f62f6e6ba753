package telemetry

import (
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

func TestReporter_TagsComponentAndCategory(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	hub := sentry.NewHub(client, sentry.NewScope())

	report := Reporter(hub)
	report(errors.Newf("connection refused").
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", "list_alerts").
		Build())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "datastore", events[0].Tags["component"])
	assert.Equal(t, "database", events[0].Tags["category"])
	assert.Equal(t, "list_alerts", events[0].Contexts["error"]["operation"])
}

func TestInit_NoDSNIsNoop(t *testing.T) {
	t.Parallel()

	flush, err := Init(&conf.Settings{}, logger.NewNop())
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}
