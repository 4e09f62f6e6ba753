package notification

import (
	"context"

	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/logger"
)

// BuildSinks creates the sinks enabled in settings. A sink that fails to
// start is logged and left out so the server still comes up. The returned
// func releases broker connections.
func BuildSinks(ctx context.Context, s *conf.Settings, log logger.Logger) ([]alerting.Sink, func()) {
	var (
		sinks   []alerting.Sink
		closers []func()
	)
	if len(s.Notify.URLs) > 0 {
		sink, err := NewShoutrrrSink(s.Notify, log)
		if err != nil {
			log.Warn("push notifications disabled", logger.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if s.MQTT.Enabled {
		sink, err := NewMQTTSink(ctx, s.MQTT, log)
		if err != nil {
			log.Warn("mqtt publishing disabled", logger.Error(err), logger.String("broker", s.MQTT.Broker))
		} else {
			sinks = append(sinks, sink)
			closers = append(closers, sink.Close)
		}
	}
	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
