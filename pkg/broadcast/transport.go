package broadcast

import (
	"go.uber.org/zap"

	"leaderbus/pkg/metrics"
	"leaderbus/pkg/models"
	"leaderbus/pkg/resilience"
)

// Frames turns raw payloads from a network transport into messages for a Hub.
type Frames struct {
	transport string
	hub       *Hub
	log       *zap.Logger
}

func NewFrames(transport string, hub *Hub, log *zap.Logger) *Frames {
	return &Frames{transport: transport, hub: hub, log: log}
}

// Deliver decodes payload and fans it out. Undecodable and foreign-purpose
// frames are dropped.
func (f *Frames) Deliver(payload []byte) {
	msg, err := models.Decode(payload)
	if err != nil {
		metrics.FramesDropped.WithLabelValues(f.transport, "malformed").Inc()
		f.log.Debug("dropping undecodable frame", zap.Error(err), zap.Int("size", len(payload)))
		return
	}
	if !msg.IsElection() {
		metrics.FramesDropped.WithLabelValues(f.transport, "foreign").Inc()
		return
	}

	metrics.MessagesReceived.WithLabelValues(string(msg.Action)).Inc()
	f.hub.Deliver(msg)
}

// NewPublishBreaker builds the breaker a network transport wraps Publish in,
// reporting its state as a metric.
func NewPublishBreaker(transport string, cfg resilience.BreakerConfig, log *zap.Logger) *resilience.Breaker {
	b := resilience.NewBreaker(transport, cfg)
	metrics.BreakerState.WithLabelValues(transport).Set(float64(resilience.StateClosed))
	b.OnStateChange(func(name string, from, to resilience.State) {
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		log.Warn("publish breaker changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})
	return b
}
