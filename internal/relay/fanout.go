package relay

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/telemetry"
)

// Broadcaster delivers admitted events to every matched subscription.
// Delivery never blocks admission: each send goes into the owning
// connection's buffered outbound channel, and a full buffer drops that
// one delivery rather than stalling the publisher. Subscriptions of
// closed connections are pruned as they are encountered.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// NewBroadcaster builds the fan-out engine over a registry.
func NewBroadcaster(registry *Registry, logger *zap.Logger, metrics *telemetry.Metrics) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{registry: registry, logger: logger, metrics: metrics}
}

// Publish fans one admitted event out to all matched subscriptions, at
// most one delivery per subscription.
func (b *Broadcaster) Publish(e *event.Event) {
	matched := b.registry.Match(e)
	if len(matched) == 0 {
		return
	}

	encoded, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("event encode failed",
			zap.String("event_id", e.ID),
			zap.Error(err))
		return
	}

	for _, sub := range matched {
		if sub.conn.Closed() {
			b.registry.RemoveConnection(sub.ConnID)
			continue
		}
		frame, err := EncodeResp(sub.ID, json.RawMessage(encoded))
		if err != nil {
			b.logger.Error("frame encode failed", zap.Error(err))
			continue
		}
		delivered := sub.conn.Send(frame)
		b.metrics.RecordDelivery(delivered)
		if !delivered {
			b.logger.Warn("delivery dropped",
				zap.String("subscription_id", sub.ID),
				zap.String("connection_id", sub.ConnID),
				zap.String("event_id", e.ID))
		}
	}
}
