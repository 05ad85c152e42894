package runtime

import (
	"log/slog"

	"nexchat/contract"
	"nexchat/domain/event"
	"nexchat/observability"
)

// PresenceBroadcaster pushes the full online snapshot to every live
// connection. It is called after each registry membership change.
type PresenceBroadcaster struct {
	registry contract.IRegistry
	log      *slog.Logger
	metrics  *observability.Metrics
}

func NewPresenceBroadcaster(registry contract.IRegistry, log *slog.Logger, metrics *observability.Metrics) *PresenceBroadcaster {
	return &PresenceBroadcaster{registry: registry, log: log, metrics: metrics}
}

// Broadcast reads the registry at call time, never a cached view.
func (p *PresenceBroadcaster) Broadcast() {
	snapshot := event.OnlineUsers(p.registry.OnlineUsers())
	connections := p.registry.All()
	p.metrics.SetOnline(len(snapshot), len(connections))
	for _, conn := range connections {
		if err := conn.Send(snapshot); err != nil {
			p.log.Debug("Presence not delivered", "connection_id", conn.ID(), "error", err)
		}
	}
}
