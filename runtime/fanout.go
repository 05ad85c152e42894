package runtime

import (
	"log/slog"

	"nexchat/contract"
	"nexchat/domain/event"
	"nexchat/observability"

	"github.com/samber/lo"
)

// fanout delivers evt to every live connection of the given users.
// The registry is read at delivery time and a connection shared by both
// sides (a user talking to themselves) receives the event once.
func fanout(registry contract.IRegistry, log *slog.Logger, metrics *observability.Metrics,
	evt event.ServerEvent, userIDs ...string) int {
	var targets []contract.Connection
	for _, userID := range lo.Uniq(userIDs) {
		targets = append(targets, registry.ConnectionsFor(userID)...)
	}
	targets = lo.UniqBy(targets, func(c contract.Connection) string { return c.ID() })

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(evt); err != nil {
			log.Debug("Event not delivered", "connection_id", conn.ID(), "type", evt.EventType(), "error", err)
			continue
		}
		delivered++
	}
	metrics.Delivered(string(evt.EventType()), delivered)
	return delivered
}
