package router

import (
	"log/slog"

	"github.com/amjad-AR/ChatApp/internal/protocol"
	"github.com/amjad-AR/ChatApp/internal/registry"
)

// Router fans events out to delivery groups. Groups are never stored: the
// hall is "every announced connection" and a user group is "that user's
// connections", both resolved from the registry at call time so membership
// can't drift from actual connectivity.
type Router struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func New(logger *slog.Logger, reg *registry.Registry) *Router {
	return &Router{
		registry: reg,
		logger:   logger.With(slog.String("component", "router")),
	}
}

// DeliverToHall sends the event to every currently announced connection.
// Connections announced after the snapshot do not receive it.
func (r *Router) DeliverToHall(event protocol.Envelope) {
	conns := r.registry.AnnouncedConnections()
	r.fanout(conns, event)
}

// DeliverToUser sends the event to every live connection of one user.
// Zero connections is not an error: the user is offline and the live push
// is dropped, the persisted record remains queryable.
func (r *Router) DeliverToUser(userID string, event protocol.Envelope) {
	conns := r.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		r.logger.Debug("no live connections, dropping delivery",
			slog.String("userID", userID),
			slog.String("event", event.Event),
		)
		return
	}
	r.fanout(conns, event)
}

// fanout marshals once and enqueues on each connection. Per-connection FIFO
// order is preserved by the transport send queue.
func (r *Router) fanout(conns []registry.Conn, event protocol.Envelope) {
	if len(conns) == 0 {
		return
	}
	raw, err := event.Encode()
	if err != nil {
		r.logger.Error("failed to encode outbound event",
			slog.String("event", event.Event),
			slog.Any("error", err),
		)
		return
	}
	for _, c := range conns {
		c.Send(raw)
	}
}
