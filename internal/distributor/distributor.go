package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amjad-AR/ChatApp/internal/directory"
	"github.com/amjad-AR/ChatApp/internal/protocol"
	"github.com/amjad-AR/ChatApp/internal/router"
	"github.com/amjad-AR/ChatApp/internal/store"
)

var (
	ErrEmptyMessage    = errors.New("message text, image, or audio is required")
	ErrInvalidReceiver = errors.New("receiver is missing or unknown")
	ErrSelfMessage     = errors.New("cannot send a message to yourself")
)

// Distributor validates a submitted message, persists it, and only then
// fans it out. Persist-before-broadcast means a crash in between loses the
// live push but never the message: clients recover it through a history
// query. The reverse order would let a client see a message a concurrent
// query cannot find.
type Distributor struct {
	store     store.Store
	directory directory.Directory
	router    *router.Router
	logger    *slog.Logger
}

func New(logger *slog.Logger, st store.Store, dir directory.Directory, rt *router.Router) *Distributor {
	return &Distributor{
		store:     st,
		directory: dir,
		router:    rt,
		logger:    logger.With(slog.String("component", "distributor")),
	}
}

// Submit processes one message:submit request on behalf of ownerID.
// The returned message carries the store-assigned ID, which is also what
// every broadcast copy carries so clients can deduplicate optimistic echoes.
func (d *Distributor) Submit(ctx context.Context, ownerID string, req protocol.SubmitPayload) (protocol.Message, error) {
	if _, ok := req.Body.Case(); !ok {
		return protocol.Message{}, ErrEmptyMessage
	}

	msg := protocol.Message{
		Kind:    req.Kind,
		OwnerID: ownerID,
		Body:    req.Body,
	}

	switch req.Kind {
	case protocol.KindPublic:
		// Hall messages never carry a receiver.
	case protocol.KindPrivate:
		if req.ReceiverID == "" {
			return protocol.Message{}, ErrInvalidReceiver
		}
		if req.ReceiverID == ownerID {
			return protocol.Message{}, ErrSelfMessage
		}
		known, err := d.directory.Exists(ctx, req.ReceiverID)
		if err != nil {
			return protocol.Message{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		if !known {
			return protocol.Message{}, ErrInvalidReceiver
		}
		msg.ReceiverID = req.ReceiverID
	default:
		return protocol.Message{}, fmt.Errorf("unknown message kind %q", req.Kind)
	}

	persisted, err := d.store.Append(ctx, msg)
	if err != nil {
		d.logger.Error("persist failed, nothing broadcast",
			slog.String("ownerID", ownerID),
			slog.Any("error", err),
		)
		return protocol.Message{}, err
	}

	event, err := protocol.NewEvent(protocol.EventMessageNew, persisted)
	if err != nil {
		// The message is durable; only the live push is lost.
		d.logger.Error("failed to encode broadcast", slog.Any("error", err))
		return persisted, nil
	}

	switch persisted.Kind {
	case protocol.KindPublic:
		d.router.DeliverToHall(event)
	case protocol.KindPrivate:
		// Receiver first, then the sender's own devices so multi-device
		// sessions see their message land.
		d.router.DeliverToUser(persisted.ReceiverID, event)
		d.router.DeliverToUser(persisted.OwnerID, event)
	}

	d.logger.Debug("message distributed",
		slog.String("id", persisted.ID),
		slog.String("kind", string(persisted.Kind)),
	)
	return persisted, nil
}
