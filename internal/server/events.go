package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/amjad-AR/ChatApp/internal/distributor"
	"github.com/amjad-AR/ChatApp/internal/protocol"
	"github.com/amjad-AR/ChatApp/internal/registry"
	"github.com/amjad-AR/ChatApp/internal/router"
	"github.com/amjad-AR/ChatApp/internal/signaling"
	"github.com/amjad-AR/ChatApp/internal/store"
	"github.com/amjad-AR/ChatApp/pkg/transport"
)

// Wire error codes sent back on the triggering connection.
const (
	codeBadEnvelope       = "bad_envelope"
	codeUnknownEvent      = "unknown_event"
	codeNotAnnounced      = "not_announced"
	codeUnauthorized      = "unauthorized"
	codeIdentityConflict  = "identity_conflict"
	codeEmptyMessage      = "empty_message"
	codeInvalidReceiver   = "invalid_receiver"
	codeSelfMessage       = "self_message"
	codeStoreUnavailable  = "store_unavailable" // retryable
	codeCalleeUnreachable = "callee_unreachable"
	codeSessionActive     = "session_active"
	codeNoSuchSession     = "no_such_session"
	codeInternal          = "internal_error"
)

// Dispatcher decodes inbound envelopes and routes each event to the
// component that owns it. Failures are reported to the originating
// connection only; the peer never hears about them.
type Dispatcher struct {
	logger      *slog.Logger
	registry    *registry.Registry
	distributor *distributor.Distributor
	relay       *signaling.Relay
	router      *router.Router
}

func NewDispatcher(logger *slog.Logger, reg *registry.Registry, dist *distributor.Distributor, relay *signaling.Relay, rt *router.Router) *Dispatcher {
	return &Dispatcher{
		logger:      logger.With(slog.String("component", "dispatcher")),
		registry:    reg,
		distributor: dist,
		relay:       relay,
		router:      rt,
	}
}

// HandlerFor binds the dispatcher to one connection. authSubject is the
// identity the session token was issued for; announce must match it.
func (d *Dispatcher) HandlerFor(conn *transport.Connection, authSubject string) transport.MessageHandler {
	return func(ctx context.Context, connID uuid.UUID, msg []byte) {
		d.handle(ctx, conn, authSubject, msg)
	}
}

func (d *Dispatcher) handle(ctx context.Context, conn *transport.Connection, authSubject string, msg []byte) {
	if !gjson.ValidBytes(msg) {
		d.sendError(conn, codeBadEnvelope, "malformed event frame")
		return
	}
	event := gjson.GetBytes(msg, "event").Str
	payload := []byte(gjson.GetBytes(msg, "payload").Raw)
	connID := conn.ID()

	d.logger.Debug("handling event",
		slog.String("event", event),
		slog.String("connID", connID.String()),
	)

	switch event {
	case protocol.EventAnnounce:
		d.handleAnnounce(conn, authSubject, payload)

	case protocol.EventMessageSubmit:
		var p protocol.SubmitPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			d.sendError(conn, codeBadEnvelope, "malformed message:submit payload")
			return
		}
		userID, ok := d.registry.UserID(connID)
		if !ok {
			d.sendError(conn, codeNotAnnounced, "announce before submitting messages")
			return
		}
		if _, err := d.distributor.Submit(ctx, userID, p); err != nil {
			d.sendFailure(conn, err)
		}

	case protocol.EventCallInitiate:
		var p protocol.CallInitiatePayload
		if err := json.Unmarshal(payload, &p); err != nil || p.CalleeID == "" || len(p.SDP) == 0 {
			d.sendError(conn, codeBadEnvelope, "malformed call:initiate payload")
			return
		}
		userID, ok := d.registry.UserID(connID)
		if !ok {
			d.sendError(conn, codeNotAnnounced, "announce before initiating calls")
			return
		}
		if err := d.relay.Initiate(userID, p.CalleeID, p.SDP); err != nil {
			d.sendFailure(conn, err)
		}

	case protocol.EventCallAccept:
		var p protocol.CallAcceptPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.CallerID == "" || len(p.SDP) == 0 {
			d.sendError(conn, codeBadEnvelope, "malformed call:accept payload")
			return
		}
		userID, ok := d.registry.UserID(connID)
		if !ok {
			d.sendError(conn, codeNotAnnounced, "announce before accepting calls")
			return
		}
		if err := d.relay.Accept(userID, p.CallerID, p.SDP); err != nil {
			d.sendFailure(conn, err)
		}

	case protocol.EventCallCandidate:
		var p protocol.CallCandidatePayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ToID == "" || len(p.Candidate) == 0 {
			d.sendError(conn, codeBadEnvelope, "malformed call:candidate payload")
			return
		}
		userID, ok := d.registry.UserID(connID)
		if !ok {
			d.sendError(conn, codeNotAnnounced, "announce before exchanging candidates")
			return
		}
		if err := d.relay.RelayCandidate(userID, p.ToID, p.Candidate); err != nil {
			d.sendFailure(conn, err)
		}

	case protocol.EventCallEnd:
		var p protocol.CallEndPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ToID == "" {
			d.sendError(conn, codeBadEnvelope, "malformed call:end payload")
			return
		}
		userID, ok := d.registry.UserID(connID)
		if !ok {
			d.sendError(conn, codeNotAnnounced, "announce before ending calls")
			return
		}
		if err := d.relay.End(userID, p.ToID); err != nil {
			d.sendFailure(conn, err)
		}

	case protocol.EventTyping:
		var p protocol.TypingPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ReceiverID == "" {
			d.sendError(conn, codeBadEnvelope, "malformed typing payload")
			return
		}
		userID, ok := d.registry.UserID(connID)
		if !ok {
			d.sendError(conn, codeNotAnnounced, "announce before typing notifications")
			return
		}
		ev, err := protocol.NewEvent(protocol.EventTyping, protocol.TypingOut{
			SenderID: userID,
			IsTyping: p.IsTyping,
		})
		if err != nil {
			d.sendError(conn, codeInternal, "failed to encode typing event")
			return
		}
		d.router.DeliverToUser(p.ReceiverID, ev)

	default:
		d.logger.Warn("received unknown event", slog.String("event", event))
		d.sendError(conn, codeUnknownEvent, "unknown event "+event)
	}
}

func (d *Dispatcher) handleAnnounce(conn *transport.Connection, authSubject string, payload []byte) {
	var p protocol.AnnouncePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.UserID == "" {
		d.sendError(conn, codeBadEnvelope, "malformed announce payload")
		return
	}
	if p.UserID != authSubject {
		d.sendError(conn, codeUnauthorized, "announce does not match session token subject")
		return
	}

	first, err := d.registry.Announce(conn.ID(), p.UserID)
	if err != nil {
		d.sendFailure(conn, err)
		return
	}
	if first {
		ev, evErr := protocol.NewEvent(protocol.EventUserOnline, protocol.PresencePayload{UserID: p.UserID})
		if evErr == nil {
			d.router.DeliverToHall(ev)
		}
	}
}

// sendFailure maps component sentinels to wire error codes.
func (d *Dispatcher) sendFailure(conn *transport.Connection, err error) {
	var code string
	switch {
	case errors.Is(err, registry.ErrIdentityConflict):
		code = codeIdentityConflict
	case errors.Is(err, distributor.ErrEmptyMessage):
		code = codeEmptyMessage
	case errors.Is(err, distributor.ErrInvalidReceiver):
		code = codeInvalidReceiver
	case errors.Is(err, distributor.ErrSelfMessage):
		code = codeSelfMessage
	case errors.Is(err, signaling.ErrCalleeUnreachable):
		code = codeCalleeUnreachable
	case errors.Is(err, signaling.ErrSessionActive):
		code = codeSessionActive
	case errors.Is(err, signaling.ErrNoSuchSession):
		code = codeNoSuchSession
	case errors.Is(err, store.ErrUnavailable):
		code = codeStoreUnavailable
	default:
		code = codeInternal
	}
	d.sendError(conn, code, err.Error())
}

func (d *Dispatcher) sendError(conn *transport.Connection, code, message string) {
	ev, err := protocol.NewEvent(protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
	if err != nil {
		d.logger.Error("failed to encode error event", slog.Any("error", err))
		return
	}
	raw, err := ev.Encode()
	if err != nil {
		return
	}
	conn.Send(raw)
}
