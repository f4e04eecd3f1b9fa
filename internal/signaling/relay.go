package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/amjad-AR/ChatApp/internal/protocol"
	"github.com/amjad-AR/ChatApp/internal/registry"
	"github.com/amjad-AR/ChatApp/internal/router"
)

var (
	ErrCalleeUnreachable = errors.New("callee has no live connections")
	ErrSessionActive     = errors.New("a call between these users is already in progress")
	ErrNoSuchSession     = errors.New("no matching call session")
)

type sessionState int

const (
	stateOffered sessionState = iota
	stateActive
)

// pairKey identifies the unordered user pair of a call.
type pairKey struct {
	a, b string
}

func keyFor(x, y string) pairKey {
	if x < y {
		return pairKey{x, y}
	}
	return pairKey{y, x}
}

type pendingCandidate struct {
	fromID    string
	toID      string
	candidate json.RawMessage
}

// session is one in-progress negotiation. Idle and Ended are represented by
// absence from the session map; a session only ever holds Offered or Active.
type session struct {
	callerID string
	calleeID string
	state    sessionState
	pending  []pendingCandidate
	timer    *time.Timer
}

func (s *session) other(userID string) (string, bool) {
	switch userID {
	case s.callerID:
		return s.calleeID, true
	case s.calleeID:
		return s.callerID, true
	}
	return "", false
}

// Relay forwards call negotiation between exactly two users and enforces
// the call lifecycle. At most one session exists per unordered user pair.
type Relay struct {
	registry *registry.Registry
	router   *router.Router
	logger   *slog.Logger

	// offerTimeout bounds how long an unanswered offer may ring. Zero
	// disables the timer.
	offerTimeout time.Duration

	mu       sync.Mutex
	sessions map[pairKey]*session
}

func New(logger *slog.Logger, reg *registry.Registry, rt *router.Router, offerTimeout time.Duration) *Relay {
	return &Relay{
		registry:     reg,
		router:       rt,
		logger:       logger.With(slog.String("component", "signaling")),
		offerTimeout: offerTimeout,
		sessions:     make(map[pairKey]*session),
	}
}

// Initiate starts a call. The pair must be idle and the callee reachable;
// on failure no session is created and the callee hears nothing.
func (r *Relay) Initiate(callerID, calleeID string, sdp json.RawMessage) error {
	key := keyFor(callerID, calleeID)

	r.mu.Lock()
	if _, exists := r.sessions[key]; exists {
		r.mu.Unlock()
		return ErrSessionActive
	}
	if !r.registry.IsReachable(calleeID) {
		r.mu.Unlock()
		return ErrCalleeUnreachable
	}
	s := &session{callerID: callerID, calleeID: calleeID, state: stateOffered}
	if r.offerTimeout > 0 {
		s.timer = time.AfterFunc(r.offerTimeout, func() { r.expireOffer(key) })
	}
	r.sessions[key] = s
	r.mu.Unlock()

	r.deliver(calleeID, protocol.EventCallIncoming, protocol.CallIncomingPayload{
		FromUserID: callerID,
		SDP:        sdp,
	})
	r.logger.Info("call offered",
		slog.String("callerID", callerID),
		slog.String("calleeID", calleeID),
	)
	return nil
}

// Accept answers an offered call. Only the designated callee may accept.
// Candidates buffered while the offer was pending are flushed afterwards in
// submission order.
func (r *Relay) Accept(calleeID, callerID string, sdp json.RawMessage) error {
	key := keyFor(callerID, calleeID)

	r.mu.Lock()
	s, exists := r.sessions[key]
	if !exists || s.state != stateOffered || s.calleeID != calleeID || s.callerID != callerID {
		r.mu.Unlock()
		return ErrNoSuchSession
	}
	s.state = stateActive
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	flush := s.pending
	s.pending = nil
	r.mu.Unlock()

	r.deliver(callerID, protocol.EventCallAccepted, protocol.CallAcceptedPayload{
		FromUserID: calleeID,
		SDP:        sdp,
	})
	for _, pc := range flush {
		r.deliver(pc.toID, protocol.EventCallCandidate, protocol.CallCandidateOut{
			FromUserID: pc.fromID,
			Candidate:  pc.candidate,
		})
	}
	r.logger.Info("call accepted",
		slog.String("callerID", callerID),
		slog.String("calleeID", calleeID),
		slog.Int("flushedCandidates", len(flush)),
	)
	return nil
}

// RelayCandidate forwards a network-path candidate between the two
// participants. While the offer is unanswered the candidate is buffered,
// since the destination has not finished its description exchange yet;
// once the call is active it is forwarded immediately.
func (r *Relay) RelayCandidate(fromID, toID string, candidate json.RawMessage) error {
	key := keyFor(fromID, toID)

	r.mu.Lock()
	s, exists := r.sessions[key]
	if !exists {
		r.mu.Unlock()
		return ErrNoSuchSession
	}
	if _, ok := s.other(fromID); !ok {
		r.mu.Unlock()
		return ErrNoSuchSession
	}
	if s.state == stateOffered {
		s.pending = append(s.pending, pendingCandidate{fromID: fromID, toID: toID, candidate: candidate})
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.deliver(toID, protocol.EventCallCandidate, protocol.CallCandidateOut{
		FromUserID: fromID,
		Candidate:  candidate,
	})
	return nil
}

// End terminates a live call from either participant and notifies the peer.
func (r *Relay) End(fromID, toID string) error {
	key := keyFor(fromID, toID)

	r.mu.Lock()
	s, exists := r.sessions[key]
	if !exists {
		r.mu.Unlock()
		return ErrNoSuchSession
	}
	other, ok := s.other(fromID)
	if !ok || other != toID {
		r.mu.Unlock()
		return ErrNoSuchSession
	}
	r.removeLocked(key, s)
	r.mu.Unlock()

	r.deliver(toID, protocol.EventCallEnded, protocol.CallEndedPayload{
		FromUserID: fromID,
		Reason:     protocol.EndReasonHangup,
	})
	r.logger.Info("call ended",
		slog.String("fromID", fromID),
		slog.String("toID", toID),
	)
	return nil
}

// HandleUserOffline synthesizes an end for every session the user is part
// of. Called when the user's last connection detaches, so the remaining
// participant never sees a call ringing or active forever.
func (r *Relay) HandleUserOffline(userID string) {
	r.mu.Lock()
	var notify []string
	for key, s := range r.sessions {
		other, ok := s.other(userID)
		if !ok {
			continue
		}
		r.removeLocked(key, s)
		notify = append(notify, other)
	}
	r.mu.Unlock()

	for _, other := range notify {
		r.deliver(other, protocol.EventCallEnded, protocol.CallEndedPayload{
			FromUserID: userID,
			Reason:     protocol.EndReasonDisconnected,
		})
	}
	if len(notify) > 0 {
		r.logger.Info("ended calls for disconnected user",
			slog.String("userID", userID),
			slog.Int("count", len(notify)),
		)
	}
}

// expireOffer fires when an offer rings past the configured timeout.
func (r *Relay) expireOffer(key pairKey) {
	r.mu.Lock()
	s, exists := r.sessions[key]
	if !exists || s.state != stateOffered {
		// Answered or torn down while the timer fired.
		r.mu.Unlock()
		return
	}
	caller, callee := s.callerID, s.calleeID
	r.removeLocked(key, s)
	r.mu.Unlock()

	for _, userID := range []string{caller, callee} {
		r.deliver(userID, protocol.EventCallEnded, protocol.CallEndedPayload{
			Reason: protocol.EndReasonTimeout,
		})
	}
	r.logger.Info("unanswered call timed out",
		slog.String("callerID", caller),
		slog.String("calleeID", callee),
	)
}

func (r *Relay) removeLocked(key pairKey, s *session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	delete(r.sessions, key)
}

func (r *Relay) deliver(userID, event string, payload any) {
	ev, err := protocol.NewEvent(event, payload)
	if err != nil {
		r.logger.Error("failed to encode signaling event",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}
	r.router.DeliverToUser(userID, ev)
}
