package protocol

import "encoding/json"

// Envelope is the wire frame for every event exchanged over a connection,
// in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an outbound envelope by marshaling the payload.
func NewEvent(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Payload: raw}, nil
}

// Encode serializes the envelope for the transport send queue.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Inbound event names.
const (
	EventAnnounce      = "announce"
	EventMessageSubmit = "message:submit"
	EventCallInitiate  = "call:initiate"
	EventCallAccept    = "call:accept"
	EventCallCandidate = "call:candidate"
	EventCallEnd       = "call:end"
	EventTyping        = "typing"
)

// Outbound event names.
const (
	EventMessageNew   = "message:new"
	EventCallIncoming = "call:incoming"
	EventCallAccepted = "call:accepted"
	EventCallEnded    = "call:ended"
	EventUserOnline   = "user:online"
	EventUserOffline  = "user:offline"
	EventError        = "error"
)
