package protocol

import "encoding/json"

// --- Inbound payloads ---

type AnnouncePayload struct {
	UserID string `json:"userId"`
}

type SubmitPayload struct {
	Kind       MessageKind `json:"kind"`
	ReceiverID string      `json:"receiverId,omitempty"`
	Body       MessageBody `json:"body"`
}

type CallInitiatePayload struct {
	CalleeID string          `json:"calleeId"`
	SDP      json.RawMessage `json:"sessionDescription"`
}

type CallAcceptPayload struct {
	CallerID string          `json:"callerId"`
	SDP      json.RawMessage `json:"sessionDescription"`
}

type CallCandidatePayload struct {
	ToID      string          `json:"toId"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallEndPayload struct {
	ToID string `json:"toId"`
}

type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// --- Outbound payloads ---

type CallIncomingPayload struct {
	FromUserID string          `json:"fromUserId"`
	SDP        json.RawMessage `json:"sessionDescription"`
}

type CallAcceptedPayload struct {
	FromUserID string          `json:"fromUserId"`
	SDP        json.RawMessage `json:"sessionDescription"`
}

type CallCandidateOut struct {
	FromUserID string          `json:"fromUserId"`
	Candidate  json.RawMessage `json:"candidate"`
}

type CallEndedPayload struct {
	FromUserID string `json:"fromUserId,omitempty"`
	Reason     string `json:"reason"`
}

// Call end reasons.
const (
	EndReasonHangup       = "hangup"
	EndReasonDisconnected = "peer-disconnected"
	EndReasonTimeout      = "offer-timeout"
)

type TypingOut struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
