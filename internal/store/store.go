package store

import (
	"context"
	"errors"

	"github.com/amjad-AR/ChatApp/internal/protocol"
)

// ErrUnavailable wraps any backend failure; callers treat it as retryable.
var ErrUnavailable = errors.New("message store unavailable")

// Filter selects an ordered slice of the message history.
type Filter struct {
	Kind protocol.MessageKind
	// Participants narrows private queries to the conversation between two
	// users, in either direction. Ignored for public queries.
	Participants [2]string
}

// Store is the durable message log. Append must complete before any
// broadcast of the message; the core never mutates or deletes what it wrote.
type Store interface {
	// Append persists the message and returns it with its assigned ID and
	// creation time filled in.
	Append(ctx context.Context, msg protocol.Message) (protocol.Message, error)
	// Query returns matching messages ordered by creation time ascending.
	Query(ctx context.Context, f Filter) ([]protocol.Message, error)
}
