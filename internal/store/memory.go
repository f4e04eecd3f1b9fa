package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amjad-AR/ChatApp/internal/protocol"
)

// MemoryStore is an in-process message log for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []protocol.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Append(_ context.Context, msg protocol.Message) (protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]protocol.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []protocol.Message
	for _, m := range s.messages {
		if m.Kind != f.Kind {
			continue
		}
		if f.Kind == protocol.KindPrivate {
			a, b := f.Participants[0], f.Participants[1]
			if !((m.OwnerID == a && m.ReceiverID == b) || (m.OwnerID == b && m.ReceiverID == a)) {
				continue
			}
		}
		out = append(out, m)
	}
	// Append order is creation order.
	return out, nil
}
