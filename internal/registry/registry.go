package registry

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownConnection = errors.New("connection is not attached")
	ErrIdentityConflict  = errors.New("connection is already bound to another user")
	ErrAlreadyAttached   = errors.New("connection is already attached")
)

// Conn is the slice of a transport connection the registry needs. It is an
// interface so the routing core can be exercised with fakes.
type Conn interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

type entry struct {
	conn       Conn
	subject    string // authenticated identity, bound at attach
	userID     string // empty until announced
	attachedAt time.Time
}

// Registry tracks every live connection and which user each one belongs to.
// It keeps a forward map (user -> connections) and an inverse map
// (connection -> entry) so teardown on disconnect stays O(1). Both maps are
// kept consistent under one lock: a connection present in a user's set is
// always present in conns, and vice versa.
type Registry struct {
	mu        sync.RWMutex
	conns     map[uuid.UUID]*entry
	users     map[string]map[uuid.UUID]*entry
	bySubject map[string]map[uuid.UUID]*entry

	logger *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		conns:     make(map[uuid.UUID]*entry),
		users:     make(map[string]map[uuid.UUID]*entry),
		bySubject: make(map[string]map[uuid.UUID]*entry),
		logger:    logger.With(slog.String("component", "registry")),
	}
}

// Attach records a new connection under its authenticated subject. The
// subject is what connection limits are counted against, so it is bound
// here rather than at announce: an attached-but-silent connection still
// holds a slot.
func (r *Registry) Attach(conn Conn, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	if _, exists := r.conns[connID]; exists {
		return ErrAlreadyAttached
	}
	e := &entry{conn: conn, subject: subject, attachedAt: time.Now()}
	r.conns[connID] = e
	set, exists := r.bySubject[subject]
	if !exists {
		set = make(map[uuid.UUID]*entry)
		r.bySubject[subject] = set
	}
	set[connID] = e
	r.logger.Debug("connection attached",
		slog.String("connID", connID.String()),
		slog.String("subject", subject),
	)
	return nil
}

// Announce binds a connection to a user identity. Calling it again with the
// same pair is a no-op; binding to a different user fails with
// ErrIdentityConflict. The first return value reports whether this made the
// user reachable (they had no announced connections before).
func (r *Registry) Announce(connID uuid.UUID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if e.userID == userID {
		return false, nil
	}
	if e.userID != "" {
		return false, ErrIdentityConflict
	}

	set, exists := r.users[userID]
	if !exists {
		set = make(map[uuid.UUID]*entry)
		r.users[userID] = set
	}
	first := len(set) == 0
	e.userID = userID
	set[connID] = e

	r.logger.Debug("connection announced",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
	)
	return first, nil
}

// Detach removes the connection from both maps. It returns the userID the
// connection was announced as (empty if never announced) and whether it was
// that user's last connection. Detaching an unknown connection is a no-op.
func (r *Registry) Detach(connID uuid.UUID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)

	subjectSet := r.bySubject[e.subject]
	delete(subjectSet, connID)
	if len(subjectSet) == 0 {
		delete(r.bySubject, e.subject)
	}

	if e.userID == "" {
		return "", false
	}
	set := r.users[e.userID]
	delete(set, connID)
	last := len(set) == 0
	if last {
		delete(r.users, e.userID)
	}
	r.logger.Debug("connection detached",
		slog.String("connID", connID.String()),
		slog.String("userID", e.userID),
		slog.Bool("last", last),
	)
	return e.userID, last
}

// ConnectionsFor returns the live announced connections of a user, empty if
// the user is unreachable.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.users[userID]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(set))
	for _, e := range set {
		out = append(out, e.conn)
	}
	return out
}

func (r *Registry) IsReachable(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// AnnouncedConnections snapshots every announced connection, across all
// users. This is the hall delivery group.
func (r *Registry) AnnouncedConnections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for _, set := range r.users {
		for _, e := range set {
			out = append(out, e.conn)
		}
	}
	return out
}

// AllConnections snapshots every attached connection, announced or not.
// Used by graceful shutdown.
func (r *Registry) AllConnections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn)
	}
	return out
}

// UserID resolves the announced identity of a connection.
func (r *Registry) UserID(connID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok || e.userID == "" {
		return "", false
	}
	return e.userID, true
}

// ConnectionCount reports how many live connections a subject has attached,
// announced or not. Counting announced connections only would let a client
// open unlimited sockets by never announcing.
func (r *Registry) ConnectionCount(subject string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubject[subject]), nil
}

// FindOldestConnection returns the subject's longest-lived connection, used
// by the connection limiter's cycle mode.
func (r *Registry) FindOldestConnection(subject string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		oldest     *entry
		oldestTime time.Time
	)
	for _, e := range r.bySubject[subject] {
		if oldest == nil || e.attachedAt.Before(oldestTime) {
			oldest = e
			oldestTime = e.attachedAt
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest.conn, true
}
