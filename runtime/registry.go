package runtime

import (
	"slices"
	"strings"
	"sync"

	"nexchat/contract"
	"nexchat/domain"
)

type session struct {
	identity    domain.Identity
	connections map[string]contract.Connection // map connection ID -> Connection
}

// Registry tracks, per authenticated user, the set of live connections.
// It is the only shared in-memory structure of the message core and is
// safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	sessions         map[string]*session // map user ID -> session
	owners           map[string]string   // map connection ID -> user ID
	singleConnection bool
}

func NewRegistry(singleConnection bool) *Registry {
	return &Registry{
		sessions:         make(map[string]*session),
		owners:           make(map[string]string),
		singleConnection: singleConnection,
	}
}

// Register adds conn to the user's set, creating the set if absent.
// Registering the same connection twice is a no-op.
// In single-connection mode the user's previous connections are removed and
// returned so that the caller can close them.
func (r *Registry) Register(identity domain.Identity, conn contract.Connection) []contract.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity.UserID]
	if !ok {
		s = &session{identity: identity, connections: make(map[string]contract.Connection)}
		r.sessions[identity.UserID] = s
	}

	var evicted []contract.Connection
	if r.singleConnection {
		for id, previous := range s.connections {
			if id == conn.ID() {
				continue
			}
			evicted = append(evicted, previous)
			delete(s.connections, id)
			delete(r.owners, id)
		}
	}

	s.connections[conn.ID()] = conn
	r.owners[conn.ID()] = identity.UserID
	return evicted
}

// Unregister removes conn from its user's set and drops the user once the
// set is empty. It reports whether conn was still registered, so removing
// an already-removed connection is a harmless no-op.
func (r *Registry) Unregister(conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[conn.ID()]
	if !ok {
		return false
	}
	delete(r.owners, conn.ID())

	if s, ok := r.sessions[userID]; ok {
		delete(s.connections, conn.ID())
		// If no connection is left, the user goes offline
		if len(s.connections) == 0 {
			delete(r.sessions, userID)
		}
	}
	return true
}

// ConnectionsFor returns a snapshot of the user's live connections.
// The slice is owned by the caller.
func (r *Registry) ConnectionsFor(userID string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	connections := make([]contract.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		connections = append(connections, conn)
	}
	return connections
}

func (r *Registry) All() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]contract.Connection, 0, len(r.owners))
	for _, s := range r.sessions {
		for _, conn := range s.connections {
			connections = append(connections, conn)
		}
	}
	return connections
}

// OnlineUsers returns one entry per user holding at least one connection,
// sorted by username for a stable snapshot.
func (r *Registry) OnlineUsers() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.Identity, 0, len(r.sessions))
	for _, s := range r.sessions {
		users = append(users, s.identity)
	}
	slices.SortFunc(users, func(a, b domain.Identity) int {
		if c := strings.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return users
}
