// Package peer holds the Peer data model and the process-wide Peer
// Registry, grounded on the original implementation's PeerRegistry
// (Arc<Mutex<HashMap<String, ActorHandle<PeerMessage>>>>).
package peer

import "sync"

// ConnectionType distinguishes what a peer connection is used for.
type ConnectionType string

const (
	TypeControl      ConnectionType = "P"
	TypeFileTransfer ConnectionType = "F"
	TypeDistributed  ConnectionType = "D"
)

// Peer is the identity of a remote participant, created when the server
// announces one (GetPeerAddressResponse/ConnectToPeer) or when an inbound
// connection supplies a PeerInit frame.
type Peer struct {
	Username       string
	ConnectionType ConnectionType
	Host           string
	Port           uint16
	Token          uint32
	HasToken       bool
	Obfuscated     bool
}

// Handle is the minimal surface the Peer Registry needs from whatever
// type represents a running Peer Actor; it is satisfied by
// actor.Handle[peeractor.Msg] without this package importing peeractor
// (which would create an import cycle, since peeractor imports this
// package for Peer).
type Handle interface {
	Stop()
}

// Registry maps username to the handle of its live Peer Actor. Invariant:
// at most one live entry per username.
type Registry[H Handle] struct {
	mu      sync.Mutex
	entries map[string]H
}

// NewRegistry returns an empty registry.
func NewRegistry[H Handle]() *Registry[H] {
	return &Registry[H]{entries: make(map[string]H)}
}

// Register inserts or replaces the handle for username. If a live handle
// already exists for this username, it is stopped first so the "at most
// one" invariant holds.
func (r *Registry[H]) Register(username string, h H) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[username]; ok {
		old.Stop()
	}
	r.entries[username] = h
}

// Get returns the handle for username, if any.
func (r *Registry[H]) Get(username string) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[username]
	return h, ok
}

// Remove deletes username's entry, if present. Called on actor
// termination (explicit stop, disconnect, or unrecoverable I/O error).
func (r *Registry[H]) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, username)
}

// Contains reports whether username currently has a live entry.
func (r *Registry[H]) Contains(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[username]
	return ok
}

// Count returns the number of live entries.
func (r *Registry[H]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Usernames returns a snapshot of every registered username.
func (r *Registry[H]) Usernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for u := range r.entries {
		out = append(out, u)
	}
	return out
}
