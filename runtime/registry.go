package runtime

import (
	"chat-relay/contract"
	"sort"
	"sync"

	"github.com/samber/lo"
)

type entry struct {
	username string
	peer     contract.Peer
	seq      uint64
}

// Registry is the authoritative username -> session index.
// It never owns the sessions it indexes: a session removes itself on teardown.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]entry
	nextSeq  uint64
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]entry)}
}

// TryRegister reserves the username for the peer.
// Check and insert happen under the same write lock, so among concurrent
// callers racing for one name exactly one wins.
func (r *Registry) TryRegister(username string, peer contract.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sessions[username]; taken {
		return false
	}
	r.nextSeq++
	r.sessions[username] = entry{username: username, peer: peer, seq: r.nextSeq}
	return true
}

// Unregister removes the username. Removing an absent name is a no-op.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

func (r *Registry) Lookup(username string) (contract.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[username]
	return e.peer, ok
}

// Roster returns the registered usernames in join order.
func (r *Registry) Roster() []string {
	return lo.Map(r.ordered(), func(e entry, _ int) string {
		return e.username
	})
}

// Peers returns a copy of the registered peers in join order, safe to
// iterate while sessions join and leave.
func (r *Registry) Peers() []contract.Peer {
	return lo.Map(r.ordered(), func(e entry, _ int) contract.Peer {
		return e.peer
	})
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) ordered() []entry {
	r.mu.RLock()
	entries := lo.Values(r.sessions)
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return entries
}
