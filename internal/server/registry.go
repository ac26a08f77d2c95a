// Package server keeps the set of live chat connections that broadcasts fan
// out to.
package server

import (
	"sync"

	"github.com/Tyrowin/linechat/internal/network"
)

type member struct {
	budget *lineBudget
}

// registry is guarded by an RWMutex. Broadcasts iterate over a snapshot, so
// a connection removed mid-broadcast never corrupts the iteration.
//
// A connection evicted after a transport error is no longer a broadcast
// target, but it still counts as having joined until remove is called, so
// its departure is announced once.
type registry struct {
	mu      sync.RWMutex
	members map[*network.Connection]*member
	evicted map[*network.Connection]struct{}
}

func newRegistry() *registry {
	return &registry{
		members: make(map[*network.Connection]*member),
		evicted: make(map[*network.Connection]struct{}),
	}
}

func (r *registry) add(c *network.Connection, budget *lineBudget) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[c] = &member{budget: budget}
	return len(r.members)
}

// evict stops broadcasting to c without forgetting that it joined.
func (r *registry) evict(c *network.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[c]; ok {
		delete(r.members, c)
		r.evicted[c] = struct{}{}
	}
}

// remove forgets c and reports whether it had joined, either as a member or
// as an evicted one.
func (r *registry) remove(c *network.Connection) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, member := r.members[c]
	_, evicted := r.evicted[c]
	delete(r.members, c)
	delete(r.evicted, c)
	return member || evicted, len(r.members)
}

// budget returns nil for unknown connections, which relays without limit.
func (r *registry) budget(c *network.Connection) *lineBudget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.members[c]; ok {
		return m.budget
	}
	return nil
}

func (r *registry) snapshot() []*network.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*network.Connection, 0, len(r.members))
	for c := range r.members {
		conns = append(conns, c)
	}
	return conns
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
