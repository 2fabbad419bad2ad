// Package conntable is the in-memory connection registry: connection_id ->
// ConnectionInfo (spec.md §4.5). It is the authorization source of truth
// for "is this connection bound to a pubkey yet" once a session has left
// the handshake.
package conntable

import "sync"

// SendFunc pushes one encoded frame to a connection's writer goroutine.
// Grounded on the teacher's core.ChannelState, whose sessions likewise hold
// a send channel rather than the raw socket (internal/core/channel_state.go).
type SendFunc func(frame []byte) error

// Info is the per-connection record. BoundPubkey is the only field that
// mutates after insertion, set once the handshake reaches Authed.
type Info struct {
	Send        SendFunc
	BoundPubkey [32]byte
	Bound       bool
}

// Table is a concurrency-safe connection_id -> Info map, guarded by a
// single RWMutex held only for the shortest critical section needed — the
// same pattern the teacher's ChannelState uses for its users/channels maps.
type Table struct {
	mu    sync.RWMutex
	conns map[[16]byte]*Info
}

// New returns an empty Table.
func New() *Table {
	return &Table{conns: make(map[[16]byte]*Info)}
}

// Insert registers a freshly opened connection (AuthEngine's Open state).
func (t *Table) Insert(connID [16]byte, send SendFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[connID] = &Info{Send: send}
}

// Bind records the pubkey a connection authenticated as (AuthEngine's
// Authed transition).
func (t *Table) Bind(connID [16]byte, pubkey [32]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.conns[connID]; ok {
		info.BoundPubkey = pubkey
		info.Bound = true
	}
}

// Remove drops a connection (AuthEngine's Close).
func (t *Table) Remove(connID [16]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, connID)
}

// Get returns a copy of the connection's info, or ok=false if absent.
func (t *Table) Get(connID [16]byte) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.conns[connID]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// BoundPubkey reports the pubkey bound to connID, requiring it to be
// present — consumers requiring authorization read this and reject absence
// (spec.md §4.5).
func (t *Table) BoundPubkey(connID [16]byte) (pubkey [32]byte, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, present := t.conns[connID]
	if !present || !info.Bound {
		return pubkey, false
	}
	return info.BoundPubkey, true
}

// Len reports the number of tracked connections, chiefly for tests and
// metrics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
