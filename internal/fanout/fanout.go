// Package fanout owns listener subscription state in memory: which
// connections are interested in which (server, channel) scopes, their
// pending event queues, and the liveness sweep that evicts stale listeners
// (spec.md §4.6). It never touches the KVStore — DataEngine owns durable
// state, FanOut owns only the in-process registry, the same separation the
// teacher's ChannelState keeps from its store (internal/core/channel_state.go).
package fanout

import (
	"sync"
	"time"

	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/constants"
)

// Interest scopes a subscription: a whole server when ChannelID is absent,
// or one channel when present.
type Interest struct {
	ServerPubkey [32]byte
	ServerID     [8]byte
	ChannelID    uint64
	HasChannel   bool
}

// SendSlot is a one-shot delivery handle a listener hands to FanOut while
// it awaits its next event; FanOut "takes" it (sets it back to nil) the
// moment it has something to deliver, mirroring the teacher's trySend
// select-with-timeout pattern but at the registration level rather than the
// socket-write level.
type SendSlot chan *codec.Envelope

type listenerInfo struct {
	pending      []*codec.Envelope
	sendSlot     SendSlot
	subscriptions map[Interest]struct{}
	lastPingMs   int64
}

// FanOut is the listener registry. A single RWMutex guards both maps,
// matching the teacher's "one lock per shared state, held for the
// shortest critical section" convention (spec.md §5).
type FanOut struct {
	mu         sync.RWMutex
	listeners  map[[16]byte]*listenerInfo
	byInterest map[Interest]map[[16]byte]struct{}

	// onForeignInterest is invoked (outside the lock) whenever a listener
	// expresses interest in a peer's server, so ConnManager can ensure a
	// federation subscription exists. Set once at construction; nil is a
	// valid "no federation" no-op.
	onForeignInterest func(interest Interest, torPort uint16)
	localPubkey       [32]byte
}

// New returns an empty FanOut. localPubkey identifies which server_pubkeys
// are "ours" versus foreign (spec.md §4.6's "differs from the local
// user_pubkey" test); onForeignInterest may be nil.
func New(localPubkey [32]byte, onForeignInterest func(interest Interest, torPort uint16)) *FanOut {
	return &FanOut{
		listeners:         make(map[[16]byte]*listenerInfo),
		byInterest:        make(map[Interest]map[[16]byte]struct{}),
		onForeignInterest: onForeignInterest,
		localPubkey:       localPubkey,
	}
}

// SetListenerInterest updates last_ping_ms and replaces a listener's
// subscription set. If the listener already has queued pending events, they
// are drained and returned immediately along with any previous send slot
// (which the caller must honor exactly once); otherwise sendSlot is stored
// for later delivery.
func (f *FanOut) SetListenerInterest(listenerID [16]byte, sendSlot SendSlot, interests []Interest, torPort uint16, nowMs int64) (drainedSlot SendSlot, drained []*codec.Envelope) {
	f.mu.Lock()
	li, ok := f.listeners[listenerID]
	if !ok {
		li = &listenerInfo{subscriptions: make(map[Interest]struct{})}
		f.listeners[listenerID] = li
	}
	li.lastPingMs = nowMs

	for i := range li.subscriptions {
		f.removeFromInterestLocked(i, listenerID)
	}
	li.subscriptions = make(map[Interest]struct{}, len(interests))
	for _, i := range interests {
		li.subscriptions[i] = struct{}{}
		f.addToInterestLocked(i, listenerID)
	}

	var foreign []Interest
	for _, i := range interests {
		if i.ServerPubkey != f.localPubkey {
			foreign = append(foreign, i)
		}
	}

	if len(li.pending) > 0 {
		drainedSlot, drained = li.sendSlot, li.pending
		li.sendSlot, li.pending = nil, nil
	} else {
		li.sendSlot = sendSlot
	}
	f.mu.Unlock()

	if f.onForeignInterest != nil {
		for _, i := range foreign {
			f.onForeignInterest(i, torPort)
		}
	}
	return drainedSlot, drained
}

// Rearm replaces a listener's send slot without touching its subscriptions —
// the re-registration a connection's writer loop performs after each
// delivery to keep receiving, since a SendSlot is consumed exactly once
// (spec.md §4.6). Any events queued while no slot was active are drained
// and returned immediately, leaving the new slot unconsumed for the caller
// to store for next time. Absent listeners are a no-op.
func (f *FanOut) Rearm(listenerID [16]byte, sendSlot SendSlot) (drained []*codec.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	li, ok := f.listeners[listenerID]
	if !ok {
		return nil
	}
	if len(li.pending) > 0 {
		drained, li.pending = li.pending, nil
		return drained
	}
	li.sendSlot = sendSlot
	return nil
}

func (f *FanOut) addToInterestLocked(i Interest, listenerID [16]byte) {
	set, ok := f.byInterest[i]
	if !ok {
		set = make(map[[16]byte]struct{})
		f.byInterest[i] = set
	}
	set[listenerID] = struct{}{}
}

func (f *FanOut) removeFromInterestLocked(i Interest, listenerID [16]byte) {
	set, ok := f.byInterest[i]
	if !ok {
		return
	}
	delete(set, listenerID)
	if len(set) == 0 {
		delete(f.byInterest, i)
	}
}

// Delivery is one listener's send slot to fill, returned by AddEvent for
// listeners that had an active slot waiting.
type Delivery struct {
	ListenerID [16]byte
	Slot       SendSlot
}

// AddEvent fans env out to every listener subscribed to interest. Listeners
// with an active send slot are returned so the caller can deliver directly;
// listeners without one have env appended to their pending queue.
func (f *FanOut) AddEvent(env *codec.Envelope, interest Interest) []Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Delivery
	for listenerID := range f.byInterest[interest] {
		li := f.listeners[listenerID]
		if li == nil {
			continue
		}
		if li.sendSlot != nil {
			out = append(out, Delivery{ListenerID: listenerID, Slot: li.sendSlot})
			li.sendSlot = nil
		} else {
			li.pending = append(li.pending, env)
		}
	}
	return out
}

// Remove drops a listener entirely, along with every interest it held.
func (f *FanOut) Remove(listenerID [16]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	li, ok := f.listeners[listenerID]
	if !ok {
		return
	}
	for i := range li.subscriptions {
		f.removeFromInterestLocked(i, listenerID)
	}
	delete(f.listeners, listenerID)
}

// PurgeResult names one listener whose slot was reclaimed for a keepalive,
// returned by Purge so the caller can push a PingEvent through it.
type PurgeResult struct {
	ListenerID [16]byte
	Slot       SendSlot
}

// Purge runs one sweep: listeners silent past PurgeTimeout are evicted;
// those merely past PingTimeout have their send slot reclaimed so the
// caller can push a keepalive through it (spec.md §4.6).
func (f *FanOut) Purge(nowMs int64) []PurgeResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keepalive []PurgeResult
	for id, li := range f.listeners {
		age := time.Duration(nowMs-li.lastPingMs) * time.Millisecond
		if age > constants.PurgeTimeout {
			for i := range li.subscriptions {
				f.removeFromInterestLocked(i, id)
			}
			delete(f.listeners, id)
			continue
		}
		if age > constants.PingTimeout && li.sendSlot != nil {
			keepalive = append(keepalive, PurgeResult{ListenerID: id, Slot: li.sendSlot})
			li.sendSlot = nil
		}
	}
	return keepalive
}

// Len reports the number of tracked listeners, chiefly for tests.
func (f *FanOut) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}
