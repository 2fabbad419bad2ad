// Package connmanager implements ConnManager: the peer multiplexer keyed
// by public key that pools ClientSessions and binds request_ids to local
// callbacks (spec.md §4.9). It is FanOut's onForeignInterest collaborator:
// whenever a local listener expresses interest in a peer's server, FanOut
// asks ConnManager to ensure a federation subscription exists, and any
// MessagePushEvent a peer session receives is re-injected into the local
// FanOut so foreign-interest listeners see it exactly like a local post.
package connmanager

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/fanout"
	"github.com/37miners/concord/internal/fedclient"
)

// Callback receives the response event correlated to one outstanding
// request_id.
type Callback func(ev codec.Event)

// requestID extracts the request_id from an event shaped like a
// requestEnvelope pair, mirroring the manual per-type correlation
// internal/session uses — the codec package deliberately has no exported
// accessor since only these two packages need one.
func requestID(ev codec.Event) (hi, lo uint64, ok bool) {
	switch e := ev.(type) {
	case *codec.AddChannelRequest:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.AddChannelResponse:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.ModifyChannelRequest:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.ModifyChannelResponse:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.DeleteChannelRequest:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.DeleteChannelResponse:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.SendMessageRequest:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.SendMessageResponse:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.GetMessagesRequest:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.GetMessagesResponse:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.SubscribeRequest:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.SubscribeResponse:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.GetMembersRequest:
		return e.RequestIDHi, e.RequestIDLo, true
	case *codec.GetMembersResponse:
		return e.RequestIDHi, e.RequestIDLo, true
	default:
		return 0, 0, false
	}
}

type requestKey struct{ hi, lo uint64 }

// Manager pools one ClientSession per peer and dispatches each incoming
// response to whichever local caller registered its request_id.
type Manager struct {
	mu        sync.RWMutex
	peers     map[[32]byte]*fedclient.ClientSession
	callbacks map[requestKey]Callback

	dialer        fedclient.OnionDialer
	processSecret ed25519.PrivateKey
	localFanOut   *fanout.FanOut
	torPort       uint16
}

// New returns an empty Manager. processSecret signs this process's own
// challenge responses when it dials a peer as a federation member
// (spec.md §4.9's "Secret(process_secret)"). localFanOut receives every
// MessagePushEvent a peer session forwards, so local listeners with
// foreign interest are fed the same way AddEvent feeds local posters.
func New(dialer fedclient.OnionDialer, processSecret ed25519.PrivateKey, localFanOut *fanout.FanOut, torPort uint16) *Manager {
	return &Manager{
		peers:         make(map[[32]byte]*fedclient.ClientSession),
		callbacks:     make(map[requestKey]Callback),
		dialer:        dialer,
		processSecret: processSecret,
		localFanOut:   localFanOut,
		torPort:       torPort,
	}
}

// SendEvent registers callback under event's request_id, then either pushes
// event through an existing session for peerPubkey or spawns a fresh one
// (spec.md §4.9). A callback is dropped without ever firing if event
// carries no request_id — there is nothing to correlate a response to.
func (m *Manager) SendEvent(peerPubkey [32]byte, event codec.Event, callback Callback) error {
	if hi, lo, ok := requestID(event); ok {
		key := requestKey{hi, lo}
		m.mu.Lock()
		m.callbacks[key] = callback
		m.mu.Unlock()
	}

	session, err := m.sessionFor(peerPubkey)
	if err != nil {
		return err
	}
	session.Send(&codec.Envelope{Version: codec.Version, Event: event})
	return nil
}

func (m *Manager) sessionFor(peerPubkey [32]byte) (*fedclient.ClientSession, error) {
	m.mu.RLock()
	session, exists := m.peers[peerPubkey]
	m.mu.RUnlock()
	if exists {
		return session, nil
	}

	onion := cryptoid.ToOnionFQDN(peerPubkey)
	session, err := fedclient.Dial(m.dialer, onion, fedclient.AuthParams{Secret: m.processSecret}, m.onPeerEvent, m.onPeerErrorFor(peerPubkey))
	if err != nil {
		return nil, fmt.Errorf("connmanager: spawn session for %s: %w", onion, err)
	}

	m.mu.Lock()
	m.peers[peerPubkey] = session
	m.mu.Unlock()
	return session, nil
}

// OnForeignInterest is FanOut's onForeignInterest hook: it ensures a
// subscription to the peer's server exists, discarding the response since
// nothing local is waiting on it specifically — future MessagePushEvents
// the peer sends arrive through onPeerEvent and are re-fanned-out locally.
func (m *Manager) OnForeignInterest(interest fanout.Interest, torPort uint16) {
	ev := &codec.SubscribeRequest{
		ServerID:     interest.ServerID,
		ServerPubkey: interest.ServerPubkey,
		ChannelID:    interest.ChannelID,
		HasChannelID: interest.HasChannel,
		TorPort:      torPort,
	}
	_ = m.SendEvent(interest.ServerPubkey, ev, func(codec.Event) {})
}

func (m *Manager) onPeerEvent(ev codec.Event, _ *fedclient.ClientSession) {
	if push, ok := ev.(*codec.MessagePushEvent); ok {
		if m.localFanOut != nil {
			env := &codec.Envelope{Version: codec.Version, TimestampMs: push.Message.TimestampMs, Event: push}
			interest := fanout.Interest{ServerPubkey: push.ServerPubkey, ServerID: push.ServerID, ChannelID: push.Message.ChannelID, HasChannel: true}
			for _, d := range m.localFanOut.AddEvent(env, interest) {
				d.Slot <- env
			}
			wholeServer := fanout.Interest{ServerPubkey: push.ServerPubkey, ServerID: push.ServerID}
			for _, d := range m.localFanOut.AddEvent(env, wholeServer) {
				d.Slot <- env
			}
		}
		return
	}

	hi, lo, ok := requestID(ev)
	if !ok {
		return
	}
	key := requestKey{hi, lo}
	m.mu.Lock()
	cb, found := m.callbacks[key]
	if found {
		delete(m.callbacks, key)
	}
	m.mu.Unlock()
	if found {
		cb(ev)
	}
}

// onPeerErrorFor drops peerPubkey's session on any I/O error. Pending
// callbacks for that peer are left in place unfired — spec.md §4.9 states
// they are not retried; the caller is expected to resubmit.
func (m *Manager) onPeerErrorFor(peerPubkey [32]byte) fedclient.ErrorHandler {
	return func(err error, onion string) {
		m.mu.Lock()
		delete(m.peers, peerPubkey)
		m.mu.Unlock()
	}
}

// Len reports the number of pooled peer sessions, chiefly for tests.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}
