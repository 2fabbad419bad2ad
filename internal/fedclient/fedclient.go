// Package fedclient implements ClientSession: the outbound half of
// federation, dialing a peer server through Tor and driving its own
// AuthEngine handshake before relaying events both ways (spec.md §4.8).
// Framing reuses gorilla/websocket rather than hand-rolling the HTTP
// Upgrade + frame parsing spec.md describes step by step — the teacher
// already depends on gorilla/websocket for the server side
// (internal/ws/handler.go), and websocket.NewClient performs exactly the
// upgrade handshake and Binary/Close framing that description names.
package fedclient

import (
	"crypto/ed25519"
	"fmt"
	"math/big"
	"net"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/cryptoid"
)

// OnionDialer opens a raw connection to a peer's onion address, typically
// through a local Tor SOCKS5 proxy.
type OnionDialer interface {
	Dial(onion string, port int) (net.Conn, error)
}

// AuthParams selects how this session answers the peer's ChallengeEvent:
// by presenting a previously issued Token, or by signing the challenge
// with Secret.
type AuthParams struct {
	Token     [16]byte
	HasToken  bool
	Secret    ed25519.PrivateKey
}

// EventHandler receives each event the peer sends (other than the
// handshake, which ClientSession drives itself), alongside the session to
// reply through.
type EventHandler func(ev codec.Event, session *ClientSession)

// ErrorHandler is invoked once, on the first I/O error, with the peer's
// onion address.
type ErrorHandler func(err error, onion string)

// ClientSession owns one outbound connection to a federation peer: a
// reader goroutine decoding incoming frames and a writer goroutine
// draining a capacity-2 queue, exactly as spec.md §4.8 describes.
type ClientSession struct {
	conn   *websocket.Conn
	writer chan *codec.Envelope
	onion  string
}

// Dial opens a SOCKS5 tunnel to (onion, 80), performs the websocket
// upgrade, and starts the reader/writer worker pair. onEvent is invoked
// for every event that isn't the handshake's own ChallengeEvent; onError
// fires at most once, on the first I/O failure, after which the session is
// done and should be discarded by the caller.
func Dial(dialer OnionDialer, onion string, auth AuthParams, onEvent EventHandler, onError ErrorHandler) (*ClientSession, error) {
	raw, err := dialer.Dial(onion, 80)
	if err != nil {
		return nil, fmt.Errorf("fedclient: dial %s: %w", onion, err)
	}

	u := &url.URL{Scheme: "ws", Host: onion, Path: "/ws"}
	wsConn, _, err := websocket.NewClient(raw, u, nil, 4096, 4096)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("fedclient: websocket upgrade to %s: %w", onion, err)
	}

	s := &ClientSession{conn: wsConn, writer: make(chan *codec.Envelope, 2), onion: onion}
	go s.writeLoop()
	go s.readLoop(auth, onEvent, onError)
	return s, nil
}

// Send queues env for the writer goroutine. A nil env asks the writer to
// shut down both directions of the socket.
func (s *ClientSession) Send(env *codec.Envelope) { s.writer <- env }

// Close asks the writer to shut the connection down (spec.md §4.8
// "Cancellation").
func (s *ClientSession) Close() { s.Send(nil) }

func (s *ClientSession) writeLoop() {
	for env := range s.writer {
		if env == nil {
			s.conn.Close()
			return
		}
		frame := codec.Encode(env.TimestampMs, env.Event)
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.conn.Close()
			return
		}
	}
}

func (s *ClientSession) readLoop(auth AuthParams, onEvent EventHandler, onError ErrorHandler) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			onError(err, s.onion)
			return
		}
		if msgType == websocket.CloseMessage {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		env, err := codec.Decode(data)
		if err != nil {
			onError(fmt.Errorf("fedclient: decode frame from %s: %w", s.onion, err), s.onion)
			return
		}
		if ch, ok := env.Event.(*codec.ChallengeEvent); ok {
			s.Send(&codec.Envelope{Version: codec.Version, TimestampMs: env.TimestampMs, Event: authEventFor(ch, auth)})
			continue
		}
		onEvent(env.Event, s)
	}
}

// authEventFor answers a ChallengeEvent per the configured AuthParams: the
// token path presents a previously issued token, the secret path signs the
// ASCII-decimal connection id carried in the challenge (spec.md §4.4's
// signature message, reused unchanged for federation auth).
func authEventFor(ch *codec.ChallengeEvent, auth AuthParams) *codec.AuthEvent {
	if auth.HasToken {
		return &codec.AuthEvent{HasToken: true, Token: auth.Token}
	}
	connID := combineU128(ch.ChallengeHi, ch.ChallengeLo)
	msg := connIDMessage(connID)
	sig := cryptoid.Sign(auth.Secret, msg)
	var pub [32]byte
	copy(pub[:], auth.Secret.Public().(ed25519.PublicKey))
	return &codec.AuthEvent{HasPubkey: true, Pubkey: pub, HasSig: true, Signature: sig}
}

func combineU128(hi, lo uint64) [16]byte {
	var id [16]byte
	for i := 0; i < 8; i++ {
		id[i] = byte(hi >> (8 * (7 - i)))
	}
	for i := 0; i < 8; i++ {
		id[8+i] = byte(lo >> (8 * (7 - i)))
	}
	return id
}

// connIDMessage mirrors authengine's connIDMessage — the ASCII-decimal
// rendering of a connection id that the signature path signs over
// (spec.md §4.4), duplicated here since the two packages share no
// dependency relationship.
func connIDMessage(connID [16]byte) []byte {
	return []byte(new(big.Int).SetBytes(connID[:]).String())
}
