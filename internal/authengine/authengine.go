// Package authengine implements the per-connection handshake state machine:
// Open -> ChallengeSent -> Authed | Closed (spec.md §4.4). It holds no
// transport; ServerSession drives it with decoded events and forwards the
// resulting response events back over the connection.
package authengine

import (
	"fmt"
	"math/big"

	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/keymodel"
)

// State is one of the handshake states named in spec.md §4.4.
type State int

const (
	StateOpen State = iota
	StateChallengeSent
	StateAuthed
	StateClosed
)

// Handshake drives one connection's Open -> ChallengeSent -> Authed|Closed
// transition.
type Handshake struct {
	state         State
	connID        [16]byte
	dataEngine    *dataengine.Engine
	processPubkey [32]byte
	boundPubkey   [32]byte
}

// New returns a Handshake in StateOpen, bound to the process's own identity
// for token-path authorization (spec.md §4.4 "anonymous-owner semantics for
// local tools").
func New(dataEngine *dataengine.Engine, processPubkey [32]byte) *Handshake {
	return &Handshake{state: StateOpen, dataEngine: dataEngine, processPubkey: processPubkey}
}

// State reports the current handshake state.
func (h *Handshake) State() State { return h.state }

// BoundPubkey reports the pubkey bound to this connection, once Authed.
func (h *Handshake) BoundPubkey() [32]byte { return h.boundPubkey }

// Begin transitions Open -> ChallengeSent and returns the ChallengeEvent to
// send, carrying connID as its payload.
func (h *Handshake) Begin(connID [16]byte) *codec.ChallengeEvent {
	h.connID = connID
	h.state = StateChallengeSent
	hi := bigEndianHi(connID)
	lo := bigEndianLo(connID)
	return &codec.ChallengeEvent{ChallengeHi: hi, ChallengeLo: lo}
}

func bigEndianHi(id [16]byte) uint64 {
	var hi uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(id[i])
	}
	return hi
}

func bigEndianLo(id [16]byte) uint64 {
	var lo uint64
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(id[i])
	}
	return lo
}

// connIDMessage renders connID as the decimal ASCII string signed over on
// the signature path (spec.md §4.4: "message = ascii(connection_id)").
func connIDMessage(connID [16]byte) []byte {
	n := new(big.Int).SetBytes(connID[:])
	return []byte(n.String())
}

// HandleAuth consumes the one AuthEvent expected in StateChallengeSent. It
// returns the AuthResponse to send; on success the Handshake transitions to
// Authed and BoundPubkey becomes valid, on failure (or a malformed event) it
// transitions to Closed, matching spec.md §4.4 exactly.
func (h *Handshake) HandleAuth(ev *codec.AuthEvent, nowMs uint64) (*codec.AuthResponse, error) {
	if h.state != StateChallengeSent {
		h.state = StateClosed
		return &codec.AuthResponse{Success: false}, fmt.Errorf("authengine: auth event outside ChallengeSent")
	}

	switch {
	case ev.HasToken:
		ok, err := h.dataEngine.IsAuthorized(h.processPubkey, h.processPubkey, ev.Token, keymodel.GlobalServerID, constants.OwnerFlag, nowMs)
		if err != nil {
			h.state = StateClosed
			return &codec.AuthResponse{Success: false}, fmt.Errorf("authengine: token lookup: %w", err)
		}
		if !ok {
			h.state = StateClosed
			return &codec.AuthResponse{Success: false}, nil
		}
		h.boundPubkey = h.processPubkey
		h.state = StateAuthed
		return &codec.AuthResponse{Success: true}, nil

	case ev.HasPubkey && ev.HasSig:
		if !cryptoid.Verify(ev.Pubkey, connIDMessage(h.connID), ev.Signature) {
			h.state = StateClosed
			return &codec.AuthResponse{Success: false}, nil
		}
		h.boundPubkey = ev.Pubkey
		h.state = StateAuthed
		return &codec.AuthResponse{Success: true}, nil

	default:
		h.state = StateClosed
		return &codec.AuthResponse{Success: false}, nil
	}
}

// Dispatch reports whether events may be dispatched to DataEngine in the
// current state — only true once Authed.
func (h *Handshake) Dispatch() bool { return h.state == StateAuthed }
