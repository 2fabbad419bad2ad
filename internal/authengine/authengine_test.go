package authengine

import (
	"path/filepath"
	"testing"

	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/kvstore"
)

func newEngine(t *testing.T) *dataengine.Engine {
	t.Helper()
	st, err := kvstore.Open(filepath.Join(t.TempDir(), "concord.db"))
	if err != nil {
		t.Fatalf("open kvstore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return dataengine.New(st)
}

func TestTokenPathBindsProcessPubkey(t *testing.T) {
	t.Parallel()
	de := newEngine(t)
	var process [32]byte
	process[0] = 0xAB

	if err := de.BootstrapOwner(process, 1000); err != nil {
		t.Fatalf("bootstrap owner: %v", err)
	}
	token, err := de.MintProcessToken(process, constants.TokenExpirationMs, 1000)
	if err != nil {
		t.Fatalf("mint process token: %v", err)
	}

	h := New(de, process)
	h.Begin([16]byte{1, 2, 3})
	resp, err := h.HandleAuth(&codec.AuthEvent{HasToken: true, Token: token}, 1500)
	if err != nil {
		t.Fatalf("handle auth: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected token path to succeed")
	}
	if h.State() != StateAuthed {
		t.Fatalf("expected StateAuthed, got %v", h.State())
	}
	if h.BoundPubkey() != process {
		t.Fatal("expected bound pubkey to equal process pubkey")
	}
}

func TestSignaturePathBindsSignerPubkey(t *testing.T) {
	t.Parallel()
	de := newEngine(t)
	var process [32]byte

	pub, priv, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	h := New(de, process)
	connID := [16]byte{9, 9, 9}
	h.Begin(connID)
	sig := cryptoid.Sign(priv, connIDMessage(connID))

	resp, err := h.HandleAuth(&codec.AuthEvent{HasPubkey: true, Pubkey: pub, HasSig: true, Signature: sig}, 1000)
	if err != nil {
		t.Fatalf("handle auth: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected signature path to succeed")
	}
	if h.BoundPubkey() != pub {
		t.Fatal("expected bound pubkey to equal signer pubkey")
	}
}

func TestBadSignatureClosesConnection(t *testing.T) {
	t.Parallel()
	de := newEngine(t)
	var process [32]byte
	pub, _, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	h := New(de, process)
	h.Begin([16]byte{1})
	resp, err := h.HandleAuth(&codec.AuthEvent{HasPubkey: true, Pubkey: pub, HasSig: true, Signature: []byte{0, 0, 0}}, 1000)
	if err != nil {
		t.Fatalf("handle auth: %v", err)
	}
	if resp.Success {
		t.Fatal("expected bad signature to fail")
	}
	if h.State() != StateClosed {
		t.Fatalf("expected StateClosed, got %v", h.State())
	}
}

func TestMalformedAuthEventCloses(t *testing.T) {
	t.Parallel()
	de := newEngine(t)
	var process [32]byte
	h := New(de, process)
	h.Begin([16]byte{1})
	resp, err := h.HandleAuth(&codec.AuthEvent{}, 1000)
	if err != nil {
		t.Fatalf("handle auth: %v", err)
	}
	if resp.Success || h.State() != StateClosed {
		t.Fatal("expected malformed auth event to close the connection")
	}
}
