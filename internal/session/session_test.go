package session

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/37miners/concord/internal/authengine"
	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/conntable"
	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/fanout"
	"github.com/37miners/concord/internal/kvstore"
)

func newTestEngine(t *testing.T) *dataengine.Engine {
	t.Helper()
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "concord.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return dataengine.New(store)
}

// authedSession drives one connection through the handshake with a freshly
// generated keypair and returns the Session plus that identity's pubkey.
func authedSession(t *testing.T, de *dataengine.Engine) (*Session, [32]byte) {
	t.Helper()
	pub, priv, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	connID := [16]byte{9, 9, 9}
	hs := authengine.New(de, [32]byte{})
	hs.Begin(connID)

	msg := []byte(new(big.Int).SetBytes(connID[:]).String())
	sig := cryptoid.Sign(priv, msg)
	resp, err := hs.HandleAuth(&codec.AuthEvent{HasPubkey: true, Pubkey: pub, HasSig: true, Signature: sig}, 1000)
	if err != nil || !resp.Success {
		t.Fatalf("handshake failed: resp=%#v err=%v", resp, err)
	}

	conns := conntable.New()
	conns.Insert(connID, func([]byte) error { return nil })
	conns.Bind(connID, pub)

	fo := fanout.New([32]byte{}, nil)
	s := New(connID, hs, conns, fo, de, [32]byte{})
	return s, pub
}

// ownerSession authenticates over the token path as the process's own
// identity, the "anonymous-owner semantics for local tools" spec.md §4.4
// describes: BootstrapOwner grants that identity OWNER at the global scope,
// and the session's localServer is set to the same pubkey so global-scope
// events (CreateServer and friends) authorize against it.
func ownerSession(t *testing.T, de *dataengine.Engine) (*Session, [32]byte) {
	t.Helper()
	processPub, _, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	if err := de.BootstrapOwner(processPub, 1000); err != nil {
		t.Fatalf("bootstrap owner: %v", err)
	}
	token, err := de.MintProcessToken(processPub, constants.TokenExpirationMs, 1000)
	if err != nil {
		t.Fatalf("mint process token: %v", err)
	}

	connID := [16]byte{4, 4, 4}
	hs := authengine.New(de, processPub)
	hs.Begin(connID)
	resp, err := hs.HandleAuth(&codec.AuthEvent{HasToken: true, Token: token}, 1500)
	if err != nil || !resp.Success {
		t.Fatalf("owner handshake failed: resp=%#v err=%v", resp, err)
	}

	conns := conntable.New()
	conns.Insert(connID, func([]byte) error { return nil })
	conns.Bind(connID, processPub)

	fo := fanout.New(processPub, nil)
	s := New(connID, hs, conns, fo, de, processPub)
	return s, processPub
}

func TestCreateServerRequiresOwnerGloballyForCreator(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	s, processPub := ownerSession(t, de)

	resp, err := s.Handle(&codec.CreateServerEvent{Name: "my server"}, 2000)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response for CreateServerEvent, got %#v", resp)
	}

	servers, err := de.GetServers(processPub)
	if err != nil {
		t.Fatalf("get servers: %v", err)
	}
	if len(servers) != 1 || servers[0].Name != "my server" {
		t.Fatalf("expected one created server, got %#v", servers)
	}
}

func TestCreateServerRejectsNonOwner(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	s, _ := authedSession(t, de)
	// No BootstrapOwner call: this identity holds no global OWNER membership.

	_, err := s.Handle(&codec.CreateServerEvent{Name: "nope"}, 2000)
	if err != errAuthz {
		t.Fatalf("expected errAuthz, got %v", err)
	}
}

func TestChannelMutationRequiresOwnerOnTargetServer(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	s, pub := authedSession(t, de)

	serverID, err := de.AddServer(pub, "srv", nil, nil, pub, false, 1000)
	if err != nil {
		t.Fatalf("add server: %v", err)
	}

	resp, err := s.Handle(&codec.AddChannelRequest{ServerID: serverID, ServerPubkey: pub, Name: "general"}, 2000)
	if err != nil {
		t.Fatalf("add channel: %v", err)
	}
	addResp := resp.(*codec.AddChannelResponse)
	if !addResp.Success {
		t.Fatalf("expected success, got error %q", addResp.Error)
	}

	channels, err := de.GetChannels(pub, serverID)
	if err != nil || len(channels) != 1 {
		t.Fatalf("expected one channel, got %#v err=%v", channels, err)
	}
}

func TestAddChannelDeniedForNonMember(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	ownerPub, _, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	serverID, err := de.AddServer(ownerPub, "srv", nil, nil, ownerPub, false, 1000)
	if err != nil {
		t.Fatalf("add server: %v", err)
	}

	s, _ := authedSession(t, de)

	req := &codec.AddChannelRequest{ServerID: serverID, ServerPubkey: ownerPub, Name: "general"}
	req.RequestIDHi, req.RequestIDLo = 1, 2
	resp, err := s.Handle(req, 2000)
	if err != nil {
		t.Fatalf("add channel: %v", err)
	}
	addResp := resp.(*codec.AddChannelResponse)
	if addResp.Success {
		t.Fatal("expected failure for a non-member")
	}
	if addResp.RequestIDHi != 1 || addResp.RequestIDLo != 2 {
		t.Fatalf("expected request id to be echoed back, got %#v", addResp)
	}
}

func TestSendMessageAssignsSeqnoAndRequiresMember(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	s, pub := authedSession(t, de)

	serverID, err := de.AddServer(pub, "srv", nil, nil, pub, false, 1000)
	if err != nil {
		t.Fatalf("add server: %v", err)
	}
	channelID, err := de.AddChannel(pub, serverID, "general", "")
	if err != nil {
		t.Fatalf("add channel: %v", err)
	}

	req := &codec.SendMessageRequest{ServerID: serverID, ServerPubkey: pub, ChannelID: channelID, Payload: []byte("hi")}
	resp, err := s.Handle(req, 3000)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	sendResp := resp.(*codec.SendMessageResponse)
	if !sendResp.Success || sendResp.Seqno != 0 {
		t.Fatalf("expected first message to have seqno 0, got %#v", sendResp)
	}
}

func TestGetServersRequiresOwnerAndScopesToLocalServer(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	s, processPub := ownerSession(t, de)

	if _, err := de.AddServer(processPub, "one", nil, nil, processPub, false, 1000); err != nil {
		t.Fatalf("add server: %v", err)
	}

	resp, err := s.Handle(&codec.GetServersEvent{}, 1000)
	if err != nil {
		t.Fatalf("get servers: %v", err)
	}
	getResp := resp.(*codec.GetServersResponse)
	if len(getResp.Servers) != 1 || getResp.Servers[0].Name != "one" {
		t.Fatalf("expected the one server scoped to the process identity, got %#v", getResp.Servers)
	}
}

func TestGetServersRejectsNonOwner(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	s, pub := authedSession(t, de)
	// No BootstrapOwner call: this identity holds no global OWNER membership.

	if _, err := de.AddServer(pub, "one", nil, nil, pub, false, 1000); err != nil {
		t.Fatalf("add server: %v", err)
	}

	_, err := s.Handle(&codec.GetServersEvent{}, 1000)
	if err != errAuthz {
		t.Fatalf("expected errAuthz, got %v", err)
	}
}

func TestUnauthenticatedConnectionRejectsNonAuthEvents(t *testing.T) {
	t.Parallel()
	de := newTestEngine(t)
	hs := authengine.New(de, [32]byte{})
	conns := conntable.New()
	connID := [16]byte{1}
	conns.Insert(connID, func([]byte) error { return nil })
	fo := fanout.New([32]byte{}, nil)
	s := New(connID, hs, conns, fo, de, [32]byte{})

	if _, err := s.Handle(&codec.GetServersEvent{}, 1000); err == nil {
		t.Fatal("expected an error dispatching before authentication")
	}
}
