package connmanager

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/fanout"
)

type dialerTo struct{ addr string }

func (d dialerTo) Dial(onion string, port int) (net.Conn, error) {
	return net.Dial("tcp", d.addr)
}

func newFakePeer(t *testing.T, handle func(conn *websocket.Conn)) dialerTo {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return dialerTo{addr: srv.Listener.Addr().String()}
}

func TestSendEventSpawnsSessionAndInvokesCallback(t *testing.T) {
	t.Parallel()
	dialer := newFakePeer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := codec.Decode(data)
		if err != nil {
			return
		}
		req, ok := env.Event.(*codec.SendMessageRequest)
		if !ok {
			return
		}
		resp := &codec.SendMessageResponse{Success: true}
		resp.RequestIDHi, resp.RequestIDLo = req.RequestIDHi, req.RequestIDLo
		_ = conn.WriteMessage(websocket.BinaryMessage, codec.Encode(0, resp))
		time.Sleep(50 * time.Millisecond)
	})

	m := New(dialer, nil, nil, 19901)
	var peer [32]byte
	peer[0] = 0x42

	got := make(chan codec.Event, 1)
	req := &codec.SendMessageRequest{}
	req.RequestIDHi, req.RequestIDLo = 1, 2
	if err := m.SendEvent(peer, req, func(ev codec.Event) { got <- ev }); err != nil {
		t.Fatalf("send event: %v", err)
	}

	select {
	case ev := <-got:
		resp, ok := ev.(*codec.SendMessageResponse)
		if !ok || !resp.Success || resp.RequestIDHi != 1 || resp.RequestIDLo != 2 {
			t.Fatalf("unexpected callback event: %#v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	if m.Len() != 1 {
		t.Fatalf("expected one pooled peer session, got %d", m.Len())
	}
}

func TestOnForeignInterestSendsSubscribeRequest(t *testing.T) {
	t.Parallel()
	gotReq := make(chan *codec.SubscribeRequest, 1)
	dialer := newFakePeer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := codec.Decode(data)
		if err != nil {
			return
		}
		if req, ok := env.Event.(*codec.SubscribeRequest); ok {
			gotReq <- req
		}
		time.Sleep(50 * time.Millisecond)
	})

	m := New(dialer, nil, nil, 19901)
	var peer [32]byte
	peer[7] = 0x99
	m.OnForeignInterest(fanout.Interest{ServerPubkey: peer, ServerID: [8]byte{1}, ChannelID: 5, HasChannel: true}, 19901)

	select {
	case req := <-gotReq:
		if req.ServerPubkey != peer || req.ChannelID != 5 || !req.HasChannelID {
			t.Fatalf("unexpected subscribe request: %#v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribe request")
	}
}

func TestPeerMessagePushFansOutLocally(t *testing.T) {
	t.Parallel()
	var peer [32]byte
	peer[0] = 0x11
	serverID := [8]byte{7}

	pushed := make(chan struct{}, 1)
	dialer := newFakePeer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		push := &codec.MessagePushEvent{
			ServerID:     serverID,
			ServerPubkey: peer,
			Message:      codec.MessageInfo{ChannelID: 3, Seqno: 1},
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, codec.Encode(0, push))
		<-pushed
	})

	fo := fanout.New([32]byte{}, nil)
	m := New(dialer, nil, fo, 19901)

	delivered := make(chan []byte, 1)
	listenerID := [16]byte{1}
	slot := make(fanout.SendSlot, 1)
	fo.SetListenerInterest(listenerID, slot, []fanout.Interest{{ServerPubkey: peer, ServerID: serverID, ChannelID: 3, HasChannel: true}}, 19901, 1000)
	go func() {
		env := <-slot
		delivered <- codec.Encode(env.TimestampMs, env.Event)
	}()

	// force-dial the fake peer so onPeerEvent is wired to this manager.
	if _, err := m.sessionFor(peer); err != nil {
		t.Fatalf("session for: %v", err)
	}

	select {
	case <-delivered:
		pushed <- struct{}{}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for local fan-out of peer's message push")
	}
}

func TestPeerErrorDropsSession(t *testing.T) {
	t.Parallel()
	dialer := newFakePeer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	m := New(dialer, nil, nil, 19901)
	var peer [32]byte
	peer[0] = 0x77
	if _, err := m.sessionFor(peer); err != nil {
		t.Fatalf("session for: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected session to be dropped after peer closed the connection")
}
