package fedclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/37miners/concord/internal/codec"
)

// dialerTo ignores the onion/port pair and dials a fixed address — a
// stand-in for a real Tor SOCKS5 hop in tests.
type dialerTo struct{ addr string }

func (d dialerTo) Dial(onion string, port int) (net.Conn, error) {
	return net.Dial("tcp", d.addr)
}

func newTestPeer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

func TestDialAnswersChallengeWithToken(t *testing.T) {
	t.Parallel()
	var token [16]byte
	token[0] = 0xAB

	gotAuth := make(chan *codec.AuthEvent, 1)
	addr := newTestPeer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		frame := codec.Encode(0, &codec.ChallengeEvent{ChallengeHi: 1, ChallengeLo: 2})
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Errorf("write challenge: %v", err)
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read auth: %v", err)
			return
		}
		env, err := codec.Decode(data)
		if err != nil {
			t.Errorf("decode auth: %v", err)
			return
		}
		auth, ok := env.Event.(*codec.AuthEvent)
		if !ok {
			t.Errorf("expected AuthEvent, got %T", env.Event)
			return
		}
		gotAuth <- auth
	})

	session, err := Dial(dialerTo{addr}, "peer.onion", AuthParams{Token: token, HasToken: true},
		func(ev codec.Event, s *ClientSession) {},
		func(err error, onion string) {})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(session.Close)

	select {
	case auth := <-gotAuth:
		if !auth.HasToken || auth.Token != token {
			t.Fatalf("expected token auth event with %x, got %#v", token, auth)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth event")
	}
}

func TestDialDeliversNonChallengeEventsToCallback(t *testing.T) {
	t.Parallel()
	received := make(chan codec.Event, 1)
	addr := newTestPeer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		frame := codec.Encode(0, &codec.PingEvent{TimestampMs: 42})
		_ = conn.WriteMessage(websocket.BinaryMessage, frame)
		time.Sleep(50 * time.Millisecond)
	})

	session, err := Dial(dialerTo{addr}, "peer.onion", AuthParams{HasToken: true},
		func(ev codec.Event, s *ClientSession) { received <- ev },
		func(err error, onion string) {})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(session.Close)

	select {
	case ev := <-received:
		ping, ok := ev.(*codec.PingEvent)
		if !ok || ping.TimestampMs != 42 {
			t.Fatalf("expected PingEvent{42}, got %#v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered event")
	}
}
