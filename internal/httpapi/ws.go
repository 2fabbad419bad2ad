package httpapi

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/37miners/concord/internal/authengine"
	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/session"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsWriteTimeout = 5 * time.Second

// handleWebSocket upgrades one request and serves it until disconnect,
// grounded on the teacher's Handler.HandleWebSocket/serveConn pair
// (internal/ws/handler.go) — same upgrade-then-reader-loop shape, but the
// first exchange is the handshake (spec.md §4.4) rather than a hello
// message, and every event after it is decoded with codec.Decode instead of
// JSON.
func (s *Server) handleWebSocket(c echo.Context) error {
	remoteAddr := c.RealIP()
	slog.Debug("ws upgrade request", "remote", remoteAddr)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("ws upgrade failed", "remote", remoteAddr, "err", err)
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	s.serveConn(conn, remoteAddr)
	return nil
}

func (s *Server) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	var connID [16]byte
	if _, err := rand.Read(connID[:]); err != nil {
		slog.Error("ws connection id generation failed", "remote", remoteAddr, "err", err)
		return
	}

	send := make(chan []byte, 64)
	s.conns.Insert(connID, func(frame []byte) error {
		select {
		case send <- frame:
			return nil
		default:
			return fmt.Errorf("ws: send buffer full for connection %x", connID)
		}
	})

	handshake := authengine.New(s.dataEngine, s.processPubkey)
	sess := session.New(connID, handshake, s.conns, s.fanOut, s.dataEngine, s.processPubkey)
	defer sess.Close()

	go func() {
		for frame := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				slog.Debug("ws write error", "conn", fmt.Sprintf("%x", connID), "err", err)
				return
			}
		}
	}()

	challenge := handshake.Begin(connID)
	send <- codec.Encode(nowMs(), challenge)
	slog.Debug("ws challenge sent", "conn", fmt.Sprintf("%x", connID), "remote", remoteAddr)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws unexpected close", "conn", fmt.Sprintf("%x", connID), "err", err)
			}
			close(send)
			return
		}

		env, err := codec.Decode(raw)
		if err != nil {
			slog.Debug("ws decode failed", "conn", fmt.Sprintf("%x", connID), "err", err)
			close(send)
			return
		}

		resp, err := sess.Handle(env.Event, nowMs())
		if err != nil {
			slog.Debug("ws handle failed", "conn", fmt.Sprintf("%x", connID), "event", fmt.Sprintf("%T", env.Event), "err", err)
			close(send)
			return
		}
		if resp == nil {
			continue
		}
		send <- codec.Encode(nowMs(), resp)

		if auth, ok := resp.(*codec.AuthResponse); ok && !auth.Success {
			close(send)
			return
		}
	}
}
