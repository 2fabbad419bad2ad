// Package httpapi is the process's one external listener: it upgrades /ws
// into a ServerSession for the wire protocol, and answers the plain-HTTP
// operator/browser endpoints spec.md §6 enumerates (bootstrap auth,
// challenge/response, invite acceptance, profile images). Grounded on the
// teacher's internal/httpapi.Server/registerRoutes/requestLogger shape,
// generalized from one fixed ChannelState to the full Concord surface.
package httpapi

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/37miners/concord/internal/authengine"
	"github.com/37miners/concord/internal/conntable"
	"github.com/37miners/concord/internal/connmanager"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/fanout"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server is the Echo application serving both /ws and the REST surface.
type Server struct {
	echo *echo.Echo

	dataEngine *dataengine.Engine
	fanOut     *fanout.FanOut
	conns      *conntable.Table
	connMgr    *connmanager.Manager

	processPubkey [32]byte
	processSecret ed25519.PrivateKey
	torPort       uint16

	upgrader websocket.Upgrader
}

// New constructs the Echo app and registers every route. processPubkey and
// processSecret identify this process's own server identity, used to
// bootstrap the owner's handshake (spec.md §4.4) and to sign federation
// traffic ConnManager originates.
func New(dataEngine *dataengine.Engine, fanOut *fanout.FanOut, conns *conntable.Table, connMgr *connmanager.Manager, processPubkey [32]byte, processSecret ed25519.PrivateKey, torPort uint16) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{
		echo:          e,
		dataEngine:    dataEngine,
		fanOut:        fanOut,
		conns:         conns,
		connMgr:       connMgr,
		processPubkey: processPubkey,
		processSecret: processSecret,
		torPort:       torPort,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// requestLogger mirrors the teacher's slog-based access logging, quieting
// the high-frequency /ws path to debug level.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := req.URL.Path
			if path == "/ws" || path == "/health" {
				slog.Debug("http request", "method", req.Method, "path", path, "status", c.Response().Status, "duration_ms", time.Since(start).Milliseconds())
			} else {
				slog.Info("http request", "method", req.Method, "path", path, "status", c.Response().Status, "duration_ms", time.Since(start).Milliseconds(), "remote", c.RealIP())
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ws", s.handleWebSocket)

	s.echo.GET("/auth", s.handleAuth)
	s.echo.GET("/get_challenge", s.handleGetChallenge)
	s.echo.GET("/challenge_auth", s.handleChallengeAuth)

	s.echo.GET("/i", s.handleAcceptInviteRedirect)
	s.echo.GET("/view_invite", s.handleViewInvite)
	s.echo.GET("/join_server", s.handleJoinServer)
	s.echo.GET("/create_invite", s.handleCreateInvite)
	s.echo.GET("/revoke_invite", s.handleRevokeInvite)
	s.echo.GET("/list_invites", s.handleListInvites)

	s.echo.POST("/set_profile_image", s.handleSetProfileImage)
	s.echo.GET("/set_profile_data", s.handleSetProfileData)
	s.echo.GET("/get_server_icon", s.handleGetServerIcon)
	s.echo.GET("/get_profile_image", s.handleGetProfileImage)
	s.echo.GET("/get_profile_images", s.handleGetProfileImages)
	s.echo.GET("/get_profile_data", s.handleGetProfileData)
	s.echo.GET("/get_mini_profile", s.handleGetMiniProfile)
}

// Run starts Echo and blocks until ctx cancellation or startup failure,
// matching the teacher's graceful-shutdown shape.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("http server stopped")
		return nil
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Connections: s.conns.Len()})
}

type errorResponse struct {
	Error string `json:"error"`
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
