package httpapi

import (
	"net/http"
	"strconv"

	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/dataengine"

	"github.com/labstack/echo/v4"
)

// parseServerID decodes the url(b64) server_id query param, following the
// same encoding spec.md §6 uses for every other fixed-size id on the wire.
func parseServerID(s string) (id [8]byte, err error) {
	raw, err := decodeB64(s, 8)
	if err != nil {
		return id, err
	}
	copy(id[:], raw)
	return id, nil
}

// requireOwner checks user_pubkey+token authorize OwnerFlag on
// (process's own identity, serverID) — the proof every admin-only invite
// endpoint demands, since invites in this deployment are always created on
// a locally hosted server.
func (s *Server) requireOwner(c echo.Context, serverID [8]byte) (userPubkey [32]byte, ok bool, err error) {
	userPubkey, err = parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return userPubkey, false, err
	}
	token, err := parseID16Decimal(c.QueryParam("token"))
	if err != nil {
		return userPubkey, false, err
	}
	authorized, err := s.dataEngine.IsAuthorized(userPubkey, s.processPubkey, token, serverID, constants.OwnerFlag, nowMs())
	if err != nil {
		return userPubkey, false, err
	}
	return userPubkey, authorized, nil
}

type inviteResponse struct {
	ID string `json:"id"`
}

// handleCreateInvite mints an invite on a locally hosted server. Requires
// OwnerFlag proof via user_pubkey+token (requireOwner).
func (s *Server) handleCreateInvite(c echo.Context) error {
	serverID, err := parseServerID(c.QueryParam("server_id"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid server_id")
	}
	inviter, authorized, err := s.requireOwner(c, serverID)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if !authorized {
		return jsonError(c, http.StatusForbidden, "not authorized")
	}

	expiryMs, err := strconv.ParseUint(c.QueryParam("expiry_ms"), 10, 64)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid expiry_ms")
	}
	maxUses, err := strconv.ParseUint(c.QueryParam("max_uses"), 10, 64)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid max_uses")
	}

	id, err := s.dataEngine.CreateInvite(inviter, serverID, expiryMs, maxUses)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, inviteResponse{ID: encodeB64(id[:])})
}

// handleRevokeInvite deletes an invite. server_id is required up front so
// the owner proof can be checked before the invite lookup itself runs.
func (s *Server) handleRevokeInvite(c echo.Context) error {
	serverID, err := parseServerID(c.QueryParam("server_id"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid server_id")
	}
	_, authorized, err := s.requireOwner(c, serverID)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if !authorized {
		return jsonError(c, http.StatusForbidden, "not authorized")
	}

	id, err := parseID16B64(c.QueryParam("id"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid id")
	}
	if err := s.dataEngine.DeleteInvite(id); err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

type inviteInfo struct {
	ID       string `json:"id"`
	ExpiryMs uint64 `json:"expiry_ms"`
	Cur      uint64 `json:"cur"`
	Max      uint64 `json:"max"`
}

func toInviteInfo(r dataengine.InviteRecord) inviteInfo {
	return inviteInfo{ID: encodeB64(r.ID[:]), ExpiryMs: r.ExpiryMs, Cur: r.Cur, Max: r.Max}
}

type listInvitesResponse struct {
	Invites []inviteInfo `json:"invites"`
}

// handleListInvites lists every outstanding invite on a server. Requires
// OwnerFlag.
func (s *Server) handleListInvites(c echo.Context) error {
	serverID, err := parseServerID(c.QueryParam("server_id"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid server_id")
	}
	_, authorized, err := s.requireOwner(c, serverID)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if !authorized {
		return jsonError(c, http.StatusForbidden, "not authorized")
	}

	invites, err := s.dataEngine.ListInvites(serverID, nil)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	out := make([]inviteInfo, 0, len(invites))
	for _, inv := range invites {
		out = append(out, toInviteInfo(inv))
	}
	return c.JSON(http.StatusOK, listInvitesResponse{Invites: out})
}

type serverStateResponse struct {
	ServerID     string `json:"server_id"`
	ServerPubkey string `json:"server_pubkey"`
}

// handleViewInvite previews an invite without consuming it — no signature
// or membership proof required, mirroring a chat client's "you've been
// invited to..." preview screen.
func (s *Server) handleViewInvite(c echo.Context) error {
	id, err := parseID16B64(c.QueryParam("id"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid id")
	}
	rec, ok, err := s.dataEngine.CheckInvite(id)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return jsonError(c, http.StatusNotFound, "invite not found or exhausted")
	}
	return c.JSON(http.StatusOK, serverStateResponse{ServerID: encodeB64(rec.ServerID[:]), ServerPubkey: encodeB64(s.processPubkey[:])})
}

// acceptInvite validates the signed (id, timestamp) pair and, on success,
// runs AcceptInvite against this process's own server identity — every
// invite minted by this process always targets a locally hosted server, so
// AcceptInvite's serverPubkey is always s.processPubkey.
func (s *Server) acceptInvite(c echo.Context) (found bool, serverID [8]byte, err error) {
	id, err := parseID16B64(c.QueryParam("id"))
	if err != nil {
		return false, serverID, err
	}
	userPubkey, err := parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return false, serverID, err
	}
	timestamp := c.QueryParam("timestamp")
	signature, err := parseSignature(c.QueryParam("signature"))
	if err != nil {
		return false, serverID, err
	}
	if !cryptoid.Verify(userPubkey, []byte(timestamp), signature) {
		return false, serverID, nil
	}

	found, err = s.dataEngine.AcceptInvite(id, userPubkey, s.processPubkey, c.QueryParam("username"), c.QueryParam("bio"), nil, nowMs())
	if err != nil || !found {
		return found, serverID, err
	}
	rec, _, err := s.dataEngine.CheckInvite(id)
	if err != nil {
		return true, serverID, nil
	}
	return true, rec.ServerID, nil
}

// handleAcceptInviteRedirect is the browser-facing accept flow: on success
// it sets the bootstrap cookie flow in motion by redirecting to "/", on
// failure it reports the error as JSON (spec.md §6's GET /i).
func (s *Server) handleAcceptInviteRedirect(c echo.Context) error {
	found, _, err := s.acceptInvite(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if !found {
		return jsonError(c, http.StatusForbidden, "invite invalid, exhausted, or signature mismatch")
	}
	return c.Redirect(http.StatusFound, "/")
}

// handleJoinServer is the API-client counterpart of /i: identical
// acceptance semantics, JSON response instead of a redirect.
func (s *Server) handleJoinServer(c echo.Context) error {
	found, serverID, err := s.acceptInvite(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if !found {
		return jsonError(c, http.StatusForbidden, "invite invalid, exhausted, or signature mismatch")
	}
	return c.JSON(http.StatusOK, serverStateResponse{ServerID: encodeB64(serverID[:]), ServerPubkey: encodeB64(s.processPubkey[:])})
}
