package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/37miners/concord/internal/constants"

	"github.com/labstack/echo/v4"
)

// profileScope reads the (server_pubkey, server_id) pair every profile
// endpoint operates within. server_pubkey defaults to this process's own
// identity, since most profiles read or written over HTTP belong to
// locally hosted servers.
func (s *Server) profileScope(c echo.Context) (serverPubkey [32]byte, serverID [8]byte, err error) {
	serverPubkey = s.processPubkey
	if raw := c.QueryParam("server_pubkey"); raw != "" {
		if serverPubkey, err = parsePubkey(raw); err != nil {
			return serverPubkey, serverID, err
		}
	}
	if raw := c.QueryParam("server_id"); raw != "" {
		if serverID, err = parseServerID(raw); err != nil {
			return serverPubkey, serverID, err
		}
	}
	return serverPubkey, serverID, nil
}

// requireMember proves user_pubkey+token carry MemberFlag in the requested
// scope — the bar for writing one's own profile there.
func (s *Server) requireMember(c echo.Context, userPubkey [32]byte, serverPubkey [32]byte, serverID [8]byte) (bool, error) {
	token, err := parseID16Decimal(c.QueryParam("token"))
	if err != nil {
		return false, err
	}
	return s.dataEngine.IsAuthorized(userPubkey, serverPubkey, token, serverID, constants.MemberFlag, nowMs())
}

// handleSetProfileImage accepts a multipart avatar upload for the caller's
// own profile (spec.md §6's only endpoint with a specified parameter
// shape beyond the auth/invite group).
func (s *Server) handleSetProfileImage(c echo.Context) error {
	userPubkey, err := parsePubkey(c.FormValue("user_pubkey"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid user_pubkey")
	}
	serverPubkey := s.processPubkey
	if raw := c.FormValue("server_pubkey"); raw != "" {
		if serverPubkey, err = parsePubkey(raw); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid server_pubkey")
		}
	}
	var serverID [8]byte
	if raw := c.FormValue("server_id"); raw != "" {
		if serverID, err = parseServerID(raw); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid server_id")
		}
	}

	token, err := parseID16Decimal(c.FormValue("token"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid token")
	}
	authorized, err := s.dataEngine.IsAuthorized(userPubkey, serverPubkey, token, serverID, constants.MemberFlag, nowMs())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	if !authorized {
		return jsonError(c, http.StatusForbidden, "not authorized")
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, `multipart file field "image" is required`)
	}
	src, err := fileHeader.Open()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "open uploaded file")
	}
	defer src.Close()
	image, err := io.ReadAll(src)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "read uploaded file")
	}

	if err := s.dataEngine.SetProfileImage(userPubkey, serverPubkey, serverID, image); err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// handleSetProfileData updates username/bio for the caller's own profile.
func (s *Server) handleSetProfileData(c echo.Context) error {
	userPubkey, err := parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid user_pubkey")
	}
	serverPubkey, serverID, err := s.profileScope(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	authorized, err := s.requireMember(c, userPubkey, serverPubkey, serverID)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if !authorized {
		return jsonError(c, http.StatusForbidden, "not authorized")
	}

	if err := s.dataEngine.SetProfileData(userPubkey, serverPubkey, serverID, c.QueryParam("username"), c.QueryParam("bio")); err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// handleGetProfileImage returns the raw avatar bytes, or 404 if unset.
// Public — avatars carry no secrets.
func (s *Server) handleGetProfileImage(c echo.Context) error {
	userPubkey, err := parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid user_pubkey")
	}
	serverPubkey, serverID, err := s.profileScope(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	rec, found, err := s.dataEngine.GetProfile(userPubkey, serverPubkey, serverID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	if !found || len(rec.Avatar) == 0 {
		return jsonError(c, http.StatusNotFound, "no profile image set")
	}
	return c.Blob(http.StatusOK, "application/octet-stream", rec.Avatar)
}

// handleGetServerIcon returns the raw icon bytes for a server hosted by
// this process, resolved through DataEngine (which in turn prefers the
// filesystem icon store when concordd has configured one). Public, like
// profile avatars.
func (s *Server) handleGetServerIcon(c echo.Context) error {
	serverID, err := parseServerID(c.QueryParam("server_id"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid server_id")
	}
	serverPubkey := s.processPubkey
	if raw := c.QueryParam("server_pubkey"); raw != "" {
		if serverPubkey, err = parsePubkey(raw); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid server_pubkey")
		}
	}
	icon, found, err := s.dataEngine.GetServerIcon(serverPubkey, serverID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	if !found {
		return jsonError(c, http.StatusNotFound, "no icon set")
	}
	return c.Blob(http.StatusOK, "application/octet-stream", icon)
}

type profileImagesResponse struct {
	Images []string `json:"images"`
}

// handleGetProfileImages batch-resolves avatars for a comma-separated list
// of url(b64) user_pubkeys, returning each as url(b64) or "" when unset.
func (s *Server) handleGetProfileImages(c echo.Context) error {
	serverPubkey, serverID, err := s.profileScope(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	raw := c.QueryParam("user_pubkeys")
	if raw == "" {
		return jsonError(c, http.StatusBadRequest, "user_pubkeys is required")
	}
	parts := strings.Split(raw, ",")
	pubkeys := make([][32]byte, len(parts))
	for i, p := range parts {
		if pubkeys[i], err = parsePubkey(p); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid user_pubkey in list")
		}
	}
	images, err := s.dataEngine.GetProfileImages(pubkeys, serverPubkey, serverID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = encodeB64(img)
	}
	return c.JSON(http.StatusOK, profileImagesResponse{Images: out})
}

type profileDataResponse struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

// handleGetProfileData returns (username, bio) for one user. Public.
func (s *Server) handleGetProfileData(c echo.Context) error {
	userPubkey, err := parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid user_pubkey")
	}
	serverPubkey, serverID, err := s.profileScope(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	username, bio, err := s.dataEngine.GetProfileData(userPubkey, serverPubkey, serverID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, profileDataResponse{Username: username, Bio: bio})
}

type miniProfileResponse struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	HasAvatar bool   `json:"has_avatar"`
}

// handleGetMiniProfile combines username/bio with whether an avatar exists,
// avoiding a second round trip for the common "show a tooltip" case.
func (s *Server) handleGetMiniProfile(c echo.Context) error {
	userPubkey, err := parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid user_pubkey")
	}
	serverPubkey, serverID, err := s.profileScope(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	rec, found, err := s.dataEngine.GetProfile(userPubkey, serverPubkey, serverID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	if !found {
		return c.JSON(http.StatusOK, miniProfileResponse{})
	}
	return c.JSON(http.StatusOK, miniProfileResponse{Username: rec.Username, Bio: rec.Bio, HasAvatar: len(rec.Avatar) > 0})
}
