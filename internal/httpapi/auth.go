package httpapi

import (
	"math"
	"net/http"
	"time"

	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/cryptoid"

	"github.com/labstack/echo/v4"
)

// cookieExpiry is the far-future expiry spec.md §6 gives the bootstrap
// cookie — year 2100, chosen so a bootstrapped browser tab never needs to
// repeat the single-use /auth exchange.
var cookieExpiry = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// handleAuth consumes the single-use bootstrap token printed to the
// operator at startup (dataengine.MintBootstrapToken), sets a long-lived
// cookie carrying the process owner's token, and redirects to "/".
func (s *Server) handleAuth(c echo.Context) error {
	id, err := parseID16Decimal(c.QueryParam("token"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid token")
	}
	ok, err := s.dataEngine.ConsumeBootstrapToken(id)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "token already used or unknown")
	}

	token, err := s.dataEngine.MintProcessToken(s.processPubkey, math.MaxUint64, nowMs())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	cookie := new(http.Cookie)
	cookie.Name = "concord_token"
	cookie.Value = id16ToDecimal(token)
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.Expires = cookieExpiry
	c.SetCookie(cookie)
	return c.Redirect(http.StatusFound, "/")
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

// handleGetChallenge mints a fresh 8-byte challenge for user_pubkey,
// returned url(b64)-encoded per spec.md §6.
func (s *Server) handleGetChallenge(c echo.Context) error {
	userPubkey, err := parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid user_pubkey")
	}
	challenge, err := s.dataEngine.CreateAuthChallenge(userPubkey)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, challengeResponse{Challenge: encodeB64(challenge[:])})
}

type tokenResponse struct {
	Token string `json:"token"`
}

// handleChallengeAuth verifies the signed challenge and, on success, mints
// a bare identity token for userPubkey — the HTTP counterpart of the
// signature path in authengine.HandleAuth. It grants no flags of its own;
// whatever the token can do afterward depends entirely on userPubkey's
// existing membership records, checked independently by IsAuthorized.
func (s *Server) handleChallengeAuth(c echo.Context) error {
	userPubkey, err := parsePubkey(c.QueryParam("user_pubkey"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid user_pubkey")
	}
	challenge, err := parseChallenge(c.QueryParam("challenge"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid challenge")
	}
	signature, err := parseSignature(c.QueryParam("signature"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid signature")
	}

	if !cryptoid.Verify(userPubkey, challenge[:], signature) {
		return c.JSON(http.StatusOK, errorResponse{Error: "not authorized"})
	}

	token, ok, err := s.dataEngine.ValidateChallenge(userPubkey, s.processPubkey, challenge, constants.TokenExpirationMs, 0, nowMs())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return c.JSON(http.StatusOK, errorResponse{Error: "not authorized"})
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: id16ToDecimal(token)})
}
