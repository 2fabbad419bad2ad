package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/37miners/concord/internal/connmanager"
	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/conntable"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/fanout"
	"github.com/37miners/concord/internal/kvstore"
)

func newTestServer(t *testing.T) (*Server, *dataengine.Engine, [32]byte) {
	t.Helper()
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "concord.db"))
	if err != nil {
		t.Fatalf("open kvstore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine := dataengine.New(store)
	processPubkey, processSecret, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	if err := engine.BootstrapOwner(processPubkey, 0); err != nil {
		t.Fatalf("bootstrap owner: %v", err)
	}

	fo := fanout.New(processPubkey, nil)
	conns := conntable.New()
	connMgr := connmanager.New(nil, processSecret, fo, 9050)

	srv := New(engine, fo, conns, connMgr, processPubkey, processSecret, 9050)
	return srv, engine, processPubkey
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected health payload: %#v", health)
	}
}

func TestBootstrapAuthCookieFlow(t *testing.T) {
	srv, engine, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	token, err := engine.MintBootstrapToken()
	if err != nil {
		t.Fatalf("mint bootstrap token: %v", err)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(ts.URL + "/auth?token=" + id16ToDecimal(token))
	if err != nil {
		t.Fatalf("GET /auth: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if len(resp.Cookies()) == 0 {
		t.Fatal("expected a cookie to be set")
	}

	// A second use of the same token must fail — single-use.
	resp2, err := client.Get(ts.URL + "/auth?token=" + id16ToDecimal(token))
	if err != nil {
		t.Fatalf("GET /auth (replay): %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected, got %d", resp2.StatusCode)
	}
}

func TestChallengeAuthRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	userPubkey, userSecret, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	resp, err := http.Get(ts.URL + "/get_challenge?user_pubkey=" + encodeB64(userPubkey[:]))
	if err != nil {
		t.Fatalf("GET /get_challenge: %v", err)
	}
	defer resp.Body.Close()
	var cr challengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	challengeBytes, err := decodeB64(cr.Challenge, 8)
	if err != nil {
		t.Fatalf("decode challenge bytes: %v", err)
	}
	signature := cryptoid.Sign(userSecret, challengeBytes)

	url := ts.URL + "/challenge_auth?user_pubkey=" + encodeB64(userPubkey[:]) +
		"&challenge=" + cr.Challenge + "&signature=" + encodeB64(signature)
	authResp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET /challenge_auth: %v", err)
	}
	defer authResp.Body.Close()
	var tr tokenResponse
	if err := json.NewDecoder(authResp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if tr.Token == "" {
		t.Fatalf("expected a token, got %#v", tr)
	}
}

func TestCreateAndAcceptInvite(t *testing.T) {
	srv, engine, processPubkey := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	serverID, err := engine.AddServer(processPubkey, "test server", nil, nil, processPubkey, false, 0)
	if err != nil {
		t.Fatalf("add server: %v", err)
	}
	ownerToken, err := engine.MintProcessToken(processPubkey, 3_600_000, nowMs())
	if err != nil {
		t.Fatalf("mint process token: %v", err)
	}

	createURL := ts.URL + "/create_invite?user_pubkey=" + encodeB64(processPubkey[:]) +
		"&token=" + id16ToDecimal(ownerToken) + "&server_id=" + encodeB64(serverID[:]) +
		"&expiry_ms=3600000&max_uses=5"
	resp, err := http.Get(createURL)
	if err != nil {
		t.Fatalf("GET /create_invite: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var inv inviteResponse
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		t.Fatalf("decode invite: %v", err)
	}

	newUser, newSecret, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	timestamp := "1700000000000"
	signature := cryptoid.Sign(newSecret, []byte(timestamp))

	joinURL := ts.URL + "/join_server?id=" + inv.ID + "&user_pubkey=" + encodeB64(newUser[:]) +
		"&timestamp=" + timestamp + "&signature=" + encodeB64(signature) + "&username=newbie"
	joinResp, err := http.Get(joinURL)
	if err != nil {
		t.Fatalf("GET /join_server: %v", err)
	}
	defer joinResp.Body.Close()
	if joinResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", joinResp.StatusCode)
	}
	var state serverStateResponse
	if err := json.NewDecoder(joinResp.Body).Decode(&state); err != nil {
		t.Fatalf("decode server state: %v", err)
	}
	if state.ServerID != encodeB64(serverID[:]) {
		t.Fatalf("expected server_id %q, got %q", encodeB64(serverID[:]), state.ServerID)
	}

	isMember, err := engine.IsMember(processPubkey, serverID, newUser, constants.MemberFlag)
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if !isMember {
		t.Fatal("expected newly joined user to be a member")
	}
}

func TestGetProfileDataDefaultsWhenUnset(t *testing.T) {
	srv, _, processPubkey := newTestServer(t)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	userPubkey, _, err := cryptoid.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	resp, err := http.Get(ts.URL + "/get_profile_data?user_pubkey=" + encodeB64(userPubkey[:]))
	if err != nil {
		t.Fatalf("GET /get_profile_data: %v", err)
	}
	defer resp.Body.Close()
	var pd profileDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&pd); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pd.Username != "" || pd.Bio != "" {
		t.Fatalf("expected empty profile, got %#v", pd)
	}
	_ = processPubkey
}
