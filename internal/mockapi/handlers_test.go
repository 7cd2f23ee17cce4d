package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-dashboard/internal/auth"
	"club-dashboard/internal/config"
	"club-dashboard/internal/session"
)

type harness struct {
	srv    *Server
	router *gin.Engine
	now    time.Time
}

func newHarness(t *testing.T, rotate bool) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	h := &harness{now: time.Unix(1700000000, 0).UTC()}
	h.srv = &Server{
		Dir:           NewDirectory(DefaultSeed()),
		Tokens:        tokens,
		RotateRefresh: rotate,
		Clock:         func() time.Time { return h.now },
	}
	h.router = gin.New()
	h.srv.Register(h.router)
	return h
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type tokenBody struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user"`
}

func (h *harness) login(t *testing.T, phone, password string) tokenBody {
	t.Helper()
	w := h.do(http.MethodPost, "/auth/login", `{"phone":"`+phone+`","password":"`+password+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out tokenBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func bearer(tok string, workspace string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + tok}
	if workspace != "" {
		h["x-workspace-id"] = workspace
	}
	return h
}

func TestLogin(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(http.MethodPost, "/auth/login", `{"phone":"+15550001","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	out := h.login(t, "+15550001", "owner-pass")
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)
	assert.Contains(t, string(out.User), `"workspaces":[{"id":"w1","name":"Riverside Poker Club","role":"owner"}]`)
}

func TestOTPFlow(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(http.MethodPost, "/auth/otp/verify", `{"phone":"+15550002","code":"123456"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "no code requested yet")

	w = h.do(http.MethodPost, "/auth/otp/request", `{"phone":"+15550002"}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = h.do(http.MethodPost, "/auth/otp/verify", `{"phone":"+15550002","code":"123456"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/auth/otp/verify", `{"phone":"+15550002","code":"123456"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "codes are single use")
}

func TestMeAndExpiry(t *testing.T) {
	h := newHarness(t, false)
	out := h.login(t, "+15550002", "member-pass")

	w := h.do(http.MethodGet, "/auth/me", "", bearer(out.AccessToken, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u-member"`)

	h.now = h.now.Add(2 * time.Minute)
	w = h.do(http.MethodGet, "/auth/me", "", bearer(out.AccessToken, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe_UnknownUser(t *testing.T) {
	h := newHarness(t, false)
	tok, err := h.srv.Tokens.IssueAccess(h.now, "u-ghost")
	require.NoError(t, err)

	w := h.do(http.MethodGet, "/auth/me", "", bearer(tok, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unknown user"}`, w.Body.String())
}

func TestMe_LookupFailureIsServerError(t *testing.T) {
	h := newHarness(t, false)
	h.srv.Identities = func(string) (session.Identity, error) {
		return session.Identity{}, errors.New("directory offline")
	}
	out := h.login(t, "+15550002", "member-pass")

	w := h.do(http.MethodGet, "/auth/me", "", bearer(out.AccessToken, ""))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"user lookup failed"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), `"id"`)
}

func TestRefreshWithoutRotation(t *testing.T) {
	h := newHarness(t, false)
	out := h.login(t, "+15550001", "owner-pass")
	h.now = h.now.Add(2 * time.Minute)

	w := h.do(http.MethodPost, "/auth/refresh", `{"refreshToken":"`+out.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var next tokenBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	assert.NotEmpty(t, next.AccessToken)
	assert.Empty(t, next.RefreshToken)

	w = h.do(http.MethodGet, "/auth/me", "", bearer(next.AccessToken, ""))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/auth/refresh", `{"refreshToken":"`+out.AccessToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens cannot refresh")
}

func TestRefreshWithRotationRevokesOldToken(t *testing.T) {
	h := newHarness(t, true)
	out := h.login(t, "+15550001", "owner-pass")

	w := h.do(http.MethodPost, "/auth/refresh", `{"refreshToken":"`+out.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var next tokenBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	assert.NotEmpty(t, next.RefreshToken)

	w = h.do(http.MethodPost, "/auth/refresh", `{"refreshToken":"`+out.RefreshToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	h := newHarness(t, false)
	out := h.login(t, "+15550001", "owner-pass")

	w := h.do(http.MethodPost, "/auth/logout", `{"refreshToken":"`+out.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodPost, "/auth/refresh", `{"refreshToken":"`+out.RefreshToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/auth/logout", `{"refreshToken":"garbage"}`, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWorkspaceScopedEndpoints(t *testing.T) {
	h := newHarness(t, false)
	member := h.login(t, "+15550002", "member-pass")

	w := h.do(http.MethodGet, "/games", "", bearer(member.AccessToken, ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/games", "", bearer(member.AccessToken, "w1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Friday Hold'em")

	w = h.do(http.MethodGet, "/transactions", "", bearer(member.AccessToken, "w1"))
	assert.Equal(t, http.StatusForbidden, w.Code, "members cannot see transactions")

	w = h.do(http.MethodGet, "/transactions", "", bearer(member.AccessToken, "w2"))
	assert.Equal(t, http.StatusOK, w.Code, "admin of w2")

	none := h.login(t, "+15550003", "none-pass")
	w = h.do(http.MethodGet, "/games", "", bearer(none.AccessToken, "w1"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
