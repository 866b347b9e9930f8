package endpoint

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/albumauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type testServer struct {
	router *gin.Engine
	mr     *miniredis.Miniredis
}

func setupTestServer(t *testing.T, mutate func(*albumauth.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := albumauth.DefaultConfig()
	cfg.Access.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Access.TTL = time.Minute
	cfg.Refresh.TTL = time.Hour
	cfg.Refresh.FamilyTTL = 2 * time.Hour
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := albumauth.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build authority: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		_ = rdb.Close()
		mr.Close()
	})

	h := NewHandler(a, Options{RetryAfter: 2 * time.Second})
	r := gin.New()
	h.RegisterPublic(r)
	h.RegisterInternal(r)
	return &testServer{router: r, mr: mr}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeTokens(t *testing.T, rec *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	var out tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out.Error
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	return nil
}

func (s *testServer) issue(t *testing.T, memberID string) tokenResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/session", gin.H{"member_id": memberID, "username": "alice"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeTokens(t, rec)
}

func TestIssueSetsCookieAndBody(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/auth/session", gin.H{"member_id": "m-1", "username": "alice"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	tok := decodeTokens(t, rec)
	if tok.AccessToken == "" || tok.RefreshToken == "" || tok.FamilyID == "" || tok.TokenType != "Bearer" {
		t.Fatalf("incomplete response: %+v", tok)
	}
	if tok.ExpiresIn <= 0 || tok.ExpiresIn > 60 {
		t.Fatalf("expires_in = %d", tok.ExpiresIn)
	}

	c := refreshCookie(rec)
	if c == nil || c.Value != tok.RefreshToken || !c.HttpOnly {
		t.Fatalf("refresh cookie not set properly: %+v", c)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("missing X-Request-ID")
	}
}

func TestIssueBadInput(t *testing.T) {
	s := setupTestServer(t, nil)

	if rec := s.do(t, http.MethodPost, "/auth/session", gin.H{"username": "alice"}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing member_id: status %d", rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/auth/session", gin.H{"member_id": "   "}, nil)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_member" {
		t.Fatalf("blank member_id: status %d body %s", rec.Code, rec.Body.String())
	}
}

// issue, rotate r1, replay r1, then r2 is rejected as compromised.
func TestRefreshReuseScenario(t *testing.T) {
	s := setupTestServer(t, nil)
	first := s.issue(t, "m-1")

	rec := s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": first.RefreshToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate r1: status %d body %s", rec.Code, rec.Body.String())
	}
	second := decodeTokens(t, rec)
	if second.RefreshToken == first.RefreshToken || second.FamilyID != first.FamilyID {
		t.Fatalf("bad rotation: %+v", second)
	}

	rec = s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": first.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "refresh_token_reused" {
		t.Fatalf("replay r1: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": second.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "family_compromised" {
		t.Fatalf("rotate r2: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshFromCookie(t *testing.T) {
	s := setupTestServer(t, nil)
	issued := s.do(t, http.MethodPost, "/auth/session", gin.H{"member_id": "m-1"}, nil)
	cookie := refreshCookie(issued)
	if cookie == nil {
		t.Fatal("no refresh cookie")
	}

	rec := s.do(t, http.MethodPost, "/auth/refresh", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	next := refreshCookie(rec)
	if next == nil || next.Value == cookie.Value {
		t.Fatal("rotation must replace the cookie")
	}
}

func TestRefreshErrors(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/auth/refresh", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no credential: status %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": "nonsense"}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "invalid_refresh_token" {
		t.Fatalf("unknown id: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshAfterExpiry(t *testing.T) {
	s := setupTestServer(t, nil)
	tok := s.issue(t, "m-1")

	s.mr.FastForward(time.Hour + time.Second)

	rec := s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": tok.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "invalid_refresh_token" {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshRateLimited(t *testing.T) {
	s := setupTestServer(t, func(c *albumauth.Config) {
		c.RateLimit.EnableRefreshThrottle = true
		c.RateLimit.MaxRefreshAttempts = 1
	})
	tok := s.issue(t, "m-1")

	if rec := s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": tok.RefreshToken}, nil); rec.Code != http.StatusOK {
		t.Fatalf("first rotate: status %d", rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": tok.RefreshToken}, nil)
	if rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != "rate_limited" {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestStoreUnavailableIs503(t *testing.T) {
	s := setupTestServer(t, nil)
	tok := s.issue(t, "m-1")
	s.mr.Close()

	rec := s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": tok.RefreshToken}, nil)
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "store_unavailable" {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q", got)
	}
}

func TestLogout(t *testing.T) {
	s := setupTestServer(t, nil)
	tok := s.issue(t, "m-1")

	rec := s.do(t, http.MethodPost, "/auth/logout", gin.H{"refresh_token": tok.RefreshToken}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d body %s", rec.Code, rec.Body.String())
	}
	if c := refreshCookie(rec); c == nil || c.MaxAge >= 0 {
		t.Fatalf("logout must expire the cookie: %+v", c)
	}

	rec = s.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": tok.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "family_compromised" {
		t.Fatalf("refresh after logout: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRevokeMemberAndFamilies(t *testing.T) {
	s := setupTestServer(t, nil)
	s.issue(t, "m-1")
	s.issue(t, "m-1")

	rec := s.do(t, http.MethodGet, "/auth/members/m-1/families", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("families: status %d", rec.Code)
	}
	var listed struct {
		Families []familyResponse `json:"families"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Families) != 2 || listed.Families[0].Status != "active" {
		t.Fatalf("families = %+v", listed.Families)
	}

	rec = s.do(t, http.MethodPost, "/auth/members/m-1/revoke", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: status %d body %s", rec.Code, rec.Body.String())
	}
	var revoked struct {
		Revoked int `json:"revoked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &revoked); err != nil || revoked.Revoked != 2 {
		t.Fatalf("revoked = %+v err=%v", revoked, err)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	s := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(`{"refresh_token":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}
