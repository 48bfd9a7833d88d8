//go:build !integration

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activation-platform/internal/config"
	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/adapter"
	"activation-platform/internal/infra/api/apiv1"
	"activation-platform/internal/infra/ratelimit"
	"activation-platform/internal/usecase"
)

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// stubUC answers only Stats and VerifyAndConsume; the router tests do not need the rest.
type stubUC struct {
	usecase.ActivationCodeUseCase
}

func (stubUC) VerifyAndConsume(context.Context, string) (*usecase.Redemption, error) {
	return nil, domain.ErrNotFound
}

func (stubUC) Stats(context.Context) (model.CodeStats, error) {
	return model.NewCodeStats(model.CodeCounts{Total: 1, Active: 1}), nil
}

type stubLimiter struct {
	decision adapter.RateDecision
	err      error
	calls    int
}

func (s *stubLimiter) Name() string { return "stub" }

func (s *stubLimiter) Allow(context.Context, string) (adapter.RateDecision, error) {
	s.calls++
	return s.decision, s.err
}

func newTestRouter(t *testing.T, gate *AdminGate, lim adapter.RateLimiter, health HealthFunc) http.Handler {
	t.Helper()
	h := apiv1.NewHandler(stubUC{}, apiv1.Options{}, nopLogger())
	return NewRouter(RouterDeps{
		Codes:   h,
		Gate:    gate,
		Limiter: lim,
		Health:  health,
		CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}},
		Timeout: time.Second,
		Logger:  nopLogger(),
	})
}

func TestAdminGate_APIKey(t *testing.T) {
	r := newTestRouter(t, NewAdminGate("s3cret", nil, nopLogger()), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activation-codes/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/activation-codes/stats", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/activation-codes/stats", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAdminGate_TokenFlow(t *testing.T) {
	auth := NewAuthManager("jwt-secret", time.Minute)
	r := newTestRouter(t, NewAdminGate("s3cret", auth, nopLogger()), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "token endpoint requires the api key")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body.Data.Token)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/activation-codes/stats", nil)
	req.Header.Set("Authorization", "Bearer "+body.Data.Token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/activation-codes/stats", nil)
	req.Header.Set("Authorization", "Bearer "+body.Data.Token+"x")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthManager_RejectsExpiredAndForeign(t *testing.T) {
	auth := NewAuthManager("secret-a", time.Minute)
	tok, exp, err := auth.Mint("tester")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	_, err = auth.parse(tok)
	require.NoError(t, err)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = auth.parse(tok)
	assert.Error(t, err, "expired token must be rejected")

	other := NewAuthManager("secret-b", time.Minute)
	_, err = other.parse(tok)
	assert.Error(t, err, "token signed with another secret must be rejected")
}

func TestAdminGate_OpenWhenUnconfigured(t *testing.T) {
	r := newTestRouter(t, NewAdminGate("", nil, nopLogger()), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/activation-codes/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_Rejects(t *testing.T) {
	lim := &stubLimiter{decision: adapter.RateDecision{
		Allowed:    false,
		Limit:      10,
		RetryAfter: 1500 * time.Millisecond,
		ResetAt:    time.Unix(1_700_000_000, 0),
	}}
	r := newTestRouter(t, NewAdminGate("k", nil, nopLogger()), lim, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activation-codes/verify", strings.NewReader(`{"code":"X"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1700000000", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, 1, lim.calls)
}

func TestRateLimit_OnlyOnVerify(t *testing.T) {
	lim := &stubLimiter{decision: adapter.RateDecision{Allowed: false, Limit: 1}}
	r := newTestRouter(t, NewAdminGate("k", nil, nopLogger()), lim, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activation-codes/stats", nil)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, lim.calls)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	lim := &stubLimiter{err: errors.New("redis down")}
	mw := RateLimit(lim, nopLogger())
	called := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	assert.True(t, called)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, NewAdminGate("k", nil, nopLogger()), nil, func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	r = newTestRouter(t, NewAdminGate("k", nil, nopLogger()), nil, func(context.Context) error { return errors.New("db gone") })
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), Recover(nopLogger()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTraceID_ReusesRequestHeader(t *testing.T) {
	var seen string
	h := TraceID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(t, NewAdminGate("k", nil, nopLogger()), nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newLimitedRouter(t *testing.T, requests int, trusted ...string) http.Handler {
	t.Helper()
	lim := ratelimit.NewMemoryLimiter(requests, time.Minute, requests)
	t.Cleanup(lim.Stop)

	prefixes, err := config.HTTPConfig{TrustedProxies: trusted}.TrustedProxyPrefixes()
	require.NoError(t, err)
	return NewRouter(RouterDeps{
		Codes:          apiv1.NewHandler(stubUC{}, apiv1.Options{}, nopLogger()),
		Gate:           NewAdminGate("k", nil, nopLogger()),
		Limiter:        lim,
		CORS:           config.CORSConfig{AllowedOrigins: []string{"*"}},
		Timeout:        time.Second,
		Logger:         nopLogger(),
		TrustedProxies: prefixes,
	})
}

func verifyFrom(r http.Handler, peer, xff string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/activation-codes/verify", strings.NewReader(`{}`))
	req.RemoteAddr = peer
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit_IgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	r := newLimitedRouter(t, 1)

	assert.NotEqual(t, http.StatusTooManyRequests, verifyFrom(r, "198.51.100.7:40000", "1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, verifyFrom(r, "198.51.100.7:40001", "2.2.2.2"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activation-codes/verify", strings.NewReader(`{}`))
	req.RemoteAddr = "198.51.100.7:40002"
	req.Header.Set("X-Real-IP", "3.3.3.3")
	req.Header.Set("True-Client-IP", "4.4.4.4")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimit_TrustedProxyNamesClient(t *testing.T) {
	r := newLimitedRouter(t, 1, "10.0.0.0/8")

	assert.NotEqual(t, http.StatusTooManyRequests, verifyFrom(r, "10.0.0.2:5000", "203.0.113.5"))
	assert.NotEqual(t, http.StatusTooManyRequests, verifyFrom(r, "10.0.0.2:5000", "203.0.113.6"))
	assert.Equal(t, http.StatusTooManyRequests, verifyFrom(r, "10.0.0.2:5000", "203.0.113.5"))

	// hops prepended by the client are skipped; the proxy-appended one counts
	assert.Equal(t, http.StatusTooManyRequests, verifyFrom(r, "10.0.0.2:5000", "9.9.9.9, 203.0.113.6"))
}

func TestForwardedClient(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	cases := []struct {
		name   string
		header http.Header
		want   string
		ok     bool
	}{
		{"rightmost untrusted hop", http.Header{"X-Forwarded-For": {"1.1.1.1, 203.0.113.9, 10.0.0.5"}}, "203.0.113.9", true},
		{"all hops trusted", http.Header{"X-Forwarded-For": {"10.1.1.1, 10.0.0.5"}}, "10.1.1.1", true},
		{"real ip fallback", http.Header{"X-Real-Ip": {"203.0.113.1"}}, "203.0.113.1", true},
		{"malformed hop", http.Header{"X-Forwarded-For": {"203.0.113.1, garbage"}}, "", false},
		{"nothing forwarded", http.Header{}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ip, ok := forwardedClient(tc.header, trusted)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, ip.String())
			}
		})
	}
}
