package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthPlainKey(t *testing.T) {
	h := Auth(AuthConfig{Key: "s3cret", Public: []string{"/api/health"}})(ok())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
}

func TestAuthBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	h := Auth(AuthConfig{Key: "ignored", Hash: string(hash)})(ok())

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.Header.Set("X-API-Key", "s3cret")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	req.Header.Set("X-API-Key", "ignored")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
}

func TestAuthDisabled(t *testing.T) {
	h := Auth(AuthConfig{})(ok())
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodDelete, "/api/queue", nil)).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://dash.example"})(ok())

	req := httptest.NewRequest(http.MethodOptions, "/api/queue", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type countingLimiter struct {
	calls map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.calls[key]++
	return l.calls[key] <= limit, nil
}

func (l *countingLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lim := &countingLimiter{calls: map[string]int{}}
	h := RateLimit(lim, 2, time.Minute, logger)(ok())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.0.1")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
	rec := serve(h, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 3, lim.calls["api:10.0.0.1"])

	other := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	other.RemoteAddr = "172.16.0.9:5555"
	assert.Equal(t, http.StatusOK, serve(h, other).Code)
	assert.Equal(t, 1, lim.calls["api:172.16.0.9"])

	failing := RateLimit(&countingLimiter{err: errors.New("redis down")}, 1, time.Second, logger)(ok())
	assert.Equal(t, http.StatusOK, serve(failing, req).Code)
}

func TestLoggingCapturesStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	assert.Equal(t, http.StatusTeapot, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}
