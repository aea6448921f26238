package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/orbitflash/internal/server/handler"
)

func testServer() *Server {
	h := Handlers{
		Health:    handler.NewHealthHandler(nil),
		Status:    handler.NewStatusHandler("detector", time.Now(), nil, nil, nil, nil),
		Queue:     handler.NewQueueHandler(nil),
		Config:    handler.NewConfigHandler(nil, nil, nil, nil),
		Blacklist: handler.NewBlacklistHandler(nil),
		Gas:       handler.NewGasHandler(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Audit:     handler.NewAuditHandler(nil, nil),
		Buffer:    handler.NewBufferHandler(nil),
		Metrics:   promhttp.Handler(),
	}
	return NewServer(Config{Port: 0, APIKey: "k"}, h, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRoutesAndAuth(t *testing.T) {
	srv := testServer().httpServer.Handler

	cases := []struct {
		method, path, key string
		want              int
	}{
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/status", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/status", "k", http.StatusOK},
		{http.MethodGet, "/api/queue/stats", "k", http.StatusServiceUnavailable},
		{http.MethodDelete, "/api/queue", "k", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/config/detector", "k", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/blacklist/tokens/0xabc", "k", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/dispatch/contract", "k", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/buffer", "k", http.StatusServiceUnavailable},
		{http.MethodPatch, "/api/queue", "k", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nothing", "k", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.key != "" {
			req.Header.Set("X-API-Key", tc.key)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestPreflightSkipsAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/queue", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	testServer().httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
