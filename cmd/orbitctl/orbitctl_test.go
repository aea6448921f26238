package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/queue", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.RequestURI())
		_, _ = w.Write([]byte(`{"entries":[{"opportunity":{"id":"arb-1","urgency":"high","expectedProfit":100000000000000000,
			"venues":["uniswap-v3","sushiswap"]},"score":{"totalScore":0.8123,"priority":9},"retryCount":1}],"count":1}`))
	})
	mux.HandleFunc("POST /api/blacklist/tokens/{token}", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path+" "+r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"tokens":["` + r.PathValue("token") + `"],"venues":[]}`))
	})
	mux.HandleFunc("PUT /api/dispatch/contract", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid configuration"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestQueueCommand(t *testing.T) {
	srv, calls := fakeAPI(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), newClient(srv.URL+"/", ""), &out, "queue", []string{"high"}))

	assert.Equal(t, []string{"GET /api/queue?urgency=high"}, *calls)
	s := out.String()
	assert.Contains(t, s, "arb-1")
	assert.Contains(t, s, "0.1")
	assert.Contains(t, s, "uniswap-v3>sushiswap")
	assert.Contains(t, s, "0.812")
}

func TestBlockTokenSendsKey(t *testing.T) {
	srv, calls := fakeAPI(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), newClient(srv.URL, "secret"), &out, "block-token", []string{"0xabc"}))

	assert.Equal(t, []string{"POST /api/blacklist/tokens/0xabc secret"}, *calls)
	assert.Contains(t, out.String(), "0xabc")
}

func TestErrorsSurfaceServerMessage(t *testing.T) {
	srv, _ := fakeAPI(t)
	err := run(context.Background(), newClient(srv.URL, ""), &bytes.Buffer{}, "contract", []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration (400)")

	err = run(context.Background(), newClient(srv.URL, ""), &bytes.Buffer{}, "unblock-venue", nil)
	require.Error(t, err)

	err = run(context.Background(), newClient(srv.URL, ""), &bytes.Buffer{}, "launch", nil)
	require.EqualError(t, err, `unknown command "launch"`)
}

func TestSummarize(t *testing.T) {
	got := summarize(map[string]any{"reason": "low profit", "check": "profit", "config": map[string]any{"a": 1}})
	assert.Equal(t, `check=profit config={"a":1} reason=low profit`, got)
	assert.Len(t, summarize(map[string]any{"k": string(bytes.Repeat([]byte("x"), 200))}), 80)
}
