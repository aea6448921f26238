package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/cache/memory"
	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/engine"
	"github.com/alanyoungcy/orbitflash/internal/gas"
	"github.com/alanyoungcy/orbitflash/internal/queue"
	"github.com/alanyoungcy/orbitflash/internal/risk"
	"github.com/alanyoungcy/orbitflash/internal/scoring"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStrategy(t *testing.T) *engine.StrategyEngine {
	t.Helper()
	cat := catalog.Default()
	return engine.NewStrategyEngine(engine.StrategyConfig{}, engine.StrategyDeps{
		Bus:    memory.NewBus(16),
		Gate:   risk.NewGate(risk.DefaultConfig(), cat, cat, discard()),
		Scorer: scoring.NewScorer(scoring.DefaultConfig(), cat, cat, discard()),
		Queue:  queue.New(queue.DefaultConfig(), discard()),
	}, discard())
}

func do(t *testing.T, pattern string, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, rd))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type recorder struct {
	mu     sync.Mutex
	events []string
	detail []map[string]any
}

func (r *recorder) Record(event string, detail map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.detail = append(r.detail, detail)
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})
	rec := do(t, "GET /api/health", h.HealthCheck, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decode[struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}](t, rec)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Components["redis"])
	assert.Equal(t, "connection refused", body.Components["postgres"])

	ok := NewHealthHandler(nil)
	assert.Equal(t, http.StatusOK, do(t, "GET /api/health", ok.HealthCheck, http.MethodGet, "/api/health", "").Code)
}

func TestQueueEndpointsWithoutStrategy(t *testing.T) {
	h := NewQueueHandler(nil)
	rec := do(t, "GET /api/queue/stats", h.Stats, http.MethodGet, "/api/queue/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueueEndpoints(t *testing.T) {
	strategy := newStrategy(t)
	h := NewQueueHandler(strategy)

	rec := do(t, "GET /api/queue/stats", h.Stats, http.MethodGet, "/api/queue/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"size":0`)

	rec = do(t, "GET /api/queue", h.List, http.MethodGet, "/api/queue?urgency=sometime", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, "GET /api/queue", h.List, http.MethodGet, "/api/queue?urgency=high", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	rec = do(t, "GET /api/queue/{id}", h.Get, http.MethodGet, "/api/queue/arb-404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, "DELETE /api/queue", h.Clear, http.MethodDelete, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":0}`, rec.Body.String())
}

func TestScorerConfigPatch(t *testing.T) {
	strategy := newStrategy(t)
	h := NewConfigHandler(strategy, nil, nil, nil)

	rec := do(t, "PUT /api/config/scorer", h.PutScorer, http.MethodPut, "/api/config/scorer", `{"minProfitEth":0.05}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[scoring.Config](t, rec)
	assert.InDelta(t, 0.05, cfg.MinProfitEth, 1e-12)
	assert.InDelta(t, 0.5, cfg.ProfitWeight, 1e-12)
	assert.InDelta(t, 0.05, strategy.ScorerConfig().MinProfitEth, 1e-12)

	rec = do(t, "PUT /api/config/scorer", h.PutScorer, http.MethodPut, "/api/config/scorer", `{"minProfitEth":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.InDelta(t, 0.05, strategy.ScorerConfig().MinProfitEth, 1e-12)

	rec = do(t, "PUT /api/config/scorer", h.PutScorer, http.MethodPut, "/api/config/scorer", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, "GET /api/config/gas", h.GetGas, http.MethodGet, "/api/config/gas", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeGas struct {
	cfg gas.Config
}

func (f *fakeGas) Config() gas.Config { return f.cfg }

func (f *fakeGas) UpdateConfig(p gas.Patch) (gas.Config, error) {
	next := p.Apply(f.cfg)
	if err := next.Validate(); err != nil {
		return f.cfg, err
	}
	f.cfg = next
	return next, nil
}

func (f *fakeGas) CurrentNetworkFees(context.Context) domain.NetworkFees {
	return domain.NetworkFees{BaseFee: units.GweiToWei(1), GasPrice: units.GweiToWei(1), Source: domain.FeeSourceDefault}
}

func (f *fakeGas) Recommendations(context.Context) map[domain.Urgency]*big.Int {
	return map[domain.Urgency]*big.Int{
		domain.UrgencyLow:    units.GweiToWei(1),
		domain.UrgencyMedium: units.GweiToWei(2),
		domain.UrgencyHigh:   big.NewInt(2_500_000_000),
	}
}

func TestGasConfigChangeIsAudited(t *testing.T) {
	audit := &recorder{}
	h := NewConfigHandler(nil, &fakeGas{cfg: gas.DefaultConfig()}, nil, audit)

	rec := do(t, "PUT /api/config/gas", h.PutGas, http.MethodPut, "/api/config/gas", `{"maxGasPriceGwei":75}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{domain.AuditConfigChanged}, audit.events)
	assert.Equal(t, "gas", audit.detail[0]["component"])

	rec = do(t, "PUT /api/config/gas", h.PutGas, http.MethodPut, "/api/config/gas", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, audit.events, 1)
}

func TestGasRecommendations(t *testing.T) {
	h := NewGasHandler(&fakeGas{cfg: gas.DefaultConfig()}, nil, nil, discard())
	rec := do(t, "GET /api/gas/recommendations", h.Recommendations, http.MethodGet, "/api/gas/recommendations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[map[string]priceView](t, rec)
	assert.Equal(t, priceView{Wei: "2500000000", Gwei: "2.5"}, got["high"])
	assert.Equal(t, "1", got["low"].Gwei)

	rec = do(t, "GET /api/dispatch/contract", h.GetContract, http.MethodGet, "/api/dispatch/contract", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeContract struct{ addr string }

func (f *fakeContract) ContractAddress() string { return f.addr }

func (f *fakeContract) SetContractAddress(addr string) error {
	if addr == "" {
		return domain.ErrMissingContract
	}
	if !common.IsHexAddress(addr) {
		return domain.ErrInvalidConfig
	}
	f.addr = common.HexToAddress(addr).Hex()
	return nil
}

func TestSetContract(t *testing.T) {
	audit := &recorder{}
	contract := &fakeContract{}
	h := NewGasHandler(nil, contract, audit, discard())

	rec := do(t, "PUT /api/dispatch/contract", h.SetContract, http.MethodPut, "/api/dispatch/contract", `{"address":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, audit.events)

	addr := "0x00000000000000000000000000000000000000c0"
	rec = do(t, "PUT /api/dispatch/contract", h.SetContract, http.MethodPut, "/api/dispatch/contract", `{"address":"`+addr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.HexToAddress(addr).Hex(), contract.addr)
	assert.Equal(t, []string{domain.AuditConfigChanged}, audit.events)
}

func TestBlacklist(t *testing.T) {
	strategy := newStrategy(t)
	h := NewBlacklistHandler(strategy)

	rec := do(t, "POST /api/blacklist/tokens/{token}", h.BlockToken, http.MethodPost, "/api/blacklist/tokens/0xABC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, "POST /api/blacklist/venues/{venue}", h.BlockVenue, http.MethodPost, "/api/blacklist/venues/Curve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tokens":["0xabc"],"venues":["curve"]}`, rec.Body.String())

	rec = do(t, "DELETE /api/blacklist/tokens/{token}", h.UnblockToken, http.MethodDelete, "/api/blacklist/tokens/0xabc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tokens":[],"venues":["curve"]}`, rec.Body.String())
}

type fakeAuditStore struct {
	opts domain.ListOpts
}

func (f *fakeAuditStore) Log(context.Context, string, map[string]any) error { return nil }

func (f *fakeAuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	f.opts = opts
	return []domain.AuditEntry{{ID: 7, Event: domain.AuditConfigChanged}}, nil
}

func (f *fakeAuditStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func TestAuditList(t *testing.T) {
	store := &fakeAuditStore{}
	h := NewAuditHandler(store, nil)

	rec := do(t, "GET /api/audit", h.List, http.MethodGet,
		"/api/audit?event=config_changed&limit=1000&offset=10&since=2026-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, store.opts.Limit)
	assert.Equal(t, 10, store.opts.Offset)
	assert.Equal(t, "config_changed", store.opts.Event)
	require.NotNil(t, store.opts.Since)
	assert.Nil(t, store.opts.Until)
	assert.Contains(t, rec.Body.String(), `"id":7`)

	rec = do(t, "GET /api/audit", h.List, http.MethodGet, "/api/audit?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, "GET /api/executions", h.Executions, http.MethodGet, "/api/executions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	strategy := newStrategy(t)
	h := NewStatusHandler("strategy", time.Now().Add(-time.Minute), strategy, nil, nil, map[string]string{"mode": "strategy"})

	rec := do(t, "GET /api/status", h.GetStatus, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "strategy", body["mode"])
	assert.GreaterOrEqual(t, body["uptimeSeconds"], float64(59))
	assert.Contains(t, body, "strategy")
	assert.NotContains(t, body, "bufferedPairs")
	assert.NotContains(t, body, "contractAddress")
}

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("gas: %w: bounds", domain.ErrInvalidConfig), http.StatusBadRequest},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrFeeDataUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}
