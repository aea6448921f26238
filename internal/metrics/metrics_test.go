package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
		return total
	}
	return 0
}

func TestRecorders(t *testing.T) {
	m := New()
	m.ObservationReceived("uniswap-v3")
	m.ObservationReceived("sushiswap")
	m.OpportunityRejected("slippage")
	m.OpportunityScheduled(4)
	m.DispatchResult("strategy", "published", time.Now())
	m.FeeSourceUsed("default")

	assert.Equal(t, 2.0, counterValue(t, m, "orbitflash_price_observations_total"))
	assert.Equal(t, 1.0, counterValue(t, m, "orbitflash_opportunities_rejected_total"))
	assert.Equal(t, 4.0, counterValue(t, m, "orbitflash_queue_depth"))
	assert.Equal(t, 1.0, counterValue(t, m, "orbitflash_dispatch_total"))
	assert.Equal(t, 1.0, counterValue(t, m, "orbitflash_fee_source_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservationReceived("x")
		m.OpportunityDetected("low")
		m.OpportunityScheduled(1)
		m.DispatchResult("gas", "ok", time.Now())
		m.BusError("price-update", "decode")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.OpportunityDetected("high")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `orbitflash_opportunities_detected_total{urgency="high"} 1`)
}
