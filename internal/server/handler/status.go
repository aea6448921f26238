package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/engine"
)

// StatusHandler summarises the running process for dashboards.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	strategy  StrategyControl
	detector  DetectorControl
	contract  ContractControl
	config    any
}

// NewStatusHandler creates a StatusHandler. Any component may be nil;
// config should already be redacted.
func NewStatusHandler(mode string, startedAt time.Time, strategy StrategyControl, detector DetectorControl, contract ContractControl, config any) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		strategy:  strategy,
		detector:  detector,
		contract:  contract,
		config:    config,
	}
}

type statusResponse struct {
	Mode          string         `json:"mode"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	Strategy      *engine.Health `json:"strategy,omitempty"`
	BufferedPairs *int           `json:"bufferedPairs,omitempty"`
	Contract      string         `json:"contractAddress,omitempty"`
	Config        any            `json:"config,omitempty"`
}

// GetStatus reports mode, uptime and per-component health.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Config:        h.config,
	}
	if h.strategy != nil {
		health := h.strategy.Health()
		resp.Strategy = &health
	}
	if h.detector != nil {
		n := len(h.detector.BufferStatus())
		resp.BufferedPairs = &n
	}
	if h.contract != nil {
		resp.Contract = h.contract.ContractAddress()
	}
	writeJSON(w, http.StatusOK, resp)
}
