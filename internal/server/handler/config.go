package handler

import (
	"net/http"

	"github.com/alanyoungcy/orbitflash/internal/detector"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/gas"
	"github.com/alanyoungcy/orbitflash/internal/risk"
	"github.com/alanyoungcy/orbitflash/internal/scoring"
)

// ConfigHandler reads and patches component configuration at runtime.
type ConfigHandler struct {
	strategy StrategyControl
	gas      GasControl
	detector DetectorControl
	audit    ConfigRecorder
}

// NewConfigHandler creates a ConfigHandler. Components may be nil.
func NewConfigHandler(strategy StrategyControl, gasCtl GasControl, det DetectorControl, audit ConfigRecorder) *ConfigHandler {
	return &ConfigHandler{strategy: strategy, gas: gasCtl, detector: det, audit: audit}
}

// patchConfig decodes a patch, applies it and writes the result.
func patchConfig[P, C any](w http.ResponseWriter, r *http.Request, update func(P) (C, error)) (C, bool) {
	var (
		patch P
		zero  C
	)
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return zero, false
	}
	cfg, err := update(patch)
	if err != nil {
		writeDomainError(w, err)
		return zero, false
	}
	writeJSON(w, http.StatusOK, cfg)
	return cfg, true
}

// GetScorer GET /api/config/scorer
func (h *ConfigHandler) GetScorer(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	writeJSON(w, http.StatusOK, h.strategy.ScorerConfig())
}

// PutScorer PUT /api/config/scorer
func (h *ConfigHandler) PutScorer(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	patchConfig[scoring.Patch](w, r, h.strategy.UpdateScorerConfig)
}

// GetRisk GET /api/config/risk
func (h *ConfigHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	writeJSON(w, http.StatusOK, h.strategy.RiskConfig())
}

// PutRisk PUT /api/config/risk
func (h *ConfigHandler) PutRisk(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	patchConfig[risk.Patch](w, r, h.strategy.UpdateRiskConfig)
}

// GetGas GET /api/config/gas
func (h *ConfigHandler) GetGas(w http.ResponseWriter, r *http.Request) {
	if h.gas == nil {
		unavailable(w, "gas optimizer")
		return
	}
	writeJSON(w, http.StatusOK, h.gas.Config())
}

// PutGas PUT /api/config/gas
func (h *ConfigHandler) PutGas(w http.ResponseWriter, r *http.Request) {
	if h.gas == nil {
		unavailable(w, "gas optimizer")
		return
	}
	if cfg, ok := patchConfig[gas.Patch](w, r, h.gas.UpdateConfig); ok {
		h.recordChange("gas", cfg)
	}
}

// GetDetector GET /api/config/detector
func (h *ConfigHandler) GetDetector(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		unavailable(w, "detector")
		return
	}
	writeJSON(w, http.StatusOK, h.detector.Calculator().Config())
}

// PutDetector PUT /api/config/detector
func (h *ConfigHandler) PutDetector(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		unavailable(w, "detector")
		return
	}
	if cfg, ok := patchConfig[detector.Patch](w, r, h.detector.Calculator().UpdateConfig); ok {
		h.recordChange("detector", cfg)
	}
}

func (h *ConfigHandler) recordChange(component string, cfg any) {
	if h.audit == nil {
		return
	}
	h.audit.Record(domain.AuditConfigChanged, map[string]any{"component": component, "config": cfg})
}
