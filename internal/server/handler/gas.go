package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

// GasHandler serves fee recommendations and the dispatch contract.
type GasHandler struct {
	gas      GasControl
	contract ContractControl
	audit    ConfigRecorder
	logger   *slog.Logger
}

// NewGasHandler creates a GasHandler. gasCtl and contract may be nil.
func NewGasHandler(gasCtl GasControl, contract ContractControl, audit ConfigRecorder, logger *slog.Logger) *GasHandler {
	return &GasHandler{gas: gasCtl, contract: contract, audit: audit, logger: logger.With(slog.String("handler", "gas"))}
}

type priceView struct {
	Wei  string `json:"wei"`
	Gwei string `json:"gwei"`
}

// Recommendations returns the gas price per urgency.
// GET /api/gas/recommendations
func (h *GasHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	if h.gas == nil {
		unavailable(w, "gas optimizer")
		return
	}
	out := make(map[domain.Urgency]priceView, 3)
	for u, price := range h.gas.Recommendations(r.Context()) {
		out[u] = priceView{Wei: price.String(), Gwei: units.FormatGwei(price)}
	}
	writeJSON(w, http.StatusOK, out)
}

// Network returns current network fees and their source.
// GET /api/gas/network
func (h *GasHandler) Network(w http.ResponseWriter, r *http.Request) {
	if h.gas == nil {
		unavailable(w, "gas optimizer")
		return
	}
	writeJSON(w, http.StatusOK, h.gas.CurrentNetworkFees(r.Context()))
}

// GetContract GET /api/dispatch/contract
func (h *GasHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	if h.contract == nil {
		unavailable(w, "dispatcher")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": h.contract.ContractAddress()})
}

// SetContract replaces the arbitrage contract address.
// PUT /api/dispatch/contract
func (h *GasHandler) SetContract(w http.ResponseWriter, r *http.Request) {
	if h.contract == nil {
		unavailable(w, "dispatcher")
		return
	}
	var body struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.contract.SetContractAddress(body.Address); err != nil {
		writeDomainError(w, err)
		return
	}
	addr := h.contract.ContractAddress()
	h.logger.InfoContext(r.Context(), "contract address updated", slog.String("address", addr))
	if h.audit != nil {
		h.audit.Record(domain.AuditConfigChanged, map[string]any{"component": "dispatch", "contract_address": addr})
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr})
}
