package handler

import (
	"net/http"
	"strings"
)

// BlacklistHandler manages blocked tokens and venues.
type BlacklistHandler struct {
	strategy StrategyControl
}

// NewBlacklistHandler creates a BlacklistHandler. strategy may be nil.
func NewBlacklistHandler(strategy StrategyControl) *BlacklistHandler {
	return &BlacklistHandler{strategy: strategy}
}

// Get GET /api/blacklist
func (h *BlacklistHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	h.writeBlacklist(w)
}

// BlockToken POST /api/blacklist/tokens/{token}
func (h *BlacklistHandler) BlockToken(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "token", func(s StrategyControl, v string) { s.BlockToken(v) })
}

// UnblockToken DELETE /api/blacklist/tokens/{token}
func (h *BlacklistHandler) UnblockToken(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "token", func(s StrategyControl, v string) { s.UnblockToken(v) })
}

// BlockVenue POST /api/blacklist/venues/{venue}
func (h *BlacklistHandler) BlockVenue(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "venue", func(s StrategyControl, v string) { s.BlockVenue(v) })
}

// UnblockVenue DELETE /api/blacklist/venues/{venue}
func (h *BlacklistHandler) UnblockVenue(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "venue", func(s StrategyControl, v string) { s.UnblockVenue(v) })
}

func (h *BlacklistHandler) apply(w http.ResponseWriter, r *http.Request, param string, op func(StrategyControl, string)) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	v := strings.TrimSpace(r.PathValue(param))
	if v == "" {
		writeError(w, http.StatusBadRequest, param+" is required")
		return
	}
	op(h.strategy, v)
	h.writeBlacklist(w)
}

func (h *BlacklistHandler) writeBlacklist(w http.ResponseWriter) {
	tokens, venues := h.strategy.Blacklist()
	if tokens == nil {
		tokens = []string{}
	}
	if venues == nil {
		venues = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tokens": tokens, "venues": venues})
}
