package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// AuditHandler pages through the audit trail and execution results.
type AuditHandler struct {
	store      domain.AuditStore
	executions domain.ExecutionStore
}

// NewAuditHandler creates an AuditHandler. Either store may be nil.
func NewAuditHandler(store domain.AuditStore, executions domain.ExecutionStore) *AuditHandler {
	return &AuditHandler{store: store, executions: executions}
}

// List GET /api/audit?event=&since=&until=&limit=&offset=
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		unavailable(w, "audit store")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.store.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": opts.Limit, "offset": opts.Offset})
}

// Executions GET /api/executions?limit=
func (h *AuditHandler) Executions(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		unavailable(w, "execution store")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	recs, err := h.executions.ListRecent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": recs})
}
