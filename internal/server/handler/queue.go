package handler

import (
	"net/http"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// QueueHandler exposes the scheduling queue.
type QueueHandler struct {
	strategy StrategyControl
}

// NewQueueHandler creates a QueueHandler. strategy may be nil.
func NewQueueHandler(strategy StrategyControl) *QueueHandler {
	return &QueueHandler{strategy: strategy}
}

// Stats returns queue statistics and size.
// GET /api/queue/stats
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"size":  h.strategy.QueueSize(),
		"stats": h.strategy.QueueStats(),
	})
}

// List returns queued entries, optionally filtered by ?urgency=.
// GET /api/queue
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	levels := []domain.Urgency{domain.UrgencyHigh, domain.UrgencyMedium, domain.UrgencyLow}
	if v := r.URL.Query().Get("urgency"); v != "" {
		u, err := domain.ParseUrgency(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		levels = []domain.Urgency{u}
	}
	entries := []domain.ScheduledEntry{}
	for _, u := range levels {
		entries = append(entries, h.strategy.ByUrgency(u)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// Get returns one queued entry.
// GET /api/queue/{id}
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	id := r.PathValue("id")
	entry, ok := h.strategy.Queued(id)
	if !ok {
		writeError(w, http.StatusNotFound, "opportunity "+id+" is not queued")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Clear empties the queue.
// DELETE /api/queue
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.strategy == nil {
		unavailable(w, "strategy engine")
		return
	}
	cleared := h.strategy.QueueSize()
	h.strategy.ClearQueue()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}
