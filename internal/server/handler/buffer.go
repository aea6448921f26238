package handler

import "net/http"

// BufferHandler reports the detector's per-pair observation buffers.
type BufferHandler struct {
	detector DetectorControl
}

// NewBufferHandler creates a BufferHandler. det may be nil.
func NewBufferHandler(det DetectorControl) *BufferHandler {
	return &BufferHandler{detector: det}
}

// Status GET /api/buffer
func (h *BufferHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		unavailable(w, "detector")
		return
	}
	status := h.detector.BufferStatus()
	total := 0
	for _, n := range status {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": status, "totalObservations": total})
}
