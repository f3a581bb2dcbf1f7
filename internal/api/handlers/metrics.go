package handlers

import (
	"net/http"

	"github.com/sachinecin/AHS-Agentic/internal/service"
)

type MetricsHandler struct {
	engine *service.Engine
}

func NewMetricsHandler(engine *service.Engine) *MetricsHandler {
	return &MetricsHandler{engine: engine}
}

// Snapshot serves the tier census, conflict stats and query latency
// percentiles.
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Metrics())
}
