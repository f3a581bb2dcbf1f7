package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/service"
)

type QueryHandler struct {
	engine *service.Engine
}

func NewQueryHandler(engine *service.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

type querySubRequest struct {
	Text   string    `json:"text,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	TopK   int       `json:"top_k,omitempty"`
}

type queryRequest struct {
	Queries []querySubRequest `json:"queries"`
	Domain  string            `json:"domain,omitempty"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	queries := make([]domain.Query, 0, len(req.Queries))
	for _, q := range req.Queries {
		if q.Text == "" && len(q.Vector) == 0 {
			writeError(w, http.StatusBadRequest, "each sub-query needs text or a vector")
			return
		}
		queries = append(queries, domain.Query{Text: q.Text, Vector: q.Vector, TopK: q.TopK})
	}

	resp, err := h.engine.Query(r.Context(), queries, req.Domain)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
