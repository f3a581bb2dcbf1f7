package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/service"
)

type ConflictHandler struct {
	engine *service.Engine
	tuner  *service.ThresholdTuner
}

func NewConflictHandler(engine *service.Engine, tuner *service.ThresholdTuner) *ConflictHandler {
	return &ConflictHandler{engine: engine, tuner: tuner}
}

type checkConflictsRequest struct {
	FactIDs []string `json:"fact_ids"`
	Domain  string   `json:"domain,omitempty"`
}

type checkConflictsResponse struct {
	Reports []domain.ConflictReport `json:"reports"`
	Count   int                     `json:"count"`
}

func (h *ConflictHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkConflictsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.FactIDs) < 2 {
		writeError(w, http.StatusBadRequest, "at least two fact_ids are required")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.FactIDs))
	for _, raw := range req.FactIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid fact id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	reports, err := h.engine.CheckConflicts(r.Context(), ids, req.Domain)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrDimensionMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "conflict check failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, checkConflictsResponse{Reports: reports, Count: len(reports)})
}

type feedbackRequest struct {
	Score float64 `json:"score"`
}

func (h *ConflictHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.tuner.Submit(req.Score); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"pending": h.tuner.Pending(),
	})
}

type reportsResponse struct {
	Reports []domain.ConflictReport `json:"reports"`
	Count   int                     `json:"count"`
}

func (h *ConflictHandler) Reports(w http.ResponseWriter, r *http.Request) {
	reports := h.engine.Reports()
	writeJSON(w, http.StatusOK, reportsResponse{Reports: reports, Count: len(reports)})
}
