package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/service"
)

type FactHandler struct {
	engine   *service.Engine
	embedder domain.EmbeddingClient
}

func NewFactHandler(engine *service.Engine, embedder domain.EmbeddingClient) *FactHandler {
	return &FactHandler{engine: engine, embedder: embedder}
}

type createFactRequest struct {
	Content string                `json:"content"`
	Source  domain.SourceMetadata `json:"source"`
	Vector  []float32             `json:"vector,omitempty"`
}

type createFactResponse struct {
	ID       uuid.UUID         `json:"id"`
	Tier     domain.MemoryTier `json:"tier"`
	Salience float64           `json:"salience"`
}

func (h *FactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	vector := req.Vector
	if len(vector) == 0 {
		if req.Content == "" {
			writeError(w, http.StatusBadRequest, "content is required")
			return
		}
		var err error
		vector, err = h.embedder.Embed(r.Context(), req.Content)
		if err != nil {
			writeError(w, http.StatusBadGateway, "embedding failed")
			return
		}
	}

	id, err := h.engine.Ingest(r.Context(), req.Content, req.Source, vector)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyContent),
			errors.Is(err, domain.ErrDimensionMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to store fact")
		}
		return
	}

	fact, err := h.engine.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stored fact")
		return
	}

	writeJSON(w, http.StatusCreated, createFactResponse{
		ID:       fact.ID,
		Tier:     fact.Tier,
		Salience: fact.Salience,
	})
}

func (h *FactHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fact id")
		return
	}

	fact, err := h.engine.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "fact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get fact")
		return
	}

	writeJSON(w, http.StatusOK, fact)
}
