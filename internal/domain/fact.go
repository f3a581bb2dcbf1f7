package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceMetadata records where a fact came from.
type SourceMetadata struct {
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
	Authority float64   `json:"authority,omitempty"`
	Version   string    `json:"version,omitempty"`
}

// FactNode is a single atomic assertion held in the memory graph.
type FactNode struct {
	ID              uuid.UUID      `json:"id"`
	Content         string         `json:"content"`
	Vector          []float32      `json:"-"`
	Salience        float64        `json:"salience"`
	Tier            MemoryTier     `json:"tier"`
	Source          SourceMetadata `json:"source"`
	AccessCount     int            `json:"access_count"`
	LastAccessedAt  time.Time      `json:"last_accessed_at"`
	ConflictHistory []uuid.UUID    `json:"conflict_history,omitempty"`
	// InsertSeq is the store-assigned insertion order, used as the final
	// promotion tie-break so runs are reproducible.
	InsertSeq uint64    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never mutate store state through
// a shared reference.
func (f *FactNode) Clone() *FactNode {
	if f == nil {
		return nil
	}
	c := *f
	if f.Vector != nil {
		c.Vector = make([]float32, len(f.Vector))
		copy(c.Vector, f.Vector)
	}
	if f.ConflictHistory != nil {
		c.ConflictHistory = make([]uuid.UUID, len(f.ConflictHistory))
		copy(c.ConflictHistory, f.ConflictHistory)
	}
	return &c
}

// Touch records a caller-visible read hit.
func (f *FactNode) Touch(now time.Time) {
	f.AccessCount++
	f.LastAccessedAt = now
}

// FactWithScore pairs a fact with a retrieval similarity score.
type FactWithScore struct {
	FactNode
	Score float32 `json:"score"`
}
