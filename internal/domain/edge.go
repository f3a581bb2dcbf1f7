package domain

import (
	"time"

	"github.com/google/uuid"
)

type RelationType string

const (
	RelationSupports    RelationType = "supports"
	RelationContradicts RelationType = "contradicts"
	RelationElaborates  RelationType = "elaborates"
)

func ValidRelationType(r string) bool {
	switch RelationType(r) {
	case RelationSupports, RelationContradicts, RelationElaborates:
		return true
	}
	return false
}

// SemanticEdge is a directed relationship between two facts.
// ConflictDelta is only meaningful for contradicts edges, where it must
// exceed the threshold that was active when the edge was created.
type SemanticEdge struct {
	SourceID      uuid.UUID    `json:"source_id"`
	TargetID      uuid.UUID    `json:"target_id"`
	Relation      RelationType `json:"relation_type"`
	Confidence    float64      `json:"confidence"`
	ConflictDelta float64      `json:"conflict_delta,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ConflictPair is a pair of facts joined by a contradicts edge.
type ConflictPair struct {
	SourceID uuid.UUID `json:"source_id"`
	TargetID uuid.UUID `json:"target_id"`
	Delta    float64   `json:"delta"`
}
