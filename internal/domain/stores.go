package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FactStore is the single shared mutable resource. All components mutate
// facts through explicit calls on it, never through shared references.
type FactStore interface {
	Put(fact *FactNode) error
	Get(id uuid.UUID) (*FactNode, error)
	Neighbors(id uuid.UUID, relation *RelationType) ([]uuid.UUID, error)
	AddEdge(edge *SemanticEdge) error
	Edges(id uuid.UUID) ([]SemanticEdge, error)
	Related(id uuid.UUID, maxDepth int) ([]uuid.UUID, error)
	FindConflicts(threshold float64) []ConflictPair

	// Update applies fn to the stored fact under its per-id lock.
	Update(id uuid.UUID, fn func(*FactNode) error) error
	ListByTier(tier MemoryTier) []*FactNode
	CountByTier() map[MemoryTier]int

	// SetTier moves a fact between tiers, enforcing that the tier field and
	// physical placement stay consistent. expected guards against racing
	// transitions: a mismatch returns ErrTierTransitionConflict.
	SetTier(id uuid.UUID, expected, next MemoryTier) error

	// Evict drops the in-memory vector footprint of a Deep-tier fact. The
	// node stays addressable; its embedding is resolvable via the deep index.
	Evict(id uuid.UUID) error
}

// DeepIndexEntry is one hit from the external vector index.
type DeepIndexEntry struct {
	ID    uuid.UUID
	Score float32
}

// DeepIndex is the external long-term vector index backing the Deep tier.
// Both calls are treated as slow and are subject to the per-lookup timeout.
type DeepIndex interface {
	Upsert(ctx context.Context, id uuid.UUID, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, vector []float32, k int) ([]DeepIndexEntry, error)
	Fetch(ctx context.Context, id uuid.UUID) (*FactNode, error)
}

// DormantCache is the optional warm-tier cache. When no external cache is
// configured the Dormant tier degrades to an in-process map with TTL.
type DormantCache interface {
	Get(id uuid.UUID) (*FactNode, bool)
	Set(id uuid.UUID, fact *FactNode, ttl time.Duration)
	Delete(id uuid.UUID)
	Len() int
}

// EmbeddingClient turns text into a fixed-dimension vector. The core only
// consumes vectors; it never computes them.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
