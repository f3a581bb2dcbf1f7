package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
)

// FactGraph is the in-memory fact repository and edge adjacency for the
// Active and Dormant tiers. It is the single source of truth: other
// components mutate it through explicit calls, never through shared
// references (every read returns a clone).
//
// Locking is two-level: a RWMutex guards the maps themselves, and each fact
// carries its own mutex so tier transitions on one id never serialize
// unrelated facts.
type FactGraph struct {
	dim int

	mu    sync.RWMutex
	facts map[uuid.UUID]*factEntry
	out   map[uuid.UUID][]domain.SemanticEdge
	seq   uint64
}

type factEntry struct {
	mu   sync.Mutex
	fact *domain.FactNode
}

func NewFactGraph(dimension int) *FactGraph {
	return &FactGraph{
		dim:   dimension,
		facts: make(map[uuid.UUID]*factEntry),
		out:   make(map[uuid.UUID][]domain.SemanticEdge),
	}
}

// Dimension returns the configured embedding dimension.
func (g *FactGraph) Dimension() int {
	return g.dim
}

// Put inserts or overwrites a fact by id. Overwriting preserves the
// insertion sequence, creation time and conflict history, and never
// duplicates edges.
func (g *FactGraph) Put(fact *domain.FactNode) error {
	if len(fact.Vector) != g.dim {
		return ErrDimensionMismatch
	}
	now := time.Now()

	g.mu.Lock()
	entry, exists := g.facts[fact.ID]
	if !exists {
		g.seq++
		stored := fact.Clone()
		stored.InsertSeq = g.seq
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		g.facts[fact.ID] = &factEntry{fact: stored}
		g.mu.Unlock()
		fact.InsertSeq = stored.InsertSeq
		fact.CreatedAt = stored.CreatedAt
		return nil
	}
	g.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	updated := fact.Clone()
	updated.InsertSeq = entry.fact.InsertSeq
	updated.CreatedAt = entry.fact.CreatedAt
	if len(updated.ConflictHistory) == 0 {
		updated.ConflictHistory = entry.fact.ConflictHistory
	}
	updated.UpdatedAt = now
	entry.fact = updated
	fact.InsertSeq = updated.InsertSeq
	fact.CreatedAt = updated.CreatedAt
	return nil
}

// Get returns a copy of the fact, O(1).
func (g *FactGraph) Get(id uuid.UUID) (*domain.FactNode, error) {
	entry, err := g.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.fact.Clone(), nil
}

// Update applies fn to the stored fact under its per-id lock. If fn returns
// an error the fact is left untouched.
func (g *FactGraph) Update(id uuid.UUID, fn func(*domain.FactNode) error) error {
	entry, err := g.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	scratch := entry.fact.Clone()
	if err := fn(scratch); err != nil {
		return err
	}
	scratch.UpdatedAt = time.Now()
	entry.fact = scratch
	return nil
}

// SetTier moves a fact between tiers. expected guards against racing
// transitions: a mismatch surfaces as ErrTierTransitionConflict instead of
// silently clobbering a concurrent writer's decision.
func (g *FactGraph) SetTier(id uuid.UUID, expected, next domain.MemoryTier) error {
	entry, err := g.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.fact.Tier != expected {
		return domain.ErrTierTransitionConflict
	}
	updated := entry.fact.Clone()
	updated.Tier = next
	updated.UpdatedAt = time.Now()
	entry.fact = updated
	return nil
}

// Evict frees the in-memory embedding of a Deep-tier fact. The node stays
// addressable; its vector is resolvable via the external index.
func (g *FactGraph) Evict(id uuid.UUID) error {
	entry, err := g.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.fact.Tier != domain.TierDeep {
		return domain.ErrTierTransitionConflict
	}
	updated := entry.fact.Clone()
	updated.Vector = nil
	entry.fact = updated
	return nil
}

// AddEdge validates both endpoints and inserts the edge, O(1). An edge with
// the same (source, target, relation) is updated in place rather than
// duplicated. Contradicts edges must carry a positive conflict delta.
func (g *FactGraph) AddEdge(edge *domain.SemanticEdge) error {
	if edge.Relation == domain.RelationContradicts && edge.ConflictDelta <= 0 {
		return errors.New("contradicts edge requires a positive conflict delta")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.facts[edge.SourceID]; !ok {
		return ErrNotFound
	}
	if _, ok := g.facts[edge.TargetID]; !ok {
		return ErrNotFound
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}

	edges := g.out[edge.SourceID]
	for i, e := range edges {
		if e.TargetID == edge.TargetID && e.Relation == edge.Relation {
			edges[i] = *edge
			return nil
		}
	}
	g.out[edge.SourceID] = append(edges, *edge)
	return nil
}

// Neighbors returns adjacent fact ids, optionally filtered by relation
// type, O(degree).
func (g *FactGraph) Neighbors(id uuid.UUID, relation *domain.RelationType) ([]uuid.UUID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.facts[id]; !ok {
		return nil, ErrNotFound
	}
	var ids []uuid.UUID
	for _, e := range g.out[id] {
		if relation != nil && e.Relation != *relation {
			continue
		}
		ids = append(ids, e.TargetID)
	}
	return ids, nil
}

// Edges returns copies of the outgoing edges of a fact.
func (g *FactGraph) Edges(id uuid.UUID) ([]domain.SemanticEdge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.facts[id]; !ok {
		return nil, ErrNotFound
	}
	edges := make([]domain.SemanticEdge, len(g.out[id]))
	copy(edges, g.out[id])
	return edges, nil
}

// Related walks the adjacency breadth-first and returns ids reachable
// within maxDepth hops, excluding the start node.
func (g *FactGraph) Related(id uuid.UUID, maxDepth int) ([]uuid.UUID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.facts[id]; !ok {
		return nil, ErrNotFound
	}

	type hop struct {
		id    uuid.UUID
		depth int
	}
	visited := map[uuid.UUID]bool{id: true}
	queue := []hop{{id, 0}}
	var related []uuid.UUID

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, e := range g.out[cur.id] {
			if visited[e.TargetID] {
				continue
			}
			visited[e.TargetID] = true
			related = append(related, e.TargetID)
			queue = append(queue, hop{e.TargetID, cur.depth + 1})
		}
	}
	return related, nil
}

// FindConflicts returns every pair joined by a contradicts edge whose delta
// exceeds the threshold.
func (g *FactGraph) FindConflicts(threshold float64) []domain.ConflictPair {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var pairs []domain.ConflictPair
	for src, edges := range g.out {
		for _, e := range edges {
			if e.Relation == domain.RelationContradicts && e.ConflictDelta > threshold {
				pairs = append(pairs, domain.ConflictPair{
					SourceID: src,
					TargetID: e.TargetID,
					Delta:    e.ConflictDelta,
				})
			}
		}
	}
	return pairs
}

// ListByTier returns copies of every fact currently in the given tier.
func (g *FactGraph) ListByTier(tier domain.MemoryTier) []*domain.FactNode {
	g.mu.RLock()
	entries := make([]*factEntry, 0, len(g.facts))
	for _, entry := range g.facts {
		entries = append(entries, entry)
	}
	g.mu.RUnlock()

	var facts []*domain.FactNode
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.fact.Tier == tier {
			facts = append(facts, entry.fact.Clone())
		}
		entry.mu.Unlock()
	}
	return facts
}

// CountByTier returns the number of facts per tier.
func (g *FactGraph) CountByTier() map[domain.MemoryTier]int {
	counts := make(map[domain.MemoryTier]int, 3)
	for _, tier := range domain.AllTiers() {
		counts[tier] = len(g.ListByTier(tier))
	}
	return counts
}

func (g *FactGraph) entry(id uuid.UUID) (*factEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entry, ok := g.facts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}
