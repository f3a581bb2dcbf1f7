package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestComputeSalienceDeterministic(t *testing.T) {
	tiers := testTierManager(store.NewFactGraph(3), nil)
	now := time.Now()
	fact := &domain.FactNode{
		AccessCount:    5,
		LastAccessedAt: now.Add(-1 * time.Hour),
	}

	first := tiers.ComputeSalience(fact, now)
	second := tiers.ComputeSalience(fact, now)
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)
}

func TestComputeSalienceConflictInvolvement(t *testing.T) {
	tiers := testTierManager(store.NewFactGraph(3), nil)
	now := time.Now()

	quiet := &domain.FactNode{AccessCount: 3, LastAccessedAt: now}
	contested := &domain.FactNode{
		AccessCount:     3,
		LastAccessedAt:  now,
		ConflictHistory: []uuid.UUID{uuid.New()},
	}

	diff := tiers.ComputeSalience(contested, now) - tiers.ComputeSalience(quiet, now)
	assert.InDelta(t, domain.SalienceConflictWeight, diff, 1e-9)
}

func TestPlaceNewDefaultsToActive(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)

	fact := seedFact(graph, tiers, []float32{1, 0, 0}, "fresh fact")
	assert.Equal(t, domain.TierActive, fact.Tier)
	assert.Greater(t, fact.Salience, 0.0)
}

func TestPromoteRequiresSalience(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)
	fact := seedFact(graph, tiers, []float32{1, 0, 0}, "fact")
	require.NoError(t, graph.SetTier(fact.ID, domain.TierActive, domain.TierDormant))

	// Low salience: promotion is a no-op.
	require.NoError(t, tiers.Promote(context.Background(), fact.ID))
	got, err := graph.Get(fact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierDormant, got.Tier)

	// Drive access stats past the promotion threshold.
	require.NoError(t, graph.Update(fact.ID, func(f *domain.FactNode) error {
		f.AccessCount = 100
		f.LastAccessedAt = time.Now()
		f.ConflictHistory = []uuid.UUID{uuid.New()}
		return nil
	}))
	require.NoError(t, tiers.Promote(context.Background(), fact.ID))
	got, err = graph.Get(fact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierActive, got.Tier)
}

func TestReactivateIdempotent(t *testing.T) {
	graph := store.NewFactGraph(3)
	deep := newFakeDeepIndex()
	tiers := testTierManager(graph, deep)

	active := seedFact(graph, tiers, []float32{1, 0, 0}, "active")
	dormant := seedFact(graph, tiers, []float32{0, 1, 0}, "dormant")
	require.NoError(t, graph.SetTier(dormant.ID, domain.TierActive, domain.TierDormant))

	moved, err := tiers.Reactivate(context.Background(), []uuid.UUID{active.ID, dormant.ID, uuid.New()})
	require.NoError(t, err)
	// Already-active and unknown ids are no-ops; only the dormant fact moves.
	assert.Equal(t, []uuid.UUID{dormant.ID}, moved)

	// A second pass moves nothing.
	moved, err = tiers.Reactivate(context.Background(), []uuid.UUID{active.ID, dormant.ID})
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func TestReactivateFromDeepRestoresVector(t *testing.T) {
	graph := store.NewFactGraph(3)
	deep := newFakeDeepIndex()
	cfg := DefaultTierManagerConfig()
	cfg.InactivityWindow = 1 * time.Millisecond
	tiers := NewTierManager(graph, deep, store.NewLocalDormantCache(), cfg, zap.NewNop())

	fact := seedFact(graph, tiers, []float32{0, 0, 1}, "archived")
	require.NoError(t, graph.SetTier(fact.ID, domain.TierActive, domain.TierDormant))

	// Push it all the way to Deep; the vector leaves memory but the node
	// stays addressable.
	require.NoError(t, graph.Update(fact.ID, func(f *domain.FactNode) error {
		f.LastAccessedAt = time.Now().Add(-1 * time.Hour)
		return nil
	}))
	require.NoError(t, tiers.Demote(context.Background(), fact.ID))
	assert.Equal(t, 1, deep.upsertCount())

	got, err := graph.Get(fact.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TierDeep, got.Tier)
	require.Nil(t, got.Vector)

	moved, err := tiers.Reactivate(context.Background(), []uuid.UUID{fact.ID})
	require.NoError(t, err)
	require.Len(t, moved, 1)

	got, err = graph.Get(fact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierActive, got.Tier)
	// The embedding came back from the index, never recomputed.
	assert.Equal(t, []float32{0, 0, 1}, got.Vector)
}

func TestDemoteRespectsSalienceAndIdleness(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)
	fact := seedFact(graph, tiers, []float32{1, 0, 0}, "busy")
	require.NoError(t, graph.Update(fact.ID, func(f *domain.FactNode) error {
		f.AccessCount = 50
		f.LastAccessedAt = time.Now()
		return nil
	}))

	// High salience, recently accessed: demotion declines.
	require.NoError(t, tiers.Demote(context.Background(), fact.ID))
	got, err := graph.Get(fact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierActive, got.Tier)
}

// Twenty facts, five idle past the inactivity window: the sweep demotes
// exactly those five and leaves the other fifteen Active.
func TestRunSweepDemotesIdleFacts(t *testing.T) {
	graph := store.NewFactGraph(3)
	deep := newFakeDeepIndex()
	cfg := DefaultTierManagerConfig()
	cfg.InactivityWindow = 10 * time.Minute
	tiers := NewTierManager(graph, deep, store.NewLocalDormantCache(), cfg, zap.NewNop())

	var idle []uuid.UUID
	for i := 0; i < 20; i++ {
		fact := seedFact(graph, tiers, []float32{1, 0, 0}, "fact")
		if i < 5 {
			idle = append(idle, fact.ID)
			require.NoError(t, graph.Update(fact.ID, func(f *domain.FactNode) error {
				f.LastAccessedAt = time.Now().Add(-24 * time.Hour)
				return nil
			}))
		} else {
			require.NoError(t, graph.Update(fact.ID, func(f *domain.FactNode) error {
				f.AccessCount = 20
				f.LastAccessedAt = time.Now()
				return nil
			}))
		}
	}

	result, err := tiers.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Demoted)

	counts := graph.CountByTier()
	assert.Equal(t, 15, counts[domain.TierActive])
	assert.Equal(t, 5, counts[domain.TierDormant]+counts[domain.TierDeep])

	for _, id := range idle {
		got, err := graph.Get(id)
		require.NoError(t, err)
		assert.NotEqual(t, domain.TierActive, got.Tier)
	}
}

func TestCapacityEvictionTieBreak(t *testing.T) {
	graph := store.NewFactGraph(3)
	cfg := DefaultTierManagerConfig()
	cfg.Tier1Capacity = 2
	cfg.InactivityWindow = 24 * time.Hour
	tiers := NewTierManager(graph, nil, store.NewLocalDormantCache(), cfg, zap.NewNop())

	// Three facts with identical access stats; the older source timestamp
	// loses, and insertion order settles exact ties.
	base := time.Now()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		fact := &domain.FactNode{
			ID:      uuid.New(),
			Content: "fact",
			Vector:  []float32{1, 0, 0},
			Source:  domain.SourceMetadata{Origin: "test", Timestamp: base.Add(time.Duration(i) * time.Minute)},
		}
		fact.LastAccessedAt = base
		fact.Salience = 0.5
		fact.Tier = domain.TierActive
		require.NoError(t, graph.Put(fact))
		ids = append(ids, fact.ID)
	}

	_, err := tiers.RunSweep(context.Background())
	require.NoError(t, err)

	// The oldest-sourced fact was evicted; the two newer ones stay Active.
	first, err := graph.Get(ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.TierDormant, first.Tier)
	for _, id := range ids[1:] {
		got, err := graph.Get(id)
		require.NoError(t, err)
		assert.Equal(t, domain.TierActive, got.Tier)
	}
}

func TestDemotionToDeepSyncsIndex(t *testing.T) {
	graph := store.NewFactGraph(3)
	deep := newFakeDeepIndex()
	cfg := DefaultTierManagerConfig()
	cfg.InactivityWindow = 1 * time.Millisecond
	tiers := NewTierManager(graph, deep, store.NewLocalDormantCache(), cfg, zap.NewNop())

	fact := seedFact(graph, tiers, []float32{1, 0, 0}, "cold fact")
	require.NoError(t, graph.SetTier(fact.ID, domain.TierActive, domain.TierDormant))
	require.NoError(t, graph.Update(fact.ID, func(f *domain.FactNode) error {
		f.LastAccessedAt = time.Now().Add(-1 * time.Hour)
		return nil
	}))

	require.NoError(t, tiers.Demote(context.Background(), fact.ID))

	// Demotion to Deep is an explicit, observable upsert.
	assert.Equal(t, 1, deep.upsertCount())
	stored, err := deep.Fetch(context.Background(), fact.ID)
	require.NoError(t, err)
	assert.Equal(t, "cold fact", stored.Content)
}
