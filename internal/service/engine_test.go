package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEngine(t *testing.T, graph domain.FactStore, deep domain.DeepIndex, embedder domain.EmbeddingClient) (*Engine, *TierManager) {
	t.Helper()
	tiers := testTierManager(graph, deep)
	skeptic := newSkeptic(t, graph, tiers)
	retriever := newRetriever(t, graph, deep, DefaultRetrieverConfig())
	if embedder == nil {
		embedder = &fakeEmbedder{}
	}
	return NewEngine(graph, tiers, skeptic, retriever, embedder, NewQueryMetrics(), zap.NewNop()), tiers
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, _ := newEngine(t, graph, nil, nil)

	_, err := engine.Ingest(context.Background(), "", domain.SourceMetadata{}, []float32{1, 0, 0})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestIngestStoresAndPlacesFact(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, _ := newEngine(t, graph, nil, nil)

	id, err := engine.Ingest(context.Background(), "water boils at 100C", domain.SourceMetadata{Origin: "chem"}, []float32{1, 0, 0})
	require.NoError(t, err)

	fact, err := engine.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "water boils at 100C", fact.Content)
	assert.Equal(t, domain.TierActive, fact.Tier)
	assert.False(t, fact.Source.Timestamp.IsZero())
}

func TestQueryRejectsEmptyBatch(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, _ := newEngine(t, graph, nil, nil)

	_, err := engine.Query(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestQueryEmbedsTextSubQueries(t *testing.T) {
	graph := store.NewFactGraph(3)
	embedder := &fakeEmbedder{vectors: map[string][]float32{"boiling point": {1, 0, 0}}}
	engine, _ := newEngine(t, graph, nil, embedder)

	id, err := engine.Ingest(context.Background(), "water boils at 100C", domain.SourceMetadata{}, []float32{1, 0, 0})
	require.NoError(t, err)

	resp, err := engine.Query(context.Background(), []domain.Query{{Text: "boiling point"}}, "")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Results[0].Facts, 1)
	assert.Equal(t, id, resp.Results[0].Facts[0].ID)
}

// An embedding failure degrades that sub-query entry instead of failing
// the batch.
func TestQueryDegradesOnEmbeddingFailure(t *testing.T) {
	graph := store.NewFactGraph(3)
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	engine, _ := newEngine(t, graph, nil, embedder)

	resp, err := engine.Query(context.Background(), []domain.Query{
		{Vector: []float32{1, 0, 0}},
		{Text: "unreachable"},
	}, "")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[1].Degraded)
	assert.Contains(t, resp.Results[1].Error, "provider down")
}

// Facts returned by a query are scanned against their graph neighbors and
// divergent pairs surface as conflict reports.
func TestQuerySurfacesNeighborConflicts(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, tiers := newEngine(t, graph, nil, nil)

	hit := seedFact(graph, tiers, []float32{1, 0, 0}, "server is in us-east")
	rival := seedFact(graph, tiers, []float32{0, 1, 0}, "server is in eu-west")
	require.NoError(t, graph.AddEdge(&domain.SemanticEdge{
		SourceID: hit.ID,
		TargetID: rival.ID,
		Relation: domain.RelationElaborates,
	}))

	resp, err := engine.Query(context.Background(), []domain.Query{{Vector: []float32{1, 0, 0}}}, "")
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.True(t, resp.Conflicts[0].ConflictDetected)
	assert.InDelta(t, 1.0, resp.Conflicts[0].DeltaScore, 1e-6)
}

// A hit served from the deep index for a fact the graph does not hold —
// the normal state after a restart — is admitted into the store and
// tiered, so the next query finds it in memory.
func TestQueryAdmitsDeepOnlyHitsIntoStore(t *testing.T) {
	graph := store.NewFactGraph(3)
	deep := newFakeDeepIndex()
	engine, _ := newEngine(t, graph, deep, nil)

	id := uuid.New()
	require.NoError(t, deep.Upsert(context.Background(), id, []float32{1, 0, 0}, map[string]any{
		"content": "failover region is us-west",
		"origin":  "runbook",
	}))

	resp, err := engine.Query(context.Background(), []domain.Query{{Vector: []float32{1, 0, 0}}}, "")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Results[0].Facts, 1)
	assert.True(t, resp.Results[0].FromDeep)

	fact, err := graph.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "failover region is us-west", fact.Content)
	assert.Equal(t, domain.TierActive, fact.Tier)
	assert.Equal(t, 1, fact.AccessCount)
	assert.Equal(t, domain.TierActive, resp.Results[0].Facts[0].Tier)

	// Re-running the query serves the fact from memory, not the index.
	resp, err = engine.Query(context.Background(), []domain.Query{{Vector: []float32{1, 0, 0}}}, "")
	require.NoError(t, err)
	require.Len(t, resp.Results[0].Facts, 1)
	assert.False(t, resp.Results[0].FromDeep)

	fact, err = graph.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 2, fact.AccessCount)
}

func TestCheckConflictsFailsFastOnUnknownFact(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, tiers := newEngine(t, graph, nil, nil)
	known := seedFact(graph, tiers, []float32{1, 0, 0}, "known")

	_, err := engine.CheckConflicts(context.Background(), []uuid.UUID{known.ID, uuid.New()}, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckConflictsEvaluatesAllPairs(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, tiers := newEngine(t, graph, nil, nil)

	a := seedFact(graph, tiers, []float32{1, 0, 0}, "a")
	b := seedFact(graph, tiers, []float32{0, 1, 0}, "b")
	c := seedFact(graph, tiers, []float32{0.9, 0.4358899, 0}, "c")

	reports, err := engine.CheckConflicts(context.Background(), []uuid.UUID{a.ID, b.ID, c.ID}, "")
	require.NoError(t, err)
	require.Len(t, reports, 3)

	detected := 0
	for _, report := range reports {
		if report.ConflictDetected {
			detected++
		}
	}
	// Only the orthogonal pair diverges past the 0.85 default.
	assert.Equal(t, 1, detected)
}

func TestEngineMetricsSnapshot(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, tiers := newEngine(t, graph, nil, nil)

	seedFact(graph, tiers, []float32{1, 0, 0}, "hot")
	dormant := seedFact(graph, tiers, []float32{0, 1, 0}, "cooling")
	require.NoError(t, graph.SetTier(dormant.ID, domain.TierActive, domain.TierDormant))

	_, err := engine.Query(context.Background(), []domain.Query{{Vector: []float32{1, 0, 0}}}, "")
	require.NoError(t, err)

	m := engine.Metrics()
	assert.Equal(t, 1, m.ActiveCount)
	assert.Equal(t, 1, m.DormantCount)
	assert.Equal(t, 0, m.DeepCount)
	assert.Equal(t, 1, m.Queries.TotalQueries)
	assert.GreaterOrEqual(t, m.Queries.AvgLatencyMs, 0.0)
}

func TestIngestAssignsTimestampWhenMissing(t *testing.T) {
	graph := store.NewFactGraph(3)
	engine, _ := newEngine(t, graph, nil, nil)

	before := time.Now()
	id, err := engine.Ingest(context.Background(), "dated", domain.SourceMetadata{Origin: "feed"}, []float32{0, 0, 1})
	require.NoError(t, err)

	fact, err := engine.Get(id)
	require.NoError(t, err)
	assert.False(t, fact.Source.Timestamp.Before(before))
}
