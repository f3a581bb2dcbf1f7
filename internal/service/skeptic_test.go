package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSkeptic(t *testing.T, graph domain.FactStore, tiers *TierManager) *Skeptic {
	t.Helper()
	s, err := NewSkeptic(graph, tiers, DefaultSkepticConfig(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestDivergenceSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		a := make([]float32, 8)
		b := make([]float32, 8)
		for j := range a {
			a[j] = rng.Float32()*2 - 1
			b[j] = rng.Float32()*2 - 1
		}
		dab, err := Divergence(a, b)
		require.NoError(t, err)
		dba, err := Divergence(b, a)
		require.NoError(t, err)
		assert.InDelta(t, dab, dba, 1e-9)
	}
}

func TestDivergenceDimensionMismatch(t *testing.T) {
	_, err := Divergence([]float32{1, 0}, []float32{1, 0, 0})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestDivergenceZeroVector(t *testing.T) {
	d, err := Divergence([]float32{0, 0, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestDivergenceClampsAntiParallel(t *testing.T) {
	d, err := Divergence([]float32{1, 0, 0}, []float32{-1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name      string
		delta     float64
		threshold float64
		strategy  domain.ResolutionStrategy
		detected  bool
	}{
		{"hard replace above cutoff", 0.97, 0.85, domain.StrategyHardReplace, true},
		{"reactivation between threshold and cutoff", 0.90, 0.85, domain.StrategyDormantReactivation, true},
		{"soft merge inside band", 0.80, 0.85, domain.StrategySoftMerge, false},
		{"accept below band", 0.42, 0.85, domain.StrategyAcceptNewEvidence, false},
		{"exactly threshold is not a conflict", 0.85, 0.85, domain.StrategySoftMerge, false},
		{"aggressive threshold flips soft merge", 0.42, 0.30, domain.StrategyDormantReactivation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, detected, _ := SelectStrategy(tt.delta, tt.threshold)
			assert.Equal(t, tt.strategy, strategy)
			assert.Equal(t, tt.detected, detected)
		})
	}
}

// Raising the threshold never turns a non-conflict into a conflict, and
// lowering it never removes a detected conflict.
func TestThresholdMonotonicity(t *testing.T) {
	deltas := []float64{0.0, 0.1, 0.42, 0.75, 0.85, 0.90, 0.951, 1.0}
	thresholds := []float64{0.30, 0.50, 0.75, 0.85, 0.95}

	for _, delta := range deltas {
		prevDetected := true
		for _, threshold := range thresholds {
			_, detected, _ := SelectStrategy(delta, threshold)
			assert.False(t, !prevDetected && detected,
				"delta %v: raising threshold to %v introduced a conflict", delta, threshold)
			prevDetected = detected
		}
	}
}

// Phrasing variance: "stores at 15-25C" vs "stores at 20-25C" with
// similarity 0.58 is not a conflict at the default threshold. An
// aggressive 0.30 threshold flags the same pair.
func TestEvaluateStorageTemperatureScenario(t *testing.T) {
	graph := store.NewFactGraph(2)
	tiers := testTierManager(graph, nil)

	// cos(a, b) = 0.58 by construction.
	a := seedFact(graph, tiers, []float32{1, 0}, "stores at 15-25C")
	b := seedFact(graph, tiers, []float32{0.58, 0.8146778}, "stores at 20-25C")

	s := newSkeptic(t, graph, tiers)
	report, err := s.Evaluate(context.Background(), a, b, "")
	require.NoError(t, err)
	assert.False(t, report.ConflictDetected)
	assert.InDelta(t, 0.42, report.DeltaScore, 0.001)
	assert.Equal(t, domain.ConflictNone, report.State)

	cfg := DefaultSkepticConfig()
	cfg.DefaultThreshold = 0.30
	aggressive, err := NewSkeptic(graph, tiers, cfg, zap.NewNop())
	require.NoError(t, err)
	report, err = aggressive.Evaluate(context.Background(), a, b, "")
	require.NoError(t, err)
	assert.True(t, report.ConflictDetected)
	assert.Equal(t, domain.StrategyDormantReactivation, report.Strategy)
}

// Orthogonal vectors are an outright contradiction: delta 1.0, hard
// replace, escalated for external review, no auto-merge.
func TestEvaluateOrthogonalVectors(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)
	a := seedFact(graph, tiers, []float32{1, 0, 0}, "fact a")
	b := seedFact(graph, tiers, []float32{0, 1, 0}, "fact b")

	s := newSkeptic(t, graph, tiers)
	report, err := s.Evaluate(context.Background(), a, b, "")
	require.NoError(t, err)

	assert.True(t, report.ConflictDetected)
	assert.InDelta(t, 1.0, report.DeltaScore, 1e-9)
	assert.Equal(t, domain.StrategyHardReplace, report.Strategy)
	assert.Equal(t, 0.99, report.Confidence)
	assert.Equal(t, domain.ConflictEscalated, report.State)
}

func TestEvaluateReactivationSideEffects(t *testing.T) {
	graph := store.NewFactGraph(2)
	tiers := testTierManager(graph, nil)

	// Divergence ~0.90: between the default threshold and the hard cutoff.
	a := seedFact(graph, tiers, []float32{1, 0}, "existing fact")
	b := seedFact(graph, tiers, []float32{0.1, 0.9949874}, "new evidence")

	// A dormant neighbor of the existing fact.
	neighbor := seedFact(graph, tiers, []float32{0.9, 0.4358899}, "supporting context")
	require.NoError(t, graph.SetTier(neighbor.ID, domain.TierActive, domain.TierDormant))
	require.NoError(t, graph.AddEdge(&domain.SemanticEdge{
		SourceID: a.ID, TargetID: neighbor.ID,
		Relation: domain.RelationElaborates, Confidence: 0.8,
	}))

	s := newSkeptic(t, graph, tiers)
	report, err := s.Evaluate(context.Background(), a, b, "")
	require.NoError(t, err)

	require.True(t, report.ConflictDetected)
	assert.Equal(t, domain.StrategyDormantReactivation, report.Strategy)
	assert.Equal(t, domain.ConflictResolved, report.State)
	assert.Contains(t, report.ReactivatedFacts, neighbor.ID)

	// The neighbor is Active again.
	got, err := graph.Get(neighbor.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierActive, got.Tier)

	// A contradicts edge carrying the delta was recorded.
	rel := domain.RelationContradicts
	contradicted, err := graph.Neighbors(a.ID, &rel)
	require.NoError(t, err)
	require.Len(t, contradicted, 1)
	assert.Equal(t, b.ID, contradicted[0])

	// Both parties picked up the report in their conflict history.
	for _, id := range report.Facts {
		fact, err := graph.Get(id)
		require.NoError(t, err)
		assert.Contains(t, fact.ConflictHistory, report.ID)
	}
}

func TestDomainThresholds(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)
	s := newSkeptic(t, graph, tiers)

	assert.Equal(t, 0.92, s.Threshold("medical"))
	assert.Equal(t, 0.88, s.Threshold("legal"))
	assert.Equal(t, 0.85, s.Threshold("technical"))
	assert.Equal(t, 0.85, s.Threshold(""))
	assert.Equal(t, 0.85, s.Threshold("unknown"))
}

func TestSkepticConfigValidation(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)

	_, err := NewSkeptic(graph, tiers, SkepticConfig{DefaultThreshold: 1.2}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewSkeptic(graph, tiers, SkepticConfig{
		DefaultThreshold: 0.85,
		DomainThresholds: map[string]float64{"medical": -0.1},
	}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRecalibrateClamps(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)
	s := newSkeptic(t, graph, tiers)

	// Persistent negative feedback walks the threshold down to the floor.
	for i := 0; i < 100; i++ {
		s.Recalibrate(0.0)
	}
	assert.Equal(t, 0.70, s.Stats().CurrentThreshold)

	// Persistent positive feedback walks it up to the ceiling.
	for i := 0; i < 100; i++ {
		s.Recalibrate(1.0)
	}
	assert.Equal(t, 0.98, s.Stats().CurrentThreshold)
}

func TestConflictStats(t *testing.T) {
	graph := store.NewFactGraph(3)
	tiers := testTierManager(graph, nil)
	s := newSkeptic(t, graph, tiers)

	a := seedFact(graph, tiers, []float32{1, 0, 0}, "a")
	b := seedFact(graph, tiers, []float32{0, 1, 0}, "b")
	c := seedFact(graph, tiers, []float32{1, 0.01, 0}, "c")

	_, err := s.Evaluate(context.Background(), a, b, "")
	require.NoError(t, err)
	_, err = s.Evaluate(context.Background(), a, c, "")
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalEvaluations)
	assert.Equal(t, 1, stats.TotalConflicts)
	assert.Equal(t, 0.5, stats.ConflictRate)
	assert.Greater(t, stats.AvgDelta, 0.0)
	assert.Len(t, s.Reports(), 2)
}
