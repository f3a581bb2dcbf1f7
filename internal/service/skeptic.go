package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"go.uber.org/zap"
)

const (
	// HardReplaceCutoff is an outright contradiction: flag for external
	// review, never auto-merge.
	HardReplaceCutoff = 0.95

	// SoftMergeBand below the threshold still counts as a compatible
	// update worth merging rather than plain acceptance.
	SoftMergeBand = 0.10

	// ReactivationTopK bounds how many graph neighbors a conflict pulls
	// back into the Active tier.
	ReactivationTopK = 10

	// Adaptive recalibration clamps.
	minAdaptiveThreshold = 0.70
	maxAdaptiveThreshold = 0.98
	recalibrationGain    = 0.05

	confidenceHard     = 0.99
	confidenceConflict = 0.85
	confidenceNone     = 0.70
)

// DomainThresholdDefaults are calibrated starting points, overridable via
// configuration.
var DomainThresholdDefaults = map[string]float64{
	"medical":   0.92,
	"legal":     0.88,
	"technical": 0.85,
}

// SkepticConfig carries the divergence cutoffs. Thresholds outside [0,1]
// are rejected at construction, not at evaluation time.
type SkepticConfig struct {
	DefaultThreshold float64
	DomainThresholds map[string]float64
}

func DefaultSkepticConfig() SkepticConfig {
	thresholds := make(map[string]float64, len(DomainThresholdDefaults))
	for k, v := range DomainThresholdDefaults {
		thresholds[k] = v
	}
	return SkepticConfig{
		DefaultThreshold: domain.ThresholdBalanced,
		DomainThresholds: thresholds,
	}
}

// Skeptic decides whether two facts disagree and how to resolve it.
// Detection is a pure function of (delta, threshold); only the
// reactivation side effect touches shared state.
type Skeptic struct {
	graph  domain.FactStore
	tiers  *TierManager
	logger *zap.Logger

	mu        sync.Mutex
	threshold float64
	domains   map[string]float64

	evaluations int
	conflicts   int
	deltaSum    float64
	reports     []domain.ConflictReport
}

func NewSkeptic(graph domain.FactStore, tiers *TierManager, cfg SkepticConfig, logger *zap.Logger) (*Skeptic, error) {
	if cfg.DefaultThreshold < 0 || cfg.DefaultThreshold > 1 {
		return nil, fmt.Errorf("%w: default threshold %v outside [0,1]", domain.ErrConfiguration, cfg.DefaultThreshold)
	}
	for name, v := range cfg.DomainThresholds {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: domain %q threshold %v outside [0,1]", domain.ErrConfiguration, name, v)
		}
	}
	domains := make(map[string]float64, len(cfg.DomainThresholds))
	for k, v := range cfg.DomainThresholds {
		domains[k] = v
	}
	return &Skeptic{
		graph:     graph,
		tiers:     tiers,
		logger:    logger,
		threshold: cfg.DefaultThreshold,
		domains:   domains,
	}, nil
}

// Divergence is 1 - cosine similarity, clamped to [0,1]. Anti-parallel
// vectors land on 1.0: they are already beyond every threshold.
func Divergence(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.ErrDimensionMismatch
	}
	delta := 1 - CosineSimilarity(a, b)
	if delta < 0 {
		return 0, nil
	}
	if delta > 1 {
		return 1, nil
	}
	return delta, nil
}

// CosineSimilarity of two equal-length vectors. A zero-norm vector yields
// similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	norm := math.Sqrt(normA) * math.Sqrt(normB)
	if norm == 0 {
		return 0
	}
	return dot / norm
}

// Threshold returns the cutoff for a domain, falling back to the current
// (possibly recalibrated) default.
func (s *Skeptic) Threshold(domainName string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.domains[domainName]; ok && domainName != "" {
		return v
	}
	return s.threshold
}

// SelectStrategy maps (delta, threshold) to a resolution strategy. Pure and
// exhaustive, so identical inputs always yield identical strategy.
func SelectStrategy(delta, threshold float64) (domain.ResolutionStrategy, bool, float64) {
	switch {
	case delta > HardReplaceCutoff:
		return domain.StrategyHardReplace, true, confidenceHard
	case delta > threshold:
		return domain.StrategyDormantReactivation, true, confidenceConflict
	case delta > threshold-SoftMergeBand:
		return domain.StrategySoftMerge, false, confidenceNone
	default:
		return domain.StrategyAcceptNewEvidence, false, confidenceNone
	}
}

// Evaluate computes the divergence between two facts and produces an
// immutable conflict report. On DormantReactivation it additionally pulls
// the facts' graph neighborhood back into the Active tier, writes a
// contradicts edge and appends the report to both facts' conflict history.
func (s *Skeptic) Evaluate(ctx context.Context, factA, factB *domain.FactNode, domainName string) (*domain.ConflictReport, error) {
	delta, err := Divergence(factA.Vector, factB.Vector)
	if err != nil {
		return nil, err
	}

	threshold := s.Threshold(domainName)
	strategy, detected, confidence := SelectStrategy(delta, threshold)

	report := &domain.ConflictReport{
		ID:               uuid.New(),
		ConflictDetected: detected,
		DeltaScore:       delta,
		Facts:            []uuid.UUID{factA.ID, factB.ID},
		Strategy:         strategy,
		Confidence:       confidence,
		Domain:           domainName,
		State:            domain.ConflictEvaluating,
		CreatedAt:        time.Now(),
	}

	switch strategy {
	case domain.StrategyHardReplace:
		report.State = domain.ConflictEscalated
	case domain.StrategyDormantReactivation:
		if err := s.reactivateNeighborhood(ctx, factA, factB, delta, report); err != nil {
			return nil, err
		}
		report.State = domain.ConflictResolved
	default:
		report.State = domain.ConflictNone
	}

	s.record(report)

	if detected {
		s.logger.Info("conflict detected",
			zap.String("report_id", report.ID.String()),
			zap.Float64("delta", delta),
			zap.Float64("threshold", threshold),
			zap.String("strategy", string(strategy)),
			zap.Int("reactivated", len(report.ReactivatedFacts)))
	}
	return report, nil
}

// reactivateNeighborhood resurrects the top-K most relevant neighbors of
// both facts so the report carries supporting context.
func (s *Skeptic) reactivateNeighborhood(ctx context.Context, factA, factB *domain.FactNode, delta float64, report *domain.ConflictReport) error {
	candidates := s.rankNeighbors(factA, factB)
	if len(candidates) > ReactivationTopK {
		candidates = candidates[:ReactivationTopK]
	}

	moved, err := s.tiers.Reactivate(ctx, candidates)
	if err != nil {
		return fmt.Errorf("reactivate neighborhood: %w", err)
	}
	report.ReactivatedFacts = moved

	edge := &domain.SemanticEdge{
		SourceID:      factA.ID,
		TargetID:      factB.ID,
		Relation:      domain.RelationContradicts,
		Confidence:    report.Confidence,
		ConflictDelta: delta,
	}
	if err := s.graph.AddEdge(edge); err != nil {
		return fmt.Errorf("record contradicts edge: %w", err)
	}

	for _, id := range report.Facts {
		if err := s.graph.Update(id, func(f *domain.FactNode) error {
			f.ConflictHistory = append(f.ConflictHistory, report.ID)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// rankNeighbors orders the union of both facts' neighborhoods by vector
// relevance to the conflicting pair.
func (s *Skeptic) rankNeighbors(factA, factB *domain.FactNode) []uuid.UUID {
	seen := map[uuid.UUID]bool{factA.ID: true, factB.ID: true}
	type scored struct {
		id    uuid.UUID
		score float64
		seq   uint64
	}
	var candidates []scored

	for _, anchor := range []*domain.FactNode{factA, factB} {
		neighbors, err := s.graph.Neighbors(anchor.ID, nil)
		if err != nil {
			continue
		}
		for _, id := range neighbors {
			if seen[id] {
				continue
			}
			seen[id] = true
			fact, err := s.graph.Get(id)
			if err != nil {
				continue
			}
			score := 0.0
			if len(fact.Vector) == len(anchor.Vector) && len(fact.Vector) > 0 {
				simA := CosineSimilarity(fact.Vector, factA.Vector)
				simB := CosineSimilarity(fact.Vector, factB.Vector)
				score = math.Max(simA, simB)
			}
			candidates = append(candidates, scored{id: id, score: score, seq: fact.InsertSeq})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}

// Recalibrate nudges the default threshold from downstream validation
// feedback in [0,1], clamped to [0.70, 0.98].
func (s *Skeptic) Recalibrate(feedback float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold += recalibrationGain * (feedback - 0.5)
	if s.threshold < minAdaptiveThreshold {
		s.threshold = minAdaptiveThreshold
	}
	if s.threshold > maxAdaptiveThreshold {
		s.threshold = maxAdaptiveThreshold
	}
	return s.threshold
}

func (s *Skeptic) record(report *domain.ConflictReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations++
	s.deltaSum += report.DeltaScore
	if report.ConflictDetected {
		s.conflicts++
	}
	s.reports = append(s.reports, *report)
}

// Stats aggregates the evaluation history.
func (s *Skeptic) Stats() domain.ConflictStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.ConflictStats{
		TotalEvaluations: s.evaluations,
		TotalConflicts:   s.conflicts,
		CurrentThreshold: s.threshold,
	}
	if s.evaluations > 0 {
		stats.ConflictRate = float64(s.conflicts) / float64(s.evaluations)
		stats.AvgDelta = s.deltaSum / float64(s.evaluations)
	}
	return stats
}

// Reports returns a copy of the append-only audit log.
func (s *Skeptic) Reports() []domain.ConflictReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConflictReport, len(s.reports))
	copy(out, s.reports)
	return out
}
