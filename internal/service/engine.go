package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrEmptyContent = errors.New("fact content is empty")
	ErrEmptyBatch   = errors.New("query batch is empty")
)

// Engine is the facade the rest of the system talks to: ingestion, the
// speculative query path, explicit conflict checks and the metrics
// snapshot.
type Engine struct {
	graph     domain.FactStore
	tiers     *TierManager
	skeptic   *Skeptic
	retriever *SpeculativeRetriever
	embedder  domain.EmbeddingClient
	metrics   *QueryMetrics
	logger    *zap.Logger
}

func NewEngine(
	graph domain.FactStore,
	tiers *TierManager,
	skeptic *Skeptic,
	retriever *SpeculativeRetriever,
	embedder domain.EmbeddingClient,
	metrics *QueryMetrics,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		graph:     graph,
		tiers:     tiers,
		skeptic:   skeptic,
		retriever: retriever,
		embedder:  embedder,
		metrics:   metrics,
		logger:    logger,
	}
}

// Ingest validates and stores a new fact, assigning its initial tier from
// the tier manager's salience function. Fails fast and loud on malformed
// input; the embedding is supplied by the caller, never computed here.
func (e *Engine) Ingest(ctx context.Context, content string, source domain.SourceMetadata, vector []float32) (uuid.UUID, error) {
	if content == "" {
		return uuid.Nil, ErrEmptyContent
	}
	if source.Timestamp.IsZero() {
		source.Timestamp = time.Now()
	}

	fact := &domain.FactNode{
		ID:      uuid.New(),
		Content: content,
		Vector:  vector,
		Source:  source,
	}
	e.tiers.PlaceNew(fact)

	if err := e.graph.Put(fact); err != nil {
		return uuid.Nil, err
	}

	e.logger.Debug("fact ingested",
		zap.String("fact_id", fact.ID.String()),
		zap.String("tier", string(fact.Tier)),
		zap.Float64("salience", fact.Salience))
	return fact.ID, nil
}

// QueryResponse pairs ordered retrieval results with the conflict reports
// raised while scanning the returned facts against their neighborhoods.
type QueryResponse struct {
	Results   []domain.Result         `json:"results"`
	Conflicts []domain.ConflictReport `json:"conflicts,omitempty"`
}

// Query embeds text sub-queries, runs the speculative hop and then lets
// the skeptic scan the returned facts against their graph neighbors. One
// slow lookup degrades its own entry; the query itself never fails for
// that reason.
func (e *Engine) Query(ctx context.Context, queries []domain.Query, domainName string) (*QueryResponse, error) {
	if len(queries) == 0 {
		return nil, ErrEmptyBatch
	}
	start := time.Now()

	prepared, prefailed := e.embedQueries(ctx, queries)
	results := e.retriever.Hop(ctx, prepared)
	for i, res := range prefailed {
		if res != nil {
			results[i] = *res
		}
	}

	e.mergeDeepHits(results)
	conflicts := e.scanResults(ctx, results, domainName)

	rec := QueryRecord{
		LatencyMs:         float64(time.Since(start).Microseconds()) / 1000.0,
		SubQueries:        len(queries),
		ConflictsDetected: len(conflicts),
	}
	for _, res := range results {
		if res.Degraded {
			rec.DegradedLookups++
		}
		if res.FromDeep {
			rec.DeepAccessed = true
		}
	}
	e.metrics.Record(rec)

	return &QueryResponse{Results: results, Conflicts: conflicts}, nil
}

// embedQueries resolves text-only sub-queries to vectors. A failed embed
// degrades that entry in place of failing the batch.
func (e *Engine) embedQueries(ctx context.Context, queries []domain.Query) ([]domain.Query, map[int]*domain.Result) {
	prepared := make([]domain.Query, len(queries))
	prefailed := make(map[int]*domain.Result)
	copy(prepared, queries)

	for i, q := range prepared {
		if len(q.Vector) > 0 || q.Text == "" {
			continue
		}
		vec, err := e.embedder.Embed(ctx, q.Text)
		if err != nil {
			e.logger.Warn("sub-query embedding failed", zap.Error(err))
			prefailed[i] = &domain.Result{Query: q, Degraded: true, Error: err.Error()}
			continue
		}
		prepared[i].Vector = vec
	}
	return prepared, prefailed
}

// mergeDeepHits admits facts served from the deep index but absent from
// the graph, re-tiering them through the salience function so the next
// query finds them in memory and the conflict scan can see them. This is
// the normal state after a restart: the deep index survives, the graph
// does not.
func (e *Engine) mergeDeepHits(results []domain.Result) {
	now := time.Now()
	for ri := range results {
		if !results[ri].FromDeep {
			continue
		}
		for fi := range results[ri].Facts {
			hit := &results[ri].Facts[fi]
			if _, err := e.graph.Get(hit.ID); err == nil {
				continue
			}
			fact := hit.FactNode.Clone()
			fact.Touch(now)
			e.tiers.PlaceNew(fact)
			if err := e.graph.Put(fact); err != nil {
				e.logger.Warn("deep hit admission failed",
					zap.String("fact_id", fact.ID.String()),
					zap.Error(err))
				continue
			}
			hit.Tier = fact.Tier
			hit.Salience = fact.Salience
			hit.AccessCount = fact.AccessCount
			hit.LastAccessedAt = fact.LastAccessedAt
		}
	}
}

// scanResults evaluates each unique returned fact against its graph
// neighbors. Evaluation order across facts is not guaranteed; each pair
// evaluation is atomic.
func (e *Engine) scanResults(ctx context.Context, results []domain.Result, domainName string) []domain.ConflictReport {
	var reports []domain.ConflictReport
	seen := make(map[uuid.UUID]bool)
	evaluated := make(map[[2]uuid.UUID]bool)

	for _, res := range results {
		for _, hit := range res.Facts {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true

			neighbors, err := e.graph.Neighbors(hit.ID, nil)
			if err != nil {
				continue
			}
			factA, err := e.graph.Get(hit.ID)
			if err != nil || len(factA.Vector) == 0 {
				continue
			}
			for _, nid := range neighbors {
				key := pairKey(hit.ID, nid)
				if evaluated[key] {
					continue
				}
				evaluated[key] = true

				factB, err := e.graph.Get(nid)
				if err != nil || len(factB.Vector) == 0 {
					continue
				}
				report, err := e.skeptic.Evaluate(ctx, factA, factB, domainName)
				if err != nil {
					e.logger.Warn("conflict scan pair skipped", zap.Error(err))
					continue
				}
				if report.ConflictDetected {
					reports = append(reports, *report)
				}
			}
		}
	}
	return reports
}

// CheckConflicts evaluates every pair among the given facts. Unknown ids
// and dimension mismatches fail fast; they are caller errors.
func (e *Engine) CheckConflicts(ctx context.Context, factIDs []uuid.UUID, domainName string) ([]domain.ConflictReport, error) {
	facts := make([]*domain.FactNode, 0, len(factIDs))
	for _, id := range factIDs {
		fact, err := e.graph.Get(id)
		if err != nil {
			return nil, fmt.Errorf("fact %s: %w", id, err)
		}
		facts = append(facts, fact)
	}

	var reports []domain.ConflictReport
	for i := 0; i < len(facts); i++ {
		for j := i + 1; j < len(facts); j++ {
			report, err := e.skeptic.Evaluate(ctx, facts[i], facts[j], domainName)
			if err != nil {
				return nil, err
			}
			reports = append(reports, *report)
		}
	}
	return reports, nil
}

// EngineMetrics is the full observability snapshot.
type EngineMetrics struct {
	domain.MemoryMetrics
	Conflicts domain.ConflictStats `json:"conflicts"`
	Queries   QuerySummary         `json:"queries"`
}

func (e *Engine) Metrics() EngineMetrics {
	counts := e.graph.CountByTier()
	stats := e.skeptic.Stats()
	return EngineMetrics{
		MemoryMetrics: domain.MemoryMetrics{
			ActiveCount:  counts[domain.TierActive],
			DormantCount: counts[domain.TierDormant],
			DeepCount:    counts[domain.TierDeep],
			ConflictRate: stats.ConflictRate,
			AvgDelta:     stats.AvgDelta,
		},
		Conflicts: stats,
		Queries:   e.metrics.Summary(),
	}
}

// Get returns a fact by id.
func (e *Engine) Get(id uuid.UUID) (*domain.FactNode, error) {
	return e.graph.Get(id)
}

// Reports exposes the append-only conflict audit log.
func (e *Engine) Reports() []domain.ConflictReport {
	return e.skeptic.Reports()
}

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() < b.String() {
		return [2]uuid.UUID{a, b}
	}
	return [2]uuid.UUID{b, a}
}
