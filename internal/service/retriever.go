package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultConcurrencyLimit = 5
	MaxConcurrencyLimit     = 20
	DefaultLookupTimeout    = 2 * time.Second
	DefaultTopK             = 10

	// Minimum in-memory similarity before falling through to the deep
	// index.
	defaultMinScore = 0.5

	boundaryRetryAttempts = 3
	boundaryRetryBase     = 50 * time.Millisecond
)

// RetrieverConfig bounds the speculative hop.
type RetrieverConfig struct {
	ConcurrencyLimit int
	LookupTimeout    time.Duration
	MinScore         float64
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		ConcurrencyLimit: DefaultConcurrencyLimit,
		LookupTimeout:    DefaultLookupTimeout,
		MinScore:         defaultMinScore,
	}
}

func (c RetrieverConfig) validate() error {
	if c.ConcurrencyLimit < 1 || c.ConcurrencyLimit > MaxConcurrencyLimit {
		return fmt.Errorf("%w: concurrency limit %d outside [1,%d]", domain.ErrConfiguration, c.ConcurrencyLimit, MaxConcurrencyLimit)
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("%w: non-positive lookup timeout", domain.ErrConfiguration)
	}
	return nil
}

// SpeculativeRetriever executes a batch of sub-queries concurrently under a
// bounded permit arena. In-memory tiers are checked first; the external
// deep index is consulted only on a miss.
type SpeculativeRetriever struct {
	graph  domain.FactStore
	cache  domain.DormantCache
	deep   domain.DeepIndex
	cfg    RetrieverConfig
	sem    *semaphore.Weighted
	logger *zap.Logger

	// Limiter instrumentation: external calls in flight and the high-water
	// mark, observable by tests.
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func NewSpeculativeRetriever(graph domain.FactStore, cache domain.DormantCache, deep domain.DeepIndex, cfg RetrieverConfig, logger *zap.Logger) (*SpeculativeRetriever, error) {
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = defaultMinScore
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SpeculativeRetriever{
		graph:  graph,
		cache:  cache,
		deep:   deep,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.ConcurrencyLimit)),
		logger: logger,
	}, nil
}

// Hop executes all sub-queries concurrently and returns results in input
// order regardless of completion order. A single slow or failing lookup
// degrades its own entry; it never aborts the batch, and there is no
// batch-level timeout.
func (r *SpeculativeRetriever) Hop(ctx context.Context, queries []domain.Query) []domain.Result {
	results := make([]domain.Result, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q domain.Query) {
			defer wg.Done()
			start := time.Now()

			if err := r.sem.Acquire(ctx, 1); err != nil {
				results[i] = degraded(q, err, start)
				return
			}
			res := r.lookup(ctx, q)
			r.sem.Release(1)

			res.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
			results[i] = res
		}(i, q)
	}
	wg.Wait()

	r.mergeAccessCounts(results)
	return results
}

// MaxInFlight reports the high-water mark of concurrent external calls.
func (r *SpeculativeRetriever) MaxInFlight() int64 {
	return r.maxInFlight.Load()
}

func (r *SpeculativeRetriever) lookup(ctx context.Context, q domain.Query) domain.Result {
	start := time.Now()
	if len(q.Vector) == 0 {
		return degraded(q, errors.New("query has no vector"), start)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	// Cheap path: Active then Dormant, no suspension.
	hits := r.searchInMemory(q.Vector, topK)
	if len(hits) > 0 {
		return domain.Result{Query: q, Facts: hits}
	}

	// Miss: the deep index, under the per-lookup timeout.
	if r.deep == nil {
		return domain.Result{Query: q, Facts: nil}
	}
	hits, err := r.searchDeep(ctx, q.Vector, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrLookupTimeout
		}
		r.logger.Warn("deep lookup degraded", zap.Error(err))
		return degraded(q, err, start)
	}
	return domain.Result{Query: q, Facts: hits, FromDeep: true}
}

func (r *SpeculativeRetriever) searchInMemory(vector []float32, topK int) []domain.FactWithScore {
	var hits []domain.FactWithScore
	for _, tier := range []domain.MemoryTier{domain.TierActive, domain.TierDormant} {
		for _, fact := range r.graph.ListByTier(tier) {
			if len(fact.Vector) != len(vector) || len(fact.Vector) == 0 {
				continue
			}
			score := CosineSimilarity(fact.Vector, vector)
			if float64(score) < r.cfg.MinScore {
				continue
			}
			hits = append(hits, domain.FactWithScore{FactNode: *fact, Score: float32(score)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].InsertSeq < hits[j].InsertSeq
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// searchDeep calls the external index with bounded retries; the per-lookup
// timeout covers each attempt separately so one slow attempt cannot hold
// the permit past its budget.
func (r *SpeculativeRetriever) searchDeep(ctx context.Context, vector []float32, topK int) ([]domain.FactWithScore, error) {
	var entries []domain.DeepIndexEntry
	err := r.retryBoundary(ctx, func(attemptCtx context.Context) error {
		var err error
		entries, err = r.deep.Search(attemptCtx, vector, topK)
		return err
	})
	if err != nil {
		return nil, err
	}

	var hits []domain.FactWithScore
	for _, e := range entries {
		fact, err := r.resolveDeep(ctx, e.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		hits = append(hits, domain.FactWithScore{FactNode: *fact, Score: e.Score})
	}
	return hits, nil
}

// resolveDeep prefers the node already present in the graph, falling back
// to the external index for facts only known there.
func (r *SpeculativeRetriever) resolveDeep(ctx context.Context, id uuid.UUID) (*domain.FactNode, error) {
	if fact, err := r.graph.Get(id); err == nil {
		return fact, nil
	}
	if r.cache != nil {
		if fact, ok := r.cache.Get(id); ok {
			return fact, nil
		}
	}
	var fact *domain.FactNode
	err := r.retryBoundary(ctx, func(attemptCtx context.Context) error {
		var err error
		fact, err = r.deep.Fetch(attemptCtx, id)
		return err
	})
	return fact, err
}

// retryBoundary runs an external call with the per-lookup timeout and
// bounded exponential backoff. Internal invariant violations are never
// retried; they indicate a caller bug.
func (r *SpeculativeRetriever) retryBoundary(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	delay := boundaryRetryBase
	for attempt := 0; attempt < boundaryRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
		cur := r.inFlight.Add(1)
		for {
			prev := r.maxInFlight.Load()
			if cur <= prev || r.maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		err := fn(attemptCtx)
		r.inFlight.Add(-1)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrDimensionMismatch) {
			return err
		}
	}
	return lastErr
}

// mergeAccessCounts bumps access stats once per unique caller-visible hit,
// not once per sub-query hit, so duplicated sub-queries cannot inflate
// salience.
func (r *SpeculativeRetriever) mergeAccessCounts(results []domain.Result) {
	now := time.Now()
	seen := make(map[uuid.UUID]bool)
	for _, res := range results {
		for _, hit := range res.Facts {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true
			_ = r.graph.Update(hit.ID, func(f *domain.FactNode) error {
				f.Touch(now)
				return nil
			})
		}
	}
}

func degraded(q domain.Query, err error, start time.Time) domain.Result {
	return domain.Result{
		Query:     q,
		Degraded:  true,
		Error:     err.Error(),
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}
