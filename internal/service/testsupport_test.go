package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/store"
	"go.uber.org/zap"
)

// fakeDeepIndex is an in-memory stand-in for the external vector index,
// with per-call delay and error injection for the concurrency tests.
type fakeDeepIndex struct {
	mu      sync.Mutex
	facts   map[uuid.UUID]*domain.FactNode
	upserts int

	searchDelay time.Duration
	searchErr   error
}

func newFakeDeepIndex() *fakeDeepIndex {
	return &fakeDeepIndex{facts: make(map[uuid.UUID]*domain.FactNode)}
}

func (f *fakeDeepIndex) Upsert(ctx context.Context, id uuid.UUID, vector []float32, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fact := &domain.FactNode{ID: id, Tier: domain.TierDeep}
	fact.Vector = append([]float32(nil), vector...)
	if content, ok := metadata["content"].(string); ok {
		fact.Content = content
	}
	if origin, ok := metadata["origin"].(string); ok {
		fact.Source.Origin = origin
	}
	if ts, ok := metadata["timestamp"].(time.Time); ok {
		fact.Source.Timestamp = ts
	}
	f.facts[id] = fact
	f.upserts++
	return nil
}

func (f *fakeDeepIndex) Search(ctx context.Context, vector []float32, k int) ([]domain.DeepIndexEntry, error) {
	f.mu.Lock()
	delay, searchErr := f.searchDelay, f.searchErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if searchErr != nil {
		return nil, searchErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []domain.DeepIndexEntry
	for id, fact := range f.facts {
		if len(fact.Vector) != len(vector) {
			continue
		}
		entries = append(entries, domain.DeepIndexEntry{
			ID:    id,
			Score: float32(CosineSimilarity(fact.Vector, vector)),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries, nil
}

func (f *fakeDeepIndex) Fetch(ctx context.Context, id uuid.UUID) (*domain.FactNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fact, ok := f.facts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return fact.Clone(), nil
}

func (f *fakeDeepIndex) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

// fakeEmbedder returns a fixed vector per text, or an error.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func testTierManager(graph domain.FactStore, deep domain.DeepIndex) *TierManager {
	return NewTierManager(graph, deep, store.NewLocalDormantCache(), DefaultTierManagerConfig(), zap.NewNop())
}

func seedFact(graph domain.FactStore, tiers *TierManager, vec []float32, content string) *domain.FactNode {
	fact := &domain.FactNode{
		ID:      uuid.New(),
		Content: content,
		Vector:  vec,
		Source:  domain.SourceMetadata{Origin: "test", Timestamp: time.Now()},
	}
	tiers.PlaceNew(fact)
	if err := graph.Put(fact); err != nil {
		panic(err)
	}
	return fact
}
