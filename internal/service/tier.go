package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval    = 1 * time.Minute
	defaultInactivityWindow = 30 * time.Minute
	defaultCacheTTL         = 1 * time.Hour

	// Access frequency saturates: ten hits count as roughly half-salient on
	// that axis, so one hot burst cannot pin a fact forever.
	accessSaturation = 10.0

	// Recency half-life in hours for the salience recency term.
	recencyDecayPerHour = 0.1
)

// TierManagerConfig controls promotion/demotion policy.
type TierManagerConfig struct {
	PromoteThreshold float64
	DemoteThreshold  float64
	Tier1Capacity    int
	Tier2Capacity    int
	InactivityWindow time.Duration
	CacheTTL         time.Duration

	// Salience weights. Must be non-negative and sum to 1.
	AccessWeight   float64
	RecencyWeight  float64
	ConflictWeight float64
}

func DefaultTierManagerConfig() TierManagerConfig {
	return TierManagerConfig{
		PromoteThreshold: domain.DefaultPromoteThreshold,
		DemoteThreshold:  domain.DefaultDemoteThreshold,
		Tier1Capacity:    256,
		Tier2Capacity:    2048,
		InactivityWindow: defaultInactivityWindow,
		CacheTTL:         defaultCacheTTL,
		AccessWeight:     domain.SalienceAccessWeight,
		RecencyWeight:    domain.SalienceRecencyWeight,
		ConflictWeight:   domain.SalienceConflictWeight,
	}
}

// TierManager owns tier assignment. It is the only component that moves
// facts between Active, Dormant and Deep, and it runs the background
// demotion sweep.
type TierManager struct {
	graph  domain.FactStore
	deep   domain.DeepIndex
	cache  domain.DormantCache
	cfg    TierManagerConfig
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewTierManager(graph domain.FactStore, deep domain.DeepIndex, cache domain.DormantCache, cfg TierManagerConfig, logger *zap.Logger) *TierManager {
	if cfg.PromoteThreshold == 0 {
		cfg.PromoteThreshold = domain.DefaultPromoteThreshold
	}
	if cfg.DemoteThreshold == 0 {
		cfg.DemoteThreshold = domain.DefaultDemoteThreshold
	}
	if cfg.InactivityWindow == 0 {
		cfg.InactivityWindow = defaultInactivityWindow
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.AccessWeight == 0 && cfg.RecencyWeight == 0 && cfg.ConflictWeight == 0 {
		cfg.AccessWeight = domain.SalienceAccessWeight
		cfg.RecencyWeight = domain.SalienceRecencyWeight
		cfg.ConflictWeight = domain.SalienceConflictWeight
	}
	return &TierManager{
		graph:    graph,
		deep:     deep,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		interval: defaultSweepInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *TierManager) SetInterval(d time.Duration) {
	s.interval = d
}

// ComputeSalience scores a fact in [0,1] as a weighted sum of normalized
// access frequency, recency and conflict involvement (defaults 0.4/0.3/0.3).
// Deterministic given access stats; recomputed lazily, not on every hit.
func (s *TierManager) ComputeSalience(fact *domain.FactNode, now time.Time) float64 {
	freq := float64(fact.AccessCount) / (float64(fact.AccessCount) + accessSaturation)

	ageHours := now.Sub(fact.LastAccessedAt).Hours()
	if fact.LastAccessedAt.IsZero() {
		ageHours = now.Sub(fact.CreatedAt).Hours()
	}
	if ageHours < 0 {
		ageHours = 0
	}
	recency := math.Exp(-recencyDecayPerHour * ageHours)

	conflict := 0.0
	if len(fact.ConflictHistory) > 0 {
		conflict = 1.0
	}

	return s.cfg.AccessWeight*freq +
		s.cfg.RecencyWeight*recency +
		s.cfg.ConflictWeight*conflict
}

// PlaceNew assigns the initial tier to a freshly ingested or retrieved
// fact. New facts enter Active unless their salience is already below the
// demotion cutoff (stale source, no authority); the sweep takes it from
// there.
func (s *TierManager) PlaceNew(fact *domain.FactNode) {
	now := time.Now()
	if fact.LastAccessedAt.IsZero() {
		fact.LastAccessedAt = now
	}
	fact.Salience = s.ComputeSalience(fact, now)
	if fact.Salience > s.cfg.DemoteThreshold {
		fact.Tier = domain.TierActive
	} else {
		fact.Tier = domain.TierDormant
	}
}

// Promote moves a fact into Active if its salience clears the promotion
// threshold. Promotion is non-destructive: content, embedding and conflict
// history are preserved, never recomputed.
func (s *TierManager) Promote(ctx context.Context, id uuid.UUID) error {
	fact, err := s.graph.Get(id)
	if err != nil {
		return err
	}
	if fact.Tier == domain.TierActive {
		return nil
	}
	salience := s.ComputeSalience(fact, time.Now())
	if salience <= s.cfg.PromoteThreshold {
		return nil
	}
	return s.activate(ctx, fact, salience)
}

// Reactivate is the skeptic's bulk promotion. Idempotent: already-Active
// ids are no-ops, not errors. Returns the ids actually moved.
func (s *TierManager) Reactivate(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var moved []uuid.UUID
	for _, id := range ids {
		fact, err := s.graph.Get(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return moved, err
		}
		if fact.Tier == domain.TierActive {
			continue
		}
		if err := s.activate(ctx, fact, math.Max(fact.Salience, s.cfg.PromoteThreshold)); err != nil {
			return moved, err
		}
		moved = append(moved, id)
	}
	return moved, nil
}

func (s *TierManager) activate(ctx context.Context, fact *domain.FactNode, salience float64) error {
	// Deep facts come back with their stored embedding; reactivation never
	// re-embeds.
	if fact.Tier == domain.TierDeep && len(fact.Vector) == 0 && s.deep != nil {
		restored, err := s.deep.Fetch(ctx, fact.ID)
		if err != nil {
			return err
		}
		if err := s.graph.Update(fact.ID, func(f *domain.FactNode) error {
			f.Vector = restored.Vector
			return nil
		}); err != nil {
			return err
		}
	}

	if err := s.transition(fact.ID, fact.Tier, domain.TierActive, "promotion"); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete(fact.ID)
	}
	return s.graph.Update(fact.ID, func(f *domain.FactNode) error {
		f.Salience = salience
		return nil
	})
}

// Demote moves a low-salience or idle fact one step toward cold storage:
// Active facts land in Dormant, Dormant facts are synced to the deep index
// and their in-memory embedding is freed.
func (s *TierManager) Demote(ctx context.Context, id uuid.UUID) error {
	fact, err := s.graph.Get(id)
	if err != nil {
		return err
	}
	now := time.Now()
	salience := s.ComputeSalience(fact, now)
	idle := now.Sub(fact.LastAccessedAt) > s.cfg.InactivityWindow
	if salience > s.cfg.DemoteThreshold && !idle {
		return nil
	}

	switch fact.Tier {
	case domain.TierActive:
		return s.demoteToDormant(fact, salience)
	case domain.TierDormant:
		return s.archiveToDeep(ctx, fact, salience)
	default:
		return nil
	}
}

func (s *TierManager) demoteToDormant(fact *domain.FactNode, salience float64) error {
	if err := s.transition(fact.ID, domain.TierActive, domain.TierDormant, "demotion"); err != nil {
		return err
	}
	if s.cache != nil {
		fact.Tier = domain.TierDormant
		s.cache.Set(fact.ID, fact, s.cfg.CacheTTL)
	}
	return s.graph.Update(fact.ID, func(f *domain.FactNode) error {
		f.Salience = salience
		return nil
	})
}

// archiveToDeep is the one place the external index is written, so tests
// can assert the sync deterministically.
func (s *TierManager) archiveToDeep(ctx context.Context, fact *domain.FactNode, salience float64) error {
	if s.deep != nil && len(fact.Vector) > 0 {
		meta := map[string]any{
			"content":   fact.Content,
			"origin":    fact.Source.Origin,
			"timestamp": fact.Source.Timestamp,
		}
		if err := s.deep.Upsert(ctx, fact.ID, fact.Vector, meta); err != nil {
			return err
		}
	}
	if err := s.transition(fact.ID, domain.TierDormant, domain.TierDeep, "archive"); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete(fact.ID)
	}
	if err := s.graph.Update(fact.ID, func(f *domain.FactNode) error {
		f.Salience = salience
		return nil
	}); err != nil {
		return err
	}
	if s.deep != nil {
		return s.graph.Evict(fact.ID)
	}
	return nil
}

// transition retries once after a racing writer invalidated the expected
// tier; the conflict is surfaced, never silently dropped.
func (s *TierManager) transition(id uuid.UUID, expected, next domain.MemoryTier, reason string) error {
	err := s.graph.SetTier(id, expected, next)
	if !errors.Is(err, domain.ErrTierTransitionConflict) {
		return err
	}
	fact, getErr := s.graph.Get(id)
	if getErr != nil {
		return getErr
	}
	if fact.Tier == next {
		return nil
	}
	s.logger.Debug("tier transition retried",
		zap.String("fact_id", id.String()),
		zap.String("reason", reason),
		zap.String("observed", string(fact.Tier)))
	return s.graph.SetTier(id, fact.Tier, next)
}

// SweepResult reports one demotion pass.
type SweepResult struct {
	Demoted  int `json:"demoted"`
	Archived int `json:"archived"`
	Evicted  int `json:"evicted"`
}

// RunSweep performs one demotion pass: idle or low-salience Active facts
// move to Dormant, idle Dormant facts archive to Deep, and capacity
// overflow evicts by the tie-break ordering.
func (s *TierManager) RunSweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	now := time.Now()

	for _, fact := range s.graph.ListByTier(domain.TierActive) {
		salience := s.ComputeSalience(fact, now)
		idle := now.Sub(fact.LastAccessedAt) > s.cfg.InactivityWindow
		if salience <= s.cfg.DemoteThreshold || idle {
			if err := s.demoteToDormant(fact, salience); err != nil {
				return result, err
			}
			result.Demoted++
		}
	}

	for _, fact := range s.graph.ListByTier(domain.TierDormant) {
		if now.Sub(fact.LastAccessedAt) > 2*s.cfg.InactivityWindow {
			if err := s.archiveToDeep(ctx, fact, s.ComputeSalience(fact, now)); err != nil {
				return result, err
			}
			result.Archived++
		}
	}

	evicted, err := s.enforceCapacity(ctx, now)
	result.Evicted = evicted
	return result, err
}

func (s *TierManager) enforceCapacity(ctx context.Context, now time.Time) (int, error) {
	evicted := 0

	if s.cfg.Tier1Capacity > 0 {
		active := s.graph.ListByTier(domain.TierActive)
		if overflow := len(active) - s.cfg.Tier1Capacity; overflow > 0 {
			sortForEviction(active, now, s.ComputeSalience)
			for _, fact := range active[:overflow] {
				if err := s.demoteToDormant(fact, s.ComputeSalience(fact, now)); err != nil {
					return evicted, err
				}
				evicted++
			}
		}
	}

	if s.cfg.Tier2Capacity > 0 {
		dormant := s.graph.ListByTier(domain.TierDormant)
		if overflow := len(dormant) - s.cfg.Tier2Capacity; overflow > 0 {
			sort.Slice(dormant, func(i, j int) bool {
				if dormant[i].AccessCount != dormant[j].AccessCount {
					return dormant[i].AccessCount < dormant[j].AccessCount
				}
				return dormant[i].InsertSeq < dormant[j].InsertSeq
			})
			for _, fact := range dormant[:overflow] {
				if err := s.archiveToDeep(ctx, fact, s.ComputeSalience(fact, now)); err != nil {
					return evicted, err
				}
				evicted++
			}
		}
	}

	return evicted, nil
}

// sortForEviction orders least-keepable first: lowest salience, then older
// source timestamp, then insertion order. The inverse of promotion
// preference, and fully deterministic.
func sortForEviction(facts []*domain.FactNode, now time.Time, salienceFn func(*domain.FactNode, time.Time) float64) {
	sort.Slice(facts, func(i, j int) bool {
		si, sj := salienceFn(facts[i], now), salienceFn(facts[j], now)
		if si != sj {
			return si < sj
		}
		if !facts[i].Source.Timestamp.Equal(facts[j].Source.Timestamp) {
			return facts[i].Source.Timestamp.Before(facts[j].Source.Timestamp)
		}
		return facts[i].InsertSeq < facts[j].InsertSeq
	})
}

// Start runs the demotion sweep on a periodic schedule.
func (s *TierManager) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("tier sweep worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				result, err := s.RunSweep(ctx)
				cancel()
				if err != nil {
					s.logger.Error("tier sweep failed", zap.Error(err))
					continue
				}
				if result.Demoted > 0 || result.Archived > 0 || result.Evicted > 0 {
					s.logger.Info("tier sweep complete",
						zap.Int("demoted", result.Demoted),
						zap.Int("archived", result.Archived),
						zap.Int("evicted", result.Evicted))
				}
			case <-s.stopCh:
				s.logger.Info("tier sweep worker stopped")
				return
			}
		}
	}()
}

func (s *TierManager) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
