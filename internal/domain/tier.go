package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryTier string

const (
	TierActive  MemoryTier = "active"
	TierDormant MemoryTier = "dormant"
	TierDeep    MemoryTier = "deep"
)

func ValidTier(t string) bool {
	switch MemoryTier(t) {
	case TierActive, TierDormant, TierDeep:
		return true
	}
	return false
}

func AllTiers() []MemoryTier {
	return []MemoryTier{TierActive, TierDormant, TierDeep}
}

// Default salience cutoffs for tier placement. Both are configurable;
// treat them as starting points, not empirically validated constants.
const (
	DefaultPromoteThreshold = 0.75
	DefaultDemoteThreshold  = 0.25
)

// Salience weights: access frequency, recency, conflict involvement.
const (
	SalienceAccessWeight   = 0.4
	SalienceRecencyWeight  = 0.3
	SalienceConflictWeight = 0.3
)

// ComputeTierForSalience maps an initial salience score to a tier at
// ingestion time. Promotion/demotion afterwards is the tier manager's job.
func ComputeTierForSalience(salience float64) MemoryTier {
	switch {
	case salience > DefaultPromoteThreshold:
		return TierActive
	case salience > DefaultDemoteThreshold:
		return TierDormant
	default:
		return TierDeep
	}
}

func TierReason(salience float64) string {
	switch ComputeTierForSalience(salience) {
	case TierActive:
		return "salience > 0.75"
	case TierDormant:
		return "0.25 < salience <= 0.75"
	default:
		return "salience <= 0.25"
	}
}

// TierTransition records when a fact moves between tiers.
type TierTransition struct {
	FactID     uuid.UUID  `json:"fact_id"`
	FromTier   MemoryTier `json:"from_tier"`
	ToTier     MemoryTier `json:"to_tier"`
	Reason     string     `json:"reason"`
	OccurredAt time.Time  `json:"occurred_at"`
}
