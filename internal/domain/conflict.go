package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResolutionStrategy is selected by delta magnitude alone; the mapping is a
// pure function of (delta, threshold) so it can be tested exhaustively.
type ResolutionStrategy string

const (
	StrategyAcceptNewEvidence   ResolutionStrategy = "accept_new_evidence"
	StrategySoftMerge           ResolutionStrategy = "soft_merge"
	StrategyDormantReactivation ResolutionStrategy = "dormant_reactivation"
	StrategyHardReplace         ResolutionStrategy = "hard_replace"
	StrategyHumanEscalation     ResolutionStrategy = "human_escalation"
)

func ValidResolutionStrategy(s string) bool {
	switch ResolutionStrategy(s) {
	case StrategyAcceptNewEvidence, StrategySoftMerge, StrategyDormantReactivation,
		StrategyHardReplace, StrategyHumanEscalation:
		return true
	}
	return false
}

// Named divergence threshold presets.
const (
	ThresholdConservative = 0.95
	ThresholdBalanced     = 0.85
	ThresholdAggressive   = 0.75
)

// ThresholdPreset resolves a preset name to its threshold value.
func ThresholdPreset(name string) (float64, bool) {
	switch name {
	case "conservative":
		return ThresholdConservative, true
	case "balanced":
		return ThresholdBalanced, true
	case "aggressive":
		return ThresholdAggressive, true
	}
	return 0, false
}

// ConflictState tracks a single conflict evaluation. Detection itself is a
// pure function; there is no retry state.
type ConflictState string

const (
	ConflictPending    ConflictState = "pending"
	ConflictEvaluating ConflictState = "evaluating"
	ConflictNone       ConflictState = "no_conflict"
	ConflictResolved   ConflictState = "resolved"
	ConflictEscalated  ConflictState = "escalated"
)

// TerminalConflictState reports whether no further transitions are allowed.
func TerminalConflictState(s ConflictState) bool {
	switch s {
	case ConflictNone, ConflictResolved, ConflictEscalated:
		return true
	}
	return false
}

// ValidConflictTransition enforces pending -> evaluating -> terminal.
func ValidConflictTransition(from, to ConflictState) bool {
	switch from {
	case ConflictPending:
		return to == ConflictEvaluating
	case ConflictEvaluating:
		return TerminalConflictState(to)
	}
	return false
}

// ConflictReport is an immutable, append-only audit record of one
// divergence evaluation between two facts.
type ConflictReport struct {
	ID               uuid.UUID          `json:"id"`
	ConflictDetected bool               `json:"conflict_detected"`
	DeltaScore       float64            `json:"delta_score"`
	Facts            []uuid.UUID        `json:"facts"`
	Strategy         ResolutionStrategy `json:"resolution_strategy"`
	Confidence       float64            `json:"confidence"`
	ReactivatedFacts []uuid.UUID        `json:"reactivated_facts,omitempty"`
	Domain           string             `json:"domain,omitempty"`
	State            ConflictState      `json:"state"`
	CreatedAt        time.Time          `json:"created_at"`
}

// ConflictStats aggregates detector history for the metrics surface.
type ConflictStats struct {
	TotalEvaluations int     `json:"total_evaluations"`
	TotalConflicts   int     `json:"total_conflicts"`
	ConflictRate     float64 `json:"conflict_rate"`
	AvgDelta         float64 `json:"avg_delta"`
	CurrentThreshold float64 `json:"current_threshold"`
}
