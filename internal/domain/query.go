package domain

// Query is one speculative sub-query within a retrieval batch. Either Text
// or Vector must be set; Text is embedded by the external provider before
// the hop executes.
type Query struct {
	Text   string    `json:"text,omitempty"`
	Vector []float32 `json:"-"`
	TopK   int       `json:"top_k,omitempty"`
}

// Result holds the outcome of one sub-query. Results are returned in input
// order; a timed-out or failed lookup yields a Degraded entry with no facts
// rather than failing the batch.
type Result struct {
	Query     Query           `json:"query"`
	Facts     []FactWithScore `json:"facts"`
	Degraded  bool            `json:"degraded,omitempty"`
	Error     string          `json:"error,omitempty"`
	FromDeep  bool            `json:"from_deep,omitempty"`
	LatencyMs float64         `json:"latency_ms"`
}

// MemoryMetrics is the engine's observability snapshot.
type MemoryMetrics struct {
	ActiveCount  int     `json:"active_count"`
	DormantCount int     `json:"dormant_count"`
	DeepCount    int     `json:"deep_count"`
	ConflictRate float64 `json:"conflict_rate"`
	AvgDelta     float64 `json:"avg_delta"`
}
