package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
)

// Load reads the .env file specified by AHS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("AHS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

// Validate checks the settings that would otherwise fail deep inside a
// component constructor. Call after Load.
func Validate() error {
	if n := ConcurrencyLimit(); n < 1 || n > 20 {
		return fmt.Errorf("%w: CONCURRENCY_LIMIT %d outside [1,20]", domain.ErrConfiguration, n)
	}
	if th := DefaultConflictThreshold(); th < 0 || th > 1 {
		return fmt.Errorf("%w: DEFAULT_THRESHOLD %.2f outside [0,1]", domain.ErrConfiguration, th)
	}
	for name, th := range DomainThresholds() {
		if th < 0 || th > 1 {
			return fmt.Errorf("%w: threshold %.2f for domain %q outside [0,1]", domain.ErrConfiguration, th, name)
		}
	}
	if EmbeddingDimension() < 1 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION must be positive", domain.ErrConfiguration)
	}
	if Tier1Capacity() < 1 || Tier2Capacity() < 1 {
		return fmt.Errorf("%w: tier capacities must be positive", domain.ErrConfiguration)
	}
	access, recency, conflict := SalienceWeights()
	if access < 0 || recency < 0 || conflict < 0 || math.Abs(access+recency+conflict-1) > 1e-6 {
		return fmt.Errorf("%w: SALIENCE_WEIGHTS must be non-negative and sum to 1", domain.ErrConfiguration)
	}
	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingDimension returns the vector dimension shared by the fact
// graph, the deep index and the embedding provider.
// Defaults to 256 if not set.
func EmbeddingDimension() int {
	dim, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSION"))
	if err != nil {
		return 256
	}
	return dim
}

// ConcurrencyLimit returns the number of retrieval permits.
// Defaults to 5 if not set.
func ConcurrencyLimit() int {
	n, err := strconv.Atoi(os.Getenv("CONCURRENCY_LIMIT"))
	if err != nil {
		return 5
	}
	return n
}

// LookupTimeout returns the per-lookup deadline.
// Defaults to 2s if not set.
func LookupTimeout() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("LOOKUP_TIMEOUT_MS"))
	if err != nil || ms <= 0 {
		return 2 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

// Tier1Capacity returns the active tier capacity.
// Defaults to 256 if not set.
func Tier1Capacity() int {
	n, err := strconv.Atoi(os.Getenv("TIER1_CAPACITY"))
	if err != nil {
		return 256
	}
	return n
}

// Tier2Capacity returns the dormant tier capacity.
// Defaults to 2048 if not set.
func Tier2Capacity() int {
	n, err := strconv.Atoi(os.Getenv("TIER2_CAPACITY"))
	if err != nil {
		return 2048
	}
	return n
}

// InactivityWindow returns how long a fact may go unaccessed before the
// sweep demotes it. Defaults to 30m if not set.
func InactivityWindow() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("INACTIVITY_WINDOW_MS"))
	if err != nil || ms <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(ms) * time.Millisecond
}

// SweepInterval returns how often the tier sweep runs.
// Defaults to 5m if not set.
func SweepInterval() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("SWEEP_INTERVAL_MS"))
	if err != nil || ms <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(ms) * time.Millisecond
}

// DefaultConflictThreshold returns the divergence threshold used when no
// domain-specific one applies. Accepts a number or a preset name
// (conservative, balanced, aggressive). Defaults to balanced if not set.
func DefaultConflictThreshold() float64 {
	raw := os.Getenv("DEFAULT_THRESHOLD")
	if th, ok := domain.ThresholdPreset(raw); ok {
		return th
	}
	th, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return domain.ThresholdBalanced
	}
	return th
}

// SalienceWeights parses SALIENCE_WEIGHTS, a comma-separated triple
// "access,recency,conflict", e.g. "0.4,0.3,0.3". Falls back to the
// calibrated defaults on any parse failure.
func SalienceWeights() (access, recency, conflict float64) {
	access = domain.SalienceAccessWeight
	recency = domain.SalienceRecencyWeight
	conflict = domain.SalienceConflictWeight

	raw := os.Getenv("SALIENCE_WEIGHTS")
	if raw == "" {
		return access, recency, conflict
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return access, recency, conflict
	}
	vals := make([]float64, 3)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return access, recency, conflict
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2]
}

// DomainThresholds parses DOMAIN_THRESHOLDS, a comma-separated list of
// name=value pairs, e.g. "medical=0.92,legal=0.88". Malformed pairs are
// skipped.
func DomainThresholds() map[string]float64 {
	raw := os.Getenv("DOMAIN_THRESHOLDS")
	if raw == "" {
		return nil
	}
	thresholds := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		th, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		thresholds[strings.TrimSpace(name)] = th
	}
	return thresholds
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
