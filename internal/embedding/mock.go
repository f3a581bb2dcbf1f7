package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// MockClient produces deterministic unit vectors seeded by the input text.
// The same text always embeds to the same vector, so retrieval and conflict
// paths can be exercised without a live provider.
type MockClient struct {
	dimension int
}

func NewMockClient(dimension int) *MockClient {
	return &MockClient{dimension: dimension}
}

func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, c.dimension)
	var norm float64
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
