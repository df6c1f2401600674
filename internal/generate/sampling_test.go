package generate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect_OneHot(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 20 {
		assert.Equal(t, 2, Select(rng, []float32{0, 0, 100, 0}, 1))
	}
}

func TestSelect_Greedy(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, 2, Select(rng, []float32{-1, 0, 1}, 0))
	assert.Equal(t, 0, Select(rng, []float32{5, 0, 1}, -1))

	// Simulate large vocab with clear max
	logits := make([]float32, 50000)
	for i := range logits {
		logits[i] = float32(i) * 0.001
	}
	logits[12345] = 100.0
	assert.Equal(t, 12345, Select(rng, logits, 0))
}

func TestSelect_ExhaustedScanFallsBack(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	// Ties keep id order in the ranking, so the scan starts at id 3. A huge
	// temperature draws far beyond the total mass of 1.
	for range 20 {
		assert.Equal(t, 3, Select(rng, []float32{0, 0, 0, 0}, 1e6))
	}
	assert.Equal(t, 1, Select(rng, []float32{0, 3, 1}, 1e6))
}

func TestSelect_Distribution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	want := []float64{0.1, 0.2, 0.7}
	logits := make([]float32, len(want))
	for i, p := range want {
		logits[i] = float32(math.Log(p))
	}

	const n = 20000
	counts := make([]int, len(want))
	for range n {
		counts[Select(rng, logits, 1)]++
	}
	for i, p := range want {
		assert.InDelta(t, p, float64(counts[i])/n, 0.02, "id %d", i)
	}
}

func TestTopKSampling(t *testing.T) {
	sampler := NewSampler(SamplingConfig{Temperature: 1.0, TopK: 2, Seed: 42})
	logits := []float32{1, 2, 3, 4, 5}

	// Should only sample from top 2 tokens (indices 3, 4)
	counts := make(map[int]int)
	for range 100 {
		counts[sampler.Sample(logits, nil)]++
	}

	assert.Equal(t, 0, counts[0]+counts[1]+counts[2], "Should not sample from filtered tokens")
	assert.Equal(t, 100, counts[3]+counts[4])
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, logits, "logits must not be modified")
}

func TestRepetitionPenalty(t *testing.T) {
	sampler := NewSampler(SamplingConfig{Temperature: 0, RepeatPenalty: 2, Seed: 1})

	assert.Equal(t, 0, sampler.Sample([]float32{2, 1.5}, nil))
	assert.Equal(t, 1, sampler.Sample([]float32{2, 1.5}, []int{0}), "2/2 < 1.5")
	assert.Equal(t, 1, sampler.Sample([]float32{-1, -1.5}, []int{0}), "-1*2 < -1.5")
}

func TestNewSampler_SeedIsReproducible(t *testing.T) {
	cfg := DefaultSamplingConfig()
	cfg.Seed = 99
	a, b := NewSampler(cfg), NewSampler(cfg)

	logits := []float32{0.1, 0.2, 0.3, 0.4, 0.5}
	for range 50 {
		assert.Equal(t, a.Sample(logits, nil), b.Sample(logits, nil))
	}
}
