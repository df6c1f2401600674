// Package generate implements autoregressive decoding: next-token selection,
// the sliding context window and the generation loop that ties them to a
// model.
package generate

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/born-ml/gptgraph/internal/tensor"
)

// probabilityScale quantizes probabilities into rank keys (three decimals).
const probabilityScale = 1000

// SamplingConfig configures the sampling strategy for text generation.
type SamplingConfig struct {
	// Temperature is the upper bound of the selection draw. Values above 1
	// flatten the choice towards less likely tokens; 0 or less is greedy.
	Temperature float32

	// TopK limits sampling to top K tokens. 0 = disabled.
	TopK int

	// Repetition control
	RepeatPenalty float32 // Penalty for repeated tokens. 1.0 (or 0) = no penalty.
	RepeatWindow  int     // Number of tokens to consider. 0 = all.

	// Seed for reproducibility. -1 = random.
	Seed int64
}

// DefaultSamplingConfig returns the plain selection procedure at
// temperature 1.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Temperature:   1.0,
		TopK:          0,
		RepeatPenalty: 1.0,
		RepeatWindow:  64,
		Seed:          -1,
	}
}

// Sampler samples tokens from logits using configurable strategies.
type Sampler struct {
	config SamplingConfig
	rng    *rand.Rand
}

// NewSampler creates a new sampler with the given configuration.
func NewSampler(config SamplingConfig) *Sampler {
	var rng *rand.Rand
	if config.Seed >= 0 {
		rng = rand.New(rand.NewSource(config.Seed)) //nolint:gosec // Intentional deterministic seed for reproducibility
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // User requested random seed
	}

	return &Sampler{
		config: config,
		rng:    rng,
	}
}

// Sample returns the next token ID from logits.
//
// The sampling process:
//  1. Apply repetition penalty over previousTokens
//  2. Apply Top-K filtering
//  3. Select (see Select)
func (s *Sampler) Sample(logits []float32, previousTokens []int) int {
	// Make a copy to avoid modifying original
	logits = append([]float32{}, logits...)

	if s.config.RepeatPenalty != 0 && s.config.RepeatPenalty != 1.0 && len(previousTokens) > 0 {
		s.applyRepetitionPenalty(logits, previousTokens)
	}

	if s.config.TopK > 0 && s.config.TopK < len(logits) {
		logits = s.topKFilter(logits)
	}

	return Select(s.rng, logits, s.config.Temperature)
}

// Select picks a token id from a logits row.
//
// The logits are normalized with softmax and ids are ranked by probability
// quantized to three decimals; ties keep a fixed order so the ranking is
// deterministic. A value d is drawn uniformly from [0, temperature) and ids
// are scanned from most to least probable, accumulating probability mass;
// the first id at which the mass exceeds d is returned. If the scan is
// exhausted (possible when temperature > 1) the most probable id is returned.
// A temperature of 0 or less returns the argmax.
func Select(rng *rand.Rand, logits []float32, temperature float32) int {
	if temperature <= 0 {
		return argmax(logits)
	}

	probs := tensor.SoftmaxSlice(logits)
	ranked := make([]int, len(probs))
	for i := range ranked {
		ranked[i] = i
	}
	key := func(id int) int { return int(probs[id] * probabilityScale) }
	sort.SliceStable(ranked, func(i, j int) bool { return key(ranked[i]) < key(ranked[j]) })

	d := rng.Float32() * temperature
	var accum float32
	for i := len(ranked) - 1; i >= 0; i-- {
		accum += probs[ranked[i]]
		if d < accum {
			return ranked[i]
		}
	}
	return ranked[len(ranked)-1]
}

// argmax returns the index of the maximum value.
func argmax(logits []float32) int {
	maxIdx := 0
	maxVal := logits[0]
	for i, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return maxIdx
}

// applyRepetitionPenalty penalizes tokens that appeared recently.
func (s *Sampler) applyRepetitionPenalty(logits []float32, prev []int) {
	penalty := s.config.RepeatPenalty
	window := s.config.RepeatWindow

	// Get recent tokens
	recent := prev
	if window > 0 && len(prev) > window {
		recent = prev[len(prev)-window:]
	}

	seen := make(map[int]bool)
	for _, tok := range recent {
		seen[tok] = true
	}

	for tok := range seen {
		if tok >= 0 && tok < len(logits) {
			if logits[tok] > 0 {
				logits[tok] /= penalty
			} else {
				logits[tok] *= penalty
			}
		}
	}
}

// topKFilter keeps only top K logits, sets rest to -inf.
func (s *Sampler) topKFilter(logits []float32) []float32 {
	k := s.config.TopK

	// Find k-th largest value
	sorted := append([]float32{}, logits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	threshold := sorted[k-1]

	for i := range logits {
		if logits[i] < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}

	return logits
}
