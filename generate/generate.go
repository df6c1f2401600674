// Package generate provides autoregressive text generation for gptgraph
// models.
//
// This package wraps the internal generate implementation and provides
// a clean public API for sampling tasks.
//
// Components:
//   - Select: the next-token selection procedure
//   - Sampler: Select plus optional top-k and repetition penalty
//   - Window: the sliding context window
//   - Generator: the decoding loop over any Model
//
// Example usage:
//
//	config := generate.DefaultGenerateConfig()
//	config.MaxTokens = 200
//	config.Sampling.Temperature = 0.8
//	config.Sampling.Seed = 42
//
//	out, err := model.Generate(promptIDs, config, func(id int) {
//	    text, _ := tok.Decode([]int{id})
//	    fmt.Print(text)
//	})
package generate

import (
	"math/rand"

	"github.com/born-ml/gptgraph/internal/generate"
)

// Errors returned for invalid prompts.
var (
	ErrEmptyPrompt  = generate.ErrEmptyPrompt
	ErrInvalidToken = generate.ErrInvalidToken
)

// Sampling Configuration

// SamplingConfig configures the sampling strategy for text generation.
//
// Parameters:
//   - Temperature: Upper bound of the selection draw (0 or less = greedy)
//   - TopK: Limits sampling to top K tokens (0 = disabled)
//   - RepeatPenalty: Penalty for repeated tokens (1.0 = no penalty)
//   - RepeatWindow: Number of tokens to consider for penalties (0 = all)
//   - Seed: Random seed for reproducibility (-1 = random)
type SamplingConfig = generate.SamplingConfig

// DefaultSamplingConfig returns sensible defaults for text generation.
//
// Defaults:
//   - Temperature: 1.0
//   - TopK: 0 (disabled)
//   - RepeatPenalty: 1.0 (no penalty)
//   - Seed: -1 (random)
func DefaultSamplingConfig() SamplingConfig {
	return generate.DefaultSamplingConfig()
}

// Sampler

// Sampler samples tokens from logits using configurable strategies.
type Sampler = generate.Sampler

// NewSampler creates a new sampler with the given configuration.
//
// Example:
//
//	sampler := generate.NewSampler(generate.SamplingConfig{Temperature: 0.7, Seed: 42})
//	token := sampler.Sample(logits, nil)
func NewSampler(config SamplingConfig) *Sampler {
	return generate.NewSampler(config)
}

// Select picks a token id from a logits row by a cumulative scan over
// probability-ranked ids with a draw from [0, temperature).
func Select(rng *rand.Rand, logits []float32, temperature float32) int {
	return generate.Select(rng, logits, temperature)
}

// Context Window

// Window is the fixed-length context of the most recent tokens.
type Window = generate.Window

// NewWindow creates an empty window of the given length.
func NewWindow(length int) *Window {
	return generate.NewWindow(length)
}

// Generation

// GenerateConfig configures text generation.
//
// Parameters:
//   - MaxTokens: Number of tokens to generate after the prompt
//   - StopTokens: Token IDs that end generation once emitted
//   - Sampling: Sampling configuration
//
//nolint:revive // GenerateConfig is clearer than Config
type GenerateConfig = generate.GenerateConfig

// DefaultGenerateConfig returns sensible defaults for generation.
//
// Defaults:
//   - MaxTokens: 256
//   - Sampling: DefaultSamplingConfig()
func DefaultGenerateConfig() GenerateConfig {
	return generate.DefaultGenerateConfig()
}

// Result is a single result from streaming generation.
type Result = generate.Result

// Stop reasons reported in Result.
const (
	ReasonMaxTokens = generate.ReasonMaxTokens
	ReasonStopToken = generate.ReasonStopToken
)

// Model predicts next-token logits over a fixed-length context.
type Model = generate.Model

// Generator runs autoregressive decoding over a Model.
type Generator = generate.Generator

// NewGenerator creates a generator.
//
// Example:
//
//	gen := generate.NewGenerator(model, generate.DefaultSamplingConfig())
//	for res := range gen.Stream(ctx, prompt, generate.DefaultGenerateConfig()) {
//	    ...
//	}
func NewGenerator(model Model, sampling SamplingConfig) *Generator {
	return generate.NewGenerator(model, sampling)
}
