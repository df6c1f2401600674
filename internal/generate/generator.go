package generate

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Common errors.
var (
	ErrEmptyPrompt  = errors.New("prompt is empty")
	ErrInvalidToken = errors.New("token id outside the vocabulary")
)

// Stop reasons reported in Result.
const (
	ReasonMaxTokens = "max_tokens"
	ReasonStopToken = "stop_token"
)

// GenerateConfig configures text generation.
//
//nolint:revive // GenerateConfig is clearer than Config
type GenerateConfig struct {
	// MaxTokens is the number of tokens to generate after the prompt.
	MaxTokens int

	// StopTokens are token IDs that end generation once emitted.
	StopTokens []int

	// Sampling is the sampling configuration.
	Sampling SamplingConfig
}

// DefaultGenerateConfig returns sensible defaults for generation.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		MaxTokens: 256,
		Sampling:  DefaultSamplingConfig(),
	}
}

// Result is a single item of streaming generation. Prompt tokens are
// streamed first with Prompt set.
type Result struct {
	TokenID int
	Prompt  bool
	Done    bool
	Reason  string // Set with Done
	Err     error
}

// Model predicts next-token logits over a fixed-length context.
type Model interface {
	// ContextLength returns the window length the model attends over.
	ContextLength() int

	// VocabSize returns the number of logits per position.
	VocabSize() int

	// Logits evaluates the model on window (ContextLength ids, zero padded)
	// and returns the logits row at position pos. The returned slice is
	// only valid until the next call.
	Logits(window []int, pos int) ([]float32, error)
}

// Generator runs autoregressive decoding over a Model.
type Generator struct {
	model   Model
	sampler *Sampler
}

// NewGenerator creates a generator sampling with the given configuration.
func NewGenerator(model Model, sampling SamplingConfig) *Generator {
	return &Generator{model: model, sampler: NewSampler(sampling)}
}

// Generate extends prompt by config.MaxTokens tokens and returns the prompt
// followed by the generated ids. callback, when non-nil, receives every
// prompt token and then every generated token as it is produced.
func (g *Generator) Generate(prompt []int, config GenerateConfig, callback func(id int)) ([]int, error) {
	var out []int
	err := g.run(prompt, config, func(res Result) bool {
		out = append(out, res.TokenID)
		if callback != nil {
			callback(res.TokenID)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream generates in a goroutine and delivers results on the returned
// channel, which is closed when generation ends. Canceling ctx stops
// generation after the current token.
func (g *Generator) Stream(ctx context.Context, prompt []int, config GenerateConfig) <-chan Result {
	ch := make(chan Result, 1)

	go func() {
		defer close(ch)

		err := g.run(prompt, config, func(res Result) bool {
			select {
			case ch <- res:
				return !res.Done
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			select {
			case ch <- Result{Done: true, Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// run is the core generation loop. emit returns false to stop early.
func (g *Generator) run(prompt []int, config GenerateConfig, emit func(Result) bool) error {
	if len(prompt) == 0 {
		return ErrEmptyPrompt
	}
	vocab := g.model.VocabSize()
	for i, id := range prompt {
		if id < 0 || id >= vocab {
			return fmt.Errorf("%w: prompt[%d] = %d (vocabulary size %d)", ErrInvalidToken, i, id, vocab)
		}
	}

	window := NewWindow(g.model.ContextLength())
	for _, id := range prompt {
		window.Push(id)
	}
	for _, id := range prompt {
		if !emit(Result{TokenID: id, Prompt: true}) {
			return nil
		}
	}

	history := slices.Clone(prompt) // For repetition penalty
	var ctx []int
	for i := range config.MaxTokens {
		ctx = window.Tokens(ctx)
		logits, err := g.model.Logits(ctx, window.Len()-1)
		if err != nil {
			return fmt.Errorf("generate token %d: %w", i, err)
		}

		next := g.sampler.Sample(logits, history)
		history = append(history, next)
		window.Push(next)

		res := Result{TokenID: next}
		switch {
		case slices.Contains(config.StopTokens, next):
			res.Done, res.Reason = true, ReasonStopToken
		case i == config.MaxTokens-1:
			res.Done, res.Reason = true, ReasonMaxTokens
		}
		if !emit(res) || res.Done {
			return nil
		}
	}
	return nil
}
