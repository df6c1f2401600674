// Package gpt builds and trains a decoder-only transformer language model on
// top of the graph package.
//
// The model is a template graph: parameters are leaves, the token and
// position inputs are leaves overwritten by embedding binds, and the output
// node holds one row of vocabulary logits per context position. Training
// clones the template once per sample, reconciles the embedding gradients
// that the bind step hides from autodiff, averages gradients across samples
// and applies one optimizer update.
package gpt

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for hyperparameters that cannot build a model.
var ErrInvalidConfig = errors.New("invalid model config")

// Config holds the model hyperparameters.
type Config struct {
	VocabSize       int     `json:"vocab_size"`       // V
	EmbeddingDegree int     `json:"embedding_degree"` // E
	ContextLength   int     `json:"context_length"`   // T
	NumLayers       int     `json:"num_layers"`       // L
	NumHeads        int     `json:"num_heads"`        // H
	HeadSize        int     `json:"head_size"`        // S
	NumHiddens      int     `json:"num_hiddens"`      // Extra 4E->4E feed-forward stages
	Dropout         float32 `json:"dropout"`
}

// DefaultConfig returns a small character-level model. VocabSize must still
// be set from the tokenizer.
func DefaultConfig() Config {
	return Config{
		EmbeddingDegree: 64,
		ContextLength:   64,
		NumLayers:       4,
		NumHeads:        4,
		HeadSize:        16,
		NumHiddens:      0,
		Dropout:         0,
	}
}

// Validate checks that the config describes a buildable model.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"vocab_size", c.VocabSize},
		{"embedding_degree", c.EmbeddingDegree},
		{"context_length", c.ContextLength},
		{"num_layers", c.NumLayers},
		{"num_heads", c.NumHeads},
		{"head_size", c.HeadSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.NumHiddens < 0 {
		return fmt.Errorf("%w: num_hiddens must not be negative, got %d", ErrInvalidConfig, c.NumHiddens)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1), got %g", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// NumParams returns the number of learnable scalars a model built from c
// holds.
func (c Config) NumParams() int {
	v, e, t := c.VocabSize, c.EmbeddingDegree, c.ContextLength
	h, s, f := c.NumHeads, c.HeadSize, c.NumHiddens

	embeddings := v*e + t*e
	attention := 2*e + h*3*e*s + h*s*e + e
	feedForward := 2*e + e*4*e + 4*e + f*(16*e*e+4*e) + 4*e*e + e
	head := 2*e + e*v + v
	return embeddings + c.NumLayers*(attention+feedForward) + head
}
