// Package gpt provides the public API for building, training and sampling
// GPT-style decoder-only transformers.
//
// This package wraps the internal gpt, corpus and parallel packages.
//
// Example:
//
//	data, err := gpt.LoadCorpus("input.txt", tok)
//	cfg := gpt.DefaultConfig()
//	cfg.VocabSize = tok.VocabSize()
//
//	model, err := gpt.New(rng, cfg, optim.NewAdam(optim.AdamConfig{}))
//	tc := gpt.DefaultTrainConfig()
//	err = model.Train(ctx, data, tc)
//
//	out, err := model.Generate(prompt, generate.DefaultGenerateConfig(), nil)
package gpt

import (
	"math/rand"

	"github.com/born-ml/gptgraph/internal/corpus"
	"github.com/born-ml/gptgraph/internal/gpt"
	"github.com/born-ml/gptgraph/internal/parallel"
	"github.com/born-ml/gptgraph/optim"
	"github.com/born-ml/gptgraph/tensor"
	"github.com/born-ml/gptgraph/tokenizer"
)

// Errors.
var (
	ErrInvalidConfig = gpt.ErrInvalidConfig
	ErrCheckpoint    = gpt.ErrCheckpoint
	ErrNonFiniteLoss = gpt.ErrNonFiniteLoss
	ErrNoOptimizer   = gpt.ErrNoOptimizer
	ErrEmptyPrompt   = gpt.ErrEmptyPrompt
	ErrInvalidToken  = gpt.ErrInvalidToken
	ErrEmptyCorpus   = corpus.ErrEmpty
)

// ConfigFile is the name of the hyperparameter file in a checkpoint
// directory.
const ConfigFile = gpt.ConfigFile

// Model

// Config holds the transformer hyperparameters.
type Config = gpt.Config

// Model is a built transformer together with its optimizer.
type Model = gpt.Model

// Topology names the interesting nodes of a built graph.
type Topology = gpt.Topology

// DefaultConfig returns the default hyperparameters with VocabSize unset.
func DefaultConfig() Config {
	return gpt.DefaultConfig()
}

// New builds a model for cfg with parameters drawn from rng.
func New(rng *rand.Rand, cfg Config, opt optim.Optimizer) (*Model, error) {
	return gpt.New(rng, cfg, opt)
}

// ReadConfig reads the hyperparameters stored in a checkpoint directory.
func ReadConfig(dir string) (Config, error) {
	return gpt.ReadConfig(dir)
}

// Unembed scatters a gradient over embedded input rows back onto a table
// with the given number of rows, averaging rows that share an id.
func Unembed(ids []int, inputGrad *tensor.Tensor, rows int) (*tensor.Tensor, error) {
	return gpt.Unembed(ids, inputGrad, rows)
}

// Training

// TrainConfig configures a training run.
type TrainConfig = gpt.TrainConfig

// StepResult reports one optimizer step.
type StepResult = gpt.StepResult

// ParallelConfig controls how a training step fans out over workers.
type ParallelConfig = parallel.Config

// DefaultTrainConfig returns the settings used by the CLI.
func DefaultTrainConfig() TrainConfig {
	return gpt.DefaultTrainConfig()
}

// DefaultParallelConfig returns one worker per CPU.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// Corpus

// Corpus is a token-id sequence that training windows are sampled from.
type Corpus = corpus.Corpus

// NewCorpus wraps a copy of ids.
func NewCorpus(ids []int) (*Corpus, error) {
	return corpus.New(ids)
}

// LoadCorpus reads and encodes a text file.
func LoadCorpus(path string, tok tokenizer.Tokenizer) (*Corpus, error) {
	return corpus.Load(path, tok)
}
