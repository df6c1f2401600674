package gpt

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/gptgraph/internal/generate"
	"github.com/born-ml/gptgraph/internal/graph"
	"github.com/born-ml/gptgraph/internal/optim"
)

// Re-exported generation errors.
var (
	ErrEmptyPrompt  = generate.ErrEmptyPrompt
	ErrInvalidToken = generate.ErrInvalidToken
)

// Model is a built transformer together with its optimizer. A Model is not
// safe for concurrent use.
type Model struct {
	cfg   Config
	graph *graph.Graph
	topo  *Topology
	opt   optim.Optimizer
}

// New builds a model for cfg with parameters drawn from rng. opt is used by
// training; a checkpoint load may replace it.
func New(rng *rand.Rand, cfg Config, opt optim.Optimizer) (*Model, error) {
	g, topo, err := Build(rng, cfg)
	if err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, graph: g, topo: topo, opt: opt}, nil
}

// Config returns the model hyperparameters.
func (m *Model) Config() Config {
	return m.cfg
}

// Graph returns the template graph.
func (m *Model) Graph() *graph.Graph {
	return m.graph
}

// Topology returns the named nodes of the template graph.
func (m *Model) Topology() *Topology {
	return m.topo
}

// Optimizer returns the optimizer driving training.
func (m *Model) Optimizer() optim.Optimizer {
	return m.opt
}

// NumParams returns the number of learnable scalars.
func (m *Model) NumParams() int {
	total := 0
	for _, id := range m.topo.Params {
		n, err := m.graph.ElementCount(id)
		if err != nil {
			// Params only holds ids allocated by Build on this graph.
			panic(fmt.Sprintf("gpt: parameter %d missing from model graph: %v", id, err))
		}
		total += n
	}
	return total
}

// positions returns the position ids 0..T-1.
func (m *Model) positions() []int {
	pos := make([]int, m.cfg.ContextLength)
	for i := range pos {
		pos[i] = i
	}
	return pos
}

// Generate extends prompt by config.MaxTokens tokens using the template
// graph with dropout disabled. It returns the prompt followed by the
// generated ids; callback receives the prompt tokens and then each new token.
// A prompt longer than the context length keeps only its last tokens in
// the window.
func (m *Model) Generate(prompt []int, config generate.GenerateConfig, callback func(id int)) ([]int, error) {
	if err := m.graph.Bind(m.topo.PosInput, m.topo.PosEmbedding, m.positions()); err != nil {
		return nil, fmt.Errorf("bind positions: %w", err)
	}
	return generate.NewGenerator(inference{m}, config.Sampling).Generate(prompt, config, callback)
}

// inference adapts a Model with bound positions to generate.Model.
type inference struct {
	m *Model
}

func (in inference) ContextLength() int { return in.m.cfg.ContextLength }
func (in inference) VocabSize() int     { return in.m.cfg.VocabSize }

func (in inference) Logits(window []int, pos int) ([]float32, error) {
	m := in.m
	if err := m.graph.Bind(m.topo.TokenInput, m.topo.TokenEmbedding, window); err != nil {
		return nil, fmt.Errorf("bind tokens: %w", err)
	}
	if err := m.graph.Forward(false); err != nil {
		return nil, err
	}
	logits, err := m.graph.Value(m.topo.Output)
	if err != nil {
		return nil, err
	}
	return logits.Row(pos)
}
