package gpt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/gptgraph/internal/graph"
	"github.com/born-ml/gptgraph/internal/tensor"
)

// Topology names the nodes of a built model.
type Topology struct {
	TokenEmbedding graph.NodeID // [V, E]
	PosEmbedding   graph.NodeID // [T, E]
	TokenInput     graph.NodeID // [T, E], bound from TokenEmbedding
	PosInput       graph.NodeID // [T, E], bound from PosEmbedding
	Output         graph.NodeID // [T, V] logits

	// Params lists every learnable node in construction order.
	Params []graph.NodeID

	// Attention holds the attention weights of every head, layer-major.
	Attention []graph.NodeID
}

// builder accumulates nodes and keeps the first construction error.
type builder struct {
	g      *graph.Graph
	rng    *rand.Rand
	params []graph.NodeID
	err    error
}

func (b *builder) param(shape ...int) graph.NodeID {
	id := b.g.AllocRandom(b.rng, tensor.Shape(shape))
	b.params = append(b.params, id)
	return id
}

func (b *builder) apply(op graph.Operator, inputs ...graph.NodeID) graph.NodeID {
	if b.err != nil {
		return 0
	}
	id, err := b.g.Apply(op, inputs...)
	if err != nil {
		b.err = err
	}
	return id
}

// layerNorm allocates gamma and beta for a normalization over width e.
func (b *builder) layerNorm(x graph.NodeID, e int) graph.NodeID {
	gamma := b.param(e)
	beta := b.param(e)
	return b.apply(graph.LayerNormOp{}, x, gamma, beta)
}

// linear allocates an [in, out] weight and an [out] bias.
func (b *builder) linear(x graph.NodeID, in, out int) graph.NodeID {
	w := b.param(in, out)
	bias := b.param(out)
	return b.apply(graph.AddOp{}, b.apply(graph.MatMulOp{}, x, w), bias)
}

// Build constructs the model graph for cfg, drawing initial parameter values
// uniformly from [-1, 1) with rng.
func Build(rng *rand.Rand, cfg Config) (*graph.Graph, *Topology, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	e, t := cfg.EmbeddingDegree, cfg.ContextLength
	b := &builder{g: graph.New(), rng: rng}
	topo := &Topology{}

	topo.TokenEmbedding = b.param(cfg.VocabSize, e)
	topo.PosEmbedding = b.param(t, e)
	topo.TokenInput = b.g.Alloc(tensor.Zeros(tensor.Shape{t, e}))
	topo.PosInput = b.g.Alloc(tensor.Zeros(tensor.Shape{t, e}))
	x := b.apply(graph.AddOp{}, topo.TokenInput, topo.PosInput)

	mask := causalMask(t)
	scale := float32(math.Pow(float64(cfg.HeadSize), -0.5))
	negInf := float32(math.Inf(-1))

	for range cfg.NumLayers {
		norm := b.layerNorm(x, e)

		heads := make([]graph.NodeID, cfg.NumHeads)
		for h := range heads {
			wk := b.param(e, cfg.HeadSize)
			wq := b.param(e, cfg.HeadSize)
			wv := b.param(e, cfg.HeadSize)
			k := b.apply(graph.MatMulOp{}, norm, wk)
			q := b.apply(graph.MatMulOp{}, norm, wq)
			v := b.apply(graph.MatMulOp{}, norm, wv)

			scores := b.apply(graph.MatMulOp{}, q, b.apply(graph.TransposeOp{}, k))
			scores = b.apply(graph.CoeffOp{Factor: scale}, scores)
			scores = b.apply(graph.MaskOp{Mask: mask, Value: negInf}, scores)
			weights := b.apply(graph.SoftmaxOp{}, scores)
			topo.Attention = append(topo.Attention, weights)

			weights = b.apply(graph.DropoutOp{P: cfg.Dropout}, weights)
			heads[h] = b.apply(graph.MatMulOp{}, weights, v)
		}

		cat := b.apply(graph.CatOp{}, heads...)
		proj := b.linear(cat, cfg.NumHeads*cfg.HeadSize, e)
		proj = b.apply(graph.DropoutOp{P: cfg.Dropout}, proj)
		attended := b.layerNorm(b.apply(graph.AddOp{}, norm, proj), e)

		ff := b.apply(graph.ReLUOp{}, b.linear(attended, e, 4*e))
		for range cfg.NumHiddens {
			ff = b.apply(graph.ReLUOp{}, b.linear(ff, 4*e, 4*e))
		}
		ff = b.linear(ff, 4*e, e)

		x = b.apply(graph.AddOp{}, attended, ff)
	}

	topo.Output = b.linear(b.layerNorm(x, e), e, cfg.VocabSize)
	if b.err != nil {
		return nil, nil, fmt.Errorf("build model: %w", b.err)
	}
	topo.Params = b.params
	return b.g, topo, nil
}

// causalMask marks, for a [t, t] score matrix, every entry whose key
// position j lies after the query position i.
func causalMask(t int) []bool {
	mask := make([]bool, t*t)
	for i := range t {
		for j := i + 1; j < t; j++ {
			mask[i*t+j] = true
		}
	}
	return mask
}
