package gpt

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/gptgraph/internal/corpus"
	"github.com/born-ml/gptgraph/internal/generate"
	"github.com/born-ml/gptgraph/internal/graph"
	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/parallel"
	"github.com/born-ml/gptgraph/internal/serialization"
	"github.com/born-ml/gptgraph/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyConfig() Config {
	return Config{
		VocabSize:       4,
		EmbeddingDegree: 4,
		ContextLength:   4,
		NumLayers:       1,
		NumHeads:        1,
		HeadSize:        2,
	}
}

func newModel(t *testing.T, seed int64, cfg Config) *Model {
	t.Helper()
	m, err := New(rand.New(rand.NewSource(seed)), cfg, optim.NewAdam(optim.AdamConfig{}))
	require.NoError(t, err)
	return m
}

func cyclicCorpus(t *testing.T, n, vocab int) *corpus.Corpus {
	t.Helper()
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i % vocab
	}
	c, err := corpus.New(ids)
	require.NoError(t, err)
	return c
}

func trainConfig(seed int64) TrainConfig {
	return TrainConfig{
		Steps:     1,
		BatchSize: 3,
		Schedule:  optim.Constant(0.01),
		Seed:      seed,
	}
}

func snapshot(t *testing.T, m *Model) []*tensor.Tensor {
	t.Helper()
	out := make([]*tensor.Tensor, len(m.topo.Params))
	for i, id := range m.topo.Params {
		v, err := m.graph.Value(id)
		require.NoError(t, err)
		out[i] = v.Clone()
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero vocab", func(c *Config) { c.VocabSize = 0 }},
		{"negative heads", func(c *Config) { c.NumHeads = -1 }},
		{"negative hiddens", func(c *Config) { c.NumHiddens = -1 }},
		{"dropout one", func(c *Config) { c.Dropout = 1 }},
		{"negative dropout", func(c *Config) { c.Dropout = -0.1 }},
	}
	require.NoError(t, tinyConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tinyConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, _, err := Build(rand.New(rand.NewSource(1)), cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestBuild_ParamCount(t *testing.T) {
	assert.Equal(t, 260, tinyConfig().NumParams())

	configs := []Config{
		tinyConfig(),
		{VocabSize: 7, EmbeddingDegree: 6, ContextLength: 5, NumLayers: 2, NumHeads: 3, HeadSize: 2, NumHiddens: 2, Dropout: 0.1},
	}
	for _, cfg := range configs {
		m := newModel(t, 1, cfg)
		assert.Equal(t, cfg.NumParams(), m.NumParams())

		// Every parameter is a distinct leaf.
		seen := make(map[graph.NodeID]bool)
		for _, id := range m.topo.Params {
			assert.False(t, seen[id])
			seen[id] = true
			require.NoError(t, m.graph.SetValue(id, mustValue(t, m.graph, id)))
		}
		assert.Len(t, m.topo.Attention, cfg.NumLayers*cfg.NumHeads)
	}
}

func TestNumParams_PanicsOnForeignID(t *testing.T) {
	m := newModel(t, 1, tinyConfig())
	broken := &Model{cfg: m.cfg, graph: m.graph, topo: &Topology{Params: []graph.NodeID{graph.NodeID(m.graph.Len())}}}
	assert.Panics(t, func() { broken.NumParams() })
}

func TestBuild_CausalAttention(t *testing.T) {
	cfg := tinyConfig()
	cfg.NumLayers, cfg.NumHeads, cfg.ContextLength = 2, 2, 5
	m := newModel(t, 3, cfg)

	require.NoError(t, m.graph.Bind(m.topo.TokenInput, m.topo.TokenEmbedding, []int{3, 1, 0, 2, 2}))
	require.NoError(t, m.graph.Bind(m.topo.PosInput, m.topo.PosEmbedding, m.positions()))
	require.NoError(t, m.graph.Forward(false))

	for _, id := range m.topo.Attention {
		w := mustValue(t, m.graph, id)
		for i := range cfg.ContextLength {
			row, err := w.Row(i)
			require.NoError(t, err)
			var sum float32
			for j, p := range row {
				if j > i {
					assert.Equal(t, float32(0), p, "position %d attends to future %d", i, j)
				}
				sum += p
			}
			assert.InDelta(t, 1, sum, 1e-5)
		}
	}
}

func TestCausalMask_FollowsContextLength(t *testing.T) {
	assert.Equal(t, []bool{false, true, false, false}, causalMask(2))
	assert.Equal(t, []bool{
		false, true, true,
		false, false, true,
		false, false, false,
	}, causalMask(3))
}

func TestUnembed(t *testing.T) {
	grad, err := tensor.New(tensor.Shape{4, 2}, []float32{
		1, 2,
		3, 4,
		5, 6,
		7, 8,
	})
	require.NoError(t, err)

	out, err := Unembed([]int{1, 0, 1, 3}, grad, 5)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 2}, out.Shape())
	assert.Equal(t, []float32{
		3, 4, // id 0
		3, 4, // id 1: mean of rows 0 and 2
		0, 0, // unused
		7, 8,
		0, 0, // unused
	}, out.Data())

	_, err = Unembed([]int{0, 1}, grad, 5)
	assert.ErrorIs(t, err, tensor.ErrShape)
	_, err = Unembed([]int{0, 1, 2, 5}, grad, 5)
	assert.Error(t, err)
}

func TestUnembed_RepeatedIDDoesNotScale(t *testing.T) {
	grad := tensor.Full(tensor.Shape{8, 3}, 0.5)
	ids := make([]int, 8)

	out, err := Unembed(ids, grad, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0, 0, 0}, out.Data())
}

func TestAverageGradients(t *testing.T) {
	template := graph.New()
	a := template.Alloc(tensor.Zeros(tensor.Shape{2}))
	b := template.Alloc(tensor.Zeros(tensor.Shape{1, 2}))

	grads := [][]float32{{1, 2}, {3, 6}, {5, 1}}
	workers := make([]*graph.Graph, len(grads))
	for i, g := range grads {
		w := template.Clone()
		require.NoError(t, w.SetGradient(a, tensor.Full(tensor.Shape{2}, float32(i))))
		bg, err := tensor.New(tensor.Shape{1, 2}, g)
		require.NoError(t, err)
		require.NoError(t, w.SetGradient(b, bg))
		workers[i] = w
	}

	require.NoError(t, averageGradients(template, []graph.NodeID{a, b}, workers, parallel.DefaultConfig()))

	ga, err := template.Gradient(a)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, ga.Data())
	gb, err := template.Gradient(b)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{3, 3}, gb.Data(), 1e-6)
}

func TestTrainStep_UpdatesParameters(t *testing.T) {
	m := newModel(t, 42, tinyConfig())
	data := cyclicCorpus(t, 16, 4)
	before := snapshot(t, m)

	res, err := m.TrainStep(rand.New(rand.NewSource(1)), data, trainConfig(1))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Step)
	assert.False(t, math.IsNaN(float64(res.Loss)))
	assert.False(t, math.IsInf(float64(res.Loss), 0))
	assert.GreaterOrEqual(t, res.Loss, float32(0))

	after := snapshot(t, m)
	for i, id := range m.topo.Params {
		grad, err := m.graph.Gradient(id)
		require.NoError(t, err)
		if grad.IsZero() {
			assert.True(t, after[i].Equal(before[i]), "param %d has no gradient but changed", id)
			continue
		}
		assert.False(t, after[i].Equal(before[i]), "param %d did not change", id)
	}
}

func TestTrainStep_WritesReconciledEmbeddingGradients(t *testing.T) {
	m := newModel(t, 42, tinyConfig())
	data := cyclicCorpus(t, 16, 4)
	tc := trainConfig(1)
	cfg := m.cfg

	// Replay the per-sample draws of TrainStep and reconcile the input
	// gradients independently.
	seeds := rand.New(rand.NewSource(9))
	tokenGrads := make([]*tensor.Tensor, tc.BatchSize)
	posGrads := make([]*tensor.Tensor, tc.BatchSize)
	for i := range tc.BatchSize {
		seed := seeds.Int63()
		s, err := m.runSample(data, seed)
		require.NoError(t, err)

		rng := rand.New(rand.NewSource(seed))
		rng.Int63() // dropout seed
		xs, _ := data.Sample(rng, cfg.ContextLength)

		in, err := s.graph.Gradient(m.topo.TokenInput)
		require.NoError(t, err)
		tokenGrads[i], err = Unembed(xs, in, cfg.VocabSize)
		require.NoError(t, err)

		in, err = s.graph.Gradient(m.topo.PosInput)
		require.NoError(t, err)
		posGrads[i], err = Unembed(m.positions(), in, cfg.ContextLength)
		require.NoError(t, err)
	}
	wantToken, err := tensor.Mean(tokenGrads)
	require.NoError(t, err)
	wantPos, err := tensor.Mean(posGrads)
	require.NoError(t, err)

	tokenBefore := mustValue(t, m.graph, m.topo.TokenEmbedding).Clone()
	posBefore := mustValue(t, m.graph, m.topo.PosEmbedding).Clone()

	_, err = m.TrainStep(rand.New(rand.NewSource(9)), data, tc)
	require.NoError(t, err)

	tables := []struct {
		name   string
		id     graph.NodeID
		want   *tensor.Tensor
		before *tensor.Tensor
	}{
		{"token", m.topo.TokenEmbedding, wantToken, tokenBefore},
		{"position", m.topo.PosEmbedding, wantPos, posBefore},
	}
	for _, tt := range tables {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.graph.Gradient(tt.id)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want.Data(), got.Data(), 1e-6)

			// Every row is bound by every sample of a cyclic corpus.
			rows, _ := got.Shape().Matrix()
			for r := range rows {
				row, err := got.Row(r)
				require.NoError(t, err)
				assert.True(t, hasNonZero(row), "row %d received no gradient", r)
			}

			assert.False(t, mustValue(t, m.graph, tt.id).Equal(tt.before), "table was not updated")
		})
	}
}

func hasNonZero(xs []float32) bool {
	for _, v := range xs {
		if v != 0 {
			return true
		}
	}
	return false
}

func TestTrainStep_ParallelMatchesSequential(t *testing.T) {
	data := cyclicCorpus(t, 16, 4)
	cfg := tinyConfig()
	cfg.Dropout = 0.2

	run := func(p parallel.Config) []*tensor.Tensor {
		m := newModel(t, 7, cfg)
		tc := trainConfig(5)
		tc.Parallel = p
		rng := rand.New(rand.NewSource(5))
		for range 3 {
			_, err := m.TrainStep(rng, data, tc)
			require.NoError(t, err)
		}
		return snapshot(t, m)
	}

	seq := run(parallel.Config{})
	par := run(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})
	for i := range seq {
		assert.True(t, seq[i].Equal(par[i]), "param %d", i)
	}
}

func TestTrainStep_FailureLeavesModelUntouched(t *testing.T) {
	m := newModel(t, 1, tinyConfig())
	bad, err := corpus.New([]int{0, 1, 9, 2})
	require.NoError(t, err)
	before := snapshot(t, m)

	_, err = m.TrainStep(rand.New(rand.NewSource(1)), bad, trainConfig(1))
	require.Error(t, err)
	assert.Equal(t, 0, m.Optimizer().StepNum())
	after := snapshot(t, m)
	for i := range before {
		assert.True(t, before[i].Equal(after[i]))
	}

	err = m.Train(context.Background(), bad, trainConfig(1))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTrain_LossDecreases(t *testing.T) {
	m := newModel(t, 11, tinyConfig())
	data := cyclicCorpus(t, 16, 4)

	var losses []float32
	tc := trainConfig(3)
	tc.Steps = 60
	tc.BatchSize = 4
	tc.OnStep = func(r StepResult) { losses = append(losses, r.Loss) }
	require.NoError(t, m.Train(context.Background(), data, tc))

	require.Len(t, losses, 60)
	first := (losses[0] + losses[1] + losses[2]) / 3
	last := (losses[57] + losses[58] + losses[59]) / 3
	assert.Less(t, last, first)
}

func TestTrain_Canceled(t *testing.T) {
	m := newModel(t, 1, tinyConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Train(ctx, cyclicCorpus(t, 8, 4), trainConfig(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpt")
	data := cyclicCorpus(t, 16, 4)

	a := newModel(t, 1, tinyConfig())
	tc := trainConfig(2)
	tc.Steps = 3
	tc.CheckpointDir = dir
	tc.CheckpointEvery = 2
	require.NoError(t, a.Train(context.Background(), data, tc))

	assert.FileExists(t, filepath.Join(dir, ConfigFile))
	assert.FileExists(t, filepath.Join(dir, "optimizer.bin"))

	b, err := New(rand.New(rand.NewSource(99)), tinyConfig(), optim.NewSGD(optim.SGDConfig{}))
	require.NoError(t, err)
	loaded, err := b.Load(dir)
	require.NoError(t, err)
	require.True(t, loaded)

	wantParams, gotParams := snapshot(t, a), snapshot(t, b)
	for i := range wantParams {
		assert.True(t, wantParams[i].Equal(gotParams[i]), "param %d", i)
	}

	want, got := a.Optimizer().State(), b.Optimizer().State()
	assert.Equal(t, "adam", got.Type)
	assert.Equal(t, 3, got.Step)
	assert.Equal(t, want.Config, got.Config)
	require.Len(t, got.Slots, len(want.Slots))
	for name, slot := range want.Slots {
		assert.True(t, got.Slots[name].Equal(slot), name)
	}

	cfg, err := ReadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, tinyConfig(), cfg)
}

func TestCheckpoint_Load(t *testing.T) {
	m := newModel(t, 1, tinyConfig())

	loaded, err := m.Load(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.False(t, loaded)

	dir := t.TempDir()
	require.NoError(t, m.Save(dir))

	other := tinyConfig()
	other.NumHiddens = 1
	_, err = newModel(t, 1, other).Load(dir)
	assert.ErrorIs(t, err, ErrCheckpoint)

	require.NoError(t, os.Remove(filepath.Join(dir, "tensor_0.bin")))
	_, err = newModel(t, 1, tinyConfig()).Load(dir)
	assert.ErrorIs(t, err, ErrCheckpoint)

	noOpt, err := New(rand.New(rand.NewSource(1)), tinyConfig(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, noOpt.Save(t.TempDir()), ErrNoOptimizer)
}

func TestCheckpoint_LoadCorruptOptimizerLeavesModelUntouched(t *testing.T) {
	dir := t.TempDir()
	saved := newModel(t, 1, tinyConfig())
	_, err := saved.TrainStep(rand.New(rand.NewSource(1)), cyclicCorpus(t, 16, 4), trainConfig(1))
	require.NoError(t, err)
	require.NoError(t, saved.Save(dir))

	path := filepath.Join(dir, "optimizer.bin")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-serialization.ChecksumSize-1] ^= 0xff // last payload byte
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	m := newModel(t, 2, tinyConfig())
	opt := m.Optimizer()
	before := snapshot(t, m)

	loaded, err := m.Load(dir)
	assert.ErrorIs(t, err, ErrCheckpoint)
	assert.False(t, loaded)
	assert.Same(t, opt, m.Optimizer())
	after := snapshot(t, m)
	for i := range before {
		assert.True(t, before[i].Equal(after[i]), "param %d was overwritten", m.topo.Params[i])
	}
}

func TestGenerate(t *testing.T) {
	m := newModel(t, 5, tinyConfig())
	cfg := generate.GenerateConfig{MaxTokens: 10, Sampling: generate.SamplingConfig{Temperature: 1, Seed: 3}}

	var streamed []int
	out, err := m.Generate([]int{0, 1}, cfg, func(id int) { streamed = append(streamed, id) })
	require.NoError(t, err)
	require.Len(t, out, 12)
	assert.Equal(t, []int{0, 1}, out[:2])
	assert.Equal(t, out, streamed)
	for _, id := range out {
		assert.GreaterOrEqual(t, id, 0)
		assert.Less(t, id, 4)
	}

	again, err := m.Generate([]int{0, 1}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, out, again, "inference is deterministic for a fixed seed")

	_, err = m.Generate(nil, cfg, nil)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	_, err = m.Generate([]int{4}, cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerate_MatchesFullForward(t *testing.T) {
	m := newModel(t, 8, tinyConfig())
	cfg := generate.GenerateConfig{MaxTokens: 1, Sampling: generate.SamplingConfig{Temperature: 0}}

	out, err := m.Generate([]int{2, 3}, cfg, nil)
	require.NoError(t, err)

	// The greedy choice is the argmax of the logits row of the last prompt
	// token with the rest of the window zero padded.
	logits, err := inference{m}.Logits([]int{2, 3, 0, 0}, 1)
	require.NoError(t, err)
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	assert.Equal(t, best, out[2])
}

func mustValue(t *testing.T, g *graph.Graph, id graph.NodeID) *tensor.Tensor {
	t.Helper()
	v, err := g.Value(id)
	require.NoError(t, err)
	return v
}
