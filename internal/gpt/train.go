package gpt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"k8s.io/klog/v2"

	"github.com/born-ml/gptgraph/internal/corpus"
	"github.com/born-ml/gptgraph/internal/graph"
	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/parallel"
	"github.com/born-ml/gptgraph/internal/tensor"
)

// Training errors.
var (
	ErrNonFiniteLoss = errors.New("non-finite loss")
	ErrNoOptimizer   = errors.New("model has no optimizer")
)

// TrainConfig configures a training run.
type TrainConfig struct {
	Steps     int
	BatchSize int // Samples per step, each on its own graph clone

	// Schedule maps the optimizer step counter to a learning rate.
	Schedule optim.Schedule

	// CheckpointDir receives a checkpoint every CheckpointEvery steps and
	// after the last step. Empty disables checkpoints.
	CheckpointDir   string
	CheckpointEvery int

	// Seed makes sampling and dropout reproducible. 0 seeds from the clock.
	Seed int64

	// Parallel controls the worker fan-out. The zero value runs samples
	// sequentially.
	Parallel parallel.Config

	// OnStep, when set, is called after every step.
	OnStep func(StepResult)
}

// DefaultTrainConfig returns the settings used by the CLI.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Steps:           1000,
		BatchSize:       32,
		Schedule:        optim.WarmupCosine(3e-5, 3e-4, 100, 50000),
		CheckpointDir:   "train_data",
		CheckpointEvery: 50,
		Parallel:        parallel.DefaultConfig(),
	}
}

// Validate checks the run settings.
func (c TrainConfig) Validate() error {
	switch {
	case c.Steps < 0:
		return fmt.Errorf("%w: steps must not be negative", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.Schedule == nil:
		return fmt.Errorf("%w: missing learning-rate schedule", ErrInvalidConfig)
	case c.CheckpointDir != "" && c.CheckpointEvery <= 0:
		return fmt.Errorf("%w: checkpoint interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// StepResult reports one optimizer step.
type StepResult struct {
	Step    int     // Optimizer step counter after the update
	Loss    float32 // Mean loss over the batch
	LR      float32
	Elapsed time.Duration
}

// Train runs tc.Steps optimizer steps over data. A checkpoint failure is
// returned wrapped in ErrCheckpoint.
func (m *Model) Train(ctx context.Context, data *corpus.Corpus, tc TrainConfig) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	if err := m.checkCorpus(data); err != nil {
		return err
	}

	seed := tc.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // Sampling is not security-sensitive

	for i := range tc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := m.TrainStep(rng, data, tc)
		if err != nil {
			return fmt.Errorf("training step %d: %w", i, err)
		}
		klog.Infof("Step: %d Loss: %g (Elapsed: %dms)", res.Step, res.Loss, res.Elapsed.Milliseconds())

		last := i == tc.Steps-1
		if tc.CheckpointDir != "" && ((i+1)%tc.CheckpointEvery == 0 || last) {
			klog.V(1).Infof("Saving checkpoint to %s", tc.CheckpointDir)
			if err := m.Save(tc.CheckpointDir); err != nil {
				return err
			}
		}
		if tc.OnStep != nil {
			tc.OnStep(res)
		}
	}
	return nil
}

// TrainStep runs one step: tc.BatchSize samples in parallel, gradient
// averaging into the template and one optimizer update. Any worker failure
// aborts the step before the template is touched.
func (m *Model) TrainStep(rng *rand.Rand, data *corpus.Corpus, tc TrainConfig) (StepResult, error) {
	if m.opt == nil {
		return StepResult{}, ErrNoOptimizer
	}
	start := time.Now()

	// Seeds are drawn up front so results do not depend on scheduling.
	seeds := make([]int64, tc.BatchSize)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	samples, err := parallel.Map(tc.BatchSize, func(i int) (sample, error) {
		return m.runSample(data, seeds[i])
	}, tc.Parallel)
	if err != nil {
		return StepResult{}, err
	}

	workers := make([]*graph.Graph, len(samples))
	var loss float32
	for i, s := range samples {
		workers[i] = s.graph
		loss += s.loss
	}
	loss /= float32(len(samples))

	if err := averageGradients(m.graph, m.topo.Params, workers, tc.Parallel); err != nil {
		return StepResult{}, err
	}

	lr := tc.Schedule(m.opt.StepNum())
	if err := m.graph.Optimize(m.opt, m.topo.Params, lr); err != nil {
		return StepResult{}, err
	}

	return StepResult{
		Step:    m.opt.StepNum(),
		Loss:    loss,
		LR:      lr,
		Elapsed: time.Since(start),
	}, nil
}

type sample struct {
	graph *graph.Graph
	loss  float32
}

// runSample evaluates one training sample on a private clone and leaves the
// clone's gradients ready for aggregation, embedding tables included.
func (m *Model) runSample(data *corpus.Corpus, seed int64) (sample, error) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // Sampling is not security-sensitive
	g := m.graph.Clone()
	g.Seed(rng.Int63())

	xs, ys := data.Sample(rng, m.cfg.ContextLength)
	pos := m.positions()
	if err := g.Bind(m.topo.TokenInput, m.topo.TokenEmbedding, xs); err != nil {
		return sample{}, err
	}
	if err := g.Bind(m.topo.PosInput, m.topo.PosEmbedding, pos); err != nil {
		return sample{}, err
	}
	if err := g.Forward(true); err != nil {
		return sample{}, err
	}
	g.ResetGradients()
	loss, err := g.Backward(m.topo.Output, graph.CrossEntropy{Targets: ys})
	if err != nil {
		return sample{}, err
	}
	if math.IsNaN(float64(loss)) || math.IsInf(float64(loss), 0) {
		return sample{}, fmt.Errorf("%w: %g", ErrNonFiniteLoss, loss)
	}

	if err := reconcile(g, m.topo.TokenInput, m.topo.TokenEmbedding, xs, m.cfg.VocabSize); err != nil {
		return sample{}, fmt.Errorf("token embedding: %w", err)
	}
	if err := reconcile(g, m.topo.PosInput, m.topo.PosEmbedding, pos, m.cfg.ContextLength); err != nil {
		return sample{}, fmt.Errorf("position embedding: %w", err)
	}
	return sample{graph: g, loss: loss}, nil
}

// reconcile overwrites the gradient of table with the unembedded gradient of
// the input bound from it.
func reconcile(g *graph.Graph, input, table graph.NodeID, ids []int, rows int) error {
	grad, err := g.Gradient(input)
	if err != nil {
		return err
	}
	tableGrad, err := Unembed(ids, grad, rows)
	if err != nil {
		return err
	}
	return g.SetGradient(table, tableGrad)
}

// averageGradients sets, for every parameter, the template gradient to the
// elementwise mean of the worker gradients.
func averageGradients(template *graph.Graph, params []graph.NodeID, workers []*graph.Graph, cfg parallel.Config) error {
	means, err := parallel.Map(len(params), func(i int) (*tensor.Tensor, error) {
		grads := make([]*tensor.Tensor, len(workers))
		for w, g := range workers {
			grad, err := g.Gradient(params[i])
			if err != nil {
				return nil, err
			}
			grads[w] = grad
		}
		return tensor.Mean(grads)
	}, cfg)
	if err != nil {
		return fmt.Errorf("average gradients: %w", err)
	}

	for i, id := range params {
		if err := template.SetGradient(id, means[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) checkCorpus(data *corpus.Corpus) error {
	if maxID := data.MaxID(); maxID >= m.cfg.VocabSize {
		return fmt.Errorf("%w: corpus holds id %d (vocabulary size %d)", ErrInvalidToken, maxID, m.cfg.VocabSize)
	}
	return nil
}
