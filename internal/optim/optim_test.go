package optim_test

import (
	"testing"

	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(t *testing.T, id int, value, grad []float32) optim.Param {
	t.Helper()
	v, err := tensor.New(tensor.Shape{len(value)}, value)
	require.NoError(t, err)
	g, err := tensor.New(tensor.Shape{len(grad)}, grad)
	require.NoError(t, err)
	return optim.Param{ID: id, Value: v, Grad: g}
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	opt := optim.NewSGD(optim.SGDConfig{})
	p := param(t, 0, []float32{2.0}, []float32{1.0})

	require.NoError(t, opt.Step([]optim.Param{p}, 0.1))

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	assert.InDelta(t, 1.9, p.Value.Data()[0], 1e-6)
	assert.Equal(t, 1, opt.StepNum())
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	opt := optim.NewSGD(optim.SGDConfig{Momentum: 0.9})
	p := param(t, 3, []float32{1.0}, []float32{1.0})

	// v_1 = 1.0, x_1 = 0.9
	require.NoError(t, opt.Step([]optim.Param{p}, 0.1))
	assert.InDelta(t, 0.9, p.Value.Data()[0], 1e-6)

	// v_2 = 0.9 * 1.0 + 1.0 = 1.9, x_2 = 0.9 - 0.19 = 0.71
	require.NoError(t, opt.Step([]optim.Param{p}, 0.1))
	assert.InDelta(t, 0.71, p.Value.Data()[0], 1e-5)
}

func TestAdam_FirstStepMovesBySignedLR(t *testing.T) {
	opt := optim.NewAdam(optim.AdamConfig{})
	p := param(t, 0, []float32{1, 1, 1}, []float32{0.5, -2, 0})

	require.NoError(t, opt.Step([]optim.Param{p}, 0.01))

	// With bias correction the first update is lr * g / (|g| + eps).
	assert.InDelta(t, 0.99, p.Value.Data()[0], 1e-5)
	assert.InDelta(t, 1.01, p.Value.Data()[1], 1e-5)
	assert.Equal(t, float32(1), p.Value.Data()[2])
}

func TestAdam_SkipsNilGradient(t *testing.T) {
	opt := optim.NewAdam(optim.AdamConfig{})
	v := tensor.Full(tensor.Shape{2}, 3)
	require.NoError(t, opt.Step([]optim.Param{{ID: 1, Value: v}}, 0.1))
	assert.Equal(t, []float32{3, 3}, v.Data())
	assert.Empty(t, opt.State().Slots)
}

func TestAdam_ShapeMismatch(t *testing.T) {
	opt := optim.NewAdam(optim.AdamConfig{})
	p := optim.Param{ID: 0, Value: tensor.Zeros(tensor.Shape{2}), Grad: tensor.Zeros(tensor.Shape{3})}

	err := opt.Step([]optim.Param{p}, 0.1)
	assert.ErrorIs(t, err, tensor.ErrShape)
	assert.Equal(t, 0, opt.StepNum(), "failed step must not advance the counter")
}

func TestAdam_StateRoundTrip(t *testing.T) {
	opt := optim.NewAdam(optim.AdamConfig{Betas: [2]float32{0.8, 0.99}})
	p := param(t, 7, []float32{1, 2}, []float32{0.1, -0.3})
	require.NoError(t, opt.Step([]optim.Param{p}, 0.01))
	require.NoError(t, opt.Step([]optim.Param{p}, 0.01))

	restored, err := optim.FromState(opt.State())
	require.NoError(t, err)
	assert.Equal(t, 2, restored.StepNum())

	// Both copies must evolve identically from here on.
	p2 := optim.Param{ID: 7, Value: p.Value.Clone(), Grad: p.Grad.Clone()}
	require.NoError(t, opt.Step([]optim.Param{p}, 0.01))
	require.NoError(t, restored.Step([]optim.Param{p2}, 0.01))
	assert.True(t, p.Value.Equal(p2.Value))
}

func TestLoadState_TypeMismatch(t *testing.T) {
	err := optim.NewSGD(optim.SGDConfig{}).LoadState(optim.NewAdam(optim.AdamConfig{}).State())
	assert.ErrorIs(t, err, optim.ErrStateType)

	_, err = optim.FromState(optim.State{Type: "lion"})
	assert.ErrorIs(t, err, optim.ErrStateType)
}

func TestWarmupCosine(t *testing.T) {
	s := optim.WarmupCosine(0.1, 1.0, 10, 20)

	assert.InDelta(t, 0.1, s(0), 1e-6)
	assert.InDelta(t, 0.55, s(5), 1e-6)
	assert.InDelta(t, 1.0, s(10), 1e-6)
	assert.InDelta(t, 0.55, s(15), 1e-6)
	assert.InDelta(t, 0.1, s(20), 1e-6)
	assert.InDelta(t, 0.1, s(1000), 1e-6)
	assert.Equal(t, float32(0.5), optim.Constant(0.5)(42))
}
