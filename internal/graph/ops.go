package graph

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/gptgraph/internal/tensor"
)

// ForwardContext carries evaluation-wide settings into operators.
type ForwardContext struct {
	Training bool       // Enables dropout
	Rand     *rand.Rand // Random source for dropout; non-nil when Training
}

// Operator is a differentiable operation applied to graph nodes.
//
// Operators are immutable and shared between a graph and its clones; any
// per-evaluation state lives in the cache value returned by Forward, which
// the graph hands back to Backward.
type Operator interface {
	// Name identifies the operator in error messages.
	Name() string

	// Shape returns the output shape for the given input shapes or an error
	// if the inputs are not acceptable.
	Shape(inputs []tensor.Shape) (tensor.Shape, error)

	// Forward computes the output value.
	Forward(ctx ForwardContext, inputs []*tensor.Tensor) (out *tensor.Tensor, cache any, err error)

	// Backward returns one gradient per input given the output gradient.
	Backward(inputs []*tensor.Tensor, output *tensor.Tensor, cache any, outGrad *tensor.Tensor) ([]*tensor.Tensor, error)
}

func arity(name string, inputs []tensor.Shape, n int) error {
	if len(inputs) != n {
		return fmt.Errorf("%s: expected %d inputs, got %d", name, n, len(inputs))
	}
	return nil
}

// AddOp adds two tensors: out = a + b, where b may be a row vector
// broadcast over the rows of a.
//
// Backward: d/da = grad, d/db = grad (summed over rows when broadcast).
type AddOp struct{}

// Name implements Operator.
func (AddOp) Name() string { return "add" }

// Shape implements Operator.
func (op AddOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 2); err != nil {
		return nil, err
	}
	a, b := in[0], in[1]
	if a.Equal(b) || (len(b) == 1 && b[0] == a.Last()) {
		return a.Clone(), nil
	}
	return nil, &tensor.ShapeError{Op: op.Name(), Shapes: []tensor.Shape{a, b}}
}

// Forward implements Operator.
func (AddOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	out, err := tensor.Add(in[0], in[1])
	return out, nil, err
}

// Backward implements Operator.
func (AddOp) Backward(in []*tensor.Tensor, _ *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	gradB := grad
	if !in[1].Shape().Equal(grad.Shape()) {
		gradB = tensor.SumRows(grad)
	}
	return []*tensor.Tensor{grad, gradB}, nil
}

// MatMulOp multiplies two matrices: out = a @ b.
//
// Backward:
//   - d(A@B)/dA = grad @ B^T
//   - d(A@B)/dB = A^T @ grad
type MatMulOp struct{}

// Name implements Operator.
func (MatMulOp) Name() string { return "matmul" }

// Shape implements Operator.
func (op MatMulOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 2); err != nil {
		return nil, err
	}
	a, b := in[0], in[1]
	if len(a) != 2 || len(b) != 2 || a[1] != b[0] {
		return nil, &tensor.ShapeError{Op: op.Name(), Shapes: []tensor.Shape{a, b}}
	}
	return tensor.Shape{a[0], b[1]}, nil
}

// Forward implements Operator.
func (MatMulOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	out, err := tensor.MatMul(in[0], in[1], false, false)
	return out, nil, err
}

// Backward implements Operator.
func (MatMulOp) Backward(in []*tensor.Tensor, _ *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	gradA, err := tensor.MatMul(grad, in[1], false, true)
	if err != nil {
		return nil, err
	}
	gradB, err := tensor.MatMul(in[0], grad, true, false)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{gradA, gradB}, nil
}

// TransposeOp swaps the axes of a matrix.
type TransposeOp struct{}

// Name implements Operator.
func (TransposeOp) Name() string { return "transpose" }

// Shape implements Operator.
func (op TransposeOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 1); err != nil {
		return nil, err
	}
	if len(in[0]) != 2 {
		return nil, &tensor.ShapeError{Op: op.Name(), Shapes: in, Details: "only 2D tensors supported"}
	}
	return tensor.Shape{in[0][1], in[0][0]}, nil
}

// Forward implements Operator.
func (TransposeOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	out, err := tensor.Transpose(in[0])
	return out, nil, err
}

// Backward implements Operator.
func (TransposeOp) Backward(_ []*tensor.Tensor, _ *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	g, err := tensor.Transpose(grad)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{g}, nil
}

// CoeffOp multiplies by a constant: out = a * Factor.
type CoeffOp struct {
	Factor float32
}

// Name implements Operator.
func (CoeffOp) Name() string { return "coeff" }

// Shape implements Operator.
func (op CoeffOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 1); err != nil {
		return nil, err
	}
	return in[0].Clone(), nil
}

// Forward implements Operator.
func (op CoeffOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	return tensor.Scale(in[0], op.Factor), nil, nil
}

// Backward implements Operator.
func (op CoeffOp) Backward(_ []*tensor.Tensor, _ *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{tensor.Scale(grad, op.Factor)}, nil
}

// MaskOp replaces every element whose Mask entry is true with Value.
// Masked elements receive no gradient.
type MaskOp struct {
	Mask  []bool
	Value float32
}

// Name implements Operator.
func (MaskOp) Name() string { return "mask" }

// Shape implements Operator.
func (op MaskOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 1); err != nil {
		return nil, err
	}
	if in[0].NumElements() != len(op.Mask) {
		return nil, &tensor.ShapeError{Op: op.Name(), Shapes: []tensor.Shape{in[0], {len(op.Mask)}}}
	}
	return in[0].Clone(), nil
}

// Forward implements Operator.
func (op MaskOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	out, err := tensor.Mask(in[0], op.Mask, op.Value)
	return out, nil, err
}

// Backward implements Operator.
func (op MaskOp) Backward(_ []*tensor.Tensor, _ *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	g, err := tensor.Mask(grad, op.Mask, 0)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{g}, nil
}

// SoftmaxOp normalizes each row into a probability distribution.
//
// Backward (per row, s = softmax output):
//
//	dx_j = s_j * (grad_j - Σ_i grad_i * s_i)
type SoftmaxOp struct{}

// Name implements Operator.
func (SoftmaxOp) Name() string { return "softmax" }

// Shape implements Operator.
func (op SoftmaxOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 1); err != nil {
		return nil, err
	}
	return in[0].Clone(), nil
}

// Forward implements Operator.
func (SoftmaxOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	return tensor.Softmax(in[0]), nil, nil
}

// Backward implements Operator.
func (SoftmaxOp) Backward(_ []*tensor.Tensor, out *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	rows, cols := out.Shape().Matrix()
	dx := tensor.Zeros(out.Shape())
	s, g, d := out.Data(), grad.Data(), dx.Data()
	for r := 0; r < rows; r++ {
		off := r * cols
		var dot float32
		for j := 0; j < cols; j++ {
			dot += g[off+j] * s[off+j]
		}
		for j := 0; j < cols; j++ {
			d[off+j] = s[off+j] * (g[off+j] - dot)
		}
	}
	return []*tensor.Tensor{dx}, nil
}

// LayerNormOp normalizes each row of x and applies a learnable scale and
// shift: inputs are [x, gamma, beta].
type LayerNormOp struct {
	Eps float32 // Variance epsilon (default 1e-5)
}

// Name implements Operator.
func (LayerNormOp) Name() string { return "layernorm" }

// Shape implements Operator.
func (op LayerNormOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 3); err != nil {
		return nil, err
	}
	cols := in[0].Last()
	if in[1].NumElements() != cols || in[2].NumElements() != cols {
		return nil, &tensor.ShapeError{Op: op.Name(), Shapes: in}
	}
	return in[0].Clone(), nil
}

func (op LayerNormOp) eps() float32 {
	if op.Eps == 0 {
		return 1e-5
	}
	return op.Eps
}

// Forward implements Operator.
func (op LayerNormOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	res, err := tensor.LayerNorm(in[0], in[1], in[2], op.eps())
	if err != nil {
		return nil, nil, err
	}
	return res.Output, res, nil
}

// Backward implements Operator.
//
// With xhat = (x - mean) * invStd and dxhat = grad * gamma, per row of width N:
//
//	dx     = invStd / N * (N * dxhat - Σ dxhat - xhat * Σ(dxhat * xhat))
//	dgamma = Σ_rows grad * xhat
//	dbeta  = Σ_rows grad
func (op LayerNormOp) Backward(in []*tensor.Tensor, _ *tensor.Tensor, cache any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	res, ok := cache.(*tensor.LayerNormResult)
	if !ok {
		return nil, fmt.Errorf("%s: missing forward cache", op.Name())
	}

	rows, cols := grad.Shape().Matrix()
	gamma := in[1].Data()
	dx := tensor.Zeros(in[0].Shape())
	dGamma := tensor.Zeros(in[1].Shape())
	dBeta := tensor.Zeros(in[2].Shape())

	g, xhat, d := grad.Data(), res.XHat.Data(), dx.Data()
	dg, db := dGamma.Data(), dBeta.Data()
	n := float32(cols)
	dxhat := make([]float32, cols)
	for r := 0; r < rows; r++ {
		off := r * cols
		var sum, sumXhat float32
		for j := 0; j < cols; j++ {
			dg[j] += g[off+j] * xhat[off+j]
			db[j] += g[off+j]
			dxhat[j] = g[off+j] * gamma[j]
			sum += dxhat[j]
			sumXhat += dxhat[j] * xhat[off+j]
		}
		scale := res.InvStd[r] / n
		for j := 0; j < cols; j++ {
			d[off+j] = scale * (n*dxhat[j] - sum - xhat[off+j]*sumXhat)
		}
	}
	return []*tensor.Tensor{dx, dGamma, dBeta}, nil
}

// ReLUOp computes max(x, 0).
type ReLUOp struct{}

// Name implements Operator.
func (ReLUOp) Name() string { return "relu" }

// Shape implements Operator.
func (op ReLUOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 1); err != nil {
		return nil, err
	}
	return in[0].Clone(), nil
}

// Forward implements Operator.
func (ReLUOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	return tensor.ReLU(in[0]), nil, nil
}

// Backward implements Operator.
func (ReLUOp) Backward(in []*tensor.Tensor, _ *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	dx := grad.Clone()
	x, d := in[0].Data(), dx.Data()
	for i, v := range x {
		if v <= 0 {
			d[i] = 0
		}
	}
	return []*tensor.Tensor{dx}, nil
}

// DropoutOp zeroes elements with probability P during training forwards and
// scales the survivors by 1/(1-P). Outside training it is the identity.
type DropoutOp struct {
	P float32
}

// Name implements Operator.
func (DropoutOp) Name() string { return "dropout" }

// Shape implements Operator.
func (op DropoutOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if err := arity(op.Name(), in, 1); err != nil {
		return nil, err
	}
	return in[0].Clone(), nil
}

// Forward implements Operator.
func (op DropoutOp) Forward(ctx ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	if !ctx.Training || op.P <= 0 {
		return in[0].Clone(), nil, nil
	}
	out, keep := tensor.Dropout(ctx.Rand, in[0], op.P)
	return out, keep, nil
}

// Backward implements Operator.
func (DropoutOp) Backward(_ []*tensor.Tensor, _ *tensor.Tensor, cache any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	keep, ok := cache.(*tensor.Tensor)
	if !ok || keep == nil {
		return []*tensor.Tensor{grad.Clone()}, nil
	}
	dx, err := tensor.Mul(grad, keep)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{dx}, nil
}

// CatOp concatenates matrices with equal row counts along the last axis.
type CatOp struct{}

// Name implements Operator.
func (CatOp) Name() string { return "cat" }

// Shape implements Operator.
func (op CatOp) Shape(in []tensor.Shape) (tensor.Shape, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%s: no inputs", op.Name())
	}
	width := 0
	for _, s := range in {
		if len(s) != 2 || s[0] != in[0][0] {
			return nil, &tensor.ShapeError{Op: op.Name(), Shapes: in, Details: "inputs must be 2D with equal row counts"}
		}
		width += s[1]
	}
	return tensor.Shape{in[0][0], width}, nil
}

// Forward implements Operator.
func (CatOp) Forward(_ ForwardContext, in []*tensor.Tensor) (*tensor.Tensor, any, error) {
	out, err := tensor.Concat(in)
	return out, nil, err
}

// Backward implements Operator.
func (CatOp) Backward(in []*tensor.Tensor, _ *tensor.Tensor, _ any, grad *tensor.Tensor) ([]*tensor.Tensor, error) {
	widths := make([]int, len(in))
	for i, t := range in {
		widths[i] = t.Cols()
	}
	return tensor.Split(grad, widths)
}
