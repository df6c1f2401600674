package graph

import "github.com/born-ml/gptgraph/internal/tensor"

// Loss turns the value of an output node into a scalar and the gradient
// that seeds the backward pass.
type Loss interface {
	Evaluate(output *tensor.Tensor) (float32, *tensor.Tensor, error)
}

// CrossEntropy is the mean token-level cross-entropy of logits against one
// target class per row.
type CrossEntropy struct {
	Targets []int
}

// Evaluate implements Loss.
func (l CrossEntropy) Evaluate(logits *tensor.Tensor) (float32, *tensor.Tensor, error) {
	return tensor.CrossEntropy(logits, l.Targets)
}
