// Package tensor provides the dense float32 tensor used by the computation
// graph together with the numeric kernels the graph operators are built from.
//
// Tensors are row-major. Kernels never modify their operands; each returns a
// freshly allocated result or a *ShapeError.
package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is a dense, row-major float32 n-dimensional array.
type Tensor struct {
	shape Shape
	data  []float32
}

// New wraps data in a tensor of the given shape. The slice is not copied.
func New(shape Shape, data []float32) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	if shape.NumElements() != len(data) {
		return nil, shapeErr("new", fmt.Sprintf("%d elements for %d values", shape.NumElements(), len(data)), shape)
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// Zeros returns a zero-filled tensor.
func Zeros(shape Shape) *Tensor {
	return &Tensor{shape: shape.Clone(), data: make([]float32, shape.NumElements())}
}

// Full returns a tensor with every element set to v.
func Full(shape Shape, v float32) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// Scalar returns a rank 0 tensor.
func Scalar(v float32) *Tensor {
	return &Tensor{shape: Shape{}, data: []float32{v}}
}

// Uniform returns a tensor with values drawn uniformly from [lo, hi).
func Uniform(rng *rand.Rand, shape Shape, lo, hi float32) *Tensor {
	t := Zeros(shape)
	span := hi - lo
	for i := range t.data {
		t.data[i] = lo + rng.Float32()*span
	}
	return t
}

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() Shape {
	return t.shape.Clone()
}

// Data returns the underlying storage. Mutating it mutates the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// NumElements returns the total element count.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Rows returns the number of rows when the tensor is viewed as a matrix.
func (t *Tensor) Rows() int {
	r, _ := t.shape.Matrix()
	return r
}

// Cols returns the innermost dimension.
func (t *Tensor) Cols() int {
	return t.shape.Last()
}

// Row returns a view of row i of the matrix view.
func (t *Tensor) Row(i int) ([]float32, error) {
	rows, cols := t.shape.Matrix()
	if i < 0 || i >= rows {
		return nil, fmt.Errorf("tensor: row %d out of range [0, %d)", i, rows)
	}
	return t.data[i*cols : (i+1)*cols], nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// Equal reports whether both tensors have the same shape and bit-identical
// elements.
func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil || !t.shape.Equal(other.shape) {
		return false
	}
	for i, v := range t.data {
		if math.Float32bits(v) != math.Float32bits(other.data[i]) {
			return false
		}
	}
	return true
}

// IsZero reports whether every element is exactly zero.
func (t *Tensor) IsZero() bool {
	for _, v := range t.data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Fill sets every element to v in place.
func (t *Tensor) Fill(v float32) {
	for i := range t.data {
		t.data[i] = v
	}
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%s%v", t.shape, t.data)
}
