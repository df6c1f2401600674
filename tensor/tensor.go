// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the dense float32 tensors that
// flow through gptgraph models.
//
// The package defines:
//   - Tensor: row-major float32 data with a Shape
//   - Shape: tensor dimensions
//   - ShapeError: the error kernels return for incompatible shapes
//
// Example:
//
//	x, err := tensor.New(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
//	y := tensor.Full(tensor.Shape{3}, 1)
//	z, err := tensor.Add(x, y) // y is broadcast over the rows of x
package tensor

import (
	"github.com/born-ml/gptgraph/internal/tensor"
)

// Type aliases for public API

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3} represents a matrix with 2 rows and 3 columns.
type Shape = tensor.Shape

// Tensor is a dense row-major float32 tensor.
type Tensor = tensor.Tensor

// ShapeError describes a shape incompatibility.
type ShapeError = tensor.ShapeError

// ErrShape matches every ShapeError with errors.Is.
var ErrShape = tensor.ErrShape

// New creates a tensor over data, which must hold exactly shape.NumElements()
// values. The slice is used directly.
func New(shape Shape, data []float32) (*Tensor, error) {
	return tensor.New(shape, data)
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Full creates a tensor with every element set to v.
func Full(shape Shape, v float32) *Tensor {
	return tensor.Full(shape, v)
}

// Add returns a + b, broadcasting a rank-1 b over the rows of a.
func Add(a, b *Tensor) (*Tensor, error) {
	return tensor.Add(a, b)
}

// MatMul returns a @ b, optionally transposing either operand.
func MatMul(a, b *Tensor, transA, transB bool) (*Tensor, error) {
	return tensor.MatMul(a, b, transA, transB)
}

// Softmax normalizes each row into a probability distribution.
func Softmax(a *Tensor) *Tensor {
	return tensor.Softmax(a)
}
