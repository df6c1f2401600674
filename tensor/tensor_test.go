// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/born-ml/gptgraph/tensor"
)

// TestTensorAPI verifies the aliases expose the expected API.
func TestTensorAPI(t *testing.T) {
	x, err := tensor.New(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if !x.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2 3]", x.Shape())
	}
	if n := x.NumElements(); n != 6 {
		t.Errorf("NumElements() = %d, want 6", n)
	}

	y, err := tensor.Add(x, tensor.Full(tensor.Shape{3}, 1))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got := y.Data()[5]; got != 7 {
		t.Errorf("Add()[5] = %v, want 7", got)
	}

	z, err := tensor.MatMul(x, x, false, true)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	if !z.Shape().Equal(tensor.Shape{2, 2}) {
		t.Errorf("MatMul shape = %v, want [2 2]", z.Shape())
	}
}

// TestShapeError verifies shape failures surface as ShapeError.
func TestShapeError(t *testing.T) {
	_, err := tensor.MatMul(tensor.Zeros(tensor.Shape{2, 3}), tensor.Zeros(tensor.Shape{2, 3}), false, false)
	if !errors.Is(err, tensor.ErrShape) {
		t.Fatalf("MatMul error = %v, want ErrShape", err)
	}
	var se *tensor.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("MatMul error %T is not a ShapeError", err)
	}
}
