package tensor

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MatMul computes op(a) @ op(b) for rank 2 tensors, where op transposes its
// operand when the matching flag is set. The product runs through gonum's
// SGEMM.
//
// Shapes:
//
//	a: [m, k] (or [k, m] with transA)
//	b: [k, n] (or [n, k] with transB)
//	result: [m, n]
func MatMul(a, b *Tensor, transA, transB bool) (*Tensor, error) {
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, shapeErr("matmul", "only 2D tensors supported", a.shape, b.shape)
	}

	m, k := a.shape[0], a.shape[1]
	if transA {
		m, k = k, m
	}
	kb, n := b.shape[0], b.shape[1]
	if transB {
		kb, n = n, kb
	}
	if k != kb {
		return nil, shapeErr("matmul", "inner dimensions differ", a.shape, b.shape)
	}

	out := Zeros(Shape{m, n})
	blas32.Gemm(
		transpose(transA),
		transpose(transB),
		1,
		general(a),
		general(b),
		0,
		general(out),
	)
	return out, nil
}

// Transpose swaps the two axes of a rank 2 tensor.
func Transpose(a *Tensor) (*Tensor, error) {
	if a.Rank() != 2 {
		return nil, shapeErr("transpose", "only 2D tensors supported", a.shape)
	}
	rows, cols := a.shape[0], a.shape[1]
	out := Zeros(Shape{cols, rows})
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.data[j*rows+i] = a.data[i*cols+j]
		}
	}
	return out, nil
}

func general(t *Tensor) blas32.General {
	return blas32.General{
		Rows:   t.shape[0],
		Cols:   t.shape[1],
		Stride: t.shape[1],
		Data:   t.data,
	}
}

func transpose(flag bool) blas.Transpose {
	if flag {
		return blas.Trans
	}
	return blas.NoTrans
}
