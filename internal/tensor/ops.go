package tensor

import (
	"math"
	"math/rand"
)

// Add returns a + b. b must either have the same shape as a, or be a rank 1
// tensor whose length equals the innermost dimension of a, in which case it
// is added to every row.
func Add(a, b *Tensor) (*Tensor, error) {
	out := a.Clone()
	if err := AddInPlace(out, b); err != nil {
		return nil, err
	}
	return out, nil
}

// AddInPlace accumulates b into dst using the broadcasting rule of Add.
func AddInPlace(dst, b *Tensor) error {
	switch {
	case dst.shape.Equal(b.shape):
		for i, v := range b.data {
			dst.data[i] += v
		}
	case b.Rank() == 1 && b.shape[0] == dst.shape.Last():
		cols := len(b.data)
		for i := range dst.data {
			dst.data[i] += b.data[i%cols]
		}
	default:
		return shapeErr("add", "expected equal shapes or a row vector", dst.shape, b.shape)
	}
	return nil
}

// SumRows reduces a matrix view over its rows, producing a rank 1 tensor of
// the innermost width. It is the adjoint of row broadcasting in Add.
func SumRows(a *Tensor) *Tensor {
	rows, cols := a.shape.Matrix()
	out := Zeros(Shape{cols})
	for i := 0; i < rows; i++ {
		row := a.data[i*cols : (i+1)*cols]
		for j, v := range row {
			out.data[j] += v
		}
	}
	return out
}

// Scale returns a * s.
func Scale(a *Tensor, s float32) *Tensor {
	out := a.Clone()
	for i := range out.data {
		out.data[i] *= s
	}
	return out
}

// Mul returns the element-wise product of two equally shaped tensors.
func Mul(a, b *Tensor) (*Tensor, error) {
	if !a.shape.Equal(b.shape) {
		return nil, shapeErr("mul", "expected equal shapes", a.shape, b.shape)
	}
	out := a.Clone()
	for i, v := range b.data {
		out.data[i] *= v
	}
	return out, nil
}

// Mean returns the element-wise mean of equally shaped tensors.
func Mean(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, shapeErr("mean", "no operands")
	}
	out := Zeros(ts[0].shape)
	for _, t := range ts {
		if !t.shape.Equal(out.shape) {
			return nil, shapeErr("mean", "expected equal shapes", out.shape, t.shape)
		}
		for i, v := range t.data {
			out.data[i] += v
		}
	}
	inv := 1 / float32(len(ts))
	for i := range out.data {
		out.data[i] *= inv
	}
	return out, nil
}

// Mask returns a copy of a where every element whose mask entry is true is
// replaced by value.
func Mask(a *Tensor, mask []bool, value float32) (*Tensor, error) {
	if len(mask) != len(a.data) {
		return nil, shapeErr("mask", "mask length differs from element count", a.shape, Shape{len(mask)})
	}
	out := a.Clone()
	for i, m := range mask {
		if m {
			out.data[i] = value
		}
	}
	return out, nil
}

// Softmax normalizes each row of the matrix view into a probability
// distribution. Entries equal to -Inf receive exactly zero probability.
func Softmax(a *Tensor) *Tensor {
	out := Zeros(a.shape)
	rows, cols := a.shape.Matrix()
	for i := 0; i < rows; i++ {
		softmaxRow(out.data[i*cols:(i+1)*cols], a.data[i*cols:(i+1)*cols])
	}
	return out
}

// SoftmaxSlice is Softmax for a single row held in a plain slice.
func SoftmaxSlice(logits []float32) []float32 {
	out := make([]float32, len(logits))
	softmaxRow(out, logits)
	return out
}

func softmaxRow(dst, src []float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range src {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := 0.0
	for j, v := range src {
		if math.IsInf(float64(v), -1) {
			dst[j] = 0
			continue
		}
		e := math.Exp(float64(v - maxVal))
		dst[j] = float32(e)
		sum += e
	}
	if sum == 0 {
		return
	}
	for j := range dst {
		dst[j] = float32(float64(dst[j]) / sum)
	}
}

// LayerNormResult carries the normalized activations a backward pass needs.
type LayerNormResult struct {
	Output *Tensor
	XHat   *Tensor   // (x - mean) * invStd
	InvStd []float32 // One entry per row
}

// LayerNorm normalizes each row of x to zero mean and unit variance, then
// applies the per-column scale gamma and shift beta.
func LayerNorm(x, gamma, beta *Tensor, eps float32) (*LayerNormResult, error) {
	rows, cols := x.shape.Matrix()
	if gamma.NumElements() != cols || beta.NumElements() != cols {
		return nil, shapeErr("layernorm", "scale and shift must match the innermost dimension", x.shape, gamma.shape, beta.shape)
	}

	res := &LayerNormResult{
		Output: Zeros(x.shape),
		XHat:   Zeros(x.shape),
		InvStd: make([]float32, rows),
	}
	for i := 0; i < rows; i++ {
		row := x.data[i*cols : (i+1)*cols]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(cols)
		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(cols)
		invStd := 1 / math.Sqrt(variance+float64(eps))
		res.InvStd[i] = float32(invStd)

		for j, v := range row {
			xh := float32((float64(v) - mean) * invStd)
			res.XHat.data[i*cols+j] = xh
			res.Output.data[i*cols+j] = xh*gamma.data[j] + beta.data[j]
		}
	}
	return res, nil
}

// ReLU returns max(a, 0) element-wise.
func ReLU(a *Tensor) *Tensor {
	out := a.Clone()
	for i, v := range out.data {
		if v < 0 {
			out.data[i] = 0
		}
	}
	return out
}

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p). The returned keep tensor holds the per-element multiplier so the
// backward pass can reuse it.
func Dropout(rng *rand.Rand, a *Tensor, p float32) (out, keep *Tensor) {
	keep = Zeros(a.shape)
	if p >= 1 {
		return Zeros(a.shape), keep
	}
	scale := 1 / (1 - p)
	for i := range keep.data {
		if rng.Float32() >= p {
			keep.data[i] = scale
		}
	}
	out, _ = Mul(a, keep)
	return out, keep
}

// Concat joins matrices with equal row counts along the innermost axis.
func Concat(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, shapeErr("concat", "no operands")
	}
	rows := ts[0].Rows()
	width := 0
	shapes := make([]Shape, len(ts))
	for i, t := range ts {
		shapes[i] = t.shape
		width += t.Cols()
	}
	for _, t := range ts {
		if t.Rank() != 2 || t.Rows() != rows {
			return nil, shapeErr("concat", "operands must be 2D with equal row counts", shapes...)
		}
	}

	out := Zeros(Shape{rows, width})
	offset := 0
	for _, t := range ts {
		cols := t.Cols()
		for i := 0; i < rows; i++ {
			copy(out.data[i*width+offset:i*width+offset+cols], t.data[i*cols:(i+1)*cols])
		}
		offset += cols
	}
	return out, nil
}

// Split is the inverse of Concat: it cuts the columns of a into pieces of
// the given widths.
func Split(a *Tensor, widths []int) ([]*Tensor, error) {
	rows, cols := a.shape.Matrix()
	total := 0
	for _, w := range widths {
		total += w
	}
	if a.Rank() != 2 || total != cols {
		return nil, shapeErr("split", "widths must sum to the column count", a.shape)
	}

	parts := make([]*Tensor, len(widths))
	offset := 0
	for p, w := range widths {
		part := Zeros(Shape{rows, w})
		for i := 0; i < rows; i++ {
			copy(part.data[i*w:(i+1)*w], a.data[i*cols+offset:i*cols+offset+w])
		}
		parts[p] = part
		offset += w
	}
	return parts, nil
}

// CrossEntropy computes the mean negative log-likelihood of targets under
// the row-wise softmax of logits, together with its gradient with respect to
// the logits.
//
// Loss = mean_i(-log softmax(logits[i])[targets[i]])
// Grad = (softmax(logits) - onehot(targets)) / rows
func CrossEntropy(logits *Tensor, targets []int) (float32, *Tensor, error) {
	rows, cols := logits.shape.Matrix()
	if rows != len(targets) {
		return 0, nil, shapeErr("cross_entropy", "one target per row required", logits.shape, Shape{len(targets)})
	}

	grad := Softmax(logits)
	var loss float64
	for i, target := range targets {
		if target < 0 || target >= cols {
			return 0, nil, shapeErr("cross_entropy", "target out of range", logits.shape)
		}
		row := logits.data[i*cols : (i+1)*cols]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sumExp float64
		for _, v := range row {
			sumExp += math.Exp(float64(v - maxVal))
		}
		loss += float64(maxVal) + math.Log(sumExp) - float64(row[target])

		grad.data[i*cols+target]--
	}

	inv := 1 / float32(rows)
	for i := range grad.data {
		grad.data[i] *= inv
	}
	return float32(loss / float64(rows)), grad, nil
}
