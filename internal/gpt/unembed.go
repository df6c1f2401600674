package gpt

import (
	"fmt"

	"github.com/born-ml/gptgraph/internal/tensor"
)

// Unembed turns the gradient of a bound input tensor into the gradient of
// the table it was bound from. Row i of inputGrad belongs to table row
// ids[i]; rows sharing an id are averaged, and table rows no id refers to
// stay zero. The result has shape [rows, width].
func Unembed(ids []int, inputGrad *tensor.Tensor, rows int) (*tensor.Tensor, error) {
	inRows, width := inputGrad.Shape().Matrix()
	if inRows != len(ids) {
		return nil, &tensor.ShapeError{
			Op:      "unembed",
			Shapes:  []tensor.Shape{inputGrad.Shape(), {len(ids)}},
			Details: "one gradient row per id",
		}
	}

	out := tensor.Zeros(tensor.Shape{rows, width})
	dst := out.Data()
	src := inputGrad.Data()
	counts := make([]int, rows)
	for i, id := range ids {
		if id < 0 || id >= rows {
			return nil, fmt.Errorf("unembed: id %d out of range [0, %d)", id, rows)
		}
		counts[id]++
		row := dst[id*width : (id+1)*width]
		for j, v := range src[i*width : (i+1)*width] {
			row[j] += v
		}
	}
	for id, n := range counts {
		if n < 2 {
			continue
		}
		row := dst[id*width : (id+1)*width]
		for j := range row {
			row[j] /= float32(n)
		}
	}
	return out, nil
}
