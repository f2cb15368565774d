package train

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// bernoulliNLL returns the per-example negative log-likelihood
//
//	-log(p), p = out*y + (out-1)*(y-1)
//
// for predicted class-1 probabilities out and 0/1 labels, both of shape [n].
// The returned tensor is the output of the last recorded operation, so the
// tape can be seeded on it directly.
func bernoulliNLL[B tensor.Backend](out *tensor.Tensor[float32, B], labels []float32, backend B) (*tensor.Tensor[float32, B], error) {
	n := len(labels)
	shape := tensor.Shape{n}
	if !out.Shape().Equal(shape) {
		return nil, fmt.Errorf("loss: prediction shape %v does not match %d labels", out.Shape(), n)
	}

	labelsMinusOne := make([]float32, n)
	for i, y := range labels {
		labelsMinusOne[i] = y - 1
	}
	y, err := tensor.FromSlice(labels, shape, backend)
	if err != nil {
		return nil, fmt.Errorf("loss: labels: %w", err)
	}
	yMinusOne, err := tensor.FromSlice(labelsMinusOne, shape, backend)
	if err != nil {
		return nil, fmt.Errorf("loss: labels: %w", err)
	}
	ones := tensor.Ones[float32](shape, backend)
	negOnes := tensor.Full[float32](shape, -1, backend)

	prob := out.Mul(y).Add(out.Sub(ones).Mul(yMinusOne))
	return prob.Log().Mul(negOnes), nil
}
