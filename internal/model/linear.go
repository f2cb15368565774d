package model

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// BiasInit is the constant every bias entry starts at.
const BiasInit = 0.1

// Linear is an affine layer computing y = x @ W + b.
//
// Unlike the engine's nn.Linear, the weight is stored as [in, out] so the
// forward pass is a plain MatMul without a transpose, and the weights are
// initialized with centred uniform noise instead of Xavier.
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *nn.Parameter[B] // [in_features, out_features]
	bias        *nn.Parameter[B] // [out_features]
}

// NewLinear creates a Linear layer with weights drawn from U[-0.5, 0.5)
// and biases set to BiasInit.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B, src rand.Source) (*Linear[B], error) {
	if inFeatures < 1 || outFeatures < 1 {
		return nil, fmt.Errorf("linear: sizes must be positive, got %d->%d", inFeatures, outFeatures)
	}

	noise := distuv.Uniform{Min: -0.5, Max: 0.5, Src: src}
	weightData := make([]float32, inFeatures*outFeatures)
	for i := range weightData {
		weightData[i] = float32(noise.Rand())
	}
	weightTensor, err := tensor.FromSlice(weightData, tensor.Shape{inFeatures, outFeatures}, backend)
	if err != nil {
		return nil, fmt.Errorf("linear: weight: %w", err)
	}

	biasTensor := tensor.Full[float32](tensor.Shape{outFeatures}, BiasInit, backend)

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      nn.NewParameter("weight", weightTensor),
		bias:        nn.NewParameter("bias", biasTensor),
	}, nil
}

// Forward computes x @ W + b for x of shape [batch, in_features].
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 2 || inputShape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input [batch, %d], got shape %v", l.inFeatures, inputShape))
	}

	output := input.MatMul(l.weight.Tensor())

	// The bias row is expanded to [batch, out] by ones[batch, 1] @ bias[1, out]
	// so that its gradient is the column sum of the output gradient. The
	// broadcasting Add in born v0.6.0 reduces [n, k] gradients incorrectly.
	ones := tensor.Ones[float32](tensor.Shape{inputShape[0], 1}, input.Backend())
	bias := ones.MatMul(l.bias.Tensor().Reshape(1, l.outFeatures))
	return output.Add(bias)
}

// Parameters returns the weight and bias.
func (l *Linear[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *nn.Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *nn.Parameter[B] {
	return l.bias
}

// InFeatures returns the input dimension.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the output dimension.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}

// StateDict returns the raw weight and bias tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict copies weight and bias values from stateDict.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadInto(l.weight, stateDict["weight"], "weight"); err != nil {
		return err
	}
	return loadInto(l.bias, stateDict["bias"], "bias")
}

func loadInto[B tensor.Backend](param *nn.Parameter[B], raw *tensor.RawTensor, key string) error {
	if raw == nil {
		return fmt.Errorf("missing %s in state dict", key)
	}

	want := param.Tensor().Shape()
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", key, want, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", key, raw.DType())
	}

	copy(param.Tensor().Raw().AsFloat32(), raw.AsFloat32())
	return nil
}
