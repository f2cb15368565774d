// Package model defines the fixed feed-forward classifier trained by fasttrain.
//
// Architecture, for hidden width h:
//
//	2 → h → 2h → 4h → 8h → 4h → 2h → h → 1
//
// ReLU follows each of the first seven linear layers and a sigmoid follows
// the last one, so the output is the probability of class 1.
//
// The network is generic over the tensor backend. Training needs the
// autodiff decorator:
//
//	backend := autodiff.New(cpu.New())
//	net, err := model.NewNetwork(10, backend, rand.NewSource(1))
package model

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"golang.org/x/exp/rand"
)

// NumLayers is the fixed depth of the network.
const NumLayers = 8

// Sizes returns the NumLayers+1 feature sizes of a network with hidden width h.
// Layer i maps sizes[i] to sizes[i+1].
func Sizes(hidden int) []int {
	return []int{2, hidden, 2 * hidden, 4 * hidden, 8 * hidden, 4 * hidden, 2 * hidden, hidden, 1}
}

// Network is the eight-layer binary classifier.
type Network[B tensor.Backend] struct {
	hidden  int
	layers  [NumLayers]*Linear[B]
	relu    *nn.ReLU[B]
	sigmoid *nn.Sigmoid[B]
}

// NewNetwork builds a network with hidden width h >= 1.
func NewNetwork[B tensor.Backend](hidden int, backend B, src rand.Source) (*Network[B], error) {
	if hidden < 1 {
		return nil, fmt.Errorf("network: hidden width must be >= 1, got %d", hidden)
	}

	net := &Network[B]{
		hidden:  hidden,
		relu:    nn.NewReLU[B](),
		sigmoid: nn.NewSigmoid[B](),
	}

	sizes := Sizes(hidden)
	for i := range net.layers {
		layer, err := NewLinear(sizes[i], sizes[i+1], backend, src)
		if err != nil {
			return nil, fmt.Errorf("network: layer%d: %w", i+1, err)
		}
		net.layers[i] = layer
	}

	return net, nil
}

// Forward maps a [batch, 2] input to [batch, 1] class-1 probabilities.
func (n *Network[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := input
	for _, layer := range n.layers[:NumLayers-1] {
		x = n.relu.Forward(layer.Forward(x))
	}
	return n.sigmoid.Forward(n.layers[NumLayers-1].Forward(x))
}

// Parameters returns all trainable parameters in layer order
// (layer1.weight, layer1.bias, ..., layer8.bias).
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 2*NumLayers)
	for _, layer := range n.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// Layers returns the linear layers in order.
func (n *Network[B]) Layers() []*Linear[B] {
	return n.layers[:]
}

// Hidden returns the hidden width the network was built with.
func (n *Network[B]) Hidden() int {
	return n.hidden
}

// NumParameters counts the scalar trainable parameters.
func (n *Network[B]) NumParameters() int {
	total := 0
	for _, param := range n.Parameters() {
		total += param.Tensor().Shape().NumElements()
	}
	return total
}

// StateDict returns every parameter keyed as "layerN.weight" / "layerN.bias".
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, 2*NumLayers)
	for i, layer := range n.layers {
		for key, raw := range layer.StateDict() {
			stateDict[fmt.Sprintf("layer%d.%s", i+1, key)] = raw
		}
	}
	return stateDict
}

// LoadStateDict copies parameter values from stateDict into the network.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, layer := range n.layers {
		prefix := fmt.Sprintf("layer%d.", i+1)
		sub := make(map[string]*tensor.RawTensor, 2)
		for key, raw := range stateDict {
			if name, ok := strings.CutPrefix(key, prefix); ok {
				sub[name] = raw
			}
		}
		if err := layer.LoadStateDict(sub); err != nil {
			return fmt.Errorf("layer%d: %w", i+1, err)
		}
	}
	return nil
}
