// Package nn implements the neural network modules used by the proxy model.
//
// This package provides building blocks for constructing neural networks:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - Linear, Conv2D, SeparableConv2D, ConvTranspose2D
//   - InstanceNorm2D, AvgPool2D, GELU
//   - MultiHeadAttention, LSTM
//   - Sequential and TimeDistributed containers
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
// Modules panic on malformed input like the tensor kernels they call;
// constructors that depend on user configuration return ErrConfig.
package nn

import (
	"errors"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// ErrConfig reports a module configuration that cannot be built.
var ErrConfig = errors.New("invalid configuration")

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	block := nn.NewSequential[B](
//	    nn.NewSeparableConv2D(4, 4, rng, backend),
//	    nn.NewInstanceNorm2D[B](1e-5),
//	    nn.NewGELU[B](),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[B]) *tensor.Tensor[B]

	// Parameters returns all trainable parameters of this module.
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter[B]
}
