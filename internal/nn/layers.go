package nn

import (
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// InstanceNorm2D normalizes every (sample, channel) plane independently:
//
//	y = (x - mean) / sqrt(var + eps)
//
// with the biased variance. It has no affine parameters and keeps no
// running statistics, so training and evaluation behave identically.
type InstanceNorm2D[B tensor.Backend] struct {
	eps float32
}

// NewInstanceNorm2D creates an instance normalization layer.
func NewInstanceNorm2D[B tensor.Backend](eps float32) *InstanceNorm2D[B] {
	return &InstanceNorm2D[B]{eps: eps}
}

// Forward normalizes input of shape [N, C, H, W].
func (n *InstanceNorm2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	backend := input.Backend()
	return tensor.New(backend.InstanceNorm2D(input.Raw(), n.eps), backend)
}

// Parameters returns nil.
func (n *InstanceNorm2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// AvgPool2D averages non-overlapping or strided windows without padding.
type AvgPool2D[B tensor.Backend] struct {
	kernelSize int
	stride     int
}

// NewAvgPool2D creates an average pooling layer.
func NewAvgPool2D[B tensor.Backend](kernelSize, stride int) *AvgPool2D[B] {
	return &AvgPool2D[B]{kernelSize: kernelSize, stride: stride}
}

// Forward pools input of shape [N, C, H, W].
func (p *AvgPool2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	backend := input.Backend()
	return tensor.New(backend.AvgPool2D(input.Raw(), p.kernelSize, p.stride), backend)
}

// Parameters returns nil.
func (p *AvgPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// GELU applies the exact Gaussian error linear unit x·Φ(x).
type GELU[B tensor.Backend] struct{}

// NewGELU creates a GELU activation module.
func NewGELU[B tensor.Backend]() *GELU[B] {
	return &GELU[B]{}
}

// Forward applies GELU element-wise.
func (g *GELU[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	return input.GELU()
}

// Parameters returns nil.
func (g *GELU[B]) Parameters() []*Parameter[B] {
	return nil
}

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input.
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Len returns the number of modules.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}
