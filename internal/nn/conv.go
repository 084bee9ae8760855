package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Conv2D is a grouped 2D convolutional layer with square kernels.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/groups, k, k]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - k) / stride + 1
//	out_w = (width + 2*padding - k) / stride + 1
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	groups      int

	weight *Parameter[B]
	bias   *Parameter[B] // nil when the layer has no bias
}

// ConvOptions configures a Conv2D beyond its channel counts and kernel size.
type ConvOptions struct {
	Stride  int // default 1
	Padding int
	Groups  int // default 1
	Bias    bool
}

// NewConv2D creates a new 2D convolutional layer with fan-in uniform initialization.
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernelSize int, opts ConvOptions, rng *rand.Rand, backend B) *Conv2D[B] {
	if opts.Stride == 0 {
		opts.Stride = 1
	}
	if opts.Groups == 0 {
		opts.Groups = 1
	}
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d, kernel=%d", inChannels, outChannels, kernelSize))
	}
	if inChannels%opts.Groups != 0 || outChannels%opts.Groups != 0 {
		panic(fmt.Sprintf("conv2d: channels in=%d out=%d not divisible by groups=%d", inChannels, outChannels, opts.Groups))
	}

	fanIn := inChannels / opts.Groups * kernelSize * kernelSize
	c := &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      opts.Stride,
		padding:     opts.Padding,
		groups:      opts.Groups,
		weight: NewParameter("weight", FanInUniform(fanIn,
			tensor.Shape{outChannels, inChannels / opts.Groups, kernelSize, kernelSize}, rng, backend)),
	}
	if opts.Bias {
		c.bias = NewParameter("bias", FanInUniform(fanIn, tensor.Shape{outChannels}, rng, backend))
	}
	return c
}

// Forward performs the convolution.
func (c *Conv2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: expected %d input channels, got %d", c.inChannels, inputShape[1]))
	}

	backend := input.Backend()
	out := tensor.New(backend.Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding, c.groups), backend)
	if c.bias != nil {
		out = out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
	}
	return out
}

// Parameters returns [weight] or [weight, bias].
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// SeparableConv2D factorizes a 3x3 convolution into a depthwise 3x3
// convolution (one filter per input channel, padding 1) followed by a
// pointwise 1x1 convolution that mixes channels. Neither stage has a bias.
//
// Input shape:  [N, in_channels, H, W]
// Output shape: [N, out_channels, H, W]
type SeparableConv2D[B tensor.Backend] struct {
	depthwise *Conv2D[B]
	pointwise *Conv2D[B]
}

// NewSeparableConv2D creates a depthwise-separable 3x3 convolution.
func NewSeparableConv2D[B tensor.Backend](inChannels, outChannels int, rng *rand.Rand, backend B) *SeparableConv2D[B] {
	s := &SeparableConv2D[B]{
		depthwise: NewConv2D(inChannels, inChannels, 3, ConvOptions{Padding: 1, Groups: inChannels}, rng, backend),
		pointwise: NewConv2D(inChannels, outChannels, 1, ConvOptions{}, rng, backend),
	}
	Prefix("depthwise", s.depthwise.Parameters())
	Prefix("pointwise", s.pointwise.Parameters())
	return s
}

// Forward applies the depthwise then the pointwise convolution.
func (s *SeparableConv2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	return s.pointwise.Forward(s.depthwise.Forward(input))
}

// Parameters returns the depthwise and pointwise kernels.
func (s *SeparableConv2D[B]) Parameters() []*Parameter[B] {
	return append(s.depthwise.Parameters(), s.pointwise.Parameters()...)
}

// ConvTranspose2D is a 2D transposed convolution with bias.
//
// Input shape:  [N, in_channels, H, W]
// Weight shape: [in_channels, out_channels, k, k]
// Output shape: [N, out_channels, (H-1)*stride - 2*padding + k + output_padding, ...]
//
// With k=3, stride=2, padding=1, output_padding=1 the spatial size doubles.
type ConvTranspose2D[B tensor.Backend] struct {
	inChannels    int
	outChannels   int
	stride        int
	padding       int
	outputPadding int

	weight *Parameter[B]
	bias   *Parameter[B]
}

// NewConvTranspose2D creates a transposed convolution. Weights and bias use
// U(±1/sqrt(out_channels*k*k)), the fan-in PyTorch derives from this layout.
func NewConvTranspose2D[B tensor.Backend](inChannels, outChannels, kernelSize, stride, padding, outputPadding int, rng *rand.Rand, backend B) *ConvTranspose2D[B] {
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid in=%d out=%d kernel=%d stride=%d", inChannels, outChannels, kernelSize, stride))
	}
	fanIn := outChannels * kernelSize * kernelSize
	return &ConvTranspose2D[B]{
		inChannels:    inChannels,
		outChannels:   outChannels,
		stride:        stride,
		padding:       padding,
		outputPadding: outputPadding,
		weight: NewParameter("weight", FanInUniform(fanIn,
			tensor.Shape{inChannels, outChannels, kernelSize, kernelSize}, rng, backend)),
		bias: NewParameter("bias", FanInUniform(fanIn, tensor.Shape{outChannels}, rng, backend)),
	}
}

// Forward performs the transposed convolution and adds the bias.
func (c *ConvTranspose2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 || inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv_transpose2d: expected [N,%d,H,W], got %v", c.inChannels, inputShape))
	}

	backend := input.Backend()
	raw := backend.ConvTranspose2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding, c.outputPadding)
	return tensor.New(raw, backend).Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns [weight, bias].
func (c *ConvTranspose2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}
