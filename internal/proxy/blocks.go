package proxy

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// EncoderBlock halves the spatial size of its input:
//
//	SepConv(in,in) -> SepConv(in,out) -> InstanceNorm -> GELU -> AvgPool(2)
type EncoderBlock[B tensor.Backend] struct {
	layers *nn.Sequential[B]
}

// NewEncoderBlock creates an encoder block.
func NewEncoderBlock[B tensor.Backend](in, out int, eps float32, rng *rand.Rand, backend B) *EncoderBlock[B] {
	first := nn.NewSeparableConv2D(in, in, rng, backend)
	second := nn.NewSeparableConv2D(in, out, rng, backend)
	nn.Prefix("sep1", first.Parameters())
	nn.Prefix("sep2", second.Parameters())

	return &EncoderBlock[B]{
		layers: nn.NewSequential[B](
			first,
			second,
			nn.NewInstanceNorm2D[B](eps),
			nn.NewGELU[B](),
			nn.NewAvgPool2D[B](2, 2),
		),
	}
}

// Forward maps [N, in, H, W] to [N, out, H/2, W/2].
func (e *EncoderBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	return e.layers.Forward(x)
}

// Parameters returns the four convolution kernels.
func (e *EncoderBlock[B]) Parameters() []*nn.Parameter[B] {
	return e.layers.Parameters()
}

// AttentionBlock mixes information across all positions of the encoded frame.
//
// A 1x1 convolution and GELU project channels to the embedding width, every
// position becomes a token, the tokens pass through multi-head
// self-attention, and a Linear -> GELU -> Linear feed-forward network is
// applied to each token before the spatial layout is restored.
type AttentionBlock[B tensor.Backend] struct {
	embed int
	proj  *nn.Conv2D[B]
	attn  *nn.MultiHeadAttention[B]
	ffn   *nn.Sequential[B]
}

// NewAttentionBlock creates an attention block. It returns ErrConfig when
// embed is not divisible by heads.
func NewAttentionBlock[B tensor.Backend](in, embed, heads int, rng *rand.Rand, backend B) (*AttentionBlock[B], error) {
	attn, err := nn.NewMultiHeadAttention(embed, heads, rng, backend)
	if err != nil {
		return nil, err
	}

	proj := nn.NewConv2D(in, embed, 1, nn.ConvOptions{Bias: true}, rng, backend)
	fc1 := nn.NewLinear(embed, embed, rng, backend)
	fc2 := nn.NewLinear(embed, embed, rng, backend)

	nn.Prefix("proj", proj.Parameters())
	nn.Prefix("attn", attn.Parameters())
	nn.Prefix("ffn.0", fc1.Parameters())
	nn.Prefix("ffn.2", fc2.Parameters())

	return &AttentionBlock[B]{
		embed: embed,
		proj:  proj,
		attn:  attn,
		ffn:   nn.NewSequential[B](fc1, nn.NewGELU[B](), fc2),
	}, nil
}

// Forward maps [N, in, h, w] to [N, embed, h, w].
func (a *AttentionBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("AttentionBlock.Forward: expected [N, C, h, w], got %v", shape))
	}
	n, h, w := shape[0], shape[2], shape[3]
	tokens := h * w

	projected := a.proj.Forward(x).GELU()

	// [N, E, h, w] -> [N, h*w, E]: one token per position, channels as features.
	seq := projected.Reshape(n, a.embed, tokens).Transpose(0, 2, 1)
	attended := a.attn.Forward(seq)

	ff := a.ffn.Forward(attended.Reshape(n*tokens, a.embed)).Reshape(n, tokens, a.embed)
	return ff.Transpose(0, 2, 1).Reshape(n, a.embed, h, w)
}

// Parameters returns the projection, attention and feed-forward parameters.
func (a *AttentionBlock[B]) Parameters() []*nn.Parameter[B] {
	params := a.proj.Parameters()
	params = append(params, a.attn.Parameters()...)
	return append(params, a.ffn.Parameters()...)
}

// DecoderBlock doubles the spatial size of a frame:
//
//	ConvTranspose(k=3, s=2, p=1, op=1) -> InstanceNorm -> GELU
type DecoderBlock[B tensor.Backend] struct {
	layers *nn.Sequential[B]
}

// NewDecoderBlock creates a decoder block.
func NewDecoderBlock[B tensor.Backend](in, out int, eps float32, rng *rand.Rand, backend B) *DecoderBlock[B] {
	up := nn.NewConvTranspose2D(in, out, 3, 2, 1, 1, rng, backend)
	nn.Prefix("deconv", up.Parameters())
	return &DecoderBlock[B]{
		layers: nn.NewSequential[B](up, nn.NewInstanceNorm2D[B](eps), nn.NewGELU[B]()),
	}
}

// Forward maps [N, in, h, w] to [N, out, 2h, 2w].
func (d *DecoderBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	return d.layers.Forward(x)
}

// Parameters returns the transposed convolution weight and bias.
func (d *DecoderBlock[B]) Parameters() []*nn.Parameter[B] {
	return d.layers.Parameters()
}
