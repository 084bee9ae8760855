// Package proxy implements the field proxy model: a convolutional encoder,
// a spatial self-attention block, a recurrent temporal expansion and a
// time-distributed convolutional decoder.
//
// The model maps a batch of multi-channel 2D input fields to a fixed-length
// time series of 2D output fields:
//
//	(N, 4, H, W) -> (N, T, 2, H, W)
//
// It is built for one image size; H and W must be divisible by 2 at every
// downsampling stage.
package proxy

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Sentinel errors, shared with the packages that raise them.
var (
	ErrConfig = nn.ErrConfig
	ErrShape  = tensor.ErrShape
	ErrDevice = tensor.ErrDevice
)

// Config describes the model architecture.
type Config struct {
	InChannels      int   // input field channels (4)
	EncoderChannels []int // output channels of each encoder block (8, 16, 32)
	AttentionDim    int   // attention embedding width (64)
	NumHeads        int   // attention heads (16)
	HiddenChannels  int   // LSTM hidden channels per position (32)
	DecoderChannels []int // output channels of each decoder block (16, 8, 2)
	Timesteps       int   // output sequence length (60)
	Height          int   // input height
	Width           int   // input width
	NormEps         float32
}

// DefaultConfig returns the reference architecture for height x width inputs.
func DefaultConfig(height, width int) Config {
	return Config{
		InChannels:      4,
		EncoderChannels: []int{8, 16, 32},
		AttentionDim:    64,
		NumHeads:        16,
		HiddenChannels:  32,
		DecoderChannels: []int{16, 8, 2},
		Timesteps:       60,
		Height:          height,
		Width:           width,
		NormEps:         1e-5,
	}
}

// Validate checks that the configuration describes a buildable model.
func (c Config) Validate() error {
	if c.InChannels <= 0 {
		return fmt.Errorf("%w: in_channels must be positive, got %d", ErrConfig, c.InChannels)
	}
	if len(c.EncoderChannels) == 0 {
		return fmt.Errorf("%w: at least one encoder block is required", ErrConfig)
	}
	if len(c.DecoderChannels) != len(c.EncoderChannels) {
		return fmt.Errorf("%w: %d decoder blocks cannot undo %d encoder blocks",
			ErrConfig, len(c.DecoderChannels), len(c.EncoderChannels))
	}
	for _, ch := range append(append([]int{}, c.EncoderChannels...), c.DecoderChannels...) {
		if ch <= 0 {
			return fmt.Errorf("%w: channel counts must be positive, got %d", ErrConfig, ch)
		}
	}
	if c.AttentionDim <= 0 || c.NumHeads <= 0 {
		return fmt.Errorf("%w: attention_dim=%d num_heads=%d must be positive", ErrConfig, c.AttentionDim, c.NumHeads)
	}
	if c.AttentionDim%c.NumHeads != 0 {
		return fmt.Errorf("%w: attention_dim (%d) must be divisible by num_heads (%d)",
			ErrConfig, c.AttentionDim, c.NumHeads)
	}
	if c.HiddenChannels <= 0 {
		return fmt.Errorf("%w: hidden_channels must be positive, got %d", ErrConfig, c.HiddenChannels)
	}
	if c.Timesteps <= 0 {
		return fmt.Errorf("%w: timesteps must be positive, got %d", ErrConfig, c.Timesteps)
	}
	if c.NormEps <= 0 {
		return fmt.Errorf("%w: norm eps must be positive, got %g", ErrConfig, c.NormEps)
	}

	factor := c.Downsample()
	if c.Height <= 0 || c.Width <= 0 || c.Height%factor != 0 || c.Width%factor != 0 {
		return fmt.Errorf("%w: image size %dx%d must be positive and divisible by %d",
			ErrConfig, c.Height, c.Width, factor)
	}
	return nil
}

// Downsample returns the total spatial reduction of the encoder.
func (c Config) Downsample() int {
	return 1 << len(c.EncoderChannels)
}

// LatentSize returns the spatial size (h, w) of the encoded frame.
func (c Config) LatentSize() (int, int) {
	f := c.Downsample()
	return c.Height / f, c.Width / f
}

// OutChannels returns the channel count of every predicted frame.
func (c Config) OutChannels() int {
	return c.DecoderChannels[len(c.DecoderChannels)-1]
}

// OutputShape returns the prediction shape for a batch of n samples.
func (c Config) OutputShape(n int) tensor.Shape {
	return tensor.Shape{n, c.Timesteps, c.OutChannels(), c.Height, c.Width}
}
