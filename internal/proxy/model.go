package proxy

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Model is the composite proxy model:
//
//	encoder -> attention -> recurrent expansion -> time-distributed decoder
//
// Example:
//
//	model, err := proxy.New(proxy.DefaultConfig(64, 64), rng, backend)
//	pred, err := model.Forward(x) // [N, 4, 64, 64] -> [N, 60, 2, 64, 64]
type Model[B tensor.Backend] struct {
	cfg     Config
	backend B

	encoder   *nn.Sequential[B]
	attention *AttentionBlock[B]
	recurrent *RecurrentExpansion[B]
	decoder   *nn.Sequential[B]
}

// New builds a model for cfg with the LSTM temporal expander.
func New[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*Model[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, w := cfg.LatentSize()
	expander := NewLSTMExpander(cfg.AttentionDim*h*w, cfg.HiddenChannels*h*w, rng, backend)
	return NewWithExpander(cfg, expander, rng, backend)
}

// NewWithExpander builds a model around a caller-supplied temporal expander.
// The expander must accept AttentionDim*h*w inputs and produce
// HiddenChannels*h*w outputs, where (h, w) is cfg.LatentSize().
func NewWithExpander[B tensor.Backend](cfg Config, expander TemporalExpander[B], rng *rand.Rand, backend B) (*Model[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, w := cfg.LatentSize()
	if got, want := expander.OutputSize(), cfg.HiddenChannels*h*w; got != want {
		return nil, fmt.Errorf("%w: expander produces %d features, decoder needs %d", ErrConfig, got, want)
	}

	encoder := make([]nn.Module[B], len(cfg.EncoderChannels))
	in := cfg.InChannels
	for i, out := range cfg.EncoderChannels {
		block := NewEncoderBlock(in, out, cfg.NormEps, rng, backend)
		nn.Prefix(fmt.Sprintf("encoder.%d", i), block.Parameters())
		encoder[i] = block
		in = out
	}

	attention, err := NewAttentionBlock(in, cfg.AttentionDim, cfg.NumHeads, rng, backend)
	if err != nil {
		return nil, err
	}
	nn.Prefix("attention", attention.Parameters())

	recurrent, err := NewRecurrentExpansion(expander, cfg.Timesteps, h, w)
	if err != nil {
		return nil, err
	}
	nn.Prefix("recurrent", recurrent.Parameters())

	decoder := make([]nn.Module[B], len(cfg.DecoderChannels))
	in = cfg.HiddenChannels
	for i, out := range cfg.DecoderChannels {
		block := NewDecoderBlock(in, out, cfg.NormEps, rng, backend)
		nn.Prefix(fmt.Sprintf("decoder.%d", i), block.Parameters())
		decoder[i] = nn.NewTimeDistributed[B](block)
		in = out
	}

	return &Model[B]{
		cfg:       cfg,
		backend:   backend,
		encoder:   nn.NewSequential(encoder...),
		attention: attention,
		recurrent: recurrent,
		decoder:   nn.NewSequential(decoder...),
	}, nil
}

// Forward predicts a field sequence for a batch of input fields.
//
// Input shape:  [N, InChannels, Height, Width]
// Output shape: [N, Timesteps, OutChannels, Height, Width]
//
// Malformed input returns ErrShape and misplaced input returns ErrDevice
// before any computation runs.
func (m *Model[B]) Forward(x *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}

	encoded := m.encoder.Forward(x)
	attended := m.attention.Forward(encoded)
	sequence := m.recurrent.Forward(attended)
	return m.decoder.Forward(sequence), nil
}

func (m *Model[B]) checkInput(x *tensor.Tensor[B]) error {
	if x == nil {
		return fmt.Errorf("proxy: nil input: %w", ErrShape)
	}
	if err := tensor.CheckDevice("proxy.Forward", m.backend.Device(), x.Raw()); err != nil {
		return err
	}
	shape := x.Shape()
	if len(shape) != 4 {
		return fmt.Errorf("proxy: expected 4D input [N, C, H, W], got %v: %w", shape, ErrShape)
	}
	if shape[1] != m.cfg.InChannels {
		return fmt.Errorf("proxy: expected %d input channels, got %d: %w", m.cfg.InChannels, shape[1], ErrShape)
	}
	if shape[2] != m.cfg.Height || shape[3] != m.cfg.Width {
		return fmt.Errorf("proxy: model built for %dx%d fields, got %dx%d: %w",
			m.cfg.Height, m.cfg.Width, shape[2], shape[3], ErrShape)
	}
	return nil
}

// Parameters returns every trainable parameter in forward order.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	params := m.encoder.Parameters()
	params = append(params, m.attention.Parameters()...)
	params = append(params, m.recurrent.Parameters()...)
	return append(params, m.decoder.Parameters()...)
}

// NumParameters returns the number of trainable scalars.
func (m *Model[B]) NumParameters() int {
	return nn.CountParameters(m.Parameters())
}

// Config returns the architecture the model was built with.
func (m *Model[B]) Config() Config {
	return m.cfg
}

// BlockSizes reports the parameter count of each top-level block.
func (m *Model[B]) BlockSizes() map[string]int {
	return map[string]int{
		"encoder":   nn.CountParameters(m.encoder.Parameters()),
		"attention": nn.CountParameters(m.attention.Parameters()),
		"recurrent": nn.CountParameters(m.recurrent.Parameters()),
		"decoder":   nn.CountParameters(m.decoder.Parameters()),
	}
}
