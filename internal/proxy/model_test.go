package proxy_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/born-ml/fieldproxy/internal/autodiff"
	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/proxy"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallConfig keeps the reference topology at a size tests can afford.
func smallConfig() proxy.Config {
	cfg := proxy.DefaultConfig(16, 16)
	cfg.AttentionDim = 8
	cfg.NumHeads = 2
	cfg.HiddenChannels = 4
	cfg.Timesteps = 3
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, proxy.DefaultConfig(64, 64).Validate())

	h, w := proxy.DefaultConfig(64, 32).LatentSize()
	assert.Equal(t, 8, h)
	assert.Equal(t, 4, w)
	assert.Equal(t, tensor.Shape{5, 60, 2, 64, 32}, proxy.DefaultConfig(64, 32).OutputShape(5))

	tests := []struct {
		name   string
		mutate func(*proxy.Config)
	}{
		{"height not divisible by 8", func(c *proxy.Config) { c.Height = 60 }},
		{"zero width", func(c *proxy.Config) { c.Width = 0 }},
		{"heads do not divide embedding", func(c *proxy.Config) { c.NumHeads = 10 }},
		{"decoder depth mismatch", func(c *proxy.Config) { c.DecoderChannels = []int{16, 2} }},
		{"no timesteps", func(c *proxy.Config) { c.Timesteps = 0 }},
		{"negative channel", func(c *proxy.Config) { c.EncoderChannels = []int{8, -1, 32} }},
		{"zero eps", func(c *proxy.Config) { c.NormEps = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := proxy.DefaultConfig(64, 64)
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), proxy.ErrConfig)
		})
	}
}

func TestNew_RejectsIndivisibleHeads(t *testing.T) {
	cfg := smallConfig()
	cfg.NumHeads = 3
	_, err := proxy.New(cfg, rand.New(rand.NewSource(1)), cpu.New())
	require.ErrorIs(t, err, proxy.ErrConfig)
}

func TestModel_ForwardShape(t *testing.T) {
	backend := cpu.New()
	model, err := proxy.New(smallConfig(), rand.New(rand.NewSource(1)), backend)
	require.NoError(t, err)

	x := tensor.Rand(tensor.Shape{2, 4, 16, 16}, rand.New(rand.NewSource(2)), backend)
	out, err := model.Forward(x)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 3, 2, 16, 16}, out.Shape())
	assert.True(t, out.AllFinite())
}

func TestModel_DefaultTopology(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size forward pass")
	}
	backend := cpu.New()
	model, err := proxy.New(proxy.DefaultConfig(16, 16), rand.New(rand.NewSource(1)), backend)
	require.NoError(t, err)

	x := tensor.Rand(tensor.Shape{2, 4, 16, 16}, rand.New(rand.NewSource(2)), backend)
	out, err := model.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 60, 2, 16, 16}, out.Shape())
	assert.True(t, out.AllFinite())

	again, err := model.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, out.Data(), again.Data())
}

func TestModel_ForwardRejectsBadInput(t *testing.T) {
	backend := cpu.New()
	model, err := proxy.New(smallConfig(), rand.New(rand.NewSource(1)), backend)
	require.NoError(t, err)

	for name, shape := range map[string]tensor.Shape{
		"rank 3":        {4, 16, 16},
		"channels":      {1, 3, 16, 16},
		"spatial size":  {1, 4, 8, 16},
		"rank 5 series": {1, 2, 4, 16, 16},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := model.Forward(tensor.Zeros(shape, backend))
			assert.ErrorIs(t, err, proxy.ErrShape)
		})
	}

	t.Run("device", func(t *testing.T) {
		raw := tensor.MustRaw(tensor.Shape{1, 4, 16, 16}, tensor.WebGPU)
		_, err := model.Forward(tensor.New(raw, backend))
		assert.ErrorIs(t, err, proxy.ErrDevice)
	})
}

func TestModel_Parameters(t *testing.T) {
	model, err := proxy.New(smallConfig(), rand.New(rand.NewSource(1)), cpu.New())
	require.NoError(t, err)

	params := model.Parameters()
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		assert.False(t, seen[p.Name()], "duplicate parameter %s", p.Name())
		seen[p.Name()] = true
	}

	// 3 encoder blocks x 4 kernels, attention 2 + 8 + 4, LSTM 4, 3 decoders x 2.
	assert.Len(t, params, 12+14+4+6)
	assert.True(t, seen["encoder.0.sep1.depthwise.weight"])
	assert.True(t, seen["attention.attn.q_proj.weight"])
	assert.True(t, seen["attention.ffn.2.bias"])
	assert.True(t, seen["recurrent.weight_ih"])
	assert.True(t, seen["decoder.2.deconv.weight"])

	sizes := model.BlockSizes()
	total := 0
	for _, n := range sizes {
		total += n
	}
	assert.Equal(t, model.NumParameters(), total)

	// LSTM over 2x2 latent frames: input 8*4, hidden 4*4.
	assert.Equal(t, 4*16*32+4*16*16+2*4*16, sizes["recurrent"])
}

func TestAttentionBlock_PositionEquivariant(t *testing.T) {
	// Without positional encoding, transposing the spatial grid must
	// transpose the output: every position is a token with its own channels.
	backend := cpu.New()
	block, err := proxy.NewAttentionBlock(3, 8, 2, rand.New(rand.NewSource(3)), backend)
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{2, 3, 4, 4}, rand.New(rand.NewSource(4)), backend)
	want := block.Forward(x).Transpose(0, 1, 3, 2)
	got := block.Forward(x.Transpose(0, 1, 3, 2))

	assert.Equal(t, tensor.Shape{2, 8, 4, 4}, got.Shape())
	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-4)
}

func TestRecurrentExpansion(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(5))

	_, err := proxy.NewRecurrentExpansion[*cpu.CPUBackend](proxy.NewLSTMExpander(12, 10, rng, backend), 4, 2, 2)
	require.ErrorIs(t, err, proxy.ErrConfig)

	rec, err := proxy.NewRecurrentExpansion[*cpu.CPUBackend](proxy.NewLSTMExpander(12, 8, rng, backend), 4, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Steps())

	out := rec.Forward(tensor.Randn(tensor.Shape{3, 3, 2, 2}, rng, backend))
	assert.Equal(t, tensor.Shape{3, 4, 2, 2, 2}, out.Shape())
}

func TestRecurrentExpansion_DependsOnlyOnInput(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(7))
	rec, err := proxy.NewRecurrentExpansion[*cpu.CPUBackend](proxy.NewLSTMExpander(12, 8, rng, backend), 4, 2, 2)
	require.NoError(t, err)

	a := tensor.Randn(tensor.Shape{2, 3, 2, 2}, rng, backend)
	c := tensor.Randn(tensor.Shape{2, 3, 2, 2}, rng, backend)

	first := rec.Forward(a)
	assert.Equal(t, first.Data(), rec.Forward(a.Clone()).Data())
	assert.NotEqual(t, first.Data(), rec.Forward(c).Data())

	// Steps evolve even though every step sees the same encoding.
	steps := first.Chunk(4, 1)
	assert.NotEqual(t, steps[0].Data(), steps[3].Data())
}

func TestEncoderDecoderBlocks(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(6))

	enc := proxy.NewEncoderBlock(4, 8, 1e-5, rng, backend)
	down := enc.Forward(tensor.Randn(tensor.Shape{2, 4, 8, 12}, rng, backend))
	assert.Equal(t, tensor.Shape{2, 8, 4, 6}, down.Shape())

	dec := proxy.NewDecoderBlock(8, 2, 1e-5, rng, backend)
	up := dec.Forward(down)
	assert.Equal(t, tensor.Shape{2, 2, 8, 12}, up.Shape())
}

func TestModel_GradientsReachEveryParameter(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model, err := proxy.New(smallConfig(), rand.New(rand.NewSource(1)), backend)
	require.NoError(t, err)

	x := tensor.Rand(tensor.Shape{2, 4, 16, 16}, rand.New(rand.NewSource(2)), backend)

	backend.Tape().StartRecording()
	out, err := model.Forward(x)
	require.NoError(t, err)
	grads, err := autodiff.Backward(out.Square().Mean(), backend)
	require.NoError(t, err)

	for _, p := range model.Parameters() {
		g, ok := grads[p.Tensor().Raw()]
		if !assert.True(t, ok, "no gradient for %s", p.Name()) {
			continue
		}
		assert.Equal(t, p.Tensor().Shape(), g.Shape(), p.Name())
		if strings.Contains(p.Name(), "weight") {
			assert.True(t, anyNonZero(g.Data()), "zero gradient for %s", p.Name())
		}
	}
}

func anyNonZero(xs []float32) bool {
	for _, x := range xs {
		if x != 0 {
			return true
		}
	}
	return false
}
