// Package loss implements the reconstruction losses used to train the proxy
// model: mean squared error, structural similarity (SSIM) and their
// weighted composite over predicted field sequences.
//
// All losses are built from differentiable tensor operations, so running
// them on an autodiff backend records everything needed for Backward.
package loss

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Sentinel errors.
var (
	ErrConfig = errors.New("invalid loss configuration")
	ErrShape  = tensor.ErrShape
)

// SSIMConfig holds the structural similarity parameters.
type SSIMConfig struct {
	WindowSize int     // gaussian window side, odd (default 11)
	Sigma      float64 // gaussian standard deviation (default 1.5)
	K1         float64 // luminance constant (default 0.01)
	K2         float64 // contrast constant (default 0.03)
	DataRange  float64 // value range of the fields (default 1.0)
}

// DefaultSSIMConfig returns the standard SSIM parameters.
func DefaultSSIMConfig() SSIMConfig {
	return SSIMConfig{WindowSize: 11, Sigma: 1.5, K1: 0.01, K2: 0.03, DataRange: 1.0}
}

// Validate checks the SSIM parameters.
func (c SSIMConfig) Validate() error {
	if c.WindowSize <= 0 || c.WindowSize%2 == 0 {
		return fmt.Errorf("%w: ssim window size must be a positive odd number, got %d", ErrConfig, c.WindowSize)
	}
	if c.Sigma <= 0 || c.DataRange <= 0 {
		return fmt.Errorf("%w: ssim sigma (%g) and data range (%g) must be positive", ErrConfig, c.Sigma, c.DataRange)
	}
	if c.K1 <= 0 || c.K2 <= 0 {
		return fmt.Errorf("%w: ssim constants K1=%g K2=%g must be positive", ErrConfig, c.K1, c.K2)
	}
	return nil
}

// GaussianWindow returns a size x size window, row-major, built as the outer
// product of a normalized 1D gaussian. It sums to 1.
func GaussianWindow(size int, sigma float64) []float32 {
	g := make([]float64, size)
	var sum float64
	for i := range g {
		d := float64(i) - float64(size-1)/2
		g[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += g[i]
	}
	for i := range g {
		g[i] /= sum
	}

	w := make([]float32, size*size)
	for i := range g {
		for j := range g {
			w[i*size+j] = float32(g[i] * g[j])
		}
	}
	return w
}

// SSIM computes the structural similarity between image batches.
//
// Local statistics come from a gaussian window applied to each channel over
// the valid region (no padding). The index is averaged over channels and
// positions of each image, then over the batch.
type SSIM[B tensor.Backend] struct {
	cfg     SSIMConfig
	c1, c2  float32
	window  []float32
	kernels map[int]*tensor.Tensor[B] // depthwise window per channel count
}

// NewSSIM creates an SSIM metric.
func NewSSIM[B tensor.Backend](cfg SSIMConfig) (*SSIM[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SSIM[B]{
		cfg:     cfg,
		c1:      float32(math.Pow(cfg.K1*cfg.DataRange, 2)),
		c2:      float32(math.Pow(cfg.K2*cfg.DataRange, 2)),
		window:  GaussianWindow(cfg.WindowSize, cfg.Sigma),
		kernels: make(map[int]*tensor.Tensor[B]),
	}, nil
}

// Config returns the SSIM parameters.
func (s *SSIM[B]) Config() SSIMConfig {
	return s.cfg
}

func (s *SSIM[B]) kernel(channels int, backend B) *tensor.Tensor[B] {
	if k, ok := s.kernels[channels]; ok && k.Device() == backend.Device() {
		return k
	}
	k := s.cfg.WindowSize
	data := make([]float32, 0, channels*k*k)
	for c := 0; c < channels; c++ {
		data = append(data, s.window...)
	}
	t, err := tensor.FromSlice(data, tensor.Shape{channels, 1, k, k}, backend)
	if err != nil {
		panic(err)
	}
	s.kernels[channels] = t
	return t
}

func (s *SSIM[B]) check(pred, target *tensor.Tensor[B]) error {
	ps, ts := pred.Shape(), target.Shape()
	if len(ps) != 4 {
		return fmt.Errorf("ssim: expected [N, C, H, W] images, got %v: %w", ps, ErrShape)
	}
	if !ps.Equal(ts) {
		return fmt.Errorf("ssim: prediction %v and target %v differ: %w", ps, ts, ErrShape)
	}
	if ps[2] < s.cfg.WindowSize || ps[3] < s.cfg.WindowSize {
		return fmt.Errorf("ssim: %dx%d images are smaller than the %d window: %w",
			ps[2], ps[3], s.cfg.WindowSize, ErrShape)
	}
	return tensor.CheckDevice("ssim", pred.Device(), target.Raw())
}

// Map returns the per-position SSIM index of shape [N, C, H-k+1, W-k+1].
func (s *SSIM[B]) Map(pred, target *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	if err := s.check(pred, target); err != nil {
		return nil, err
	}
	backend := pred.Backend()
	channels := pred.Shape()[1]
	kernel := s.kernel(channels, backend)

	blur := func(x *tensor.Tensor[B]) *tensor.Tensor[B] {
		return tensor.New(backend.Conv2D(x.Raw(), kernel.Raw(), 1, 0, channels), backend)
	}

	muX := blur(pred)
	muY := blur(target)
	muXX := muX.Square()
	muYY := muY.Square()
	muXY := muX.Mul(muY)

	sigmaXX := blur(pred.Square()).Sub(muXX)
	sigmaYY := blur(target.Square()).Sub(muYY)
	sigmaXY := blur(pred.Mul(target)).Sub(muXY)

	num := muXY.MulScalar(2).AddScalar(s.c1).Mul(sigmaXY.MulScalar(2).AddScalar(s.c2))
	den := muXX.Add(muYY).AddScalar(s.c1).Mul(sigmaXX.Add(sigmaYY).AddScalar(s.c2))
	return num.Div(den), nil
}

// Forward returns the mean SSIM over the batch as a scalar tensor.
func (s *SSIM[B]) Forward(pred, target *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	m, err := s.Map(pred, target)
	if err != nil {
		return nil, err
	}
	return m.Mean(), nil
}

// PerImage returns the mean SSIM of every image in the batch.
func (s *SSIM[B]) PerImage(pred, target *tensor.Tensor[B]) ([]float64, error) {
	m, err := s.Map(pred, target)
	if err != nil {
		return nil, err
	}
	n := m.Shape()[0]
	data := m.Data()
	per := len(data) / n

	out := make([]float64, n)
	for i := range out {
		var sum float64
		for _, v := range data[i*per : (i+1)*per] {
			sum += float64(v)
		}
		out[i] = sum / float64(per)
	}
	return out, nil
}
