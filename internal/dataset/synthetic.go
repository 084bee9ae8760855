package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// SyntheticConfig describes a generated advection-diffusion dataset.
type SyntheticConfig struct {
	Samples   int
	Height    int
	Width     int
	Timesteps int
	Seed      int64
}

// Synthetic generates samples of a gaussian blob drifting with a constant
// velocity while it spreads and decays.
//
// Input channels: initial concentration, velocity x, velocity y, decay rate.
// Target channels per step: concentration c(t) and the decayed species
// c(t)*exp(-k*t).
func Synthetic(cfg SyntheticConfig) (*MemoryDataset, error) {
	if cfg.Samples <= 0 || cfg.Height <= 0 || cfg.Width <= 0 || cfg.Timesteps <= 0 {
		return nil, fmt.Errorf("dataset: synthetic config %+v must be positive", cfg)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	samples := make([]Sample, cfg.Samples)
	for i := range samples {
		samples[i] = syntheticSample(cfg, rng)
	}
	return NewMemoryDataset(samples), nil
}

func syntheticSample(cfg SyntheticConfig, rng *rand.Rand) Sample {
	h, w, steps := cfg.Height, cfg.Width, cfg.Timesteps
	plane := h * w

	cy := float64(h) * (0.25 + 0.5*rng.Float64())
	cx := float64(w) * (0.25 + 0.5*rng.Float64())
	sigma0 := 1 + 0.1*math.Min(float64(h), float64(w))*rng.Float64()
	// Drift across at most half the domain over the horizon.
	vy := (rng.Float64() - 0.5) * float64(h) / float64(steps)
	vx := (rng.Float64() - 0.5) * float64(w) / float64(steps)
	diffusion := 0.05 + 0.2*rng.Float64()
	decay := 0.01 + 0.05*rng.Float64()

	blob := func(dst []float32, t float64) {
		s2 := sigma0*sigma0 + 2*diffusion*t
		amp := sigma0 * sigma0 / s2
		py, px := cy+vy*t, cx+vx*t
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dy, dx := float64(y)-py, float64(x)-px
				dst[y*w+x] = float32(amp * math.Exp(-(dy*dy+dx*dx)/(2*s2)))
			}
		}
	}

	input := make([]float32, 4*plane)
	blob(input[:plane], 0)
	for j := 0; j < plane; j++ {
		input[plane+j] = float32(vx)
		input[2*plane+j] = float32(vy)
		input[3*plane+j] = float32(decay)
	}
	// Mild spatial structure so the constant channels are not degenerate
	// after normalization.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			input[3*plane+y*w+x] *= float32(1 + 0.1*math.Sin(float64(x+y)/4))
		}
	}

	target := make([]float32, steps*2*plane)
	for t := 0; t < steps; t++ {
		base := t * 2 * plane
		c := target[base : base+plane]
		blob(c, float64(t+1))
		k := float32(math.Exp(-decay * float64(t+1)))
		for j, v := range c {
			target[base+plane+j] = v * k
		}
	}

	MinMaxNormalize(input)
	MinMaxNormalize(target)
	return Sample{
		Input:  Field{Data: input, Shape: tensor.Shape{4, h, w}},
		Target: Field{Data: target, Shape: tensor.Shape{steps, 2, h, w}},
	}
}

// Export writes every sample of ds as a pair of .npy files named
// sample_00000.npy under inputDir and targetDir.
func Export(ds Dataset, inputDir, targetDir string) error {
	for i := 0; i < ds.Len(); i++ {
		s, err := ds.Get(i)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("sample_%05d.npy", i)
		if err := WriteNPY(filepath.Join(inputDir, name), s.Input.Data, s.Input.Shape); err != nil {
			return err
		}
		if err := WriteNPY(filepath.Join(targetDir, name), s.Target.Data, s.Target.Shape); err != nil {
			return err
		}
	}
	return nil
}
