package loss

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Config holds the composite loss weights and SSIM parameters.
type Config struct {
	MSEWeight  float32
	SSIMWeight float32
	SSIM       SSIMConfig
}

// DefaultConfig weighs MSE and SSIM equally.
func DefaultConfig() Config {
	return Config{MSEWeight: 0.5, SSIMWeight: 0.5, SSIM: DefaultSSIMConfig()}
}

// Validate checks the loss configuration.
func (c Config) Validate() error {
	if c.MSEWeight < 0 || c.SSIMWeight < 0 {
		return fmt.Errorf("%w: loss weights must be non-negative, got mse=%g ssim=%g", ErrConfig, c.MSEWeight, c.SSIMWeight)
	}
	if c.MSEWeight == 0 && c.SSIMWeight == 0 {
		return fmt.Errorf("%w: at least one loss weight must be positive", ErrConfig)
	}
	return c.SSIM.Validate()
}

// Composite is the training objective for field sequences:
//
//	loss = mse_weight * MSE(pred, target) + ssim_weight * mean_t(1 - SSIM(pred_t, target_t))
//
// pred and target have shape [N, T, C, H, W].
type Composite[B tensor.Backend] struct {
	cfg  Config
	ssim *SSIM[B]
}

// NewComposite creates the composite loss.
func NewComposite[B tensor.Backend](cfg Config) (*Composite[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ssim, err := NewSSIM[B](cfg.SSIM)
	if err != nil {
		return nil, err
	}
	return &Composite[B]{cfg: cfg, ssim: ssim}, nil
}

// Config returns the loss configuration.
func (l *Composite[B]) Config() Config {
	return l.cfg
}

func (l *Composite[B]) frames(pred, target *tensor.Tensor[B]) (p, t *tensor.Tensor[B], steps int, err error) {
	ps, ts := pred.Shape(), target.Shape()
	if len(ps) != 5 {
		return nil, nil, 0, fmt.Errorf("loss: expected [N, T, C, H, W] prediction, got %v: %w", ps, ErrShape)
	}
	if !ps.Equal(ts) {
		return nil, nil, 0, fmt.Errorf("loss: prediction %v and target %v differ: %w", ps, ts, ErrShape)
	}
	if err := tensor.CheckDevice("loss", pred.Device(), target.Raw()); err != nil {
		return nil, nil, 0, err
	}
	n, steps := ps[0], ps[1]
	// Every time step holds the same number of images, so the mean over all
	// N*T frames equals the mean over time of the per-step batch means.
	p = pred.Reshape(n*steps, ps[2], ps[3], ps[4])
	t = target.Reshape(n*steps, ps[2], ps[3], ps[4])
	return p, t, steps, nil
}

// Forward returns the scalar composite loss.
func (l *Composite[B]) Forward(pred, target *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	p, t, _, err := l.frames(pred, target)
	if err != nil {
		return nil, err
	}

	mse := pred.Sub(target).Square().Mean()
	ssim, err := l.ssim.Forward(p, t)
	if err != nil {
		return nil, err
	}
	ssimLoss := ssim.MulScalar(-1).AddScalar(1)

	return mse.MulScalar(l.cfg.MSEWeight).Add(ssimLoss.MulScalar(l.cfg.SSIMWeight)), nil
}

// Breakdown reports the loss terms of one batch.
type Breakdown struct {
	MSE      float64
	SSIM     float64   // mean SSIM over all frames
	StepSSIM []float64 // mean SSIM over the batch at each time step
	Total    float64
}

// Evaluate computes the loss terms without building a loss tensor. Run it
// with gradient recording disabled.
func (l *Composite[B]) Evaluate(pred, target *tensor.Tensor[B]) (Breakdown, error) {
	p, t, steps, err := l.frames(pred, target)
	if err != nil {
		return Breakdown{}, err
	}
	perImage, err := l.ssim.PerImage(p, t)
	if err != nil {
		return Breakdown{}, err
	}

	var mse float64
	pd, td := pred.Data(), target.Data()
	for i := range pd {
		d := float64(pd[i] - td[i])
		mse += d * d
	}
	mse /= float64(len(pd))

	n := len(perImage) / steps
	stepSSIM := make([]float64, steps)
	var ssim float64
	for i, v := range perImage {
		stepSSIM[i%steps] += v / float64(n)
		ssim += v
	}
	ssim /= float64(len(perImage))

	return Breakdown{
		MSE:      mse,
		SSIM:     ssim,
		StepSSIM: stepSSIM,
		Total:    float64(l.cfg.MSEWeight)*mse + float64(l.cfg.SSIMWeight)*(1-ssim),
	}, nil
}
