package loss_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/fieldproxy/internal/autodiff"
	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/loss"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

type cpuTensor = tensor.Tensor[*cpu.CPUBackend]

func randImages(seed int64, shape ...int) *cpuTensor {
	return tensor.Rand(tensor.Shape(shape), rand.New(rand.NewSource(seed)), cpu.New())
}

// naiveSSIM evaluates the windowed SSIM of one single-channel image in float64.
func naiveSSIM(x, y []float32, h, w int, cfg loss.SSIMConfig) float64 {
	k := cfg.WindowSize
	win := loss.GaussianWindow(k, cfg.Sigma)
	c1 := math.Pow(cfg.K1*cfg.DataRange, 2)
	c2 := math.Pow(cfg.K2*cfg.DataRange, 2)

	var total float64
	outH, outW := h-k+1, w-k+1
	for i := 0; i < outH; i++ {
		for j := 0; j < outW; j++ {
			var mx, my, mxx, myy, mxy float64
			for a := 0; a < k; a++ {
				for b := 0; b < k; b++ {
					g := float64(win[a*k+b])
					xv := float64(x[(i+a)*w+j+b])
					yv := float64(y[(i+a)*w+j+b])
					mx += g * xv
					my += g * yv
					mxx += g * xv * xv
					myy += g * yv * yv
					mxy += g * xv * yv
				}
			}
			sxx, syy, sxy := mxx-mx*mx, myy-my*my, mxy-mx*my
			total += ((2*mx*my + c1) * (2*sxy + c2)) / ((mx*mx + my*my + c1) * (sxx + syy + c2))
		}
	}
	return total / float64(outH*outW)
}

func TestGaussianWindow(t *testing.T) {
	w := loss.GaussianWindow(11, 1.5)
	require.Len(t, w, 121)

	var sum float64
	for _, v := range w {
		sum += float64(v)
	}
	assert.InDelta(t, 1, sum, 1e-6)

	center := w[5*11+5]
	for i, v := range w {
		assert.LessOrEqual(t, v, center)
		r, c := i/11, i%11
		assert.InDelta(t, v, w[c*11+r], 1e-9)
		assert.InDelta(t, v, w[(10-r)*11+(10-c)], 1e-9)
	}
}

func TestSSIM_IdenticalImages(t *testing.T) {
	ssim, err := loss.NewSSIM[*cpu.CPUBackend](loss.DefaultSSIMConfig())
	require.NoError(t, err)

	x := randImages(1, 2, 3, 16, 16)
	got, err := ssim.Forward(x, x.Clone())
	require.NoError(t, err)
	assert.InDelta(t, 1, got.Item(), 1e-5)
}

func TestSSIM_MatchesNaive(t *testing.T) {
	cfg := loss.DefaultSSIMConfig()
	ssim, err := loss.NewSSIM[*cpu.CPUBackend](cfg)
	require.NoError(t, err)

	const h, w = 14, 17
	x := randImages(2, 2, 1, h, w)
	y := randImages(3, 2, 1, h, w)

	per, err := ssim.PerImage(x, y)
	require.NoError(t, err)
	require.Len(t, per, 2)

	plane := h * w
	for n := 0; n < 2; n++ {
		want := naiveSSIM(x.Data()[n*plane:(n+1)*plane], y.Data()[n*plane:(n+1)*plane], h, w, cfg)
		assert.InDelta(t, want, per[n], 1e-4, "image %d", n)
	}

	mean, err := ssim.Forward(x, y)
	require.NoError(t, err)
	assert.InDelta(t, (per[0]+per[1])/2, mean.Item(), 1e-5)

	m, err := ssim.Map(x, y)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, h - 10, w - 10}, m.Shape())
}

func TestSSIM_Errors(t *testing.T) {
	ssim, err := loss.NewSSIM[*cpu.CPUBackend](loss.DefaultSSIMConfig())
	require.NoError(t, err)

	_, err = ssim.Forward(randImages(1, 1, 1, 16, 16), randImages(1, 1, 1, 16, 15))
	assert.ErrorIs(t, err, loss.ErrShape)

	_, err = ssim.Forward(randImages(1, 1, 1, 8, 16), randImages(1, 1, 1, 8, 16))
	assert.ErrorIs(t, err, loss.ErrShape)

	_, err = ssim.Forward(randImages(1, 16, 16), randImages(1, 16, 16))
	assert.ErrorIs(t, err, loss.ErrShape)

	bad := loss.DefaultSSIMConfig()
	bad.WindowSize = 10
	_, err = loss.NewSSIM[*cpu.CPUBackend](bad)
	assert.ErrorIs(t, err, loss.ErrConfig)
}

func TestComposite_Config(t *testing.T) {
	require.NoError(t, loss.DefaultConfig().Validate())

	for name, cfg := range map[string]loss.Config{
		"negative weight": {MSEWeight: -1, SSIMWeight: 1, SSIM: loss.DefaultSSIMConfig()},
		"both zero":       {SSIM: loss.DefaultSSIMConfig()},
		"bad sigma":       {MSEWeight: 1, SSIM: loss.SSIMConfig{WindowSize: 11, K1: 0.01, K2: 0.03, DataRange: 1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := loss.NewComposite[*cpu.CPUBackend](cfg)
			assert.ErrorIs(t, err, loss.ErrConfig)
		})
	}
}

func TestComposite_IdenticalIsZero(t *testing.T) {
	l, err := loss.NewComposite[*cpu.CPUBackend](loss.DefaultConfig())
	require.NoError(t, err)

	x := randImages(4, 2, 3, 2, 12, 12)
	got, err := l.Forward(x, x.Clone())
	require.NoError(t, err)
	assert.InDelta(t, 0, got.Item(), 1e-5)
}

func TestComposite_MSEOnly(t *testing.T) {
	cfg := loss.DefaultConfig()
	cfg.MSEWeight, cfg.SSIMWeight = 1, 0
	l, err := loss.NewComposite[*cpu.CPUBackend](cfg)
	require.NoError(t, err)

	pred := randImages(10, 2, 2, 2, 12, 12)
	target := randImages(11, 2, 2, 2, 12, 12)
	want := pred.Sub(target).Square().Mean()

	got, err := l.Forward(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, want.Item(), got.Item(), 1e-6)
}

func TestComposite_AveragesSSIMOverTime(t *testing.T) {
	l, err := loss.NewComposite[*cpu.CPUBackend](loss.DefaultConfig())
	require.NoError(t, err)
	ssim, err := loss.NewSSIM[*cpu.CPUBackend](loss.DefaultSSIMConfig())
	require.NoError(t, err)

	const n, steps = 2, 3
	pred := randImages(5, n, steps, 2, 12, 13)
	target := randImages(6, n, steps, 2, 12, 13)

	var mse float64
	for i, p := range pred.Data() {
		d := float64(p - target.Data()[i])
		mse += d * d
	}
	mse /= float64(pred.NumElements())

	var ssimLoss float64
	for s := 0; s < steps; s++ {
		p := pred.Narrow(1, s, 1).Reshape(n, 2, 12, 13)
		tg := target.Narrow(1, s, 1).Reshape(n, 2, 12, 13)
		v, err := ssim.Forward(p, tg)
		require.NoError(t, err)
		ssimLoss += 1 - float64(v.Item())
	}
	ssimLoss /= steps

	got, err := l.Forward(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*mse+0.5*ssimLoss, got.Item(), 1e-5)

	breakdown, err := l.Evaluate(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, mse, breakdown.MSE, 1e-6)
	assert.InDelta(t, float64(got.Item()), breakdown.Total, 1e-5)
	require.Len(t, breakdown.StepSSIM, steps)

	var meanStep float64
	for _, v := range breakdown.StepSSIM {
		meanStep += v / steps
	}
	assert.InDelta(t, breakdown.SSIM, meanStep, 1e-9)
}

func TestComposite_Errors(t *testing.T) {
	l, err := loss.NewComposite[*cpu.CPUBackend](loss.DefaultConfig())
	require.NoError(t, err)

	_, err = l.Forward(randImages(1, 1, 2, 2, 12, 12), randImages(1, 1, 3, 2, 12, 12))
	assert.ErrorIs(t, err, loss.ErrShape)

	_, err = l.Forward(randImages(1, 2, 2, 12, 12), randImages(1, 2, 2, 12, 12))
	assert.ErrorIs(t, err, loss.ErrShape)

	_, err = l.Forward(randImages(1, 1, 2, 2, 6, 6), randImages(1, 1, 2, 2, 6, 6))
	assert.ErrorIs(t, err, loss.ErrShape)

	raw := tensor.MustRaw(tensor.Shape{1, 2, 2, 12, 12}, tensor.WebGPU)
	_, err = l.Forward(randImages(1, 1, 2, 2, 12, 12), tensor.New(raw, cpu.New()))
	assert.ErrorIs(t, err, tensor.ErrDevice)
}

func TestComposite_Gradient(t *testing.T) {
	shape := tensor.Shape{1, 2, 1, 11, 12}
	target := randImages(8, shape...)
	x0 := make([]float64, shape.NumElements())
	rng := rand.New(rand.NewSource(9))
	for i := range x0 {
		x0[i] = rng.Float64()
	}

	eval := func(x []float64, b *autodiff.AutodiffBackend[*cpu.CPUBackend]) (*tensor.Tensor[*autodiff.AutodiffBackend[*cpu.CPUBackend]], *tensor.Tensor[*autodiff.AutodiffBackend[*cpu.CPUBackend]]) {
		data := make([]float32, len(x))
		for i := range x {
			data[i] = float32(x[i])
		}
		pred, err := tensor.FromSlice(data, shape, b)
		require.NoError(t, err)
		tg, err := tensor.FromSlice(target.Data(), shape, b)
		require.NoError(t, err)

		l, err := loss.NewComposite[*autodiff.AutodiffBackend[*cpu.CPUBackend]](loss.DefaultConfig())
		require.NoError(t, err)
		out, err := l.Forward(pred, tg)
		require.NoError(t, err)
		return pred, out
	}

	numeric := fd.Gradient(nil, func(x []float64) float64 {
		_, out := eval(x, autodiff.New(cpu.New()))
		return float64(out.Item())
	}, x0, &fd.Settings{Formula: fd.Central, Step: 5e-3})

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	pred, out := eval(x0, backend)
	grads, err := autodiff.Backward(out, backend)
	require.NoError(t, err)

	analytic := grads[pred.Raw()].Data()
	for i := range numeric {
		tol := 2e-2 * math.Max(1e-2, math.Abs(numeric[i]))
		assert.InDelta(t, numeric[i], float64(analytic[i]), math.Max(tol, 2e-4), "element %d", i)
	}
}
