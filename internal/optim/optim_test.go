package optim_test

import (
	"math"
	"testing"

	"github.com/born-ml/fieldproxy/internal/autodiff"
	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/optim"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cpuParam = nn.Parameter[*cpu.CPUBackend]

func scalarParam(t *testing.T, v float32) (*cpuParam, *cpu.CPUBackend) {
	t.Helper()
	backend := cpu.New()
	x, err := tensor.FromSlice([]float32{v}, tensor.Shape{1}, backend)
	require.NoError(t, err)
	return nn.NewParameter("x", x), backend
}

func gradFor(p *cpuParam, g float32) map[*tensor.RawTensor]*tensor.RawTensor {
	raw, err := tensor.RawFromSlice([]float32{g}, tensor.Shape{1}, tensor.CPU)
	if err != nil {
		panic(err)
	}
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): raw}
}

func TestSGD_SimpleUpdate(t *testing.T) {
	param, backend := scalarParam(t, 2)
	opt := optim.NewSGD([]*cpuParam{param}, optim.SGDConfig{LR: 0.1}, backend)

	opt.Step(gradFor(param, 1))
	assert.InDelta(t, 1.9, param.Tensor().Item(), 1e-6)
}

func TestSGD_WithMomentum(t *testing.T) {
	param, backend := scalarParam(t, 1)
	opt := optim.NewSGD([]*cpuParam{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)

	opt.Step(gradFor(param, 1)) // v=1
	assert.InDelta(t, 0.9, param.Tensor().Item(), 1e-6)

	opt.Step(gradFor(param, 1)) // v=1.9
	assert.InDelta(t, 0.71, param.Tensor().Item(), 1e-6)
}

func TestAdam_BiasCorrectedSteps(t *testing.T) {
	param, backend := scalarParam(t, 2)
	opt := optim.NewAdam([]*cpuParam{param}, optim.AdamConfig{LR: 0.1}, backend)

	// With a constant gradient the corrected ratio m_hat/sqrt(v_hat) is 1.
	opt.Step(gradFor(param, 0.5))
	assert.InDelta(t, 1.9, param.Tensor().Item(), 1e-5)

	opt.Step(gradFor(param, 0.5))
	assert.InDelta(t, 1.8, param.Tensor().Item(), 1e-5)
	assert.InDelta(t, 0.1, opt.GetLR(), 1e-9)
}

func TestNAdam_MatchesReference(t *testing.T) {
	const (
		lr    = 0.01
		beta1 = 0.9
		beta2 = 0.999
		eps   = 1e-8
		decay = 0.004
	)
	mu := func(step int) float64 {
		return beta1 * (1 - 0.5*math.Pow(0.96, float64(step)*decay))
	}

	param, backend := scalarParam(t, 1)
	opt := optim.NewNAdam([]*cpuParam{param}, optim.NAdamConfig{LR: lr}, backend)

	x, m, v, prod := 1.0, 0.0, 0.0, 1.0
	for step, g := range []float64{0.3, -0.2, 0.5} {
		opt.Step(gradFor(param, float32(g)))

		tt := step + 1
		m = beta1*m + (1-beta1)*g
		v = beta2*v + (1-beta2)*g*g
		muT, muNext := mu(tt), mu(tt+1)
		prod *= muT
		denom := math.Sqrt(v/(1-math.Pow(beta2, float64(tt)))) + eps
		x -= lr * (1 - muT) / (1 - prod) * g / denom
		x -= lr * muNext / (1 - prod*muNext) * m / denom

		assert.InDelta(t, x, param.Tensor().Item(), 1e-6, "step %d", tt)
	}
}

func TestOptimizers_SkipMissingGradients(t *testing.T) {
	for _, name := range optim.Names {
		t.Run(name, func(t *testing.T) {
			param, backend := scalarParam(t, 4)
			opt, err := optim.New(name, []*cpuParam{param}, optim.Config{LR: 0.1}, backend)
			require.NoError(t, err)

			opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
			assert.Equal(t, float32(4), param.Tensor().Item())
		})
	}
}

func TestNew_UnknownName(t *testing.T) {
	param, backend := scalarParam(t, 0)
	_, err := optim.New("lbfgs", []*cpuParam{param}, optim.Config{}, backend)
	require.ErrorIs(t, err, optim.ErrUnknownOptimizer)

	opt, err := optim.New("NAdam", []*cpuParam{param}, optim.Config{}, backend)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, opt.GetLR(), 1e-9)
}

func TestZeroGrad(t *testing.T) {
	param, backend := scalarParam(t, 1)
	param.SetGrad(tensor.Ones(tensor.Shape{1}, backend))

	opt := optim.NewNAdam([]*cpuParam{param}, optim.NAdamConfig{}, backend)
	opt.ZeroGrad()
	assert.Nil(t, param.Grad())
}

// TestOptimizers_MinimizeQuadratic drives (x-3)² to its minimum through the
// autodiff tape.
func TestOptimizers_MinimizeQuadratic(t *testing.T) {
	for _, name := range optim.Names {
		t.Run(name, func(t *testing.T) {
			backend := autodiff.New(cpu.New())
			x, err := tensor.FromSlice([]float32{0}, tensor.Shape{1}, backend)
			require.NoError(t, err)
			param := nn.NewParameter("x", x)

			opt, err := optim.New(name, []*nn.Parameter[*autodiff.AutodiffBackend[*cpu.CPUBackend]]{param},
				optim.Config{LR: 0.1, Momentum: 0.5}, backend)
			require.NoError(t, err)

			for i := 0; i < 500; i++ {
				backend.Tape().Clear()
				backend.Tape().StartRecording()
				loss := param.Tensor().AddScalar(-3).Square().Sum()
				grads, err := autodiff.Backward(loss, backend)
				require.NoError(t, err)
				backend.Tape().StopRecording()
				opt.Step(grads)
			}
			assert.InDelta(t, 3, param.Tensor().Item(), 0.1)
		})
	}
}
