package optim

import (
	"math"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)   // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	state  map[*nn.Parameter[B]]*moments
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer with defaults for unset fields.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, _ B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	betas := defaultBetas(config.Betas)

	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  betas[0],
		beta2:  betas[1],
		eps:    config.Eps,
		state:  make(map[*nn.Parameter[B]]*moments),
	}
}

// Step performs a single optimization step. Parameters with no gradient
// are skipped and do not advance their step counter.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		st, ok := a.state[param]
		if !ok {
			st = newMoments(param.Tensor().NumElements())
			a.state[param] = st
		}
		st.step++

		biasCorrection1 := float32(1 - math.Pow(float64(a.beta1), float64(st.step)))
		biasCorrection2 := float32(1 - math.Pow(float64(a.beta2), float64(st.step)))

		data := param.Tensor().Data()
		for i, g := range grad {
			st.m[i] = a.beta1*st.m[i] + (1-a.beta1)*g
			st.v[i] = a.beta2*st.v[i] + (1-a.beta2)*g*g

			mHat := st.m[i] / biasCorrection1
			vHat := st.v[i] / biasCorrection2
			data[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	zeroGrads(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}
