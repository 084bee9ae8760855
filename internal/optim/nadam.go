package optim

import (
	"math"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// NAdam implements Adam with Nesterov momentum and a momentum schedule.
//
// Update rule at step t:
//
//	mu_t      = beta1 * (1 - 0.5 * 0.96^(t * psi))          // psi = momentum decay
//	mu_{t+1}  = beta1 * (1 - 0.5 * 0.96^((t+1) * psi))
//	prod_t    = prod_{t-1} * mu_t
//	m_t       = beta1 * m_{t-1} + (1-beta1) * g
//	v_t       = beta2 * v_{t-1} + (1-beta2) * g²
//	denom     = sqrt(v_t / (1 - beta2^t)) + eps
//	param    -= lr * (1-mu_t) / (1-prod_t) * g / denom
//	param    -= lr * mu_{t+1} / (1-prod_t*mu_{t+1}) * m_t / denom
//
// Reference: "Incorporating Nesterov Momentum into Adam" (Dozat, 2016)
type NAdam[B tensor.Backend] struct {
	params        []*nn.Parameter[B]
	lr            float32
	beta1         float64
	beta2         float64
	eps           float64
	momentumDecay float64
	state         map[*nn.Parameter[B]]*moments
}

// NAdamConfig holds configuration for the NAdam optimizer.
type NAdamConfig struct {
	LR            float32    // default: 0.001
	Betas         [2]float32 // default: [0.9, 0.999]
	Eps           float32    // default: 1e-8
	MomentumDecay float32    // default: 0.004
}

// NewNAdam creates a new NAdam optimizer with defaults for unset fields.
func NewNAdam[B tensor.Backend](params []*nn.Parameter[B], config NAdamConfig, _ B) *NAdam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	if config.MomentumDecay == 0 {
		config.MomentumDecay = 0.004
	}
	betas := defaultBetas(config.Betas)

	return &NAdam[B]{
		params:        params,
		lr:            config.LR,
		beta1:         float64(betas[0]),
		beta2:         float64(betas[1]),
		eps:           float64(config.Eps),
		momentumDecay: float64(config.MomentumDecay),
		state:         make(map[*nn.Parameter[B]]*moments),
	}
}

func (n *NAdam[B]) mu(step int) float64 {
	return n.beta1 * (1 - 0.5*math.Pow(0.96, float64(step)*n.momentumDecay))
}

// Step performs a single optimization step.
func (n *NAdam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	lr := float64(n.lr)
	for _, param := range n.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		st, ok := n.state[param]
		if !ok {
			st = newMoments(param.Tensor().NumElements())
			n.state[param] = st
		}
		st.step++

		biasCorrection2 := 1 - math.Pow(n.beta2, float64(st.step))
		mu := n.mu(st.step)
		muNext := n.mu(st.step + 1)
		st.muProduct *= mu

		gradCoef := lr * (1 - mu) / (1 - st.muProduct)
		momentCoef := lr * muNext / (1 - st.muProduct*muNext)

		b1, b2 := float32(n.beta1), float32(n.beta2)
		data := param.Tensor().Data()
		for i, g := range grad {
			st.m[i] = b1*st.m[i] + (1-b1)*g
			st.v[i] = b2*st.v[i] + (1-b2)*g*g

			denom := math.Sqrt(float64(st.v[i])/biasCorrection2) + n.eps
			update := gradCoef*float64(g)/denom + momentCoef*float64(st.m[i])/denom
			data[i] -= float32(update)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (n *NAdam[B]) ZeroGrad() {
	zeroGrads(n.params)
}

// GetLR returns the current learning rate.
func (n *NAdam[B]) GetLR() float32 {
	return n.lr
}

// SetLR updates the learning rate.
func (n *NAdam[B]) SetLR(lr float32) {
	n.lr = lr
}
