// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - NAdam: Adam with Nesterov momentum (the trainer default)
//   - Adam: Adaptive Moment Estimation
//   - SGD: Stochastic Gradient Descent with momentum
//
// Design inspired by PyTorch's torch.optim; update rules match it exactly,
// including per-parameter step counters.
//
// Example usage:
//
//	optimizer, err := optim.New("nadam", model.Parameters(), optim.Config{LR: 0.001}, backend)
//
//	backend.Tape().StartRecording()
//	loss, err := lossFn.Forward(model.Forward(input), targets)
//	grads, err := autodiff.Backward(loss, backend)
//	optimizer.Step(grads)
//	optimizer.ZeroGrad()
package optim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// ErrUnknownOptimizer is returned by New for an unsupported optimizer name.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters in place based on computed gradients.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// grads maps each parameter's RawTensor to its gradient, as returned by
	// autodiff.Backward. Parameters missing from the map are left untouched.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
//
// Zero fields take each optimizer's PyTorch default.
type Config struct {
	LR       float32    // Learning rate
	Betas    [2]float32 // Adam/NAdam moment coefficients
	Eps      float32    // Adam/NAdam denominator term
	Momentum float32    // SGD momentum
}

// Names lists the optimizers New accepts.
var Names = []string{"nadam", "adam", "sgd"}

// New builds the optimizer called name ("nadam", "adam" or "sgd").
func New[B tensor.Backend](name string, params []*nn.Parameter[B], cfg Config, backend B) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "nadam":
		return NewNAdam(params, NAdamConfig{LR: cfg.LR, Betas: cfg.Betas, Eps: cfg.Eps}, backend), nil
	case "adam":
		return NewAdam(params, AdamConfig{LR: cfg.LR, Betas: cfg.Betas, Eps: cfg.Eps}, backend), nil
	case "sgd":
		return NewSGD(params, SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}, backend), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownOptimizer, name, strings.Join(Names, ", "))
	}
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	if param == nil {
		return nil
	}
	g, ok := grads[param.Tensor().Raw()]
	if !ok || g == nil {
		return nil
	}
	if !g.Shape().Equal(param.Tensor().Shape()) {
		panic(fmt.Sprintf("optim: gradient shape %v does not match parameter %q shape %v",
			g.Shape(), param.Name(), param.Tensor().Shape()))
	}
	return g.Data()
}

// moments holds the per-parameter state of the Adam family.
type moments struct {
	step      int
	muProduct float64 // NAdam only
	m         []float32
	v         []float32
}

func newMoments(n int) *moments {
	return &moments{
		muProduct: 1,
		m:         make([]float32, n),
		v:         make([]float32, n),
	}
}

func zeroGrads[B tensor.Backend](params []*nn.Parameter[B]) {
	for _, param := range params {
		param.ZeroGrad()
	}
}

func defaultBetas(betas [2]float32) [2]float32 {
	if betas[0] == 0 {
		betas[0] = 0.9
	}
	if betas[1] == 0 {
		betas[1] = 0.999
	}
	return betas
}
