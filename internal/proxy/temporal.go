package proxy

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// TemporalExpander turns one static embedding per sample into a sequence.
//
// Expand maps [N, D] to [N, steps, D'] where D' is fixed by the expander.
type TemporalExpander[B tensor.Backend] interface {
	Expand(x *tensor.Tensor[B], steps int) *tensor.Tensor[B]
	OutputSize() int
	Parameters() []*nn.Parameter[B]
}

// LSTMExpander feeds the same embedding to an LSTM at every step.
type LSTMExpander[B tensor.Backend] struct {
	lstm *nn.LSTM[B]
}

// NewLSTMExpander creates an LSTM-backed expander.
func NewLSTMExpander[B tensor.Backend](inputSize, hiddenSize int, rng *rand.Rand, backend B) *LSTMExpander[B] {
	return &LSTMExpander[B]{lstm: nn.NewLSTM(inputSize, hiddenSize, rng, backend)}
}

// Expand runs the LSTM on x repeated steps times.
func (e *LSTMExpander[B]) Expand(x *tensor.Tensor[B], steps int) *tensor.Tensor[B] {
	return e.lstm.ForwardRepeated(x, steps)
}

// OutputSize returns the LSTM hidden width.
func (e *LSTMExpander[B]) OutputSize() int {
	return e.lstm.HiddenSize()
}

// Parameters returns the LSTM weights.
func (e *LSTMExpander[B]) Parameters() []*nn.Parameter[B] {
	return e.lstm.Parameters()
}

// RecurrentExpansion maps an encoded frame to a sequence of frames.
//
// The frame [N, C, h, w] is flattened channel-major to [N, C*h*w], expanded
// to [N, T, hidden*h*w] and reshaped to [N, T, hidden, h, w].
type RecurrentExpansion[B tensor.Backend] struct {
	expander TemporalExpander[B]
	steps    int
	hidden   int
	h, w     int
}

// NewRecurrentExpansion wraps expander for frames of size h x w. The
// expander's output size must be a multiple of h*w.
func NewRecurrentExpansion[B tensor.Backend](expander TemporalExpander[B], steps, h, w int) (*RecurrentExpansion[B], error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: timesteps must be positive, got %d", ErrConfig, steps)
	}
	if expander.OutputSize()%(h*w) != 0 {
		return nil, fmt.Errorf("%w: expander width %d is not a multiple of %dx%d",
			ErrConfig, expander.OutputSize(), h, w)
	}
	return &RecurrentExpansion[B]{
		expander: expander,
		steps:    steps,
		hidden:   expander.OutputSize() / (h * w),
		h:        h,
		w:        w,
	}, nil
}

// Forward maps [N, C, h, w] to [N, T, hidden, h, w].
func (r *RecurrentExpansion[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := x.Shape()
	if len(shape) != 4 || shape[2] != r.h || shape[3] != r.w {
		panic(fmt.Sprintf("RecurrentExpansion.Forward: expected [N, C, %d, %d], got %v", r.h, r.w, shape))
	}
	n := shape[0]

	seq := r.expander.Expand(x.Reshape(n, shape[1]*r.h*r.w), r.steps)
	return seq.Reshape(n, r.steps, r.hidden, r.h, r.w)
}

// Steps returns the sequence length T.
func (r *RecurrentExpansion[B]) Steps() int {
	return r.steps
}

// Parameters returns the expander's parameters.
func (r *RecurrentExpansion[B]) Parameters() []*nn.Parameter[B] {
	return r.expander.Parameters()
}
