package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// LSTM is a single-layer, unidirectional, batch-first long short-term memory.
//
// For each step t:
//
//	gates = x_t W_ih^T + b_ih + h_{t-1} W_hh^T + b_hh      // [N, 4H]
//	i, f, g, o = σ(gates[0:H]), σ(gates[H:2H]), tanh(gates[2H:3H]), σ(gates[3H:4H])
//	c_t = f * c_{t-1} + i * g
//	h_t = o * tanh(c_t)
//
// Hidden and cell state start at zero on every call. All weights and biases
// are drawn from U(-1/sqrt(H), 1/sqrt(H)).
type LSTM[B tensor.Backend] struct {
	inputSize  int
	hiddenSize int

	weightIH *Parameter[B] // [4H, input_size]
	weightHH *Parameter[B] // [4H, H]
	biasIH   *Parameter[B] // [4H]
	biasHH   *Parameter[B] // [4H]
}

// NewLSTM creates an LSTM layer.
func NewLSTM[B tensor.Backend](inputSize, hiddenSize int, rng *rand.Rand, backend B) *LSTM[B] {
	if inputSize <= 0 || hiddenSize <= 0 {
		panic(fmt.Sprintf("lstm: invalid input_size=%d hidden_size=%d", inputSize, hiddenSize))
	}
	gates := 4 * hiddenSize
	return &LSTM[B]{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		weightIH:   NewParameter("weight_ih", FanInUniform(hiddenSize, tensor.Shape{gates, inputSize}, rng, backend)),
		weightHH:   NewParameter("weight_hh", FanInUniform(hiddenSize, tensor.Shape{gates, hiddenSize}, rng, backend)),
		biasIH:     NewParameter("bias_ih", FanInUniform(hiddenSize, tensor.Shape{gates}, rng, backend)),
		biasHH:     NewParameter("bias_hh", FanInUniform(hiddenSize, tensor.Shape{gates}, rng, backend)),
	}
}

// HiddenSize returns H.
func (l *LSTM[B]) HiddenSize() int {
	return l.hiddenSize
}

// Forward runs the LSTM over a sequence.
//
// Input shape: [N, T, input_size]
// Output shape: [N, T, H] (the hidden state at every step)
func (l *LSTM[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != l.inputSize {
		panic(fmt.Sprintf("LSTM.Forward: expected [N, T, %d], got %v", l.inputSize, shape))
	}
	n, steps := shape[0], shape[1]

	// Project every step at once: [N*T, I] @ [I, 4H] -> [N, T, 4H].
	proj := x.Reshape(n*steps, l.inputSize).
		MatMul(l.weightIH.Tensor().T()).
		Add(l.biasIH.Tensor().Reshape(1, 4*l.hiddenSize)).
		Reshape(n, steps, 4*l.hiddenSize)

	return l.run(n, steps, func(t int) *tensor.Tensor[B] {
		return proj.Narrow(1, t, 1).Reshape(n, 4*l.hiddenSize)
	})
}

// ForwardRepeated runs the LSTM on x repeated for steps time steps.
//
// It equals Forward on the explicitly repeated [N, steps, input_size]
// sequence, but projects the constant input only once.
//
// Input shape: [N, input_size]
// Output shape: [N, steps, H]
func (l *LSTM[B]) ForwardRepeated(x *tensor.Tensor[B], steps int) *tensor.Tensor[B] {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.inputSize {
		panic(fmt.Sprintf("LSTM.ForwardRepeated: expected [N, %d], got %v", l.inputSize, shape))
	}
	if steps <= 0 {
		panic(fmt.Sprintf("LSTM.ForwardRepeated: steps must be positive, got %d", steps))
	}
	n := shape[0]

	proj := x.MatMul(l.weightIH.Tensor().T()).
		Add(l.biasIH.Tensor().Reshape(1, 4*l.hiddenSize))

	return l.run(n, steps, func(int) *tensor.Tensor[B] { return proj })
}

// run unrolls the recurrence given the input projection for each step.
func (l *LSTM[B]) run(n, steps int, inputProj func(t int) *tensor.Tensor[B]) *tensor.Tensor[B] {
	hs := l.hiddenSize
	backend := l.weightHH.Tensor().Backend()
	whhT := l.weightHH.Tensor().T()
	bhh := l.biasHH.Tensor().Reshape(1, 4*hs)

	h := tensor.Zeros(tensor.Shape{n, hs}, backend)
	c := tensor.Zeros(tensor.Shape{n, hs}, backend)
	outputs := make([]*tensor.Tensor[B], steps)

	for t := 0; t < steps; t++ {
		gates := inputProj(t).Add(h.MatMul(whhT)).Add(bhh)
		chunks := gates.Chunk(4, 1)
		i := chunks[0].Sigmoid()
		f := chunks[1].Sigmoid()
		g := chunks[2].Tanh()
		o := chunks[3].Sigmoid()

		c = f.Mul(c).Add(i.Mul(g))
		h = o.Mul(c.Tanh())
		outputs[t] = h
	}
	return tensor.Stack(outputs, 1)
}

// Parameters returns [weight_ih, weight_hh, bias_ih, bias_hh].
func (l *LSTM[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weightIH, l.weightHH, l.biasIH, l.biasHH}
}
