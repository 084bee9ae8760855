package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// Used for the attention input projections.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return Uniform(bound, shape, rng, backend)
}

// FanInUniform draws from U(-1/sqrt(fan_in), 1/sqrt(fan_in)).
//
// This matches the default initialization of PyTorch's Linear and Conv
// layers (kaiming uniform with a=sqrt(5)) for both weights and biases, and
// of LSTM weights when fanIn is the hidden size.
func FanInUniform[B tensor.Backend](fanIn int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[B] {
	return Uniform(1/math.Sqrt(float64(fanIn)), shape, rng, backend)
}

// Uniform returns a tensor with values drawn from U(-bound, bound).
// A nil rng uses the global math/rand source.
func Uniform[B tensor.Backend](bound float64, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[B] {
	t := tensor.Zeros(shape, backend)
	data := t.Data()
	for i := range data {
		var u float64
		if rng != nil {
			u = rng.Float64()
		} else {
			u = rand.Float64() //nolint:gosec // G404: weight initialization, not security-critical
		}
		data[i] = float32((u*2 - 1) * bound)
	}
	return t
}
