package nn

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// TimeDistributed applies a frame module independently to every time step.
//
// The time axis is folded into the batch, so the inner module sees
// [N*T, C, H, W] and must treat samples independently (no batch statistics).
//
// Input shape:  [N, T, C, H, W]
// Output shape: [N, T, C', H', W']
type TimeDistributed[B tensor.Backend] struct {
	inner Module[B]
}

// NewTimeDistributed wraps a frame module.
func NewTimeDistributed[B tensor.Backend](inner Module[B]) *TimeDistributed[B] {
	return &TimeDistributed[B]{inner: inner}
}

// Forward merges the batch and time axes, applies the inner module and
// splits them again.
func (td *TimeDistributed[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if len(shape) < 3 {
		panic(fmt.Sprintf("TimeDistributed.Forward: expected [N, T, ...], got %v", shape))
	}
	n, steps := shape[0], shape[1]

	merged := make([]int, 0, len(shape)-1)
	merged = append(merged, n*steps)
	merged = append(merged, shape[2:]...)

	out := td.inner.Forward(input.Reshape(merged...))

	outShape := out.Shape()
	split := make([]int, 0, len(outShape)+1)
	split = append(split, n, steps)
	split = append(split, outShape[1:]...)
	return out.Reshape(split...)
}

// Parameters returns the inner module's parameters; the wrapper has none.
func (td *TimeDistributed[B]) Parameters() []*Parameter[B] {
	return td.inner.Parameters()
}
