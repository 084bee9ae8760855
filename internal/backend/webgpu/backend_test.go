//go:build windows

package webgpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	b, err := New()
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func randomRaw(t *testing.T, shape tensor.Shape, device tensor.Device, rng *rand.Rand) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, device)
	require.NoError(t, err)
	for i := range r.Data() {
		r.Data()[i] = float32(rng.NormFloat64())
	}
	return r
}

func onDevice(t *testing.T, r *tensor.RawTensor, device tensor.Device) *tensor.RawTensor {
	t.Helper()
	out, err := tensor.RawFromSlice(append([]float32(nil), r.Data()...), r.Shape(), device)
	require.NoError(t, err)
	return out
}

func TestMatMulMatchesHost(t *testing.T) {
	b := newBackend(t)
	host := cpu.New()
	rng := rand.New(rand.NewSource(1))

	x := randomRaw(t, tensor.Shape{96, 40}, tensor.WebGPU, rng)
	y := randomRaw(t, tensor.Shape{40, 80}, tensor.WebGPU, rng)

	got := b.MatMul(x, y)
	want := host.MatMul(onDevice(t, x, tensor.CPU), onDevice(t, y, tensor.CPU))

	assert.Equal(t, tensor.WebGPU, got.Device())
	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-3)
}

func TestElementwiseMatchesHost(t *testing.T) {
	b := newBackend(t)
	host := cpu.New()
	rng := rand.New(rand.NewSource(2))

	shape := tensor.Shape{8, 1024}
	x := randomRaw(t, shape, tensor.WebGPU, rng)
	y := randomRaw(t, shape, tensor.WebGPU, rng)
	hx, hy := onDevice(t, x, tensor.CPU), onDevice(t, y, tensor.CPU)

	assert.InDeltaSlice(t, host.Add(hx, hy).Data(), b.Add(x, y).Data(), 1e-5)
	assert.InDeltaSlice(t, host.Sub(hx, hy).Data(), b.Sub(x, y).Data(), 1e-5)
	assert.InDeltaSlice(t, host.Mul(hx, hy).Data(), b.Mul(x, y).Data(), 1e-5)
	assert.InDeltaSlice(t, host.Sigmoid(hx).Data(), b.Sigmoid(x).Data(), 1e-5)
	assert.InDeltaSlice(t, host.Tanh(hx).Data(), b.Tanh(x).Data(), 1e-5)
}

func TestSmallAndBroadcastStayOnHost(t *testing.T) {
	b := newBackend(t)
	rng := rand.New(rand.NewSource(3))

	x := randomRaw(t, tensor.Shape{4, 3}, tensor.WebGPU, rng)
	row := randomRaw(t, tensor.Shape{1, 3}, tensor.WebGPU, rng)
	out := b.Add(x, row)

	assert.Equal(t, tensor.Shape{4, 3}, out.Shape())
	assert.Equal(t, tensor.WebGPU, out.Device())
}

func TestRejectsHostTensors(t *testing.T) {
	b := newBackend(t)
	rng := rand.New(rand.NewSource(4))
	x := randomRaw(t, tensor.Shape{8, 1024}, tensor.CPU, rng)

	assert.Panics(t, func() { b.Sigmoid(x) })
}
