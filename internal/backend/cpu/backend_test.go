package cpu

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.RawFromSlice(data, tensor.Shape(shape), tensor.CPU)
	require.NoError(t, err)
	return r
}

func randRaw(rng *rand.Rand, shape ...int) *tensor.RawTensor {
	r := tensor.MustRaw(tensor.Shape(shape), tensor.CPU)
	for i := range r.Data() {
		r.Data()[i] = float32(rng.NormFloat64())
	}
	return r
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestCPUBackend_New(t *testing.T) {
	backend := New()
	assert.Equal(t, tensor.CPU, backend.Device())
	assert.Contains(t, backend.Name(), "CPU")

	tagged := New(WithDevice(tensor.WebGPU), WithParallel(parallel.Config{}))
	assert.Equal(t, tensor.WebGPU, tagged.Device())
	assert.False(t, tagged.Parallel().Enabled)

	out := tagged.AddScalar(tensor.MustRaw(tensor.Shape{2}, tensor.WebGPU), 1)
	assert.Equal(t, tensor.WebGPU, out.Device())
}

func TestCPUBackend_Add(t *testing.T) {
	backend := New()
	a := raw(t, []float32{1, 2, 3, 4}, 2, 2)
	b := raw(t, []float32{10, 20, 30, 40}, 2, 2)

	c := backend.Add(a, b)
	assert.Equal(t, []float32{11, 22, 33, 44}, c.Data())
	assert.Equal(t, []float32{1, 2, 3, 4}, a.Data(), "operands are not modified")
}

func TestCPUBackend_Broadcasting(t *testing.T) {
	backend := New()

	tests := []struct {
		name string
		op   func(a, b *tensor.RawTensor) *tensor.RawTensor
		a, b *tensor.RawTensor
		want []float32
	}{
		{
			name: "add column",
			op:   backend.Add,
			a:    raw(t, []float32{1, 2}, 2, 1),
			b:    raw(t, []float32{10, 20, 30}, 1, 3),
			want: []float32{11, 21, 31, 12, 22, 32},
		},
		{
			name: "sub row",
			op:   backend.Sub,
			a:    raw(t, []float32{5, 6, 7, 8, 9, 10}, 2, 3),
			b:    raw(t, []float32{1, 2, 3}, 3),
			want: []float32{4, 4, 4, 7, 7, 7},
		},
		{
			name: "mul channel bias",
			op:   backend.Mul,
			a:    raw(t, []float32{1, 1, 1, 1, 1, 1, 1, 1}, 1, 2, 2, 2),
			b:    raw(t, []float32{2, 3}, 1, 2, 1, 1),
			want: []float32{2, 2, 2, 2, 3, 3, 3, 3},
		},
		{
			name: "div scalar",
			op:   backend.Div,
			a:    raw(t, []float32{2, 4, 6}, 3),
			b:    raw(t, []float32{2}),
			want: []float32{1, 2, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op(tt.a, tt.b).Data())
		})
	}

	assert.Panics(t, func() {
		backend.Add(raw(t, make([]float32, 6), 2, 3), raw(t, make([]float32, 4), 2, 2))
	})
}

func TestCPUBackend_Scalar(t *testing.T) {
	backend := New()
	x := raw(t, []float32{1, -2}, 2)
	assert.Equal(t, []float32{3, 0}, backend.AddScalar(x, 2).Data())
	assert.Equal(t, []float32{-3, 6}, backend.MulScalar(x, -3).Data())
}

func TestCPUBackend_DeviceMismatch(t *testing.T) {
	backend := New()
	a := tensor.MustRaw(tensor.Shape{2}, tensor.CPU)
	b := tensor.MustRaw(tensor.Shape{2}, tensor.WebGPU)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, tensor.ErrDevice))
	}()
	backend.Add(a, b)
}

func TestCPUBackend_MatMul(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewSource(1))
	a := randRaw(rng, 5, 7)
	b := randRaw(rng, 7, 3)

	c := backend.MatMul(a, b)
	require.Equal(t, tensor.Shape{5, 3}, c.Shape())

	for i := 0; i < 5; i++ {
		for j := 0; j < 3; j++ {
			var want float32
			for k := 0; k < 7; k++ {
				want += a.Data()[i*7+k] * b.Data()[k*3+j]
			}
			assert.InDelta(t, want, c.Data()[i*3+j], 1e-4)
		}
	}

	assert.Panics(t, func() { backend.MatMul(a, a) })
}

func TestCPUBackend_BatchMatMul(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewSource(2))
	a := randRaw(rng, 3, 4, 5)
	b := randRaw(rng, 3, 5, 2)

	c := backend.BatchMatMul(a, b)
	require.Equal(t, tensor.Shape{3, 4, 2}, c.Shape())

	for batch := 0; batch < 3; batch++ {
		ai := backend.Narrow(a, 0, batch, 1).View(tensor.Shape{4, 5})
		bi := backend.Narrow(b, 0, batch, 1).View(tensor.Shape{5, 2})
		want := backend.MatMul(ai, bi).Data()
		assert.InDeltaSlice(t, want, c.Data()[batch*8:(batch+1)*8], 1e-5)
	}

	assert.Panics(t, func() { backend.BatchMatMul(a, randRaw(rng, 2, 5, 2)) })
}

func TestCPUBackend_ReshapeIsView(t *testing.T) {
	backend := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := backend.Reshape(x, tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, y.Shape())
	assert.Equal(t, x.Data(), y.Data())
	assert.Panics(t, func() { backend.Reshape(x, tensor.Shape{4}) })
}

func TestCPUBackend_Transpose(t *testing.T) {
	backend := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, backend.Transpose(x).Data())

	rng := rand.New(rand.NewSource(3))
	y := randRaw(rng, 2, 3, 4)
	p := backend.Transpose(y, 2, 0, 1)
	require.Equal(t, tensor.Shape{4, 2, 3}, p.Shape())
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				assert.Equal(t, y.Data()[i*12+j*4+k], p.Data()[k*6+i*3+j])
			}
		}
	}

	assert.Panics(t, func() { backend.Transpose(y, 0, 0, 1) })
}

func TestCPUBackend_NarrowCat(t *testing.T) {
	backend := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 4)

	left := backend.Narrow(x, 1, 0, 1)
	right := backend.Narrow(x, -1, 1, 3)
	assert.Equal(t, []float32{1, 5}, left.Data())
	assert.Equal(t, []float32{2, 3, 4, 6, 7, 8}, right.Data())

	back := backend.Cat([]*tensor.RawTensor{left, right}, 1)
	assert.Equal(t, x.Data(), back.Data())

	rows := backend.Cat([]*tensor.RawTensor{x, x}, 0)
	assert.Equal(t, tensor.Shape{4, 4}, rows.Shape())

	assert.Panics(t, func() { backend.Narrow(x, 1, 3, 2) })
}

func TestCPUBackend_Reductions(t *testing.T) {
	backend := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	s := backend.Sum(x)
	assert.Empty(t, s.Shape())
	assert.Equal(t, float32(21), s.Data()[0])

	assert.Equal(t, []float32{5, 7, 9}, backend.SumDim(x, 0, false).Data())
	kept := backend.SumDim(x, 1, true)
	assert.Equal(t, tensor.Shape{2, 1}, kept.Shape())
	assert.Equal(t, []float32{6, 15}, kept.Data())
}

func TestCPUBackend_Activations(t *testing.T) {
	backend := New()
	x := raw(t, []float32{-2, 0, 1.5}, 3)

	gelu := backend.GELU(x).Data()
	for i, v := range x.Data() {
		f := float64(v)
		assert.InDelta(t, 0.5*f*(1+math.Erf(f/math.Sqrt2)), gelu[i], 1e-6)
	}

	sig := backend.Sigmoid(raw(t, []float32{0, -100, 100}, 3)).Data()
	assert.InDeltaSlice(t, []float32{0.5, 0, 1}, sig, 1e-6)

	th := backend.Tanh(x).Data()
	assert.InDelta(t, math.Tanh(1.5), th[2], 1e-6)
}

func TestCPUBackend_GELUBackward(t *testing.T) {
	backend := New()
	x := raw(t, []float32{-1.3, -0.2, 0, 0.7, 2.1}, 5)
	ones := raw(t, []float32{1, 1, 1, 1, 1}, 5)
	got := backend.GELUBackward(x, ones).Data()

	const h = 1e-3
	for i, v := range x.Data() {
		gelu := func(f float64) float64 { return 0.5 * f * (1 + math.Erf(f/math.Sqrt2)) }
		want := (gelu(float64(v)+h) - gelu(float64(v)-h)) / (2 * h)
		assert.InDelta(t, want, got[i], 1e-4)
	}
}

func TestCPUBackend_Softmax(t *testing.T) {
	backend := New()
	x := raw(t, []float32{1, 2, 3, 1000, 1000, 1000}, 2, 3)
	y := backend.Softmax(x)

	row := y.Data()
	assert.InDelta(t, 1, row[0]+row[1]+row[2], 1e-6)
	assert.InDeltaSlice(t, []float32{1.0 / 3, 1.0 / 3, 1.0 / 3}, row[3:], 1e-6)
	assert.Greater(t, row[2], row[1])

	// Gradient of Σ y·g with g one-hot on a constant row is y_k(δ - y).
	g := raw(t, []float32{0, 0, 0, 1, 0, 0}, 2, 3)
	dx := backend.SoftmaxBackward(y, g).Data()
	assert.InDeltaSlice(t, []float32{0, 0, 0}, dx[:3], 1e-6)
	third := float32(1.0 / 3)
	assert.InDeltaSlice(t, []float32{third * (1 - third), -third * third, -third * third}, dx[3:], 1e-6)
}
