package cpu

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MatMul performs matrix multiplication.
// For 2D tensors: (M, K) @ (K, N) -> (M, N)
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	cpu.check("matmul", a, b)
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := cpu.alloc("matmul", tensor.Shape{m, n})
	gemm(false, false, m, n, k, a.Data(), b.Data(), 0, result.Data())
	return result
}

// BatchMatMul multiplies matching matrices of two 3D tensors.
// (B, M, K) @ (B, K, N) -> (B, M, N)
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	cpu.check("batch_matmul", a, b)
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 3 || len(bShape) != 3 {
		panic(fmt.Sprintf("batch_matmul: expected 3D tensors, got %dD and %dD", len(aShape), len(bShape)))
	}
	batch, m, k := aShape[0], aShape[1], aShape[2]
	if bShape[0] != batch || bShape[1] != k {
		panic(fmt.Sprintf("batch_matmul: shape mismatch %v @ %v", aShape, bShape))
	}
	n := bShape[2]

	result := cpu.alloc("batch_matmul", tensor.Shape{batch, m, n})
	ad, bd, out := a.Data(), b.Data(), result.Data()
	parallel.For(batch, func(i int) {
		gemm(false, false, m, n, k,
			ad[i*m*k:(i+1)*m*k], bd[i*k*n:(i+1)*k*n], 0, out[i*m*n:(i+1)*m*n])
	}, cpu.par)
	return result
}

// gemm computes c = op(a) @ op(b) + beta*c for dense row-major operands,
// where op(a) is [m, k] and op(b) is [k, n].
func gemm(transA, transB bool, m, n, k int, a, b []float32, beta float32, c []float32) {
	ta, ga := blas.NoTrans, blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	if transA {
		ta, ga = blas.Trans, blas32.General{Rows: k, Cols: m, Stride: m, Data: a}
	}
	tb, gb := blas.NoTrans, blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	if transB {
		tb, gb = blas.Trans, blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
	}
	blas32.Gemm(ta, tb, 1, ga, gb, beta, blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}
