// Package cpu implements the float32 numerical kernels used by the layers:
// BLAS-backed GEMM/GEMV and vector ops, activations and im2col.
package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// general wraps a row-major rows x cols buffer as a blas32 matrix.
func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

func vector(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}

func transpose(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// Gemm computes C = alpha * op(A) * op(B) + beta * C on row-major buffers.
//
// op(A) is M x K, op(B) is K x N and C is M x N. When transA is set, A is
// stored as K x M; when transB is set, B is stored as N x K.
//
// Example:
//
//	// top[Cout, HW] = weight[Cout, CK] * col[CK, HW]
//	cpu.Gemm(false, false, cout, hw, ck, 1, weight, col, 0, top)
func Gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	if m == 0 || n == 0 {
		return
	}
	if len(c) < m*n {
		panic(fmt.Sprintf("gemm: output has %d elements, need %d", len(c), m*n))
	}
	if k == 0 {
		Scal(beta, c[:m*n])
		return
	}

	aRows, aCols := m, k
	if transA {
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if transB {
		bRows, bCols = n, k
	}
	if len(a) < aRows*aCols || len(b) < bRows*bCols {
		panic(fmt.Sprintf("gemm: operand too small for [%d,%d] x [%d,%d]", aRows, aCols, bRows, bCols))
	}

	blas32.Gemm(transpose(transA), transpose(transB), alpha,
		general(aRows, aCols, a), general(bRows, bCols, b),
		beta, general(m, n, c))
}

// Gemv computes y = alpha * op(A) * x + beta * y where A is stored M x N.
func Gemv(transA bool, m, n int, alpha float32, a, x []float32, beta float32, y []float32) {
	if m == 0 || n == 0 {
		return
	}
	blas32.Gemv(transpose(transA), alpha, general(m, n, a), vector(x), beta, vector(y))
}

// Axpy computes y += alpha * x.
func Axpy(alpha float32, x, y []float32) {
	if len(x) != len(y) {
		panic(fmt.Sprintf("axpy: length mismatch %d != %d", len(x), len(y)))
	}
	if len(x) == 0 {
		return
	}
	blas32.Axpy(alpha, vector(x), vector(y))
}

// Scal computes x *= alpha.
func Scal(alpha float32, x []float32) {
	if len(x) == 0 {
		return
	}
	if alpha == 0 {
		clear(x)
		return
	}
	blas32.Scal(alpha, vector(x))
}

// Dot returns the inner product of x and y.
func Dot(x, y []float32) float32 {
	if len(x) != len(y) {
		panic(fmt.Sprintf("dot: length mismatch %d != %d", len(x), len(y)))
	}
	if len(x) == 0 {
		return 0
	}
	return blas32.Dot(vector(x), vector(y))
}

// Nrm2 returns the Euclidean norm of x.
func Nrm2(x []float32) float32 {
	if len(x) == 0 {
		return 0
	}
	return blas32.Nrm2(vector(x))
}

// Fill sets every element of x to v.
func Fill(x []float32, v float32) {
	for i := range x {
		x[i] = v
	}
}
