// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sampleSparse(t *testing.T) *Sparse {
	t.Helper()
	s, err := NewSparse([]int{3, 4, 5},
		[]float64{2, -1, 4, 0.5, 3},
		[][]int{{0, 0, 0}, {1, 2, 3}, {2, 3, 4}, {0, 1, 1}, {1, 0, 2}})
	require.NoError(t, err)
	return s
}

func TestSparseBasics(t *testing.T) {
	s := sampleSparse(t)
	assert.Equal(t, 3, s.Order())
	assert.Equal(t, 5, s.Nnz())
	assert.InDelta(t, 100*(1-5.0/60), s.Sparsity(), 1e-12)

	d := s.Dense()
	assert.Equal(t, s.Dims(), d.Dims())
	assert.InDelta(t, d.Norm(), s.Norm(), 1e-12)
	assert.InDelta(t, d.MeanAbs(), s.MeanAbs(), 1e-12)
	assert.Equal(t, 2.0, d.At(0, 0, 0))
	assert.Equal(t, -1.0, d.At(1, 2, 3))
	assert.Equal(t, 0.0, d.At(2, 0, 0))
}

func TestSparseValidation(t *testing.T) {
	_, err := NewSparse([]int{2, 2}, []float64{1}, [][]int{{0, 2}})
	assert.ErrorIs(t, err, ErrBounds)
	_, err = NewSparse([]int{2, 2}, []float64{1, 2}, [][]int{{0, 0}})
	assert.ErrorIs(t, err, ErrShape)
	_, err = NewSparse([]int{2, 2}, []float64{1}, [][]int{{0}})
	assert.ErrorIs(t, err, ErrShape)
}

func TestSparseTranspose(t *testing.T) {
	s := sampleSparse(t)
	p, err := s.Transpose([]int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 4}, p.Dims())

	dd := s.Dense()
	pd := p.Dense()
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 5; k++ {
				assert.Equal(t, dd.At(i, j, k), pd.At(k, i, j))
			}
		}
	}
}

// The CSR unfolding must agree with the dense unfolding entry for entry,
// and its Gram matrix with the explicit A·Aᵀ product.
func TestUnfoldCSR(t *testing.T) {
	s := sampleSparse(t)
	d := s.Dense()
	for l := 0; l < 3; l++ {
		csr := s.UnfoldCSR(l)
		dense := d.Unfold(l)
		back := csr.ToDense()
		rows, cols := dense.Dims()
		assert.Equal(t, rows, csr.Rows)
		assert.Equal(t, cols, csr.Cols)
		var diff mat.Dense
		diff.Sub(dense, back)
		assert.InDelta(t, 0, mat.Norm(&diff, 2), 1e-12)

		var want mat.Dense
		want.Mul(dense, dense.T())
		gram := csr.Gram()
		for i := 0; i < rows; i++ {
			for j := 0; j < rows; j++ {
				assert.InDelta(t, want.At(i, j), gram.At(i, j), 1e-12)
			}
		}
	}
}

// The reference sparse product must match the dense product for every
// unfolding orientation.
func TestCSRMulDense(t *testing.T) {
	s := sampleSparse(t)
	d := s.Dense()
	for l := 0; l < 3; l++ {
		csr := s.UnfoldCSR(l)
		b := mat.NewDense(csr.Cols, 2, nil)
		for i := 0; i < csr.Cols; i++ {
			b.Set(i, 0, float64(i+1))
			b.Set(i, 1, float64(csr.Cols-i))
		}
		var want mat.Dense
		want.Mul(d.Unfold(l), b)
		got := csr.MulDense(b)
		var diff mat.Dense
		diff.Sub(&want, got)
		assert.InDelta(t, 0, mat.Norm(&diff, 2), 1e-12)
	}

	assert.Panics(t, func() { s.UnfoldCSR(0).MulDense(mat.NewDense(2, 2, nil)) })
}

func TestCSRDuplicateAccumulation(t *testing.T) {
	s, err := NewSparse([]int{2, 2},
		[]float64{1, 2, 5},
		[][]int{{0, 1}, {0, 1}, {1, 0}})
	require.NoError(t, err)
	csr := s.UnfoldCSR(0)
	dense := csr.ToDense()
	assert.Equal(t, 3.0, dense.At(0, 1))
	assert.Equal(t, 5.0, dense.At(1, 0))
}
