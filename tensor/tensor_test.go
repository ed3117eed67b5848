// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func iotaDense(t *testing.T, dims ...int) *Dense {
	t.Helper()
	n := 1
	for _, d := range dims {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	d, err := NewDense(dims, data)
	require.NoError(t, err)
	return d
}

func TestDenseIndexing(t *testing.T) {
	d := iotaDense(t, 2, 3, 4)
	assert.Equal(t, 3, d.Order())
	assert.Equal(t, []int{2, 3, 4}, d.Dims())
	// Row-major layout: the last index varies fastest.
	assert.Equal(t, 0.0, d.At(0, 0, 0))
	assert.Equal(t, 1.0, d.At(0, 0, 1))
	assert.Equal(t, 4.0, d.At(0, 1, 0))
	assert.Equal(t, 12.0, d.At(1, 0, 0))
	assert.Equal(t, 23.0, d.At(1, 2, 3))

	d.Set(7, 1, 1, 1)
	assert.Equal(t, 7.0, d.At(1, 1, 1))
}

func TestDenseUnfold(t *testing.T) {
	d := iotaDense(t, 2, 3, 4)
	for l := 0; l < 3; l++ {
		u := d.Unfold(l)
		rows, cols := u.Dims()
		assert.Equal(t, d.Dims()[l], rows)
		assert.Equal(t, 24/d.Dims()[l], cols)
	}

	// Mode-0 columns enumerate the remaining axes in ascending order with
	// the last axis fastest, so the unfolding is the natural reshape.
	u0 := d.Unfold(0)
	for j := 0; j < 12; j++ {
		assert.Equal(t, float64(j), u0.At(0, j))
		assert.Equal(t, float64(12+j), u0.At(1, j))
	}

	// Mode-1 column (i,k) sits at i·4 + k.
	u1 := d.Unfold(1)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				assert.Equal(t, d.At(i, j, k), u1.At(j, i*4+k))
			}
		}
	}
}

func TestDenseTranspose(t *testing.T) {
	d := iotaDense(t, 2, 3, 4)
	p, err := d.Transpose([]int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 3}, p.Dims())
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				assert.Equal(t, d.At(i, j, k), p.At(k, i, j))
			}
		}
	}

	_, err = d.Transpose([]int{0, 0, 1})
	assert.Error(t, err)
}

func TestDenseCloneIsIndependent(t *testing.T) {
	d := iotaDense(t, 2, 3, 4)
	assert.Equal(t, 24, d.Size())

	c := d.Clone()
	assert.Equal(t, d.Dims(), c.Dims())
	assert.Equal(t, d.Data(), c.Data())

	c.Set(-1, 1, 2, 3)
	assert.Equal(t, -1.0, c.At(1, 2, 3))
	assert.Equal(t, 23.0, d.At(1, 2, 3))
}

func TestModeMul(t *testing.T) {
	d := iotaDense(t, 2, 3, 2)
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	out, err := d.ModeMul(m, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, out.Dims())
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				want := 0.0
				for jj := 0; jj < 3; jj++ {
					want += m.At(j, jj) * d.At(i, jj, k)
				}
				assert.InDelta(t, want, out.At(i, j, k), 1e-12)
			}
		}
	}
}

func randFactors(rng *rand.Rand, dims []int, rank int) []*mat.Dense {
	factors := make([]*mat.Dense, len(dims))
	for l, d := range dims {
		w := mat.NewDense(d, rank, nil)
		for i := 0; i < d; i++ {
			for r := 0; r < rank; r++ {
				w.Set(i, r, rng.NormFloat64())
			}
		}
		factors[l] = w
	}
	return factors
}

func TestFromCPDMatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	dims := []int{3, 4, 2}
	factors := randFactors(rng, dims, 2)
	tt, err := FromCPD(factors, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 2; k++ {
				want := 0.0
				for r := 0; r < 2; r++ {
					want += factors[0].At(i, r) * factors[1].At(j, r) * factors[2].At(k, r)
				}
				assert.InDelta(t, want, tt.At(i, j, k), 1e-12)
			}
		}
	}
}

// The unfoldings of a CPD tensor must factor as Wℓ·(⊙_{m≠ℓ}Wᵐ)ᵀ, tying the
// unfolding column order to the Khatri-Rao fold order.
func TestUnfoldKhatriRaoIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	dims := []int{3, 4, 2, 3}
	factors := randFactors(rng, dims, 3)
	tt, err := FromCPD(factors, nil)
	require.NoError(t, err)
	for l := range dims {
		kr := KhatriRaoSkip(factors, l)
		var approx, diff mat.Dense
		approx.Mul(factors[l], kr.T())
		diff.Sub(tt.Unfold(l), &approx)
		assert.InDelta(t, 0, mat.Norm(&diff, 2), 1e-10)
	}
}

func TestNormalizeKeepsReconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	dims := []int{3, 3, 3}
	factors := randFactors(rng, dims, 2)
	orig, err := FromCPD(factors, nil)
	require.NoError(t, err)

	unit, lambda := Normalize(factors)
	for _, w := range unit {
		rows, cols := w.Dims()
		for r := 0; r < cols; r++ {
			var norm float64
			for i := 0; i < rows; i++ {
				norm += w.At(i, r) * w.At(i, r)
			}
			assert.InDelta(t, 1, norm, 1e-12)
		}
	}

	back, err := FromCPD(unit, lambda)
	require.NoError(t, err)
	for i, v := range orig.Data() {
		assert.InDelta(t, v, back.Data()[i], 1e-10)
	}
}

func TestNewDenseErrors(t *testing.T) {
	_, err := NewDense(nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = NewDense([]int{2, 0}, nil)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = NewDense([]int{2, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShape)
}
