// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// ttSVD must reproduce the tensor exactly when no rank cap binds: chaining
// head · G₁ · G₂ ⋯ · tail contractions gives back every entry.
func TestTTSVDReconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	dims := []int{3, 4, 3, 2}
	tt, _, err := tensor.RandRank(rng, dims, 2)
	require.NoError(t, err)

	head, mids, tail, err := ttSVD(tt, 100)
	require.NoError(t, err)
	require.Len(t, mids, 2)

	hr, _ := head.Dims()
	assert.Equal(t, dims[0], hr)
	_, tc := tail.Dims()
	assert.Equal(t, dims[3], tc)

	// Contract the train entry by entry.
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				for m := 0; m < dims[3]; m++ {
					_, r1 := head.Dims()
					cur := make([]float64, r1)
					for a := 0; a < r1; a++ {
						cur[a] = head.At(i, a)
					}
					cur = contract(cur, mids[0], j)
					cur = contract(cur, mids[1], k)
					got := 0.0
					for a, c := range cur {
						got += c * tail.At(a, m)
					}
					assert.InDelta(t, tt.At(i, j, k, m), got, 1e-8)
				}
			}
		}
	}
}

func contract(cur []float64, g *tensor.Dense, i int) []float64 {
	gd := g.Dims()
	out := make([]float64, gd[2])
	for a, c := range cur {
		for b := 0; b < gd[2]; b++ {
			out[b] += c * g.At(a, i, b)
		}
	}
	return out
}

func TestTTSVDRankCap(t *testing.T) {
	rng := rand.New(rand.NewSource(25))
	tt, _, err := tensor.RandRank(rng, []int{4, 4, 4, 4}, 2)
	require.NoError(t, err)

	_, mids, _, err := ttSVD(tt, 2)
	require.NoError(t, err)
	for _, g := range mids {
		for _, d := range g.Dims() {
			assert.LessOrEqual(t, d, 4)
		}
		gd := g.Dims()
		assert.LessOrEqual(t, gd[0], 2)
		assert.LessOrEqual(t, gd[2], 2)
	}
}

func TestPinv(t *testing.T) {
	a := mat.NewDense(3, 2, []float64{1, 0, 0, 2, 1, 1})
	p, err := pinv(a)
	require.NoError(t, err)

	// A⁺A = I for full column rank.
	var prod mat.Dense
	prod.Mul(p, a)
	assert.True(t, mat.EqualApprox(&prod, mat.NewDense(2, 2, []float64{1, 0, 0, 1}), 1e-12))
}

// A 4th-order rank-2 tensor exercises the full tensor-train pipeline.
func TestDecomposeFourthOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	dims := []int{4, 4, 4, 4}
	tt, _, err := tensor.RandRank(rng, dims, 2)
	require.NoError(t, err)

	factors, out, err := Decompose(tt, 2, &Options{Seed: 12})
	require.NoError(t, err)
	require.Len(t, factors, 4)
	for l, d := range dims {
		rows, cols := factors[l].Dims()
		assert.Equal(t, d, rows)
		assert.Equal(t, 2, cols)
	}
	assert.Len(t, out.SubOutputs, 2)
	assert.Less(t, out.RelError, 1e-2)
	assert.False(t, out.Diverged)
}

func TestDecomposeFifthOrderShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(35))
	dims := []int{3, 3, 3, 3, 3}
	tt, _, err := tensor.RandRank(rng, dims, 2)
	require.NoError(t, err)

	factors, out, err := Decompose(tt, 2, &Options{Seed: 14, Trials: 2})
	require.NoError(t, err)
	require.Len(t, factors, 5)
	assert.Len(t, out.SubOutputs, 3)
	for l, d := range dims {
		rows, cols := factors[l].Dims()
		assert.Equal(t, d, rows)
		assert.Equal(t, 2, cols)
	}
}
