// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/mlsvd"
	"github.com/curioloop/polyadic/tensor"
)

func iotaTensor(t *testing.T, dims ...int) *tensor.Dense {
	t.Helper()
	n := 1
	for _, d := range dims {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	d, err := tensor.NewDense(dims, data)
	require.NoError(t, err)
	return d
}

// The 2×2×2 tensor with entries 0..7 has rank 3 and must be recovered to
// high accuracy from a smart random start.
func TestDecomposeIota(t *testing.T) {
	tt := iotaTensor(t, 2, 2, 2)
	factors, out, err := Decompose(tt, 3, &Options{Init: InitSmartRandom, Seed: 1})
	require.NoError(t, err)
	require.Len(t, factors, 3)
	assert.Less(t, out.RelError, 1e-6)
	assert.False(t, out.Diverged)

	// The reported error matches a from-scratch reconstruction.
	back, err := tensor.FromCPD(factors, nil)
	require.NoError(t, err)
	var ss float64
	for i, v := range back.Data() {
		d := v - tt.Data()[i]
		ss += d * d
	}
	assert.InDelta(t, out.RelError, math.Sqrt(ss)/tt.Norm(), 1e-9)
}

func TestSummaryConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	tt, _, err := tensor.RandRank(rng, []int{5, 4, 3}, 2)
	require.NoError(t, err)

	_, out, err := Decompose(tt, 2, &Options{Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, out.Main.Steps+out.Refinement.Steps, out.NumSteps)
	assert.Len(t, out.Main.Trace, out.Main.Steps)
	assert.Equal(t, NoRefinement, out.Refinement.Status)
	assert.InDelta(t, math.Max(0, 100*(1-out.RelError)), out.Accuracy, 1e-9)
	assert.True(t, math.IsNaN(out.DenseRelError))

	// Bad-step containment: every accepted step keeps the error within
	// the jump tolerance of its predecessor.
	tolJump := DefaultOptions().TolJump
	trace := out.Main.Trace
	for i := 1; i < len(trace); i++ {
		assert.LessOrEqual(t, trace[i].RelError, tolJump*trace[i-1].RelError*(1+1e-12))
	}
}

func TestDecomposeRandRank(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	tt, _, err := tensor.RandRank(rng, []int{5, 4, 3}, 2)
	require.NoError(t, err)

	factors, out, err := Decompose(tt, 2, &Options{Seed: 5})
	require.NoError(t, err)
	assert.Less(t, out.RelError, 1e-3)
	for l, d := range tt.Dims() {
		rows, cols := factors[l].Dims()
		assert.Equal(t, d, rows)
		assert.Equal(t, 2, cols)
	}
}

// User factors that already solve the problem stay a solution.
func TestDecomposeUserInit(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	tt, orig, err := tensor.RandRank(rng, []int{4, 4, 4}, 2)
	require.NoError(t, err)

	_, out, err := Decompose(tt, 2, &Options{
		Init:        InitUser,
		UserFactors: orig,
		Seed:        2,
	})
	require.NoError(t, err)
	assert.Less(t, out.RelError, 1e-6)
}

func TestDecomposeSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	w := mat.NewDense(3, 2, nil)
	for i := 0; i < 3; i++ {
		for r := 0; r < 2; r++ {
			w.Set(i, r, rng.NormFloat64())
		}
	}
	tt, err := tensor.FromCPD([]*mat.Dense{w, w, w}, nil)
	require.NoError(t, err)

	factors, out, err := Decompose(tt, 2, &Options{
		Symm:     true,
		Seed:     4,
		TolMLSVD: []float64{MLSVDSkip},
	})
	require.NoError(t, err)
	assert.True(t, out.Compression.Skipped)
	assert.True(t, mat.EqualApprox(factors[0], factors[1], 1e-12))
	assert.True(t, mat.EqualApprox(factors[1], factors[2], 1e-12))
}

func TestDecomposeRefinement(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	tt, _, err := tensor.RandRank(rng, []int{4, 3, 3}, 2)
	require.NoError(t, err)

	_, out, err := Decompose(tt, 2, &Options{Refine: true, Seed: 6})
	require.NoError(t, err)
	assert.NotEqual(t, NoRefinement, out.Refinement.Status)
	assert.Equal(t, out.Main.Steps+out.Refinement.Steps, out.NumSteps)
}

func TestDecomposeCompressionInfo(t *testing.T) {
	rng := rand.New(rand.NewSource(53))
	tt, _, err := tensor.RandRank(rng, []int{6, 5, 4}, 2)
	require.NoError(t, err)

	_, out, err := Decompose(tt, 2, &Options{Seed: 8})
	require.NoError(t, err)
	assert.False(t, out.Compression.Skipped)
	assert.Equal(t, []int{2, 2, 2}, out.Compression.Dims)
	assert.Less(t, out.Compression.RelError, 1e-7)
}

func TestOptionValidation(t *testing.T) {
	tt := iotaTensor(t, 3, 3, 3)
	sp, err := tensor.NewSparse([]int{3, 3, 3}, []float64{1}, [][]int{{0, 1, 2}})
	require.NoError(t, err)

	cases := []struct {
		name string
		t    tensor.Tensor
		rank int
		opts *Options
		want error
	}{
		{"rank zero", tt, 0, nil, ErrBadRank},
		{"rank too large", tt, 10, nil, ErrBadRank},
		{"bad display", tt, 2, &Options{Display: 9}, ErrBadOption},
		{"negative tolerance", tt, 2, &Options{Tol: -1}, ErrBadOption},
		{"bad tol jump", tt, 2, &Options{TolJump: 0.5}, ErrBadOption},
		{"bad method", tt, 2, &Options{MLSVDMethod: mlsvd.Method(9)}, ErrBadOption},
		{"too many mlsvd tolerances", tt, 2, &Options{TolMLSVD: []float64{1e-16, 1e-16, 0}}, ErrBadOption},
		{"bad trunc dims", tt, 2, &Options{TruncDims: []int{2, 2}}, ErrBadOption},
		{"bad init", tt, 2, &Options{Init: Init(9)}, ErrBadOption},
		{"stray user factors", tt, 2, &Options{UserFactors: []*mat.Dense{nil, nil, nil}}, ErrBadOption},
		{"short damp sequence", tt, 2, &Options{InitDamp: []float64{1, 2, 3}}, ErrBadOption},
		{"sparse without compression", sp, 2, &Options{TolMLSVD: []float64{MLSVDSkip}}, ErrBadOption},
		{"sparse refinement", sp, 2, &Options{Refine: true}, ErrBadOption},
		{"user factor shape", tt, 2, &Options{
			Init:        InitUser,
			UserFactors: []*mat.Dense{mat.NewDense(3, 2, nil), mat.NewDense(3, 2, nil), mat.NewDense(2, 2, nil)},
		}, ErrBadInit},
		{"nil user factor", tt, 2, &Options{
			Init:        InitUser,
			UserFactors: []*mat.Dense{mat.NewDense(3, 2, nil), nil, mat.NewDense(3, 2, nil)},
		}, ErrBadInit},
		{"uneven symmetric trunc dims", tt, 2, &Options{Symm: true, TruncDims: []int{2, 2, 1}}, ErrBadOption},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decompose(tc.t, tc.rank, tc.opts)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	low := iotaTensor(t, 3, 3)
	_, _, err = Decompose(low, 2, nil)
	assert.ErrorIs(t, err, ErrBadDims)

	uneven := iotaTensor(t, 3, 4, 3)
	_, _, err = Decompose(uneven, 2, &Options{Symm: true})
	assert.ErrorIs(t, err, ErrBadOption)
}

// Empty option slices select the defaults, the same as leaving them nil.
func TestDecomposeEmptyOptionSlices(t *testing.T) {
	rng := rand.New(rand.NewSource(61))
	tt, _, err := tensor.RandRank(rng, []int{4, 4, 4}, 2)
	require.NoError(t, err)

	_, out, err := Decompose(tt, 2, &Options{
		TolMLSVD: []float64{},
		InitDamp: []float64{},
		Seed:     10,
	})
	require.NoError(t, err)
	assert.Less(t, out.RelError, 1e-4)
}

// A symmetric solve on a tensor whose modes truncate to different
// multilinear ranks must equalize the core instead of failing: with
// T(i,j,k) independent of i the first mode compresses to rank one while
// the others keep rank two.
func TestDecomposeSymmetricUnevenCore(t *testing.T) {
	rng := rand.New(rand.NewSource(67))
	w0 := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})
	w1 := mat.NewDense(3, 2, nil)
	w2 := mat.NewDense(3, 2, nil)
	for i := 0; i < 3; i++ {
		for r := 0; r < 2; r++ {
			w1.Set(i, r, rng.NormFloat64())
			w2.Set(i, r, rng.NormFloat64())
		}
	}
	tt, err := tensor.FromCPD([]*mat.Dense{w0, w1, w2}, nil)
	require.NoError(t, err)

	factors, out, err := Decompose(tt, 2, &Options{Symm: true, Seed: 11})
	require.NoError(t, err)
	require.Len(t, factors, 3)
	assert.Equal(t, []int{1, 1, 1}, out.Compression.Dims)
	assert.False(t, math.IsNaN(out.RelError))
}

func TestStatusStrings(t *testing.T) {
	for s := RelErrorTol; s <= TrustRegionFailed; s++ {
		assert.NotEqual(t, "unknown status", s.String())
	}
	assert.Equal(t, "unknown status", Status(99).String())
}
