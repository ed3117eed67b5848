// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// sparseRelError evaluates ‖T − T̂‖/‖T‖ without materializing T̂, using
//
//	‖T − T̂‖² = ‖T‖² − 2⟨T,T̂⟩ + ‖T̂‖²
//
// where the inner product runs over the nonzero support of T only and
// ‖T̂‖² = Σ_{r,r'} ∏ₗ (WₗᵀWₗ)_{rr'} comes from the factor Gramians.
func sparseRelError(s *tensor.Sparse, factors []*mat.Dense) float64 {
	nT := s.Norm()
	if nT == 0 {
		return 0
	}
	_, rank := factors[0].Dims()

	var inner float64
	vals, idx := s.Values(), s.Indices()
	for n, v := range vals {
		var entry float64
		for r := 0; r < rank; r++ {
			term := 1.0
			for l, w := range factors {
				term *= w.At(idx[n][l], r)
			}
			entry += term
		}
		inner += v * entry
	}

	prod := mat.NewDense(rank, rank, nil)
	var gr mat.Dense
	for l, w := range factors {
		gr.Mul(w.T(), w)
		if l == 0 {
			prod.Copy(&gr)
		} else {
			tensor.Hadamard(prod, &gr, prod)
		}
	}
	var nApprox float64
	for r := 0; r < rank; r++ {
		for rr := 0; rr < rank; rr++ {
			nApprox += prod.At(r, rr)
		}
	}

	sq := nT*nT - 2*inner + nApprox
	if sq < 0 {
		sq = 0
	}
	return math.Sqrt(sq) / nT
}

// DensifiedError materializes both the sparse tensor and the model and
// returns the exact relative error. Intended for small problems where the
// support-restricted estimate needs cross-checking.
func DensifiedError(s *tensor.Sparse, factors []*mat.Dense) (float64, error) {
	approx, err := tensor.FromCPD(factors, nil)
	if err != nil {
		return 0, err
	}
	dense := s.Dense()
	nT := dense.Norm()
	if nT == 0 {
		return 0, nil
	}
	diff := dense.Data()
	for i, v := range approx.Data() {
		diff[i] -= v
	}
	var sq float64
	for _, v := range diff {
		sq += v * v
	}
	return math.Sqrt(sq) / nT, nil
}
