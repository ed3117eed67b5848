// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// Jacobian assembles the dense derivative matrix of the model vec(T̂(x))
// with respect to the stacked parameter vector. Rows follow the row-major
// entry order of the tensor; columns follow the solver layout, mode blocks
// in ascending order with each factor stored column by column.
//
// The matrix has ∏Iℓ rows and R·ΣIℓ columns, so this is only meant for
// small problems and for validating the matrix-free products the solver
// uses.
func Jacobian(factors []*mat.Dense) (*mat.Dense, error) {
	L := len(factors)
	if L == 0 {
		return nil, tensor.ErrEmpty
	}
	_, rank := factors[0].Dims()
	dims := make([]int, L)
	total := 1
	cols := 0
	for l, w := range factors {
		rows, r := w.Dims()
		if r != rank {
			return nil, tensor.ErrShape
		}
		dims[l] = rows
		total *= rows
		cols += rows
	}
	cols *= rank

	sumDims := make([]int, L)
	for l := 1; l < L; l++ {
		sumDims[l] = sumDims[l-1] + rank*dims[l-1]
	}

	j := mat.NewDense(total, cols, nil)
	idx := make([]int, L)
	for row := 0; row < total; row++ {
		for r := 0; r < rank; r++ {
			prod := 1.0
			for l := 0; l < L; l++ {
				prod *= factors[l].At(idx[l], r)
			}
			for l := 0; l < L; l++ {
				w := factors[l].At(idx[l], r)
				partial := 0.0
				if w != 0 {
					partial = prod / w
				} else {
					partial = 1
					for m := 0; m < L; m++ {
						if m != l {
							partial *= factors[m].At(idx[m], r)
						}
					}
				}
				j.Set(row, sumDims[l]+r*dims[l]+idx[l], partial)
			}
		}
		incIndex(idx, dims)
	}
	return j, nil
}

// Hessian returns the Gauss-Newton Hessian approximation JᵀJ in the same
// parameter layout as Jacobian.
func Hessian(factors []*mat.Dense) (*mat.Dense, error) {
	j, err := Jacobian(factors)
	if err != nil {
		return nil, err
	}
	var h mat.Dense
	h.Mul(j.T(), j)
	return &h, nil
}
