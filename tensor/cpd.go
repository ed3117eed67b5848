// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FromCPD reconstructs the dense tensor Σᵣ λᵣ·w⁽⁰⁾ᵣ ⊗ ⋯ ⊗ w⁽ᴸ⁻¹⁾ᵣ from the
// factor matrices. A nil lambda means all weights are one.
func FromCPD(factors []*mat.Dense, lambda []float64) (*Dense, error) {
	L := len(factors)
	if L == 0 {
		return nil, ErrEmpty
	}
	_, rank := factors[0].Dims()
	dims := make([]int, L)
	for l, w := range factors {
		rows, r := w.Dims()
		if r != rank {
			return nil, fmt.Errorf("%w: factor %d has rank %d, want %d", ErrShape, l, r, rank)
		}
		dims[l] = rows
	}
	if lambda != nil && len(lambda) != rank {
		return nil, fmt.Errorf("%w: %d weights for rank %d", ErrShape, len(lambda), rank)
	}
	t, _ := NewDense(dims, nil)
	// Accumulate one rank-one term at a time: the row-major layout is the
	// left-fold Kronecker product of the factor columns in mode order.
	for r := 0; r < rank; r++ {
		cur := []float64{1}
		for l := 0; l < L; l++ {
			next := make([]float64, len(cur)*dims[l])
			for i, c := range cur {
				for j := 0; j < dims[l]; j++ {
					next[i*dims[l]+j] = c * factors[l].At(j, r)
				}
			}
			cur = next
		}
		w := 1.0
		if lambda != nil {
			w = lambda[r]
		}
		floats.AddScaled(t.data, w, cur)
	}
	return t, nil
}

// KhatriRao returns the column-wise Khatri-Rao product A ⊙ B: for columns
// aᵣ, bᵣ the result column is aᵣ ⊗ bᵣ, laid out with B varying fastest.
func KhatriRao(a, b *mat.Dense) *mat.Dense {
	ma, r := a.Dims()
	mb, rb := b.Dims()
	if r != rb {
		panic("tensor: column count mismatch in Khatri-Rao product")
	}
	out := mat.NewDense(ma*mb, r, nil)
	for col := 0; col < r; col++ {
		for i := 0; i < ma; i++ {
			av := a.At(i, col)
			for j := 0; j < mb; j++ {
				out.Set(i*mb+j, col, av*b.At(j, col))
			}
		}
	}
	return out
}

// KhatriRaoSkip folds the Khatri-Rao product of all factors except mode
// skip, in ascending mode order. The result matches the column indexing of
// Unfold(skip).
func KhatriRaoSkip(factors []*mat.Dense, skip int) *mat.Dense {
	var out *mat.Dense
	for l, w := range factors {
		if l == skip {
			continue
		}
		if out == nil {
			out = w
			continue
		}
		out = KhatriRao(out, w)
	}
	return out
}

// Hadamard stores the element-wise product a ∘ b into dst and returns it.
// A nil dst allocates a new matrix.
func Hadamard(a, b, dst *mat.Dense) *mat.Dense {
	if dst == nil {
		r, c := a.Dims()
		dst = mat.NewDense(r, c, nil)
	}
	dst.MulElem(a, b)
	return dst
}

// Normalize rewrites the factors into Λ-form: every factor column is scaled
// to unit norm and the absorbed weights are returned as Λ, so that
// Σᵣ Λᵣ·(unit columns) equals the original Σᵣ (raw columns).
// Rank-one terms with a zero column keep Λᵣ = 0.
func Normalize(factors []*mat.Dense) ([]*mat.Dense, []float64) {
	L := len(factors)
	_, rank := factors[0].Dims()
	out := make([]*mat.Dense, L)
	for l, w := range factors {
		out[l] = mat.DenseCopyOf(w)
	}
	lambda := make([]float64, rank)
	for r := 0; r < rank; r++ {
		lambda[r] = 1
		for l := 0; l < L; l++ {
			rows, _ := out[l].Dims()
			col := mat.Col(nil, r, out[l])
			nrm := floats.Norm(col, 2)
			if nrm == 0 {
				lambda[r] = 0
				continue
			}
			lambda[r] *= nrm
			for i := 0; i < rows; i++ {
				out[l].Set(i, r, col[i]/nrm)
			}
		}
	}
	return out, lambda
}
