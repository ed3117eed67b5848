// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"math"
)

// Sparse is a coordinate-format tensor: nnz values, an nnz × L index matrix
// and the mode dimensions. Entry order is irrelevant; indices must be within
// bounds and correspond 1:1 with the values.
type Sparse struct {
	dims []int
	vals []float64
	idx  [][]int
}

// NewSparse validates and wraps a sparse triple. The slices are not copied.
func NewSparse(dims []int, vals []float64, idx [][]int) (*Sparse, error) {
	if len(dims) == 0 {
		return nil, ErrEmpty
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, ErrEmpty
		}
	}
	if len(vals) != len(idx) {
		return nil, fmt.Errorf("%w: %d values for %d index rows", ErrShape, len(vals), len(idx))
	}
	for n, row := range idx {
		if len(row) != len(dims) {
			return nil, fmt.Errorf("%w: index row %d has order %d, want %d", ErrShape, n, len(row), len(dims))
		}
		for l, i := range row {
			if i < 0 || i >= dims[l] {
				return nil, fmt.Errorf("%w: entry %d mode %d index %d outside [0,%d)", ErrBounds, n, l, i, dims[l])
			}
		}
	}
	return &Sparse{dims: append([]int(nil), dims...), vals: vals, idx: idx}, nil
}

// Order returns the number of modes.
func (s *Sparse) Order() int { return len(s.dims) }

// Dims returns a copy of the per-mode dimensions.
func (s *Sparse) Dims() []int { return append([]int(nil), s.dims...) }

// Nnz returns the number of stored entries.
func (s *Sparse) Nnz() int { return len(s.vals) }

// Values exposes the stored entry values.
func (s *Sparse) Values() []float64 { return s.vals }

// Indices exposes the nnz × L index matrix.
func (s *Sparse) Indices() [][]int { return s.idx }

// Sparsity returns the percentage of structurally zero entries.
func (s *Sparse) Sparsity() float64 {
	size := 1.0
	for _, d := range s.dims {
		size *= float64(d)
	}
	return 100 * (1 - float64(len(s.vals))/size)
}

// Norm returns the Frobenius norm over the stored entries.
func (s *Sparse) Norm() float64 {
	ss := 0.0
	for _, v := range s.vals {
		ss += v * v
	}
	return math.Sqrt(ss)
}

// MeanAbs returns mean(|T|) over all ∏Iℓ entries, zeros included.
func (s *Sparse) MeanAbs() float64 {
	sum := 0.0
	for _, v := range s.vals {
		sum += math.Abs(v)
	}
	size := 1.0
	for _, d := range s.dims {
		size *= float64(d)
	}
	return sum / size
}

// Dense materializes the sparse triple as a dense tensor.
func (s *Sparse) Dense() *Dense {
	t, _ := NewDense(s.dims, nil)
	for n, v := range s.vals {
		t.data[t.offset(s.idx[n])] += v
	}
	return t
}

// Transpose returns a copy of s with its modes permuted so that mode ℓ of
// the result is mode perm[ℓ] of s.
func (s *Sparse) Transpose(perm []int) (*Sparse, error) {
	L := len(s.dims)
	if len(perm) != L {
		return nil, fmt.Errorf("%w: permutation of length %d for order %d", ErrShape, len(perm), L)
	}
	dims := make([]int, L)
	for l, p := range perm {
		if p < 0 || p >= L {
			return nil, fmt.Errorf("%w: invalid permutation %v", ErrShape, perm)
		}
		dims[l] = s.dims[p]
	}
	idx := make([][]int, len(s.idx))
	for n, row := range s.idx {
		nr := make([]int, L)
		for l, p := range perm {
			nr[l] = row[p]
		}
		idx[n] = nr
	}
	return NewSparse(dims, append([]float64(nil), s.vals...), idx)
}

// UnfoldCSR returns the mode-ℓ unfolding as a CSR matrix, following the same
// column convention as Dense.Unfold.
func (s *Sparse) UnfoldCSR(l int) *CSR {
	cstride := unfoldColStrides(s.dims, l)
	rows := s.dims[l]
	cols := 1
	for m, d := range s.dims {
		if m != l {
			cols *= d
		}
	}
	tr := make([]triplet, len(s.vals))
	for n, v := range s.vals {
		c := 0
		for m, i := range s.idx[n] {
			if m != l {
				c += i * cstride[m]
			}
		}
		tr[n] = triplet{row: s.idx[n][l], col: c, val: v}
	}
	return newCSR(rows, cols, tr)
}
