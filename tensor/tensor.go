// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is the common surface of dense and sparse tensors consumed by the
// decomposition pipeline. The pipeline never mutates the input tensor.
type Tensor interface {
	// Order returns the number of modes L.
	Order() int
	// Dims returns the per-mode dimensions (I₀,…,I_{L-1}).
	Dims() []int
	// Norm returns the Frobenius norm ‖T‖.
	Norm() float64
	// MeanAbs returns mean(|T|) over all ∏Iℓ entries, used to scale
	// the initial damping parameter.
	MeanAbs() float64
}

// Dense is an L-dimensional array stored flat in row-major order.
type Dense struct {
	dims    []int
	strides []int
	data    []float64
}

// NewDense creates a dense tensor of the given shape backed by data.
// A nil data allocates a zero tensor. The data slice is not copied.
func NewDense(dims []int, data []float64) (*Dense, error) {
	if len(dims) == 0 {
		return nil, ErrEmpty
	}
	size := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, ErrEmpty
		}
		size *= d
	}
	if data == nil {
		data = make([]float64, size)
	} else if len(data) != size {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), dims)
	}
	t := &Dense{dims: append([]int(nil), dims...), data: data}
	t.strides = rowMajorStrides(t.dims)
	return t, nil
}

func rowMajorStrides(dims []int) []int {
	strides := make([]int, len(dims))
	strides[len(dims)-1] = 1
	for l := len(dims) - 2; l >= 0; l-- {
		strides[l] = strides[l+1] * dims[l+1]
	}
	return strides
}

// Order returns the number of modes.
func (t *Dense) Order() int { return len(t.dims) }

// Dims returns a copy of the per-mode dimensions.
func (t *Dense) Dims() []int { return append([]int(nil), t.dims...) }

// Size returns the total number of entries ∏Iℓ.
func (t *Dense) Size() int { return len(t.data) }

// Data exposes the flat row-major backing slice.
func (t *Dense) Data() []float64 { return t.data }

// At returns the entry at the given multi-index.
func (t *Dense) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// Set stores v at the given multi-index.
func (t *Dense) Set(v float64, idx ...int) {
	t.data[t.offset(idx)] = v
}

func (t *Dense) offset(idx []int) int {
	if len(idx) != len(t.dims) {
		panic("tensor: index order mismatch")
	}
	p := 0
	for l, i := range idx {
		if i < 0 || i >= t.dims[l] {
			panic("tensor: index out of bounds")
		}
		p += i * t.strides[l]
	}
	return p
}

// Norm returns the Frobenius norm.
func (t *Dense) Norm() float64 { return floats.Norm(t.data, 2) }

// MeanAbs returns the mean absolute entry value.
func (t *Dense) MeanAbs() float64 {
	s := 0.0
	for _, v := range t.data {
		s += math.Abs(v)
	}
	return s / float64(len(t.data))
}

// Clone returns a deep copy of t.
func (t *Dense) Clone() *Dense {
	c, _ := NewDense(t.dims, append([]float64(nil), t.data...))
	return c
}

// Transpose returns a copy of t with its modes permuted so that mode ℓ of
// the result is mode perm[ℓ] of t.
func (t *Dense) Transpose(perm []int) (*Dense, error) {
	L := len(t.dims)
	if len(perm) != L {
		return nil, fmt.Errorf("%w: permutation of length %d for order %d", ErrShape, len(perm), L)
	}
	seen := make([]bool, L)
	dims := make([]int, L)
	for l, p := range perm {
		if p < 0 || p >= L || seen[p] {
			return nil, fmt.Errorf("%w: invalid permutation %v", ErrShape, perm)
		}
		seen[p] = true
		dims[l] = t.dims[p]
	}
	out, _ := NewDense(dims, nil)
	idx := make([]int, L)
	src := make([]int, L)
	for p := range out.data {
		for l := range idx {
			src[perm[l]] = idx[l]
		}
		out.data[p] = t.data[t.offset(src)]
		incIndex(idx, dims)
	}
	return out, nil
}

// incIndex advances a row-major multi-index, last mode fastest.
func incIndex(idx, dims []int) {
	for l := len(idx) - 1; l >= 0; l-- {
		idx[l]++
		if idx[l] < dims[l] {
			return
		}
		idx[l] = 0
	}
}

// Unfold returns the mode-ℓ unfolding: an Iℓ × ∏_{m≠ℓ}Iₘ matrix whose
// columns index the remaining modes in ascending order, last fastest.
func (t *Dense) Unfold(l int) *mat.Dense {
	rows := t.dims[l]
	cols := len(t.data) / rows
	a := mat.NewDense(rows, cols, nil)
	cstride := unfoldColStrides(t.dims, l)
	idx := make([]int, len(t.dims))
	for _, v := range t.data {
		c := 0
		for m, i := range idx {
			if m != l {
				c += i * cstride[m]
			}
		}
		a.Set(idx[l], c, v)
		incIndex(idx, t.dims)
	}
	return a
}

func unfoldColStrides(dims []int, l int) []int {
	cstride := make([]int, len(dims))
	s := 1
	for m := len(dims) - 1; m >= 0; m-- {
		if m == l {
			continue
		}
		cstride[m] = s
		s *= dims[m]
	}
	return cstride
}

// Fold is the inverse of Unfold: it rebuilds a tensor of the given shape
// from its mode-ℓ unfolding.
func Fold(a *mat.Dense, l int, dims []int) (*Dense, error) {
	rows, cols := a.Dims()
	size := 1
	for _, d := range dims {
		size *= d
	}
	if rows != dims[l] || rows*cols != size {
		return nil, fmt.Errorf("%w: %dx%d unfolding for shape %v mode %d", ErrShape, rows, cols, dims, l)
	}
	t, err := NewDense(dims, nil)
	if err != nil {
		return nil, err
	}
	cstride := unfoldColStrides(dims, l)
	idx := make([]int, len(dims))
	for p := range t.data {
		c := 0
		for m, i := range idx {
			if m != l {
				c += i * cstride[m]
			}
		}
		t.data[p] = a.At(idx[l], c)
		incIndex(idx, dims)
	}
	return t, nil
}

// ModeMul applies the matrix M (J × Iℓ) along mode ℓ, producing a tensor
// whose mode-ℓ dimension becomes J:
//
//	(T ×ℓ M)ᵤₙ𝒻ₒₗ𝒹 = M · Tᵤₙ𝒻ₒₗ𝒹
func (t *Dense) ModeMul(m mat.Matrix, l int) (*Dense, error) {
	j, cols := m.Dims()
	if cols != t.dims[l] {
		return nil, fmt.Errorf("%w: %dx%d matrix on mode %d of %v", ErrShape, j, cols, l, t.dims)
	}
	var prod mat.Dense
	prod.Mul(m, t.Unfold(l))
	dims := t.Dims()
	dims[l] = j
	return Fold(&prod, l, dims)
}
