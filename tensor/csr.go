// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSR is a sparse matrix in compressed sparse row format. It is the
// reference sparse representation used by the compression pass on sparse
// tensors; entries within a row are sorted by column.
type CSR struct {
	Values   []float64 // Non-zero values
	ColIndex []int     // Column indices for values
	RowPtr   []int     // Row pointers into Values/ColIndex
	Rows     int
	Cols     int
}

type triplet struct {
	row, col int
	val      float64
}

func newCSR(rows, cols int, tr []triplet) *CSR {
	sort.Slice(tr, func(i, j int) bool {
		if tr[i].row != tr[j].row {
			return tr[i].row < tr[j].row
		}
		return tr[i].col < tr[j].col
	})
	m := &CSR{
		Values:   make([]float64, 0, len(tr)),
		ColIndex: make([]int, 0, len(tr)),
		RowPtr:   make([]int, 1, rows+1),
		Rows:     rows,
		Cols:     cols,
	}
	r := 0
	for _, t := range tr {
		for r < t.row {
			m.RowPtr = append(m.RowPtr, len(m.Values))
			r++
		}
		// Duplicate coordinates accumulate.
		if n := len(m.Values); n > 0 && n > m.RowPtr[r] && m.ColIndex[n-1] == t.col {
			m.Values[n-1] += t.val
			continue
		}
		m.Values = append(m.Values, t.val)
		m.ColIndex = append(m.ColIndex, t.col)
	}
	for r < rows {
		m.RowPtr = append(m.RowPtr, len(m.Values))
		r++
	}
	return m
}

// ToDense converts the CSR matrix to a dense matrix.
func (m *CSR) ToDense() *mat.Dense {
	d := mat.NewDense(m.Rows, m.Cols, nil)
	for i := 0; i < m.Rows; i++ {
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			d.Set(i, m.ColIndex[p], m.Values[p])
		}
	}
	return d
}

// Gram computes A·Aᵀ without materializing the (possibly enormous) column
// space: rows are merge-joined on their sorted column indices.
func (m *CSR) Gram() *mat.SymDense {
	g := mat.NewSymDense(m.Rows, nil)
	for i := 0; i < m.Rows; i++ {
		for j := i; j < m.Rows; j++ {
			pi, pj := m.RowPtr[i], m.RowPtr[j]
			endI, endJ := m.RowPtr[i+1], m.RowPtr[j+1]
			s := 0.0
			for pi < endI && pj < endJ {
				ci, cj := m.ColIndex[pi], m.ColIndex[pj]
				switch {
				case ci == cj:
					s += m.Values[pi] * m.Values[pj]
					pi++
					pj++
				case ci < cj:
					pi++
				default:
					pj++
				}
			}
			g.SetSym(i, j, s)
		}
	}
	return g
}

// MulDense computes A·B for a dense B whose row count matches the CSR
// column count.
func (m *CSR) MulDense(b mat.Matrix) *mat.Dense {
	br, bc := b.Dims()
	if br != m.Cols {
		panic("tensor: dimension mismatch in CSR product")
	}
	out := mat.NewDense(m.Rows, bc, nil)
	for i := 0; i < m.Rows; i++ {
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			v, c := m.Values[p], m.ColIndex[p]
			for j := 0; j < bc; j++ {
				out.Set(i, j, out.At(i, j)+v*b.At(c, j))
			}
		}
	}
	return out
}
