// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// iterData preallocates every array reused across Gauss-Newton iterations.
// The parameter vector x concatenates the factor matrices in column-major
// blocks: block ℓ spans x[sumDims[ℓ]:sumDims[ℓ+1]] and column r of W⁽ℓ⁾
// occupies x[sumDims[ℓ]+r·Iℓ : sumDims[ℓ]+(r+1)·Iℓ].
type iterData struct {
	dims    []int
	rank    int
	n       int
	sumDims []int

	gr []*mat.Dense   // Gramians W⁽ℓ⁾ᵀW⁽ℓ⁾
	p1 []*mat.Dense   // ∘_{m≠ℓ} Gr⁽ᵐ⁾
	p2 [][]*mat.Dense // ∘_{m≠ℓ,ℓℓ} Gr⁽ᵐ⁾

	a    []*mat.Dense // VᵀW products of the matvec
	b    []*mat.Dense // V·P1 products of the matvec
	vmat []*mat.Dense // matrix views of the probe vector blocks
	nw   []*mat.Dense // Iℓ × R work matrices
	tmp  *mat.Dense   // R × R accumulator
	tmp2 *mat.Dense   // R × R scratch

	gammaLR *mat.Dense // L × R Tikhonov weights
	gamma   []float64  // diagonal of Γ
	m       []float64  // Jacobi preconditioner diagonal

	g   []float64 // gradient ∇f
	y   []float64 // CG solution
	p   []float64 // CG search direction
	q   []float64 // preconditioned direction
	z   []float64 // (JᵀJ + μΓ) probe result
	res []float64 // CG residual
}

func newIterData(dims []int, rank int) *iterData {
	L := len(dims)
	sumDims := make([]int, L+1)
	for l, d := range dims {
		sumDims[l+1] = sumDims[l] + rank*d
	}
	n := sumDims[L]
	w := &iterData{
		dims:    append([]int(nil), dims...),
		rank:    rank,
		n:       n,
		sumDims: sumDims,
		gr:      make([]*mat.Dense, L),
		p1:      make([]*mat.Dense, L),
		p2:      make([][]*mat.Dense, L),
		a:       make([]*mat.Dense, L),
		b:       make([]*mat.Dense, L),
		vmat:    make([]*mat.Dense, L),
		nw:      make([]*mat.Dense, L),
		tmp:     mat.NewDense(rank, rank, nil),
		tmp2:    mat.NewDense(rank, rank, nil),
		gammaLR: mat.NewDense(L, rank, nil),
		gamma:   make([]float64, n),
		m:       make([]float64, n),
		g:       make([]float64, n),
		y:       make([]float64, n),
		p:       make([]float64, n),
		q:       make([]float64, n),
		z:       make([]float64, n),
		res:     make([]float64, n),
	}
	for l, d := range dims {
		w.gr[l] = mat.NewDense(rank, rank, nil)
		w.p1[l] = mat.NewDense(rank, rank, nil)
		w.p2[l] = make([]*mat.Dense, L)
		for ll := 0; ll < L; ll++ {
			if ll != l {
				w.p2[l][ll] = mat.NewDense(rank, rank, nil)
			}
		}
		w.a[l] = mat.NewDense(rank, rank, nil)
		w.b[l] = mat.NewDense(d, rank, nil)
		w.vmat[l] = mat.NewDense(d, rank, nil)
		w.nw[l] = mat.NewDense(d, rank, nil)
	}
	return w
}

func setOnes(m *mat.Dense) {
	d := m.RawMatrix().Data
	for i := range d {
		d[i] = 1
	}
}

// gramians computes all factor Gramians together with the Hadamard products
// P1⁽ℓ⁾ = ∘_{m≠ℓ}Gr⁽ᵐ⁾ and P2⁽ℓ,ℓℓ⁾ = ∘_{m≠ℓ,ℓℓ}Gr⁽ᵐ⁾.
func (w *iterData) gramians(factors []*mat.Dense) {
	L := len(w.dims)
	for l := 0; l < L; l++ {
		w.gr[l].Mul(factors[l].T(), factors[l])
	}
	for l := 0; l < L; l++ {
		for ll := 0; ll < L; ll++ {
			if ll == l {
				continue
			}
			setOnes(w.p2[l][ll])
			for m := 0; m < L; m++ {
				if m != l && m != ll {
					w.p2[l][ll].MulElem(w.p2[l][ll], w.gr[m])
				}
			}
		}
		ll := (l + 1) % L
		w.p1[l].MulElem(w.p2[l][ll], w.gr[ll])
	}
}

// regularization builds the diagonal Tikhonov matrix Γ, designed to make
// JᵀJ + Γ diagonally dominant: γₗᵣ = max|P1|·√|P1⁽ℓ⁾ᵣᵣ|.
func (w *iterData) regularization() {
	L := len(w.dims)
	mx := 0.0
	for l := 0; l < L; l++ {
		raw := w.p1[l].RawMatrix().Data
		for _, v := range raw {
			if a := math.Abs(v); a > mx {
				mx = a
			}
		}
	}
	for l := 0; l < L; l++ {
		for r := 0; r < w.rank; r++ {
			g := mx * math.Sqrt(math.Abs(w.p1[l].At(r, r)))
			w.gammaLR.Set(l, r, g)
			off := w.sumDims[l] + r*w.dims[l]
			for i := 0; i < w.dims[l]; i++ {
				w.gamma[off+i] = g
			}
		}
	}
}

// precondition fills the Jacobi preconditioner diagonal, designed to bring
// the eigenvalues of M(JᵀJ + μΓ)M close together.
func (w *iterData) precondition(damp float64) {
	for l := 0; l < len(w.dims); l++ {
		for r := 0; r < w.rank; r++ {
			g := w.gammaLR.At(l, r)
			d := math.Sqrt(g*g + damp*damp*g*g)
			if d == 0 {
				d = 1
			}
			off := w.sumDims[l] + r*w.dims[l]
			for i := 0; i < w.dims[l]; i++ {
				w.m[off+i] = 1 / d
			}
		}
	}
}

// grad computes the gradient of f(x) = ½‖T − T̂‖² into w.g:
// the mode-ℓ block is vec(W⁽ℓ⁾P1⁽ℓ⁾ − Tℓ·(⊙_{m≠ℓ}W⁽ᵐ⁾)).
func (w *iterData) grad(tl []*mat.Dense, factors []*mat.Dense) {
	L := len(w.dims)
	for l := 0; l < L; l++ {
		kr := tensor.KhatriRaoSkip(factors, l)
		w.nw[l].Mul(tl[l], kr)
		w.b[l].Mul(factors[l], w.p1[l])
		off := w.sumDims[l]
		for r := 0; r < w.rank; r++ {
			for i := 0; i < w.dims[l]; i++ {
				w.g[off+r*w.dims[l]+i] = w.b[l].At(i, r) - w.nw[l].At(i, r)
			}
		}
	}
}

// matvec computes out = (JᵀJ + μΓ)v without ever assembling J, using only
// Gramian-sized products.
func (w *iterData) matvec(factors []*mat.Dense, v []float64, damp float64, out []float64) {
	L := len(w.dims)
	for l := 0; l < L; l++ {
		off := w.sumDims[l]
		for r := 0; r < w.rank; r++ {
			for i := 0; i < w.dims[l]; i++ {
				w.vmat[l].Set(i, r, v[off+r*w.dims[l]+i])
			}
		}
		w.a[l].Mul(w.vmat[l].T(), factors[l])
		w.b[l].Mul(w.vmat[l], w.p1[l])
	}
	for l := 0; l < L; l++ {
		w.tmp.Zero()
		for ll := 0; ll < L; ll++ {
			if ll == l {
				continue
			}
			w.tmp2.MulElem(w.p2[l][ll], w.a[ll])
			w.tmp.Add(w.tmp, w.tmp2)
		}
		w.nw[l].Mul(factors[l], w.tmp)
		w.nw[l].Add(w.nw[l], w.b[l])
		off := w.sumDims[l]
		for r := 0; r < w.rank; r++ {
			for i := 0; i < w.dims[l]; i++ {
				p := off + r*w.dims[l] + i
				out[p] = w.nw[l].At(i, r) + damp*w.gamma[p]*v[p]
			}
		}
	}
}

func vec64(d []float64) blas64.Vector {
	return blas64.Vector{N: len(d), Inc: 1, Data: d}
}

// cg solves the damped normal equations (JᵀJ + μΓ)y = −∇f with a Jacobi
// preconditioned conjugate gradient, returning the step, the gradient
// infinity norm, the iteration count and the final residual norm.
func (w *iterData) cg(tl, factors []*mat.Dense, damp float64, maxiter int, tol float64) (y []float64, gradInf float64, itn int, resNorm float64) {
	w.gramians(factors)
	w.regularization()
	w.precondition(damp)
	w.grad(tl, factors)

	if n := w.n; maxiter > n {
		maxiter = n
	}

	for _, v := range w.g {
		if a := math.Abs(v); a > gradInf {
			gradInf = a
		}
	}
	for i := range w.res {
		w.res[i] = -w.m[i] * w.g[i]
	}
	copy(w.p, w.res)
	for i := range w.y {
		w.y[i] = 0
	}
	resNorm = blas64.Dot(vec64(w.res), vec64(w.res))
	if resNorm == 0 {
		resNorm = 1e-6
	}
	for itn = 0; itn < maxiter; itn++ {
		for i := range w.q {
			w.q[i] = w.m[i] * w.p[i]
		}
		w.matvec(factors, w.q, damp, w.z)
		for i := range w.z {
			w.z[i] *= w.m[i]
		}
		den := blas64.Dot(vec64(w.p), vec64(w.z))
		if den == 0 {
			den = 1e-6
		}
		alpha := resNorm / den
		blas64.Axpy(alpha, vec64(w.p), vec64(w.y))
		blas64.Axpy(-alpha, vec64(w.z), vec64(w.res))
		newNorm := blas64.Dot(vec64(w.res), vec64(w.res))
		beta := newNorm / resNorm
		resNorm = newNorm
		for i := range w.p {
			w.p[i] = w.res[i] + beta*w.p[i]
		}
		if resNorm <= tol {
			itn++
			break
		}
	}
	y = make([]float64, w.n)
	for i := range y {
		y[i] = w.m[i] * w.y[i]
	}
	return y, gradInf, itn, resNorm
}
