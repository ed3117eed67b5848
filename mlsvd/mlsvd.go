// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlsvd

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// Method selects the compression variant.
type Method int

const (
	// Sequential reuses the reduction of prior modes before computing the
	// next basis.
	Sequential Method = iota
	// Classic computes every basis from the unfolding of the original
	// tensor.
	Classic
)

var (
	// ErrMethod reports an unknown compression method.
	ErrMethod = errors.New("mlsvd: unknown method")
	// ErrTruncDims reports invalid explicit truncation dimensions.
	ErrTruncDims = errors.New("mlsvd: invalid truncation dimensions")
	// ErrFactorize reports an SVD or eigendecomposition failure.
	ErrFactorize = errors.New("mlsvd: factorization failed")
)

// Spec configures a compression pass.
type Spec struct {
	// Method selects the per-mode SVD strategy.
	Method Method
	// Tol is the per-mode relative squared truncation tolerance: the
	// smallest rank Rℓ is kept such that Σ_{i>Rℓ}σᵢ² ≤ Tol·Σσᵢ².
	// Tol ≤ 0 compresses without truncating (full multilinear rank).
	Tol float64
	// TruncDims, when non-nil, requests explicit core dimensions and
	// overrides Tol.
	TruncDims []int
}

// Result holds a compressed representation of a tensor.
type Result struct {
	// Core is the compressed core tensor S.
	Core *tensor.Dense
	// Bases holds the orthonormal basis matrices Uℓ (Iℓ × Rℓ).
	Bases []*mat.Dense
	// RelError is the realized relative compression error
	// ‖T − T̂‖/‖T‖ = √(‖T‖² − ‖S‖²)/‖T‖.
	RelError float64
}

// Dims returns the core dimensions (R₀,…,R_{L-1}).
func (r *Result) Dims() []int { return r.Core.Dims() }

// Reconstruct applies the bases to the core, materializing T̂.
func (r *Result) Reconstruct() (*tensor.Dense, error) {
	t := r.Core
	var err error
	for l, u := range r.Bases {
		if t, err = t.ModeMul(u, l); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Expand maps factor matrices from core space back to the original space:
// Wℓ ↦ Uℓ·Wℓ.
func (r *Result) Expand(factors []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(factors))
	for l, w := range factors {
		var m mat.Dense
		m.Mul(r.Bases[l], w)
		out[l] = &m
	}
	return out
}

// Compress computes the (possibly truncated) MLSVD of t.
func Compress(t tensor.Tensor, spec Spec) (*Result, error) {
	dims := t.Dims()
	if spec.TruncDims != nil {
		if len(spec.TruncDims) != len(dims) {
			return nil, fmt.Errorf("%w: %v for order %d", ErrTruncDims, spec.TruncDims, len(dims))
		}
		for l, d := range spec.TruncDims {
			if d < 1 || d > dims[l] {
				return nil, fmt.Errorf("%w: mode %d dimension %d outside [1,%d]", ErrTruncDims, l, d, dims[l])
			}
		}
	}
	switch v := t.(type) {
	case *tensor.Dense:
		return compressDense(v, spec)
	case *tensor.Sparse:
		return compressSparse(v, spec)
	default:
		return nil, fmt.Errorf("mlsvd: unsupported tensor type %T", t)
	}
}

func compressDense(t *tensor.Dense, spec Spec) (*Result, error) {
	if spec.Method != Sequential && spec.Method != Classic {
		return nil, ErrMethod
	}
	dims := t.Dims()
	L := len(dims)
	bases := make([]*mat.Dense, L)
	nT := t.Norm()

	core := t
	var err error
	switch spec.Method {
	case Classic:
		for l := 0; l < L; l++ {
			rank, tol := truncRank(spec, l)
			if bases[l], err = truncatedBasis(t.Unfold(l), rank, tol); err != nil {
				return nil, err
			}
		}
		for l := 0; l < L; l++ {
			if core, err = core.ModeMul(bases[l].T(), l); err != nil {
				return nil, err
			}
		}
	case Sequential:
		for l := 0; l < L; l++ {
			rank, tol := truncRank(spec, l)
			if bases[l], err = truncatedBasis(core.Unfold(l), rank, tol); err != nil {
				return nil, err
			}
			if core, err = core.ModeMul(bases[l].T(), l); err != nil {
				return nil, err
			}
		}
	}
	return &Result{Core: core, Bases: bases, RelError: relError(nT, core.Norm())}, nil
}

func compressSparse(t *tensor.Sparse, spec Spec) (*Result, error) {
	if spec.Method != Sequential && spec.Method != Classic {
		return nil, ErrMethod
	}
	dims := t.Dims()
	L := len(dims)
	bases := make([]*mat.Dense, L)
	for l := 0; l < L; l++ {
		rank, tol := truncRank(spec, l)
		u, err := gramBasis(t.UnfoldCSR(l).Gram(), rank, tol)
		if err != nil {
			return nil, err
		}
		bases[l] = u
	}

	// Accumulate the core over the nonzero support only:
	// S = Σₑ vₑ · U₀[i₀,:] ⊗ ⋯ ⊗ U_{L-1}[i_{L-1},:]
	coreDims := make([]int, L)
	for l, u := range bases {
		_, coreDims[l] = u.Dims()
	}
	core, err := tensor.NewDense(coreDims, nil)
	if err != nil {
		return nil, err
	}
	data := core.Data()
	vals, idx := t.Values(), t.Indices()
	for n, v := range vals {
		cur := []float64{v}
		for l := 0; l < L; l++ {
			next := make([]float64, len(cur)*coreDims[l])
			for i, c := range cur {
				for j := 0; j < coreDims[l]; j++ {
					next[i*coreDims[l]+j] = c * bases[l].At(idx[n][l], j)
				}
			}
			cur = next
		}
		for i, c := range cur {
			data[i] += c
		}
	}
	return &Result{Core: core, Bases: bases, RelError: relError(t.Norm(), core.Norm())}, nil
}

// truncRank resolves the per-mode truncation request: an explicit dimension,
// or -1 meaning "choose by tolerance".
func truncRank(spec Spec, l int) (rank int, tol float64) {
	if spec.TruncDims != nil {
		return spec.TruncDims[l], 0
	}
	return -1, spec.Tol
}

func splitRank(rank int, tol float64) func(sq []float64) int {
	return func(sq []float64) int {
		if rank > 0 {
			if rank > len(sq) {
				return len(sq)
			}
			return rank
		}
		if tol <= 0 {
			return len(sq)
		}
		total := 0.0
		for _, v := range sq {
			total += v
		}
		if total == 0 {
			return 1
		}
		tail := total
		for r, v := range sq {
			tail -= v
			if tail <= tol*total {
				return r + 1
			}
		}
		return len(sq)
	}
}

// truncatedBasis returns the leading left singular vectors of a.
func truncatedBasis(a *mat.Dense, rank int, tol float64) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThinU); !ok {
		return nil, ErrFactorize
	}
	sv := svd.Values(nil)
	sq := make([]float64, len(sv))
	for i, s := range sv {
		sq[i] = s * s
	}
	keep := splitRank(rank, tol)(sq)
	var u mat.Dense
	svd.UTo(&u)
	rows, _ := u.Dims()
	return mat.DenseCopyOf(u.Slice(0, rows, 0, keep)), nil
}

// gramBasis extracts the leading eigenvectors of a Gram matrix A·Aᵀ, whose
// eigenvalues are the squared singular values of A.
func gramBasis(g *mat.SymDense, rank int, tol float64) (*mat.Dense, error) {
	var es mat.EigenSym
	if ok := es.Factorize(g, true); !ok {
		return nil, ErrFactorize
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// EigenSym returns eigenvalues in ascending order.
	n := len(vals)
	ord := make([]int, n)
	for i := range ord {
		ord[i] = i
	}
	sort.Slice(ord, func(i, j int) bool { return vals[ord[i]] > vals[ord[j]] })
	sq := make([]float64, n)
	for i, o := range ord {
		sq[i] = math.Max(vals[o], 0)
	}
	keep := splitRank(rank, tol)(sq)

	u := mat.NewDense(n, keep, nil)
	for j := 0; j < keep; j++ {
		for i := 0; i < n; i++ {
			u.Set(i, j, vecs.At(i, ord[j]))
		}
	}
	return u, nil
}

func relError(nT, nS float64) float64 {
	if nT == 0 {
		return 0
	}
	d := nT*nT - nS*nS
	if d < 0 {
		d = 0
	}
	return math.Sqrt(d) / nT
}
