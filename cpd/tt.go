// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/mlsvd"
	"github.com/curioloop/polyadic/tensor"
)

// ttEarlyStop is the sub-problem error below which no further trials are
// attempted.
const ttEarlyStop = 1e-4

// ttDecompose handles tensors of order above three. The compressed core is
// written as a tensor train whose interior cores are third order, each
// interior core gets its own rank-R decomposition, and consecutive cores are
// glued by fixing the first factor of the next problem to the pseudoinverse
// of the previous last factor. The head and tail train matrices are absorbed
// into the first and last factors.
func ttDecompose(t tensor.Tensor, rank int, cfg *config) ([]*mat.Dense, *Output, error) {
	work, perm, err := sortModes(t)
	if err != nil {
		return nil, nil, err
	}
	cfg = permuteConfig(cfg, perm)

	var (
		core *tensor.Dense
		comp *mlsvd.Result
		info CompressionInfo
	)
	if cfg.skip {
		core = work.(*tensor.Dense)
		info = CompressionInfo{Skipped: true, Dims: core.Dims()}
	} else {
		comp, err = mlsvd.Compress(work, mlsvd.Spec{
			Method:    cfg.MLSVDMethod,
			Tol:       cfg.tolTop,
			TruncDims: cfg.TruncDims,
		})
		if err != nil {
			return nil, nil, err
		}
		core = comp.Core
		info = CompressionInfo{Dims: comp.Dims(), RelError: comp.RelError}
		if cfg.Display >= 1 {
			cfg.log.Info().
				Ints("core_dims", info.Dims).
				Float64("rel_error", info.RelError).
				Msg("compression done")
		}
	}

	head, mids, tail, err := ttSVD(core, rank)
	if err != nil {
		return nil, nil, err
	}

	sub := subConfig(cfg)
	L := core.Order()
	factors := make([]*mat.Dense, L)
	subs := make([]*Output, 0, len(mids))

	// First interior core gets a full pipeline with fresh starts.
	var first []*mat.Dense
	var firstOut *Output
	bestErr := math.Inf(1)
	for trial := 0; trial < cfg.Trials; trial++ {
		cand, out, err := triDecompose(mids[0], rank, sub)
		if err != nil {
			return nil, nil, err
		}
		if out.RelError < bestErr {
			bestErr = out.RelError
			first, firstOut = cand, out
		}
		if bestErr < ttEarlyStop {
			break
		}
	}
	subs = append(subs, firstOut)
	factors[0] = matMul(head, first[0])
	factors[1] = first[1]
	z := first[2]

	// Remaining interior cores chain through the fixed first factor.
	for l := 1; l < len(mids); l++ {
		fixed, err := pinv(z.T())
		if err != nil {
			return nil, nil, err
		}
		var bestFac []*mat.Dense
		var bestStage Stage
		bestErr = math.Inf(1)
		for trial := 0; trial < cfg.Trials; trial++ {
			init := randFactors(mids[l].Dims(), rank, sub)
			init[0] = mat.DenseCopyOf(fixed)
			cleanZeroColumns(init[1:], sub)
			cand, stage := bicpd(mids[l], rank, init, 0, sub)
			candErr := factorsRelError(mids[l].Unfold(0), cand, mids[l].Norm())
			if candErr < bestErr {
				bestErr = candErr
				bestFac, bestStage = cand, stage
			}
			if bestErr < ttEarlyStop {
				break
			}
		}
		subs = append(subs, &Output{
			NumSteps:      bestStage.Steps,
			RelError:      bestErr,
			Accuracy:      math.Max(0, 100*(1-bestErr)),
			Main:          bestStage,
			Refinement:    Stage{Status: NoRefinement},
			Compression:   CompressionInfo{Skipped: true, Dims: mids[l].Dims()},
			Diverged:      bestStage.Status == Diverged,
			DenseRelError: math.NaN(),
		})
		factors[l+1] = bestFac[1]
		z = bestFac[2]
	}
	factors[L-1] = matMul(tail.T(), z)

	if comp != nil {
		factors = comp.Expand(factors)
	}
	factors = unsortFactors(factors, perm)

	out := &Output{
		Refinement:    Stage{Status: NoRefinement},
		Compression:   info,
		SubOutputs:    subs,
		DenseRelError: math.NaN(),
	}
	for i, s := range subs {
		out.NumSteps += s.NumSteps
		out.Diverged = out.Diverged || s.Diverged
		if i == 0 {
			out.Main = s.Main
		}
	}
	switch v := t.(type) {
	case *tensor.Dense:
		out.RelError = factorsRelError(v.Unfold(0), factors, v.Norm())
	case *tensor.Sparse:
		out.Nnz = v.Nnz()
		out.Sparsity = v.Sparsity()
		out.RelError = sparseRelError(v, factors)
	}
	out.Accuracy = math.Max(0, 100*(1-out.RelError))
	return factors, out, nil
}

// ttSVD computes a tensor train of t with every internal rank capped at
// rank: a head matrix I₀×r₀, interior third-order cores r×Iₗ×r and a tail
// matrix r×I_{L-1}.
func ttSVD(t *tensor.Dense, rank int) (head *mat.Dense, mids []*tensor.Dense, tail *mat.Dense, err error) {
	dims := t.Dims()
	L := len(dims)
	rest := t.Size() / dims[0]

	u, w, err := splitSVD(t.Unfold(0), rank)
	if err != nil {
		return nil, nil, nil, err
	}
	head = u
	_, r1 := u.Dims()

	mids = make([]*tensor.Dense, 0, L-2)
	for l := 1; l < L-1; l++ {
		rest /= dims[l]
		v := reshapeRows(w, r1*dims[l], rest)
		u, w, err = splitSVD(v, rank)
		if err != nil {
			return nil, nil, nil, err
		}
		_, r2 := u.Dims()
		g, err := tensor.NewDense([]int{r1, dims[l], r2}, rawData(u))
		if err != nil {
			return nil, nil, nil, err
		}
		mids = append(mids, g)
		r1 = r2
	}
	tail = w
	return head, mids, tail, nil
}

// splitSVD factors a into U·(ΣVᵀ) keeping at most maxRank singular triples.
func splitSVD(a *mat.Dense, maxRank int) (*mat.Dense, *mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, nil, mlsvd.ErrFactorize
	}
	sv := svd.Values(nil)
	keep := len(sv)
	if maxRank < keep {
		keep = maxRank
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	rows, _ := u.Dims()
	cols, _ := v.Dims()

	uk := mat.DenseCopyOf(u.Slice(0, rows, 0, keep))
	w := mat.NewDense(keep, cols, nil)
	for i := 0; i < keep; i++ {
		for j := 0; j < cols; j++ {
			w.Set(i, j, sv[i]*v.At(j, i))
		}
	}
	return uk, w, nil
}

// pinv computes the Moore-Penrose pseudoinverse through the thin SVD.
func pinv(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, mlsvd.ErrFactorize
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	tol := 1e-14 * float64(len(sv))
	if len(sv) > 0 {
		tol *= sv[0]
	}
	d := mat.NewDiagDense(len(sv), nil)
	for i, s := range sv {
		if s > tol {
			d.SetDiag(i, 1/s)
		}
	}
	var tmp, out mat.Dense
	tmp.Mul(&v, d)
	out.Mul(&tmp, u.T())
	return &out, nil
}

// subConfig derives the options used for the tensor train sub-problems.
func subConfig(cfg *config) *config {
	sub := *cfg
	sub.tolTop = cfg.tolSub
	sub.skip = cfg.tolSub == MLSVDSkip
	sub.TruncDims = nil
	sub.UserFactors = nil
	sub.Init = InitRandom
	sub.Refine = false
	sub.Symm = false
	sub.sparse = false
	return &sub
}

func matMul(a mat.Matrix, b *mat.Dense) *mat.Dense {
	var m mat.Dense
	m.Mul(a, b)
	return &m
}

// reshapeRows reinterprets the contiguous row-major data of w as an
// rows×cols matrix.
func reshapeRows(w *mat.Dense, rows, cols int) *mat.Dense {
	raw := w.RawMatrix()
	if raw.Stride == raw.Cols && len(raw.Data) == rows*cols {
		return mat.NewDense(rows, cols, raw.Data)
	}
	data := make([]float64, 0, rows*cols)
	for i := 0; i < raw.Rows; i++ {
		data = append(data, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return mat.NewDense(rows, cols, data)
}

// rawData copies a matrix out as a contiguous row-major slice.
func rawData(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	data := make([]float64, 0, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		data = append(data, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return data
}
