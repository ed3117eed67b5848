// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/mlsvd"
	"github.com/curioloop/polyadic/tensor"
)

// triDecompose runs the full pipeline on one tensor: mode sorting,
// compression, initialization, damped Gauss-Newton, optional refinement and
// expansion back to the original coordinates.
func triDecompose(t tensor.Tensor, rank int, cfg *config) ([]*mat.Dense, *Output, error) {
	work, perm, err := sortModes(t)
	if err != nil {
		return nil, nil, err
	}
	cfg = permuteConfig(cfg, perm)

	var (
		core  *tensor.Dense
		comp  *mlsvd.Result
		info  CompressionInfo
		bases []*mat.Dense
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
		if cfg.Symm {
			// Symmetric updates average the factors, so the core must keep
			// the same rank along every mode even when the tensor does not.
			if trunc := symmTrunc(comp.Dims()); trunc != nil {
				comp, err = mlsvd.Compress(work, mlsvd.Spec{
					Method:    cfg.MLSVDMethod,
					TruncDims: trunc,
				})
				if err != nil {
					return nil, nil, err
				}
			}
		}
		core, bases = comp.Core, comp.Bases
		info = CompressionInfo{Dims: comp.Dims(), RelError: comp.RelError}
		if cfg.Display >= 1 {
			cfg.log.Info().
				Ints("core_dims", info.Dims).
				Float64("rel_error", info.RelError).
				Msg("compression done")
		}
	}

	init := startPoint(core, bases, rank, cfg)
	initErr := factorsRelError(core.Unfold(0), init, core.Norm())

	drv := newDriver(core, init, rank, cfg, -1)
	best, main := drv.run(initErr)

	factors := best
	if comp != nil {
		factors = comp.Expand(best)
	}

	refine := Stage{Status: NoRefinement}
	if cfg.Refine {
		dense, ok := work.(*tensor.Dense)
		if !ok {
			return nil, nil, ErrBadOption
		}
		refErr := factorsRelError(dense.Unfold(0), factors, dense.Norm())
		rdrv := newDriver(dense, factors, rank, cfg, -1)
		factors, refine = rdrv.run(refErr)
		if cfg.Display >= 1 {
			cfg.log.Info().
				Str("status", refine.Status.String()).
				Int("steps", refine.Steps).
				Msg("refinement done")
		}
	}

	factors = unsortFactors(factors, perm)

	out := &Output{
		NumSteps:      main.Steps + refine.Steps,
		Main:          main,
		Refinement:    refine,
		Compression:   info,
		Diverged:      main.Status == Diverged || refine.Status == Diverged,
		DenseRelError: math.NaN(),
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

// bicpd solves the sub-problem with one factor held fixed, starting from the
// given factors. The working tensor is used as is, without sorting or
// compression.
func bicpd(t *tensor.Dense, rank int, factors []*mat.Dense, fixMode int, cfg *config) ([]*mat.Dense, Stage) {
	initErr := factorsRelError(t.Unfold(0), factors, t.Norm())
	drv := newDriver(t, factors, rank, cfg, fixMode)
	return drv.run(initErr)
}

// symmTrunc returns uniform truncation dimensions when compression left the
// core with unequal mode ranks, nil when they already agree.
func symmTrunc(dims []int) []int {
	low := dims[0]
	equal := true
	for _, d := range dims[1:] {
		if d != dims[0] {
			equal = false
		}
		if d < low {
			low = d
		}
	}
	if equal {
		return nil
	}
	trunc := make([]int, len(dims))
	for i := range trunc {
		trunc[i] = low
	}
	return trunc
}

// sortModes permutes the tensor so its dimensions are non-increasing, which
// keeps the tall unfolding first. The permutation is returned so factors can
// be mapped back.
func sortModes(t tensor.Tensor) (tensor.Tensor, []int, error) {
	dims := t.Dims()
	perm := make([]int, len(dims))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool { return dims[perm[i]] > dims[perm[j]] })
	sorted := true
	for i, p := range perm {
		if p != i {
			sorted = false
			break
		}
	}
	if sorted {
		return t, perm, nil
	}
	switch v := t.(type) {
	case *tensor.Dense:
		s, err := v.Transpose(perm)
		return s, perm, err
	case *tensor.Sparse:
		s, err := v.Transpose(perm)
		return s, perm, err
	}
	return t, perm, nil
}

// unsortFactors maps factors of the sorted tensor back to the original mode
// order.
func unsortFactors(factors []*mat.Dense, perm []int) []*mat.Dense {
	out := make([]*mat.Dense, len(factors))
	for i, p := range perm {
		out[p] = factors[i]
	}
	return out
}

// permuteConfig rewrites the mode-indexed options for the sorted tensor.
func permuteConfig(cfg *config, perm []int) *config {
	sorted := true
	for i, p := range perm {
		if p != i {
			sorted = false
			break
		}
	}
	if sorted {
		return cfg
	}
	dup := *cfg
	if cfg.TruncDims != nil {
		dup.TruncDims = make([]int, len(perm))
		for i, p := range perm {
			dup.TruncDims[i] = cfg.TruncDims[p]
		}
	}
	if cfg.UserFactors != nil {
		dup.UserFactors = make([]*mat.Dense, len(perm))
		for i, p := range perm {
			dup.UserFactors[i] = cfg.UserFactors[p]
		}
	}
	return &dup
}
