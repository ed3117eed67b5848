// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/mlsvd"
	"github.com/curioloop/polyadic/tensor"
)

// Init selects the starting-point strategy for the iterations.
type Init int

const (
	// InitRandom draws every factor entry from the standard normal
	// distribution. The expected initial relative error is near 1.
	InitRandom Init = iota
	// InitSmart deterministically picks the highest-energy entries of the
	// compressed core, giving a low initial error at the risk of a poor
	// stationary point.
	InitSmart
	// InitSmartRandom randomizes the entry selection of InitSmart, trading
	// determinism for an escape from some stationary points.
	InitSmartRandom
	// InitUser takes the starting factors from Options.UserFactors.
	InitUser
)

// MLSVDSkip is the Options.TolMLSVD sentinel that bypasses compression
// entirely, running the solver on the original tensor.
const MLSVDSkip = -1

const (
	// MaxOrder is the highest supported tensor order.
	MaxOrder = 12

	defaultMaxIter   = 200
	defaultTol       = 1e-6
	defaultTolJump   = 10
	defaultTolMLSVD  = 1e-16
	defaultTrials    = 3
	defaultInnerIter = 100
	defaultInnerTol  = 1e-16
)

// Options configures a decomposition. The zero value of any field selects
// its default.
type Options struct {
	// Display is the verbosity level 0–4. Levels ≥ 1 log stage events,
	// ≥ 2 log every iteration, ≥ 3 additionally enable costly full-tensor
	// diagnostic errors on the sparse path.
	Display int
	// MaxIter bounds the Gauss-Newton iterations (default 200).
	MaxIter int
	// Tol stops the iteration when the relative error is small enough
	// (default 1e-6).
	Tol float64
	// TolStep stops the iteration when ‖xₖ₊₁ − xₖ‖/‖xₖ‖ is small enough
	// (default 1e-6).
	TolStep float64
	// TolImprov stops the iteration when |εₖ − εₖ₊₁| is small enough
	// (default 1e-6).
	TolImprov float64
	// TolGrad stops the iteration when ‖∇f‖∞ is small enough
	// (default 1e-6).
	TolGrad float64
	// TolJump bounds accepted steps: a step with εₖ₊₁ > TolJump·εₖ is
	// rejected and recomputed by the dogleg fallback (default 10).
	TolJump float64
	// MLSVDMethod selects the compression variant (default sequential).
	MLSVDMethod mlsvd.Method
	// TolMLSVD is the compression truncation tolerance. nil defaults to
	// {1e-16}; {0} compresses without truncating; {MLSVDSkip} bypasses
	// compression (dense input only). A second element configures the
	// third-order sub-problems of the tensor-train path independently.
	TolMLSVD []float64
	// TruncDims, when non-nil, requests explicit core dimensions.
	TruncDims []int
	// Init selects the starting-point strategy (default InitRandom).
	Init Init
	// UserFactors supplies the starting factors for InitUser, shaped
	// Iℓ × R in the original tensor dimensions.
	UserFactors []*mat.Dense
	// Refine re-runs the solver in the uncompressed space, seeded by the
	// compressed-space solution. Dense input only.
	Refine bool
	// InitDamp scales the initial damping parameter: μ₀ = τ·mean(|S|)
	// with τ = InitDamp[0] (default 1). A sequence of at least MaxIter
	// values fixes μ per iteration instead.
	InitDamp []float64
	// Symm requests a symmetric decomposition: all factor matrices are
	// averaged into one after each accepted step. Requires equal
	// dimensions across modes.
	Symm bool
	// Trials is the retry count for each tensor-train sub-problem
	// (default 3).
	Trials int
	// InnerIter caps the conjugate gradient iterations per step
	// (default 100).
	InnerIter int
	// InnerTol is the conjugate gradient residual tolerance
	// (default 1e-16).
	InnerTol float64
	// Seed fixes the random source; 0 seeds from the clock.
	Seed int64
	// Logger receives progress events gated by Display. Nil discards them.
	Logger *zerolog.Logger
}

// DefaultOptions returns the option set used when Decompose receives nil.
func DefaultOptions() Options {
	return Options{
		MaxIter:   defaultMaxIter,
		Tol:       defaultTol,
		TolStep:   defaultTol,
		TolImprov: defaultTol,
		TolGrad:   defaultTol,
		TolJump:   defaultTolJump,
		TolMLSVD:  []float64{defaultTolMLSVD},
		Trials:    defaultTrials,
		InnerIter: defaultInnerIter,
		InnerTol:  defaultInnerTol,
	}
}

// config is the resolved, validated snapshot of Options consumed by the
// pipeline.
type config struct {
	Options
	tolTop  float64
	tolSub  float64
	skip    bool // compression bypassed
	sparse  bool
	rng     *rand.Rand
	log     zerolog.Logger
}

func resolveOptions(t tensor.Tensor, rank int, opts *Options) (*config, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.MaxIter == 0 {
		o.MaxIter = defaultMaxIter
	}
	if o.Tol == 0 {
		o.Tol = defaultTol
	}
	if o.TolStep == 0 {
		o.TolStep = defaultTol
	}
	if o.TolImprov == 0 {
		o.TolImprov = defaultTol
	}
	if o.TolGrad == 0 {
		o.TolGrad = defaultTol
	}
	if o.TolJump == 0 {
		o.TolJump = defaultTolJump
	}
	if len(o.TolMLSVD) == 0 {
		o.TolMLSVD = []float64{defaultTolMLSVD}
	}
	if len(o.InitDamp) == 0 {
		o.InitDamp = []float64{1}
	}
	if o.Trials == 0 {
		o.Trials = defaultTrials
	}
	if o.InnerIter == 0 {
		o.InnerIter = defaultInnerIter
	}
	if o.InnerTol == 0 {
		o.InnerTol = defaultInnerTol
	}

	dims := t.Dims()
	L := len(dims)
	_, sparse := t.(*tensor.Sparse)

	minDim := dims[0]
	for _, d := range dims {
		if d < minDim {
			minDim = d
		}
	}
	equalDims := true
	for _, d := range dims {
		if d != dims[0] {
			equalDims = false
		}
	}
	equalTrunc := true
	for _, d := range o.TruncDims {
		if d != o.TruncDims[0] {
			equalTrunc = false
		}
	}

	tolTop := o.TolMLSVD[0]
	tolSub := o.TolMLSVD[len(o.TolMLSVD)-1]

	var err error
	switch {
	case L < 3:
		err = fmt.Errorf("%w: order %d, want at least 3", ErrBadDims, L)
	case L > MaxOrder:
		err = fmt.Errorf("%w: order %d exceeds %d", ErrBadDims, L, MaxOrder)
	case minDim < 2:
		err = fmt.Errorf("%w: unit dimension in %v", ErrBadDims, dims)
	case rank < 1:
		err = fmt.Errorf("%w: rank %d", ErrBadRank, rank)
	case L == 3 && rank > rankBound(dims):
		err = fmt.Errorf("%w: rank must satisfy 1 <= rank <= min(mn, mp, np) = %d", ErrBadRank, rankBound(dims))
	case L > 3 && rank < 2:
		err = fmt.Errorf("%w: rank must be greater than 1 for order above 3", ErrBadRank)
	case o.Display < 0 || o.Display > 4:
		err = fmt.Errorf("%w: display level %d outside [0,4]", ErrBadOption, o.Display)
	case o.MaxIter < 1:
		err = fmt.Errorf("%w: maxiter must be positive", ErrBadOption)
	case o.Tol < 0 || o.TolStep < 0 || o.TolImprov < 0 || o.TolGrad < 0:
		err = fmt.Errorf("%w: tolerances must not be negative", ErrBadOption)
	case o.TolJump <= 1:
		err = fmt.Errorf("%w: tol_jump must be greater than 1", ErrBadOption)
	case o.MLSVDMethod != mlsvd.Sequential && o.MLSVDMethod != mlsvd.Classic:
		err = fmt.Errorf("%w: unknown mlsvd method", ErrBadOption)
	case len(o.TolMLSVD) > 2:
		err = fmt.Errorf("%w: tol_mlsvd takes at most two values", ErrBadOption)
	case tolTop == MLSVDSkip && sparse:
		err = fmt.Errorf("%w: compression is mandatory for sparse tensors", ErrBadOption)
	case o.Refine && sparse:
		err = fmt.Errorf("%w: refinement requires a dense tensor", ErrBadOption)
	case o.TruncDims != nil && len(o.TruncDims) != L:
		err = fmt.Errorf("%w: trunc_dims %v for order %d", ErrBadOption, o.TruncDims, L)
	case o.Symm && !equalDims:
		err = fmt.Errorf("%w: symmetric tensors must have equal dimensions", ErrBadOption)
	case o.Symm && !equalTrunc:
		err = fmt.Errorf("%w: symmetric tensors need equal trunc_dims", ErrBadOption)
	case len(o.InitDamp) > 1 && len(o.InitDamp) < o.MaxIter:
		err = fmt.Errorf("%w: init_damp sequence must cover maxiter values", ErrBadOption)
	case o.Init < InitRandom || o.Init > InitUser:
		err = fmt.Errorf("%w: unknown initialization", ErrBadOption)
	case o.Init != InitUser && o.UserFactors != nil:
		err = fmt.Errorf("%w: user factors given without user initialization", ErrBadOption)
	}
	if err != nil {
		return nil, err
	}

	if o.Init == InitUser {
		if len(o.UserFactors) != L {
			return nil, fmt.Errorf("%w: %d factors for order %d", ErrBadInit, len(o.UserFactors), L)
		}
		for l, w := range o.UserFactors {
			if w == nil {
				return nil, fmt.Errorf("%w: factor %d is nil", ErrBadInit, l)
			}
			rows, cols := w.Dims()
			if rows != dims[l] || cols != rank {
				return nil, fmt.Errorf("%w: factor %d is %dx%d, want %dx%d", ErrBadInit, l, rows, cols, dims[l], rank)
			}
		}
	}

	seed := o.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log := zerolog.Nop()
	if o.Logger != nil && o.Display > 0 {
		log = *o.Logger
	}
	return &config{
		Options: o,
		tolTop:  tolTop,
		tolSub:  tolSub,
		skip:    tolTop == MLSVDSkip,
		sparse:  sparse,
		rng:     rand.New(rand.NewSource(seed)),
		log:     log,
	}, nil
}

// rankBound returns the third-order upper bound min(mn, mp, np).
func rankBound(dims []int) int {
	m, n, p := dims[0], dims[1], dims[2]
	b := m * n
	if v := m * p; v < b {
		b = v
	}
	if v := n * p; v < b {
		b = v
	}
	return b
}
