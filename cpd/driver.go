// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// blowUpFactor is the absolute divergence threshold on εₖ₊₁/εₖ − 1.
const blowUpFactor = 1e20

// iterDriver runs the damped Gauss-Newton iteration on one working tensor,
// holding the per-call state that is created at loop entry and discarded at
// loop exit. Only the best factors and the stage summary survive.
type iterDriver struct {
	cfg     *config
	t       *tensor.Dense
	tl      []*mat.Dense // precomputed unfoldings
	tNorm   float64
	dims    []int
	rank    int
	data    *iterData
	damp    *dampingCtrl
	trust   *trustRegion
	factors []*mat.Dense
	fixMode int
	fixed   *mat.Dense
	x       []float64
}

func newDriver(t *tensor.Dense, factors []*mat.Dense, rank int, cfg *config, fixMode int) *iterDriver {
	dims := t.Dims()
	L := len(dims)
	tl := make([]*mat.Dense, L)
	for l := 0; l < L; l++ {
		tl[l] = t.Unfold(l)
	}
	d := &iterDriver{
		cfg:     cfg,
		t:       t,
		tl:      tl,
		tNorm:   t.Norm(),
		dims:    dims,
		rank:    rank,
		data:    newIterData(dims, rank),
		damp:    newDamping(cfg.InitDamp, t.MeanAbs()),
		trust:   newTrustRegion(),
		factors: cloneFactors(factors),
		fixMode: fixMode,
	}
	if fixMode >= 0 {
		d.fixed = mat.DenseCopyOf(factors[fixMode])
	}
	d.x = factorsToVec(d.factors, d.data)
	return d
}

// run iterates until a stopping condition fires, returning the best factors
// seen together with the stage summary.
func (d *iterDriver) run(initError float64) ([]*mat.Dense, Stage) {
	cfg := d.cfg
	stage := Stage{Status: MaxIterReached}
	relErr := initError
	best := cloneFactors(d.factors)
	bestErr := initError
	window := 1 + cfg.MaxIter/10
	errs := make([]float64, 0, cfg.MaxIter)
	oldX := make([]float64, len(d.x))

	for it := 0; it < cfg.MaxIter; it++ {
		copy(oldX, d.x)
		oldErr := relErr

		damp := d.damp.current(it)
		y, gradInf, itn, resNorm := d.data.cg(d.tl, d.factors, damp, d.innerIterations(it), cfg.InnerTol)

		kind := GaussNewtonStep
		candX := make([]float64, len(d.x))
		floats.AddTo(candX, d.x, y)
		candFactors, candErr := d.evaluate(candX)
		if candErr > cfg.TolJump*oldErr {
			// Bad step: retry within a shrinking trust region.
			kind = DoglegFallbackStep
			var ok bool
			candX, candFactors, candErr, ok = d.doglegStep(y, damp, oldErr)
			if !ok {
				stage.Status = TrustRegionFailed
				break
			}
		} else {
			d.trust.expand()
		}

		d.x = candX
		d.factors = candFactors
		relErr = candErr
		if relErr < bestErr {
			bestErr = relErr
			for l := range best {
				best[l].Copy(d.factors[l])
			}
		}
		d.damp.update(oldErr, relErr, resNorm, it)

		stepSize := stepNorm(d.x, oldX)
		improv := relErr
		if it > 0 {
			improv = math.Abs(errs[it-1] - relErr)
		}
		errs = append(errs, relErr)
		stage.Trace = append(stage.Trace, TraceEntry{
			Iter:           it,
			Kind:           kind,
			RelError:       relErr,
			StepSize:       stepSize,
			Improv:         improv,
			GradNorm:       gradInf,
			PredictedError: resNorm,
			InnerIter:      itn,
		})
		if cfg.Display >= 2 {
			cfg.log.Debug().
				Int("iter", it+1).
				Float64("rel_error", relErr).
				Float64("step_size", stepSize).
				Float64("improv", improv).
				Float64("grad_norm", gradInf).
				Int("inner_iter", itn).
				Bool("dogleg", kind == DoglegFallbackStep).
				Msg("gauss-newton iteration")
		}

		if it <= 1 {
			continue
		}
		switch {
		case relErr < cfg.Tol:
			stage.Status = RelErrorTol
		case stepSize < cfg.TolStep:
			stage.Status = StepTol
		case improv < cfg.TolImprov:
			stage.Status = ImprovTol
		case gradInf < cfg.TolGrad:
			stage.Status = GradTol
		case oscillating(errs, it, window, cfg.TolImprov):
			stage.Status = ErrorOscillation
		case relErr > math.Max(1, d.tNorm*d.tNorm)/(1e-16+cfg.Tol),
			relErr/oldErr-1 > blowUpFactor:
			stage.Status = Diverged
		default:
			continue
		}
		break
	}
	stage.Steps = len(stage.Trace)
	return best, stage
}

// innerIterations randomizes the CG iteration budget, growing slowly with
// the outer iteration count.
func (d *iterDriver) innerIterations(it int) int {
	low := 1 + int(math.Pow(float64(it), 0.4))
	high := 2 + int(math.Pow(float64(it), 0.9))
	n := 1 + low
	if high > low {
		n = 1 + low + d.cfg.rng.Intn(high-low)
	}
	if n > d.cfg.InnerIter {
		n = d.cfg.InnerIter
	}
	return n
}

// evaluate maps a candidate parameter vector to factor matrices, applying
// the symmetric-mode averaging and the fixed-mode restore, and computes the
// relative error through the mode-0 unfolding.
func (d *iterDriver) evaluate(x []float64) ([]*mat.Dense, float64) {
	factors := vecToFactors(x, d.data)
	if d.cfg.Symm {
		symmetrize(factors)
		copy(x, factorsToVec(factors, d.data))
	}
	if d.fixMode >= 0 {
		factors[d.fixMode].Copy(d.fixed)
		copy(x, factorsToVec(factors, d.data))
	}
	return factors, d.relError(factors)
}

func (d *iterDriver) relError(factors []*mat.Dense) float64 {
	kr := tensor.KhatriRaoSkip(factors, 0)
	var approx, diff mat.Dense
	approx.Mul(factors[0], kr.T())
	diff.Sub(d.tl[0], &approx)
	if d.tNorm == 0 {
		return 0
	}
	return mat.Norm(&diff, 2) / d.tNorm
}

// oscillating compares the averaged errors of two consecutive windows to
// stop iterating when the error oscillates just above the improvement
// threshold for a long time.
func oscillating(errs []float64, it, window int, tolImprov float64) bool {
	if it <= 2*window || it%window != 0 {
		return false
	}
	mean1 := floats.Sum(errs[it-2*window:it-window]) / float64(window)
	mean2 := floats.Sum(errs[it-window:it]) / float64(window)
	return mean1-mean2 <= tolImprov
}

func stepNorm(x, oldX []float64) float64 {
	diff := make([]float64, len(x))
	floats.SubTo(diff, x, oldX)
	old := floats.Norm(oldX, 2)
	if old == 0 {
		return floats.Norm(diff, 2)
	}
	return floats.Norm(diff, 2) / old
}

func symmetrize(factors []*mat.Dense) {
	mean := mat.DenseCopyOf(factors[0])
	for _, w := range factors[1:] {
		mean.Add(mean, w)
	}
	mean.Scale(1/float64(len(factors)), mean)
	for _, w := range factors {
		w.Copy(mean)
	}
}

func cloneFactors(factors []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(factors))
	for l, w := range factors {
		out[l] = mat.DenseCopyOf(w)
	}
	return out
}

func factorsToVec(factors []*mat.Dense, w *iterData) []float64 {
	x := make([]float64, w.n)
	for l, f := range factors {
		off := w.sumDims[l]
		for r := 0; r < w.rank; r++ {
			for i := 0; i < w.dims[l]; i++ {
				x[off+r*w.dims[l]+i] = f.At(i, r)
			}
		}
	}
	return x
}

func vecToFactors(x []float64, w *iterData) []*mat.Dense {
	factors := make([]*mat.Dense, len(w.dims))
	for l, d := range w.dims {
		f := mat.NewDense(d, w.rank, nil)
		off := w.sumDims[l]
		for r := 0; r < w.rank; r++ {
			for i := 0; i < d; i++ {
				f.Set(i, r, x[off+r*d+i])
			}
		}
		factors[l] = f
	}
	return factors
}
