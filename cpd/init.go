// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// startPoint builds the initial factors for the iteration over the working
// tensor s, which is the compressed core unless compression was skipped.
// User factors are given in the coordinates of the original tensor and are
// projected onto the compressed space through the MLSVD bases.
func startPoint(s *tensor.Dense, bases []*mat.Dense, rank int, cfg *config) []*mat.Dense {
	dims := s.Dims()
	var factors []*mat.Dense
	switch cfg.Init {
	case InitSmart:
		factors = smartInit(s, rank)
	case InitSmartRandom:
		factors = smartRandomInit(s, rank, cfg)
	case InitUser:
		factors = projectFactors(cfg.UserFactors, bases)
	default:
		factors = randFactors(dims, rank, cfg)
	}
	cleanZeroColumns(factors, cfg)
	equalize(factors, rank)
	if cfg.Symm {
		symmetrize(factors)
	}
	return factors
}

func randFactors(dims []int, rank int, cfg *config) []*mat.Dense {
	factors := make([]*mat.Dense, len(dims))
	for l, d := range dims {
		w := mat.NewDense(d, rank, nil)
		for i := 0; i < d; i++ {
			for r := 0; r < rank; r++ {
				w.Set(i, r, cfg.rng.NormFloat64())
			}
		}
		factors[l] = w
	}
	return factors
}

type coreEntry struct {
	idx []int
	val float64
}

type entryHeap []coreEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return math.Abs(h[i].val) < math.Abs(h[j].val) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any) { *h = append(*h, x.(coreEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// largestEntries returns the rank entries of s with largest magnitude.
func largestEntries(s *tensor.Dense, rank int) []coreEntry {
	dims := s.Dims()
	idx := make([]int, len(dims))
	h := &entryHeap{}
	heap.Init(h)
	for {
		v := s.At(idx...)
		if h.Len() < rank {
			heap.Push(h, coreEntry{idx: append([]int(nil), idx...), val: v})
		} else if math.Abs(v) > math.Abs((*h)[0].val) {
			heap.Pop(h)
			heap.Push(h, coreEntry{idx: append([]int(nil), idx...), val: v})
		}
		if !incIndex(idx, dims) {
			break
		}
	}
	return *h
}

// smartInit seeds each rank-one term from one of the rank largest entries of
// the core. The entry value goes to the first mode and the remaining modes
// carry indicator columns, so the initial model interpolates the dominant
// entries of the core exactly.
func smartInit(s *tensor.Dense, rank int) []*mat.Dense {
	dims := s.Dims()
	factors := make([]*mat.Dense, len(dims))
	for l, d := range dims {
		factors[l] = mat.NewDense(d, rank, nil)
	}
	for r, e := range largestEntries(s, rank) {
		factors[0].Set(e.idx[0], r, e.val)
		for l := 1; l < len(dims); l++ {
			factors[l].Set(e.idx[l], r, 1)
		}
	}
	return factors
}

// smartRandomInit draws cfg.Trials random candidates whose row magnitudes
// follow the energy profile of the core slices, keeping the one with the
// lowest relative error.
func smartRandomInit(s *tensor.Dense, rank int, cfg *config) []*mat.Dense {
	s0 := s.Unfold(0)
	norm := s.Norm()
	var best []*mat.Dense
	bestErr := math.Inf(1)
	for trial := 0; trial < cfg.Trials; trial++ {
		cand := smartSample(s, rank, cfg)
		err := factorsRelError(s0, cand, norm)
		if err < bestErr {
			bestErr = err
			best = cand
		}
	}
	return best
}

// smartSample draws one candidate where row i of mode l is scaled by the
// norm of the corresponding slice of the core.
func smartSample(s *tensor.Dense, rank int, cfg *config) []*mat.Dense {
	dims := s.Dims()
	factors := make([]*mat.Dense, len(dims))
	for l, d := range dims {
		sl := s.Unfold(l)
		w := mat.NewDense(d, rank, nil)
		for i := 0; i < d; i++ {
			scale := floats.Norm(sl.RawRowView(i), 2)
			if scale == 0 {
				scale = 1
			}
			for r := 0; r < rank; r++ {
				w.Set(i, r, scale*cfg.rng.NormFloat64())
			}
		}
		factors[l] = w
	}
	return factors
}

func projectFactors(user, bases []*mat.Dense) []*mat.Dense {
	factors := make([]*mat.Dense, len(user))
	for l, w := range user {
		if bases == nil || bases[l] == nil {
			factors[l] = mat.DenseCopyOf(w)
			continue
		}
		var p mat.Dense
		p.Mul(bases[l].T(), w)
		factors[l] = &p
	}
	return factors
}

// factorsRelError computes ‖S₀ − W₀(☉_{l≠0} Wₗ)ᵀ‖_F / ‖S‖ without forming
// the full tensor.
func factorsRelError(s0 *mat.Dense, factors []*mat.Dense, norm float64) float64 {
	kr := tensor.KhatriRaoSkip(factors, 0)
	var approx, diff mat.Dense
	approx.Mul(factors[0], kr.T())
	diff.Sub(s0, &approx)
	if norm == 0 {
		return 0
	}
	return mat.Norm(&diff, 2) / norm
}

// cleanZeroColumns replaces degenerate factor columns with fresh random
// draws so the Gramians stay nonsingular.
func cleanZeroColumns(factors []*mat.Dense, cfg *config) {
	for _, w := range factors {
		rows, cols := w.Dims()
		for r := 0; r < cols; r++ {
			var norm float64
			for i := 0; i < rows; i++ {
				norm = math.Hypot(norm, w.At(i, r))
			}
			if norm > 1e-14 {
				continue
			}
			for i := 0; i < rows; i++ {
				w.Set(i, r, cfg.rng.NormFloat64())
			}
		}
	}
}

// equalize rescales each rank-one term so its weight is shared evenly
// across the modes, which keeps the damped Newton steps well scaled.
func equalize(factors []*mat.Dense, rank int) {
	L := len(factors)
	for r := 0; r < rank; r++ {
		norms := make([]float64, L)
		prod := 1.0
		for l, w := range factors {
			rows, _ := w.Dims()
			var norm float64
			for i := 0; i < rows; i++ {
				norm = math.Hypot(norm, w.At(i, r))
			}
			norms[l] = norm
			prod *= norm
		}
		if prod == 0 {
			continue
		}
		target := math.Pow(prod, 1/float64(L))
		for l, w := range factors {
			rows, _ := w.Dims()
			scale := target / norms[l]
			for i := 0; i < rows; i++ {
				w.Set(i, r, scale*w.At(i, r))
			}
		}
	}
}

// incIndex advances a multi-index in row-major order, returning false after
// the last index.
func incIndex(idx, dims []int) bool {
	for l := len(idx) - 1; l >= 0; l-- {
		idx[l]++
		if idx[l] < dims[l] {
			return true
		}
		idx[l] = 0
	}
	return false
}
