// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// trustRegion tracks the dogleg radius across outer iterations. The radius
// shrinks while Gauss-Newton steps keep being rejected and recovers slowly
// once they are accepted again.
type trustRegion struct {
	radius float64
}

const (
	trustShrink   = 0.5
	trustExpand   = 2.0
	trustMaxTries = 30
)

func newTrustRegion() *trustRegion {
	return &trustRegion{}
}

func (tr *trustRegion) expand() {
	if tr.radius > 0 {
		tr.radius *= trustExpand
	}
}

// doglegStep searches the dogleg path between the steepest-descent Cauchy
// point and the Gauss-Newton step gn for a radius whose candidate does not
// blow the error up past TolJump·oldErr. It halves the radius on each
// rejection and reports failure when the radius collapses.
func (d *iterDriver) doglegStep(gn []float64, damp, oldErr float64) ([]float64, []*mat.Dense, float64, bool) {
	data := d.data
	n := data.n

	// Cauchy point along the negative gradient.
	g := make([]float64, n)
	copy(g, data.g)
	hg := make([]float64, n)
	data.matvec(d.factors, g, damp, hg)
	gv := blas64.Vector{N: n, Inc: 1, Data: g}
	gg := blas64.Dot(gv, gv)
	ghg := blas64.Dot(gv, blas64.Vector{N: n, Inc: 1, Data: hg})
	if ghg <= 0 {
		ghg = 1e-16
	}
	sd := make([]float64, n)
	floats.AddScaledTo(sd, sd, -gg/ghg, g)

	gnNorm := floats.Norm(gn, 2)
	sdNorm := floats.Norm(sd, 2)
	if d.trust.radius == 0 || d.trust.radius > gnNorm {
		d.trust.radius = gnNorm * trustShrink
	}

	step := make([]float64, n)
	candX := make([]float64, n)
	for try := 0; try < trustMaxTries; try++ {
		radius := d.trust.radius
		switch {
		case gnNorm <= radius:
			copy(step, gn)
		case sdNorm >= radius:
			floats.ScaleTo(step, radius/sdNorm, sd)
		default:
			tau := doglegInterp(sd, gn, radius)
			floats.SubTo(step, gn, sd)
			floats.Scale(tau, step)
			floats.Add(step, sd)
		}
		floats.AddTo(candX, d.x, step)
		factors, err := d.evaluate(candX)
		if err <= d.cfg.TolJump*oldErr {
			return candX, factors, err, true
		}
		d.trust.radius *= trustShrink
		if d.trust.radius < 1e-12*math.Max(1, gnNorm) {
			break
		}
	}
	return nil, nil, 0, false
}

// doglegInterp solves ‖sd + τ(gn − sd)‖ = radius for τ ∈ [0,1].
func doglegInterp(sd, gn []float64, radius float64) float64 {
	diff := make([]float64, len(sd))
	floats.SubTo(diff, gn, sd)
	dv := blas64.Vector{N: len(diff), Inc: 1, Data: diff}
	sv := blas64.Vector{N: len(sd), Inc: 1, Data: sd}
	a := blas64.Dot(dv, dv)
	b := 2 * blas64.Dot(sv, dv)
	c := blas64.Dot(sv, sv) - radius*radius
	disc := b*b - 4*a*c
	if disc < 0 || a == 0 {
		return 0
	}
	return (-b + math.Sqrt(disc)) / (2 * a)
}
