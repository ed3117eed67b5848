// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

// Status explains why a solver stage stopped.
type Status int

const (
	// RelErrorTol means the relative error dropped below Tol.
	RelErrorTol Status = iota
	// StepTol means the relative step size dropped below TolStep.
	StepTol
	// ImprovTol means the error improvement dropped below TolImprov.
	ImprovTol
	// GradTol means the gradient infinity norm dropped below TolGrad.
	GradTol
	// ErrorOscillation means the averaged error over consecutive windows
	// stopped improving.
	ErrorOscillation
	// MaxIterReached means the iteration limit was hit without meeting a
	// tolerance. This is a shortfall, not a failure.
	MaxIterReached
	// Diverged means the error blew up; the best factors found are
	// returned.
	Diverged
	// NoRefinement means the refinement stage was not performed.
	NoRefinement
	// TrustRegionFailed means no dogleg step within the minimum trust
	// radius could contain the error; the best factors found are
	// returned.
	TrustRegionFailed
)

func (s Status) String() string {
	switch s {
	case RelErrorTol:
		return "relative error is small enough"
	case StepTol:
		return "steps are small enough"
	case ImprovTol:
		return "improvement in the relative error is small enough"
	case GradTol:
		return "gradient is small enough"
	case ErrorOscillation:
		return "average of relative errors stopped decreasing"
	case MaxIterReached:
		return "limit of iterations was reached"
	case Diverged:
		return "iteration diverged"
	case NoRefinement:
		return "no refinement was performed"
	case TrustRegionFailed:
		return "trust region shrunk below its minimum radius"
	}
	return "unknown status"
}

// StepKind tags how an accepted iteration step was computed.
type StepKind int

const (
	// GaussNewtonStep is a step accepted directly from the damped
	// normal-equations solve.
	GaussNewtonStep StepKind = iota
	// DoglegFallbackStep is a step recomputed by the trust-region dogleg
	// after the Gauss-Newton step was rejected.
	DoglegFallbackStep
)

// TraceEntry records one accepted iteration of a solver stage.
type TraceEntry struct {
	Iter           int
	Kind           StepKind
	RelError       float64
	StepSize       float64
	Improv         float64
	GradNorm       float64
	PredictedError float64
	InnerIter      int
}

// Stage summarizes one solver pass (main or refinement).
type Stage struct {
	Status Status
	Steps  int
	Trace  []TraceEntry
}

// CompressionInfo reports the realized compression of the input tensor.
type CompressionInfo struct {
	Skipped  bool
	Dims     []int
	RelError float64
}

// Output summarizes a decomposition.
type Output struct {
	// NumSteps counts iterations over all stages.
	NumSteps int
	// RelError is the final relative error ‖T − T̂‖/‖T‖; on the sparse
	// path it is evaluated over the nonzero support only and is a lower
	// bound of the dense error.
	RelError float64
	// Accuracy is max(0, 100·(1 − RelError)).
	Accuracy float64
	// Main and Refinement carry the per-stage iteration traces.
	Main       Stage
	Refinement Stage
	// Compression reports the realized MLSVD truncation.
	Compression CompressionInfo
	// Diverged is set when any stage ended with the Diverged status; the
	// returned factors are the best found before the blow-up.
	Diverged bool
	// Nnz and Sparsity describe sparse input (zero otherwise).
	Nnz      int
	Sparsity float64
	// DenseRelError is the opt-in full-tensor diagnostic error of the
	// sparse path (Display ≥ 3); NaN when not computed.
	DenseRelError float64
	// SubOutputs collects the outputs of the tensor-train sub-problems.
	SubOutputs []*Output
}
