// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import (
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/polyadic/tensor"
)

// Decompose computes a rank-R canonical polyadic approximation
//
//	T ≈ Σᵣ w⁽⁰⁾ᵣ ⊗ w⁽¹⁾ᵣ ⊗ ⋯ ⊗ w⁽ᴸ⁻¹⁾ᵣ
//
// returning the factor matrices Wℓ (Iℓ × R) and a summary of the run.
// Third-order tensors go through one compress-solve-refine pipeline; higher
// orders are first rewritten as a tensor train of third-order cores, each
// solved separately (see Output.SubOutputs).
//
// A nil opts selects DefaultOptions. Invalid options and impossible shapes
// are reported as errors before any work starts; numerical trouble during
// the iteration is reported through the summary status instead.
func Decompose(t tensor.Tensor, rank int, opts *Options) ([]*mat.Dense, *Output, error) {
	cfg, err := resolveOptions(t, rank, opts)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Display >= 1 {
		cfg.log.Info().
			Ints("dims", t.Dims()).
			Int("rank", rank).
			Bool("sparse", cfg.sparse).
			Msg("decomposition started")
	}

	var (
		factors []*mat.Dense
		out     *Output
	)
	if t.Order() == 3 {
		factors, out, err = triDecompose(t, rank, cfg)
	} else {
		factors, out, err = ttDecompose(t, rank, cfg)
	}
	if err != nil {
		return nil, nil, err
	}

	if s, ok := t.(*tensor.Sparse); ok && cfg.Display >= 3 {
		if exact, derr := DensifiedError(s, factors); derr == nil {
			out.DenseRelError = exact
		}
	}

	if cfg.Display >= 1 {
		cfg.log.Info().
			Str("status", out.Main.Status.String()).
			Int("steps", out.NumSteps).
			Float64("rel_error", out.RelError).
			Float64("accuracy", out.Accuracy).
			Msg("decomposition finished")
	}
	return factors, out, nil
}
