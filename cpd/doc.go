// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpd computes canonical polyadic decompositions (CPD) of dense and
// sparse tensors: given a tensor T and a target rank R it finds factor
// matrices W⁽⁰⁾,…,W⁽ᴸ⁻¹⁾ minimizing ‖T − Σᵣ w⁽⁰⁾ᵣ ⊗ ⋯ ⊗ w⁽ᴸ⁻¹⁾ᵣ‖.
//
// Third-order tensors are solved by a damped Gauss-Newton method over a
// compressed (MLSVD) core, with the normal-equations system
//
//	(JᵀJ + μΓ)y = -∇f
//
// solved by a preconditioned conjugate gradient that assembles only
// Gramian-sized products, never the Jacobian itself. Rejected steps fall
// back to a trust-region dogleg correction. Tensors of order above three are
// reduced to a chain of third-order problems through a tensor-train
// decomposition of the compressed core. Sparse tensors are compressed
// through Gram matrices of their CSR unfoldings and their reported error is
// evaluated over the nonzero support only.
//
// # Reference
//
//   - K. Madsen, H. B. Nielsen, and O. Tingleff, Methods for Non-Linear
//     Least Squares Problems, 2nd edition, Informatics and Mathematical
//     Modelling, Technical University of Denmark, 2004.
package cpd
