// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mlsvd computes truncated multilinear singular value decompositions
// (MLSVD): per-mode orthogonal bases Uℓ and a core tensor S with
//
//	T ≈ S ×₀ U₀ ×₁ U₁ ⋯ ×_{L-1} U_{L-1}
//
// Two variants are provided. Classic computes every basis from an SVD of the
// corresponding unfolding of T. Sequential (the default in the decomposition
// pipeline) computes the mode-ℓ basis from the tensor already projected onto
// the bases of modes < ℓ, which is cheaper and marginally less accurate.
//
// Since the bases are orthonormal the realized compression error satisfies
// ‖T − T̂‖² = ‖T‖² − ‖S‖² exactly, which is how RelError is computed.
//
// Sparse tensors never have their unfoldings materialized densely: each
// basis comes from the eigendecomposition of the Gram matrix A·Aᵀ of the CSR
// unfolding, and the core is accumulated entry by entry over the nonzero
// support.
package mlsvd
