// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tensor provides dense and sparse multidimensional arrays together
// with the multilinear primitives required by polyadic decomposition:
// mode unfoldings, multilinear (mode-ℓ) products, Khatri-Rao products and
// CPD reconstruction.
//
// Dense tensors are stored flat in row-major order: for a tensor of shape
// (I₀,…,I_{L-1}) the element (i₀,…,i_{L-1}) lives at offset
//
//	i₀·I₁⋯I_{L-1} + i₁·I₂⋯I_{L-1} + ⋯ + i_{L-1}
//
// The mode-ℓ unfolding keeps mode ℓ as rows and indexes the columns by the
// remaining modes in ascending order, the last one varying fastest. All
// Khatri-Rao conventions in this module are chosen to match this layout.
package tensor
