// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

import "errors"

var (
	// ErrBadRank reports a rank incompatible with the tensor shape.
	ErrBadRank = errors.New("cpd: invalid rank")
	// ErrBadDims reports unsupported tensor dimensions.
	ErrBadDims = errors.New("cpd: invalid tensor dimensions")
	// ErrBadOption reports an invalid or incompatible option value.
	ErrBadOption = errors.New("cpd: invalid option")
	// ErrBadInit reports user-supplied initial factors that do not match
	// the tensor shape and rank.
	ErrBadInit = errors.New("cpd: invalid initial factors")
)
