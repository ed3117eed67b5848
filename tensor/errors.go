// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import "errors"

var (
	// ErrShape reports inconsistent dimensions between related arguments.
	ErrShape = errors.New("tensor: shape mismatch")
	// ErrBounds reports an index outside the tensor dimensions.
	ErrBounds = errors.New("tensor: index out of bounds")
	// ErrEmpty reports a tensor with no modes or a zero dimension.
	ErrEmpty = errors.New("tensor: empty shape")
)
