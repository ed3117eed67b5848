// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// RandRank generates a random rank-R tensor of the given shape. Every factor
// matrix entry is drawn from the standard normal distribution. The generated
// tensor and its factor matrices are returned.
func RandRank(rng *rand.Rand, dims []int, rank int) (*Dense, []*mat.Dense, error) {
	if rank < 1 {
		return nil, nil, ErrEmpty
	}
	factors := make([]*mat.Dense, len(dims))
	for l, d := range dims {
		w := mat.NewDense(d, rank, nil)
		for i := 0; i < d; i++ {
			for r := 0; r < rank; r++ {
				w.Set(i, r, rng.NormFloat64())
			}
		}
		factors[l] = w
	}
	t, err := FromCPD(factors, nil)
	if err != nil {
		return nil, nil, err
	}
	return t, factors, nil
}
