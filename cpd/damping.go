// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpd

// dampingCtrl maintains the Levenberg-Marquardt regularization weight μ
// across iterations. A user-supplied sequence fixes μ per iteration;
// otherwise μ follows the multiplicative gain-ratio rule: halve on poor
// improvement, grow by 1.5 on good improvement.
type dampingCtrl struct {
	value float64
	seq   []float64
}

// newDamping scales the initial weight by mean(|T|) of the working tensor:
// μ₀ = τ·mean(|T|).
func newDamping(initDamp []float64, meanAbs float64) *dampingCtrl {
	if len(initDamp) > 1 {
		return &dampingCtrl{value: initDamp[0], seq: initDamp}
	}
	return &dampingCtrl{value: initDamp[0] * meanAbs}
}

// current returns μ for iteration it.
func (c *dampingCtrl) current(it int) float64 {
	if c.seq != nil {
		return c.seq[it]
	}
	return c.value
}

// update adapts μ after iteration it from the gain ratio between the actual
// and predicted error reduction.
func (c *dampingCtrl) update(oldErr, newErr, predicted float64, it int) {
	if c.seq != nil {
		c.value = c.seq[it]
		return
	}
	gain := 1.0
	if oldErr != predicted {
		gain = 2 * (oldErr - newErr) / (oldErr - predicted)
	}
	if gain < 0.75 {
		c.value /= 2
	} else if gain > 0.9 {
		c.value *= 1.5
	}
}
