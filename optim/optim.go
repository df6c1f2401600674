// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/gptgraph/internal/optim"
)

// Optimizer updates parameters in place from their gradients.
type Optimizer = optim.Optimizer

// Param is one parameter handed to Optimizer.Step.
type Param = optim.Param

// State is the exportable state of an optimizer.
type State = optim.State

// Schedule maps an optimizer step counter to a learning rate.
type Schedule = optim.Schedule

// ErrStateType is returned when a State does not belong to the optimizer.
var ErrStateType = optim.ErrStateType

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// SGD implements Stochastic Gradient Descent with momentum.
type SGD = optim.SGD

// AdamConfig contains configuration for Adam optimizer.
//
// Zero fields take the defaults betas (0.9, 0.999) and eps 1e-8.
type AdamConfig = optim.AdamConfig

// Adam implements the Adam optimizer with bias correction.
type Adam = optim.Adam

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	optimizer := optim.NewSGD(optim.SGDConfig{Momentum: 0.9})
func NewSGD(config SGDConfig) *SGD {
	return optim.NewSGD(config)
}

// NewAdam creates a new Adam optimizer.
//
// Example:
//
//	optimizer := optim.NewAdam(optim.AdamConfig{
//	    Betas: [2]float32{0.9, 0.999},
//	    Eps:   1e-8,
//	})
func NewAdam(config AdamConfig) *Adam {
	return optim.NewAdam(config)
}

// FromState creates the optimizer a State was taken from.
func FromState(state State) (Optimizer, error) {
	return optim.FromState(state)
}

// Constant returns a schedule with a fixed learning rate.
func Constant(lr float32) Schedule {
	return optim.Constant(lr)
}

// WarmupCosine returns a schedule that rises linearly from minLR to maxLR
// over warmup steps, then follows a cosine back to minLR, reached at step
// decay.
func WarmupCosine(minLR, maxLR float32, warmup, decay int) Schedule {
	return optim.WarmupCosine(minLR, maxLR, warmup, decay)
}
