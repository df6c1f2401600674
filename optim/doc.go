// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizers and learning-rate schedules used to
// train gptgraph models.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Schedule: learning rate as a function of the optimizer step counter
//   - State: an optimizer's full state, for checkpoints
//
// # Basic Usage
//
//	opt := optim.NewAdam(optim.AdamConfig{})
//	model, err := gpt.New(rng, cfg, opt)
//
//	tc := gpt.DefaultTrainConfig()
//	tc.Schedule = optim.WarmupCosine(3e-5, 3e-4, 100, 50000)
//	err = model.Train(ctx, data, tc)
//
// Optimizers key their per-parameter slots by parameter id, so a State
// taken from one optimizer restores into a fresh one with FromState:
//
//	restored, err := optim.FromState(opt.State())
package optim
