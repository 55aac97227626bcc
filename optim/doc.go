// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the solvers that apply layer gradients.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum and weight decay
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Optimizer interface for custom optimizers
//
// Optimizers are built over layers, not loose parameters. Every Step:
//  1. runs LocalUpdate on layers that own a local policy (LocalLSTM),
//  2. updates every parameter that is neither Local nor Frozen,
//  3. clears all gradients.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gradlayers/nn"
//	    "github.com/born-ml/gradlayers/optim"
//	)
//
//	func main() {
//	    critic := nn.NewSequential(conv1, conv2, scale)
//	    if err := critic.SetUp(x); err != nil { ... }
//
//	    solver := optim.NewSGD(critic.Layers(), optim.SGDConfig{
//	        LR:       0.01,
//	        Momentum: 0.9,
//	    })
//
//	    for iter := range 100 {
//	        critic.Forward()
//	        // fill critic.Output().Diff() with the loss gradient
//	        critic.Backward(false)
//	        if err := solver.Step(); err != nil { ... }
//	    }
//	}
//
// # GAN Schedule
//
// Convolution layers keep gradients out of the parameter diffs in phases
// where the adversarial schedule forbids an update, and freeze parameters
// that received nothing allowed since the last step. The solver skips
// frozen parameters but still clears their gradients.
package optim
