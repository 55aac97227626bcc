// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides layers with explicit forward and backward passes.
//
// # Overview
//
// This package contains:
//   - Convolution: 2D convolution with clip-by-value and a GAN update schedule
//   - DLSTM: decoder LSTM with optional conditioning, output projection and delay
//   - DLSTMUnit: a single LSTM cell step
//   - LocalLSTM: LSTM with truncated BPTT and its own parameter update policy
//   - ScalarScale: multiplies its input by one (optionally learnable) scalar
//   - Utilities: Sequential, Layer interface, Param, fillers, YAML configuration
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gradlayers/blob"
//	    "github.com/born-ml/gradlayers/nn"
//	)
//
//	func main() {
//	    param, err := nn.LoadLayerParameter("critic_conv1.yaml")
//	    if err != nil { ... }
//	    layer, err := nn.New(param)
//	    if err != nil { ... }
//
//	    bottom := []*blob.Blob{blob.New(blob.Shape{2, 3, 8, 8})}
//	    top := []*blob.Blob{blob.New(nil)}
//	    if err := layer.SetUp(bottom, top); err != nil { ... }
//	    if err := layer.Forward(bottom, top); err != nil { ... }
//	}
//
// # Layer Lifecycle
//
// Every layer follows SetUp, then any number of Forward and Backward
// calls. Reshape must be called after a bottom changes shape:
//
//	layer.SetUp(bottom, top)
//	layer.Forward(bottom, top)
//	// fill top[i].Diff()
//	layer.Backward(top, []bool{true}, bottom)
//
// Backward accumulates into parameter diffs; clear them with Param.ZeroGrad
// or an optimizer's ZeroGrad.
//
// # GAN Schedule
//
// Convolution layers track a GANPhase that advances after every backward
// pass (0, 1, 2, 3, then back to 1). UpdateWeight decides from the phase and
// the weight_fixed, gen_mode and dis_mode switches whether the gradients of
// a backward pass may reach the parameter diffs. Forbidden gradients go to
// a buffer read with Convolution.HeldDiff, and a parameter is frozen only
// while nothing allowed has been accumulated since its last ZeroGrad.
//
// # Local Updates
//
// LocalLSTM with local_lr > 0 owns a LocalPolicy. Optimizers call
// LocalUpdate on such layers before their global step and skip the local
// parameters.
//
// # Logging
//
// Layers log through log/slog. Install a logger with SetLogger; clip
// debugging output is emitted at debug level.
package nn
