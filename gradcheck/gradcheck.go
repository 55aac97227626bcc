// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gradcheck verifies analytic layer gradients against central
// finite differences.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gradlayers/blob"
//	    "github.com/born-ml/gradlayers/gradcheck"
//	)
//
//	func TestMyLayerGradient(t *testing.T) {
//	    checker := gradcheck.New(1e-2, 1e-3)
//	    bottom := []*blob.Blob{x}
//	    top := []*blob.Blob{blob.New(nil)}
//	    if err := checker.CheckExhaustive(layer, bottom, top, -1); err != nil {
//	        t.Fatal(err)
//	    }
//	}
//
// A failed check returns every disagreeing value joined with errors.Join;
// extract them with errors.As on *Mismatch.
package gradcheck

import "github.com/born-ml/gradlayers/internal/gradcheck"

// Checker holds finite-difference settings.
type Checker = gradcheck.Checker

// Mismatch describes one value whose analytic and numeric gradients disagree.
type Mismatch = gradcheck.Mismatch

// New returns a Checker with the given step and threshold and no kink.
func New(step, threshold float64) *Checker {
	return gradcheck.New(step, threshold)
}
