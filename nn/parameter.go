// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/born-ml/gradlayers/blob"
	"github.com/born-ml/gradlayers/internal/nn"
)

// Param is a trainable parameter: a blob plus its multipliers and update state.
type Param = nn.Param

// NewParam creates a zeroed parameter.
func NewParam(name string, shape blob.Shape) *Param {
	return nn.NewParam(name, shape)
}

// DefaultSeed seeds the process-wide filler RNG.
const DefaultSeed = nn.DefaultSeed

// NewRNG returns a Mersenne Twister backed generator.
func NewRNG(seed int64) *rand.Rand {
	return nn.NewRNG(seed)
}

// SetRandomSeed reseeds the RNG used by parameter fillers.
func SetRandomSeed(seed int64) {
	nn.SetRandomSeed(seed)
}

// Fill initializes b according to filler using r.
//
// Example:
//
//	w := blob.New(blob.Shape{16, 3, 3, 3})
//	err := nn.Fill(w, nn.FillerParameter{Type: "xavier"}, nn.NewRNG(nn.DefaultSeed))
func Fill(b *blob.Blob, filler FillerParameter, r *rand.Rand) error {
	return nn.Fill(b, filler, r)
}
