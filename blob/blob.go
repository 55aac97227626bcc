// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package blob

import "github.com/born-ml/gradlayers/internal/blob"

// Shape is the extent of each axis of a blob.
type Shape = blob.Shape

// Blob holds data and diff buffers of one shape.
type Blob = blob.Blob

// New allocates a zeroed blob. A nil shape gives a scalar (count 1).
//
// Example:
//
//	x := blob.New(blob.Shape{5, 1, 3})
func New(shape Shape) *Blob {
	return blob.New(shape)
}

// FromSlice wraps data in a blob of the given shape.
// It returns an error when len(data) does not match the shape.
//
// Example:
//
//	x, err := blob.FromSlice([]float32{1, 2, 3, 4}, blob.Shape{2, 2})
func FromSlice(data []float32, shape Shape) (*Blob, error) {
	return blob.FromSlice(data, shape)
}
