// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package blob provides the N-dimensional float32 arrays that layers read
// and write.
//
// # Overview
//
// A Blob pairs a data buffer with a same-sized diff (gradient) buffer,
// stored row-major under one Shape. Layers take their inputs as bottom
// blobs and write their outputs to top blobs:
//   - Forward reads bottom data and writes top data
//   - Backward reads top diffs and writes bottom and parameter diffs
//
// # Basic Usage
//
//	import "github.com/born-ml/gradlayers/blob"
//
//	func main() {
//	    x := blob.New(blob.Shape{2, 3, 8, 8})
//	    x.Set(1.5, 0, 0, 4, 4)
//
//	    fmt.Println(x.ShapeString()) // "2 3 8 8 (384)"
//	    _ = x.WriteTxt("x.txt")
//	}
package blob
