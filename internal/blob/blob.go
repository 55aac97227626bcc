// Package blob implements the tensor storage consumed by layers.
//
// A Blob holds a row-major float32 data buffer and a gradient ("diff")
// buffer of the same length. Layers read bottom data, write top data,
// and exchange gradients through the diff buffers during backward.
package blob

import (
	"fmt"
)

// Blob is an N-dimensional float32 array with a paired gradient buffer.
//
// Example:
//
//	b := blob.New(blob.Shape{2, 3})
//	b.Data()[0] = 1
//	b.Diff()[0] = 0.5
type Blob struct {
	shape Shape
	data  []float32
	diff  []float32
}

// New creates a zero-filled blob with the given shape.
func New(shape Shape) *Blob {
	b := &Blob{}
	b.Reshape(shape)
	return b
}

// FromSlice creates a blob from a Go slice.
// The slice is copied into the blob's memory.
func FromSlice(data []float32, shape Shape) (*Blob, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", []int(shape), shape.NumElements(), len(data))
	}
	b := New(shape)
	copy(b.data, data)
	return b, nil
}

// Reshape changes the blob's dimensions.
//
// Existing buffers are reused when they are large enough, so values are
// preserved for same-size reshapes. Growing a blob reallocates both buffers
// and zero-fills them.
func (b *Blob) Reshape(shape Shape) {
	for i, dim := range shape {
		if dim < 0 {
			panic(fmt.Sprintf("blob: negative dimension %d at axis %d", dim, i))
		}
	}
	b.shape = shape.Clone()
	count := b.shape.NumElements()
	if count > cap(b.data) {
		b.data = make([]float32, count)
		b.diff = make([]float32, count)
		return
	}
	b.data = b.data[:count]
	b.diff = b.diff[:count]
}

// ReshapeLike reshapes b to the shape of other.
func (b *Blob) ReshapeLike(other *Blob) {
	b.Reshape(other.shape)
}

// Shape returns the blob's shape.
func (b *Blob) Shape() Shape {
	return b.shape
}

// NumAxes returns the number of axes.
func (b *Blob) NumAxes() int {
	return len(b.shape)
}

// Count returns the total number of elements.
func (b *Blob) Count() int {
	return len(b.data)
}

// CountRange returns the product of the dimensions in [start, end).
func (b *Blob) CountRange(start, end int) int {
	if start < 0 || end > len(b.shape) || start > end {
		panic(fmt.Sprintf("blob: invalid axis range [%d, %d) for %d axes", start, end, len(b.shape)))
	}
	n := 1
	for _, dim := range b.shape[start:end] {
		n *= dim
	}
	return n
}

// CountFrom returns the product of the dimensions from start to the last axis.
func (b *Blob) CountFrom(start int) int {
	return b.CountRange(start, len(b.shape))
}

// CanonicalAxis maps a possibly negative axis index onto [0, NumAxes).
// Panics if the axis is out of range.
func (b *Blob) CanonicalAxis(axis int) int {
	n := len(b.shape)
	if axis < -n || axis >= n {
		panic(fmt.Sprintf("blob: axis %d out of range for %d-D blob with shape %s", axis, n, b.ShapeString()))
	}
	if axis < 0 {
		return axis + n
	}
	return axis
}

// Dim returns the size of the given axis. Negative axes count from the end.
func (b *Blob) Dim(axis int) int {
	return b.shape[b.CanonicalAxis(axis)]
}

// Offset returns the flat index of the given indices.
// Missing trailing indices are treated as zero.
func (b *Blob) Offset(indices ...int) int {
	if len(indices) > len(b.shape) {
		panic(fmt.Sprintf("blob: expected at most %d indices, got %d", len(b.shape), len(indices)))
	}
	offset := 0
	for i, dim := range b.shape {
		offset *= dim
		if i < len(indices) {
			idx := indices[i]
			if idx < 0 || idx >= dim {
				panic(fmt.Sprintf("blob: index %d out of bounds for axis %d (size %d)", idx, i, dim))
			}
			offset += idx
		}
	}
	return offset
}

// Data returns the value buffer. The slice aliases the blob's memory.
func (b *Blob) Data() []float32 {
	return b.data
}

// Diff returns the gradient buffer. The slice aliases the blob's memory.
func (b *Blob) Diff() []float32 {
	return b.diff
}

// At returns the value at the given indices.
func (b *Blob) At(indices ...int) float32 {
	return b.data[b.Offset(indices...)]
}

// Set stores a value at the given indices.
func (b *Blob) Set(value float32, indices ...int) {
	b.data[b.Offset(indices...)] = value
}

// ZeroDiff clears the gradient buffer.
func (b *Blob) ZeroDiff() {
	clear(b.diff)
}

// ShapeString returns a human-readable shape, e.g. "5 1 4 (20)".
func (b *Blob) ShapeString() string {
	return b.shape.String()
}

// String returns a short description of the blob.
func (b *Blob) String() string {
	return fmt.Sprintf("Blob[%s]", b.ShapeString())
}
