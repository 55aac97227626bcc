package blob

import (
	"fmt"
	"strings"
)

// Shape represents the dimensions of a blob.
type Shape []int

// NumElements returns the total number of elements in the blob.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// String renders the shape as "2 3 4 (24)".
func (s Shape) String() string {
	var b strings.Builder
	for _, dim := range s {
		fmt.Fprintf(&b, "%d ", dim)
	}
	fmt.Fprintf(&b, "(%d)", s.NumElements())
	return b.String()
}
