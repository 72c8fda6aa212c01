package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
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

// RowsCols collapses the shape to the 2-D layout used for texture
// addressing: the trailing dimension becomes the column count and all
// leading dimensions fold into the row count.
//
//	()        → (1, 1)
//	(n)       → (1, n)
//	(r, c)    → (r, c)
//	(b, r, c) → (b*r, c)
func (s Shape) RowsCols() (rows, cols int) {
	switch len(s) {
	case 0:
		return 1, 1
	case 1:
		return 1, s[0]
	default:
		cols = s[len(s)-1]
		rows = 1
		for _, dim := range s[:len(s)-1] {
			rows *= dim
		}
		return rows, cols
	}
}
