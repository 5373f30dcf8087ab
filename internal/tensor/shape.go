// Package tensor provides the shape and element-type vocabulary shared by the
// GPU execution layer. Operator kernels work on 4-D (or lower) float32
// tensors; shapes here carry the channel-group arithmetic those kernels need.
package tensor

import "fmt"

// Shape represents the dimensions of a tensor, outermost first.
type Shape []int

// NumElements returns the total number of elements in the tensor.
// A rank-0 shape is a scalar with one element.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal reports whether two shapes have identical rank and dimensions.
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

// LeftPad4 returns the shape extended to rank 4 by prepending size-1
// dimensions. Panics if the shape has more than 4 dimensions; callers
// validate rank before padding.
func (s Shape) LeftPad4() [4]int {
	if len(s) > 4 {
		panic(fmt.Sprintf("tensor: shape %v has rank > 4", s))
	}
	padded := [4]int{1, 1, 1, 1}
	copy(padded[4-len(s):], s)
	return padded
}

// Texel geometry of the packed GPU representation. The last dimension is
// width, the second-to-last is height, and all leading dimensions collapse
// into the channel axis, packed four channels per texel.

// PlaneWidth returns the width of the packed representation.
func (s Shape) PlaneWidth() int {
	if len(s) == 0 {
		return 1
	}
	return s[len(s)-1]
}

// PlaneHeight returns the height of the packed representation.
func (s Shape) PlaneHeight() int {
	if len(s) < 2 {
		return 1
	}
	return s[len(s)-2]
}

// Channels returns the collapsed channel count of the packed representation:
// the product of every dimension before the last two.
func (s Shape) Channels() int {
	n := 1
	for i := 0; i+2 < len(s); i++ {
		n *= s[i]
	}
	return n
}

// ChannelGroups returns ceil(Channels/4), the number of 4-channel texel
// planes in the packed representation.
func (s Shape) ChannelGroups() int {
	return UpDiv(s.Channels(), 4)
}

// UpDiv returns ceil(a/b) for positive b.
func UpDiv(a, b int) int {
	return (a + b - 1) / b
}

// AlignUp4 rounds n up to the next multiple of 4.
func AlignUp4(n int) int {
	return 4 * UpDiv(n, 4)
}
