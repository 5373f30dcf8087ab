package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConv2DParams(t *testing.T) {
	// 3x3 kernel, stride 1, padding 1 preserves the plane.
	p := NewConv2DParams(1, 3, 8, 8, 16, 3, 3, 1, 1, 1, 1, 1, 1, 1)
	assert.Equal(t, 8, p.OH)
	assert.Equal(t, 8, p.OW)
	assert.Equal(t, 1, p.C4)
	assert.Equal(t, 4, p.OC4)

	// Stride 2 halves, no padding.
	p = NewConv2DParams(1, 5, 9, 9, 5, 3, 3, 2, 2, 0, 0, 1, 1, 1)
	assert.Equal(t, 4, p.OH)
	assert.Equal(t, 4, p.OW)
	assert.Equal(t, 2, p.C4)
	assert.Equal(t, 2, p.OC4)

	// Dilation stretches the effective kernel.
	p = NewConv2DParams(1, 1, 7, 7, 1, 3, 3, 1, 1, 0, 0, 2, 2, 1)
	assert.Equal(t, 3, p.OH)
	assert.Equal(t, 3, p.OW)
}

func TestNewConv2DParamsPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewConv2DParams(1, 0, 8, 8, 16, 3, 3, 1, 1, 1, 1, 1, 1, 1)
	}, "zero channels")
	assert.Panics(t, func() {
		NewConv2DParams(1, 3, 8, 8, 16, 3, 3, 0, 1, 1, 1, 1, 1, 1)
	}, "zero stride")
	assert.Panics(t, func() {
		NewConv2DParams(1, 3, 2, 2, 16, 5, 5, 1, 1, 0, 0, 1, 1, 1)
	}, "kernel larger than input")
	assert.Panics(t, func() {
		NewConv2DParams(1, 3, 8, 8, 16, 3, 3, 1, 1, -1, 0, 1, 1, 1)
	}, "negative padding")
}

func TestPoolOutputExtent(t *testing.T) {
	assert.Equal(t, 2, poolOutputExtent(4, 2, 2, 0, 1))
	assert.Equal(t, 3, poolOutputExtent(5, 3, 1, 0, 1))
	assert.Equal(t, 5, poolOutputExtent(5, 3, 1, 1, 1))
	assert.Equal(t, 2, poolOutputExtent(5, 3, 2, 0, 1))
}
