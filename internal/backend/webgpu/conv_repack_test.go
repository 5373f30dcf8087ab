package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-ml/forge/internal/tensor"
)

// unpackO4C4HW reads the value of weight (o, ic, ky, kx) back out of the
// tiled layout, following the documented tile addressing.
func unpackO4C4HW(packed []float32, o, ic, ky, kx, c, kh, kw int) float32 {
	c4 := tensor.UpDiv(c, 4)
	idx := (o/4)*(kw*kh*c4*16) + (ic/4)*(kw*kh*16) + ky*(kw*16) + kx*16 + 4*(ic%4) + o%4
	return packed[idx]
}

func TestRepackKernelO4C4HWRoundTrip(t *testing.T) {
	// Channel counts that are not multiples of 4 exercise the padding lanes.
	cases := []struct{ oc, c, kh, kw int }{
		{3, 3, 3, 3},
		{5, 3, 1, 1},
		{3, 5, 2, 3},
		{13, 5, 3, 3},
		{5, 13, 2, 2},
		{4, 8, 3, 3}, // exact multiples: no padding at all
	}

	for _, tc := range cases {
		weights := make([]float32, tc.oc*tc.c*tc.kh*tc.kw)
		for i := range weights {
			weights[i] = float32(i + 1)
		}

		packed := repackKernelO4C4HW(weights, tc.oc, tc.c, tc.kh, tc.kw)
		require.Len(t, packed,
			tensor.AlignUp4(tc.oc)*tensor.AlignUp4(tc.c)*tc.kh*tc.kw,
			"oc=%d c=%d", tc.oc, tc.c)

		// Every weight is recoverable from its tile position.
		for o := 0; o < tc.oc; o++ {
			for ic := 0; ic < tc.c; ic++ {
				for ky := 0; ky < tc.kh; ky++ {
					for kx := 0; kx < tc.kw; kx++ {
						src := ((o*tc.c+ic)*tc.kh+ky)*tc.kw + kx
						got := unpackO4C4HW(packed, o, ic, ky, kx, tc.c, tc.kh, tc.kw)
						assert.Equal(t, weights[src], got,
							"oc=%d c=%d o=%d ic=%d ky=%d kx=%d", tc.oc, tc.c, o, ic, ky, kx)
					}
				}
			}
		}
	}
}

func TestRepackKernelO4C4HWPaddingIsZero(t *testing.T) {
	for _, tc := range []struct{ oc, c int }{{3, 3}, {5, 5}, {13, 13}, {3, 13}} {
		kh, kw := 3, 3
		weights := make([]float32, tc.oc*tc.c*kh*kw)
		for i := range weights {
			weights[i] = float32(i + 1) // all distinct and nonzero
		}

		packed := repackKernelO4C4HW(weights, tc.oc, tc.c, kh, kw)

		nonzero := 0
		for _, v := range packed {
			if v != 0 {
				nonzero++
			}
		}
		// Exactly the real weights are nonzero; every padding lane is zero.
		assert.Equal(t, len(weights), nonzero, "oc=%d c=%d", tc.oc, tc.c)
	}
}

func TestRepackKernelO4C4HWNoCollisions(t *testing.T) {
	oc, c, kh, kw := 13, 5, 3, 3
	weights := make([]float32, oc*c*kh*kw)
	for i := range weights {
		weights[i] = 1
	}

	packed := repackKernelO4C4HW(weights, oc, c, kh, kw)

	// A collision would overwrite a 1 (or double-write one slot); summing
	// catches both since the source is all ones.
	var sum float32
	for _, v := range packed {
		sum += v
	}
	assert.Equal(t, float32(len(weights)), sum)
}

func TestRepackKernelO4C4HWSizeMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		repackKernelO4C4HW(make([]float32, 10), 3, 3, 3, 3)
	})
}

func TestConv2DPrepackedSizes(t *testing.T) {
	assert.Equal(t, tensor.Shape{4, 1, 9}, Conv2DPrepackedSizes(3, 3, 3, 3))
	assert.Equal(t, tensor.Shape{16, 4, 9}, Conv2DPrepackedSizes(13, 13, 3, 3))
	assert.Equal(t, tensor.Shape{8, 2, 1}, Conv2DPrepackedSizes(5, 8, 1, 1))
}
