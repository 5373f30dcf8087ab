package webgpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-ml/forge/internal/tensor"
)

// referenceConv2D is a direct CPU convolution over the same geometry,
// covering both the general and the depthwise grouping.
func referenceConv2D(input, weight, bias []float32, p Conv2DParams, lo, hi float32) []float32 {
	out := make([]float32, p.OC*p.OH*p.OW)
	cPerGroup := p.C / p.G
	ocPerGroup := p.OC / p.G
	for oc := 0; oc < p.OC; oc++ {
		g := oc / ocPerGroup
		for oy := 0; oy < p.OH; oy++ {
			for ox := 0; ox < p.OW; ox++ {
				var acc float32
				if bias != nil {
					acc = bias[oc]
				}
				for icg := 0; icg < cPerGroup; icg++ {
					ic := g*cPerGroup + icg
					for ky := 0; ky < p.KH; ky++ {
						iy := oy*p.SY - p.PY + ky*p.DY
						if iy < 0 || iy >= p.H {
							continue
						}
						for kx := 0; kx < p.KW; kx++ {
							ix := ox*p.SX - p.PX + kx*p.DX
							if ix < 0 || ix >= p.W {
								continue
							}
							in := input[(ic*p.H+iy)*p.W+ix]
							wv := weight[((oc*cPerGroup+icg)*p.KH+ky)*p.KW+kx]
							acc += in * wv
						}
					}
				}
				if acc < lo {
					acc = lo
				}
				if acc > hi {
					acc = hi
				}
				out[(oc*p.OH+oy)*p.OW+ox] = acc
			}
		}
	}
	return out
}

// convTestData fills a slice with bounded deterministic values.
func convTestData(n int, phase float32) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(math.Sin(float64(phase) + float64(i)*0.37))
	}
	return data
}

func runConvCase(t *testing.T, b *Backend, p Conv2DParams, bias []float32, lo, hi *float32) {
	t.Helper()

	input := convTestData(p.C*p.H*p.W, 0.1)
	weight := convTestData(p.OC*(p.C/p.G)*p.KH*p.KW, 0.9)

	in := uploadTensor(t, b, tensor.Shape{1, p.C, p.H, p.W}, input)
	out := b.NewTensor(tensor.Shape{1, p.OC, p.OH, p.OW})
	t.Cleanup(out.Release)

	require.NoError(t, b.Conv2D(out, in, weight, bias, p, lo, hi))

	refLo, refHi := clampBounds(lo, hi)
	want := referenceConv2D(input, weight, bias, p, refLo, refHi)
	got := readTensor(t, out)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-3, "output element %d", i)
	}
}

func TestConv2DGeneral(t *testing.T) {
	b := newTestBackend(t)

	// Channel counts off the multiple-of-4 grid exercise the padded weight
	// and input lanes.
	p := NewConv2DParams(1, 3, 5, 5, 5, 3, 3, 1, 1, 1, 1, 1, 1, 1)
	runConvCase(t, b, p, nil, nil, nil)
}

func TestConv2DGeneralStrideDilation(t *testing.T) {
	b := newTestBackend(t)

	p := NewConv2DParams(1, 5, 9, 9, 4, 3, 3, 2, 2, 0, 0, 2, 2, 1)
	runConvCase(t, b, p, nil, nil, nil)
}

func TestConv2DGeneralBiasAndClamp(t *testing.T) {
	b := newTestBackend(t)

	p := NewConv2DParams(1, 3, 6, 6, 13, 3, 3, 1, 1, 1, 1, 1, 1, 1)
	bias := convTestData(p.OC, 2.3)
	lo := float32(0)
	hi := float32(0.5)
	runConvCase(t, b, p, bias, &lo, &hi)
}

func TestConv2DDepthwise(t *testing.T) {
	b := newTestBackend(t)

	p := NewConv2DParams(1, 5, 5, 5, 5, 3, 3, 1, 1, 1, 1, 1, 1, 5)
	bias := convTestData(p.OC, 1.7)
	runConvCase(t, b, p, bias, nil, nil)
}

func TestConv2DDepthwiseVsGeneral(t *testing.T) {
	b := newTestBackend(t)

	// The same 1x4x8x8 input through both paths: depthwise with a 4x1x3x3
	// kernel, then general with an equivalent block-diagonal 4x4x3x3 kernel.
	input := convTestData(4*8*8, 0.1)
	dwWeight := convTestData(4*3*3, 0.9)

	in := uploadTensor(t, b, tensor.Shape{1, 4, 8, 8}, input)

	pDW := NewConv2DParams(1, 4, 8, 8, 4, 3, 3, 1, 1, 1, 1, 1, 1, 4)
	outDW := b.NewTensor(tensor.Shape{1, 4, pDW.OH, pDW.OW})
	t.Cleanup(outDW.Release)
	require.NoError(t, b.Conv2D(outDW, in, dwWeight, nil, pDW, nil, nil))

	// Block-diagonal expansion: channel c convolves only with itself.
	general := make([]float32, 4*4*3*3)
	for c := 0; c < 4; c++ {
		for k := 0; k < 9; k++ {
			general[((c*4+c)*9)+k] = dwWeight[c*9+k]
		}
	}
	pG := NewConv2DParams(1, 4, 8, 8, 4, 3, 3, 1, 1, 1, 1, 1, 1, 1)
	outG := b.NewTensor(tensor.Shape{1, 4, pG.OH, pG.OW})
	t.Cleanup(outG.Release)
	require.NoError(t, b.Conv2D(outG, in, general, nil, pG, nil, nil))

	gotDW := readTensor(t, outDW)
	gotG := readTensor(t, outG)
	for i := range gotDW {
		assert.InDelta(t, gotG[i], gotDW[i], 1e-3, "element %d", i)
	}
}

func TestConv2DDepthwiseStride(t *testing.T) {
	b := newTestBackend(t)

	p := NewConv2DParams(1, 8, 7, 7, 8, 3, 3, 2, 2, 1, 1, 1, 1, 8)
	runConvCase(t, b, p, nil, nil, nil)
}

func TestConv2DWithPackedReuse(t *testing.T) {
	b := newTestBackend(t)

	p := NewConv2DParams(1, 3, 4, 4, 5, 3, 3, 1, 1, 1, 1, 1, 1, 1)
	weight := convTestData(p.OC*p.C*p.KH*p.KW, 0.9)
	packed := b.PrepackConv2DWeights(weight, p.OC, p.C, p.KH, p.KW)
	t.Cleanup(packed.Release)

	for run := 0; run < 2; run++ {
		input := convTestData(p.C*p.H*p.W, float32(run))
		in := uploadTensor(t, b, tensor.Shape{1, p.C, p.H, p.W}, input)
		out := b.NewTensor(tensor.Shape{1, p.OC, p.OH, p.OW})
		t.Cleanup(out.Release)

		require.NoError(t, b.Conv2DWithPacked(out, in, packed, nil, p, nil, nil))

		want := referenceConv2D(input, weight, nil, p,
			float32(math.Inf(-1)), float32(math.Inf(1)))
		got := readTensor(t, out)
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-3, "run %d element %d", run, i)
		}
	}
}

func TestConv2DUnsupportedGroupsPanics(t *testing.T) {
	b := newTestBackend(t)

	p := NewConv2DParams(1, 4, 4, 4, 4, 3, 3, 1, 1, 1, 1, 1, 1, 2)
	weight := make([]float32, 4*2*3*3)
	in := uploadTensor(t, b, tensor.Shape{1, 4, 4, 4}, make([]float32, 4*4*4))
	out := b.NewTensor(tensor.Shape{1, 4, p.OH, p.OW})
	t.Cleanup(out.Release)

	assert.Panics(t, func() { _ = b.Conv2D(out, in, weight, nil, p, nil, nil) })
}

func TestConv2DShapeMismatchPanics(t *testing.T) {
	b := newTestBackend(t)

	p := NewConv2DParams(1, 3, 5, 5, 5, 3, 3, 1, 1, 1, 1, 1, 1, 1)
	weight := make([]float32, p.OC*p.C*p.KH*p.KW)
	in := uploadTensor(t, b, tensor.Shape{1, 3, 4, 4}, make([]float32, 3*4*4))
	out := b.NewTensor(tensor.Shape{1, p.OC, p.OH, p.OW})
	t.Cleanup(out.Release)

	assert.Panics(t, func() { _ = b.Conv2D(out, in, weight, nil, p, nil, nil) })
}
