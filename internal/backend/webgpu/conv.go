package webgpu

import (
	"fmt"
	"math"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/forge-ml/forge/internal/parallel"
	"github.com/forge-ml/forge/internal/tensor"
)

// Conv2DParams is the full geometry of a 2-D convolution. Output extents
// and channel-group counts are derived by the constructor.
type Conv2DParams struct {
	N, C, H, W int // input: batch, channels, height, width
	OC, KH, KW int // weight: output channels, kernel height, kernel width
	SY, SX     int // stride
	PY, PX     int // padding
	DY, DX     int // dilation
	G          int // groups

	OH, OW  int // output plane, derived
	C4, OC4 int // input/output channel groups, derived
}

// NewConv2DParams derives the output geometry of a convolution. Panics on
// degenerate arguments (non-positive extents, stride or dilation < 1, or a
// kernel that does not fit the padded input).
func NewConv2DParams(n, c, h, w, oc, kh, kw, sy, sx, py, px, dy, dx, g int) Conv2DParams {
	if n < 1 || c < 1 || h < 1 || w < 1 || oc < 1 || kh < 1 || kw < 1 {
		panic(fmt.Sprintf("webgpu: conv2d: non-positive geometry n=%d c=%d h=%d w=%d oc=%d kh=%d kw=%d",
			n, c, h, w, oc, kh, kw))
	}
	if sy < 1 || sx < 1 || dy < 1 || dx < 1 || py < 0 || px < 0 || g < 1 {
		panic(fmt.Sprintf("webgpu: conv2d: invalid stride/padding/dilation/groups s=(%d,%d) p=(%d,%d) d=(%d,%d) g=%d",
			sy, sx, py, px, dy, dx, g))
	}
	oh := poolOutputExtent(h, kh, sy, py, dy)
	ow := poolOutputExtent(w, kw, sx, px, dx)
	if oh < 1 || ow < 1 {
		panic(fmt.Sprintf("webgpu: conv2d: kernel %dx%d does not fit input %dx%d with padding (%d,%d)",
			kh, kw, h, w, py, px))
	}
	return Conv2DParams{
		N: n, C: c, H: h, W: w,
		OC: oc, KH: kh, KW: kw,
		SY: sy, SX: sx, PY: py, PX: px, DY: dy, DX: dx, G: g,
		OH: oh, OW: ow,
		C4: tensor.UpDiv(c, 4), OC4: tensor.UpDiv(oc, 4),
	}
}

// Conv2DPrepackedSizes returns the extent of the prepacked weight texel
// volume for a general convolution: depth = padded input channels, height =
// output channel groups, width = kernel plane. Each element is one vec4.
func Conv2DPrepackedSizes(oc, c, kh, kw int) tensor.Shape {
	return tensor.Shape{tensor.AlignUp4(c), tensor.UpDiv(oc, 4), kh * kw}
}

// repackKernelO4C4HW rearranges OIHW convolution weights into 4x4 channel
// tiles: 16 consecutive floats per (kernel position, output-channel group,
// input-channel group) hold the weights of output channels 4*oc4..4*oc4+3
// against input channels 4*ic4..4*ic4+3, laid out as 4*icRem + ocRem.
// Padding positions (channels rounded up to multiples of 4) stay zero, so
// repacked padded lanes never contribute to the accumulation.
func repackKernelO4C4HW(weights []float32, oc, c, kh, kw int) []float32 {
	if len(weights) != oc*c*kh*kw {
		panic(fmt.Sprintf("webgpu: conv2d: %d weights for geometry oc=%d c=%d kh=%d kw=%d (want %d)",
			len(weights), oc, c, kh, kw, oc*c*kh*kw))
	}
	c4 := tensor.UpDiv(c, 4)
	out := make([]float32, tensor.AlignUp4(oc)*tensor.AlignUp4(c)*kh*kw)

	cfg := parallel.DefaultConfig()
	parallel.ForBatch(oc, c, func(o, ic int) {
		oc4, ocRem := o/4, o%4
		ic4, icRem := ic/4, ic%4
		for ky := 0; ky < kh; ky++ {
			for kx := 0; kx < kw; kx++ {
				src := ((o*c+ic)*kh+ky)*kw + kx
				dst := oc4*(kw*kh*c4*16) + ic4*(kw*kh*16) + ky*(kw*16) + kx*16 + 4*icRem + ocRem
				out[dst] = weights[src]
			}
		}
	}, cfg)
	return out
}

// PackedWeights is a device-resident prepacked weight volume for the general
// convolution path. Prepack once, convolve many times.
type PackedWeights struct {
	b      *Backend
	buffer *wgpu.Buffer
	size   uint64

	oc, c, kh, kw int
}

// PrepackConv2DWeights repacks OIHW host weights on the CPU and uploads the
// result. The returned value is reusable across Conv2DWithPacked calls until
// released.
func (b *Backend) PrepackConv2DWeights(weights []float32, oc, c, kh, kw int) *PackedWeights {
	repacked := repackKernelO4C4HW(weights, oc, c, kh, kw)
	size := uint64(len(repacked)) * 4
	return &PackedWeights{
		b:      b,
		buffer: b.createBufferInit(float32Bytes(repacked)),
		size:   size,
		oc:     oc, c: c, kh: kh, kw: kw,
	}
}

// Release frees the device weight volume.
func (w *PackedWeights) Release() {
	if w.buffer != nil {
		w.b.releaseBuffer(w.buffer, w.size)
		w.buffer = nil
	}
}

// clampBounds resolves optional fused-clamp bounds; absent bounds default to
// the whole float range.
func clampBounds(outputMin, outputMax *float32) (lo, hi float32) {
	lo = float32(math.Inf(-1))
	hi = float32(math.Inf(1))
	if outputMin != nil {
		lo = *outputMin
	}
	if outputMax != nil {
		hi = *outputMax
	}
	return lo, hi
}

// Conv2D runs a 2-D convolution with optional bias and optional fused output
// clamp. Two paths exist: the general path (groups == 1), which prepacks the
// OIHW weights into channel tiles, and the depthwise path (groups == input
// channels == output channels), which consumes the {OC, KH, KW} weight
// tensor directly. Any other grouping panics.
func (b *Backend) Conv2D(output, input *Tensor, weight, bias []float32, p Conv2DParams, outputMin, outputMax *float32) error {
	validateConvOperands(output, input, p)

	switch {
	case p.G == 1:
		packed := b.PrepackConv2DWeights(weight, p.OC, p.C, p.KH, p.KW)
		defer packed.Release()
		return b.Conv2DWithPacked(output, input, packed, bias, p, outputMin, outputMax)

	case p.G == p.C && p.OC == p.C:
		if len(weight) != p.OC*p.KH*p.KW {
			panic(fmt.Sprintf("webgpu: Conv2D: %d depthwise weights, want %d",
				len(weight), p.OC*p.KH*p.KW))
		}
		wt := b.NewTensor(tensor.Shape{p.OC, p.KH, p.KW})
		defer wt.Release()
		wt.SetFromHost(weight)
		return b.conv2dDepthwise(output, input, wt, bias, p, outputMin, outputMax)

	default:
		panic(fmt.Sprintf("webgpu: Conv2D: unsupported groups %d for %d input / %d output channels",
			p.G, p.C, p.OC))
	}
}

// Conv2DWithPacked runs the general convolution path over weights prepacked
// by PrepackConv2DWeights.
func (b *Backend) Conv2DWithPacked(output, input *Tensor, packed *PackedWeights, bias []float32, p Conv2DParams, outputMin, outputMax *float32) error {
	validateConvOperands(output, input, p)
	if p.G != 1 {
		panic(fmt.Sprintf("webgpu: Conv2DWithPacked: groups must be 1, got %d", p.G))
	}
	if packed == nil || packed.buffer == nil {
		panic("webgpu: Conv2DWithPacked: released or nil weights")
	}
	if packed.oc != p.OC || packed.c != p.C || packed.kh != p.KH || packed.kw != p.KW {
		panic(fmt.Sprintf("webgpu: Conv2DWithPacked: weights packed for oc=%d c=%d k=%dx%d, params want oc=%d c=%d k=%dx%d",
			packed.oc, packed.c, packed.kh, packed.kw, p.OC, p.C, p.KH, p.KW))
	}

	lo, hi := clampBounds(outputMin, outputMax)
	biasBuf := b.bufferFromOptionalHostData(bias, uint64(tensor.AlignUp4(p.OC))*4)
	biasSize := alignUp(uint64(tensor.AlignUp4(p.OC))*4, b.storageAlignment)

	cmd := b.newComputeCmd()
	cmd.deferRelease(func() { b.releaseBuffer(biasBuf, biasSize) })
	input.toShaderRead(cmd)
	output.toGeneral()

	block := convConstBlock(p, lo, hi, false)

	// One invocation column covers four output widths; the workgroup spans
	// the output channel groups, so the grid z extent is one.
	prog := b.program("conv2d_nogroup_clamp", WorkgroupSize{X: 1, Y: 1, Z: uint32(p.OC4)})
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		{role: roleSampledImage, buffer: packed.buffer, size: packed.size},
		{role: roleStorageBuffer, buffer: biasBuf, size: biasSize},
		cmd.uniform(block),
	}, tensor.UpDiv(p.OW, 4), p.OH, p.OC4)

	return cmd.submitAndWait()
}

func (b *Backend) conv2dDepthwise(output, input, weight *Tensor, bias []float32, p Conv2DParams, outputMin, outputMax *float32) error {
	lo, hi := clampBounds(outputMin, outputMax)
	biasBuf := b.bufferFromOptionalHostData(bias, uint64(tensor.AlignUp4(p.OC))*4)
	biasSize := alignUp(uint64(tensor.AlignUp4(p.OC))*4, b.storageAlignment)

	cmd := b.newComputeCmd()
	cmd.deferRelease(func() { b.releaseBuffer(biasBuf, biasSize) })
	input.toShaderRead(cmd)
	weight.toShaderRead(cmd)
	output.toGeneral()

	block := convConstBlock(p, lo, hi, true)

	prog := b.program("conv2d_dw_clamp", wgSpatial)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		weight.packedBinding(roleSampledImage),
		{role: roleStorageBuffer, buffer: biasBuf, size: biasSize},
		cmd.uniform(block),
	}, p.OW, p.OH, p.OC4)

	return cmd.submitAndWait()
}

// convConstBlock packs the shared convolution parameter layout: padding,
// kernel, stride, dilation, then output extents before input extents, then
// the fused clamp bounds. The depthwise kernel has no use for the raw
// channel counts, so they are zeroed there.
func convConstBlock(p Conv2DParams, lo, hi float32, depthwise bool) *constBlock {
	oc, c := p.OC, p.C
	if depthwise {
		oc, c = 0, 0
	}
	block := &constBlock{}
	block.putInt32(int32(p.PX))
	block.putInt32(int32(p.PY))
	block.putInt32(int32(p.KW))
	block.putInt32(int32(p.KH))
	block.putInt32(int32(p.SX))
	block.putInt32(int32(p.SY))
	block.putInt32(int32(p.DX))
	block.putInt32(int32(p.DY))
	block.putInt32(int32(p.OW))
	block.putInt32(int32(p.OH))
	block.putInt32(int32(p.OC4))
	block.putInt32(int32(oc))
	block.putInt32(int32(p.W))
	block.putInt32(int32(p.H))
	block.putInt32(int32(p.C4))
	block.putInt32(int32(c))
	block.putFloat32(lo)
	block.putFloat32(hi)
	return block
}

func validateConvOperands(output, input *Tensor, p Conv2DParams) {
	if p.N != 1 {
		panic(fmt.Sprintf("webgpu: Conv2D: batch size must be 1, got %d", p.N))
	}
	wantIn := tensor.Shape{p.N, p.C, p.H, p.W}
	if !input.shape.Equal(wantIn) {
		panic(fmt.Sprintf("webgpu: Conv2D: input shape %v, params describe %v", input.shape, wantIn))
	}
	wantOut := tensor.Shape{p.N, p.OC, p.OH, p.OW}
	if !output.shape.Equal(wantOut) {
		panic(fmt.Sprintf("webgpu: Conv2D: output shape %v, params describe %v", output.shape, wantOut))
	}
}
