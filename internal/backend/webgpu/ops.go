package webgpu

import (
	"fmt"

	"github.com/forge-ml/forge/internal/tensor"
)

// Operator entry points. Every operator encodes the layout transitions of
// its operands and its own dispatch into one command sequence, submits it
// and blocks until completion. Precondition violations (shape mismatches,
// unsupported ranks) panic; device failures surface as errors.

// elementwiseGeometry collapses a rank<=4 shape to the (c, h, w) extent the
// elementwise kernels iterate. Panics above rank 4.
func elementwiseGeometry(s tensor.Shape) (c, h, w int) {
	p := s.LeftPad4()
	return p[0] * p[1], p[2], p[3]
}

func mustSameGeometry(op string, output, input *Tensor) (c, h, w int) {
	c, h, w = elementwiseGeometry(input.shape)
	oc, oh, ow := elementwiseGeometry(output.shape)
	if c != oc || h != oh || w != ow {
		panic(fmt.Sprintf("webgpu: %s: output shape %v incompatible with input shape %v",
			op, output.shape, input.shape))
	}
	return c, h, w
}

// Add computes output = input0 + alpha * input1 elementwise. Operands must
// have rank at most 4 and identical shapes after left-padding to rank 4;
// broadcasting is not supported.
func (b *Backend) Add(output, input0, input1 *Tensor, alpha float32) error {
	p0 := input0.shape.LeftPad4()
	p1 := input1.shape.LeftPad4()
	if p0 != p1 {
		panic(fmt.Sprintf("webgpu: Add: input shapes %v and %v do not match",
			input0.shape, input1.shape))
	}
	c, h, w := mustSameGeometry("Add", output, input0)

	cmd := b.newComputeCmd()
	input0.toShaderRead(cmd)
	input1.toShaderRead(cmd)
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(w))
	block.putInt32(int32(h))
	block.putInt32(int32(c))
	block.putFloat32(alpha)

	prog := b.program("add", wgSpatial)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input0.packedBinding(roleSampledImage),
		input1.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, w, h, tensor.UpDiv(c, 4))

	return cmd.submitAndWait()
}

// AddScalar computes output = input + s elementwise.
func (b *Backend) AddScalar(output, input *Tensor, s float32) error {
	return b.scalarOp("add_scalar", output, input, s)
}

// MulScalar computes output = input * s elementwise.
func (b *Backend) MulScalar(output, input *Tensor, s float32) error {
	return b.scalarOp("mul_scalar", output, input, s)
}

func (b *Backend) scalarOp(kernel string, output, input *Tensor, s float32) error {
	c, h, w := mustSameGeometry(kernel, output, input)

	cmd := b.newComputeCmd()
	input.toShaderRead(cmd)
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(w))
	block.putInt32(int32(h))
	block.putInt32(int32(c))
	block.putInt32(0)
	block.putFloat32(s)

	prog := b.program(kernel, wgSpatial)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, w, h, tensor.UpDiv(c, 4))

	return cmd.submitAndWait()
}

// Clamp computes output = min(max(input, lo), hi) elementwise.
func (b *Backend) Clamp(output, input *Tensor, lo, hi float32) error {
	c, h, w := mustSameGeometry("Clamp", output, input)
	c4 := tensor.UpDiv(c, 4)

	cmd := b.newComputeCmd()
	input.toShaderRead(cmd)
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(w))
	block.putInt32(int32(h))
	block.putInt32(int32(c4))
	block.putInt32(int32(c))
	block.putFloat32(lo)
	block.putFloat32(hi)

	prog := b.program("clamp", wgSpatial)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, w, h, c4)

	return cmd.submitAndWait()
}

// poolOutputExtent is the floor-mode pooling output size formula.
func poolOutputExtent(in, kernel, stride, padding, dilation int) int {
	return (in+2*padding-dilation*(kernel-1)-1)/stride + 1
}

// MaxPool2D computes a 2-D max pool over a rank-4 NCHW input. The output
// shape must match the floor-mode pooling formula; padded positions never
// contribute.
func (b *Backend) MaxPool2D(output, input *Tensor, kH, kW, sH, sW, pH, pW, dH, dW int) error {
	is := input.shape
	os := output.shape
	if len(is) != 4 || len(os) != 4 {
		panic(fmt.Sprintf("webgpu: MaxPool2D: rank-4 tensors required, got %v and %v", is, os))
	}
	if is[0] != os[0] || is[1] != os[1] {
		panic(fmt.Sprintf("webgpu: MaxPool2D: batch/channel mismatch: %v vs %v", is, os))
	}
	wantH := poolOutputExtent(is[2], kH, sH, pH, dH)
	wantW := poolOutputExtent(is[3], kW, sW, pW, dW)
	if os[2] != wantH || os[3] != wantW {
		panic(fmt.Sprintf("webgpu: MaxPool2D: output plane %dx%d, want %dx%d",
			os[2], os[3], wantH, wantW))
	}

	c := is[0] * is[1]
	cmd := b.newComputeCmd()
	input.toShaderRead(cmd)
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(is[3])) // input width
	block.putInt32(int32(is[2])) // input height
	block.putInt32(int32(c))
	block.putInt32(0)
	block.putInt32(int32(os[3])) // output width
	block.putInt32(int32(os[2])) // output height
	block.putInt32(int32(c))
	block.putInt32(0)
	block.putInt32(int32(kW))
	block.putInt32(int32(kH))
	block.putInt32(int32(sW))
	block.putInt32(int32(sH))
	block.putInt32(int32(pW))
	block.putInt32(int32(pH))
	block.putInt32(int32(dW))
	block.putInt32(int32(dH))

	prog := b.program("max_pool2d", wgSpatial)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, os[3], os[2], tensor.UpDiv(c, 4))

	return cmd.submitAndWait()
}

// AdaptiveAvgPool2D averages input regions onto the output plane so that
// every output pixel covers a contiguous region and the regions tile the
// input exactly. Input and output must be rank 4 with matching batch and
// channel dimensions.
func (b *Backend) AdaptiveAvgPool2D(output, input *Tensor) error {
	is := input.shape
	os := output.shape
	if len(is) != 4 || len(os) != 4 {
		panic(fmt.Sprintf("webgpu: AdaptiveAvgPool2D: rank-4 tensors required, got %v and %v", is, os))
	}
	if is[0] != os[0] || is[1] != os[1] {
		panic(fmt.Sprintf("webgpu: AdaptiveAvgPool2D: batch/channel mismatch: %v vs %v", is, os))
	}

	cmd := b.newComputeCmd()
	input.toShaderRead(cmd)
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(is[3]))
	block.putInt32(int32(is[2]))
	block.putInt32(int32(os[3]))
	block.putInt32(int32(os[2]))

	prog := b.program("adaptive_avg_pool2d", wgSpatial)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, os[3], os[2], output.channelGroups())

	return cmd.submitAndWait()
}

// UpsampleNearest2D scales the spatial plane by nearest-neighbor sampling.
// Each output pixel reads input pixel floor(dest * inExtent / outExtent),
// clamped to the input plane.
func (b *Backend) UpsampleNearest2D(output, input *Tensor) error {
	is := input.shape
	os := output.shape
	if len(is) != 4 || len(os) != 4 {
		panic(fmt.Sprintf("webgpu: UpsampleNearest2D: rank-4 tensors required, got %v and %v", is, os))
	}
	if is[0] != os[0] || is[1] != os[1] {
		panic(fmt.Sprintf("webgpu: UpsampleNearest2D: batch/channel mismatch: %v vs %v", is, os))
	}

	cmd := b.newComputeCmd()
	input.toShaderRead(cmd)
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(is[3]))
	block.putInt32(int32(is[2]))
	block.putInt32(int32(os[3]))
	block.putInt32(int32(os[2]))
	block.putFloat32(float32(is[3]) / float32(os[3]))
	block.putFloat32(float32(is[2]) / float32(os[2]))

	prog := b.program("upsample_nearest2d", wgSpatial)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, os[3], os[2], output.channelGroups())

	return cmd.submitAndWait()
}

// Mean reduces the spatial plane of a rank-4 NCHW input to its arithmetic
// mean per channel. The output shape must be {N, C, 1, 1}.
func (b *Backend) Mean(output, input *Tensor) error {
	is := input.shape
	os := output.shape
	if len(is) != 4 {
		panic(fmt.Sprintf("webgpu: Mean: rank-4 input required, got %v", is))
	}
	want := tensor.Shape{is[0], is[1], 1, 1}
	if !os.Equal(want) {
		panic(fmt.Sprintf("webgpu: Mean: output shape %v, want %v", os, want))
	}

	cmd := b.newComputeCmd()
	input.toShaderRead(cmd)
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(is[3]))
	block.putInt32(int32(is[2]))
	block.putInt32(int32(is[1]))
	block.putInt32(int32(is[0]))

	// One invocation per channel group: the kernel walks the whole plane.
	prog := b.program("mean", wgSingle)
	cmd.dispatch(prog, []resourceBinding{
		output.packedBinding(roleStorageImage),
		input.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, 1, 1, input.channelGroups())

	return cmd.submitAndWait()
}

// Matmul computes output = m1 @ m2 for rank-2 operands.
func (b *Backend) Matmul(output, m1, m2 *Tensor) error {
	return b.runMM("mm", output, nil, m1, m2, 0, 1)
}

// Addmm computes output = beta * t + alpha * (m1 @ m2) for rank-2 operands;
// t must match the output shape exactly.
func (b *Backend) Addmm(output, t, m1, m2 *Tensor, beta, alpha float32) error {
	if t == nil {
		panic("webgpu: Addmm: t tensor required")
	}
	if !t.shape.Equal(output.shape) {
		panic(fmt.Sprintf("webgpu: Addmm: t shape %v, want %v", t.shape, output.shape))
	}
	return b.runMM("addmm", output, t, m1, m2, beta, alpha)
}

func (b *Backend) runMM(kernel string, output, t, m1, m2 *Tensor, beta, alpha float32) error {
	s1 := m1.shape
	s2 := m2.shape
	os := output.shape
	if len(s1) != 2 || len(s2) != 2 || len(os) != 2 {
		panic(fmt.Sprintf("webgpu: %s: rank-2 tensors required, got %v @ %v -> %v",
			kernel, s1, s2, os))
	}
	if s1[1] != s2[0] {
		panic(fmt.Sprintf("webgpu: %s: inner dimensions do not match: %v @ %v", kernel, s1, s2))
	}
	if os[0] != s1[0] || os[1] != s2[1] {
		panic(fmt.Sprintf("webgpu: %s: output shape %v, want {%d, %d}",
			kernel, os, s1[0], s2[1]))
	}

	cmd := b.newComputeCmd()
	m1.toShaderRead(cmd)
	m2.toShaderRead(cmd)
	if t != nil {
		t.toShaderRead(cmd)
	}
	output.toGeneral()

	block := &constBlock{}
	block.putInt32(int32(os[1])) // output width
	block.putInt32(int32(os[0])) // output height
	block.putInt32(1)            // channel groups of a rank-2 tensor
	block.putInt32(1)
	block.putFloat32(beta)
	block.putFloat32(alpha)
	block.putInt32(int32(s1[1]))

	bindings := []resourceBinding{
		output.packedBinding(roleStorageImage),
		m1.packedBinding(roleSampledImage),
		m2.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}
	if t != nil {
		bindings = append(bindings, t.packedBinding(roleSampledImage))
	}

	prog := b.program(kernel, wgSpatial)
	cmd.dispatch(prog, bindings, os[1], os[0], 1)

	return cmd.submitAndWait()
}

// Cat concatenates the inputs along the leading axis. All inputs must share
// the trailing dimensions; the output's leading dimension must be their sum.
// The copy runs on linear representations, so inputs are unpacked first.
func (b *Backend) Cat(output *Tensor, inputs []*Tensor) error {
	if len(inputs) == 0 {
		panic("webgpu: Cat: no inputs")
	}
	rank := len(inputs[0].shape)
	if rank == 0 {
		panic("webgpu: Cat: rank-0 tensors cannot be concatenated")
	}
	lead := 0
	for _, in := range inputs {
		if len(in.shape) != rank {
			panic(fmt.Sprintf("webgpu: Cat: rank mismatch: %v vs %v", in.shape, inputs[0].shape))
		}
		for d := 1; d < rank; d++ {
			if in.shape[d] != inputs[0].shape[d] {
				panic(fmt.Sprintf("webgpu: Cat: trailing dimensions differ: %v vs %v",
					in.shape, inputs[0].shape))
			}
		}
		lead += in.shape[0]
	}
	want := inputs[0].shape.Clone()
	want[0] = lead
	if !output.shape.Equal(want) {
		panic(fmt.Sprintf("webgpu: Cat: output shape %v, want %v", output.shape, want))
	}

	cmd := b.newComputeCmd()
	output.ensureLinear()
	var offset uint64
	for _, in := range inputs {
		in.syncToLinear(cmd)
		size := uint64(in.NumElements()) * 4
		cmd.copyBuffer(in.linear, 0, output.linear, offset, size)
		offset += size
	}
	output.linearValid = true
	output.packedValid = false

	return cmd.submitAndWait()
}

// ReshapeCopy materializes a new tensor of the given shape holding a copy of
// the input's row-major contents. The element counts must match.
func (b *Backend) ReshapeCopy(input *Tensor, shape tensor.Shape) (*Tensor, error) {
	if shape.NumElements() != input.NumElements() {
		panic(fmt.Sprintf("webgpu: ReshapeCopy: shape %v has %d elements, input %v has %d",
			shape, shape.NumElements(), input.shape, input.NumElements()))
	}

	out := b.NewTensor(shape)
	cmd := b.newComputeCmd()
	input.syncToLinear(cmd)
	out.ensureLinear()
	cmd.copyBuffer(input.linear, 0, out.linear, 0, uint64(input.NumElements())*4)
	out.linearValid = true

	if err := cmd.submitAndWait(); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}
