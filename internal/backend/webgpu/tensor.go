package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/forge-ml/forge/internal/tensor"
)

// Tensor is a GPU-resident float32 tensor with two physical representations:
//
//   - packed: a channel-packed texel buffer (array<vec4<f32>>) of extent
//     W x H x C4, where W and H are the trailing two dimensions, C is the
//     product of every dimension before them and C4 = ceil(C/4). Kernels
//     consume and produce this layout.
//   - linear: a row-major scalar buffer. Host transfer, concatenation and
//     reshape operate on this layout.
//
// Both allocations are lazy; the validity bits in the sync state record
// which representation currently holds the data (see sync.go). A Tensor is
// not safe for concurrent use.
type Tensor struct {
	b     *Backend
	shape tensor.Shape

	packed     *wgpu.Buffer
	packedSize uint64
	linear     *wgpu.Buffer
	linearSize uint64

	packedValid bool
	linearValid bool
}

// NewTensor creates an empty tensor of the given shape. No device memory is
// allocated until data arrives or an operator writes into it.
func (b *Backend) NewTensor(shape tensor.Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("webgpu: NewTensor: %v", err))
	}
	return &Tensor{
		b:     b,
		shape: shape.Clone(),
	}
}

// Shape returns the logical shape of the tensor.
func (t *Tensor) Shape() tensor.Shape {
	return t.shape.Clone()
}

// NumElements returns the number of logical elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// Packed geometry of the texel representation.
func (t *Tensor) planeWidth() int    { return t.shape.PlaneWidth() }
func (t *Tensor) planeHeight() int   { return t.shape.PlaneHeight() }
func (t *Tensor) channels() int      { return t.shape.Channels() }
func (t *Tensor) channelGroups() int { return t.shape.ChannelGroups() }

// ensurePacked allocates the packed texel buffer if needed.
func (t *Tensor) ensurePacked() {
	if t.packed != nil {
		return
	}
	t.packedSize = uint64(t.planeWidth()*t.planeHeight()*t.channelGroups()) * 16
	t.packed = t.b.createStorageBuffer(t.packedSize)
}

// ensureLinear allocates the linear buffer if needed.
func (t *Tensor) ensureLinear() {
	if t.linear != nil {
		return
	}
	t.linearSize = uint64(t.NumElements()) * 4
	t.linear = t.b.createStorageBuffer(t.linearSize)
}

// packedBinding returns the packed representation bound under role. The
// caller must have transitioned the tensor first.
func (t *Tensor) packedBinding(role bindingRole) resourceBinding {
	return resourceBinding{role: role, buffer: t.packed, size: t.packedSize}
}

// linearBinding returns the linear representation bound under role.
func (t *Tensor) linearBinding(role bindingRole) resourceBinding {
	return resourceBinding{role: role, buffer: t.linear, size: t.linearSize}
}

// SetFromHost uploads host data into the tensor's linear representation.
// Panics if the element count does not match the shape.
func (t *Tensor) SetFromHost(data []float32) {
	if len(data) != t.NumElements() {
		panic(fmt.Sprintf("webgpu: SetFromHost: %d elements for shape %v (want %d)",
			len(data), t.shape, t.NumElements()))
	}
	if t.linear != nil {
		t.b.releaseBuffer(t.linear, t.linearSize)
	}
	t.linearSize = uint64(len(data)) * 4
	t.linear = t.b.createBufferInit(float32Bytes(data))
	t.linearValid = true
	t.packedValid = false
}

// ToHost reads the tensor contents back into host memory in row-major
// order, blocking until the device transfer completes.
func (t *Tensor) ToHost() ([]float32, error) {
	cmd := t.b.newComputeCmd()
	t.syncToLinear(cmd)
	if err := cmd.submitAndWait(); err != nil {
		return nil, err
	}

	data, err := t.b.readBuffer(t.linear, uint64(t.NumElements())*4)
	if err != nil {
		return nil, fmt.Errorf("webgpu: ToHost: %w", err)
	}
	return bytesToFloat32(data), nil
}

// SyncToBuffer forces the linear representation up to date, submitting an
// unpack dispatch when the packed copy is the fresh one.
func (t *Tensor) SyncToBuffer() error {
	if t.linearValid {
		return nil
	}
	cmd := t.b.newComputeCmd()
	t.syncToLinear(cmd)
	return cmd.submitAndWait()
}

// Release frees both device representations.
func (t *Tensor) Release() {
	if t.packed != nil {
		t.b.releaseBuffer(t.packed, t.packedSize)
		t.packed = nil
	}
	if t.linear != nil {
		t.b.releaseBuffer(t.linear, t.linearSize)
		t.linear = nil
	}
	t.packedValid = false
	t.linearValid = false
}
