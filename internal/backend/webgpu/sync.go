package webgpu

// Layout transitions. The packedValid/linearValid bits record which
// representation currently holds the data; transitions are encoded into the
// command sequence of the operator that needs them, so a call sees its
// inputs converted and its output writable within one submission. WebGPU
// orders storage-buffer access between passes itself, so no explicit memory
// barriers accompany the transitions.

// Workgroup shapes shared by the layout-conversion kernels.
var (
	wgSpatial = WorkgroupSize{X: 8, Y: 8, Z: 1}
	wgSingle  = WorkgroupSize{X: 1, Y: 1, Z: 1}
)

// toShaderRead prepares the tensor for use as a kernel input. If the packed
// representation is stale, a pack dispatch is encoded into cmd to rebuild
// it from the linear one. Panics if the tensor holds no data at all.
func (t *Tensor) toShaderRead(cmd *computeCmd) {
	if t.packedValid {
		return
	}
	if !t.linearValid {
		panic("webgpu: tensor used as input holds no data")
	}
	t.ensurePacked()

	w, h, c := t.planeWidth(), t.planeHeight(), t.channels()
	block := &constBlock{}
	block.putInt32(int32(w))
	block.putInt32(int32(h))
	block.putInt32(int32(c))

	p := t.b.program("nchw_to_nc4hw", wgSpatial)
	cmd.dispatch(p, []resourceBinding{
		t.packedBinding(roleStorageImage),
		t.linearBinding(roleStorageBuffer),
		cmd.uniform(block),
	}, w, h, t.channelGroups())

	t.packedValid = true
}

// toGeneral prepares the tensor as a kernel output: the packed
// representation is allocated, marked as the single valid one, and the
// linear copy is invalidated. The caller encodes the producing dispatch
// into the same command sequence.
func (t *Tensor) toGeneral() {
	t.ensurePacked()
	t.packedValid = true
	t.linearValid = false
}

// syncToLinear brings the linear representation up to date, encoding an
// unpack dispatch when the packed copy is the fresh one. A tensor with no
// data in either representation panics.
func (t *Tensor) syncToLinear(cmd *computeCmd) {
	if t.linearValid {
		return
	}
	if !t.packedValid {
		panic("webgpu: tensor read back before holding any data")
	}
	t.ensureLinear()
	t.toShaderRead(cmd)

	w, h, c := t.planeWidth(), t.planeHeight(), t.channels()
	block := &constBlock{}
	block.putInt32(int32(w))
	block.putInt32(int32(h))
	block.putInt32(int32(c))

	p := t.b.program("nc4hw_to_nchw", wgSpatial)
	cmd.dispatch(p, []resourceBinding{
		t.linearBinding(roleStorageBuffer),
		t.packedBinding(roleSampledImage),
		cmd.uniform(block),
	}, w, h, c)

	t.linearValid = true
}
