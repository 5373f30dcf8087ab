package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

// bindingRole names what a kernel expects at a binding slot. Roles are
// positional: dispatches must supply resources in the exact order the
// kernel's spec registers them.
type bindingRole int

const (
	// roleStorageImage is a read-write packed texel buffer (kernel output).
	roleStorageImage bindingRole = iota
	// roleSampledImage is a read-only packed texel buffer (kernel input).
	roleSampledImage
	// roleStorageBuffer is a raw scalar buffer (linear data, bias vectors).
	roleStorageBuffer
	// roleUniform is a const block of kernel parameters.
	roleUniform
)

func (r bindingRole) String() string {
	switch r {
	case roleStorageImage:
		return "storage-image"
	case roleSampledImage:
		return "sampled-image"
	case roleStorageBuffer:
		return "storage-buffer"
	case roleUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// resourceBinding pairs a buffer with the role it fills in a dispatch.
type resourceBinding struct {
	role   bindingRole
	buffer *wgpu.Buffer
	size   uint64
}

// descriptorSet is a realized bind group for one dispatch. Built fresh per
// call and released with the command sequence; bind groups are cheap next to
// pipeline compilation, so they are not cached.
type descriptorSet struct {
	bindGroup *wgpu.BindGroup
}

// newDescriptorSet validates the bindings against the program's registered
// roles and materializes the bind group. Panics on a role mismatch: that is
// a kernel wiring bug, not a runtime condition.
func (b *Backend) newDescriptorSet(p *program, bindings []resourceBinding) *descriptorSet {
	if len(bindings) != len(p.spec.roles) {
		panic(fmt.Sprintf("webgpu: kernel %q expects %d bindings, got %d",
			p.name, len(p.spec.roles), len(bindings)))
	}
	for i, binding := range bindings {
		if binding.role != p.spec.roles[i] {
			panic(fmt.Sprintf("webgpu: kernel %q binding %d expects role %s, got %s",
				p.name, i, p.spec.roles[i], binding.role))
		}
		if binding.buffer == nil {
			panic(fmt.Sprintf("webgpu: kernel %q binding %d is nil", p.name, i))
		}
	}

	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, binding := range bindings {
		entries[i] = wgpu.BufferBindingEntry(uint32(i), binding.buffer, 0, binding.size)
	}

	layout := p.pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(layout, entries)

	return &descriptorSet{bindGroup: bindGroup}
}

func (d *descriptorSet) release() {
	if d.bindGroup != nil {
		d.bindGroup.Release()
		d.bindGroup = nil
	}
}
