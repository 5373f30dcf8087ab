package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

// fenceBytes is the size of the completion-fence copy appended to every
// command sequence.
const fenceBytes = 4

// computeCmd accumulates compute passes into one command sequence. Layout
// transitions and the operator dispatch of a call are encoded into the same
// sequence, then submitted and waited on as a unit.
type computeCmd struct {
	b       *Backend
	encoder *wgpu.CommandEncoder

	// Resources to release after the sequence completes.
	releases []func()
}

func (b *Backend) newComputeCmd() *computeCmd {
	return &computeCmd{
		b:       b,
		encoder: b.device.CreateCommandEncoder(nil),
	}
}

// deferRelease schedules a cleanup to run after submitAndWait returns.
// Bind groups, uniform buffers and other per-dispatch resources must stay
// alive until the device is done with the sequence.
func (c *computeCmd) deferRelease(fn func()) {
	c.releases = append(c.releases, fn)
}

// dispatch encodes one compute pass: pipeline, positional bind group, and a
// workgroup grid covering domain (x, y, z). The const block, when non-nil,
// must already be the last binding's uniform buffer contents.
func (c *computeCmd) dispatch(p *program, bindings []resourceBinding, x, y, z int) {
	set := c.b.newDescriptorSet(p, bindings)
	c.deferRelease(set.release)

	gx, gy, gz := p.groupsFor(x, y, z)

	pass := c.encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, set.bindGroup, nil)
	pass.DispatchWorkgroups(gx, gy, gz)
	pass.End()
	pass.Release()
}

// copyBuffer encodes a buffer-to-buffer copy into the sequence.
func (c *computeCmd) copyBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset, size uint64) {
	c.encoder.CopyBufferToBuffer(src, srcOffset, dst, dstOffset, size)
}

// uniform uploads a const block and returns its binding, scheduling the
// buffer's release with the sequence.
func (c *computeCmd) uniform(block *constBlock) resourceBinding {
	data := block.bytes()
	size := alignUp(uint64(len(data)), 16)
	buffer := c.b.createUniformBuffer(data)
	c.deferRelease(func() { c.b.releaseBuffer(buffer, size) })
	return resourceBinding{role: roleUniform, buffer: buffer, size: size}
}

// submitAndWait submits the sequence and blocks until the device has
// executed it. Completion is observed by appending a small copy into a
// mappable fence buffer and blocking on its map: the map cannot succeed
// before every prior command in the sequence has finished.
func (c *computeCmd) submitAndWait() error {
	fence := c.b.staging.acquire(fenceBytes)
	fenceSrc := c.b.createStorageBuffer(fenceBytes)
	c.encoder.CopyBufferToBuffer(fenceSrc, 0, fence.buffer, 0, fenceBytes)

	cmd := c.encoder.Finish(nil)
	c.b.queue.Submit(cmd)
	cmd.Release()
	c.encoder.Release()
	c.encoder = nil

	err := fence.buffer.MapAsync(c.b.device, wgpu.MapModeRead, 0, fenceBytes)
	if err == nil {
		fence.buffer.Unmap()
	}

	c.b.releaseBuffer(fenceSrc, fenceBytes)
	c.b.staging.release(fence)

	for i := len(c.releases) - 1; i >= 0; i-- {
		c.releases[i]()
	}
	c.releases = nil

	if err != nil {
		return fmt.Errorf("webgpu: failed to wait for submission: %w", err)
	}
	return nil
}
