package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// storageUsage is the usage every device-local tensor buffer carries: bound
// as a storage buffer by kernels, copy source for readback/concat, copy
// destination for concat/reshape.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// createStorageBuffer allocates a device-local storage buffer of size bytes.
// Contents are undefined; callers overwrite it fully before reading.
func (b *Backend) createStorageBuffer(size uint64) *wgpu.Buffer {
	if size == 0 {
		size = 4
	}
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  size,
	})
	b.trackAllocation(size)
	return buffer
}

// createBufferInit allocates a device-local storage buffer and uploads data
// into it through the creation mapping.
func (b *Backend) createBufferInit(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	if size == 0 {
		size = 4
	}

	// Create buffer with MappedAtCreation for initial data upload
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            storageUsage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	b.trackAllocation(size)
	return buffer
}

// bufferFromOptionalHostData uploads host data into a zero-filled storage
// buffer of bufferSize bytes, rounded up to the device storage alignment.
// A nil slice yields an all-zero buffer. Panics if the data does not fit.
func (b *Backend) bufferFromOptionalHostData(data []float32, bufferSize uint64) *wgpu.Buffer {
	dataSize := uint64(len(data)) * 4
	if dataSize > bufferSize {
		panic(fmt.Sprintf("webgpu: host data (%d bytes) exceeds buffer size (%d bytes)",
			dataSize, bufferSize))
	}
	aligned := alignUp(bufferSize, b.storageAlignment)
	contents := make([]byte, aligned)
	copy(contents, float32Bytes(data))
	return b.createBufferInit(contents)
}

// createUniformBuffer uploads a const block into a uniform buffer. Sizes are
// rounded up to 16 bytes to satisfy uniform binding size rules.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := alignUp(uint64(len(data)), 16)

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	b.trackAllocation(size)
	return buffer
}

// releaseBuffer releases a tracked device buffer.
func (b *Backend) releaseBuffer(buffer *wgpu.Buffer, size uint64) {
	if buffer == nil {
		return
	}
	buffer.Release()
	b.trackRelease(size)
}

// readBuffer copies size bytes out of a device buffer into host memory,
// blocking until the copy completes. The staging buffer comes from the pool.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.staging.acquire(size)

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging.buffer, 0, size)
	cmd := encoder.Finish(nil)
	b.queue.Submit(cmd)
	cmd.Release()
	encoder.Release()

	if err := staging.buffer.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		staging.buffer.Release()
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.buffer.Unmap()

	b.staging.release(staging)
	return result, nil
}

// alignUp rounds n up to the next multiple of alignment.
func alignUp(n, alignment uint64) uint64 {
	if alignment == 0 {
		return n
	}
	return (n + alignment - 1) / alignment * alignment
}

// float32Bytes reinterprets a float32 slice as its little-endian byte
// representation without copying.
func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // G103: zero-copy reinterpretation of the backing array
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}

// bytesToFloat32 copies a little-endian byte buffer into a float32 slice.
func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// constBlock accumulates the scalar words of a kernel's uniform Params
// struct in declaration order. All members are 4-byte scalars so the WGSL
// uniform layout matches the packed word sequence exactly.
type constBlock struct {
	buf []byte
}

func (c *constBlock) putInt32(v int32) {
	c.buf = binary.LittleEndian.AppendUint32(c.buf, uint32(v))
}

func (c *constBlock) putFloat32(v float32) {
	c.buf = binary.LittleEndian.AppendUint32(c.buf, math.Float32bits(v))
}

func (c *constBlock) bytes() []byte {
	return c.buf
}
