// Package webgpu implements the GPU tensor-operator execution layer on top of
// WebGPU. Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO bindings.
//
// Every operator call is synchronous: it encodes one command sequence,
// submits it, and blocks until the device signals completion. Tensors are
// GPU-resident with two physical representations (a channel-packed texel
// buffer consumed by kernels and a row-major linear buffer used for host
// transfer, concatenation and reshape); see tensor.go and sync.go.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// defaultStorageAlignment is the WebGPU default value of
// minStorageBufferOffsetAlignment, used when the adapter does not report
// its limits.
const defaultStorageAlignment = 256

// Backend owns the WebGPU device, the compiled-kernel cache and the staging
// buffer pool. It is the device/context collaborator every operator call
// goes through.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfoGo

	// Minimum storage-buffer offset alignment reported by the adapter.
	// Host-data buffer sizes are rounded up to it.
	storageAlignment uint64

	// Compiled kernel programs, keyed by kernel identity and workgroup
	// shape. Guarded by mu; lookup-or-insert must be race-free because
	// concurrent operator calls may miss on the same kernel.
	programs map[programKey]*program
	mu       sync.Mutex

	// Staging buffer pool for readback and fence buffers.
	staging *stagingPool

	// Memory tracking
	memoryStats struct {
		allocatedBytes uint64
		peakBytes      uint64
		activeBuffers  int64
		mu             sync.Mutex
	}
}

// New creates a new WebGPU backend.
// Returns an error if WebGPU is not available or initialization fails.
func New() (backend *Backend, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	// Adapter info is informational only; a failed query leaves it nil
	// and Name() falls back to the bare backend name.
	adapterInfo, _ := adapter.GetInfo()

	alignment := uint64(defaultStorageAlignment)
	if limits, limitsErr := adapter.GetLimits(); limitsErr == nil &&
		limits.Limits.MinStorageBufferOffsetAlignment > 0 {
		alignment = uint64(limits.Limits.MinStorageBufferOffsetAlignment)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	b := &Backend{
		instance:         instance,
		adapter:          adapter,
		device:           device,
		queue:            queue,
		adapterInfo:      adapterInfo,
		storageAlignment: alignment,
		programs:         make(map[programKey]*program),
	}
	b.staging = newStagingPool(device)

	return b, nil
}

// Release releases all WebGPU resources.
// Must be called when the backend is no longer needed.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.staging != nil {
		b.staging.Clear()
		b.staging = nil
	}

	for _, p := range b.programs {
		p.release()
	}
	b.programs = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns a human-readable backend name including the adapter.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Device, b.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// AdapterInfo returns information about the GPU adapter, or nil if the
// adapter did not report any.
func (b *Backend) AdapterInfo() *wgpu.AdapterInfoGo {
	return b.adapterInfo
}

// StorageAlignment returns the minimum storage-buffer offset alignment of
// the device.
func (b *Backend) StorageAlignment() uint64 {
	return b.storageAlignment
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// MemoryStats represents GPU memory usage statistics.
type MemoryStats struct {
	AllocatedBytes uint64 // bytes currently allocated to live buffers
	PeakBytes      uint64 // high-water mark of AllocatedBytes
	ActiveBuffers  int64  // number of currently live buffers
	StagingHits    uint64 // staging pool reuse count
	StagingMisses  uint64 // staging pool allocation count
	StagingPooled  int    // staging buffers currently pooled
}

// MemoryStats returns current GPU memory usage statistics.
func (b *Backend) MemoryStats() MemoryStats {
	b.memoryStats.mu.Lock()
	stats := MemoryStats{
		AllocatedBytes: b.memoryStats.allocatedBytes,
		PeakBytes:      b.memoryStats.peakBytes,
		ActiveBuffers:  b.memoryStats.activeBuffers,
	}
	b.memoryStats.mu.Unlock()

	stats.StagingHits, stats.StagingMisses, stats.StagingPooled = b.staging.Stats()
	return stats
}

// trackAllocation records a buffer allocation in memory statistics.
func (b *Backend) trackAllocation(size uint64) {
	b.memoryStats.mu.Lock()
	defer b.memoryStats.mu.Unlock()

	b.memoryStats.allocatedBytes += size
	b.memoryStats.activeBuffers++
	if b.memoryStats.allocatedBytes > b.memoryStats.peakBytes {
		b.memoryStats.peakBytes = b.memoryStats.allocatedBytes
	}
}

// trackRelease records a buffer release in memory statistics.
func (b *Backend) trackRelease(size uint64) {
	b.memoryStats.mu.Lock()
	defer b.memoryStats.mu.Unlock()

	if b.memoryStats.allocatedBytes >= size {
		b.memoryStats.allocatedBytes -= size
	}
	b.memoryStats.activeBuffers--
}
