package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// stagingSize represents the size categories used for staging buffer reuse.
type stagingSize int

const (
	smallStaging stagingSize = iota
	mediumStaging
	largeStaging
)

const (
	smallStagingThreshold  = 4 * 1024
	mediumStagingThreshold = 1024 * 1024
	maxStagingPerCategory  = 16
)

// stagingBuffer wraps a MapRead staging buffer with its allocated size.
type stagingBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// stagingPool reuses MapRead|CopyDst staging buffers across readbacks.
// Every synchronous readback needs one, so allocation churn adds up fast
// for small tensors.
type stagingPool struct {
	device *wgpu.Device

	small  []*stagingBuffer
	medium []*stagingBuffer
	large  []*stagingBuffer

	mu sync.Mutex

	hits   uint64
	misses uint64
}

func newStagingPool(device *wgpu.Device) *stagingPool {
	return &stagingPool{
		device: device,
		small:  make([]*stagingBuffer, 0, maxStagingPerCategory),
		medium: make([]*stagingBuffer, 0, maxStagingPerCategory),
		large:  make([]*stagingBuffer, 0, maxStagingPerCategory),
	}
}

// acquire returns a staging buffer of at least size bytes, reusing a pooled
// one when possible.
func (p *stagingPool) acquire(size uint64) *stagingBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	category := categorizeStaging(size)
	pool := p.pool(category)
	for i, sb := range pool {
		if sb.size >= size {
			p.remove(category, i)
			p.hits++
			return sb
		}
	}

	p.misses++
	buffer := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	return &stagingBuffer{buffer: buffer, size: size}
}

// release returns a staging buffer to the pool, or frees it when the
// category is full. The buffer must be unmapped.
func (p *stagingPool) release(sb *stagingBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	category := categorizeStaging(sb.size)
	if len(p.pool(category)) >= maxStagingPerCategory {
		sb.buffer.Release()
		return
	}
	p.add(category, sb)
}

// Clear frees all pooled staging buffers.
func (p *stagingPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sb := range p.small {
		sb.buffer.Release()
	}
	p.small = p.small[:0]
	for _, sb := range p.medium {
		sb.buffer.Release()
	}
	p.medium = p.medium[:0]
	for _, sb := range p.large {
		sb.buffer.Release()
	}
	p.large = p.large[:0]
}

// Stats reports pool usage counters.
func (p *stagingPool) Stats() (hits, misses uint64, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.hits, p.misses, len(p.small) + len(p.medium) + len(p.large)
}

func categorizeStaging(size uint64) stagingSize {
	if size < smallStagingThreshold {
		return smallStaging
	}
	if size < mediumStagingThreshold {
		return mediumStaging
	}
	return largeStaging
}

func (p *stagingPool) pool(category stagingSize) []*stagingBuffer {
	switch category {
	case smallStaging:
		return p.small
	case mediumStaging:
		return p.medium
	default:
		return p.large
	}
}

func (p *stagingPool) add(category stagingSize, sb *stagingBuffer) {
	switch category {
	case smallStaging:
		p.small = append(p.small, sb)
	case mediumStaging:
		p.medium = append(p.medium, sb)
	case largeStaging:
		p.large = append(p.large, sb)
	}
}

func (p *stagingPool) remove(category stagingSize, i int) {
	switch category {
	case smallStaging:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case mediumStaging:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case largeStaging:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}
