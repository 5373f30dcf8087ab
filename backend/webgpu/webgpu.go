// Copyright 2025 Forge ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU execution backend for GPU-resident
// tensor operators.
//
// Tensors live on the device in two interchangeable layouts: a channel-packed
// texel buffer that kernels consume and a row-major linear buffer used for
// host transfer, concatenation and reshape. Every operator call is
// synchronous: it submits one command sequence and blocks until the device
// finishes it.
//
// Example:
//
//	import (
//	    "github.com/forge-ml/forge/backend/webgpu"
//	    "github.com/forge-ml/forge/tensor"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    in := gpu.NewTensor(tensor.Shape{1, 3, 224, 224})
//	    in.SetFromHost(pixels)
//	    out := gpu.NewTensor(tensor.Shape{1, 16, 224, 224})
//	    err = gpu.Conv2D(out, in, weights, bias, params, nil, nil)
//	}
package webgpu

import (
	internalwebgpu "github.com/forge-ml/forge/internal/backend/webgpu"
	"github.com/forge-ml/forge/tensor"
)

// Backend owns the WebGPU device and orchestrates all operator dispatches.
type Backend = internalwebgpu.Backend

// Tensor is a GPU-resident float32 tensor.
type Tensor = internalwebgpu.Tensor

// Conv2DParams is the full geometry of a 2-D convolution.
type Conv2DParams = internalwebgpu.Conv2DParams

// PackedWeights is a device-resident prepacked convolution weight volume.
type PackedWeights = internalwebgpu.PackedWeights

// MemoryStats reports GPU memory usage of a backend.
type MemoryStats = internalwebgpu.MemoryStats

// New creates a new WebGPU backend.
//
// Returns an error if WebGPU initialization fails (e.g. no compatible GPU
// or the native library is missing).
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system. Useful
// for graceful fallback when no compatible GPU is present.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// NewConv2DParams derives the output geometry of a convolution from its
// input extents, kernel extents, stride, padding, dilation and groups.
func NewConv2DParams(n, c, h, w, oc, kh, kw, sy, sx, py, px, dy, dx, g int) Conv2DParams {
	return internalwebgpu.NewConv2DParams(n, c, h, w, oc, kh, kw, sy, sx, py, px, dy, dx, g)
}

// Conv2DPrepackedSizes returns the texel extents of the prepacked weight
// volume used by the general convolution path.
func Conv2DPrepackedSizes(oc, c, kh, kw int) tensor.Shape {
	return internalwebgpu.Conv2DPrepackedSizes(oc, c, kh, kw)
}
