// Copyright 2025 Forge ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public shape and data-type vocabulary of the
// Forge execution layer.
//
// Shapes describe row-major logical extents; the packed device layout a
// backend chooses for a shape is derived from it (see the backend packages).
package tensor

import (
	"github.com/forge-ml/forge/internal/tensor"
)

// Shape represents the logical dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Uint8   DataType = tensor.Uint8
)

// UpDiv returns ceil(a / b) for positive b.
func UpDiv(a, b int) int { return tensor.UpDiv(a, b) }

// AlignUp4 rounds n up to the next multiple of 4.
func AlignUp4(n int) int { return tensor.AlignUp4(n) }
