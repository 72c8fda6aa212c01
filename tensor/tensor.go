// Copyright 2026 Texel Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public host-side value types consumed by
// the storage manager: shapes, data types, and raw payloads.
//
// Example:
//
//	raw, _ := tensor.FromSlice(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
//	h, _ := backend.WriteNew(raw)
package tensor

import (
	"github.com/texel-ml/texel/internal/tensor"
)

// Type aliases for the public API

// DType is a constraint for tensor element types.
// Supported types: float32, int32, bool.
type DType = tensor.DType

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Bool    DataType = tensor.Bool
)

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Raw is the host-side value container paged in and out of GPU
// textures by the storage manager.
type Raw = tensor.Raw

// NewRaw creates a zero-filled Raw with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*Raw, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromSlice creates a Raw holding a copy of values, with the element
// type inferred from T.
func FromSlice[T DType](shape Shape, values []T) (*Raw, error) {
	return tensor.FromSlice(shape, values)
}
