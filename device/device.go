// Copyright 2026 Texel Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device exposes the GPU contract the storage manager is
// written against, plus the in-process Mock device used for testing.
package device

import (
	"github.com/texel-ml/texel/internal/device"
)

// Device is the GPU abstraction consumed by the storage manager.
type Device = device.Device

// Texture is a GPU-addressable 2-D memory region.
type Texture = device.Texture

// Layout is the GPU storage format of a texture.
type Layout = device.Layout

// Layout constants.
const (
	Unpacked Layout = device.Unpacked
	Packed   Layout = device.Packed
)

// Program is a compute kernel plus its declared storage requirements.
type Program = device.Program

// InputSpec declares what a program requires of one input operand.
type InputSpec = device.InputSpec

// OutputSpec declares the layout a program writes its result in.
type OutputSpec = device.OutputSpec

// Binding is one resolved program operand.
type Binding = device.Binding

// Mock is an in-process Device keeping texture contents in host memory.
type Mock = device.Mock

// NewMock creates a Mock device with the given maximum texture size.
func NewMock(maxTextureSize int) *Mock {
	return device.NewMock(maxTextureSize)
}
