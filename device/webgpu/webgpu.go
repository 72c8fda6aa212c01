// Copyright 2026 Texel Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu exposes the WebGPU-backed texture device.
package webgpu

import (
	"github.com/texel-ml/texel/internal/device/webgpu"
)

// Device implements the texture device contract on WebGPU.
type Device = webgpu.Device

// New creates a WebGPU device.
// Returns an error if WebGPU is not available or initialization fails.
func New() (*Device, error) {
	return webgpu.New()
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() bool {
	return webgpu.IsAvailable()
}
