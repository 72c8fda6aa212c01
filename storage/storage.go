// Copyright 2026 Texel Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package storage exposes the texture-backed tensor storage manager:
// per-tensor paging between host memory, pooled GPU textures, and
// inline shader uniforms, with lazy packed/unpacked layout conversion.
//
// Example:
//
//	dev := device.NewMock(4096)
//	b := storage.New(dev)
//	h, _ := b.WriteNew(raw)
//	out, _ := b.Run(storage.SquareProgram, []storage.Handle{h}, raw.Shape(), tensor.Float32, params)
//	value, _ := b.ReadSync(out)
package storage

import (
	"github.com/texel-ml/texel/internal/device"
	"github.com/texel-ml/texel/internal/storage"
)

// Backend is the storage façade.
type Backend = storage.Backend

// Handle identifies a logical tensor in the registry.
type Handle = storage.Handle

// Mode selects when tensors are materialized as textures.
type Mode = storage.Mode

// Storage modes.
const (
	DelayedStorage   Mode = storage.DelayedStorage
	ImmediateStorage Mode = storage.ImmediateStorage
)

// MemoryInfo is the diagnostics snapshot exposed for leak detection.
type MemoryInfo = storage.MemoryInfo

// ReadResult is the outcome of an asynchronous read.
type ReadResult = storage.ReadResult

// TextureRef is a checked-out pool texture.
type TextureRef = storage.TextureRef

// PoolStats describes the texture pool's current footprint.
type PoolStats = storage.PoolStats

// Option configures a Backend at construction.
type Option = storage.Option

// New creates a storage backend over the device.
func New(dev device.Device, opts ...Option) *Backend {
	return storage.New(dev, opts...)
}

// WithImmediateStorage selects the immediate storage mode.
func WithImmediateStorage() Option {
	return storage.WithImmediateStorage()
}

// WithSurfaceBudget derives the pool's soft byte ceiling from the
// rendering surface's maximum addressable area.
func WithSurfaceBudget(width, height int) Option {
	return storage.WithSurfaceBudget(width, height)
}

// WithName sets the backend's diagnostic name.
func WithName(name string) Option {
	return storage.WithName(name)
}

// Built-in reference programs.
var (
	// SquareProgram squares a tensor elementwise.
	SquareProgram = storage.SquareProgram
	// AddScalarProgram adds an immediate scalar carried in params.
	AddScalarProgram = storage.AddScalarProgram
	// MatMulProgram multiplies two matrices.
	MatMulProgram = storage.MatMulProgram
)

// Common errors.
var (
	ErrDisposed        = storage.ErrDisposed
	ErrNoData          = storage.ErrNoData
	ErrShapeMismatch   = storage.ErrShapeMismatch
	ErrDTypeMismatch   = storage.ErrDTypeMismatch
	ErrLayoutMismatch  = storage.ErrLayoutMismatch
	ErrReleasedTexture = storage.ErrReleasedTexture
	ErrInputCount      = storage.ErrInputCount
)

// HandleError identifies the operation and handle an error surfaced on.
type HandleError = storage.HandleError
