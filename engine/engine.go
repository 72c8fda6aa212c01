// Copyright 2026 Texel Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine exposes the explicit backend registry.
package engine

import (
	"github.com/texel-ml/texel/internal/engine"
)

// Registry maps names to backend instances and tracks the active one.
type Registry = engine.Registry

// Backend is the minimal surface the registry needs from a backend.
type Backend = engine.Backend

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return engine.NewRegistry()
}
