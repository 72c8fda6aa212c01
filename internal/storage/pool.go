// Package storage implements the texture-backed tensor storage manager:
// a registry of logical tensors paged between host memory, pooled GPU
// textures, and inline shader uniforms, with lazy conversion between the
// packed and unpacked texture layouts.
package storage

import (
	"fmt"
	"sync"

	"github.com/texel-ml/texel/internal/device"
)

// poolKey identifies a free list of interchangeable textures.
type poolKey struct {
	width  int
	height int
	layout device.Layout
}

// TextureRef is a checked-out pool texture. The reference is
// invalidated when it is released back to the pool, so a stale ref can
// never reach the device again.
type TextureRef struct {
	tex device.Texture
	key poolKey
}

// Texture returns the underlying device texture.
// Returns ErrReleasedTexture after the ref has been released.
func (r *TextureRef) Texture() (device.Texture, error) {
	if r.tex == nil {
		return nil, ErrReleasedTexture
	}
	return r.tex, nil
}

// Layout returns the texture's storage format.
func (r *TextureRef) Layout() device.Layout {
	return r.key.layout
}

// ByteSize returns the physical texture footprint in bytes.
func (r *TextureRef) ByteSize() int {
	return r.key.width * r.key.height * r.key.layout.BytesPerTexel()
}

// PoolStats describes the pool's current footprint.
type PoolStats struct {
	NumUsed   int // textures currently checked out
	BytesUsed int
	NumFree   int // textures parked on free lists
	BytesFree int
	Hits      uint64
	Misses    uint64
}

// TexturePool allocates, recycles, and frees device textures keyed by
// dimensions and layout. Released textures are parked on free lists for
// reuse; the free lists are trimmed against a soft byte budget.
//
// Recycled textures are returned as-is: callers must overwrite before
// reading, or stale bytes from the previous owner become visible.
type TexturePool struct {
	dev device.Device

	mu     sync.Mutex
	free   map[poolKey][]device.Texture
	used   map[device.Texture]*TextureRef
	budget int

	bytesUsed int
	bytesFree int
	hits      uint64
	misses    uint64
}

// NewTexturePool creates a pool over the device with a soft byte budget
// for trimming free lists. The budget never fails an Acquire.
func NewTexturePool(dev device.Device, budgetBytes int) *TexturePool {
	return &TexturePool{
		dev:    dev,
		free:   make(map[poolKey][]device.Texture),
		used:   make(map[device.Texture]*TextureRef),
		budget: budgetBytes,
	}
}

// Acquire returns a texture with exactly the requested dimensions and
// layout, recycled from a free list when possible. Allocation failure
// is returned to the caller, never downgraded.
func (p *TexturePool) Acquire(width, height int, layout device.Layout) (*TextureRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey{width: width, height: height, layout: layout}
	size := width * height * layout.BytesPerTexel()

	if list := p.free[key]; len(list) > 0 {
		tex := list[len(list)-1]
		p.free[key] = list[:len(list)-1]
		p.bytesFree -= size
		p.hits++
		return p.checkOutLocked(tex, key, size), nil
	}

	p.misses++
	tex, err := p.dev.CreateTexture(width, height, layout)
	if err != nil {
		return nil, fmt.Errorf("pool: acquire %dx%d %s: %w", width, height, layout, err)
	}
	return p.checkOutLocked(tex, key, size), nil
}

func (p *TexturePool) checkOutLocked(tex device.Texture, key poolKey, size int) *TextureRef {
	ref := &TextureRef{tex: tex, key: key}
	p.used[tex] = ref
	p.bytesUsed += size
	return ref
}

// Release parks the texture on its free list and invalidates the ref.
// Contents are neither zeroed nor validated. Releasing an already
// released ref is a no-op.
func (p *TexturePool) Release(ref *TextureRef) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ref == nil || ref.tex == nil {
		return
	}
	tex := ref.tex
	ref.tex = nil
	delete(p.used, tex)

	size := ref.ByteSize()
	p.bytesUsed -= size
	p.free[ref.key] = append(p.free[ref.key], tex)
	p.bytesFree += size

	p.trimLocked()
}

// trimLocked evicts parked textures until total footprint fits the
// budget. Checked-out textures are never evicted.
func (p *TexturePool) trimLocked() {
	for key, list := range p.free {
		for len(list) > 0 && p.bytesUsed+p.bytesFree > p.budget {
			tex := list[len(list)-1]
			list = list[:len(list)-1]
			p.bytesFree -= key.width * key.height * key.layout.BytesPerTexel()
			p.dev.DeleteTexture(tex)
		}
		if len(list) == 0 {
			delete(p.free, key)
		} else {
			p.free[key] = list
		}
	}
}

// DisposeAll force-releases every texture the pool has handed out or
// parked. Afterward the in-use count is exactly zero. Outstanding refs
// are invalidated.
func (p *TexturePool) DisposeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for tex, ref := range p.used {
		ref.tex = nil
		p.dev.DeleteTexture(tex)
	}
	p.used = make(map[device.Texture]*TextureRef)

	for _, list := range p.free {
		for _, tex := range list {
			p.dev.DeleteTexture(tex)
		}
	}
	p.free = make(map[poolKey][]device.Texture)
	p.bytesUsed = 0
	p.bytesFree = 0
}

// Stats returns the pool's current counters.
func (p *TexturePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	numFree := 0
	for _, list := range p.free {
		numFree += len(list)
	}
	return PoolStats{
		NumUsed:   len(p.used),
		BytesUsed: p.bytesUsed,
		NumFree:   numFree,
		BytesFree: p.bytesFree,
		Hits:      p.hits,
		Misses:    p.misses,
	}
}
