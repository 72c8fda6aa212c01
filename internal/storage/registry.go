package storage

import (
	"fmt"

	"github.com/texel-ml/texel/internal/tensor"
)

// Handle identifies a logical tensor in the registry. Handles are
// slot/generation pairs: reusing a slot bumps the generation, so a
// handle kept past Dispose fails lookup instead of aliasing the next
// tensor in that slot.
type Handle struct {
	slot uint32
	gen  uint32
}

// String returns a short diagnostic form of the handle.
func (h Handle) String() string {
	return fmt.Sprintf("t%d.%d", h.slot, h.gen)
}

// storageState is the tagged residency state of a registry entry.
// Transitions are enumerated in the entry methods below; every switch
// over storageState is exhaustive.
type storageState uint8

const (
	// stateEmpty: registered, nothing written yet.
	stateEmpty storageState = iota
	// stateHost: the host payload is authoritative.
	stateHost
	// stateTexture: the texture is authoritative. A host payload may
	// still be cached from an earlier drain; it matches the texture.
	stateTexture
)

func (s storageState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateHost:
		return "host"
	case stateTexture:
		return "texture"
	default:
		return "invalid"
	}
}

// entry is the registry record for one logical tensor.
type entry struct {
	gen  uint32
	live bool

	shape tensor.Shape
	dtype tensor.DataType

	state storageState
	host  []byte // logical row-major payload
	tex   *TextureRef

	// readToken invalidates in-flight async reads: Write and Dispose
	// bump it, and a completion with a stale token must not write back
	// into the slot.
	readToken uint32
}

// packed reports whether the entry's live texture uses the packed layout.
func (e *entry) packed() bool {
	if e.tex == nil {
		return false
	}
	return e.tex.Layout() == packedLayout
}

// registry is a slot arena mapping handles to entries.
type registry struct {
	slots     []entry
	freeSlots []uint32

	numLive   int
	hostBytes int
}

// register creates an empty entry and returns its handle.
func (r *registry) register(shape tensor.Shape, dtype tensor.DataType) (Handle, error) {
	if err := shape.Validate(); err != nil {
		return Handle{}, err
	}

	var slot uint32
	if n := len(r.freeSlots); n > 0 {
		slot = r.freeSlots[n-1]
		r.freeSlots = r.freeSlots[:n-1]
	} else {
		r.slots = append(r.slots, entry{})
		slot = uint32(len(r.slots) - 1)
	}

	e := &r.slots[slot]
	e.live = true
	e.shape = shape.Clone()
	e.dtype = dtype
	e.state = stateEmpty
	e.host = nil
	e.tex = nil
	r.numLive++

	return Handle{slot: slot, gen: e.gen}, nil
}

// lookup resolves a handle. Disposed and stale handles fail with
// ErrDisposed.
func (r *registry) lookup(h Handle) (*entry, error) {
	if int(h.slot) >= len(r.slots) {
		return nil, ErrDisposed
	}
	e := &r.slots[h.slot]
	if !e.live || e.gen != h.gen {
		return nil, ErrDisposed
	}
	return e, nil
}

// setHost installs data as the entry's host payload and adjusts the
// byte accounting.
func (r *registry) setHost(e *entry, data []byte) {
	r.hostBytes += len(data) - len(e.host)
	e.host = data
}

// remove clears the entry and recycles its slot under a new generation.
// The caller must have released the entry's texture first.
func (r *registry) remove(h Handle) error {
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.hostBytes -= len(e.host)
	r.numLive--

	e.live = false
	e.gen++
	e.readToken++
	e.shape = nil
	e.dtype = 0
	e.state = stateEmpty
	e.host = nil
	e.tex = nil

	r.freeSlots = append(r.freeSlots, h.slot)
	return nil
}

// removeAll clears every live entry. Texture release is the caller's
// responsibility (the pool tears them down wholesale).
func (r *registry) removeAll() {
	for i := range r.slots {
		e := &r.slots[i]
		if !e.live {
			continue
		}
		e.live = false
		e.gen++
		e.readToken++
		e.shape = nil
		e.dtype = 0
		e.state = stateEmpty
		e.host = nil
		e.tex = nil
		r.freeSlots = append(r.freeSlots, uint32(i))
	}
	r.numLive = 0
	r.hostBytes = 0
}
