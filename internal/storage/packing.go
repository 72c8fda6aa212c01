package storage

import (
	"github.com/texel-ml/texel/internal/device"
)

// materialize pages the entry's host payload into a freshly acquired
// texture in the given layout. The host payload is dropped once the
// upload lands; the texture becomes authoritative. Safe to call when a
// texture is already live (no duplicate allocation).
func (b *Backend) materialize(e *entry, layout device.Layout) error {
	switch e.state {
	case stateEmpty:
		return ErrNoData
	case stateTexture:
		return b.ensureLayout(e, layout)
	case stateHost:
	default:
		panic("storage: invalid entry state " + e.state.String())
	}

	w, h := texDims(e.shape, layout)
	ref, err := b.pool.Acquire(w, h, layout)
	if err != nil {
		return err
	}
	tex, _ := ref.Texture()
	if err := b.dev.Upload(tex, encodeForLayout(e.host, e.dtype, e.shape, layout)); err != nil {
		b.pool.Release(ref)
		return err
	}

	b.reg.setHost(e, nil)
	e.tex = ref
	e.state = stateTexture
	return nil
}

// ensureLayout lazily converts the entry's live texture to the wanted
// layout using a dedicated conversion kernel. The counterpart texture
// replaces the original, which goes back to the pool, so the entry
// never accounts for more than one live texture.
func (b *Backend) ensureLayout(e *entry, want device.Layout) error {
	if e.tex == nil {
		return b.materialize(e, want)
	}
	if e.tex.Layout() == want {
		return nil
	}

	rows, cols := e.shape.RowsCols()
	w, h := device.Dims(want, rows, cols)
	dst, err := b.pool.Acquire(w, h, want)
	if err != nil {
		return err
	}
	dstTex, _ := dst.Texture()
	srcTex, err := e.tex.Texture()
	if err != nil {
		b.pool.Release(dst)
		return err
	}

	prog := progPack
	if want == unpackedLayout {
		prog = progUnpack
	}
	params := []uint32{uint32(rows), uint32(cols)}
	if err := b.dev.Run(prog, []device.Binding{{Texture: srcTex}}, dstTex, params); err != nil {
		b.pool.Release(dst)
		return err
	}

	b.pool.Release(e.tex)
	e.tex = dst
	return nil
}
