package storage

import (
	"sync"

	"github.com/texel-ml/texel/internal/device"
	"github.com/texel-ml/texel/internal/tensor"
)

// Mode selects when tensors are materialized as textures.
type Mode int

const (
	// DelayedStorage defers texture creation until a kernel needs the
	// tensor and releases the texture as soon as the value is drained
	// back to host. Minimizes peak GPU footprint.
	DelayedStorage Mode = iota
	// ImmediateStorage creates the texture at write time and keeps it
	// resident until explicit disposal. Trades earlier allocation for
	// fewer materialize-on-demand transitions.
	ImmediateStorage
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	if m == ImmediateStorage {
		return "immediate"
	}
	return "delayed"
}

// MemoryInfo is the diagnostics snapshot exposed for leak detection.
type MemoryInfo struct {
	Tensors    int // live registry entries
	HostBytes  int // bytes held as host payloads
	GPUBytes   int // bytes held in checked-out textures
	GPUBuffers int // checked-out texture count
}

// ReadResult is the outcome of an asynchronous read.
type ReadResult struct {
	Value *tensor.Raw
	Err   error
}

// Backend is the storage façade composing the registry, the texture
// pool, the materialization policy, and the layout translator.
//
// All operations are synchronous with respect to the caller's single
// logical thread of control; the mutex only serializes asynchronous
// readback completions against it.
type Backend struct {
	name string
	dev  device.Device
	mode Mode

	mu   sync.Mutex
	reg  registry
	pool *TexturePool
}

type config struct {
	name          string
	mode          Mode
	surfaceWidth  int
	surfaceHeight int
}

// Option configures a Backend at construction.
type Option func(*config)

// WithImmediateStorage selects the immediate storage mode.
func WithImmediateStorage() Option {
	return func(c *config) { c.mode = ImmediateStorage }
}

// WithSurfaceBudget derives the pool's soft byte ceiling from the
// rendering surface's maximum addressable area instead of the device's
// maximum texture size.
func WithSurfaceBudget(width, height int) Option {
	return func(c *config) {
		c.surfaceWidth = width
		c.surfaceHeight = height
	}
}

// WithName sets the backend's diagnostic name.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// New creates a storage backend over the device. The default mode is
// delayed storage; the default budget hint is the device's maximum
// texture area.
func New(dev device.Device, opts ...Option) *Backend {
	cfg := config{
		name:          "texel",
		mode:          DelayedStorage,
		surfaceWidth:  dev.MaxTextureSize(),
		surfaceHeight: dev.MaxTextureSize(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	budget := cfg.surfaceWidth * cfg.surfaceHeight * 4
	return &Backend{
		name: cfg.name,
		dev:  dev,
		mode: cfg.mode,
		pool: NewTexturePool(dev, budget),
	}
}

// Name returns the backend's diagnostic name.
func (b *Backend) Name() string { return b.name }

// Mode returns the storage mode selected at construction.
func (b *Backend) Mode() Mode { return b.mode }

// Create registers an empty entry and returns its handle.
func (b *Backend) Create(shape tensor.Shape, dtype tensor.DataType) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, err := b.reg.register(shape, dtype)
	if err != nil {
		return Handle{}, opErr("create", h, err)
	}
	return h, nil
}

// Write stores values as the entry's host payload. A previously live
// texture is released back to the pool before Write returns, so pool
// usage counts reflect the overwrite immediately. In immediate mode
// the new payload is paged onto the GPU before returning.
func (b *Backend) Write(h Handle, values *tensor.Raw) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.reg.lookup(h)
	if err != nil {
		return opErr("write", h, err)
	}
	if !values.Shape().Equal(e.shape) {
		return opErr("write", h, ErrShapeMismatch)
	}
	if values.DType() != e.dtype {
		return opErr("write", h, ErrDTypeMismatch)
	}

	if e.tex != nil {
		b.pool.Release(e.tex)
		e.tex = nil
	}
	data := make([]byte, len(values.Data()))
	copy(data, values.Data())
	b.reg.setHost(e, data)
	e.state = stateHost
	e.readToken++

	if b.mode == ImmediateStorage {
		if err := b.materialize(e, unpackedLayout); err != nil {
			return opErr("write", h, err)
		}
	}
	return nil
}

// WriteNew registers a new entry and writes values into it.
func (b *Backend) WriteNew(values *tensor.Raw) (Handle, error) {
	h, err := b.Create(values.Shape(), values.DType())
	if err != nil {
		return Handle{}, err
	}
	if err := b.Write(h, values); err != nil {
		return Handle{}, err
	}
	return h, nil
}

// ReadSync returns the entry's current value. A live texture is
// drained to host; under delayed storage the texture then goes back to
// the pool, so the handle's GPU footprint returns to zero before
// ReadSync returns.
func (b *Backend) ReadSync(h Handle) (*tensor.Raw, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.reg.lookup(h)
	if err != nil {
		return nil, opErr("readSync", h, err)
	}

	switch e.state {
	case stateEmpty:
		return nil, opErr("readSync", h, ErrNoData)
	case stateHost:
		return rawFromHost(e)
	case stateTexture:
		if e.host != nil {
			// Cached from an earlier drain; still matches the texture.
			return rawFromHost(e)
		}
	default:
		panic("storage: invalid entry state " + e.state.String())
	}

	tex, err := e.tex.Texture()
	if err != nil {
		return nil, opErr("readSync", h, err)
	}
	data, err := b.dev.Readback(tex, e.tex.ByteSize())
	if err != nil {
		return nil, opErr("readSync", h, err)
	}
	host := decodeFromLayout(data, e.dtype, e.shape, e.tex.Layout())
	b.finishDrain(e, host)
	return rawFromHost(e)
}

// finishDrain installs drained bytes as the entry's host payload and
// applies the paging policy: delayed mode releases the texture, the
// entry's value now living on host; immediate mode keeps the texture
// resident with the host bytes as a read cache.
func (b *Backend) finishDrain(e *entry, host []byte) {
	b.reg.setHost(e, host)
	if b.mode == DelayedStorage {
		b.pool.Release(e.tex)
		e.tex = nil
		e.state = stateHost
	}
}

// Read resolves the entry's value asynchronously. The device snapshot
// is taken before Read returns; a Write or Dispose racing the pending
// completion still releases the texture synchronously, and the
// completion delivers the snapshot without touching the reused or
// freed slot.
func (b *Backend) Read(h Handle) <-chan ReadResult {
	ch := make(chan ReadResult, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.reg.lookup(h)
	if err != nil {
		ch <- ReadResult{Err: opErr("read", h, err)}
		return ch
	}

	switch e.state {
	case stateEmpty:
		ch <- ReadResult{Err: opErr("read", h, ErrNoData)}
		return ch
	case stateHost:
		value, err := rawFromHost(e)
		ch <- ReadResult{Value: value, Err: err}
		return ch
	case stateTexture:
		if e.host != nil {
			value, err := rawFromHost(e)
			ch <- ReadResult{Value: value, Err: err}
			return ch
		}
	default:
		panic("storage: invalid entry state " + e.state.String())
	}

	tex, err := e.tex.Texture()
	if err != nil {
		ch <- ReadResult{Err: opErr("read", h, err)}
		return ch
	}

	token := e.readToken
	shape := e.shape.Clone()
	dtype := e.dtype
	layout := e.tex.Layout()

	b.dev.ReadbackAsync(tex, e.tex.ByteSize(), func(data []byte, derr error) {
		if derr != nil {
			ch <- ReadResult{Err: opErr("read", h, derr)}
			return
		}
		host := decodeFromLayout(data, dtype, shape, layout)

		b.mu.Lock()
		if e2, lerr := b.reg.lookup(h); lerr == nil && e2.readToken == token {
			b.finishDrain(e2, host)
		}
		b.mu.Unlock()

		value, verr := tensor.NewRaw(shape, dtype)
		if verr != nil {
			ch <- ReadResult{Err: opErr("read", h, verr)}
			return
		}
		copy(value.Data(), host)
		ch <- ReadResult{Value: value}
	})
	return ch
}

// GetTexture materializes the entry as a texture if needed and returns
// the live reference. Idempotent while the texture is live.
func (b *Backend) GetTexture(h Handle) (*TextureRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.reg.lookup(h)
	if err != nil {
		return nil, opErr("getTexture", h, err)
	}
	if e.tex != nil {
		return e.tex, nil
	}
	if err := b.materialize(e, unpackedLayout); err != nil {
		return nil, opErr("getTexture", h, err)
	}
	return e.tex, nil
}

// Run executes a program over the given operands, resolving each one
// against the program's declared requirements: small host-resident
// operands pass as inline uniforms when the program allows it, and
// live textures are converted between layouts lazily. The result is
// registered as a new texture-resident entry.
func (b *Backend) Run(prog *device.Program, inputs []Handle, outShape tensor.Shape, dtype tensor.DataType, params []uint32) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(inputs) != len(prog.Inputs) {
		return Handle{}, opErr("run:"+prog.Name, Handle{}, ErrInputCount)
	}

	bindings := make([]device.Binding, len(inputs))
	for i, h := range inputs {
		e, err := b.reg.lookup(h)
		if err != nil {
			return Handle{}, opErr("run:"+prog.Name, h, err)
		}
		spec := prog.Inputs[i]

		if spec.AllowUniform && e.tex == nil && e.state == stateHost && uniformEligible(e.shape.NumElements()) {
			n := e.shape.NumElements()
			words := hostToWords(e.host, e.dtype, n)
			uni := make([]byte, n*4)
			copy(wordsOf(uni), words)
			bindings[i] = device.Binding{Uniform: uni}
			continue
		}

		if err := b.ensureLayout(e, spec.Layout); err != nil {
			return Handle{}, opErr("run:"+prog.Name, h, err)
		}
		tex, err := e.tex.Texture()
		if err != nil {
			return Handle{}, opErr("run:"+prog.Name, h, err)
		}
		if tex.Layout() != spec.Layout {
			return Handle{}, opErr("run:"+prog.Name, h, ErrLayoutMismatch)
		}
		bindings[i] = device.Binding{Texture: tex}
	}

	w, hh := texDims(outShape, prog.Output.Layout)
	out, err := b.pool.Acquire(w, hh, prog.Output.Layout)
	if err != nil {
		return Handle{}, opErr("run:"+prog.Name, Handle{}, err)
	}
	outTex, _ := out.Texture()
	if err := b.dev.Run(prog, bindings, outTex, params); err != nil {
		b.pool.Release(out)
		return Handle{}, opErr("run:"+prog.Name, Handle{}, err)
	}

	h, err := b.reg.register(outShape, dtype)
	if err != nil {
		b.pool.Release(out)
		return Handle{}, opErr("run:"+prog.Name, Handle{}, err)
	}
	e, _ := b.reg.lookup(h)
	e.tex = out
	e.state = stateTexture
	return h, nil
}

// Dispose removes the entry and releases any live texture. Disposing a
// handle twice is signalled with ErrDisposed, not ignored.
func (b *Backend) Dispose(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.reg.lookup(h)
	if err != nil {
		return opErr("dispose", h, err)
	}
	if e.tex != nil {
		b.pool.Release(e.tex)
		e.tex = nil
	}
	if err := b.reg.remove(h); err != nil {
		return opErr("dispose", h, err)
	}
	return nil
}

// DisposeAll tears down every entry and every pool texture. The in-use
// texture count is exactly zero afterward.
func (b *Backend) DisposeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pool.DisposeAll()
	b.reg.removeAll()
}

// MemoryInfo returns the diagnostics snapshot.
func (b *Backend) MemoryInfo() MemoryInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := b.pool.Stats()
	return MemoryInfo{
		Tensors:    b.reg.numLive,
		HostBytes:  b.reg.hostBytes,
		GPUBytes:   stats.BytesUsed,
		GPUBuffers: stats.NumUsed,
	}
}

// PoolStats returns the texture pool's counters.
func (b *Backend) PoolStats() PoolStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pool.Stats()
}

// rawFromHost copies the entry's host payload into a Raw value.
func rawFromHost(e *entry) (*tensor.Raw, error) {
	value, err := tensor.NewRaw(e.shape, e.dtype)
	if err != nil {
		return nil, err
	}
	copy(value.Data(), e.host)
	return value, nil
}
