package device

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/texel-ml/texel/internal/parallel"
)

// Program names the Mock device knows how to execute on the host.
// The conversion kernels are owned by the storage core; the rest are
// the reference compute kernels the test suite dispatches.
const (
	OpPack      = "pack"
	OpUnpack    = "unpack"
	OpSquare    = "square"
	OpAddScalar = "addScalar"
	OpMatMul    = "matmul"
)

// Mock is an in-process Device that keeps texture contents in host
// memory and emulates the built-in programs. It exists so every storage
// lifecycle invariant can be tested without a GPU.
type Mock struct {
	mu       sync.Mutex
	maxSize  int
	nextID   uint64
	live     map[uint64]*mockTexture
	liveB    int
	allocErr error
	cfg      parallel.Config
}

type mockTexture struct {
	id     uint64
	width  int
	height int
	layout Layout
	data   []byte
}

// Dims returns the texture dimensions in texels.
func (t *mockTexture) Dims() (int, int) { return t.width, t.height }

// Layout returns the storage format of the texture.
func (t *mockTexture) Layout() Layout { return t.layout }

// ByteSize returns the physical footprint in bytes.
func (t *mockTexture) ByteSize() int { return len(t.data) }

// NewMock creates a Mock device with the given maximum texture size.
func NewMock(maxTextureSize int) *Mock {
	return &Mock{
		maxSize: maxTextureSize,
		live:    make(map[uint64]*mockTexture),
		cfg:     parallel.DefaultConfig(),
	}
}

// MaxTextureSize returns the maximum texture width/height in texels.
func (m *Mock) MaxTextureSize() int { return m.maxSize }

// SetAllocError makes every subsequent CreateTexture fail with err
// until called again with nil. Used to test allocation-failure paths.
func (m *Mock) SetAllocError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocErr = err
}

// LiveTextures returns the count and byte footprint of textures the
// device currently holds. This is the ground truth the pool accounting
// is checked against.
func (m *Mock) LiveTextures() (count, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live), m.liveB
}

// CreateTexture allocates a host-backed texture.
func (m *Mock) CreateTexture(width, height int, layout Layout) (Texture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.allocErr != nil {
		return nil, m.allocErr
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mock: invalid texture dims %dx%d", width, height)
	}
	if width > m.maxSize || height > m.maxSize {
		return nil, fmt.Errorf("mock: texture %dx%d exceeds max size %d", width, height, m.maxSize)
	}

	m.nextID++
	t := &mockTexture{
		id:     m.nextID,
		width:  width,
		height: height,
		layout: layout,
		data:   make([]byte, width*height*layout.BytesPerTexel()),
	}
	m.live[t.id] = t
	m.liveB += len(t.data)
	return t, nil
}

// DeleteTexture frees a texture. Deleting a texture the device does not
// own is a lifecycle bug and panics.
func (m *Mock) DeleteTexture(t Texture) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt := t.(*mockTexture)
	if _, ok := m.live[mt.id]; !ok {
		panic(fmt.Sprintf("mock: delete of unknown texture %d", mt.id))
	}
	delete(m.live, mt.id)
	m.liveB -= len(mt.data)
}

// Upload copies host data into the texture prefix.
func (m *Mock) Upload(t Texture, data []byte) error {
	mt := t.(*mockTexture)
	if len(data) > len(mt.data) {
		return fmt.Errorf("mock: upload of %d bytes into %d-byte texture", len(data), len(mt.data))
	}
	copy(mt.data, data)
	return nil
}

// Readback copies the first n bytes of the texture to host memory.
func (m *Mock) Readback(t Texture, n int) ([]byte, error) {
	mt := t.(*mockTexture)
	if n > len(mt.data) {
		return nil, fmt.Errorf("mock: readback of %d bytes from %d-byte texture", n, len(mt.data))
	}
	out := make([]byte, n)
	copy(out, mt.data)
	return out, nil
}

// ReadbackAsync snapshots the texture at call time and delivers the
// bytes on a separate goroutine.
func (m *Mock) ReadbackAsync(t Texture, n int, done func([]byte, error)) {
	data, err := m.Readback(t, n)
	go done(data, err)
}

// Run executes one of the built-in programs on host memory.
func (m *Mock) Run(prog *Program, inputs []Binding, out Texture, params []uint32) error {
	if len(inputs) != len(prog.Inputs) {
		return fmt.Errorf("mock: program %s wants %d inputs, got %d", prog.Name, len(prog.Inputs), len(inputs))
	}
	for i, in := range inputs {
		spec := prog.Inputs[i]
		if in.Texture == nil {
			if !spec.AllowUniform {
				return fmt.Errorf("mock: program %s input %d does not accept a uniform", prog.Name, i)
			}
			continue
		}
		if in.Texture.Layout() != spec.Layout {
			return fmt.Errorf("mock: program %s input %d needs %s layout, texture is %s",
				prog.Name, i, spec.Layout, in.Texture.Layout())
		}
	}
	if out.Layout() != prog.Output.Layout {
		return fmt.Errorf("mock: program %s writes %s layout, output texture is %s",
			prog.Name, prog.Output.Layout, out.Layout())
	}

	dst := out.(*mockTexture)
	switch prog.Name {
	case OpPack:
		rows, cols := int(params[0]), int(params[1])
		src := words(inputs[0].Texture.(*mockTexture).data)
		copyWords(dst.data, EncodePacked(src[:rows*cols], rows, cols))
	case OpUnpack:
		rows, cols := int(params[0]), int(params[1])
		src := words(inputs[0].Texture.(*mockTexture).data)
		copyWords(dst.data, DecodePacked(src, rows, cols))
	case OpSquare:
		m.runUnary(inputs[0], dst, params, func(v float32) float32 { return v * v })
	case OpAddScalar:
		s := math.Float32frombits(params[2])
		m.runUnary(inputs[0], dst, params, func(v float32) float32 { return v + s })
	case OpMatMul:
		m.runMatMul(inputs, dst, params)
	default:
		return fmt.Errorf("mock: unknown program %s", prog.Name)
	}
	return nil
}

// runUnary applies f elementwise. Texture operands are transformed
// word-for-word in the packed layout; uniform operands carry logical
// row-major values and are block-encoded into the output.
func (m *Mock) runUnary(in Binding, dst *mockTexture, params []uint32, f func(float32) float32) {
	if in.Texture != nil {
		src := words(in.Texture.(*mockTexture).data)
		dstW := words(dst.data)
		parallel.For(len(src), func(i int) {
			dstW[i] = math.Float32bits(f(math.Float32frombits(src[i])))
		}, m.cfg)
		return
	}

	rows, cols := int(params[0]), int(params[1])
	src := words(in.Uniform)
	logical := make([]uint32, rows*cols)
	for i, w := range src {
		logical[i] = math.Float32bits(f(math.Float32frombits(w)))
	}
	copyWords(dst.data, EncodePacked(logical, rows, cols))
}

// runMatMul computes C = A x B over unpacked inputs and block-encodes
// the packed result. params = [M, K, N].
func (m *Mock) runMatMul(inputs []Binding, dst *mockTexture, params []uint32) {
	mm, kk, nn := int(params[0]), int(params[1]), int(params[2])
	a := words(inputs[0].Texture.(*mockTexture).data)
	b := words(inputs[1].Texture.(*mockTexture).data)

	c := make([]uint32, mm*nn)
	parallel.For(mm*nn, func(i int) {
		y, x := i/nn, i%nn
		var sum float32
		for k := 0; k < kk; k++ {
			sum += math.Float32frombits(a[y*kk+k]) * math.Float32frombits(b[k*nn+x])
		}
		c[i] = math.Float32bits(sum)
	}, m.cfg)
	copyWords(dst.data, EncodePacked(c, mm, nn))
}

// words views texture bytes as 4-byte words.
func words(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// copyWords writes words into the byte prefix of dst.
func copyWords(dst []byte, src []uint32) {
	copy(words(dst), src)
}
