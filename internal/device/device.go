// Package device defines the minimal GPU contract the storage manager
// is written against: allocate, bind, and release 2-D addressable
// textures, move bytes in and out of them, and run declared compute
// programs over them. Implementations live in subpackages (webgpu) and
// in the in-process Mock used by tests.
package device

// Layout is the GPU storage format of a texture.
type Layout int

const (
	// Unpacked stores one logical value per texel.
	Unpacked Layout = iota
	// Packed stores a 2x2 block of logical values per 4-channel texel.
	Packed
)

// String returns a human-readable layout name.
func (l Layout) String() string {
	switch l {
	case Unpacked:
		return "unpacked"
	case Packed:
		return "packed"
	default:
		return "unknown"
	}
}

// BytesPerTexel returns the physical size of one texel in the layout.
func (l Layout) BytesPerTexel() int {
	if l == Packed {
		return 16 // four 4-byte channels
	}
	return 4
}

// Texture is a GPU-addressable 2-D memory region. Instances are created
// by a Device and must be deleted through the same Device.
type Texture interface {
	// Dims returns the texture dimensions in texels.
	Dims() (width, height int)
	// Layout returns the storage format of the texture.
	Layout() Layout
	// ByteSize returns the physical footprint in bytes.
	ByteSize() int
}

// InputSpec declares what a program requires of one input operand.
type InputSpec struct {
	Layout Layout
	// AllowUniform permits the operand to be passed as an inline
	// uniform constant instead of a texture.
	AllowUniform bool
}

// OutputSpec declares the layout a program writes its result in.
type OutputSpec struct {
	Layout Layout
}

// Program is a compute kernel plus its declared storage requirements.
// The storage manager never inspects Source; it only honors the
// declared input and output specs when resolving operands.
type Program struct {
	Name   string
	Source string // WGSL
	// UniformSource, when set, is the variant compiled when an operand
	// arrives as an inline uniform instead of a texture.
	UniformSource string
	Inputs        []InputSpec
	Output        OutputSpec
}

// Binding is one resolved program operand: either a texture or an
// inline uniform payload, never both.
type Binding struct {
	Texture Texture
	Uniform []byte
}

// Device is the GPU abstraction consumed by the storage manager.
//
// All methods are safe for the single-threaded caller model of the
// storage core; ReadbackAsync may deliver its completion on another
// goroutine. ReadbackAsync must snapshot the texture contents at call
// time, so a texture released after the call returns cannot corrupt
// the pending result.
type Device interface {
	// MaxTextureSize returns the maximum texture width/height in texels.
	MaxTextureSize() int

	// CreateTexture allocates a texture. Allocation failure is an error,
	// never a silent downgrade.
	CreateTexture(width, height int, layout Layout) (Texture, error)

	// DeleteTexture frees a texture. The texture must not be used after.
	DeleteTexture(t Texture)

	// Upload copies len(data) bytes of host data into the texture,
	// starting at texel (0,0). Any remaining texels keep their previous
	// contents; recycled textures may expose stale bytes.
	Upload(t Texture, data []byte) error

	// Readback copies the first n bytes of the texture to host memory,
	// blocking until the device has drained.
	Readback(t Texture, n int) ([]byte, error)

	// ReadbackAsync snapshots the first n bytes of the texture at call
	// time and invokes done once the device signals completion. done
	// runs on another goroutine and must not be invoked before
	// ReadbackAsync returns.
	ReadbackAsync(t Texture, n int, done func(data []byte, err error))

	// Run executes a program over the bindings, writing into out.
	// params carries program-specific scalar arguments (dimensions,
	// element counts, immediate values as float bits).
	Run(prog *Program, inputs []Binding, out Texture, params []uint32) error
}
