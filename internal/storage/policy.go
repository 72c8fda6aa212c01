package storage

import (
	"unsafe"

	"github.com/texel-ml/texel/internal/device"
	"github.com/texel-ml/texel/internal/tensor"
)

// Layouts used throughout the package.
const (
	unpackedLayout = device.Unpacked
	packedLayout   = device.Packed
)

// uniformUploadThreshold is the element count below which a tensor is
// passed to a qualifying kernel as an inline uniform instead of being
// materialized as a texture. Shared by all callers so kernel selection
// stays predictable.
const uniformUploadThreshold = 4

// uniformEligible reports whether a tensor of n elements may skip
// texture materialization for kernels that accept uniform operands.
func uniformEligible(n int) bool {
	return n < uniformUploadThreshold
}

// texDims derives texture dimensions from a logical shape and layout.
func texDims(shape tensor.Shape, layout device.Layout) (width, height int) {
	rows, cols := shape.RowsCols()
	return device.Dims(layout, rows, cols)
}

// hostToWords widens a host payload to one 4-byte texel word per
// element. Float32 and Int32 payloads reinterpret in place; Bool is
// widened to 0/1 words.
func hostToWords(host []byte, dtype tensor.DataType, n int) []uint32 {
	if dtype != tensor.Bool {
		return wordsOf(host)[:n]
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		if host[i] != 0 {
			out[i] = 1
		}
	}
	return out
}

// wordsToHost is the inverse of hostToWords.
func wordsToHost(words []uint32, dtype tensor.DataType, n int) []byte {
	if dtype != tensor.Bool {
		out := make([]byte, n*4)
		copy(wordsOf(out), words[:n])
		return out
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if words[i] != 0 {
			out[i] = 1
		}
	}
	return out
}

// encodeForLayout produces the upload bytes for a host payload in the
// given texture layout.
func encodeForLayout(host []byte, dtype tensor.DataType, shape tensor.Shape, layout device.Layout) []byte {
	n := shape.NumElements()
	words := hostToWords(host, dtype, n)
	if layout == packedLayout {
		rows, cols := shape.RowsCols()
		words = device.EncodePacked(words, rows, cols)
	}
	out := make([]byte, len(words)*4)
	copy(wordsOf(out), words)
	return out
}

// decodeFromLayout recovers the logical host payload from drained
// texture bytes.
func decodeFromLayout(data []byte, dtype tensor.DataType, shape tensor.Shape, layout device.Layout) []byte {
	n := shape.NumElements()
	words := wordsOf(data)
	if layout == packedLayout {
		rows, cols := shape.RowsCols()
		words = device.DecodePacked(words, rows, cols)
	}
	return wordsToHost(words, dtype, n)
}

// wordsOf views a byte slice as 4-byte words.
func wordsOf(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}
