package device

// Packed textures tile the logical (rows x cols) value grid into 2x2
// blocks, one block per 4-channel texel:
//
//	channel 0: (2y,   2x)    channel 1: (2y,   2x+1)
//	channel 2: (2y+1, 2x)    channel 3: (2y+1, 2x+1)
//
// Blocks that extend past the logical bounds are zero-padded on encode;
// decode ignores the padding.

// UnpackedDims returns the texture dimensions for an unpacked layout of
// a logical (rows x cols) grid: one value per texel.
func UnpackedDims(rows, cols int) (width, height int) {
	return cols, rows
}

// PackedDims returns the texture dimensions for a packed layout of a
// logical (rows x cols) grid: one 2x2 block per texel.
func PackedDims(rows, cols int) (width, height int) {
	return (cols + 1) / 2, (rows + 1) / 2
}

// Dims returns the texture dimensions for the layout.
func Dims(layout Layout, rows, cols int) (width, height int) {
	if layout == Packed {
		return PackedDims(rows, cols)
	}
	return UnpackedDims(rows, cols)
}

// EncodePacked reorders rows*cols logical words (row-major) into the
// packed block layout. The result holds PackedDims(rows, cols) texels
// of four words each, zero-padded at the edges.
func EncodePacked(words []uint32, rows, cols int) []uint32 {
	pw, ph := PackedDims(rows, cols)
	out := make([]uint32, pw*ph*4)
	for ty := 0; ty < ph; ty++ {
		for tx := 0; tx < pw; tx++ {
			base := (ty*pw + tx) * 4
			for ch := 0; ch < 4; ch++ {
				y := 2*ty + ch/2
				x := 2*tx + ch%2
				if y < rows && x < cols {
					out[base+ch] = words[y*cols+x]
				}
			}
		}
	}
	return out
}

// DecodePacked is the inverse of EncodePacked: it recovers the
// rows*cols logical words from packed texel data, dropping padding.
func DecodePacked(texels []uint32, rows, cols int) []uint32 {
	pw, _ := PackedDims(rows, cols)
	out := make([]uint32, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			ty, tx := y/2, x/2
			ch := (y%2)*2 + x%2
			out[y*cols+x] = texels[(ty*pw+tx)*4+ch]
		}
	}
	return out
}
