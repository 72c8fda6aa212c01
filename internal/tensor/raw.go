package tensor

import (
	"fmt"
	"unsafe"
)

// Raw is the host-side value container the storage manager pages in and
// out of GPU textures. It owns a flat byte payload plus shape and dtype
// metadata and has no knowledge of GPU residency.
type Raw struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewRaw creates a zero-filled Raw with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize := shape.NumElements() * dtype.Size()
	return &Raw{
		data:  make([]byte, byteSize),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromSlice creates a Raw holding a copy of values, with the element type
// inferred from T. The number of values must match the shape.
func FromSlice[T DType](shape Shape, values []T) (*Raw, error) {
	var dummy T
	dtype := inferDataType(dummy)

	r, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(values) != shape.NumElements() {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, shape.NumElements(), len(values))
	}

	dst := unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), len(values))
	copy(dst, values)
	return r, nil
}

// Shape returns the tensor's shape.
func (r *Raw) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *Raw) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *Raw) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the host payload size in bytes.
func (r *Raw) ByteSize() int {
	return len(r.data)
}

// Data returns the underlying byte payload.
func (r *Raw) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *Raw) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *Raw) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsBool interprets the data as []bool.
// Panics if the tensor's dtype is not Bool.
func (r *Raw) AsBool() []bool {
	if r.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", r.dtype))
	}
	return unsafe.Slice((*bool)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone returns a deep copy of the Raw.
func (r *Raw) Clone() *Raw {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &Raw{
		data:  data,
		shape: r.shape.Clone(),
		dtype: r.dtype,
	}
}
