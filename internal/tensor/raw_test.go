package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaw(t *testing.T) {
	r, err := NewRaw(Shape{2, 3}, Float32)
	require.NoError(t, err)
	assert.Equal(t, 24, r.ByteSize())
	assert.Equal(t, 6, r.NumElements())
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 0}, r.AsFloat32())

	_, err = NewRaw(Shape{0}, Float32)
	assert.Error(t, err)
}

func TestFromSlice(t *testing.T) {
	f, err := FromSlice(Shape{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Float32, f.DType())
	assert.Equal(t, []float32{1, 2, 3, 4}, f.AsFloat32())

	i, err := FromSlice(Shape{3}, []int32{-1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, Int32, i.DType())
	assert.Equal(t, []int32{-1, 0, 1}, i.AsInt32())

	b, err := FromSlice(Shape{2}, []bool{true, false})
	require.NoError(t, err)
	assert.Equal(t, Bool, b.DType())
	assert.Equal(t, 2, b.ByteSize())
	assert.Equal(t, []bool{true, false}, b.AsBool())

	_, err = FromSlice(Shape{2}, []float32{1})
	assert.Error(t, err)
}

func TestFromSliceCopies(t *testing.T) {
	src := []float32{1, 2}
	r, err := FromSlice(Shape{2}, src)
	require.NoError(t, err)
	src[0] = 99
	assert.Equal(t, float32(1), r.AsFloat32()[0])
}

func TestRawClone(t *testing.T) {
	r, err := FromSlice(Shape{2}, []float32{1, 2})
	require.NoError(t, err)
	c := r.Clone()
	c.AsFloat32()[0] = 5
	assert.Equal(t, float32(1), r.AsFloat32()[0])
	assert.True(t, c.Shape().Equal(r.Shape()))
}

func TestAsTypePanicsOnMismatch(t *testing.T) {
	r, err := NewRaw(Shape{1}, Float32)
	require.NoError(t, err)
	assert.Panics(t, func() { r.AsInt32() })
	assert.Panics(t, func() { r.AsBool() })
}

func TestDataTypeSize(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 4, Int32.Size())
	assert.Equal(t, 1, Bool.Size())
}
