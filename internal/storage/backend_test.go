package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texel-ml/texel/internal/device"
	"github.com/texel-ml/texel/internal/tensor"
)

func newFloat(t *testing.T, shape tensor.Shape, values []float32) *tensor.Raw {
	t.Helper()
	v, err := tensor.FromSlice(shape, values)
	require.NoError(t, err)
	return v
}

func TestDelayedLifecycle(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)
	require.Equal(t, DelayedStorage, b.Mode())

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, err)

	// Delayed storage: nothing on the GPU until a kernel needs it.
	info := b.MemoryInfo()
	assert.Equal(t, 0, info.GPUBuffers)
	assert.Equal(t, 16, info.HostBytes)

	_, err = b.GetTexture(h)
	require.NoError(t, err)
	info = b.MemoryInfo()
	assert.Equal(t, 1, info.GPUBuffers)
	assert.Equal(t, 16, info.GPUBytes)
	assert.Equal(t, 0, info.HostBytes)

	// Draining pages the value back and releases the texture.
	got, err := b.ReadSync(h)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got.AsFloat32())
	info = b.MemoryInfo()
	assert.Equal(t, 0, info.GPUBuffers)
	assert.Equal(t, 16, info.HostBytes)
}

func TestImmediateLifecycle(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev, WithImmediateStorage())
	require.Equal(t, ImmediateStorage, b.Mode())

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, err)

	// Immediate storage: resident at write time.
	info := b.MemoryInfo()
	assert.Equal(t, 1, info.GPUBuffers)
	assert.Equal(t, 16, info.GPUBytes)

	// Reads do not evict; the texture stays until disposal.
	got, err := b.ReadSync(h)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got.AsFloat32())
	assert.Equal(t, 1, b.MemoryInfo().GPUBuffers)

	// Repeated reads serve the cached drain.
	got, err = b.ReadSync(h)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got.AsFloat32())

	require.NoError(t, b.Dispose(h))
	assert.Equal(t, 0, b.MemoryInfo().GPUBuffers)
}

func TestOverwriteReleasesTextureSynchronously(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, err)
	_, err = b.GetTexture(h)
	require.NoError(t, err)
	require.Equal(t, 1, b.MemoryInfo().GPUBuffers)

	require.NoError(t, b.Write(h, newFloat(t, tensor.Shape{2, 2}, []float32{5, 6, 7, 8})))
	assert.Equal(t, 0, b.MemoryInfo().GPUBuffers)

	got, err := b.ReadSync(h)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 7, 8}, got.AsFloat32())
}

func TestWriteValidation(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.Create(tensor.Shape{2, 2}, tensor.Float32)
	require.NoError(t, err)

	err = b.Write(h, newFloat(t, tensor.Shape{4}, []float32{1, 2, 3, 4}))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	ints, err := tensor.FromSlice(tensor.Shape{2, 2}, []int32{1, 2, 3, 4})
	require.NoError(t, err)
	err = b.Write(h, ints)
	assert.ErrorIs(t, err, ErrDTypeMismatch)
}

func TestReadEmptyEntry(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.Create(tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)

	_, err = b.ReadSync(h)
	assert.ErrorIs(t, err, ErrNoData)

	res := <-b.Read(h)
	assert.ErrorIs(t, res.Err, ErrNoData)
}

func TestDisposeTwice(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2}, []float32{1, 2}))
	require.NoError(t, err)
	require.NoError(t, b.Dispose(h))
	assert.ErrorIs(t, b.Dispose(h), ErrDisposed)

	_, err = b.ReadSync(h)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestDisposeAllClearsDevice(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	for i := 0; i < 3; i++ {
		h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
		require.NoError(t, err)
		_, err = b.GetTexture(h)
		require.NoError(t, err)
	}
	require.Equal(t, 3, b.MemoryInfo().GPUBuffers)

	b.DisposeAll()

	info := b.MemoryInfo()
	assert.Equal(t, 0, info.Tensors)
	assert.Equal(t, 0, info.GPUBuffers)
	assert.Equal(t, 0, info.HostBytes)
	count, bytes := dev.LiveTextures()
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, bytes)
}

func TestRoundTripDataTypes(t *testing.T) {
	for _, mode := range []Option{nil, WithImmediateStorage()} {
		var opts []Option
		if mode != nil {
			opts = append(opts, mode)
		}
		dev := device.NewMock(4096)
		b := New(dev, opts...)

		fv, err := tensor.FromSlice(tensor.Shape{2, 3}, []float32{1.5, -2, 0, 4.25, 5, -6})
		require.NoError(t, err)
		iv, err := tensor.FromSlice(tensor.Shape{5}, []int32{1, -2, 3, math.MaxInt32, math.MinInt32})
		require.NoError(t, err)
		bv, err := tensor.FromSlice(tensor.Shape{6}, []bool{true, false, true, true, false, true})
		require.NoError(t, err)

		for _, v := range []*tensor.Raw{fv, iv, bv} {
			h, err := b.WriteNew(v)
			require.NoError(t, err)
			// Force a GPU round trip rather than the host fast path.
			_, err = b.GetTexture(h)
			require.NoError(t, err)

			got, err := b.ReadSync(h)
			require.NoError(t, err)
			assert.Equal(t, v.Data(), got.Data(), "mode %v dtype %v", b.Mode(), v.DType())
			assert.True(t, got.Shape().Equal(v.Shape()))
		}
	}
}

func TestUniformThresholdBoundary(t *testing.T) {
	// Three elements: below the threshold, the operand rides along as an
	// inline uniform and only the result occupies the GPU.
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{3}, []float32{1, 2, 3}))
	require.NoError(t, err)

	out, err := b.Run(SquareProgram, []Handle{h}, tensor.Shape{3}, tensor.Float32, []uint32{1, 3})
	require.NoError(t, err)

	info := b.MemoryInfo()
	assert.Equal(t, 1, info.GPUBuffers)
	assert.Equal(t, 32, info.GPUBytes)

	got, err := b.ReadSync(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 9}, got.AsFloat32())

	// Five elements: at or above the threshold, the operand is
	// materialized as a texture alongside the result.
	dev = device.NewMock(4096)
	b = New(dev)

	h, err = b.WriteNew(newFloat(t, tensor.Shape{5}, []float32{1, 2, 3, 4, 5}))
	require.NoError(t, err)

	out, err = b.Run(SquareProgram, []Handle{h}, tensor.Shape{5}, tensor.Float32, []uint32{1, 5})
	require.NoError(t, err)

	info = b.MemoryInfo()
	assert.Equal(t, 2, info.GPUBuffers)
	assert.Equal(t, 96, info.GPUBytes)

	got, err = b.ReadSync(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 9, 16, 25}, got.AsFloat32())
}

func TestMatMulThenAddScalar(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	a, err := b.WriteNew(newFloat(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)
	bb, err := b.WriteNew(newFloat(t, tensor.Shape{3, 2}, []float32{0, 1, -3, 2, 2, 1}))
	require.NoError(t, err)

	c, err := b.Run(MatMulProgram, []Handle{a, bb}, tensor.Shape{2, 2}, tensor.Float32, []uint32{2, 3, 2})
	require.NoError(t, err)

	// A and B unpacked (24 bytes each) plus the packed product block.
	info := b.MemoryInfo()
	assert.Equal(t, 3, info.GPUBuffers)
	assert.Equal(t, 64, info.GPUBytes)

	// The product is already packed, so adding a scalar costs exactly
	// one more texture: no conversions, no extra staging.
	d, err := b.Run(AddScalarProgram, []Handle{c}, tensor.Shape{2, 2}, tensor.Float32,
		[]uint32{2, 2, math.Float32bits(1)})
	require.NoError(t, err)

	info = b.MemoryInfo()
	assert.Equal(t, 4, info.GPUBuffers)
	assert.Equal(t, 80, info.GPUBytes)

	got, err := b.ReadSync(c)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 8, -3, 20}, got.AsFloat32())

	got, err = b.ReadSync(d)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 9, -2, 21}, got.AsFloat32())
}

func TestRunInputCountMismatch(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, err)

	_, err = b.Run(MatMulProgram, []Handle{h}, tensor.Shape{2, 2}, tensor.Float32, []uint32{2, 2, 2})
	assert.ErrorIs(t, err, ErrInputCount)
}

func TestSurfaceBudgetTrimsAfterDrain(t *testing.T) {
	dev := device.NewMock(4096)
	// A 1x1 surface leaves essentially no parking budget, yet a large
	// tensor must still materialize and drain correctly.
	b := New(dev, WithSurfaceBudget(1, 1))

	values := make([]float32, 100*100)
	for i := range values {
		values[i] = float32(i)
	}
	h, err := b.WriteNew(newFloat(t, tensor.Shape{100, 100}, values))
	require.NoError(t, err)

	_, err = b.GetTexture(h)
	require.NoError(t, err)
	assert.Equal(t, 40000, b.MemoryInfo().GPUBytes)

	got, err := b.ReadSync(h)
	require.NoError(t, err)
	assert.Equal(t, values, got.AsFloat32())

	// Drained and over budget: the texture is freed, not parked.
	assert.Equal(t, 0, b.MemoryInfo().GPUBuffers)
	count, bytes := dev.LiveTextures()
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, bytes)
}

func TestAsyncReadSurvivesOverwrite(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, err)
	_, err = b.GetTexture(h)
	require.NoError(t, err)

	ch := b.Read(h)
	require.NoError(t, b.Write(h, newFloat(t, tensor.Shape{2, 2}, []float32{5, 6, 7, 8})))

	// The pending read delivers the snapshot taken before the overwrite.
	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, []float32{1, 2, 3, 4}, res.Value.AsFloat32())

	// The slot holds the new value, untouched by the stale completion.
	got, err := b.ReadSync(h)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 7, 8}, got.AsFloat32())
}

func TestAsyncReadSurvivesDispose(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2}, []float32{7, 8}))
	require.NoError(t, err)
	_, err = b.GetTexture(h)
	require.NoError(t, err)

	ch := b.Read(h)
	require.NoError(t, b.Dispose(h))

	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, []float32{7, 8}, res.Value.AsFloat32())
	assert.Equal(t, 0, b.MemoryInfo().Tensors)
}

func TestAsyncReadHostFastPath(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{3}, []float32{1, 2, 3}))
	require.NoError(t, err)

	res := <-b.Read(h)
	require.NoError(t, res.Err)
	assert.Equal(t, []float32{1, 2, 3}, res.Value.AsFloat32())
	assert.Equal(t, 0, b.MemoryInfo().GPUBuffers)
}

func TestAllocFailureLeavesEntryIntact(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, err)
	before := b.MemoryInfo()

	dev.SetAllocError(assert.AnError)
	_, err = b.GetTexture(h)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, before, b.MemoryInfo())

	// The value is still readable from host, and materialization
	// succeeds once the device recovers.
	dev.SetAllocError(nil)
	got, err := b.ReadSync(h)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got.AsFloat32())

	_, err = b.GetTexture(h)
	require.NoError(t, err)
	assert.Equal(t, 1, b.MemoryInfo().GPUBuffers)
}

func TestGetTextureIdempotent(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, err)

	ref1, err := b.GetTexture(h)
	require.NoError(t, err)
	ref2, err := b.GetTexture(h)
	require.NoError(t, err)
	assert.Same(t, ref1, ref2)
	assert.Equal(t, 1, b.MemoryInfo().GPUBuffers)
}

func TestHandleErrorReporting(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	h, err := b.WriteNew(newFloat(t, tensor.Shape{2}, []float32{1, 2}))
	require.NoError(t, err)
	require.NoError(t, b.Dispose(h))

	_, err = b.ReadSync(h)
	var herr *HandleError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "readSync", herr.Op)
	assert.ErrorIs(t, herr, ErrDisposed)
}

func TestPoolReuseAcrossTensors(t *testing.T) {
	dev := device.NewMock(4096)
	b := New(dev)

	// Same shape through a full delayed cycle twice: the second
	// materialization recycles the drained texture.
	for i := 0; i < 2; i++ {
		h, err := b.WriteNew(newFloat(t, tensor.Shape{4, 4}, make([]float32, 16)))
		require.NoError(t, err)
		_, err = b.GetTexture(h)
		require.NoError(t, err)
		_, err = b.ReadSync(h)
		require.NoError(t, err)
		require.NoError(t, b.Dispose(h))
	}

	st := b.PoolStats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}
