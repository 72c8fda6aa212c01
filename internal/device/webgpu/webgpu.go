// Package webgpu implements the texture device contract over WebGPU
// storage buffers. Uses go-webgpu (github.com/go-webgpu/webgpu) for
// zero-CGO WebGPU bindings.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/gogpu/gputypes"

	"github.com/texel-ml/texel/internal/device"
)

// workgroupSize is the number of threads per workgroup in every
// program source.
const workgroupSize = 256

// maxTextureDim is the conservative per-dimension texel limit.
const maxTextureDim = 8192

// texture is a 2-D addressable region backed by a storage buffer.
type texture struct {
	buf    *wgpu.Buffer
	width  int
	height int
	layout device.Layout
}

// Dims returns the texture dimensions in texels.
func (t *texture) Dims() (int, int) { return t.width, t.height }

// Layout returns the storage format of the texture.
func (t *texture) Layout() device.Layout { return t.layout }

// ByteSize returns the physical footprint in bytes.
func (t *texture) ByteSize() int {
	return t.width * t.height * t.layout.BytesPerTexel()
}

// Device implements the texture device contract on WebGPU.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	adapterInfo *wgpu.AdapterInfoGo
}

var _ device.Device = (*Device)(nil)

// New creates a WebGPU device.
// Returns an error if WebGPU is not available or initialization fails.
func New() (d *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instErr := wgpu.CreateInstance(nil)
	if instErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	adapterInfo, _ := adapter.GetInfo()

	dev, devErr := adapter.RequestDevice(nil)
	if devErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", devErr)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Device{
		instance:    instance,
		adapter:     adapter,
		dev:         dev,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: adapterInfo,
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, instErr := wgpu.CreateInstance(nil)
	if instErr != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name returns the adapter's name.
func (d *Device) Name() string {
	if d.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", d.adapterInfo.Device, d.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// MaxTextureSize returns the maximum texture width/height in texels.
func (d *Device) MaxTextureSize() int {
	return maxTextureDim
}

// CreateTexture allocates a storage buffer covering width*height texels.
func (d *Device) CreateTexture(width, height int, layout device.Layout) (device.Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("webgpu: invalid texture dims %dx%d", width, height)
	}
	if width > maxTextureDim || height > maxTextureDim {
		return nil, fmt.Errorf("webgpu: texture %dx%d exceeds max size %d", width, height, maxTextureDim)
	}

	size := uint64(width) * uint64(height) * uint64(layout.BytesPerTexel())
	buf := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsage(gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst),
		Size:  size,
	})
	if buf == nil {
		return nil, fmt.Errorf("webgpu: buffer allocation of %d bytes failed", size)
	}
	return &texture{buf: buf, width: width, height: height, layout: layout}, nil
}

// DeleteTexture frees the backing buffer.
func (d *Device) DeleteTexture(t device.Texture) {
	gt := t.(*texture)
	if gt.buf != nil {
		gt.buf.Release()
		gt.buf = nil
	}
}

// Upload copies host data into the texture via a mapped staging buffer.
func (d *Device) Upload(t device.Texture, data []byte) error {
	gt := t.(*texture)
	if len(data) == 0 {
		return nil
	}
	if len(data) > gt.ByteSize() {
		return fmt.Errorf("webgpu: upload of %d bytes into %d-byte texture", len(data), gt.ByteSize())
	}

	staging := d.createBuffer(data, wgpu.BufferUsage(gputypes.BufferUsageCopySrc))
	defer staging.Release()

	encoder := d.dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, gt.buf, 0, uint64(len(data)))
	cmdBuffer := encoder.Finish(nil)
	d.queue.Submit(cmdBuffer)
	return nil
}

// Readback copies the first n bytes of the texture to host memory,
// blocking until the map resolves.
func (d *Device) Readback(t device.Texture, n int) ([]byte, error) {
	gt := t.(*texture)
	staging, err := d.copyToStaging(gt, n)
	if err != nil {
		return nil, err
	}
	defer staging.Release()
	return d.mapAndCopy(staging, uint64(n))
}

// ReadbackAsync snapshots the texture into a staging buffer at call
// time and resolves the map on a separate goroutine.
func (d *Device) ReadbackAsync(t device.Texture, n int, done func([]byte, error)) {
	gt := t.(*texture)
	staging, err := d.copyToStaging(gt, n)
	if err != nil {
		go done(nil, err)
		return
	}
	go func() {
		defer staging.Release()
		data, merr := d.mapAndCopy(staging, uint64(n))
		done(data, merr)
	}()
}

// copyToStaging enqueues a copy of the texture prefix into a fresh
// MAP_READ staging buffer.
func (d *Device) copyToStaging(gt *texture, n int) (*wgpu.Buffer, error) {
	if n > gt.ByteSize() {
		return nil, fmt.Errorf("webgpu: readback of %d bytes from %d-byte texture", n, gt.ByteSize())
	}
	size := uint64(n)
	staging := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsage(gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst),
		Size:  size,
	})

	encoder := d.dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(gt.buf, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	d.queue.Submit(cmdBuffer)
	return staging, nil
}

// mapAndCopy maps a staging buffer for reading and copies it out.
func (d *Device) mapAndCopy(staging *wgpu.Buffer, size uint64) ([]byte, error) {
	if err := staging.MapAsync(d.dev, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()
	return result, nil
}

// Run dispatches one program invocation per output texel.
func (d *Device) Run(prog *device.Program, inputs []device.Binding, out device.Texture, params []uint32) error {
	if len(inputs) != len(prog.Inputs) {
		return fmt.Errorf("webgpu: program %s wants %d inputs, got %d", prog.Name, len(prog.Inputs), len(inputs))
	}

	source, variant := prog.Source, ""
	for _, in := range inputs {
		if in.Texture == nil {
			if prog.UniformSource == "" {
				return fmt.Errorf("webgpu: program %s has no uniform variant", prog.Name)
			}
			source, variant = prog.UniformSource, "+uniform"
			break
		}
	}

	shader := d.compileShader(prog.Name+variant, source)
	pipeline := d.getOrCreatePipeline(prog.Name+variant, shader)

	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+2)
	var scratch []*wgpu.Buffer
	defer func() {
		for _, buf := range scratch {
			buf.Release()
		}
	}()

	for i, in := range inputs {
		if in.Texture != nil {
			gt := in.Texture.(*texture)
			entries = append(entries, wgpu.BufferBindingEntry(uint32(i), gt.buf, 0, uint64(gt.ByteSize())))
			continue
		}
		buf := d.createUniformBuffer(in.Uniform)
		scratch = append(scratch, buf)
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, alignTo16(len(in.Uniform))))
	}

	outTex := out.(*texture)
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(inputs)), outTex.buf, 0, uint64(outTex.ByteSize())))

	paramBytes := make([]byte, len(params)*4)
	for i, p := range params {
		binary.LittleEndian.PutUint32(paramBytes[i*4:], p)
	}
	paramsBuf := d.createUniformBuffer(paramBytes)
	scratch = append(scratch, paramsBuf)
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(inputs)+1), paramsBuf, 0, alignTo16(len(paramBytes))))

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := d.dev.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := d.dev.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	invocations := outTex.width * outTex.height
	workgroups := uint32((invocations + workgroupSize - 1) / workgroupSize)
	computePass.DispatchWorkgroups(workgroups, 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	d.queue.Submit(cmdBuffer)
	return nil
}

// Release releases all WebGPU resources.
// Must be called when the device is no longer needed.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.pipelines {
		p.Release()
	}
	d.pipelines = nil

	for _, s := range d.shaders {
		s.Release()
	}
	d.shaders = nil

	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.dev != nil {
		d.dev.Release()
		d.dev = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached by name.
func (d *Device) compileShader(name, code string) *wgpu.ShaderModule {
	d.mu.RLock()
	if shader, exists := d.shaders[name]; exists {
		d.mu.RUnlock()
		return shader
	}
	d.mu.RUnlock()

	shader := d.dev.CreateShaderModuleWGSL(code)

	d.mu.Lock()
	d.shaders[name] = shader
	d.mu.Unlock()
	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates one.
func (d *Device) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	d.mu.RLock()
	if pipeline, exists := d.pipelines[name]; exists {
		d.mu.RUnlock()
		return pipeline
	}
	d.mu.RUnlock()

	pipeline := d.dev.CreateComputePipelineSimple(nil, shader, "main")

	d.mu.Lock()
	d.pipelines[name] = pipeline
	d.mu.Unlock()
	return pipeline
}

// createBuffer creates a GPU buffer pre-filled with data.
func (d *Device) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// createUniformBuffer creates a 16-byte aligned uniform buffer.
func (d *Device) createUniformBuffer(data []byte) *wgpu.Buffer {
	alignedSize := alignTo16(len(data))
	buffer := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsage(gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst),
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// alignTo16 rounds up to a 16-byte boundary.
func alignTo16(n int) uint64 {
	return (uint64(n) + 15) &^ 15
}
