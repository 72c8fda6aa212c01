package storage

import "github.com/texel-ml/texel/internal/device"

// WGSL sources for the layout-conversion kernels and the built-in
// reference programs. Using string constants instead of embed for
// simplicity. Binding order is inputs first, then the output, then the
// params uniform.

// packShader reorders an unpacked texture into 2x2 blocks, one vec4
// texel per invocation.
const packShader = `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<vec4<f32>>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

fn fetch(y: u32, x: u32) -> f32 {
    if (y < params.rows && x < params.cols) {
        return src[y * params.cols + x];
    }
    return 0.0;
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let pw = (params.cols + 1u) / 2u;
    let ph = (params.rows + 1u) / 2u;
    let t = gid.x;
    if (t >= pw * ph) {
        return;
    }
    let ty = t / pw;
    let tx = t % pw;
    dst[t] = vec4<f32>(
        fetch(2u * ty,      2u * tx),
        fetch(2u * ty,      2u * tx + 1u),
        fetch(2u * ty + 1u, 2u * tx),
        fetch(2u * ty + 1u, 2u * tx + 1u),
    );
}
`

// unpackShader scatters packed 2x2 blocks back into one value per
// texel, one logical value per invocation.
const unpackShader = `
@group(0) @binding(0) var<storage, read> src: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= params.rows * params.cols) {
        return;
    }
    let y = i / params.cols;
    let x = i % params.cols;
    let pw = (params.cols + 1u) / 2u;
    let texel = src[(y / 2u) * pw + x / 2u];
    let ch = (y % 2u) * 2u + x % 2u;
    dst[i] = texel[ch];
}
`

// squareShader squares a packed texture texel-wise.
const squareShader = `
@group(0) @binding(0) var<storage, read> src: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read_write> dst: array<vec4<f32>>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let t = gid.x;
    let pw = (params.cols + 1u) / 2u;
    let ph = (params.rows + 1u) / 2u;
    if (t < pw * ph) {
        let v = src[t];
        dst[t] = v * v;
    }
}
`

// squareUniformShader is the variant dispatched when the operand is an
// inline uniform (fewer than uniformUploadThreshold elements).
const squareUniformShader = `
@group(0) @binding(0) var<uniform> src: vec4<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<vec4<f32>>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let t = gid.x;
    let pw = (params.cols + 1u) / 2u;
    let ph = (params.rows + 1u) / 2u;
    if (t < pw * ph) {
        let v = src;
        dst[t] = v * v;
    }
}
`

// addScalarShader adds an immediate scalar to a packed texture.
const addScalarShader = `
@group(0) @binding(0) var<storage, read> src: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read_write> dst: array<vec4<f32>>;

struct Params {
    rows: u32,
    cols: u32,
    scalar: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let t = gid.x;
    let pw = (params.cols + 1u) / 2u;
    let ph = (params.rows + 1u) / 2u;
    if (t < pw * ph) {
        dst[t] = src[t] + vec4<f32>(params.scalar);
    }
}
`

const addScalarUniformShader = `
@group(0) @binding(0) var<uniform> src: vec4<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<vec4<f32>>;

struct Params {
    rows: u32,
    cols: u32,
    scalar: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let t = gid.x;
    let pw = (params.cols + 1u) / 2u;
    let ph = (params.rows + 1u) / 2u;
    if (t < pw * ph) {
        dst[t] = src + vec4<f32>(params.scalar);
    }
}
`

// matMulShader multiplies two unpacked matrices and writes the result
// as packed 2x2 blocks, one output texel per invocation.
const matMulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> dst: array<vec4<f32>>;

struct Params {
    m: u32,
    k: u32,
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

fn cell(y: u32, x: u32) -> f32 {
    if (y >= params.m || x >= params.n) {
        return 0.0;
    }
    var sum = 0.0;
    for (var i = 0u; i < params.k; i = i + 1u) {
        sum = sum + a[y * params.k + i] * b[i * params.n + x];
    }
    return sum;
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let pw = (params.n + 1u) / 2u;
    let ph = (params.m + 1u) / 2u;
    let t = gid.x;
    if (t >= pw * ph) {
        return;
    }
    let ty = t / pw;
    let tx = t % pw;
    dst[t] = vec4<f32>(
        cell(2u * ty,      2u * tx),
        cell(2u * ty,      2u * tx + 1u),
        cell(2u * ty + 1u, 2u * tx),
        cell(2u * ty + 1u, 2u * tx + 1u),
    );
}
`

// progPack and progUnpack are the translator's conversion kernels.
var progPack = &device.Program{
	Name:   device.OpPack,
	Source: packShader,
	Inputs: []device.InputSpec{{Layout: unpackedLayout}},
	Output: device.OutputSpec{Layout: packedLayout},
}

var progUnpack = &device.Program{
	Name:   device.OpUnpack,
	Source: unpackShader,
	Inputs: []device.InputSpec{{Layout: packedLayout}},
	Output: device.OutputSpec{Layout: unpackedLayout},
}

// SquareProgram squares a tensor elementwise. Small operands may be
// passed as inline uniforms.
var SquareProgram = &device.Program{
	Name:          device.OpSquare,
	Source:        squareShader,
	UniformSource: squareUniformShader,
	Inputs:        []device.InputSpec{{Layout: packedLayout, AllowUniform: true}},
	Output:        device.OutputSpec{Layout: packedLayout},
}

// AddScalarProgram adds an immediate scalar, carried in params as float
// bits, to a tensor elementwise.
var AddScalarProgram = &device.Program{
	Name:          device.OpAddScalar,
	Source:        addScalarShader,
	UniformSource: addScalarUniformShader,
	Inputs:        []device.InputSpec{{Layout: packedLayout, AllowUniform: true}},
	Output:        device.OutputSpec{Layout: packedLayout},
}

// MatMulProgram multiplies two matrices. Inputs must be unpacked; the
// result is produced packed.
var MatMulProgram = &device.Program{
	Name:   device.OpMatMul,
	Source: matMulShader,
	Inputs: []device.InputSpec{{Layout: unpackedLayout}, {Layout: unpackedLayout}},
	Output: device.OutputSpec{Layout: packedLayout},
}
