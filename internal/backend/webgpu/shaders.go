//go:build windows

package webgpu

const (
	workgroupSize = 256
	matmulTile    = 16
)

const elementwiseHeader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;
`

const addShader = elementwiseHeader + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= params.size) { return; }
    result[i] = a[i] + b[i];
}
`

const subShader = elementwiseHeader + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= params.size) { return; }
    result[i] = a[i] - b[i];
}
`

const mulShader = elementwiseHeader + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= params.size) { return; }
    result[i] = a[i] * b[i];
}
`

const unaryHeader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;
`

const sigmoidShader = unaryHeader + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= params.size) { return; }
    result[i] = 1.0 / (1.0 + exp(-input[i]));
}
`

// tanh is written through exp of a clamped argument; large |x| saturates
// to +-1 instead of overflowing.
const tanhShader = unaryHeader + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= params.size) { return; }
    let x = clamp(input[i], -15.0, 15.0);
    let e = exp(2.0 * x);
    result[i] = (e - 1.0) / (e + 1.0);
}
`

// matmulShader computes C = A @ B for row-major A [M, K] and B [K, N].
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,
    K: u32,
    N: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let row = id.y;
    let col = id.x;
    if (row >= params.M || col >= params.N) { return; }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[row * params.K + k] * b[k * params.N + col];
    }
    result[row * params.N + col] = sum;
}
`
