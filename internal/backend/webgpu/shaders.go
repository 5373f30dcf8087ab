package webgpu

// WGSL compute kernels for the execution layer.
//
// Tensors reach kernels in the channel-packed texel layout: an
// array<vec4<f32>> of extent W*H*C4 where texel (x, y, z) holds channels
// 4z..4z+3 of pixel (x, y) and the linear texel index is (z*H + y)*W + x.
// Channel padding lanes are zero.
//
// Workgroup sizes are compile-time in WGSL; sources carry WG_X/WG_Y/WG_Z
// placeholders substituted at program build (see program.go). The binding
// order of each kernel is positional and registered once in the kernel table
// at the bottom of this file; the uniform Params struct of each kernel must
// match the const block its operator writes, field for field.

// packShader scatters a row-major linear buffer into the packed texel
// layout, zero-filling channel padding lanes.
const packShader = `
@group(0) @binding(0) var<storage, read_write> dst: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> src: array<f32>;

struct Params {
    w: i32,
    h: i32,
    c: i32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    let c4 = (params.c + 3) / 4;
    if (x >= params.w || y >= params.h || z >= c4) {
        return;
    }
    var v = vec4<f32>(0.0);
    for (var j = 0; j < 4; j = j + 1) {
        let c = 4 * z + j;
        if (c < params.c) {
            v[j] = src[(c * params.h + y) * params.w + x];
        }
    }
    dst[(z * params.h + y) * params.w + x] = v;
}
`

// unpackShader gathers the packed texel layout back into a row-major linear
// buffer. One invocation per logical element plane: z is the full channel
// index, not the channel group.
const unpackShader = `
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<storage, read> src: array<vec4<f32>>;

struct Params {
    w: i32,
    h: i32,
    c: i32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let c = i32(gid.z);
    if (x >= params.w || y >= params.h || c >= params.c) {
        return;
    }
    let texel = src[((c / 4) * params.h + y) * params.w + x];
    dst[(c * params.h + y) * params.w + x] = texel[c % 4];
}
`

// addShader computes output = input0 + alpha * input1 over identical 4-D
// shapes flattened to (C, H, W).
const addShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input0: array<vec4<f32>>;
@group(0) @binding(2) var<storage, read> input1: array<vec4<f32>>;

struct Params {
    w: i32,
    h: i32,
    c: i32,
    alpha: f32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    let c4 = (params.c + 3) / 4;
    if (x >= params.w || y >= params.h || z >= c4) {
        return;
    }
    let p = (z * params.h + y) * params.w + x;
    output[p] = input0[p] + params.alpha * input1[p];
}
`

// addScalarShader computes output = input + s.
const addScalarShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;

struct Params {
    w: i32,
    h: i32,
    c: i32,
    unused: i32,
    s: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    let c4 = (params.c + 3) / 4;
    if (x >= params.w || y >= params.h || z >= c4) {
        return;
    }
    let p = (z * params.h + y) * params.w + x;
    output[p] = input[p] + vec4<f32>(params.s);
}
`

// mulScalarShader computes output = input * s.
const mulScalarShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;

struct Params {
    w: i32,
    h: i32,
    c: i32,
    unused: i32,
    s: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    let c4 = (params.c + 3) / 4;
    if (x >= params.w || y >= params.h || z >= c4) {
        return;
    }
    let p = (z * params.h + y) * params.w + x;
    output[p] = input[p] * params.s;
}
`

// clampShader computes output = clamp(input, min, max).
const clampShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;

struct Params {
    w: i32,
    h: i32,
    c4: i32,
    c: i32,
    lo: f32,
    hi: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    if (x >= params.w || y >= params.h || z >= params.c4) {
        return;
    }
    let p = (z * params.h + y) * params.w + x;
    output[p] = clamp(input[p], vec4<f32>(params.lo), vec4<f32>(params.hi));
}
`

// maxPool2dShader computes a spatial max pool per channel group.
const maxPool2dShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;

struct Params {
    iw: i32,
    ih: i32,
    ic: i32,
    ipad: i32,
    ow: i32,
    oh: i32,
    oc: i32,
    opad: i32,
    kw: i32,
    kh: i32,
    sx: i32,
    sy: i32,
    px: i32,
    py: i32,
    dx: i32,
    dy: i32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    let c4 = (params.oc + 3) / 4;
    if (x >= params.ow || y >= params.oh || z >= c4) {
        return;
    }
    var acc = vec4<f32>(-3.402823e38);
    for (var ky = 0; ky < params.kh; ky = ky + 1) {
        let iy = y * params.sy - params.py + ky * params.dy;
        if (iy < 0 || iy >= params.ih) {
            continue;
        }
        for (var kx = 0; kx < params.kw; kx = kx + 1) {
            let ix = x * params.sx - params.px + kx * params.dx;
            if (ix < 0 || ix >= params.iw) {
                continue;
            }
            acc = max(acc, input[(z * params.ih + iy) * params.iw + ix]);
        }
    }
    output[(z * params.oh + y) * params.ow + x] = acc;
}
`

// adaptiveAvgPool2dShader averages the input region mapped onto each output
// pixel, matching adaptive pooling region boundaries.
const adaptiveAvgPool2dShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;

struct Params {
    iw: i32,
    ih: i32,
    ow: i32,
    oh: i32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    if (x >= params.ow || y >= params.oh) {
        return;
    }
    let x0 = (x * params.iw) / params.ow;
    let x1 = ((x + 1) * params.iw + params.ow - 1) / params.ow;
    let y0 = (y * params.ih) / params.oh;
    let y1 = ((y + 1) * params.ih + params.oh - 1) / params.oh;
    var acc = vec4<f32>(0.0);
    for (var iy = y0; iy < y1; iy = iy + 1) {
        for (var ix = x0; ix < x1; ix = ix + 1) {
            acc = acc + input[(z * params.ih + iy) * params.iw + ix];
        }
    }
    let count = f32((x1 - x0) * (y1 - y0));
    output[(z * params.oh + y) * params.ow + x] = acc / count;
}
`

// upsampleNearest2dShader scales the spatial plane by nearest-neighbor
// sampling: source = floor(dest * scale), clamped to the input extent.
const upsampleNearest2dShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;

struct Params {
    iw: i32,
    ih: i32,
    ow: i32,
    oh: i32,
    scaleX: f32,
    scaleY: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    if (x >= params.ow || y >= params.oh) {
        return;
    }
    let ix = min(i32(floor(f32(x) * params.scaleX)), params.iw - 1);
    let iy = min(i32(floor(f32(y) * params.scaleY)), params.ih - 1);
    output[(z * params.oh + y) * params.ow + x] =
        input[(z * params.ih + iy) * params.iw + ix];
}
`

// meanShader reduces the spatial plane of each channel group to its
// arithmetic mean; one invocation per channel group.
const meanShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;

struct Params {
    w: i32,
    h: i32,
    c: i32,
    n: i32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let z = i32(gid.z);
    let c4 = (params.n * params.c + 3) / 4;
    if (z >= c4) {
        return;
    }
    var acc = vec4<f32>(0.0);
    for (var y = 0; y < params.h; y = y + 1) {
        for (var x = 0; x < params.w; x = x + 1) {
            acc = acc + input[(z * params.h + y) * params.w + x];
        }
    }
    output[z] = acc / f32(params.w * params.h);
}
`

// mmShader computes output = alpha * (m1 @ m2) for 2-D operands. Rank-2
// tensors occupy a single channel group with only lane 0 populated.
const mmShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> m1: array<vec4<f32>>;
@group(0) @binding(2) var<storage, read> m2: array<vec4<f32>>;

struct Params {
    ow: i32,
    oh: i32,
    c4: i32,
    c: i32,
    beta: f32,
    alpha: f32,
    k: i32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    if (x >= params.ow || y >= params.oh) {
        return;
    }
    var sum = 0.0;
    for (var k = 0; k < params.k; k = k + 1) {
        sum = sum + m1[y * params.k + k].x * m2[k * params.ow + x].x;
    }
    output[y * params.ow + x] = vec4<f32>(params.alpha * sum, 0.0, 0.0, 0.0);
}
`

// addmmShader computes output = beta * t + alpha * (m1 @ m2).
const addmmShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> m1: array<vec4<f32>>;
@group(0) @binding(2) var<storage, read> m2: array<vec4<f32>>;

struct Params {
    ow: i32,
    oh: i32,
    c4: i32,
    c: i32,
    beta: f32,
    alpha: f32,
    k: i32,
}
@group(0) @binding(3) var<uniform> params: Params;
@group(0) @binding(4) var<storage, read> t: array<vec4<f32>>;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    if (x >= params.ow || y >= params.oh) {
        return;
    }
    var sum = 0.0;
    for (var k = 0; k < params.k; k = k + 1) {
        sum = sum + m1[y * params.k + k].x * m2[k * params.ow + x].x;
    }
    let p = y * params.ow + x;
    let v = params.alpha * sum + params.beta * t[p].x;
    output[p] = vec4<f32>(v, 0.0, 0.0, 0.0);
}
`

// conv2dShader is the general (groups == 1) convolution over prepacked
// weights, vectorized 4-wide along output width and fused with an output
// clamp. Weight texel index for (oc4, ic4, ky, kx, lane r):
// 4*(oc4*ic4Count*kh*kw + ic4*kh*kw + ky*kw + kx) + r, where lane r holds the
// contributions of input channel 4*ic4+r to output channels 4*oc4..4*oc4+3.
const conv2dShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;
@group(0) @binding(2) var<storage, read> weights: array<vec4<f32>>;
@group(0) @binding(3) var<storage, read> bias: array<f32>;

struct Params {
    px: i32,
    py: i32,
    kw: i32,
    kh: i32,
    sx: i32,
    sy: i32,
    dx: i32,
    dy: i32,
    ow: i32,
    oh: i32,
    oc4: i32,
    oc: i32,
    iw: i32,
    ih: i32,
    ic4: i32,
    ic: i32,
    outMin: f32,
    outMax: f32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let wx = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    if (wx * 4 >= params.ow || y >= params.oh || z >= params.oc4) {
        return;
    }
    let biasv = vec4<f32>(
        bias[4 * z], bias[4 * z + 1], bias[4 * z + 2], bias[4 * z + 3]);
    var acc: array<vec4<f32>, 4>;
    for (var i = 0; i < 4; i = i + 1) {
        acc[i] = biasv;
    }
    for (var ic4 = 0; ic4 < params.ic4; ic4 = ic4 + 1) {
        for (var ky = 0; ky < params.kh; ky = ky + 1) {
            let iy = y * params.sy - params.py + ky * params.dy;
            if (iy < 0 || iy >= params.ih) {
                continue;
            }
            for (var kx = 0; kx < params.kw; kx = kx + 1) {
                let wbase = 4 * (((z * params.ic4 + ic4) * params.kh + ky) * params.kw + kx);
                let w0 = weights[wbase];
                let w1 = weights[wbase + 1];
                let w2 = weights[wbase + 2];
                let w3 = weights[wbase + 3];
                for (var i = 0; i < 4; i = i + 1) {
                    let ox = wx * 4 + i;
                    if (ox >= params.ow) {
                        continue;
                    }
                    let ix = ox * params.sx - params.px + kx * params.dx;
                    if (ix < 0 || ix >= params.iw) {
                        continue;
                    }
                    let inv = input[(ic4 * params.ih + iy) * params.iw + ix];
                    acc[i] = acc[i] + inv.x * w0 + inv.y * w1 + inv.z * w2 + inv.w * w3;
                }
            }
        }
    }
    let lo = vec4<f32>(params.outMin);
    let hi = vec4<f32>(params.outMax);
    for (var i = 0; i < 4; i = i + 1) {
        let ox = wx * 4 + i;
        if (ox < params.ow) {
            output[(z * params.oh + y) * params.ow + ox] = clamp(acc[i], lo, hi);
        }
    }
}
`

// conv2dDWShader is the depthwise (groups == channels) convolution: each
// channel group convolves with its own kernel plane, fused output clamp.
// The weight tensor {OC, KH, KW} arrives in its ordinary packed layout.
const conv2dDWShader = `
@group(0) @binding(0) var<storage, read_write> output: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> input: array<vec4<f32>>;
@group(0) @binding(2) var<storage, read> weights: array<vec4<f32>>;
@group(0) @binding(3) var<storage, read> bias: array<f32>;

struct Params {
    px: i32,
    py: i32,
    kw: i32,
    kh: i32,
    sx: i32,
    sy: i32,
    dx: i32,
    dy: i32,
    ow: i32,
    oh: i32,
    oc4: i32,
    ocPad: i32,
    iw: i32,
    ih: i32,
    ic4: i32,
    icPad: i32,
    outMin: f32,
    outMax: f32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(WG_X, WG_Y, WG_Z)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let x = i32(gid.x);
    let y = i32(gid.y);
    let z = i32(gid.z);
    if (x >= params.ow || y >= params.oh || z >= params.oc4) {
        return;
    }
    var acc = vec4<f32>(
        bias[4 * z], bias[4 * z + 1], bias[4 * z + 2], bias[4 * z + 3]);
    for (var ky = 0; ky < params.kh; ky = ky + 1) {
        let iy = y * params.sy - params.py + ky * params.dy;
        if (iy < 0 || iy >= params.ih) {
            continue;
        }
        for (var kx = 0; kx < params.kw; kx = kx + 1) {
            let ix = x * params.sx - params.px + kx * params.dx;
            if (ix < 0 || ix >= params.iw) {
                continue;
            }
            let inv = input[(z * params.ih + iy) * params.iw + ix];
            let w = weights[(z * params.kh + ky) * params.kw + kx];
            acc = acc + inv * w;
        }
    }
    output[(z * params.oh + y) * params.ow + x] =
        clamp(acc, vec4<f32>(params.outMin), vec4<f32>(params.outMax));
}
`

// kernelSpec registers a kernel identity: its WGSL source and the positional
// binding contract every dispatch of it must satisfy.
type kernelSpec struct {
	source string
	roles  []bindingRole
}

// kernels is the kernel registry. Binding order is part of the contract:
// descriptor sets are built by position, never by name.
var kernels = map[string]kernelSpec{
	"nchw_to_nc4hw": {
		source: packShader,
		roles:  []bindingRole{roleStorageImage, roleStorageBuffer, roleUniform},
	},
	"nc4hw_to_nchw": {
		source: unpackShader,
		roles:  []bindingRole{roleStorageBuffer, roleSampledImage, roleUniform},
	},
	"add": {
		source: addShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleSampledImage, roleUniform},
	},
	"add_scalar": {
		source: addScalarShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleUniform},
	},
	"mul_scalar": {
		source: mulScalarShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleUniform},
	},
	"clamp": {
		source: clampShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleUniform},
	},
	"max_pool2d": {
		source: maxPool2dShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleUniform},
	},
	"adaptive_avg_pool2d": {
		source: adaptiveAvgPool2dShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleUniform},
	},
	"upsample_nearest2d": {
		source: upsampleNearest2dShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleUniform},
	},
	"mean": {
		source: meanShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleUniform},
	},
	"mm": {
		source: mmShader,
		roles:  []bindingRole{roleStorageImage, roleSampledImage, roleSampledImage, roleUniform},
	},
	"addmm": {
		source: addmmShader,
		roles: []bindingRole{
			roleStorageImage, roleSampledImage, roleSampledImage, roleUniform, roleSampledImage,
		},
	},
	"conv2d_nogroup_clamp": {
		source: conv2dShader,
		roles: []bindingRole{
			roleStorageImage, roleSampledImage, roleSampledImage, roleStorageBuffer, roleUniform,
		},
	},
	"conv2d_dw_clamp": {
		source: conv2dDWShader,
		roles: []bindingRole{
			roleStorageImage, roleSampledImage, roleSampledImage, roleStorageBuffer, roleUniform,
		},
	},
}
