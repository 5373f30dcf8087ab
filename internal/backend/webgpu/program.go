package webgpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-webgpu/webgpu/wgpu"
)

// WorkgroupSize is the compile-time thread count of a kernel workgroup.
// WGSL fixes it at shader-compile time, so it is part of the program cache
// key: the same kernel identity compiled for two workgroup shapes yields two
// distinct programs.
type WorkgroupSize struct {
	X, Y, Z uint32
}

// programKey identifies a compiled kernel program in the backend cache.
type programKey struct {
	name string
	wg   WorkgroupSize
}

// program is a compiled compute kernel together with its registered binding
// contract. The role list is validated once here, at registration time; per
// dispatch the descriptor set is checked against it by position.
type program struct {
	name     string
	spec     kernelSpec
	wg       WorkgroupSize
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

func (p *program) release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.shader != nil {
		p.shader.Release()
		p.shader = nil
	}
}

// program returns the cached compiled kernel for (name, workgroup shape),
// compiling it on first use. Lookup-or-insert is mutex-guarded: concurrent
// operator calls racing on the same kernel compile it exactly once.
func (b *Backend) program(name string, wg WorkgroupSize) *program {
	key := programKey{name: name, wg: wg}

	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.programs[key]; ok {
		return p
	}

	spec, ok := kernels[name]
	if !ok {
		panic("webgpu: unknown kernel " + name)
	}

	code := instantiateWorkgroup(spec.source, wg)
	shader := b.device.CreateShaderModuleWGSL(code)
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	p := &program{name: name, spec: spec, wg: wg, shader: shader, pipeline: pipeline}
	b.programs[key] = p
	return p
}

// instantiateWorkgroup substitutes the WG_X/WG_Y/WG_Z placeholders of a
// kernel source with a concrete workgroup shape.
func instantiateWorkgroup(source string, wg WorkgroupSize) string {
	if wg.X == 0 || wg.Y == 0 || wg.Z == 0 {
		panic(fmt.Sprintf("webgpu: invalid workgroup size %+v", wg))
	}
	r := strings.NewReplacer(
		"WG_X", strconv.FormatUint(uint64(wg.X), 10),
		"WG_Y", strconv.FormatUint(uint64(wg.Y), 10),
		"WG_Z", strconv.FormatUint(uint64(wg.Z), 10),
	)
	return r.Replace(source)
}

// groupsFor returns the dispatch grid covering domain (x, y, z) with this
// program's workgroup shape: ceil-division per axis.
func (p *program) groupsFor(x, y, z int) (uint32, uint32, uint32) {
	gx := (uint32(x) + p.wg.X - 1) / p.wg.X
	gy := (uint32(y) + p.wg.Y - 1) / p.wg.Y
	gz := (uint32(z) + p.wg.Z - 1) / p.wg.Z
	return gx, gy, gz
}
