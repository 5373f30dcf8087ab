package webgpu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstantiateWorkgroup(t *testing.T) {
	src := "@compute @workgroup_size(WG_X, WG_Y, WG_Z)\nfn main() {}"
	got := instantiateWorkgroup(src, WorkgroupSize{X: 8, Y: 8, Z: 1})
	assert.Equal(t, "@compute @workgroup_size(8, 8, 1)\nfn main() {}", got)
	assert.NotContains(t, got, "WG_")
}

func TestInstantiateWorkgroupPanicsOnZero(t *testing.T) {
	assert.Panics(t, func() {
		instantiateWorkgroup("fn main() {}", WorkgroupSize{X: 8, Y: 0, Z: 1})
	})
}

func TestGroupsFor(t *testing.T) {
	p := &program{wg: WorkgroupSize{X: 8, Y: 8, Z: 1}}

	gx, gy, gz := p.groupsFor(8, 8, 1)
	assert.Equal(t, [3]uint32{1, 1, 1}, [3]uint32{gx, gy, gz})

	gx, gy, gz = p.groupsFor(9, 17, 3)
	assert.Equal(t, [3]uint32{2, 3, 3}, [3]uint32{gx, gy, gz})

	p = &program{wg: WorkgroupSize{X: 1, Y: 1, Z: 5}}
	gx, gy, gz = p.groupsFor(4, 7, 5)
	assert.Equal(t, [3]uint32{4, 7, 1}, [3]uint32{gx, gy, gz})
}

// TestKernelRegistry checks the structural consistency of every registered
// kernel: the source must declare exactly as many bindings as the role list,
// exactly one uniform per registered uniform role, and a main entry point
// with substitutable workgroup placeholders.
func TestKernelRegistry(t *testing.T) {
	for name, spec := range kernels {
		require.NotEmpty(t, spec.source, "kernel %q has no source", name)
		require.NotEmpty(t, spec.roles, "kernel %q has no bindings", name)

		assert.Contains(t, spec.source, "fn main", "kernel %q", name)
		assert.Contains(t, spec.source, "WG_X", "kernel %q", name)

		bindings := strings.Count(spec.source, "@binding(")
		assert.Equal(t, len(spec.roles), bindings,
			"kernel %q: binding count vs role list", name)

		uniforms := 0
		for _, r := range spec.roles {
			if r == roleUniform {
				uniforms++
			}
		}
		assert.Equal(t, uniforms, strings.Count(spec.source, "var<uniform>"),
			"kernel %q: uniform declarations vs uniform roles", name)

		// Output-producing kernels bind their destination first.
		assert.Contains(t, []bindingRole{roleStorageImage, roleStorageBuffer},
			spec.roles[0], "kernel %q: first binding must be writable", name)
	}
}
