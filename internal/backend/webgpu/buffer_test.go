package webgpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), alignUp(0, 16))
	assert.Equal(t, uint64(16), alignUp(1, 16))
	assert.Equal(t, uint64(16), alignUp(16, 16))
	assert.Equal(t, uint64(32), alignUp(17, 16))
	assert.Equal(t, uint64(512), alignUp(257, 256))
	assert.Equal(t, uint64(7), alignUp(7, 0))
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	data := []float32{0, 1, -1, 0.5, math.MaxFloat32, float32(math.Inf(1))}
	raw := float32Bytes(data)
	require.Len(t, raw, len(data)*4)
	assert.Equal(t, data, bytesToFloat32(raw))

	assert.Nil(t, float32Bytes(nil))
	assert.Empty(t, bytesToFloat32(nil))
}

func TestConstBlock(t *testing.T) {
	block := &constBlock{}
	block.putInt32(7)
	block.putInt32(-2)
	block.putFloat32(1.5)

	raw := block.bytes()
	require.Len(t, raw, 12)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(raw[0:]))
	assert.Equal(t, int32(-2), int32(binary.LittleEndian.Uint32(raw[4:])))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(raw[8:])))
}

func TestBindingRoleString(t *testing.T) {
	assert.Equal(t, "storage-image", roleStorageImage.String())
	assert.Equal(t, "sampled-image", roleSampledImage.String())
	assert.Equal(t, "storage-buffer", roleStorageBuffer.String())
	assert.Equal(t, "uniform", roleUniform.String())
}
