package codec

import (
	"testing"

	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/annel0/voxel-chunks/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bottomChunk(t *testing.T) *world.Chunk {
	t.Helper()
	w := world.NewWorld(world.DefaultConfig())
	require.NoError(t, w.SetBlock(-3, 0, 12, 5, 0, 5, block.WaterBlockID))
	require.NoError(t, w.SetBlock(-3, 0, 12, 8, 9, 10, block.TreeBlockID))
	c, ok := w.GetChunk(-3, 0, 12)
	require.True(t, ok)
	return c
}

func TestRecord_RoundTrip(t *testing.T) {
	c := bottomChunk(t)

	data := MarshalChunk(c)
	assert.Equal(t, "VCH1", string(data[:4]))

	restored, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, c.Coords, restored.Coords)
	assert.True(t, restored.HasBedrockLayer())
	assert.True(t, c.Equal(restored))
}

func TestRecord_HeaderFields(t *testing.T) {
	c := world.NewChunk(vec.Vec3{X: 1 << 20, Y: -7, Z: 0})

	rec, err := UnmarshalRecord(MarshalRecord(NewRecord(c)))
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: 1 << 20, Y: -7, Z: 0}, rec.Coords)
	assert.False(t, rec.Bedrock)
	assert.Equal(t, []Run{{Block: block.AirBlockID, Length: world.ChunkVolume}}, rec.Runs.Runs)
}

func TestRecord_Corruption(t *testing.T) {
	data := MarshalChunk(bottomChunk(t))

	t.Run("short", func(t *testing.T) {
		_, err := UnmarshalRecord(data[:6])
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[0] = 'X'
		_, err := UnmarshalRecord(bad)
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("flipped payload bit", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[len(bad)/2] ^= 0x40
		_, err := UnmarshalRecord(bad)
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := UnmarshalRecord(data[:len(data)-1])
		assert.ErrorIs(t, err, ErrInvalidData)
	})
}

func TestRecord_RejectsInvalidRunsWithValidChecksum(t *testing.T) {
	rec := Record{
		Coords: vec.Vec3{},
		Runs:   CompressedChunk{Runs: []Run{{Block: 1, Length: 100}}},
	}

	_, err := UnmarshalRecord(MarshalRecord(rec))
	assert.ErrorIs(t, err, ErrInvalidData)
}
