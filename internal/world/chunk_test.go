package world

import (
	"testing"

	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_FlatteningOrder(t *testing.T) {
	idx, err := Index(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = Index(1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "x меняется быстрее всего")

	idx, err = Index(0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, idx)

	idx, err = Index(0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 256, idx)

	idx, err = Index(15, 15, 15)
	require.NoError(t, err)
	assert.Equal(t, ChunkVolume-1, idx)
}

func TestIndex_OutOfRange(t *testing.T) {
	cases := [][3]int{{-1, 0, 0}, {16, 0, 0}, {0, -1, 0}, {0, 16, 0}, {0, 0, -1}, {0, 0, 16}}
	for _, c := range cases {
		_, err := Index(c[0], c[1], c[2])
		assert.ErrorIs(t, err, ErrOutOfRange, "координаты %v", c)
	}
}

func TestLocalFromIndex_RoundTrip(t *testing.T) {
	for idx := 0; idx < ChunkVolume; idx += 37 {
		x, y, z, err := LocalFromIndex(idx)
		require.NoError(t, err)
		back, err := Index(x, y, z)
		require.NoError(t, err)
		assert.Equal(t, idx, back)
	}

	_, _, _, err := LocalFromIndex(ChunkVolume)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestChunk_NewIsAir(t *testing.T) {
	c := NewChunk(vec.Vec3{X: 1, Y: 2, Z: 3})

	blocks := c.Blocks()
	require.Len(t, blocks, ChunkVolume)
	for i, id := range blocks {
		if id != block.AirBlockID {
			t.Fatalf("блок %d = %d, ожидался воздух", i, id)
		}
	}
	assert.False(t, c.IsDirty())
	assert.False(t, c.HasBedrockLayer())
}

func TestChunk_SetGetBlock(t *testing.T) {
	c := NewChunk(vec.Vec3{})

	require.NoError(t, c.SetBlock(3, 4, 5, block.StoneBlockID))

	id, err := c.GetBlock(3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, block.StoneBlockID, id)
	assert.Equal(t, 1, c.ChangeCount())

	blocks := c.Blocks()
	assert.Equal(t, block.StoneBlockID, blocks[3+16*4+256*5])

	assert.ErrorIs(t, c.SetBlock(16, 0, 0, block.StoneBlockID), ErrOutOfRange)
	_, err = c.GetBlock(0, 0, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	c.ClearChanges()
	assert.False(t, c.IsDirty())
}

func TestChunk_BlocksReturnsCopy(t *testing.T) {
	c := NewChunk(vec.Vec3{})
	blocks := c.Blocks()
	blocks[0] = block.DirtBlockID

	id, err := c.GetBlock(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, block.AirBlockID, id)
}

func TestChunk_FillLayerAndUniform(t *testing.T) {
	c := NewChunk(vec.Vec3{})
	require.NoError(t, c.FillLayer(7, block.SandBlockID))

	id, ok := c.LayerUniform(7)
	assert.True(t, ok)
	assert.Equal(t, block.SandBlockID, id)

	id, ok = c.LayerUniform(6)
	assert.True(t, ok)
	assert.Equal(t, block.AirBlockID, id)

	require.NoError(t, c.SetBlock(15, 7, 15, block.WaterBlockID))
	_, ok = c.LayerUniform(7)
	assert.False(t, ok)

	assert.ErrorIs(t, c.FillLayer(16, block.SandBlockID), ErrOutOfRange)
	assert.Equal(t, 256, c.Histogram()[block.SandBlockID]+c.Histogram()[block.WaterBlockID])
}

func TestNewChunkFromBlocks(t *testing.T) {
	blocks := make([]block.BlockID, ChunkVolume)
	blocks[100] = block.GrassBlockID

	c, err := NewChunkFromBlocks(vec.Vec3{X: -1}, blocks)
	require.NoError(t, err)
	assert.Equal(t, blocks, c.Blocks())

	_, err = NewChunkFromBlocks(vec.Vec3{}, blocks[:10])
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestChunk_Equal(t *testing.T) {
	a := NewChunk(vec.Vec3{})
	b := NewChunk(vec.Vec3{X: 9})

	assert.True(t, a.Equal(b), "координаты не участвуют в сравнении содержимого")
	require.NoError(t, b.SetBlock(1, 1, 1, block.StoneBlockID))
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(nil))
}
