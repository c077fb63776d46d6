package world

import (
	"testing"

	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerrainGenerator_Deterministic(t *testing.T) {
	a := NewWorld(DefaultConfig()).GenerateChunk(3, 0, -2, NewTerrainGenerator(7))
	b := NewWorld(DefaultConfig()).GenerateChunk(3, 0, -2, NewTerrainGenerator(7))

	assert.True(t, a.Equal(b))
}

func TestTerrainGenerator_KeepsBedrockLayer(t *testing.T) {
	w := NewWorld(DefaultConfig())
	c := w.GenerateChunk(0, 0, 0, NewTerrainGenerator(1))

	id, uniform := c.LayerUniform(0)
	assert.True(t, uniform)
	assert.Equal(t, block.BedrockBlockID, id)
	assert.True(t, c.HasBedrockLayer())
	assert.True(t, c.IsDirty())

	// Поверхность не ниже BaseHeight, поэтому над бедроком твердый грунт
	id, err := c.GetBlock(0, 1, 0)
	require.NoError(t, err)
	assert.NotEqual(t, block.AirBlockID, id)
	assert.NotEqual(t, block.WaterBlockID, id)
}

func TestTerrainGenerator_HighChunksAreAir(t *testing.T) {
	g := NewTerrainGenerator(1)
	c := NewChunk(vec.Vec3{Y: 10})
	g.Fill(c, 0, block.BedrockBlockID)

	assert.Equal(t, map[block.BlockID]int{block.AirBlockID: ChunkVolume}, c.Histogram())
	assert.False(t, c.HasBedrockLayer())
}

func TestTerrainGenerator_ColumnsFollowSurface(t *testing.T) {
	g := NewTerrainGenerator(99)
	w := NewWorld(DefaultConfig())

	for cy := 0; cy < 4; cy++ {
		w.GenerateChunk(0, cy, 0, g)
	}

	for x := 0; x < ChunkSize; x++ {
		surface, _ := g.Surface(x, 0)
		require.Less(t, surface, 4*ChunkSize)

		id, err := w.GetBlock(0, surface/ChunkSize, 0, x, surface%ChunkSize, 0)
		require.NoError(t, err)
		assert.NotEqual(t, block.AirBlockID, id, "column %d surface %d", x, surface)
		assert.NotEqual(t, block.WaterBlockID, id, "column %d surface %d", x, surface)

		above := surface + 2
		id, err = w.GetBlock(0, above/ChunkSize, 0, x, above%ChunkSize, 0)
		require.NoError(t, err)
		if above > g.SeaLevel {
			assert.Equal(t, block.AirBlockID, id)
		} else {
			assert.Equal(t, block.WaterBlockID, id)
		}
	}
}
