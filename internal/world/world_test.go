package world

import (
	"sync"
	"testing"

	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorld_GetOrCreateChunkIdentity(t *testing.T) {
	w := NewWorld(DefaultConfig())

	coords := [][3]int{{0, 0, 0}, {5, 3, -2}, {-100, 40, 7}}
	for _, c := range coords {
		first := w.GetOrCreateChunk(c[0], c[1], c[2])
		second := w.GetOrCreateChunk(c[0], c[1], c[2])
		assert.Same(t, first, second, "повторный вызов должен вернуть тот же чанк %v", c)
	}
	assert.Equal(t, len(coords), w.ChunkCount())
}

func TestWorld_BedrockOnlyInBottomLayer(t *testing.T) {
	w := NewWorld(DefaultConfig())

	bottom := w.GetOrCreateChunk(2, 0, -3)
	assert.True(t, bottom.HasBedrockLayer())
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			id, err := bottom.GetBlock(x, 0, z)
			require.NoError(t, err)
			require.Equal(t, block.BedrockBlockID, id, "(%d,0,%d)", x, z)
		}
	}
	for y := 1; y < ChunkSize; y++ {
		id, ok := bottom.LayerUniform(y)
		assert.True(t, ok)
		assert.Equal(t, block.AirBlockID, id, "слой %d", y)
	}
	assert.Equal(t, LayerSize, bottom.Histogram()[block.BedrockBlockID])

	above := w.GetOrCreateChunk(2, 1, -3)
	assert.False(t, above.HasBedrockLayer())
	assert.Equal(t, ChunkVolume, above.Histogram()[block.AirBlockID])

	below := w.GetOrCreateChunk(2, -1, -3)
	assert.Equal(t, ChunkVolume, below.Histogram()[block.AirBlockID])
}

func TestWorld_CustomBottomLayer(t *testing.T) {
	w := NewWorld(Config{MinChunkY: -4, BedrockBlockID: block.StoneBlockID})

	c := w.GetOrCreateChunk(0, -4, 0)
	id, ok := c.LayerUniform(0)
	assert.True(t, ok)
	assert.Equal(t, block.StoneBlockID, id)

	c = w.GetOrCreateChunk(0, 0, 0)
	id, ok = c.LayerUniform(0)
	assert.True(t, ok)
	assert.Equal(t, block.AirBlockID, id)
}

func TestWorld_GetBlockDoesNotCreateChunk(t *testing.T) {
	w := NewWorld(DefaultConfig())

	id, err := w.GetBlock(100000, 500, -99999, 3, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, block.AirBlockID, id)
	assert.Equal(t, 0, w.ChunkCount(), "чтение не должно создавать чанки")
	assert.False(t, w.HasChunk(100000, 500, -99999))
}

func TestWorld_GetBlockOutOfRange(t *testing.T) {
	w := NewWorld(DefaultConfig())

	_, err := w.GetBlock(0, 0, 0, 16, 0, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = w.GetBlock(0, 0, 0, 0, -1, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestWorld_SetBlockOverridesSingleBedrockCell(t *testing.T) {
	w := NewWorld(DefaultConfig())

	require.NoError(t, w.SetBlock(0, 0, 0, 5, 0, 5, 3))

	id, err := w.GetBlock(0, 0, 0, 5, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, block.BlockID(3), id)

	id, err = w.GetBlock(0, 0, 0, 5, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, block.AirBlockID, id)

	id, err = w.GetBlock(0, 0, 0, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, block.BedrockBlockID, id)

	assert.Equal(t, LayerSize-1, w.GetOrCreateChunk(0, 0, 0).Histogram()[block.BedrockBlockID])
}

func TestWorld_SetBlockInvalidLocalHasNoSideEffect(t *testing.T) {
	w := NewWorld(DefaultConfig())

	err := w.SetBlock(1, 1, 1, 0, 16, 0, block.StoneBlockID)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, 0, w.ChunkCount())
}

func TestWorld_SetBlockCreatesChunk(t *testing.T) {
	w := NewWorld(DefaultConfig())

	require.NoError(t, w.SetBlock(3, 2, 1, 15, 15, 15, block.TreeBlockID))
	assert.True(t, w.HasChunk(3, 2, 1))

	c, ok := w.GetChunk(3, 2, 1)
	require.True(t, ok)
	assert.True(t, c.IsDirty())
	assert.Equal(t, []*Chunk{c}, w.DirtyChunks())
}

func TestWorld_BedrockLayerOperations(t *testing.T) {
	w := NewWorld(DefaultConfig(), WithLogger(nil))

	require.NoError(t, w.SetBedrockLayer(0, 0, 0, block.AirBlockID))
	c, _ := w.GetChunk(0, 0, 0)
	id, ok := c.LayerUniform(0)
	assert.True(t, ok)
	assert.Equal(t, block.AirBlockID, id)
	assert.False(t, c.HasBedrockLayer())

	require.NoError(t, w.ResetBedrockLayer(0, 0, 0))
	id, ok = c.LayerUniform(0)
	assert.True(t, ok)
	assert.Equal(t, block.BedrockBlockID, id)
	assert.True(t, c.HasBedrockLayer())

	err := w.ResetBedrockLayer(0, 1, 0)
	assert.ErrorIs(t, err, ErrNotBottomLayer)
	assert.False(t, w.HasChunk(0, 1, 0))
}

func TestWorld_PutChunkKeepsIdentity(t *testing.T) {
	w := NewWorld(DefaultConfig())
	existing := w.GetOrCreateChunk(1, 1, 1)

	restored := NewChunk(vec.Vec3{X: 1, Y: 1, Z: 1})
	require.NoError(t, restored.SetBlock(2, 2, 2, block.WaterBlockID))

	got := w.PutChunk(restored)
	assert.Same(t, existing, got)
	assert.True(t, existing.Equal(restored))
	assert.False(t, existing.IsDirty())

	fresh := NewChunk(vec.Vec3{X: 9, Y: 9, Z: 9})
	require.NoError(t, fresh.SetBlock(0, 0, 0, block.SandBlockID))
	assert.Same(t, fresh, w.PutChunk(fresh))
	assert.Same(t, fresh, w.GetOrCreateChunk(9, 9, 9))
	assert.False(t, fresh.IsDirty())
}

func TestWorld_ChunkCoordsSorted(t *testing.T) {
	w := NewWorld(DefaultConfig())
	w.GetOrCreateChunk(1, 2, 0)
	w.GetOrCreateChunk(0, 0, 0)
	w.GetOrCreateChunk(-1, 2, 0)

	assert.Equal(t, []vec.Vec3{{X: 0, Y: 0, Z: 0}, {X: -1, Y: 2, Z: 0}, {X: 1, Y: 2, Z: 0}}, w.ChunkCoords())

	visited := 0
	require.NoError(t, w.ForEachChunk(func(c *Chunk) error {
		visited++
		return nil
	}))
	assert.Equal(t, 3, visited)
}

func TestWorld_ConcurrentCreateReturnsSingleInstance(t *testing.T) {
	w := NewWorld(DefaultConfig())

	const workers = 32
	results := make([]*Chunk, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = w.GetOrCreateChunk(7, 0, 7)
			_ = w.SetBlock(7, 0, 7, i%ChunkSize, 5, 0, block.StoneBlockID)
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, w.ChunkCount())
	assert.Equal(t, workers, results[0].ChangeCount())
}

func TestWorld_Metrics(t *testing.T) {
	m := metrics.New()
	w := NewWorld(DefaultConfig(), WithMetrics(m))

	require.NoError(t, w.SetBlock(0, 0, 0, 1, 1, 1, block.StoneBlockID))
	w.GetOrCreateChunk(0, 0, 0)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if metric.GetCounter() != nil {
				values[f.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["voxel_chunks_created_total"])
	assert.Equal(t, 1.0, values["voxel_blocks_set_total"])
}

func TestWorld_ConcurrentCreateAndBedrockRewrite(t *testing.T) {
	w := NewWorld(DefaultConfig(), WithLogger(nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.GetOrCreateChunk(0, 0, 0)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, w.SetBedrockLayer(0, 0, 0, block.StoneBlockID))
		}()
	}
	wg.Wait()

	c, ok := w.GetChunk(0, 0, 0)
	require.True(t, ok)
	id, uniform := c.LayerUniform(0)
	assert.True(t, uniform)
	assert.Equal(t, block.StoneBlockID, id)
	assert.False(t, c.HasBedrockLayer())
}
