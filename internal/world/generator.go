package world

import (
	"math/rand"

	"github.com/annel0/voxel-chunks/internal/util"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world/block"
)

// BiomeType представляет тип биома
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeDesert
	BiomeForest
	BiomeMountains
	BiomeWater
)

// Пороги нормированной высоты (0..1)
const (
	ShallowWaterMax = 0.30 // Ниже - дно водоема
	MountainStart   = 0.80 // Выше - горы
)

// TerrainGenerator заполняет чанки ландшафтом по карте высот из шума Перлина.
// Высоты считаются в блоках от нижнего слоя мира (y=0 чанков MinChunkY).
type TerrainGenerator struct {
	Seed          int64
	NoiseScale    float64 // Масштаб шума высот
	BiomeScale    float64 // Масштаб шума биомов
	BaseHeight    int     // Минимальная высота поверхности
	Amplitude     int     // Разброс высот над BaseHeight
	SeaLevel      int     // Уровень воды
	ForestDensity float64 // Шанс дерева на равнинах

	height *util.Noise
	biome  *util.Noise
}

// NewTerrainGenerator создаёт генератор ландшафта
func NewTerrainGenerator(seed int64) *TerrainGenerator {
	return &TerrainGenerator{
		Seed:          seed,
		NoiseScale:    0.02,
		BiomeScale:    0.01,
		BaseHeight:    4,
		Amplitude:     40,
		SeaLevel:      16,
		ForestDensity: 0.05,
		height:        util.NewNoise(seed),
		biome:         util.NewNoise(seed + 42),
	}
}

// Surface возвращает высоту поверхности и биом колонки с мировыми координатами (wx, wz)
func (g *TerrainGenerator) Surface(wx, wz int) (int, BiomeType) {
	h := g.height.Noise2D(float64(wx)*g.NoiseScale, float64(wz)*g.NoiseScale)
	b := g.biome.Noise2D(float64(wx)*g.BiomeScale, float64(wz)*g.BiomeScale)
	return g.BaseHeight + int(h*float64(g.Amplitude)), biomeFor(h, b)
}

// Fill перезаписывает содержимое чанка ландшафтом.
// Чанк нижнего слоя сохраняет бедрок в y=0.
func (g *TerrainGenerator) Fill(c *Chunk, minChunkY int, bedrock block.BlockID) {
	pos := c.Coords
	rng := rand.New(rand.NewSource(g.Seed + int64(pos.X)*31 + int64(pos.Y)*131 + int64(pos.Z)*17))
	baseY := (pos.Y - minChunkY) * ChunkSize
	bottom := pos.Y == minChunkY

	var blocks [ChunkVolume]block.BlockID
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			surface, biome := g.Surface(pos.X*ChunkSize+x, pos.Z*ChunkSize+z)
			decoration := g.decoration(biome, surface, rng)

			for y := 0; y < ChunkSize; y++ {
				blocks[x+ChunkSize*y+LayerSize*z] = g.blockAt(baseY+y, surface, biome, decoration)
			}
		}
	}
	if bottom {
		for z := 0; z < ChunkSize; z++ {
			for x := 0; x < ChunkSize; x++ {
				blocks[x+LayerSize*z] = bedrock
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocks = blocks
	c.bedrock = bottom
	c.changeCounter++
}

// blockAt выбирает блок на высоте wy колонки
func (g *TerrainGenerator) blockAt(wy, surface int, biome BiomeType, decoration block.BlockID) block.BlockID {
	switch {
	case wy < surface-3:
		return block.StoneBlockID
	case wy < surface:
		return subsurfaceBlock(biome)
	case wy == surface:
		return surfaceBlock(biome, surface < g.SeaLevel)
	case wy <= g.SeaLevel:
		return block.WaterBlockID
	case wy == surface+1:
		return decoration
	default:
		return block.AirBlockID
	}
}

// decoration определяет объект над поверхностью суши
func (g *TerrainGenerator) decoration(biome BiomeType, surface int, rng *rand.Rand) block.BlockID {
	if surface < g.SeaLevel {
		return block.AirBlockID
	}
	roll := rng.Float64()
	switch {
	case biome == BiomeForest && roll < 0.15:
		return block.TreeBlockID
	case biome == BiomePlains && roll < g.ForestDensity:
		return block.TreeBlockID
	case biome == BiomePlains && roll < g.ForestDensity*2:
		return block.FlowerBlockID
	case biome == BiomeDesert && roll < 0.02:
		return block.CactusBlockID
	}
	return block.AirBlockID
}

func subsurfaceBlock(biome BiomeType) block.BlockID {
	switch biome {
	case BiomeDesert:
		return block.SandBlockID
	case BiomeMountains:
		return block.StoneBlockID
	default:
		return block.DirtBlockID
	}
}

func surfaceBlock(biome BiomeType, underwater bool) block.BlockID {
	if underwater {
		if biome == BiomeDesert {
			return block.SandBlockID
		}
		return block.GravelBlockID
	}
	switch biome {
	case BiomeDesert:
		return block.SandBlockID
	case BiomeMountains:
		return block.StoneBlockID
	default:
		return block.GrassBlockID
	}
}

// biomeFor определяет биом по нормированной высоте и значению шума биомов
func biomeFor(height, biomeValue float64) BiomeType {
	if height < ShallowWaterMax {
		return BiomeWater
	}
	if height > MountainStart {
		return BiomeMountains
	}
	if biomeValue < 0.35 {
		return BiomeDesert
	} else if biomeValue > 0.65 {
		return BiomeForest
	}
	return BiomePlains
}

// GenerateChunk создаёт чанк при необходимости и заполняет его ландшафтом
func (w *World) GenerateChunk(cx, cy, cz int, g *TerrainGenerator) *Chunk {
	c := w.GetOrCreateChunk(cx, cy, cz)
	g.Fill(c, w.cfg.MinChunkY, w.cfg.BedrockBlockID)
	w.log.Debug("Сгенерирован чанк %v (seed %d)", vec.Vec3{X: cx, Y: cy, Z: cz}, g.Seed)
	return c
}
