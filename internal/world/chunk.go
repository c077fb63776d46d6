package world

import (
	"fmt"
	"sync"

	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world/block"
)

const (
	// ChunkSize длина ребра чанка в блоках
	ChunkSize = 16
	// LayerSize число блоков в одном горизонтальном слое (y = const)
	LayerSize = ChunkSize * ChunkSize
	// ChunkVolume число блоков в чанке
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize // 4096
)

// Chunk представляет участок мира размером 16x16x16 блоков.
//
// Блоки хранятся плоским массивом в порядке index = x + 16*y + 256*z.
// Этот порядок фиксирован: от него зависит RLE-кодек и формат хранения.
type Chunk struct {
	Coords vec.Vec3 // Координаты чанка в сетке мира

	blocks  [ChunkVolume]block.BlockID
	bedrock bool // Чанк создан с бедроком в слое y=0

	changeCounter int
	mu            sync.RWMutex
}

// NewChunk создаёт чанк, заполненный воздухом
func NewChunk(coords vec.Vec3) *Chunk {
	return &Chunk{Coords: coords}
}

// NewChunkFromBlocks создаёт чанк из плоской последовательности блоков
func NewChunkFromBlocks(coords vec.Vec3, blocks []block.BlockID) (*Chunk, error) {
	if len(blocks) != ChunkVolume {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidLength, len(blocks), ChunkVolume)
	}
	c := NewChunk(coords)
	copy(c.blocks[:], blocks)
	return c, nil
}

// Index возвращает индекс блока в плоском массиве по локальным координатам
func Index(x, y, z int) (int, error) {
	if x < 0 || x >= ChunkSize || y < 0 || y >= ChunkSize || z < 0 || z >= ChunkSize {
		return 0, fmt.Errorf("%w: local (%d,%d,%d)", ErrOutOfRange, x, y, z)
	}
	return x + ChunkSize*y + LayerSize*z, nil
}

// LocalFromIndex восстанавливает локальные координаты по индексу
func LocalFromIndex(idx int) (x, y, z int, err error) {
	if idx < 0 || idx >= ChunkVolume {
		return 0, 0, 0, fmt.Errorf("%w: index %d", ErrOutOfRange, idx)
	}
	x = idx % ChunkSize
	y = (idx / ChunkSize) % ChunkSize
	z = idx / LayerSize
	return x, y, z, nil
}

// GetBlock возвращает ID блока по локальным координатам
func (c *Chunk) GetBlock(x, y, z int) (block.BlockID, error) {
	idx, err := Index(x, y, z)
	if err != nil {
		return block.AirBlockID, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[idx], nil
}

// SetBlock устанавливает блок по локальным координатам
func (c *Chunk) SetBlock(x, y, z int, id block.BlockID) error {
	idx, err := Index(x, y, z)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocks[idx] = id
	c.changeCounter++
	return nil
}

// FillLayer заполняет горизонтальный слой y одним типом блока
func (c *Chunk) FillLayer(y int, id block.BlockID) error {
	if _, err := Index(0, y, 0); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fillLayerLocked(y, id)
	c.changeCounter++
	return nil
}

func (c *Chunk) fillLayerLocked(y int, id block.BlockID) {
	for z := 0; z < ChunkSize; z++ {
		row := ChunkSize*y + LayerSize*z
		for x := 0; x < ChunkSize; x++ {
			c.blocks[row+x] = id
		}
	}
}

// LayerUniform возвращает тип блока слоя y и true, если весь слой одного типа
func (c *Chunk) LayerUniform(y int) (block.BlockID, bool) {
	if _, err := Index(0, y, 0); err != nil {
		return block.AirBlockID, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	first := c.blocks[ChunkSize*y]
	for z := 0; z < ChunkSize; z++ {
		row := ChunkSize*y + LayerSize*z
		for x := 0; x < ChunkSize; x++ {
			if c.blocks[row+x] != first {
				return first, false
			}
		}
	}
	return first, true
}

// Blocks возвращает копию всех блоков в порядке индекса
func (c *Chunk) Blocks() []block.BlockID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]block.BlockID, ChunkVolume)
	copy(out, c.blocks[:])
	return out
}

// Histogram возвращает количество блоков каждого типа
func (c *Chunk) Histogram() map[block.BlockID]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[block.BlockID]int)
	for _, id := range c.blocks {
		counts[id]++
	}
	return counts
}

// HasBedrockLayer сообщает, был ли чанк создан с бедроком в слое y=0
func (c *Chunk) HasBedrockLayer() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.bedrock
}

// MarkBedrockLayer выставляет флаг бедрока (используется при восстановлении из хранилища)
func (c *Chunk) MarkBedrockLayer(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bedrock = v
}

// IsDirty возвращает true, если в чанке есть несохраненные изменения
func (c *Chunk) IsDirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.changeCounter > 0
}

// ChangeCount возвращает число изменений с последнего сохранения
func (c *Chunk) ChangeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.changeCounter
}

// ClearChanges сбрасывает счетчик изменений
func (c *Chunk) ClearChanges() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.changeCounter = 0
}

// AckChanges вычитает n сохраненных изменений из счетчика.
// Изменения, сделанные после снятия снимка, остаются учтенными.
func (c *Chunk) AckChanges(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.changeCounter -= n
	if c.changeCounter < 0 {
		c.changeCounter = 0
	}
}

// Equal сравнивает содержимое двух чанков поблочно
func (c *Chunk) Equal(other *Chunk) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}

	theirs := other.Blocks()

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, id := range c.blocks {
		if theirs[i] != id {
			return false
		}
	}
	return true
}

// copyFrom заменяет содержимое чанка содержимым src, сохраняя идентичность c
func (c *Chunk) copyFrom(src *Chunk) {
	blocks := src.Blocks()
	bedrock := src.HasBedrockLayer()

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.blocks[:], blocks)
	c.bedrock = bedrock
	c.changeCounter = 0
}
