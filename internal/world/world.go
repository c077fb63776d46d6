package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world/block"
)

// Config задает параметры генерации новых чанков
type Config struct {
	MinChunkY      int           // Нижний слой сетки чанков мира
	BedrockBlockID block.BlockID // Блок, которым заполняется слой y=0 нижних чанков
}

// DefaultConfig возвращает конфигурацию мира по умолчанию
func DefaultConfig() Config {
	return Config{
		MinChunkY:      0,
		BedrockBlockID: block.BedrockBlockID,
	}
}

// Option настраивает World при создании
type Option func(*World)

// WithMetrics подключает Prometheus-метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *World) {
		w.metrics = m
	}
}

// WithLogger задает логгер мира
func WithLogger(l *logging.Logger) Option {
	return func(w *World) {
		w.log = l
	}
}

// World - разреженное хранилище чанков, индексированное координатами сетки.
// Чанки создаются лениво при первом обращении и живут столько же, сколько World.
type World struct {
	mu      sync.RWMutex
	chunks  map[vec.Vec3]*Chunk
	cfg     Config
	metrics *metrics.Metrics
	log     *logging.Logger
}

// NewWorld создаёт пустой мир
func NewWorld(cfg Config, opts ...Option) *World {
	w := &World{
		chunks: make(map[vec.Vec3]*Chunk),
		cfg:    cfg,
		log:    logging.GetWorldLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config возвращает конфигурацию мира
func (w *World) Config() Config {
	return w.cfg
}

// IsBottomLayer сообщает, лежит ли слой сетки cy на дне мира
func (w *World) IsBottomLayer(cy int) bool {
	return cy == w.cfg.MinChunkY
}

// GetOrCreateChunk возвращает существующий чанк или создаёт новый.
// Повторные вызовы с теми же координатами возвращают тот же экземпляр.
func (w *World) GetOrCreateChunk(cx, cy, cz int) *Chunk {
	pos := vec.Vec3{X: cx, Y: cy, Z: cz}

	w.mu.RLock()
	if c, ok := w.chunks[pos]; ok {
		w.mu.RUnlock()
		return c
	}
	w.mu.RUnlock()

	c := w.newChunk(pos)
	bedrock := c.bedrock // после публикации флаг читается только под c.mu

	w.mu.Lock()
	// Повторная проверка после захвата write lock
	if existing, ok := w.chunks[pos]; ok {
		w.mu.Unlock()
		return existing
	}
	w.chunks[pos] = c
	loaded := len(w.chunks)
	w.mu.Unlock()

	w.metrics.ChunkCreated(loaded)
	w.log.Debug("Создан чанк %v (бедрок: %v)", pos, bedrock)
	return c
}

// newChunk создаёт чанк с начальным содержимым: воздух и, для нижнего слоя, бедрок в y=0
func (w *World) newChunk(pos vec.Vec3) *Chunk {
	c := NewChunk(pos)
	if w.IsBottomLayer(pos.Y) {
		c.fillLayerLocked(0, w.cfg.BedrockBlockID)
		c.bedrock = true
	}
	return c
}

// GetChunk возвращает чанк без создания
func (w *World) GetChunk(cx, cy, cz int) (*Chunk, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	c, ok := w.chunks[vec.Vec3{X: cx, Y: cy, Z: cz}]
	return c, ok
}

// HasChunk проверяет, создан ли чанк
func (w *World) HasChunk(cx, cy, cz int) bool {
	_, ok := w.GetChunk(cx, cy, cz)
	return ok
}

// GetBlock возвращает ID блока. Отсутствующие чанки читаются как воздух и не создаются.
func (w *World) GetBlock(cx, cy, cz, lx, ly, lz int) (block.BlockID, error) {
	if _, err := Index(lx, ly, lz); err != nil {
		return block.AirBlockID, err
	}

	c, ok := w.GetChunk(cx, cy, cz)
	if !ok {
		return block.AirBlockID, nil
	}
	return c.GetBlock(lx, ly, lz)
}

// SetBlock изменяет ровно один блок, создавая чанк при необходимости.
// Диапазон ID не проверяется: за корректность идентификаторов отвечает вызывающий.
func (w *World) SetBlock(cx, cy, cz, lx, ly, lz int, id block.BlockID) error {
	// Проверяем координаты до создания чанка, чтобы ошибка не оставляла побочных эффектов
	if _, err := Index(lx, ly, lz); err != nil {
		return err
	}

	c := w.GetOrCreateChunk(cx, cy, cz)
	if err := c.SetBlock(lx, ly, lz, id); err != nil {
		return err
	}
	w.metrics.BlockSet()
	return nil
}

// SetBedrockLayer целиком переписывает слой y=0 нижнего чанка.
// Это отдельная осознанная операция: обычный SetBlock меняет только одну ячейку.
func (w *World) SetBedrockLayer(cx, cy, cz int, id block.BlockID) error {
	if !w.IsBottomLayer(cy) {
		return fmt.Errorf("%w: chunk y=%d, bottom y=%d", ErrNotBottomLayer, cy, w.cfg.MinChunkY)
	}

	c := w.GetOrCreateChunk(cx, cy, cz)
	if err := c.FillLayer(0, id); err != nil {
		return err
	}
	c.MarkBedrockLayer(id == w.cfg.BedrockBlockID)
	w.log.Info("Слой бедрока чанка %v переписан блоком %s", c.Coords, block.Name(id))
	return nil
}

// ResetBedrockLayer восстанавливает бедрок в слое y=0 нижнего чанка
func (w *World) ResetBedrockLayer(cx, cy, cz int) error {
	return w.SetBedrockLayer(cx, cy, cz, w.cfg.BedrockBlockID)
}

// PutChunk помещает восстановленный чанк в мир.
// Если чанк с такими координатами уже существует, его содержимое заменяется на месте,
// так что ранее выданные ссылки остаются действительными.
func (w *World) PutChunk(c *Chunk) *Chunk {
	w.mu.Lock()
	existing, ok := w.chunks[c.Coords]
	if !ok {
		w.chunks[c.Coords] = c
	}
	loaded := len(w.chunks)
	w.mu.Unlock()

	w.metrics.SetLoadedChunks(loaded)
	if ok {
		existing.copyFrom(c)
		return existing
	}
	c.ClearChanges()
	return c
}

// ChunkCount возвращает количество созданных чанков
func (w *World) ChunkCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.chunks)
}

// ChunkCoords возвращает координаты всех чанков в стабильном порядке
func (w *World) ChunkCoords() []vec.Vec3 {
	w.mu.RLock()
	coords := make([]vec.Vec3, 0, len(w.chunks))
	for pos := range w.chunks {
		coords = append(coords, pos)
	}
	w.mu.RUnlock()

	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords
}

// ForEachChunk вызывает fn для каждого чанка в стабильном порядке.
// fn вызывается без блокировки мира, поэтому может обращаться к World.
func (w *World) ForEachChunk(fn func(c *Chunk) error) error {
	for _, pos := range w.ChunkCoords() {
		c, ok := w.GetChunk(pos.X, pos.Y, pos.Z)
		if !ok {
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// DirtyChunks возвращает чанки с несохраненными изменениями
func (w *World) DirtyChunks() []*Chunk {
	var dirty []*Chunk
	_ = w.ForEachChunk(func(c *Chunk) error {
		if c.IsDirty() {
			dirty = append(dirty, c)
		}
		return nil
	})
	return dirty
}
