package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
)

// MemoryChunkRepository реализует ChunkRepository в памяти.
// Хранит те же сериализованные записи, что и BadgerDB, поэтому
// проходит через тот же кодек. Используется в тестах и для CLI
// без каталога данных.
// ВНИМАНИЕ: Данные теряются при перезапуске!
type MemoryChunkRepository struct {
	mu         sync.RWMutex
	data       map[vec.Vec3][]byte
	serializer *Serializer
	metrics    *metrics.Metrics
	closed     bool
}

// NewMemoryChunkRepository создает репозиторий чанков в памяти.
// nil-сериализатор означает запись без сжатия.
func NewMemoryChunkRepository(serializer *Serializer, m *metrics.Metrics) *MemoryChunkRepository {
	if serializer == nil {
		serializer = NewSerializer(nil, m)
	}
	return &MemoryChunkRepository{
		data:       make(map[vec.Vec3][]byte),
		serializer: serializer,
		metrics:    m,
	}
}

// Save сериализует и сохраняет чанк.
func (r *MemoryChunkRepository) Save(ctx context.Context, c *world.Chunk) (err error) {
	defer func() { r.metrics.StorageOp("save", err) }()

	if err := checkContext(ctx); err != nil {
		return err
	}

	payload, err := r.serializer.Encode(c)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStorageClosed
	}
	r.data[c.Coords] = payload
	return nil
}

// Load загружает чанк из памяти.
func (r *MemoryChunkRepository) Load(ctx context.Context, coords vec.Vec3) (c *world.Chunk, err error) {
	defer func() { r.metrics.StorageOp("load", err) }()

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrStorageClosed
	}
	payload, exists := r.data[coords]
	r.mu.RUnlock()

	if !exists {
		return nil, ErrChunkNotFound
	}
	return r.serializer.Decode(coords, payload)
}

// Delete удаляет запись чанка.
func (r *MemoryChunkRepository) Delete(ctx context.Context, coords vec.Vec3) (err error) {
	defer func() { r.metrics.StorageOp("delete", err) }()

	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStorageClosed
	}
	delete(r.data, coords)
	return nil
}

// List возвращает отсортированные координаты сохраненных чанков.
func (r *MemoryChunkRepository) List(ctx context.Context) ([]vec.Vec3, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrStorageClosed
	}

	coords := make([]vec.Vec3, 0, len(r.data))
	for k := range r.data {
		coords = append(coords, k)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords, nil
}

// Count возвращает количество сохраненных чанков (для мониторинга и тестов).
func (r *MemoryChunkRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.data)
}

// Raw возвращает копию сохраненных байтов чанка.
func (r *MemoryChunkRepository) Raw(coords vec.Vec3) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payload, ok := r.data[coords]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true
}

// Close помечает репозиторий закрытым и освобождает данные.
func (r *MemoryChunkRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.data = make(map[vec.Vec3][]byte)
	return nil
}
