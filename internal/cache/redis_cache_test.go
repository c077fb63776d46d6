package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/storage"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/annel0/voxel-chunks/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockInvalidator реализует CacheInvalidator для тестов.
type MockInvalidator struct {
	published []string
	handler   InvalidationHandler
	mutex     sync.RWMutex
}

func (m *MockInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.published = append(m.published, key)
	return nil
}

func (m *MockInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.handler = handler
	return nil
}

func (m *MockInvalidator) Close() error {
	return nil
}

// SimulateInvalidation симулирует получение уведомления от другого узла.
func (m *MockInvalidator) SimulateInvalidation(key string) error {
	m.mutex.RLock()
	handler := m.handler
	m.mutex.RUnlock()

	if handler != nil {
		return handler(key)
	}
	return nil
}

// GetPublished возвращает копию списка опубликованных ключей.
func (m *MockInvalidator) GetPublished() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]string, len(m.published))
	copy(result, m.published)
	return result
}

// setupRedisCache пропускает тест, если Redis недоступен
func setupRedisCache(t *testing.T, invalidator CacheInvalidator, m *metrics.Metrics) (*RedisChunkCache, *storage.MemoryChunkRepository) {
	t.Helper()

	backend := storage.NewMemoryChunkRepository(nil, nil)
	config := &CacheConfig{
		RedisURL:   "localhost:6379",
		KeyPrefix:  fmt.Sprintf("test:%s:%d:", t.Name(), time.Now().UnixNano()),
		DefaultTTL: 10 * time.Second,
	}

	c, err := NewRedisChunkCache(config, backend, nil, invalidator, m)
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, backend
}

func TestNewRedisChunkCache_RequiresBackend(t *testing.T) {
	_, err := NewRedisChunkCache(&CacheConfig{RedisURL: "localhost:6379"}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestRedisChunkCache_ReadThrough(t *testing.T) {
	m := metrics.New()
	c, backend := setupRedisCache(t, nil, m)
	ctx := context.Background()

	chunk := world.NewChunk(vec.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, chunk.SetBlock(4, 5, 6, block.SandBlockID))
	require.NoError(t, backend.Save(ctx, chunk))

	got, err := c.Load(ctx, chunk.Coords)
	require.NoError(t, err)
	assert.True(t, chunk.Equal(got))

	// Второе чтение обслуживается из Redis даже без backend-записи
	require.NoError(t, backend.Delete(ctx, chunk.Coords))
	got, err = c.Load(ctx, chunk.Coords)
	require.NoError(t, err)
	assert.True(t, chunk.Equal(got))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio, 1e-9)
}

func TestRedisChunkCache_MissingChunk(t *testing.T) {
	c, _ := setupRedisCache(t, nil, nil)

	_, err := c.Load(context.Background(), vec.Vec3{X: 99})
	assert.True(t, errors.Is(err, storage.ErrChunkNotFound))
}

func TestRedisChunkCache_SaveInvalidates(t *testing.T) {
	inv := &MockInvalidator{}
	c, backend := setupRedisCache(t, inv, nil)
	ctx := context.Background()

	chunk := world.NewChunk(vec.Vec3{})
	require.NoError(t, c.Save(ctx, chunk))
	_, err := c.Load(ctx, chunk.Coords) // заполняет кеш
	require.NoError(t, err)

	require.NoError(t, chunk.SetBlock(0, 0, 0, block.StoneBlockID))
	require.NoError(t, c.Save(ctx, chunk))

	got, err := c.Load(ctx, chunk.Coords)
	require.NoError(t, err)
	id, err := got.GetBlock(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, block.StoneBlockID, id)

	assert.Equal(t, []string{"chunk:0:0:0", "chunk:0:0:0"}, inv.GetPublished())

	require.NoError(t, c.Delete(ctx, chunk.Coords))
	assert.Zero(t, backend.Count())
	_, err = c.Load(ctx, chunk.Coords)
	assert.True(t, errors.Is(err, storage.ErrChunkNotFound))
}

func TestRedisChunkCache_RemoteInvalidation(t *testing.T) {
	inv := &MockInvalidator{}
	c, backend := setupRedisCache(t, inv, nil)
	ctx := context.Background()
	require.NoError(t, c.Subscribe(ctx))

	chunk := world.NewChunk(vec.Vec3{X: 5})
	require.NoError(t, backend.Save(ctx, chunk))
	_, err := c.Load(ctx, chunk.Coords)
	require.NoError(t, err)

	// Другой узел изменил чанк напрямую в общем хранилище
	require.NoError(t, chunk.SetBlock(1, 1, 1, block.WaterBlockID))
	require.NoError(t, backend.Save(ctx, chunk))
	require.NoError(t, inv.SimulateInvalidation(storage.ChunkKey(chunk.Coords)))

	got, err := c.Load(ctx, chunk.Coords)
	require.NoError(t, err)
	id, err := got.GetBlock(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, block.WaterBlockID, id)

	assert.Error(t, inv.SimulateInvalidation("not-a-chunk-key"))
}

func TestRedisChunkCache_CorruptEntryFallsBack(t *testing.T) {
	c, backend := setupRedisCache(t, nil, nil)
	ctx := context.Background()

	chunk := world.NewChunk(vec.Vec3{Y: 1})
	require.NoError(t, backend.Save(ctx, chunk))
	require.NoError(t, c.client.Set(ctx, c.redisKey(chunk.Coords), []byte("garbage"), time.Minute).Err())

	got, err := c.Load(ctx, chunk.Coords)
	require.NoError(t, err)
	assert.True(t, chunk.Equal(got))
	assert.Equal(t, int64(1), c.Stats().Errors)
}
