package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/storage"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/go-redis/redis/v8"
)

// RedisChunkCache реализует storage.ChunkRepository как Hot Cache в Redis
// перед постоянным хранилищем (Read-Through, Write-Invalidate).
//
// Особенности:
// - Load читает из Redis, при промахе загружает из backend и заполняет кеш
// - Save и Delete пишут в backend, сбрасывают ключ и рассылают инвалидацию
// - Поврежденная запись в Redis удаляется и перечитывается из backend
type RedisChunkCache struct {
	client      *redis.Client
	config      *CacheConfig
	backend     storage.ChunkRepository
	serializer  *storage.Serializer
	invalidator CacheInvalidator
	metrics     *metrics.Metrics
	log         *logging.Logger

	hits   int64
	misses int64
	errs   int64
}

// NewRedisChunkCache создаёт кеш чанков поверх backend.
//
// Параметры:
//
//	config - конфигурация Redis
//	backend - постоянное хранилище чанков (обязательно)
//	serializer - кодек записей; nil означает запись без сжатия
//	invalidator - опциональный invalidator для Pub/Sub (может быть nil)
//	m - метрики (может быть nil)
func NewRedisChunkCache(config *CacheConfig, backend storage.ChunkRepository, serializer *storage.Serializer, invalidator CacheInvalidator, m *metrics.Metrics) (*RedisChunkCache, error) {
	if backend == nil {
		return nil, errors.New("redis chunk cache requires a backend repository")
	}

	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
	if serializer == nil {
		serializer = storage.NewSerializer(nil, m)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := &RedisChunkCache{
		client:      rdb,
		config:      config,
		backend:     backend,
		serializer:  serializer,
		invalidator: invalidator,
		metrics:     m,
		log:         logging.GetCacheLogger(),
	}

	c.log.Info("Redis chunk cache initialized: %s (prefix %q, ttl %v)", config.RedisURL, config.KeyPrefix, config.DefaultTTL)
	return c, nil
}

// Subscribe подписывает кеш на инвалидации других узлов.
// Подписка живет до отмены ctx или закрытия invalidator.
func (r *RedisChunkCache) Subscribe(ctx context.Context) error {
	if r.invalidator == nil {
		return nil
	}
	return r.invalidator.SubscribeInvalidations(ctx, r.handleInvalidation)
}

// handleInvalidation сбрасывает локальную копию чанка по ключу "chunk:x:y:z"
func (r *RedisChunkCache) handleInvalidation(key string) error {
	if _, err := storage.ParseChunkKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Del(ctx, r.config.KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	r.log.Debug("Invalidated cached chunk %s", key)
	return nil
}

func (r *RedisChunkCache) redisKey(coords vec.Vec3) string {
	return r.config.KeyPrefix + storage.ChunkKey(coords)
}

// Load возвращает чанк из Redis, при промахе - из backend.
func (r *RedisChunkCache) Load(ctx context.Context, coords vec.Vec3) (*world.Chunk, error) {
	key := r.redisKey(coords)

	payload, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c, decErr := r.serializer.Decode(coords, payload)
		if decErr == nil {
			r.record(resultHit)
			return c, nil
		}
		// Поврежденная запись: удаляем и читаем из backend
		r.log.Warn("Dropping corrupt cached chunk %s: %v", key, decErr)
		r.client.Del(ctx, key)
		r.record(resultError)
	case errors.Is(err, redis.Nil):
		r.record(resultMiss)
	default:
		r.record(resultError)
		r.log.Error("Redis Get error for key %s: %v", key, err)
	}

	c, err := r.backend.Load(ctx, coords)
	if err != nil {
		return nil, err
	}

	// Заполняем кеш для следующих запросов
	if err := r.store(ctx, key, c); err != nil {
		r.log.Warn("Failed to populate cache for %s: %v", key, err)
	}
	return c, nil
}

// Save пишет чанк в backend и сбрасывает кешированную копию.
func (r *RedisChunkCache) Save(ctx context.Context, c *world.Chunk) error {
	if err := r.backend.Save(ctx, c); err != nil {
		return err
	}
	return r.invalidate(ctx, c.Coords)
}

// Delete удаляет чанк из backend и из кеша.
func (r *RedisChunkCache) Delete(ctx context.Context, coords vec.Vec3) error {
	if err := r.backend.Delete(ctx, coords); err != nil {
		return err
	}
	return r.invalidate(ctx, coords)
}

// List делегирует backend: кеш не хранит полный набор ключей.
func (r *RedisChunkCache) List(ctx context.Context) ([]vec.Vec3, error) {
	return r.backend.List(ctx)
}

// Close закрывает Redis-клиент и backend.
func (r *RedisChunkCache) Close() error {
	var errs []string
	if err := r.client.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := r.backend.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Stats возвращает счетчики обращений.
func (r *RedisChunkCache) Stats() CacheStats {
	hits := atomic.LoadInt64(&r.hits)
	misses := atomic.LoadInt64(&r.misses)
	stats := CacheStats{
		Hits:   hits,
		Misses: misses,
		Errors: atomic.LoadInt64(&r.errs),
	}
	if total := hits + misses; total > 0 {
		stats.HitRatio = float64(hits) / float64(total)
	}
	return stats
}

func (r *RedisChunkCache) store(ctx context.Context, key string, c *world.Chunk) error {
	payload, err := r.serializer.Encode(c)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, payload, r.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisChunkCache) invalidate(ctx context.Context, coords vec.Vec3) error {
	if err := r.client.Del(ctx, r.redisKey(coords)).Err(); err != nil {
		r.record(resultError)
		return fmt.Errorf("redis del error: %w", err)
	}

	if r.invalidator != nil {
		if err := r.invalidator.PublishInvalidation(ctx, storage.ChunkKey(coords)); err != nil {
			r.log.Error("Failed to publish invalidation for %s: %v", coords, err)
			return err
		}
	}
	return nil
}

func (r *RedisChunkCache) record(result string) {
	switch result {
	case resultHit:
		atomic.AddInt64(&r.hits, 1)
	case resultMiss:
		atomic.AddInt64(&r.misses, 1)
	default:
		atomic.AddInt64(&r.errs, 1)
	}
	r.metrics.CacheResult(result)
}
