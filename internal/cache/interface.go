package cache

import (
	"context"
	"time"
)

// CacheInvalidator управляет инвалидацией кеша чанков через Pub/Sub.
// Узел, изменивший чанк, публикует его ключ; остальные узлы
// сбрасывают свою копию в Redis.
type CacheInvalidator interface {
	// PublishInvalidation отправляет уведомление об инвалидации.
	PublishInvalidation(ctx context.Context, key string) error

	// SubscribeInvalidations подписывается на уведомления об инвалидации.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	// Close закрывает соединение.
	Close() error
}

// InvalidationHandler обрабатывает уведомления об инвалидации кеша.
type InvalidationHandler func(key string) error

// CacheConfig содержит конфигурацию Redis-кеша чанков.
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// KeyPrefix добавляется к ключу чанка "chunk:x:y:z"
	KeyPrefix string

	// TTL записей; 0 - без истечения
	DefaultTTL time.Duration

	MaxConnections int
	PoolTimeout    time.Duration
}

// CacheStats содержит счетчики обращений к кешу.
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Errors   int64   `json:"errors"`
	HitRatio float64 `json:"hit_ratio"`
}

const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)
