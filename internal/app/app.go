package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/annel0/voxel-chunks/internal/cache"
	"github.com/annel0/voxel-chunks/internal/codec"
	"github.com/annel0/voxel-chunks/internal/config"
	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/storage"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/annel0/voxel-chunks/internal/world/block"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendFile   = "file"
)

// App связывает мир, хранилище и метрики, собранные по конфигурации
type App struct {
	Config  *config.Config
	World   *world.World
	Repo    storage.ChunkRepository
	Metrics *metrics.Metrics

	invalidator cache.CacheInvalidator
	cancel      context.CancelFunc
}

// ConfigureLogging применяет уровень и каталог логов из конфигурации
// к глобальному логгеру и логгерам компонентов
func ConfigureLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if cfg.Logging.Dir != "" {
		logging.SetLogDir(cfg.Logging.Dir)
		if err := logging.InitDefaultLogger("chunks"); err != nil {
			return err
		}
	}
	logging.SetDefaultLevel(level)
	logging.GetLoggerManager().SetLevel(level)
	return nil
}

// Open собирает приложение: мир по настройкам world, репозиторий по storage
// и, если включено, Redis-кеш с NATS-инвалидацией поверх него.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	m := metrics.New()

	for id, name := range cfg.World.Blocks {
		block.Register(block.BlockID(id), name)
	}

	w := world.NewWorld(world.Config{
		MinChunkY:      cfg.World.GetMinChunkY(),
		BedrockBlockID: block.BlockID(cfg.World.BedrockBlock),
	}, world.WithMetrics(m))

	compressor, err := codec.CompressorByName(cfg.Storage.Compression)
	if err != nil {
		return nil, err
	}
	serializer := storage.NewSerializer(compressor, m)

	repo, err := openBackend(cfg, serializer, m)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, World: w, Repo: repo, Metrics: m}

	if cfg.Cache.Enabled {
		if err := a.enableCache(ctx, serializer); err != nil {
			repo.Close()
			return nil, err
		}
	}

	logging.Info("Chunk store ready: backend=%s compression=%s cache=%v min_chunk_y=%d",
		cfg.Storage.Backend, compressor.Name(), cfg.Cache.Enabled, w.Config().MinChunkY)
	return a, nil
}

func openBackend(cfg *config.Config, serializer *storage.Serializer, m *metrics.Metrics) (storage.ChunkRepository, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", BackendMemory:
		return storage.NewMemoryChunkRepository(serializer, m), nil
	case BackendBadger:
		return storage.NewBadgerChunkRepository(cfg.Storage.GetDataDir(), serializer, m)
	case BackendFile:
		return storage.NewFileChunkRepository(filepath.Join(cfg.Storage.GetDataDir(), "files"), serializer, m)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected %s, %s or %s)", cfg.Storage.Backend, BackendMemory, BackendBadger, BackendFile)
	}
}

func (a *App) enableCache(ctx context.Context, serializer *storage.Serializer) error {
	cc := a.Config.Cache

	if url := cc.GetNATSURL(); url != "" {
		inv, err := cache.NewNATSInvalidator(&cache.InvalidatorConfig{
			NATSURL: url,
			Subject: cc.NATSSubject,
		}, nodeID())
		if err != nil {
			return err
		}
		a.invalidator = inv
	}

	redisCache, err := cache.NewRedisChunkCache(&cache.CacheConfig{
		RedisURL:      cc.GetRedisAddr(),
		RedisPassword: cc.RedisPassword,
		RedisDB:       cc.RedisDB,
		KeyPrefix:     cc.KeyPrefix,
		DefaultTTL:    cc.TTL,
	}, a.Repo, serializer, a.invalidator, a.Metrics)
	if err != nil {
		a.closeInvalidator()
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	if err := redisCache.Subscribe(subCtx); err != nil {
		cancel()
		a.closeInvalidator()
		return err
	}

	a.Repo = redisCache
	a.cancel = cancel
	return nil
}

func (a *App) closeInvalidator() {
	if a.invalidator != nil {
		a.invalidator.Close()
		a.invalidator = nil
	}
}

// Close сохраняет измененные чанки и освобождает ресурсы
func (a *App) Close(ctx context.Context) error {
	_, saveErr := storage.SaveWorld(ctx, a.World, a.Repo)

	if a.cancel != nil {
		a.cancel()
	}
	a.closeInvalidator()

	if err := a.Repo.Close(); err != nil {
		return err
	}
	return saveErr
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "node"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
