package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	World   WorldConfig   `yaml:"world"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// WorldConfig задает параметры генерации новых чанков
type WorldConfig struct {
	MinChunkY    int    `yaml:"min_chunk_y"`   // Нижний слой сетки чанков, получающий бедрок
	BedrockBlock uint16 `yaml:"bedrock_block"` // ID блока бедрока

	// Дополнительные имена блоков, ID -> имя
	Blocks map[uint16]string `yaml:"blocks"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"`     // memory | badger | file
	DataDir     string `yaml:"data_dir"`    // Каталог BadgerDB
	Compression string `yaml:"compression"` // none | zstd
}

type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
	TTL           time.Duration `yaml:"ttl"`
	NATSURL       string        `yaml:"nats_url"` // Пусто - без распределенной инвалидации
	NATSSubject   string        `yaml:"nats_subject"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // Пусто - HTTP-эндпоинт не запускается
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			MinChunkY:    0,
			BedrockBlock: 7,
		},
		Storage: StorageConfig{
			Backend:     "memory",
			DataDir:     "data",
			Compression: "zstd",
		},
		Cache: CacheConfig{
			RedisAddr:   "localhost:6379",
			KeyPrefix:   "voxel:chunk:",
			TTL:         5 * time.Minute,
			NATSSubject: "voxel.chunk.invalidate",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetDataDir возвращает каталог данных с приоритетом: env -> config
func (s *StorageConfig) GetDataDir() string {
	return getStringWithEnvFallback(s.DataDir, "CHUNKS_DATA_DIR")
}

// GetRedisAddr возвращает адрес Redis с приоритетом: env -> config
func (c *CacheConfig) GetRedisAddr() string {
	return getStringWithEnvFallback(c.RedisAddr, "CHUNKS_REDIS_ADDR")
}

// GetNATSURL возвращает адрес NATS с приоритетом: env -> config
func (c *CacheConfig) GetNATSURL() string {
	return getStringWithEnvFallback(c.NATSURL, "CHUNKS_NATS_URL")
}

// GetAddr возвращает адрес метрик с приоритетом: env -> config
func (m *MetricsConfig) GetAddr() string {
	return getStringWithEnvFallback(m.Addr, "CHUNKS_METRICS_ADDR")
}

// GetMinChunkY возвращает нижний слой мира с приоритетом: env -> config
func (w *WorldConfig) GetMinChunkY() int {
	if envVal := os.Getenv("CHUNKS_MIN_CHUNK_Y"); envVal != "" {
		if y, err := strconv.Atoi(envVal); err == nil {
			return y
		}
	}
	return w.MinChunkY
}

// getStringWithEnvFallback возвращает значение переменной окружения, если она задана
func getStringWithEnvFallback(configValue, envVar string) string {
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return configValue
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV CHUNKS_CONFIG; если и он пуст,
// возвращает конфигурацию по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CHUNKS_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
