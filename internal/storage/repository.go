package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/voxel-chunks/internal/codec"
	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
)

var (
	// ErrChunkNotFound возвращается, если чанк отсутствует в хранилище
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrStorageClosed возвращается при обращении к закрытому хранилищу
	ErrStorageClosed = errors.New("storage is closed")
)

// ChunkRepository определяет интерфейс хранения чанков.
// Чанк хранится целиком в виде сжатой RLE-записи.
type ChunkRepository interface {
	// Save сохраняет текущее содержимое чанка, перезаписывая прежнюю запись.
	Save(ctx context.Context, c *world.Chunk) error

	// Load загружает чанк по координатам сетки.
	// Возвращает ErrChunkNotFound, если записи нет.
	Load(ctx context.Context, coords vec.Vec3) (*world.Chunk, error)

	// Delete удаляет запись чанка. Удаление отсутствующей записи не является ошибкой.
	Delete(ctx context.Context, coords vec.Vec3) error

	// List возвращает координаты всех сохраненных чанков.
	List(ctx context.Context) ([]vec.Vec3, error)

	// Close освобождает ресурсы хранилища.
	Close() error
}

const chunkKeyPrefix = "chunk:"

// ChunkKey формирует ключ записи чанка: "chunk:x:y:z"
func ChunkKey(coords vec.Vec3) string {
	return fmt.Sprintf("%s%d:%d:%d", chunkKeyPrefix, coords.X, coords.Y, coords.Z)
}

// ParseChunkKey разбирает ключ, созданный ChunkKey
func ParseChunkKey(key string) (vec.Vec3, error) {
	var v vec.Vec3
	n, err := fmt.Sscanf(key, chunkKeyPrefix+"%d:%d:%d", &v.X, &v.Y, &v.Z)
	if err != nil || n != 3 {
		return vec.Vec3{}, fmt.Errorf("invalid chunk key %q", key)
	}
	if ChunkKey(v) != key {
		return vec.Vec3{}, fmt.Errorf("invalid chunk key %q", key)
	}
	return v, nil
}

// Serializer превращает чанк в байты для хранилища и обратно:
// бинарная запись codec.Record, обернутая выбранным компрессором.
type Serializer struct {
	compressor codec.Compressor
	metrics    *metrics.Metrics
}

// NewSerializer создает сериализатор. nil-компрессор означает запись без сжатия.
func NewSerializer(compressor codec.Compressor, m *metrics.Metrics) *Serializer {
	if compressor == nil {
		compressor = codec.NewRawCompressor()
	}
	return &Serializer{compressor: compressor, metrics: m}
}

// Compressor возвращает используемый компрессор
func (s *Serializer) Compressor() codec.Compressor {
	return s.compressor
}

// Encode сериализует чанк
func (s *Serializer) Encode(c *world.Chunk) ([]byte, error) {
	rec := codec.NewRecord(c)
	s.metrics.ChunkEncoded(rec.Runs.Ratio())

	payload, err := s.compressor.Compress(codec.MarshalRecord(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to compress chunk %s: %w", c.Coords, err)
	}
	return payload, nil
}

// Decode восстанавливает чанк и проверяет, что его координаты совпадают с ключом
func (s *Serializer) Decode(coords vec.Vec3, payload []byte) (*world.Chunk, error) {
	key := ChunkKey(coords)

	raw, err := s.compressor.Decompress(payload)
	if err != nil {
		s.metrics.DecodeFailed()
		logging.LogRecordError(key, err, payload)
		return nil, fmt.Errorf("failed to decompress %s: %w", key, err)
	}

	c, err := codec.UnmarshalChunk(raw)
	if err != nil {
		s.metrics.DecodeFailed()
		logging.LogRecordError(key, err, raw)
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	if !c.Coords.Equals(coords) {
		s.metrics.DecodeFailed()
		return nil, fmt.Errorf("record %s holds chunk %s: %w", key, c.Coords, codec.ErrInvalidData)
	}
	return c, nil
}

// checkContext возвращает ошибку отмененного контекста
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
