package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
)

const chunkFileExt = ".vch"

// FileChunkRepository хранит каждый чанк в отдельном файле chunk_x_y_z.vch.
// Запись идет во временный файл с последующим переименованием,
// поэтому читатель никогда не видит наполовину записанный чанк.
type FileChunkRepository struct {
	basePath   string
	serializer *Serializer
	metrics    *metrics.Metrics
	mu         sync.RWMutex
	closed     bool
}

// NewFileChunkRepository создаёт файловое хранилище в basePath
func NewFileChunkRepository(basePath string, serializer *Serializer, m *metrics.Metrics) (*FileChunkRepository, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", basePath, err)
	}
	if serializer == nil {
		serializer = NewSerializer(nil, m)
	}
	return &FileChunkRepository{
		basePath:   basePath,
		serializer: serializer,
		metrics:    m,
	}, nil
}

// Save записывает чанк в файл
func (r *FileChunkRepository) Save(ctx context.Context, c *world.Chunk) (err error) {
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

	filename := r.chunkFilename(c.Coords)
	tmp, err := os.CreateTemp(r.basePath, ".chunk-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// Load читает чанк из файла
func (r *FileChunkRepository) Load(ctx context.Context, coords vec.Vec3) (c *world.Chunk, err error) {
	defer func() { r.metrics.StorageOp("load", err) }()

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrStorageClosed
	}
	payload, err := os.ReadFile(r.chunkFilename(coords))
	r.mu.RUnlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", coords, err)
	}
	return r.serializer.Decode(coords, payload)
}

// Delete удаляет файл чанка
func (r *FileChunkRepository) Delete(ctx context.Context, coords vec.Vec3) (err error) {
	defer func() { r.metrics.StorageOp("delete", err) }()

	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStorageClosed
	}
	err = os.Remove(r.chunkFilename(coords))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete chunk %s: %w", coords, err)
	}
	return nil
}

// List перечисляет файлы чанков в каталоге
func (r *FileChunkRepository) List(ctx context.Context) ([]vec.Vec3, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrStorageClosed
	}

	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.basePath, err)
	}

	var coords []vec.Vec3
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if v, ok := parseChunkFilename(e.Name()); ok {
			coords = append(coords, v)
		}
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords, nil
}

// Close помечает хранилище закрытым
func (r *FileChunkRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

func (r *FileChunkRepository) chunkFilename(coords vec.Vec3) string {
	return filepath.Join(r.basePath, fmt.Sprintf("chunk_%d_%d_%d%s", coords.X, coords.Y, coords.Z, chunkFileExt))
}

func parseChunkFilename(name string) (vec.Vec3, bool) {
	base := strings.TrimSuffix(name, chunkFileExt)
	if base == name {
		return vec.Vec3{}, false
	}
	v, err := ParseChunkKey(strings.ReplaceAll(base, "_", ":"))
	if err != nil {
		return vec.Vec3{}, false
	}
	return v, true
}
