package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/annel0/voxel-chunks/internal/metrics"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/dgraph-io/badger/v3"
)

// BadgerChunkRepository хранит чанки в BadgerDB под ключами "chunk:x:y:z"
type BadgerChunkRepository struct {
	db         *badger.DB
	dbPath     string
	serializer *Serializer
	metrics    *metrics.Metrics
	mutex      sync.RWMutex
	isReady    bool
}

// NewBadgerChunkRepository открывает (или создает) базу в dataPath/chunks
func NewBadgerChunkRepository(dataPath string, serializer *Serializer, m *metrics.Metrics) (*BadgerChunkRepository, error) {
	dbPath := filepath.Join(dataPath, "chunks")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", dbPath, err)
	}

	if serializer == nil {
		serializer = NewSerializer(nil, m)
	}

	logging.GetStorageLogger().Info("BadgerDB chunk storage opened: %s (compression: %s)", dbPath, serializer.Compressor().Name())

	return &BadgerChunkRepository{
		db:         db,
		dbPath:     dbPath,
		serializer: serializer,
		metrics:    m,
		isReady:    true,
	}, nil
}

// Path возвращает каталог базы
func (r *BadgerChunkRepository) Path() string {
	return r.dbPath
}

// Close закрывает базу
func (r *BadgerChunkRepository) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}

	r.isReady = false
	return r.db.Close()
}

// Save сохраняет чанк целиком
func (r *BadgerChunkRepository) Save(ctx context.Context, c *world.Chunk) (err error) {
	defer func() { r.metrics.StorageOp("save", err) }()

	if err := checkContext(ctx); err != nil {
		return err
	}

	payload, err := r.serializer.Encode(c)
	if err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return ErrStorageClosed
	}

	key := ChunkKey(c.Coords)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s to BadgerDB: %w", key, err)
	}
	return nil
}

// Load загружает чанк
func (r *BadgerChunkRepository) Load(ctx context.Context, coords vec.Vec3) (c *world.Chunk, err error) {
	defer func() { r.metrics.StorageOp("load", err) }()

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return nil, ErrStorageClosed
	}

	key := ChunkKey(coords)
	var payload []byte
	err = r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s from BadgerDB: %w", key, err)
	}

	return r.serializer.Decode(coords, payload)
}

// Delete удаляет запись чанка
func (r *BadgerChunkRepository) Delete(ctx context.Context, coords vec.Vec3) (err error) {
	defer func() { r.metrics.StorageOp("delete", err) }()

	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return ErrStorageClosed
	}

	key := ChunkKey(coords)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from BadgerDB: %w", key, err)
	}
	return nil
}

// List перебирает ключи с префиксом "chunk:" без чтения значений
func (r *BadgerChunkRepository) List(ctx context.Context) ([]vec.Vec3, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return nil, ErrStorageClosed
	}

	var coords []vec.Vec3
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(chunkKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := checkContext(ctx); err != nil {
				return err
			}
			key := string(it.Item().Key())
			v, err := ParseChunkKey(key)
			if err != nil {
				logging.GetStorageLogger().Warn("Skipping foreign key in chunk storage: %s", key)
				continue
			}
			coords = append(coords, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords, nil
}

// RunGC запускает сборку мусора в логе значений BadgerDB.
// Возвращает nil и в случае, если переписывать было нечего.
func (r *BadgerChunkRepository) RunGC(discardRatio float64) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return ErrStorageClosed
	}

	err := r.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
