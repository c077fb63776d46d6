package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
)

// SaveChunk сохраняет один чанк и снимает с него учтенные изменения.
// Изменения, сделанные во время записи, остаются и попадут в следующее сохранение.
func SaveChunk(ctx context.Context, repo ChunkRepository, c *world.Chunk) error {
	pending := c.ChangeCount()
	if err := repo.Save(ctx, c); err != nil {
		return err
	}
	c.AckChanges(pending)
	return nil
}

// SaveWorld сохраняет все измененные чанки мира и возвращает их количество.
// При ошибке возвращает количество уже сохраненных чанков.
func SaveWorld(ctx context.Context, w *world.World, repo ChunkRepository) (int, error) {
	saved := 0
	for _, c := range w.DirtyChunks() {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if err := SaveChunk(ctx, repo, c); err != nil {
			return saved, fmt.Errorf("failed to save chunk %s: %w", c.Coords, err)
		}
		saved++
	}

	if saved > 0 {
		logging.GetStorageLogger().Info("Saved %d chunks", saved)
	}
	return saved, nil
}

// LoadWorld восстанавливает в мир все сохраненные чанки и возвращает их количество.
// Уже загруженные чанки перезаписываются на месте с сохранением идентичности.
func LoadWorld(ctx context.Context, w *world.World, repo ChunkRepository) (int, error) {
	coords, err := repo.List(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, pos := range coords {
		if _, err := LoadChunk(ctx, w, repo, pos); err != nil {
			return loaded, err
		}
		loaded++
	}

	logging.GetStorageLogger().Info("Loaded %d chunks", loaded)
	return loaded, nil
}

// LoadChunk загружает один чанк и помещает его в мир.
// Возвращает чанк, принадлежащий миру, или ErrChunkNotFound.
func LoadChunk(ctx context.Context, w *world.World, repo ChunkRepository, pos vec.Vec3) (*world.Chunk, error) {
	c, err := repo.Load(ctx, pos)
	if err != nil {
		if errors.Is(err, ErrChunkNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load chunk %s: %w", pos, err)
	}
	return w.PutChunk(c), nil
}
