// Package codec реализует обратимое RLE-сжатие содержимого чанков
// и бинарный формат записи чанка для хранилищ.
package codec

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/annel0/voxel-chunks/internal/world/block"
)

// ErrInvalidData возвращается для входа, который не описывает ровно 4096 блоков
var ErrInvalidData = errors.New("invalid compressed chunk data")

// Run - серия одинаковых блоков подряд в порядке индекса чанка
type Run struct {
	Block  block.BlockID `json:"block"`
	Length int           `json:"length"`
}

// CompressedChunk - упорядоченная последовательность серий.
// Производный артефакт: всегда строится заново из Chunk через Encode.
type CompressedChunk struct {
	Runs []Run `json:"runs"`
}

// Len возвращает число пар (block, length)
func (cc CompressedChunk) Len() int {
	return len(cc.Runs)
}

// TotalLength возвращает сумму длин всех серий
func (cc CompressedChunk) TotalLength() int {
	total := 0
	for _, r := range cc.Runs {
		total += r.Length
	}
	return total
}

// Ratio возвращает 4096 / число пар; 0 для пустой последовательности
func (cc CompressedChunk) Ratio() float64 {
	if len(cc.Runs) == 0 {
		return 0
	}
	return float64(world.ChunkVolume) / float64(len(cc.Runs))
}

// Encode кодирует чанк: каждая максимальная серия одинаковых значений
// становится одной парой в порядке сканирования
func Encode(c *world.Chunk) CompressedChunk {
	return EncodeBlocks(c.Blocks())
}

// EncodeBlocks кодирует произвольную последовательность блоков
func EncodeBlocks(ids []block.BlockID) CompressedChunk {
	runs := make([]Run, 0, 16)

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}
		runs = append(runs, Run{Block: b, Length: run})
		i += run
	}

	return CompressedChunk{Runs: runs}
}

// Decode разворачивает серии в новый чанк с нулевыми координатами
func Decode(cc CompressedChunk) (*world.Chunk, error) {
	return DecodeAt(vec.Vec3{}, cc)
}

// DecodeAt разворачивает серии в новый чанк с указанными координатами.
// При ошибке частично собранный чанк не возвращается.
func DecodeAt(coords vec.Vec3, cc CompressedChunk) (*world.Chunk, error) {
	if err := validateRuns(cc.Runs); err != nil {
		return nil, err
	}

	blocks := make([]block.BlockID, 0, world.ChunkVolume)
	for _, r := range cc.Runs {
		for k := 0; k < r.Length; k++ {
			blocks = append(blocks, r.Block)
		}
	}

	return world.NewChunkFromBlocks(coords, blocks)
}

// validateRuns проверяет, что все длины >= 1 и их сумма равна 4096.
// Сумма проверяется по ходу, чтобы огромные длины не приводили к аллокациям.
func validateRuns(runs []Run) error {
	total := 0
	for i, r := range runs {
		if r.Length < 1 {
			return fmt.Errorf("%w: run %d has length %d", ErrInvalidData, i, r.Length)
		}
		if r.Length > world.ChunkVolume-total {
			return fmt.Errorf("%w: runs exceed %d blocks at run %d", ErrInvalidData, world.ChunkVolume, i)
		}
		total += r.Length
	}
	if total != world.ChunkVolume {
		return fmt.Errorf("%w: runs cover %d blocks, want %d", ErrInvalidData, total, world.ChunkVolume)
	}
	return nil
}

// CompressionRatio возвращает отношение 4096 к числу пар кодирования чанка.
// Чанк всегда дает хотя бы одну пару, поэтому деления на ноль нет.
func CompressionRatio(c *world.Chunk) float64 {
	return Encode(c).Ratio()
}
