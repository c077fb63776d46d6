package world

import (
	"fmt"

	"github.com/annel0/voxel-chunks/internal/world/block"
)

// DiagonalUniform проверяет, что все клетки главной диагонали (i,i) квадратной
// сетки содержат один и тот же тип блока. Пустая сетка считается однородной.
func DiagonalUniform(grid [][]block.BlockID) (bool, error) {
	n := len(grid)
	for i, row := range grid {
		if len(row) != n {
			return false, fmt.Errorf("%w: row %d has %d cells, grid is %dx%d", ErrOutOfRange, i, len(row), n, n)
		}
	}

	for i := 1; i < n; i++ {
		if grid[i][i] != grid[0][0] {
			return false, nil
		}
	}
	return true, nil
}

// ChunkLayer возвращает слой y чанка как квадратную сетку [z][x]
func (c *Chunk) ChunkLayer(y int) ([][]block.BlockID, error) {
	if _, err := Index(0, y, 0); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	grid := make([][]block.BlockID, ChunkSize)
	for z := 0; z < ChunkSize; z++ {
		grid[z] = make([]block.BlockID, ChunkSize)
		for x := 0; x < ChunkSize; x++ {
			grid[z][x] = c.blocks[x+ChunkSize*y+LayerSize*z]
		}
	}
	return grid, nil
}
