package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/annel0/voxel-chunks/internal/app"
	"github.com/annel0/voxel-chunks/internal/codec"
	"github.com/annel0/voxel-chunks/internal/storage"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/annel0/voxel-chunks/internal/world/block"
)

var errUnknownCommand = errors.New("unknown command")

func run(ctx context.Context, a *app.App, opts *Options) error {
	return runTo(ctx, os.Stdout, a, opts)
}

func runTo(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	switch opts.Command {
	case "inspect":
		return inspectChunk(ctx, out, a, opts)
	case "roundtrip":
		return roundTrip(ctx, out, a, opts)
	case "set":
		return setBlock(ctx, out, a, opts)
	case "get":
		return getBlock(ctx, out, a, opts)
	case "save":
		return saveChunk(ctx, out, a, opts)
	case "load":
		return loadWorld(ctx, out, a)
	case "diag":
		return diagonal(ctx, out, a, opts)
	case "generate":
		return generate(ctx, out, a, opts)
	case "blocks":
		return listBlocks(out)
	case "serve":
		return serve(ctx, out, a)
	default:
		return errUnknownCommand
	}
}

// chunkFor возвращает сохраненный чанк, а если его нет - создает новый в мире
func chunkFor(ctx context.Context, a *app.App, pos vec.Vec3) (*world.Chunk, error) {
	c, err := storage.LoadChunk(ctx, a.World, a.Repo, pos)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, storage.ErrChunkNotFound) {
		return nil, err
	}
	return a.World.GetOrCreateChunk(pos.X, pos.Y, pos.Z), nil
}

// inspectChunk выводит сводку по слоям и параметры сжатия
func inspectChunk(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	c, err := chunkFor(ctx, a, opts.Chunk)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "🧱 Chunk %s (bedrock layer: %v)\n", c.Coords, c.HasBedrockLayer())
	for y := world.ChunkSize - 1; y >= 0; y-- {
		if id, ok := c.LayerUniform(y); ok {
			fmt.Fprintf(out, "  y=%02d  %s\n", y, block.Name(id))
			continue
		}
		layer, err := c.ChunkLayer(y)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  y=%02d  mixed: %s\n", y, formatCounts(layerCounts(layer)))
	}

	cc := codec.Encode(c)
	fmt.Fprintf(out, "📦 Pairs: %d, ratio: %.2f\n", cc.Len(), cc.Ratio())
	fmt.Fprintf(out, "📊 Blocks: %s\n", formatCounts(c.Histogram()))
	return nil
}

// roundTrip кодирует чанк тем же путем, что и хранилище, и проверяет обратимость
func roundTrip(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	c, err := chunkFor(ctx, a, opts.Chunk)
	if err != nil {
		return err
	}

	compressor, err := codec.CompressorByName(a.Config.Storage.Compression)
	if err != nil {
		return err
	}

	rec := codec.NewRecord(c)
	raw := codec.MarshalRecord(rec)
	payload, err := compressor.Compress(raw)
	if err != nil {
		return err
	}

	restored, err := compressor.Decompress(payload)
	if err != nil {
		return err
	}
	decoded, err := codec.UnmarshalChunk(restored)
	if err != nil {
		return err
	}

	verified := decoded.Equal(c) && decoded.Coords.Equals(c.Coords)
	fmt.Fprintf(out, "🔁 Chunk %s\n", c.Coords)
	fmt.Fprintf(out, "   Pairs:    %d (total length %d)\n", rec.Runs.Len(), rec.Runs.TotalLength())
	fmt.Fprintf(out, "   Ratio:    %.2f\n", rec.Runs.Ratio())
	fmt.Fprintf(out, "   Record:   %d bytes, %s: %d bytes\n", len(raw), compressor.Name(), len(payload))
	fmt.Fprintf(out, "   Verified: %v\n", verified)

	if !verified {
		return fmt.Errorf("round trip mismatch for chunk %s", c.Coords)
	}
	return nil
}

// setBlock меняет один блок и сохраняет чанк
func setBlock(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	if _, err := chunkFor(ctx, a, opts.Chunk); err != nil {
		return err
	}

	ch, l := opts.Chunk, opts.Local
	if err := a.World.SetBlock(ch.X, ch.Y, ch.Z, l.X, l.Y, l.Z, opts.Block); err != nil {
		return err
	}

	saved, err := storage.SaveWorld(ctx, a.World, a.Repo)
	if err != nil {
		return err
	}
	if !block.IsValidBlockID(opts.Block) {
		fmt.Fprintf(out, "⚠️  Block %d is not registered\n", opts.Block)
	}
	fmt.Fprintf(out, "✅ %s%s = %s (%d chunks saved)\n", ch, l, block.Name(opts.Block), saved)
	return nil
}

// getBlock читает блок, не создавая чанк
func getBlock(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	if _, err := storage.LoadChunk(ctx, a.World, a.Repo, opts.Chunk); err != nil && !errors.Is(err, storage.ErrChunkNotFound) {
		return err
	}

	ch, l := opts.Chunk, opts.Local
	id, err := a.World.GetBlock(ch.X, ch.Y, ch.Z, l.X, l.Y, l.Z)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s%s = %d (%s)\n", ch, l, id, block.Name(id))
	return nil
}

// saveChunk создает чанк при необходимости и сохраняет его безусловно
func saveChunk(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	c, err := chunkFor(ctx, a, opts.Chunk)
	if err != nil {
		return err
	}
	if err := storage.SaveChunk(ctx, a.Repo, c); err != nil {
		return err
	}
	fmt.Fprintf(out, "💾 Saved %s (ratio %.2f)\n", storage.ChunkKey(c.Coords), codec.CompressionRatio(c))
	return nil
}

// loadWorld загружает все сохраненные чанки и выводит их список
func loadWorld(ctx context.Context, out io.Writer, a *app.App) error {
	n, err := storage.LoadWorld(ctx, a.World, a.Repo)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📂 Loaded %d chunks\n", n)
	return a.World.ForEachChunk(func(c *world.Chunk) error {
		fmt.Fprintf(out, "  %-16s ratio %8.2f\n", c.Coords, codec.CompressionRatio(c))
		return nil
	})
}

// diagonal проверяет однородность диагонали горизонтального слоя чанка
func diagonal(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	c, err := chunkFor(ctx, a, opts.Chunk)
	if err != nil {
		return err
	}

	grid, err := c.ChunkLayer(opts.Layer)
	if err != nil {
		return err
	}
	uniform, err := world.DiagonalUniform(grid)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Chunk %s layer y=%d diagonal uniform: %v\n", c.Coords, opts.Layer, uniform)
	return nil
}

// generate заполняет чанк ландшафтом и сохраняет его
func generate(ctx context.Context, out io.Writer, a *app.App, opts *Options) error {
	ch := opts.Chunk
	c := a.World.GenerateChunk(ch.X, ch.Y, ch.Z, world.NewTerrainGenerator(opts.Seed))
	if err := storage.SaveChunk(ctx, a.Repo, c); err != nil {
		return err
	}

	cc := codec.Encode(c)
	fmt.Fprintf(out, "🌄 Generated %s (seed %d): %d pairs, ratio %.2f\n", c.Coords, opts.Seed, cc.Len(), cc.Ratio())
	fmt.Fprintf(out, "📊 Blocks: %s\n", formatCounts(c.Histogram()))
	return nil
}

// serve загружает мир и отдает метрики до сигнала завершения
func serve(ctx context.Context, out io.Writer, a *app.App) error {
	addr := a.Config.Metrics.GetAddr()
	if addr == "" {
		return errors.New("metrics address is not configured (metrics.addr or CHUNKS_METRICS_ADDR)")
	}

	n, err := storage.LoadWorld(ctx, a.World, a.Repo)
	if err != nil {
		return err
	}

	srv, err := a.Metrics.StartHTTP(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "📂 Loaded %d chunks, serving metrics on %s\n", n, srv.Addr)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// listBlocks выводит регистр блоков
func listBlocks(out io.Writer) error {
	for _, id := range block.RegisteredIDs() {
		fmt.Fprintf(out, "%5d  %s\n", id, block.Name(id))
	}
	return nil
}

func layerCounts(layer [][]block.BlockID) map[block.BlockID]int {
	counts := make(map[block.BlockID]int)
	for _, row := range layer {
		for _, id := range row {
			counts[id]++
		}
	}
	return counts
}

// formatCounts выводит счетчики блоков по убыванию количества
func formatCounts(counts map[block.BlockID]int) string {
	ids := make([]block.BlockID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s×%d", block.Name(id), counts[id])
	}
	return strings.Join(parts, ", ")
}
