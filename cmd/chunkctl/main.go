package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/voxel-chunks/internal/app"
	"github.com/annel0/voxel-chunks/internal/config"
	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world/block"
)

const commands = "inspect, roundtrip, set, get, save, load, diag, generate, blocks, serve"

// Options содержит разобранные флаги командной строки
type Options struct {
	Command string
	Chunk   vec.Vec3
	Local   vec.Vec3
	Block   block.BlockID
	Layer   int
	Seed    int64
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (default: $CHUNKS_CONFIG)")
		dataDir    = flag.String("data", "", "Badger data directory (selects the badger backend)")
		command    = flag.String("cmd", "inspect", "Command: "+commands)
		chunkArg   = flag.String("chunk", "0,0,0", "Chunk grid coordinates x,y,z")
		localArg   = flag.String("local", "0,0,0", "Local block coordinates x,y,z (0..15)")
		posArg     = flag.String("pos", "", "World block position x,y,z (overrides -chunk and -local)")
		blockArg   = flag.String("block", block.Name(block.StoneBlockID), "Block ID or name for set")
		layer      = flag.Int("layer", 0, "Local layer y for diag")
		seed       = flag.Int64("seed", 1, "Terrain seed for generate")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.Storage.Backend = app.BackendBadger
		cfg.Storage.DataDir = *dataDir
	}
	if err := app.ConfigureLogging(cfg); err != nil {
		log.Fatalf("❌ Invalid logging config: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	opts, err := parseOptions(*command, *chunkArg, *localArg, *posArg, *blockArg, *layer)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	opts.Seed = *seed

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open chunk store: %v", err)
	}

	runErr := run(ctx, a, opts)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logging.Error("Failed to close chunk store: %v", err)
	}

	if runErr != nil {
		if errors.Is(runErr, errUnknownCommand) {
			fmt.Printf("❌ Unknown command: %s\n", opts.Command)
			fmt.Printf("Available commands: %s\n", commands)
			os.Exit(1)
		}
		log.Fatalf("❌ %s failed: %v", opts.Command, runErr)
	}
}

func parseOptions(command, chunkArg, localArg, posArg, blockArg string, layer int) (*Options, error) {
	chunk, err := vec.ParseVec3(chunkArg)
	if err != nil {
		return nil, fmt.Errorf("invalid -chunk: %w", err)
	}
	local, err := vec.ParseVec3(localArg)
	if err != nil {
		return nil, fmt.Errorf("invalid -local: %w", err)
	}

	// Мировая позиция задает чанк и локальные координаты сразу
	if posArg != "" {
		pos, err := vec.ParseVec3(posArg)
		if err != nil {
			return nil, fmt.Errorf("invalid -pos: %w", err)
		}
		chunk, local = pos.ToChunkCoords(), pos.LocalInChunk()
	}

	id, err := parseBlock(blockArg)
	if err != nil {
		return nil, err
	}
	return &Options{
		Command: command,
		Chunk:   chunk,
		Local:   local,
		Block:   id,
		Layer:   layer,
	}, nil
}

// parseBlock принимает числовой ID или имя из регистра блоков
func parseBlock(s string) (block.BlockID, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return block.BlockID(n), nil
	} else if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("invalid -block: %s does not fit a block ID", s)
	}

	if id, ok := block.Lookup(strings.ToLower(s)); ok {
		return id, nil
	}
	return 0, fmt.Errorf("invalid -block: unknown block %q", s)
}
