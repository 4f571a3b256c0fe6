package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nstogner/dispatch/pkg/archive"
	"github.com/nstogner/dispatch/pkg/config"
	"github.com/nstogner/dispatch/pkg/engine"
	"github.com/nstogner/dispatch/pkg/model/gemini"
	"github.com/nstogner/dispatch/pkg/registry"
	"github.com/nstogner/dispatch/pkg/server"
	"github.com/nstogner/dispatch/pkg/tools"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.Default()
	if path, err := config.FindConfig(*configPath); err != nil {
		slog.Error("Failed to locate config", "error", err)
		os.Exit(1)
	} else if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			slog.Error("Failed to load config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Setup logger.
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.Gemini.APIKey == "" {
		slog.Error("GEMINI_API_KEY environment variable not set")
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize model provider.
	provider, err := gemini.New(ctx, cfg.Gemini.APIKey)
	if err != nil {
		slog.Error("Failed to initialize Gemini provider", "error", err)
		os.Exit(1)
	}

	// Initialize tool registry.
	toolReg := tools.NewRegistry()
	toolReg.Register(&tools.ListFilesTool{Root: cfg.Engine.WorkspaceDir})
	toolReg.Register(&tools.ReadFileTool{Root: cfg.Engine.WorkspaceDir})
	toolReg.Register(&tools.WriteFileTool{Root: cfg.Engine.WorkspaceDir})
	toolReg.Register(tools.NewFetchURLTool())

	// Initialize conversation registry and archive.
	reg := registry.New()

	var arc *archive.Archive
	if cfg.DBPath != "" {
		os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
		arc, err = archive.New(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize archive", "path", cfg.DBPath, "error", err)
			os.Exit(1)
		}
		defer arc.Close()
	}

	// Initialize engine.
	var opts []engine.Option
	if cfg.Engine.ToolTimeoutSec > 0 {
		opts = append(opts, engine.WithToolTimeout(time.Duration(cfg.Engine.ToolTimeoutSec)*time.Second))
	}
	eng := engine.New(provider, toolReg, reg, opts...)

	// Start server.
	addr := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	srv := server.New(eng, reg, arc, provider, toolReg)
	srv.Defaults = server.Defaults{
		Model:            cfg.Engine.DefaultModel,
		MaxTurns:         cfg.Engine.DefaultMaxTurns,
		AllowUnsafeTools: cfg.Engine.AllowUnsafeTools,
	}
	if err := srv.Start(addr); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
