package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ironsheep/mask-tools/internal/config"
	"github.com/ironsheep/mask-tools/internal/logging"
	"github.com/ironsheep/mask-tools/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("mask-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("mask-mcp - MCP server for segmentation mask tools")
			fmt.Println()
			fmt.Println("Usage: mask-mcp [-config file.yaml]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  -config FILE     YAML configuration (tiling defaults, results dir)")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  MASKTOOLS_LOG_LEVEL=debug    Enable debug logging")
			fmt.Println("  MASKTOOLS_TILING_SIZE=256    Any configuration key, prefixed with MASKTOOLS_")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			return
		}
	}

	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mask-mcp: %v\n", err)
		os.Exit(2)
	}

	// Logs go to stderr; stdout is for the MCP protocol.
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mask-mcp: %v\n", err)
		os.Exit(2)
	}
	defer logging.Sync(logger)

	logger.Debug("mask MCP server starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("server error", zap.Error(err))
	}
}
