// Package main is the entry point for the LiveCanvas server.
//
// The main package stays small: read configuration, build the logger,
// hand both to internal/server and block until a signal arrives. All the
// wiring lives in internal/server so tests can build the same thing.
//
// CONFIGURATION ORDER (later wins):
//
//	built-in defaults → livecanvas.toml (or -config) → .env → environment
//
// cmd/livecanvas is the terminal tool (run, check, serve); this binary is
// what a deployment runs.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/livecanvas/internal/config"
	"github.com/sakif/livecanvas/internal/logging"
	"github.com/sakif/livecanvas/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	// === 1. CONFIGURATION ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// === 3. BUILD AND START ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until Ctrl+C or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
