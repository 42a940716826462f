// Package main is the entry point for the GoldPress plugin host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/goldpress/goldpress/internal/admin"
	"github.com/goldpress/goldpress/internal/ai"
	"github.com/goldpress/goldpress/internal/autoload"
	"github.com/goldpress/goldpress/internal/config"
	"github.com/goldpress/goldpress/internal/content"
	"github.com/goldpress/goldpress/internal/plugin"
	"github.com/goldpress/goldpress/internal/plugin/dispatch"
	"github.com/goldpress/goldpress/internal/plugin/hostapi"
	"github.com/goldpress/goldpress/internal/plugin/lua"
	"github.com/goldpress/goldpress/internal/plugin/registry"
	"github.com/goldpress/goldpress/internal/settings"
	"github.com/goldpress/goldpress/internal/storage"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "goldpress.toml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "goldpress.toml", "Path to configuration file (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("GoldPress %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		return 1
	}

	log := newLogger(cfg.Log)

	if err := serve(cfg, log); err != nil {
		log.Error().Err(err).Msg("host exited with error")
		return 1
	}
	return 0
}

// serve wires the host together and runs until a termination signal.
func serve(cfg config.Config, log zerolog.Logger) error {
	store, err := plugin.NewFileStore(filepath.Join(cfg.Plugins.DataDir, "records"))
	if err != nil {
		return fmt.Errorf("opening plugin store: %w", err)
	}
	manager := plugin.NewManager(store, log)

	settingsStore, err := settings.Open(cfg.Content.SettingsPath)
	if err != nil {
		return fmt.Errorf("opening settings: %w", err)
	}
	uploads, err := storage.NewLocalBackend(cfg.Content.UploadDir)
	if err != nil {
		return fmt.Errorf("opening upload backend: %w", err)
	}
	archives, err := storage.NewLocalBackend(cfg.Plugins.DataDir)
	if err != nil {
		return fmt.Errorf("opening archive backend: %w", err)
	}

	opts := []hostapi.Option{
		hostapi.WithPosts(content.NewMemoryRepository()),
		hostapi.WithSettings(settingsStore),
		hostapi.WithUploads(uploads),
	}
	if cfg.AI.APIKey != "" {
		opts = append(opts, hostapi.WithAI(ai.NewAnthropic(cfg.AI.APIKey, cfg.AI.Model)))
	} else {
		log.Info().Msg("no AI api key configured, ai:chat surface disabled")
	}
	facade := hostapi.NewFacade(manager, log, opts...)

	runtime := lua.NewRuntime(facade, log)
	defer runtime.Close()

	dispatcher, err := dispatch.NewDispatcher(manager, runtime, log, cfg.Plugins.HookTimeoutDuration())
	if err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	defer dispatcher.Close()

	service := admin.NewService(manager, runtime, archives, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.LoadEnabled(ctx); err != nil {
		log.Warn().Err(err).Msg("some enabled guests failed to load")
	}

	watcher, err := autoload.NewWatcher(cfg.Plugins.DropDir, service, log)
	if err != nil {
		return fmt.Errorf("watching drop directory: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("syncing drop directory")
	}

	if err := dispatcher.DispatchAction(registry.HookActionSystemStartup, map[string]any{
		"version": version,
	}); err != nil {
		log.Warn().Err(err).Msg("startup hook dispatch failed")
	}

	log.Info().Str("version", version).Str("data_dir", cfg.Plugins.DataDir).Msg("goldpress running")
	<-ctx.Done()

	log.Info().Msg("shutting down")
	if err := dispatcher.DispatchAction(registry.HookActionSystemShutdown, nil); err != nil {
		log.Warn().Err(err).Msg("shutdown hook dispatch failed")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dispatcher.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("handlers still running at shutdown")
	}
	return nil
}

// newLogger builds the root logger from config.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if !cfg.Pretty {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
