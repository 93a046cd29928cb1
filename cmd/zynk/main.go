package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/database"
	"github.com/zynkhq/zynk/internal/logger"
	"github.com/zynkhq/zynk/internal/modules/modulemanager"
	"github.com/zynkhq/zynk/internal/server"

	// Modules register themselves on import
	_ "github.com/zynkhq/zynk/internal/modules/sessionmodule"
)

func main() {
	configPath := os.Getenv("ZYNK_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./zynk.yaml"); err == nil {
			configPath = "./zynk.yaml"
		}
	}

	configErr := config.Load(configPath)
	cfg := config.Get()

	log := logger.Init(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if configErr != nil {
		log.Warn("failed to load configuration, using defaults", "path", configPath, "error", configErr)
	} else if configPath != "" {
		log.Info("configuration loaded", "path", configPath)
	}

	config.AddWatcher(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Logging != newConfig.Logging {
			logger.Init(logger.Options{Level: newConfig.Logging.Level, Format: newConfig.Logging.Format})
			logger.Info("log settings reloaded", "level", newConfig.Logging.Level)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		watcher, err := config.NewFileWatcher(config.GetConfigManager(), log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else if err := watcher.Start(ctx); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	db, err := database.Connect(cfg.Database, log.Named("database"))
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	if err := registerServices(ctx, cfg, db); err != nil {
		log.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	if err := modulemanager.LoadAll(ctx, db); err != nil {
		log.Error("failed to load modules", "error", err)
		os.Exit(1)
	}

	srv := server.NewHTTPServer(cfg.Server, server.SetupRouter(cfg))

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting zynk server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-serveErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", "error", err)
	}
	if err := modulemanager.ShutdownAll(shutdownCtx); err != nil {
		log.Warn("module shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server shutdown complete")
}
