// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/threadgate/threadgate/pkg/adapters/http"
	"github.com/threadgate/threadgate/pkg/core/api"
	"github.com/threadgate/threadgate/pkg/core/config"
	"github.com/threadgate/threadgate/pkg/core/engine"
	"github.com/threadgate/threadgate/pkg/core/state"
	"github.com/threadgate/threadgate/pkg/observability/logging"
	"github.com/threadgate/threadgate/pkg/storage/memory"
	"github.com/threadgate/threadgate/pkg/storage/postgres"
	"github.com/threadgate/threadgate/pkg/storage/sqlite"
)

var (
	// Version is set via ldflags during build
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.Int("port", 8080, "HTTP port to listen on")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("Threadgate Server\nVersion: %s\nBuild Time: %s\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}
	if *port != 8080 {
		cfg.Server.Port = *port
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info("Starting Threadgate Server",
		"version", Version,
		"build_time", BuildTime)

	// Initialize storage
	var store state.SessionStore
	switch cfg.Storage.Type {
	case "postgres":
		store, err = postgres.New(cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Error("Failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
		logger.Info("Initialized postgres storage")
	case "memory":
		store = memory.New()
		logger.Info("Initialized in-memory storage")
	default:
		store, err = sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			logger.Error("Failed to initialize sqlite storage", "error", err)
			os.Exit(1)
		}
		logger.Info("Initialized sqlite storage", "path", cfg.Storage.SQLitePath)
	}
	defer store.Close()

	// Initialize backend client
	if cfg.Backend.Endpoint == "" {
		logger.Error("Backend endpoint is not configured")
		os.Exit(1)
	}
	client := api.NewOpenAIClient(cfg.Backend.Endpoint, cfg.Backend.APIKey, cfg.Backend.Timeout)
	logger.Info("Initialized backend client", "endpoint", cfg.Backend.Endpoint)

	// Initialize engine and HTTP adapter
	eng := engine.New(store, client, logger)
	handler := httpAdapter.New(eng, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
