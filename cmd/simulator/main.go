package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/repository/postgres"
	"github.com/xela07ax/citypulse-stream/internal/simulator"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Хранилище
	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required (DATABASE_URL)")
	}
	store, err := postgres.NewStore(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal("Database unreachable", zap.Error(err))
	}
	pingCancel()

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureSchema(schemaCtx); err != nil {
		logger.Fatal("Schema init failed", zap.Error(err))
	}
	schemaCancel()

	// 3. Датасет и симулятор
	dataset, err := simulator.LoadDataset(cfg.Simulator.DatasetPath, logger)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}

	sim := simulator.NewSimulator(store, dataset, logger, cfg.Simulator)

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Graceful Shutdown по сигналу
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("Simulator stopping...")
		cancel()
	}()

	sim.Run(appCtx)
	logger.Info("Simulator exited properly")
}
