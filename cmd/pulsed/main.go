package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/classify"
	"github.com/xela07ax/citypulse-stream/internal/hub"
	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/insight"
	"github.com/xela07ax/citypulse-stream/internal/monitor"
	"github.com/xela07ax/citypulse-stream/internal/pipeline"
	"github.com/xela07ax/citypulse-stream/internal/repository/postgres"
	"github.com/xela07ax/citypulse-stream/internal/server"
	"github.com/xela07ax/citypulse-stream/internal/stats"
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

	// 2. Инфраструктура и ресурсы
	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required (DATABASE_URL)")
	}
	store, err := postgres.NewStore(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	// Проверяем соединение с таймаутом
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

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// 3. Рассылка: хаб и (опционально) Redis-relay между инстансами
	h := hub.NewHub(cfg.Hub, logger, metrics)
	defer h.Close()

	var out classify.Publisher = h
	if cfg.Hub.RelayEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		relay := hub.NewRelay(h, rdb, cfg.Hub.RelayChannel, logger)
		go relay.Run(appCtx)
		out = relay
	}

	// 4. Стадии пайплайна (Dependency Injection)
	classifier := classify.NewClassifier(cfg.Classify, out, logger)
	dispatcher := classify.NewDispatcher(out, logger)

	incidentMon := monitor.NewIncidentMonitor(store, classifier, logger, metrics, cfg.Monitor)
	activityMon := monitor.NewActivityMonitor(store, dispatcher, logger, metrics, cfg.Monitor)
	go incidentMon.Run(appCtx)
	go activityMon.Run(appCtx)

	aggregator := stats.NewAggregator(store, out, logger, metrics, cfg.Stats, cfg.Classify.EmergencyThreshold)
	go aggregator.Run(appCtx)

	if cfg.Insight.Enabled {
		// Пустой endpoint — суммаризация сразу уходит в rule-based fallback
		var external insight.Summarizer
		if cfg.Insight.Endpoint != "" {
			external = insight.NewHTTPSummarizer(cfg.Insight.Endpoint, cfg.Insight.CallTimeout)
		}
		summarizer := insight.NewReliableSummarizer(external, cfg.Insight.RateLimit, cfg.Insight.CallTimeout)
		generator := insight.NewGenerator(store, summarizer, out, logger, cfg.Insight, cfg.Stats.WindowMinutes)
		go generator.Run(appCtx)
	}

	// 5. HTTP Server (SSE-стрим, статистика, health)
	api := server.NewServer(cfg.Server, cfg.Hub, h, aggregator, logger)
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     api.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout нулевой: SSE-стрим живет дольше любого таймаута,
		// дедлайны записи ставятся покадрово в обработчике
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("CityPulse stream started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-stop // Ждем сигнал
	logger.Info("CityPulse stream stopping...")
	cancel() // Останавливаем мониторы, агрегатор и relay

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	logger.Info("CityPulse stream exited properly")
}
