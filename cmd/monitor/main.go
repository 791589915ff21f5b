package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/terminal-bench/motorwatch/internal/alerting"
	"github.com/terminal-bench/motorwatch/internal/anomaly"
	"github.com/terminal-bench/motorwatch/internal/bridge"
	"github.com/terminal-bench/motorwatch/internal/history"
	"github.com/terminal-bench/motorwatch/internal/livecache"
	"github.com/terminal-bench/motorwatch/internal/pipeline"
	"github.com/terminal-bench/motorwatch/internal/storage"
	"github.com/terminal-bench/motorwatch/internal/thresholds"
	"github.com/terminal-bench/motorwatch/pkg/circuit"
	"github.com/terminal-bench/motorwatch/pkg/config"
	"github.com/terminal-bench/motorwatch/pkg/messaging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	store := storage.NewPostgres(db)
	if err := store.InitSchema(ctx); err != nil {
		log.Fatal("failed to init schema", zap.Error(err))
	}

	bus, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSURL,
		Name:           cfg.ClientName,
		ReconnectWait:  time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to bus", zap.Error(err))
	}

	detector := anomaly.NewDetector(cfg.ModelPath, log)
	if err := detector.Load(); err != nil {
		log.Warn("failed to load anomaly model, starting untrained", zap.Error(err))
	} else if detector.Trained() {
		log.Info("anomaly model restored", zap.String("path", cfg.ModelPath))
	}

	var cache *livecache.Cache
	if cfg.RedisAddr != "" {
		cache = livecache.New(cfg.RedisAddr)
		if err := cache.Ping(ctx); err != nil {
			log.Warn("redis unreachable, live cache disabled", zap.Error(err))
			cache = nil
		}
	}

	var recorder *history.Recorder
	if cfg.InfluxURL != "" {
		recorder = history.NewRecorder(history.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, log)
		defer recorder.Close()
	}

	manager := alerting.NewManager(alerting.Config{
		Store:        store,
		Evaluator:    thresholds.NewEvaluator(store),
		Scorer:       detector,
		Publisher:    bus,
		Breaker:      circuit.NewBreaker(5, 30*time.Second),
		Cache:        cache,
		History:      recorder,
		FailureTopic: cfg.TopicPrefix + "failure",
		AlertTTL:     cfg.AlertTTL,
		Log:          log,
	})

	runner := pipeline.NewRunner(cfg.QueueSize, cfg.Workers, log)
	runner.Start(ctx)

	br := bridge.New(bus, runner, manager, store, cfg.TopicPrefix, log)
	if err := br.Start(ctx); err != nil {
		log.Fatal("failed to start bridge", zap.Error(err))
	}

	srv := newHTTPServer(cfg.HTTPPort, runner, bus)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	log.Info("monitor running",
		zap.String("prefix", cfg.TopicPrefix),
		zap.String("port", cfg.HTTPPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// Stop intake first, then drain the pipeline, then close everything
	// else.
	br.Stop(ctx)
	bus.Close()
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	if cache != nil {
		cache.Close()
	}
	log.Info("monitor stopped")
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}

func newHTTPServer(port string, runner *pipeline.Runner, bus *messaging.Client) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		if !bus.IsConnected() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":        http.StatusText(status),
			"bus_connected": bus.IsConnected(),
		})
	})

	r.GET("/api/v1/pipeline/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, runner.Stats())
	})

	return &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
}
