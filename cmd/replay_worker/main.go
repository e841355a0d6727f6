package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"replay_worker/internal/replay/api/handlers"
	"replay_worker/internal/replay/api/router"
	"replay_worker/internal/replay/app"
	"replay_worker/internal/replay/domain"
	"replay_worker/internal/replay/repository"
	"replay_worker/pkg/config"
	"replay_worker/pkg/database"
	"replay_worker/pkg/logger"
	"replay_worker/pkg/metrics"
	testtool "replay_worker/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

const serviceName = "replay_worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Initialize(serviceName, cfg.Log.Dir)
	log.SetDebugMode(cfg.Log.Debug)
	defer log.Sync()

	if err := os.MkdirAll(cfg.Export.Root, 0755); err != nil {
		log.Fatal("Unable to create export root", zap.String("root", cfg.Export.Root), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 連線 Redis，request / progress / result 三個 stream 都在這裡
	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rdb, err := database.NewRedisClient(ctx, database.RedisConnection{
		Addr:          redisAddr,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		MasterName:    cfg.Redis.MasterName,
		SentinelAddrs: cfg.Redis.SentinelAddrs,

		RetryCount:    cfg.Redis.RetryCount,
		RetryInterval: time.Duration(cfg.Redis.RetryInterval),
	}, log)
	if err != nil {
		log.Fatal("Unable to connect to redis after retries", zap.String("address", redisAddr), zap.Error(err))
	}
	defer rdb.Close()

	// 2. 可選的結果鏡像，主要輸出永遠是 redis stream
	mirrors := connectMirrors(ctx, cfg, log)
	publisher := repository.NewMultiPublisher(
		repository.NewRedisEventPublisher(rdb, cfg.Queue.ProgressStream, cfg.Queue.ResultStream),
		log,
		mirrors.publishers...,
	)
	defer mirrors.close()

	// 3. 組裝 exporter
	workerMetrics := metrics.NewWorkerMetrics()
	committer, err := app.NewCommitter(cfg.Export.Root, log)
	if err != nil {
		log.Fatal("Unable to open export root", zap.String("root", cfg.Export.Root), zap.Error(err))
	}
	renderer := app.NewRenderer(cfg.Export.RenderWidth, cfg.Export.RenderHeight)
	encoder := app.NewFFmpegEncoder(cfg.Export.FFmpegPath, cfg.Export.RenderWidth, cfg.Export.RenderHeight, cfg.Export.FrameRate, workerMetrics, log)

	dispatcher := app.NewDispatcher(publisher, workerMetrics, log)
	dispatcher.Register(domain.JobTypeExportVideo, app.NewVideoExporter(committer, renderer, encoder, cfg.Export.FrameInterval(), mirrors.store, log))
	dispatcher.Register(domain.JobTypeExportThumbnail, app.NewThumbnailExporter(committer, renderer, mirrors.store, log))

	liveness := app.NewLiveness(cfg.Queue.BlockTimeout)
	consumer := app.NewConsumer(
		repository.NewStreamRepo(rdb, cfg.Queue.RequestStream, cfg.Queue.ConsumerGroup, cfg.Queue.ConsumerName),
		dispatcher,
		app.ConsumerConfig{
			BlockTimeout: cfg.Queue.BlockTimeout,
			ClaimMinIdle: cfg.Queue.ClaimMinIdle,
			ClaimBatch:   cfg.Queue.ClaimBatch,
		},
		liveness,
		workerMetrics,
		log.With(zap.String("consumer", cfg.Queue.ConsumerName)),
	)

	// 4. 健康檢查 / metrics
	httpApp := startHTTP(cfg, liveness, workerMetrics, log)
	pprofSrv := testtool.StartPprof(cfg.HTTP.PprofAddr, log)

	log.Info("replay worker starting",
		zap.String("stream", cfg.Queue.RequestStream),
		zap.String("group", cfg.Queue.ConsumerGroup),
		zap.String("exportRoot", committer.Root()),
	)
	if err := consumer.Start(ctx); err != nil {
		log.Errorf("consumer stopped with error:", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpApp != nil {
		if err := httpApp.ShutdownWithContext(shutdownCtx); err != nil {
			log.Errorf("http shutdown failed:", err)
		}
	}
	if pprofSrv != nil {
		_ = pprofSrv.Shutdown(shutdownCtx)
	}
	log.Info("replay worker stopped")
}

func startHTTP(cfg config.Worker, liveness *app.Liveness, m *metrics.WorkerMetrics, log *logger.LogInfo) *fiber.App {
	if cfg.HTTP.Addr == "" {
		log.Info("http listener disabled")
		return nil
	}

	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	if cfg.Log.Dir != "" {
		file, err := os.OpenFile(filepath.Join(cfg.Log.Dir, "access.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			log.Fatal("Failed to open access log", zap.Error(err))
		}
		r.Use(fiber_log.New(fiber_log.Config{Output: file}))
	}
	router.RegisterRoutes(r, handlers.NewHealthHandler(liveness, log), m)

	go func() {
		log.Info("Starting http server", zap.String("addr", cfg.HTTP.Addr))
		if err := r.Listen(cfg.HTTP.Addr); err != nil {
			log.Errorf("http server failed:", err)
		}
	}()
	return r
}
